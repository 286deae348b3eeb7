package core

import (
	"errors"
	"strings"
	"time"
)

// DateLayout is the calendar date form used for every stored date.
const DateLayout = "2006-01-02"

// AnonymousIdentity is stamped on expenses written without a resolvable identity.
const AnonymousIdentity = "anonymous"

type (
	// Expense is one recorded spend. Date is kept as the YYYY-MM-DD string
	// so month and year filters stay prefix comparisons.
	Expense struct {
		ID          string
		ExpenseName string
		Amount      Amount
		Date        string
		CreatedAt   int64 // unix millis, server assigned
		AddedBy     string
	}

	// Template is a reusable expense category name.
	Template struct {
		ID        string
		Name      string
		CreatedAt int64
	}

	// DraftRow is an unsaved batch-entry line. Amount holds the raw input.
	DraftRow struct {
		ID          string `json:"id"`
		ExpenseName string `json:"expenseName"`
		Amount      string `json:"amount"`
		Date        string `json:"date"`
	}

	// ExpensePatch is the partial update issued by the inline editor.
	ExpensePatch struct {
		ExpenseName string
		Date        string
		Amount      Amount
	}
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidDate       = errors.New("invalid date")
	ErrEmptyExpenseName  = errors.New("empty expense name")
	ErrEmptyTemplateName = errors.New("empty template name")
)

// ValidDate reports whether s is a real calendar date in YYYY-MM-DD form.
func ValidDate(s string) bool {
	if len(s) != len(DateLayout) {
		return false
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// Today formats now as a calendar date in loc.
func Today(now time.Time, loc *time.Location) string {
	if loc != nil {
		now = now.In(loc)
	}
	return now.Format(DateLayout)
}

// Validate checks an expense before it is written.
func (e Expense) Validate() error {
	if strings.TrimSpace(e.ExpenseName) == "" {
		return ErrEmptyExpenseName
	}
	if !ValidDate(e.Date) {
		return ErrInvalidDate
	}
	if !e.Amount.Valid() || e.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

func (p ExpensePatch) Validate() error {
	return Expense{ExpenseName: p.ExpenseName, Date: p.Date, Amount: p.Amount}.Validate()
}

// NormalizeTemplateName trims the name and rejects blanks.
func NormalizeTemplateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyTemplateName
	}
	return name, nil
}

// Ready reports whether the row can be submitted: a name, an amount above
// zero and a date.
func (r DraftRow) Ready() bool {
	if strings.TrimSpace(r.ExpenseName) == "" || r.Date == "" {
		return false
	}
	a, err := ParseAmount(r.Amount)
	return err == nil && a.IsPositive()
}

// Expense converts a ready row into the expense it will be written as.
func (r DraftRow) Expense() (Expense, error) {
	a, err := ParseAmount(r.Amount)
	if err != nil {
		return Expense{}, err
	}
	e := Expense{ExpenseName: strings.TrimSpace(r.ExpenseName), Amount: a, Date: r.Date}
	return e, e.Validate()
}
