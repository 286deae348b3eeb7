package core

import (
	"errors"
	"testing"
	"time"
)

func TestValidDate(t *testing.T) {
	cases := map[string]bool{
		"2025-01-15": true,
		"2024-02-29": true,
		"2025-02-29": false,
		"2025-1-5":   false,
		"":           false,
		"2025-01":    false,
	}
	for in, want := range cases {
		if got := ValidDate(in); got != want {
			t.Fatalf("ValidDate(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestToday(t *testing.T) {
	now := time.Date(2025, 1, 15, 23, 30, 0, 0, time.UTC)
	loc := time.FixedZone("ICT", 7*3600)
	if got := Today(now, loc); got != "2025-01-16" {
		t.Fatalf("Today in +7 = %s, want 2025-01-16", got)
	}
	if got := Today(now, nil); got != "2025-01-15" {
		t.Fatalf("Today = %s", got)
	}
}

func TestExpenseValidate(t *testing.T) {
	good := Expense{ExpenseName: "Lunch", Amount: AmountFromInt(5000), Date: "2025-01-15"}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []struct {
		e    Expense
		want error
	}{
		{Expense{ExpenseName: " ", Amount: AmountFromInt(1), Date: "2025-01-15"}, ErrEmptyExpenseName},
		{Expense{ExpenseName: "a", Amount: AmountFromInt(1), Date: "15/01/2025"}, ErrInvalidDate},
		{Expense{ExpenseName: "a", Amount: AmountFromValue("bad"), Date: "2025-01-15"}, ErrInvalidAmount},
		{Expense{ExpenseName: "a", Amount: AmountFromInt(-1), Date: "2025-01-15"}, ErrInvalidAmount},
	}
	for i, b := range bads {
		if err := b.e.Validate(); !errors.Is(err, b.want) {
			t.Fatalf("case %d: got %v, want %v", i, err, b.want)
		}
	}
}

func TestDraftRowReady(t *testing.T) {
	cases := []struct {
		row  DraftRow
		want bool
	}{
		{DraftRow{ExpenseName: "Lunch", Amount: "5,000", Date: "2025-01-15"}, true},
		{DraftRow{ExpenseName: "", Amount: "5000", Date: "2025-01-15"}, false},
		{DraftRow{ExpenseName: "Lunch", Amount: "0", Date: "2025-01-15"}, false},
		{DraftRow{ExpenseName: "Lunch", Amount: "", Date: "2025-01-15"}, false},
		{DraftRow{ExpenseName: "Lunch", Amount: "10", Date: ""}, false},
	}
	for i, tc := range cases {
		if got := tc.row.Ready(); got != tc.want {
			t.Fatalf("case %d: Ready() = %v, want %v", i, got, tc.want)
		}
	}
}

func TestExpenseDocumentRoundTrip(t *testing.T) {
	e := Expense{ExpenseName: "Rice", Amount: AmountFromInt(12000), Date: "2025-03-02", CreatedAt: 1740900000000, AddedBy: "anonymous"}
	got := ExpenseFromDocument("-abc", e.Document())
	if got.ID != "-abc" || got.ExpenseName != "Rice" || got.Amount.String() != "12000" || got.CreatedAt != e.CreatedAt {
		t.Fatalf("unexpected decode %+v", got)
	}
}

func TestExpenseFromDocumentLenient(t *testing.T) {
	doc := Document{KeyExpenseName: "Fuel", KeyAmount: "n/a", KeyDate: "2025-03-02", KeyCreatedAt: "oops"}
	got := ExpenseFromDocument("x", doc)
	if got.Amount.Valid() || got.CreatedAt != 0 || got.AddedBy != "" {
		t.Fatalf("expected lenient zero values, got %+v", got)
	}
}
