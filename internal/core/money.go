package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a decimal expense amount. Values read back from the store that
// are not numeric keep their raw text and count as zero in every sum.
type Amount struct {
	d     decimal.Decimal
	raw   string
	valid bool
}

var draftAmountPattern = regexp.MustCompile(`^\d*\.?\d*$`)

// NewAmount wraps a decimal.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{d: d, valid: true}
}

// AmountFromInt is a shorthand for whole amounts.
func AmountFromInt(v int64) Amount {
	return NewAmount(decimal.NewFromInt(v))
}

// ParseAmount parses user or stored text. Thousands separators are stripped.
func ParseAmount(s string) (Amount, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return Amount{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return NewAmount(d), nil
}

// AmountFromValue converts a decoded document value. It never fails: anything
// that is not a number becomes an invalid amount.
func AmountFromValue(v any) Amount {
	switch x := v.(type) {
	case nil:
		return Amount{}
	case float64:
		return NewAmount(decimal.NewFromFloat(x))
	case float32:
		return NewAmount(decimal.NewFromFloat32(x))
	case int:
		return AmountFromInt(int64(x))
	case int64:
		return AmountFromInt(x)
	case json.Number:
		if a, err := ParseAmount(x.String()); err == nil {
			return a
		}
		return Amount{raw: x.String()}
	case decimal.Decimal:
		return NewAmount(x)
	case Amount:
		return x
	case string:
		if a, err := ParseAmount(x); err == nil {
			return a
		}
		return Amount{raw: x}
	default:
		return Amount{raw: fmt.Sprint(x)}
	}
}

// SanitizeDraftAmount applies the amount field input rule: commas are
// dropped, and anything other than digits with at most one dot is rejected.
// An empty string is accepted.
func SanitizeDraftAmount(s string) (string, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if !draftAmountPattern.MatchString(s) {
		return "", ErrInvalidAmount
	}
	return s, nil
}

func (a Amount) Valid() bool { return a.valid }

// Decimal returns the numeric value, zero when invalid.
func (a Amount) Decimal() decimal.Decimal {
	if !a.valid {
		return decimal.Zero
	}
	return a.d
}

func (a Amount) IsPositive() bool { return a.valid && a.d.IsPositive() }
func (a Amount) IsNegative() bool { return a.valid && a.d.IsNegative() }

// String returns the plain numeric text, or the raw stored text when invalid.
func (a Amount) String() string {
	if !a.valid {
		return a.raw
	}
	return a.d.String()
}

// Value is the document representation: a JSON number when valid.
func (a Amount) Value() any {
	if !a.valid {
		return a.raw
	}
	return json.Number(a.d.String())
}

// Float is used by writers that need a plain number cell.
func (a Amount) Float() float64 {
	f, _ := a.Decimal().Float64()
	return f
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.valid {
		return json.Marshal(a.raw)
	}
	return []byte(a.d.String()), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = AmountFromValue(s)
		return nil
	}
	if bytes.Equal(b, []byte("null")) {
		*a = Amount{}
		return nil
	}
	*a = AmountFromValue(json.Number(b))
	return nil
}

// FormatGrouped renders a decimal the way en-US locale formatting does:
// thousands grouped with commas and at most three fraction digits.
func FormatGrouped(d decimal.Decimal) string {
	s := d.Round(3).String()
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac, hasFrac := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}

// Display formats the amount for lists and summaries.
func (a Amount) Display() string {
	return FormatGrouped(a.Decimal())
}

// DisplayWithSymbol appends a currency symbol, e.g. "5,000 ៛".
func (a Amount) DisplayWithSymbol(symbol string) string {
	if symbol == "" {
		return a.Display()
	}
	return a.Display() + " " + symbol
}

// parseMillis reads timestamps that may arrive as float64, json.Number or int.
func parseMillis(v any) int64 {
	switch x := v.(type) {
	case float64:
		return int64(x)
	case int64:
		return x
	case int:
		return int64(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return int64(f)
		}
	case string:
		if i, err := strconv.ParseInt(x, 10, 64); err == nil {
			return i
		}
	}
	return 0
}
