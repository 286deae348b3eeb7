package drafts

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"mysokha/internal/core"
	"mysokha/internal/log"
)

const today = "2025-01-15"

type brokenSlot struct{}

func (brokenSlot) ReadSlot(context.Context, string) ([]byte, error) { return nil, errors.New("disk gone") }
func (brokenSlot) WriteSlot(context.Context, string, []byte) error  { return errors.New("disk gone") }

func TestKey(t *testing.T) {
	if got := Key("app_1", ""); got != "expense_drafts_app_1" {
		t.Fatalf("Key = %s", got)
	}
	if got := Key("app_1", "c9"); got != "expense_drafts_app_1:c9" {
		t.Fatalf("Key = %s", got)
	}
}

func TestRoundTrip(t *testing.T) {
	slots := map[string]func(t *testing.T) Slot{
		"memory": func(*testing.T) Slot { return NewMemorySlot() },
		"file": func(t *testing.T) Slot {
			s, err := NewFileSlot(t.TempDir())
			if err != nil {
				t.Fatal(err)
			}
			return s
		},
	}
	for name, mk := range slots {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := NewCache(mk(t), Key("app", "client"), log.Discard())
			rows := []core.DraftRow{
				{ID: "a", ExpenseName: "Lunch", Amount: "5000", Date: today},
				{ID: "b", ExpenseName: "", Amount: "12.", Date: "2025-01-14"},
			}
			if err := c.Save(ctx, rows); err != nil {
				t.Fatalf("save: %v", err)
			}
			if got := c.Load(ctx, today); !reflect.DeepEqual(got, rows) {
				t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, rows)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	ctx := context.Background()
	cases := map[string][]byte{
		"missing":       nil,
		"corrupt":       []byte("{not json"),
		"empty array":   []byte("[]"),
		"empty rows":    []byte(`{"version":1,"rows":[]}`),
		"wrong version": []byte(`{"version":7,"rows":[{"id":"x"}]}`),
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			slot := NewMemorySlot()
			if payload != nil {
				slot.WriteSlot(ctx, "k", payload)
			}
			rows := NewCache(slot, "k", log.Discard()).Load(ctx, today)
			if len(rows) != 1 || rows[0].Date != today || rows[0].ExpenseName != "" || rows[0].ID == "" {
				t.Fatalf("expected one default row, got %+v", rows)
			}
		})
	}

	rows := NewCache(brokenSlot{}, "k", log.Discard()).Load(ctx, today)
	if len(rows) != 1 {
		t.Fatalf("unreadable slot must load a default row, got %+v", rows)
	}
}

func TestLoadLegacyArray(t *testing.T) {
	slot := NewMemorySlot()
	slot.WriteSlot(context.Background(), "k", []byte(`[{"id":"r1","expenseName":"Rice","amount":"100","date":"2025-01-10"},{"expenseName":"Fuel"}]`))
	rows := NewCache(slot, "k", log.Discard()).Load(context.Background(), today)
	if len(rows) != 2 || rows[0].ID != "r1" || rows[1].ID == "" {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestEditCell(t *testing.T) {
	rows := []core.DraftRow{{ID: "a"}, {ID: "b"}}

	got, err := EditCell(rows, "b", FieldAmount, "1,500")
	if err != nil || got[1].Amount != "1500" {
		t.Fatalf("amount edit: %+v, %v", got, err)
	}

	same, err := EditCell(got, "b", FieldAmount, "15x")
	if !errors.Is(err, core.ErrInvalidAmount) || same[1].Amount != "1500" {
		t.Fatalf("invalid amount must leave the row unchanged: %+v, %v", same, err)
	}

	got, _ = EditCell(got, "a", FieldName, "Lunch")
	got, _ = EditCell(got, "a", FieldDate, today)
	if got[0].ExpenseName != "Lunch" || got[0].Date != today {
		t.Fatalf("unexpected %+v", got[0])
	}
	if rows[0].ExpenseName != "" {
		t.Fatalf("input slice modified")
	}

	if _, err := EditCell(rows, "a", "createdAt", "1"); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestAddDeleteRows(t *testing.T) {
	rows := AddRow(nil, "Fuel", today)
	rows = AddRow(rows, "", today)
	if len(rows) != 2 || rows[0].ExpenseName != "Fuel" || rows[0].ID == rows[1].ID {
		t.Fatalf("unexpected %+v", rows)
	}
	rows = DeleteRow(rows, rows[0].ID)
	if len(rows) != 1 || rows[0].ExpenseName != "" {
		t.Fatalf("expected the unnamed row to remain, got %+v", rows)
	}
	if rows = DeleteRow(rows, rows[0].ID); len(rows) != 0 {
		t.Fatalf("expected no rows, got %+v", rows)
	}
}

func TestFillDefaultName(t *testing.T) {
	rows := FillDefaultName([]core.DraftRow{{ID: "a"}, {ID: "b", ExpenseName: "Rent"}}, "Food")
	if rows[0].ExpenseName != "Food" || rows[1].ExpenseName != "Rent" {
		t.Fatalf("unexpected %+v", rows)
	}
}
