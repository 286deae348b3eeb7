// Package drafts persists unsaved batch-entry rows per client. Storage
// problems never surface as errors to the page: a missing or unreadable
// slot loads as a single empty row.
package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"mysokha/internal/core"
	"mysokha/internal/log"
)

// Version of the serialized envelope.
const Version = 1

var ErrUnknownField = errors.New("unknown draft field")

// Slot is raw byte storage for one key. Read returns nil when absent.
type Slot interface {
	ReadSlot(ctx context.Context, key string) ([]byte, error)
	WriteSlot(ctx context.Context, key string, payload []byte) error
}

type envelope struct {
	Version int             `json:"version"`
	Rows    []core.DraftRow `json:"rows"`
}

// Key returns the slot key for a deployment and client.
func Key(appID, clientID string) string {
	key := "expense_drafts_" + appID
	if clientID != "" {
		key += ":" + clientID
	}
	return key
}

// Cache loads and saves the rows of one slot.
type Cache struct {
	slot   Slot
	key    string
	logger *log.Logger
}

func NewCache(slot Slot, key string, logger *log.Logger) *Cache {
	return &Cache{slot: slot, key: key, logger: logger.WithComponent(log.ComponentDrafts)}
}

func (c *Cache) Key() string { return c.key }

// Load returns the stored rows, or one default row dated today when the
// slot is empty, unreadable or holds no rows.
func (c *Cache) Load(ctx context.Context, today string) []core.DraftRow {
	payload, err := c.slot.ReadSlot(ctx, c.key)
	if err != nil {
		c.logger.WarnContext(ctx, "Draft slot unreadable, starting fresh", log.FieldOperation, log.OpLoad, log.FieldError, err)
		return []core.DraftRow{NewRow("", today)}
	}
	rows, err := Decode(payload)
	if err != nil {
		c.logger.WarnContext(ctx, "Draft slot corrupt, starting fresh", log.FieldOperation, log.OpLoad, log.FieldError, err)
	}
	if len(rows) == 0 {
		return []core.DraftRow{NewRow("", today)}
	}
	return rows
}

// Update loads the rows, applies fn and saves the result, holding the
// slot's lock throughout so overlapping requests from one client cannot
// overwrite each other. When fn fails nothing is saved and the loaded rows
// are returned with fn's error.
func (c *Cache) Update(ctx context.Context, today string, fn func([]core.DraftRow) ([]core.DraftRow, error)) ([]core.DraftRow, error) {
	unlock := slotLocks.lock(c.key)
	defer unlock()

	rows := c.Load(ctx, today)
	next, err := fn(rows)
	if err != nil {
		return rows, err
	}
	if err := c.Save(ctx, next); err != nil {
		return next, err
	}
	return next, nil
}

// Save writes rows through to the slot.
func (c *Cache) Save(ctx context.Context, rows []core.DraftRow) error {
	payload, err := json.Marshal(envelope{Version: Version, Rows: rows})
	if err != nil {
		return fmt.Errorf("encode drafts: %w", err)
	}
	if err := c.slot.WriteSlot(ctx, c.key, payload); err != nil {
		c.logger.ErrorContext(ctx, "Saving drafts failed", log.FieldOperation, log.OpSave, log.FieldError, err)
		return err
	}
	return nil
}

// Decode parses a slot payload. Both the versioned envelope and a bare row
// array are accepted. Rows without an id get one.
func Decode(payload []byte) ([]core.DraftRow, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var rows []core.DraftRow
	trimmed := strings.TrimSpace(string(payload))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(payload, &rows); err != nil {
			return nil, fmt.Errorf("decode draft rows: %w", err)
		}
	} else {
		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return nil, fmt.Errorf("decode draft envelope: %w", err)
		}
		if env.Version != Version {
			return nil, fmt.Errorf("unsupported draft version %d", env.Version)
		}
		rows = env.Rows
	}
	for i := range rows {
		if rows[i].ID == "" {
			rows[i].ID = uuid.NewString()
		}
	}
	return rows, nil
}

// NewRow returns an empty row with a fresh id.
func NewRow(name, date string) core.DraftRow {
	return core.DraftRow{ID: uuid.NewString(), ExpenseName: name, Date: date}
}

// AddRow appends a new row.
func AddRow(rows []core.DraftRow, defaultName, today string) []core.DraftRow {
	return append(slices.Clone(rows), NewRow(defaultName, today))
}

// DeleteRow drops the row with id. Deleting every row is allowed; the
// next Load starts over with a default row.
func DeleteRow(rows []core.DraftRow, id string) []core.DraftRow {
	return slices.DeleteFunc(slices.Clone(rows), func(r core.DraftRow) bool { return r.ID == id })
}

// Draft row fields editable from the form.
const (
	FieldName   = "expenseName"
	FieldAmount = "amount"
	FieldDate   = "date"
)

// EditCell sets one field of the row with id. Amount input that is not a
// number is rejected with core.ErrInvalidAmount and the rows are returned
// unchanged.
func EditCell(rows []core.DraftRow, id, field, value string) ([]core.DraftRow, error) {
	out := slices.Clone(rows)
	i := slices.IndexFunc(out, func(r core.DraftRow) bool { return r.ID == id })
	if i < 0 {
		return rows, nil
	}
	switch field {
	case FieldName:
		out[i].ExpenseName = value
	case FieldDate:
		out[i].Date = value
	case FieldAmount:
		v, err := core.SanitizeDraftAmount(value)
		if err != nil {
			return rows, err
		}
		out[i].Amount = v
	default:
		return rows, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	return out, nil
}

// FillDefaultName gives unnamed rows the default template name.
func FillDefaultName(rows []core.DraftRow, name string) []core.DraftRow {
	if name == "" {
		return rows
	}
	out := slices.Clone(rows)
	for i := range out {
		if out[i].ExpenseName == "" {
			out[i].ExpenseName = name
		}
	}
	return out
}
