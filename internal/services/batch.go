package services

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"mysokha/internal/core"
	"mysokha/internal/drafts"
	"mysokha/internal/log"
	"mysokha/internal/store"
	"mysokha/internal/view"
)

// RowOutcome classifies what happened to a draft row on submit.
type RowOutcome int

const (
	RowSkipped RowOutcome = iota // incomplete, left as a draft
	RowSaved
	RowBlocked // name already recorded today
	RowFailed
)

// RowResult is the outcome of one row.
type RowResult struct {
	Row     core.DraftRow
	Outcome RowOutcome
	ID      string
	Err     error
}

// BatchResult summarizes a submission. Remaining is the new draft set.
type BatchResult struct {
	Rows      []RowResult
	Remaining []core.DraftRow
}

func (r BatchResult) count(o RowOutcome) int {
	n := 0
	for _, row := range r.Rows {
		if row.Outcome == o {
			n++
		}
	}
	return n
}

func (r BatchResult) Saved() int   { return r.count(RowSaved) }
func (r BatchResult) Blocked() int { return r.count(RowBlocked) }
func (r BatchResult) Failed() int  { return r.count(RowFailed) }

// BlockedNames lists the names held back by the recorded-today guard.
func (r BatchResult) BlockedNames() []string {
	var names []string
	for _, row := range r.Rows {
		if row.Outcome == RowBlocked {
			names = append(names, row.Row.ExpenseName)
		}
	}
	return names
}

// SubmitBatch writes every ready row concurrently and waits for all of them.
// Rows dated today whose name is already recorded today, in the store or
// earlier in the same batch, are blocked. Writes for today go through the
// store's atomic uniqueness check so two clients cannot both record the
// same name on the same day. A failed write does not undo the others.
func (s *ExpenseService) SubmitBatch(ctx context.Context, rows []core.DraftRow, identity string) BatchResult {
	today := s.Today()
	expenses, _ := s.hub.Expenses()
	recorded := view.RecordedOn(expenses, today)

	results := make([]RowResult, len(rows))
	var g errgroup.Group
	for i, row := range rows {
		results[i] = RowResult{Row: row, Outcome: RowSkipped}
		if !row.Ready() {
			continue
		}
		guarded := row.Date == today
		if guarded {
			if recorded[row.ExpenseName] {
				results[i].Outcome = RowBlocked
				continue
			}
			recorded[row.ExpenseName] = true
		}
		g.Go(func() error {
			id, err := s.writeRow(ctx, row, identity, guarded)
			switch {
			case err == nil:
				results[i].Outcome, results[i].ID = RowSaved, id
			case errors.Is(err, store.ErrAlreadyRecorded):
				results[i].Outcome = RowBlocked
			default:
				results[i].Outcome, results[i].Err = RowFailed, err
			}
			// per-row failures are reported in results, never abort the batch
			return nil
		})
	}
	_ = g.Wait()

	res := BatchResult{Rows: results}
	if res.Saved() > 0 {
		path := s.hub.Paths().Expenses()
		s.afterWrite(ctx, path, ChangePush, "")
	}
	for _, r := range results {
		if r.Outcome != RowSaved {
			res.Remaining = append(res.Remaining, r.Row)
		}
	}
	if len(res.Remaining) == 0 {
		res.Remaining = []core.DraftRow{drafts.NewRow(s.DefaultName(), today)}
	}

	if blocked := res.BlockedNames(); len(blocked) > 0 {
		s.logger.WarnContext(ctx, "Skipping rows already recorded for today",
			log.FieldDate, today,
			"names", blocked)
	}
	s.logger.InfoContext(ctx, "Batch submitted",
		log.FieldOperation, log.OpSubmit,
		"saved", res.Saved(),
		"blocked", res.Blocked(),
		"failed", res.Failed())
	return res
}

func (s *ExpenseService) writeRow(ctx context.Context, row core.DraftRow, identity string, unique bool) (string, error) {
	e, err := row.Expense()
	if err != nil {
		return "", err
	}
	e = s.stamp(e, identity)
	path := s.hub.Paths().Expenses()

	var id string
	if unique {
		id, err = s.store.PushUnique(ctx, path, e.Document(), core.KeyExpenseName, core.KeyDate)
	} else {
		id, err = s.store.Push(ctx, path, e.Document())
	}
	if err != nil {
		if !errors.Is(err, store.ErrAlreadyRecorded) {
			s.logWriteError(ctx, "Saving draft row failed", err, log.OpCreate, path)
		}
		return "", fmt.Errorf("save row %s: %w", row.ID, err)
	}
	s.logger.InfoContext(ctx, "Expense saved",
		log.NewFields().WithExpense(e.ExpenseName, e.Amount.String(), e.Date).WithOperation(log.OpCreate).ToSlice()...)
	return id, nil
}

// SubmitDrafts loads the client's drafts, submits them and saves what is
// left back to the cache. The slot stays locked for the whole submission,
// so edits arriving meanwhile apply to the remaining rows.
func (s *ExpenseService) SubmitDrafts(ctx context.Context, cache *drafts.Cache, identity string) (BatchResult, error) {
	var res BatchResult
	_, err := cache.Update(ctx, s.Today(), func(rows []core.DraftRow) ([]core.DraftRow, error) {
		res = s.SubmitBatch(ctx, rows, identity)
		return res.Remaining, nil
	})
	if err != nil {
		return res, fmt.Errorf("save remaining drafts: %w", err)
	}
	return res, nil
}
