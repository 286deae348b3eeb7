package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mysokha/internal/core"
	"mysokha/internal/live"
	"mysokha/internal/log"
	"mysokha/internal/store"
	"mysokha/internal/view"
)

// ChangeNotifier tells other instances that a collection changed.
type ChangeNotifier interface {
	Notify(ctx context.Context, path, op, recordID string) error
}

// Change operations passed to ChangeNotifier.
const (
	ChangePush   = "push"
	ChangeUpdate = "update"
	ChangeRemove = "remove"
)

// ExpenseService performs every write against the store. It never touches
// the live snapshots directly; after a write it asks the hub to reload so
// pages only ever show what the store confirmed.
type ExpenseService struct {
	store    store.Store
	hub      *live.Hub
	notifier ChangeNotifier
	loc      *time.Location
	now      func() time.Time
	logger   *log.Logger
}

// NewExpenseService wires the service. notifier may be nil.
func NewExpenseService(st store.Store, hub *live.Hub, notifier ChangeNotifier, loc *time.Location, logger *log.Logger) *ExpenseService {
	if loc == nil {
		loc = time.UTC
	}
	return &ExpenseService{
		store:    st,
		hub:      hub,
		notifier: notifier,
		loc:      loc,
		now:      time.Now,
		logger:   logger.WithComponent(log.ComponentExpense),
	}
}

// Now returns the current time in the configured zone.
func (s *ExpenseService) Now() time.Time { return s.now().In(s.loc) }

// Today is the calendar date used by the recorded-today guard.
func (s *ExpenseService) Today() string { return core.Today(s.now(), s.loc) }

func (s *ExpenseService) Hub() *live.Hub { return s.hub }

// AddExpense appends one expense stamped with the write time and identity.
func (s *ExpenseService) AddExpense(ctx context.Context, e core.Expense, identity string) (string, error) {
	e = s.stamp(e, identity)
	if err := e.Validate(); err != nil {
		return "", err
	}
	path := s.hub.Paths().Expenses()
	id, err := s.store.Push(ctx, path, e.Document())
	if err != nil {
		s.logWriteError(ctx, "Adding expense failed", err, log.OpCreate, path)
		return "", fmt.Errorf("add expense: %w", err)
	}
	s.afterWrite(ctx, path, ChangePush, id)
	return id, nil
}

// UpdateExpense applies the inline edit. The last writer wins.
func (s *ExpenseService) UpdateExpense(ctx context.Context, id string, patch core.ExpensePatch) error {
	patch.ExpenseName = strings.TrimSpace(patch.ExpenseName)
	if err := patch.Validate(); err != nil {
		return err
	}
	path := s.hub.Paths().Expenses()
	if err := s.store.Update(ctx, path, id, patch.Document()); err != nil {
		s.logWriteError(ctx, "Updating expense failed", err, log.OpUpdate, path)
		return fmt.Errorf("update expense: %w", err)
	}
	s.afterWrite(ctx, path, ChangeUpdate, id)
	return nil
}

// DeleteExpense removes one expense.
func (s *ExpenseService) DeleteExpense(ctx context.Context, id string) error {
	if id == "" {
		return store.ErrNotFound
	}
	path := s.hub.Paths().Expenses()
	if err := s.store.Remove(ctx, path, id); err != nil {
		s.logWriteError(ctx, "Deleting expense failed", err, log.OpDelete, path)
		return fmt.Errorf("delete expense: %w", err)
	}
	s.afterWrite(ctx, path, ChangeRemove, id)
	return nil
}

// AddTemplate stores a new category name.
func (s *ExpenseService) AddTemplate(ctx context.Context, name string) (string, error) {
	name, err := core.NormalizeTemplateName(name)
	if err != nil {
		return "", err
	}
	path := s.hub.Paths().Templates()
	doc := core.Template{Name: name, CreatedAt: s.now().UnixMilli()}.Document()
	id, err := s.store.Push(ctx, path, doc)
	if err != nil {
		s.logWriteError(ctx, "Adding template failed", err, log.OpCreate, path)
		return "", fmt.Errorf("add template: %w", err)
	}
	s.afterWrite(ctx, path, ChangePush, id)
	return id, nil
}

// DeleteTemplate removes a category. Expenses recorded under it keep the name.
func (s *ExpenseService) DeleteTemplate(ctx context.Context, id string) error {
	if id == "" {
		return store.ErrNotFound
	}
	path := s.hub.Paths().Templates()
	if err := s.store.Remove(ctx, path, id); err != nil {
		s.logWriteError(ctx, "Deleting template failed", err, log.OpDelete, path)
		return fmt.Errorf("delete template: %w", err)
	}
	s.afterWrite(ctx, path, ChangeRemove, id)
	return nil
}

// DefaultName is the template a new draft row starts with.
func (s *ExpenseService) DefaultName() string {
	expenses, _ := s.hub.Expenses()
	return view.DefaultTemplateName(s.hub.Templates(), view.RecordedOn(expenses, s.Today()))
}

func (s *ExpenseService) stamp(e core.Expense, identity string) core.Expense {
	if identity == "" {
		identity = core.AnonymousIdentity
	}
	e.ExpenseName = strings.TrimSpace(e.ExpenseName)
	e.CreatedAt = s.now().UnixMilli()
	e.AddedBy = identity
	return e
}

func (s *ExpenseService) afterWrite(ctx context.Context, path, op, id string) {
	s.hub.Invalidate(ctx, path)
	if s.notifier == nil {
		return
	}
	// the write already succeeded; a lost notification only delays other instances
	if err := s.notifier.Notify(ctx, path, op, id); err != nil {
		s.logger.WarnContext(ctx, "Publishing change notification failed",
			log.FieldStorePath, path,
			log.FieldRecordID, id,
			log.FieldError, err)
	}
}

func (s *ExpenseService) logWriteError(ctx context.Context, msg string, err error, op, path string) {
	errType := log.ErrorTypeDatabase
	switch {
	case errors.Is(err, store.ErrNotFound):
		errType = log.ErrorTypeNotFound
	case errors.Is(err, store.ErrAlreadyRecorded):
		errType = log.ErrorTypeConflict
	}
	s.logger.ErrorContext(ctx, msg, log.NewFields().
		WithOperation(op).
		WithStorePath(path).
		WithError(err, errType).
		ToSlice()...)
}
