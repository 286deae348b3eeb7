// Package worker keeps this instance's live feeds in step with writes made
// by other instances sharing the store.
package worker

import (
	"context"
	"errors"
	"sync/atomic"

	"mysokha/internal/amqp"
	"mysokha/internal/log"
	"mysokha/internal/store"
)

// Reloader is the part of the live hub the worker drives.
type Reloader interface {
	Invalidate(ctx context.Context, path string)
	RefreshAll(ctx context.Context) error
}

// Consumer delivers change notifications until ctx ends.
type Consumer interface {
	ConsumeChanges(ctx context.Context, handler func(context.Context, *amqp.ChangeMessage) error) error
}

// ChangeWorker reloads a collection whenever another instance reports a
// write to it.
type ChangeWorker struct {
	hub    Reloader
	origin string
	known  map[string]bool
	logger *log.Logger

	processed atomic.Int64
	skipped   atomic.Int64
}

// NewChangeWorker creates a worker for the collections under paths.
// Messages stamped with origin are our own and are skipped.
func NewChangeWorker(hub Reloader, paths store.Paths, origin string, logger *log.Logger) *ChangeWorker {
	known := make(map[string]bool)
	for _, p := range paths.All() {
		known[p] = true
	}
	return &ChangeWorker{
		hub:    hub,
		origin: origin,
		known:  known,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// HandleChange processes a single change message.
func (w *ChangeWorker) HandleChange(ctx context.Context, msg *amqp.ChangeMessage) error {
	if msg == nil {
		return errors.New("nil change message")
	}
	if msg.Origin == w.origin {
		w.skipped.Add(1)
		return nil
	}
	if !w.known[msg.Path] {
		// another app id on the same exchange
		w.skipped.Add(1)
		w.logger.DebugContext(ctx, "Ignoring change for unknown collection", log.FieldStorePath, msg.Path)
		return nil
	}

	w.hub.Invalidate(ctx, msg.Path)
	w.processed.Add(1)
	w.logger.DebugContext(ctx, "Reloaded collection after remote change",
		log.FieldStorePath, msg.Path,
		log.FieldOperation, msg.Op,
		log.FieldRecordID, msg.RecordID,
		"origin", msg.Origin)
	return nil
}

// Run catches up on anything missed while the worker was down, then
// consumes changes until ctx ends.
func (w *ChangeWorker) Run(ctx context.Context, consumer Consumer) error {
	if err := w.hub.RefreshAll(ctx); err != nil {
		w.logger.WarnContext(ctx, "Startup refresh failed, relying on change messages",
			log.FieldOperation, log.OpStartup,
			log.FieldError, err)
	}
	w.logger.InfoContext(ctx, "Change worker started", "origin", w.origin)

	err := consumer.ConsumeChanges(ctx, w.HandleChange)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stats returns how many messages caused a reload and how many were skipped.
func (w *ChangeWorker) Stats() (processed, skipped int64) {
	return w.processed.Load(), w.skipped.Load()
}
