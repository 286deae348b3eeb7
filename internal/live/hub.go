package live

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"mysokha/internal/core"
	"mysokha/internal/log"
	"mysokha/internal/store"
	"mysokha/internal/view"
)

// Hub owns the expense and template feeds of one deployment.
type Hub struct {
	paths     store.Paths
	expenses  *Feed
	templates *Feed
	logger    *log.Logger
}

func NewHub(st store.Store, paths store.Paths, logger *log.Logger) *Hub {
	return &Hub{
		paths:     paths,
		expenses:  NewFeed(st, paths.Expenses(), logger),
		templates: NewFeed(st, paths.Templates(), logger),
		logger:    logger.WithComponent(log.ComponentFeed),
	}
}

func (h *Hub) Paths() store.Paths { return h.paths }

func (h *Hub) ExpenseFeed() *Feed  { return h.expenses }
func (h *Hub) TemplateFeed() *Feed { return h.templates }

// Feed returns the feed for path, or nil.
func (h *Hub) Feed(path string) *Feed {
	switch path {
	case h.expenses.Path():
		return h.expenses
	case h.templates.Path():
		return h.templates
	}
	return nil
}

// Expenses decodes the current expense snapshot in store order.
func (h *Hub) Expenses() ([]core.Expense, uint64) {
	snap := h.expenses.Current()
	out := make([]core.Expense, 0, len(snap.Records))
	for _, r := range snap.Records {
		out = append(out, core.ExpenseFromDocument(r.ID, r.Doc))
	}
	return out, snap.Version
}

// Templates decodes the current templates, oldest first.
func (h *Hub) Templates() []core.Template {
	snap := h.templates.Current()
	out := make([]core.Template, 0, len(snap.Records))
	for _, r := range snap.Records {
		out = append(out, core.TemplateFromDocument(r.ID, r.Doc))
	}
	return view.SortTemplates(out)
}

// RefreshAll reloads both collections concurrently.
func (h *Hub) RefreshAll(ctx context.Context) error {
	var g errgroup.Group
	for _, f := range []*Feed{h.expenses, h.templates} {
		g.Go(func() error { return f.Refresh(ctx) })
	}
	return g.Wait()
}

// Invalidate reloads the collection at path after a local write.
func (h *Hub) Invalidate(ctx context.Context, path string) {
	if f := h.Feed(path); f != nil {
		// errors are logged by the feed, the last good snapshot stays
		_ = f.Invalidate(ctx)
	}
}

// Err reports the last refresh error of any feed.
func (h *Hub) Err() error {
	return errors.Join(h.expenses.Err(), h.templates.Err())
}

// Poll refreshes every interval until ctx ends. It picks up writes made by
// other processes sharing the store.
func (h *Hub) Poll(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.RefreshAll(ctx); err != nil && ctx.Err() == nil {
				h.logger.DebugContext(ctx, "Periodic refresh failed", log.FieldError, err)
			}
		}
	}
}
