package live

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mysokha/internal/core"
	"mysokha/internal/log"
	"mysokha/internal/store"
	"mysokha/internal/store/memory"
)

var paths = store.Paths{AppID: "feed_test"}

// flakyStore fails snapshots while fail is set.
type flakyStore struct {
	store.Store
	fail  atomic.Bool
	loads atomic.Int32
	delay time.Duration
}

func (s *flakyStore) Snapshot(ctx context.Context, path string) ([]store.Record, error) {
	s.loads.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.fail.Load() {
		return nil, errors.New("permission denied")
	}
	return s.Store.Snapshot(ctx, path)
}

func TestFeedFullReplace(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	feed := NewFeed(st, paths.Expenses(), log.Discard())

	if v := feed.Current().Version; v != 0 {
		t.Fatalf("initial version = %d", v)
	}
	st.Push(ctx, paths.Expenses(), core.Document{core.KeyExpenseName: "Lunch"})
	if err := feed.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	first := feed.Current()
	if len(first.Records) != 1 || first.Version != 1 {
		t.Fatalf("unexpected snapshot %+v", first)
	}

	st.Push(ctx, paths.Expenses(), core.Document{core.KeyExpenseName: "Fuel"})
	feed.Refresh(ctx)
	second := feed.Current()
	if len(second.Records) != 2 || second.Version != 2 {
		t.Fatalf("unexpected snapshot %+v", second)
	}
	if len(first.Records) != 1 {
		t.Fatalf("older snapshot was mutated")
	}
}

func TestFeedKeepsLastGoodOnError(t *testing.T) {
	ctx := context.Background()
	st := &flakyStore{Store: memory.New()}
	st.Push(ctx, paths.Expenses(), core.Document{core.KeyExpenseName: "Lunch"})
	feed := NewFeed(st, paths.Expenses(), log.Discard())
	feed.Refresh(ctx)

	st.fail.Store(true)
	if err := feed.Refresh(ctx); err == nil {
		t.Fatalf("expected refresh error")
	}
	if got := feed.Current(); got.Version != 1 || len(got.Records) != 1 {
		t.Fatalf("snapshot was cleared on error: %+v", got)
	}
	if feed.Err() == nil {
		t.Fatalf("Err should report the failure")
	}

	st.fail.Store(false)
	feed.Refresh(ctx)
	if feed.Err() != nil {
		t.Fatalf("Err should clear after success")
	}
}

func TestSubscribeReceivesCurrentAndUpdates(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	feed := NewFeed(st, paths.Templates(), log.Discard())

	ch, cancel := feed.Subscribe()
	if snap := <-ch; snap.Version != 0 {
		t.Fatalf("expected initial snapshot, got version %d", snap.Version)
	}

	st.Push(ctx, paths.Templates(), core.Document{core.KeyName: "Rent"})
	feed.Refresh(ctx)
	select {
	case snap := <-ch:
		if len(snap.Records) != 1 {
			t.Fatalf("unexpected snapshot %+v", snap)
		}
	case <-time.After(time.Second):
		t.Fatalf("no update delivered")
	}

	cancel()
	cancel()
	if feed.Subscribers() != 0 {
		t.Fatalf("subscription not torn down")
	}
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
}

func TestSlowSubscriberSeesLatest(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	feed := NewFeed(st, paths.Expenses(), log.Discard())
	ch, cancel := feed.Subscribe()
	defer cancel()

	for i := 0; i < 5; i++ {
		st.Push(ctx, paths.Expenses(), core.Document{})
		feed.Invalidate(ctx)
	}
	snap := <-ch
	if snap.Version != 5 {
		t.Fatalf("expected only the latest snapshot, got version %d", snap.Version)
	}
}

func TestRefreshCoalesces(t *testing.T) {
	ctx := context.Background()
	st := &flakyStore{Store: memory.New(), delay: 50 * time.Millisecond}
	feed := NewFeed(st, paths.Expenses(), log.Discard())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			feed.Refresh(ctx)
		}()
	}
	wg.Wait()
	if n := st.loads.Load(); n >= 10 {
		t.Fatalf("expected concurrent refreshes to share loads, got %d loads", n)
	}
}

func TestHubDecodes(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	st.Push(ctx, paths.Templates(), core.Template{Name: "Later", CreatedAt: 20}.Document())
	st.Push(ctx, paths.Templates(), core.Template{Name: "Earlier", CreatedAt: 10}.Document())
	st.Push(ctx, paths.Expenses(), core.Expense{ExpenseName: "Lunch", Amount: core.AmountFromInt(5000), Date: "2025-01-15"}.Document())

	hub := NewHub(st, paths, log.Discard())
	if err := hub.RefreshAll(ctx); err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}
	tpl := hub.Templates()
	if len(tpl) != 2 || tpl[0].Name != "Earlier" {
		t.Fatalf("templates not ordered by creation: %+v", tpl)
	}
	exp, version := hub.Expenses()
	if len(exp) != 1 || version != 1 || exp[0].Amount.String() != "5000" {
		t.Fatalf("unexpected expenses %+v v%d", exp, version)
	}
	if hub.Feed("unknown") != nil {
		t.Fatalf("unknown path must not resolve")
	}
}
