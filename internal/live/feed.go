// Package live keeps the latest snapshot of each store collection and fans
// it out to subscribers. Every refresh replaces the whole snapshot.
package live

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"mysokha/internal/log"
	"mysokha/internal/store"
)

// Snapshot is an immutable copy of one collection.
type Snapshot struct {
	Path     string
	Records  []store.Record
	Version  uint64
	LoadedAt time.Time
}

// Feed is a single-writer, full-replace cache of one collection. Readers
// always see a complete snapshot; a failed refresh leaves the previous one
// in place.
type Feed struct {
	path   string
	st     store.Store
	logger *log.Logger

	current  atomic.Pointer[Snapshot]
	lastErr  atomic.Pointer[errBox]
	loads    atomic.Uint64 // load sequence, assigned when a load starts
	commitMu sync.Mutex
	applied  uint64 // highest load sequence committed, guarded by commitMu
	group    singleflight.Group

	subMu  sync.Mutex
	subs   map[uint64]chan *Snapshot
	nextID uint64
}

type errBox struct{ err error }

func NewFeed(st store.Store, path string, logger *log.Logger) *Feed {
	f := &Feed{
		path:   path,
		st:     st,
		logger: logger.WithComponent(log.ComponentFeed),
		subs:   make(map[uint64]chan *Snapshot),
	}
	f.current.Store(&Snapshot{Path: path})
	return f
}

func (f *Feed) Path() string { return f.path }

// Current returns the last good snapshot. Before the first successful load
// it is empty with version 0.
func (f *Feed) Current() *Snapshot { return f.current.Load() }

// Err returns the error of the most recent refresh, nil after a success.
func (f *Feed) Err() error {
	if b := f.lastErr.Load(); b != nil {
		return b.err
	}
	return nil
}

// Refresh reloads the collection. Concurrent calls share one load.
func (f *Feed) Refresh(ctx context.Context) error {
	_, err, _ := f.group.Do(f.path, func() (any, error) {
		return nil, f.load(ctx)
	})
	return err
}

// Invalidate reloads after a local write. It never joins a load that may
// have started before the write.
func (f *Feed) Invalidate(ctx context.Context) error {
	f.group.Forget(f.path)
	return f.Refresh(ctx)
}

func (f *Feed) load(ctx context.Context) error {
	seq := f.loads.Add(1)
	records, err := f.st.Snapshot(ctx, f.path)
	if err != nil {
		f.lastErr.Store(&errBox{err: err})
		f.logger.WarnContext(ctx, "Snapshot refresh failed, keeping last good snapshot",
			log.FieldStorePath, f.path,
			log.FieldVersion, f.Current().Version,
			log.FieldError, err)
		return err
	}
	f.lastErr.Store(nil)

	f.commitMu.Lock()
	if seq <= f.applied {
		// a newer load already committed
		f.commitMu.Unlock()
		return nil
	}
	f.applied = seq
	snap := &Snapshot{
		Path:     f.path,
		Records:  records,
		Version:  f.Current().Version + 1,
		LoadedAt: time.Now(),
	}
	f.current.Store(snap)
	f.commitMu.Unlock()

	f.logger.DebugContext(ctx, "Snapshot replaced",
		log.FieldStorePath, f.path,
		log.FieldVersion, snap.Version,
		log.FieldCount, len(records))
	f.broadcast(snap)
	return nil
}

// Subscribe returns a channel that receives the current snapshot right away
// and every later one. Slow subscribers only see the latest snapshot. The
// returned func unsubscribes and closes the channel.
func (f *Feed) Subscribe() (<-chan *Snapshot, func()) {
	ch := make(chan *Snapshot, 1)

	f.subMu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	ch <- f.Current()
	f.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.subMu.Lock()
			delete(f.subs, id)
			f.subMu.Unlock()
			close(ch)
		})
	}
}

// Subscribers reports the number of open subscriptions.
func (f *Feed) Subscribers() int {
	f.subMu.Lock()
	defer f.subMu.Unlock()
	return len(f.subs)
}

func (f *Feed) broadcast(snap *Snapshot) {
	f.subMu.Lock()
	defer f.subMu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- snap:
		default:
			// drop the stale pending snapshot
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
