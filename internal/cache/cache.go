package cache

import (
	"context"
	"time"

	"mysokha/internal/log"
)

// Cache is the subset of LRUCache the rest of the code depends on.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

// Cleaner is a cache that can drop expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Manager periodically cleans registered caches.
type Manager struct {
	caches map[string]Cleaner
	logger *log.Logger
}

func NewManager(logger *log.Logger) *Manager {
	return &Manager{caches: make(map[string]Cleaner), logger: logger.WithComponent(log.ComponentCache)}
}

// Register adds a named cache. Call before Run.
func (m *Manager) Register(name string, c Cleaner) {
	m.caches[name] = c
}

// Run cleans every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CleanAll()
		}
	}
}

// CleanAll runs one cleanup pass.
func (m *Manager) CleanAll() int {
	total := 0
	for name, c := range m.caches {
		if n := c.CleanExpired(); n > 0 {
			m.logger.Debug("Expired cache entries removed", "cache", name, log.FieldCount, n)
			total += n
		}
	}
	return total
}
