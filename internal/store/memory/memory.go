// Package memory is an in-process store used for development and tests.
package memory

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"mysokha/internal/core"
	"mysokha/internal/store"
)

type Store struct {
	mu          sync.Mutex
	collections map[string]map[string]core.Document
}

func New() *Store {
	return &Store{collections: make(map[string]map[string]core.Document)}
}

// NewFromFiles seeds a store from base: seed_templates.txt (one template
// name per line) and export.json (a realtime-database export). Missing
// files are skipped.
func NewFromFiles(ctx context.Context, base string, paths store.Paths) (*Store, error) {
	s := New()
	if f, err := os.Open(filepath.Join(base, "export.json")); err == nil {
		tree, err := store.ReadExport(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		if _, err := store.Import(ctx, s, tree, paths.All()); err != nil {
			return nil, err
		}
	}
	existing, _ := s.Snapshot(ctx, paths.Templates())
	if len(existing) == 0 {
		for i, name := range readLines(filepath.Join(base, "seed_templates.txt")) {
			doc := core.Template{Name: name, CreatedAt: int64(i + 1)}.Document()
			if _, err := s.Push(ctx, paths.Templates(), doc); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

func (s *Store) Snapshot(_ context.Context, path string) ([]store.Record, error) {
	if err := store.ValidatePath(path); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	coll := s.collections[path]
	out := make([]store.Record, 0, len(coll))
	for id, doc := range coll {
		out = append(out, store.Record{ID: id, Doc: doc.Clone()})
	}
	store.SortRecords(out)
	return out, nil
}

func (s *Store) Push(_ context.Context, path string, doc core.Document) (string, error) {
	if err := store.ValidatePath(path); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(path, doc), nil
}

func (s *Store) PushUnique(_ context.Context, path string, doc core.Document, keys ...string) (string, error) {
	if err := store.ValidatePath(path); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.collections[path] {
		if store.MatchesKeys(existing, doc, keys) {
			return "", store.ErrAlreadyRecorded
		}
	}
	return s.insertLocked(path, doc), nil
}

func (s *Store) Put(_ context.Context, path, id string, doc core.Document) error {
	if err := store.ValidatePath(path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collectionLocked(path)[id] = doc.Clone()
	return nil
}

func (s *Store) Update(_ context.Context, path, id string, patch core.Document) error {
	if err := store.ValidatePath(path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.collections[path][id]
	if !ok {
		return store.ErrNotFound
	}
	merged := doc.Clone()
	for k, v := range patch {
		merged[k] = v
	}
	s.collections[path][id] = merged
	return nil
}

func (s *Store) Remove(_ context.Context, path, id string) error {
	if err := store.ValidatePath(path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[path], id)
	return nil
}

func (s *Store) insertLocked(path string, doc core.Document) string {
	id := store.NewID()
	s.collectionLocked(path)[id] = doc.Clone()
	return id
}

func (s *Store) collectionLocked(path string) map[string]core.Document {
	coll, ok := s.collections[path]
	if !ok {
		coll = make(map[string]core.Document)
		s.collections[path] = coll
	}
	return coll
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	seen := map[string]struct{}{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
