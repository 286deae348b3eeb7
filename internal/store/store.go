// Package store defines the document store the application writes to:
// collections addressed by path, records keyed by store-assigned ids.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/google/uuid"

	"mysokha/internal/core"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrAlreadyRecorded = errors.New("record with the same key already exists")
	ErrInvalidPath     = errors.New("invalid store path")
)

// Record is one entry of a collection snapshot.
type Record struct {
	ID  string
	Doc core.Document
}

// Store is the remote collection store. Snapshots always contain the whole
// collection ordered by id, which is insertion order.
type Store interface {
	Snapshot(ctx context.Context, path string) ([]Record, error)
	// Push appends doc under a new id.
	Push(ctx context.Context, path string, doc core.Document) (string, error)
	// PushUnique appends doc unless a record already carries the same values
	// for every field in keys, in which case it returns ErrAlreadyRecorded.
	// The check and the write are atomic.
	PushUnique(ctx context.Context, path string, doc core.Document, keys ...string) (string, error)
	// Put writes doc under a caller-chosen id, replacing any previous body.
	Put(ctx context.Context, path, id string, doc core.Document) error
	// Update merges patch into an existing record.
	Update(ctx context.Context, path, id string, patch core.Document) error
	// Remove deletes a record. Removing a missing id is not an error.
	Remove(ctx context.Context, path, id string) error
}

// NewID returns a UUIDv7 string. Ids are time ordered so sorting them
// gives insertion order.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

var appIDReplacer = regexp.MustCompile(`[.#$\[\]]`)

// DefaultAppID is used when no project id is configured.
const DefaultAppID = "default-app-id"

// SanitizeAppID turns a project id into a path-safe deployment id.
func SanitizeAppID(projectID string) string {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return DefaultAppID
	}
	return appIDReplacer.ReplaceAllString(projectID, "_")
}

// Paths names the collections of one deployment.
type Paths struct {
	AppID string
}

func (p Paths) root() string { return "artifacts/" + p.AppID + "/public" }

func (p Paths) Expenses() string  { return p.root() + "/expenses" }
func (p Paths) Templates() string { return p.root() + "/expenseTemplates" }

// All lists every collection path.
func (p Paths) All() []string { return []string{p.Expenses(), p.Templates()} }

// ValidatePath rejects empty paths and empty segments.
func ValidatePath(path string) error {
	if path == "" || strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") || strings.Contains(path, "//") {
		return ErrInvalidPath
	}
	return nil
}

// MatchesKeys reports whether a and b agree on every key.
func MatchesKeys(a, b core.Document, keys []string) bool {
	if len(keys) == 0 {
		return false
	}
	for _, k := range keys {
		if fmt.Sprint(a[k]) != fmt.Sprint(b[k]) {
			return false
		}
	}
	return true
}

// SortRecords orders records by id.
func SortRecords(records []Record) {
	slices.SortFunc(records, func(a, b Record) int { return strings.Compare(a.ID, b.ID) })
}
