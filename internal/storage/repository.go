package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mysokha/internal/core"
	"mysokha/internal/store"

	_ "modernc.org/sqlite"
)

// SQLiteRepository keeps every collection in one documents table, bodies as
// JSON text. It also backs the draft cache slots.
type SQLiteRepository struct {
	db      *sql.DB
	now     func() time.Time
	version uint
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	version, err := Migrate(dbPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time keeps PushUnique's single statement serialized.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now, version: version}, nil
}

// SchemaVersion is the migration version the database was opened at.
func (r *SQLiteRepository) SchemaVersion() uint { return r.version }

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping is used by the readiness probe.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Snapshot(ctx context.Context, path string) ([]store.Record, error) {
	if err := store.ValidatePath(path); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id, body FROM documents WHERE path = ? ORDER BY id`, path)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", path, err)
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan %s: %w", path, err)
		}
		doc, err := decodeBody(body)
		if err != nil {
			slog.WarnContext(ctx, "Skipping undecodable document", "store_path", path, "record_id", id, "error", err)
			continue
		}
		out = append(out, store.Record{ID: id, Doc: doc})
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) Push(ctx context.Context, path string, doc core.Document) (string, error) {
	if err := store.ValidatePath(path); err != nil {
		return "", err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	id := store.NewID()
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (path, id, body, updated_at) VALUES (?, ?, ?, ?)`,
		path, id, string(body), r.now().UnixMilli()); err != nil {
		return "", fmt.Errorf("insert %s: %w", path, err)
	}
	return id, nil
}

func (r *SQLiteRepository) PushUnique(ctx context.Context, path string, doc core.Document, keys ...string) (string, error) {
	if err := store.ValidatePath(path); err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return r.Push(ctx, path, doc)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	id := store.NewID()

	var cond strings.Builder
	args := []any{path, id, string(body), r.now().UnixMilli(), path}
	for _, k := range keys {
		cond.WriteString(` AND json_extract(body, ?) = ?`)
		args = append(args, "$."+k, fmt.Sprint(doc[k]))
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (path, id, body, updated_at)
		 SELECT ?, ?, ?, ?
		 WHERE NOT EXISTS (SELECT 1 FROM documents WHERE path = ?`+cond.String()+`)`,
		args...)
	if err != nil {
		return "", fmt.Errorf("insert unique %s: %w", path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return "", store.ErrAlreadyRecorded
	}
	return id, nil
}

func (r *SQLiteRepository) Put(ctx context.Context, path, id string, doc core.Document) error {
	if err := store.ValidatePath(path); err != nil {
		return err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO documents (path, id, body, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (path, id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		path, id, string(body), r.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", path, id, err)
	}
	return nil
}

func (r *SQLiteRepository) Update(ctx context.Context, path, id string, patch core.Document) error {
	if err := store.ValidatePath(path); err != nil {
		return err
	}
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE documents SET body = json_patch(body, ?), updated_at = ? WHERE path = ? AND id = ?`,
		string(body), r.now().UnixMilli(), path, id)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", path, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) Remove(ctx context.Context, path, id string) error {
	if err := store.ValidatePath(path); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE path = ? AND id = ?`, path, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", path, id, err)
	}
	return nil
}

// ReadSlot returns the stored draft payload for key, or nil when absent.
func (r *SQLiteRepository) ReadSlot(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM draft_slots WHERE key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read draft slot: %w", err)
	}
	return payload, nil
}

// WriteSlot replaces the draft payload for key.
func (r *SQLiteRepository) WriteSlot(ctx context.Context, key string, payload []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO draft_slots (key, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		key, payload, r.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("write draft slot: %w", err)
	}
	return nil
}

func decodeBody(body string) (core.Document, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	var doc core.Document
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}
