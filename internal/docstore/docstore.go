// Package docstore implements the keyed document store the rest of the
// application is written against: named collections of JSON documents over
// SQLite, with equality-filtered queries, live snapshot subscriptions, and
// atomic multi-document batch writes.
package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Collection names shared by the sync layer, the evaluation writer, and the
// mutation facade.
const (
	ColFamilies = "families"
	ColUsers    = "users"
	ColItems    = "evaluation_items"
	ColPeriods  = "evaluationPeriods"
	ColEntries  = "evaluations"
	ColSettings = "settings"

	// Singleton document keys.
	DocCurrentPeriod = "current"
	DocControls      = "evaluationControls"
)

// ErrNotFound is returned by Update when the target document is gone.
var ErrNotFound = errors.New("document not found")

// Document is one stored record: its collection-scoped key plus the raw JSON
// body. The body never contains the key; callers assign ID after decoding.
type Document struct {
	ID   string
	Data json.RawMessage
}

// Decode unmarshals the document body into v. The caller is responsible for
// copying ID into the destination if it wants it.
func (d Document) Decode(v any) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("decode document %s: %w", d.ID, err)
	}
	return nil
}

// Filter is an equality constraint on a top-level string field of the
// document body. Filters are applied store-side so a scoped query never
// materializes documents outside its scope.
type Filter struct {
	Field string
	Value string
}

func Where(field, value string) Filter {
	return Filter{Field: field, Value: value}
}

// Store is the SQLite-backed document store. All writes notify live
// subscriptions for the touched collections after they commit.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	mu       sync.Mutex
	nextID   int64
	watchers map[int64]*watcher
}

func New(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{
		db:       db,
		logger:   logger,
		watchers: make(map[int64]*watcher),
	}
}

// Add stores doc under a fresh key and returns that key.
func (s *Store) Add(ctx context.Context, collection string, doc any) (string, error) {
	data, err := marshalBody(doc)
	if err != nil {
		return "", err
	}

	id := newDocID()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)",
		collection, id, string(data),
	)
	if err != nil {
		return "", fmt.Errorf("add document to %s: %w", collection, err)
	}

	s.notify(collection)
	return id, nil
}

// Set creates or fully replaces the document at the given key. Used for the
// singleton documents whose keys are fixed.
func (s *Store) Set(ctx context.Context, collection, id string, doc any) error {
	data, err := marshalBody(doc)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)
		 ON CONFLICT (collection, id)
		 DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		collection, id, string(data),
	)
	if err != nil {
		return fmt.Errorf("set document %s/%s: %w", collection, id, err)
	}

	s.notify(collection)
	return nil
}

// Update merges the given fields into an existing document's body. It fails
// with ErrNotFound when the document does not exist; update-by-key never
// creates documents.
func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := updateInTx(ctx, tx, collection, id, fields); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update %s/%s: %w", collection, id, err)
	}

	s.notify(collection)
	return nil
}

// Delete removes the document at the given key. Deleting a missing document
// is not an error.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = ? AND id = ?", collection, id,
	)
	if err != nil {
		return fmt.Errorf("delete document %s/%s: %w", collection, id, err)
	}

	s.notify(collection)
	return nil
}

// Get returns the document at the given key, or nil when it does not exist.
func (s *Store) Get(ctx context.Context, collection, id string) (*Document, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE collection = ? AND id = ?", collection, id,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s/%s: %w", collection, id, err)
	}
	return &Document{ID: id, Data: json.RawMessage(data)}, nil
}

// Query returns all documents in the collection matching every filter,
// ordered oldest-first by (created_at, id). The ordering is what makes
// duplicate-resolving lookups deterministic.
func (s *Store) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	query := "SELECT id, data FROM documents WHERE collection = ?"
	args := []any{collection}
	for _, f := range filters {
		query += " AND json_extract(data, ?) = ?"
		args = append(args, "$."+f.Field, f.Value)
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan %s document: %w", collection, err)
		}
		docs = append(docs, Document{ID: id, Data: json.RawMessage(data)})
	}
	return docs, rows.Err()
}

// Close cancels every live subscription.
func (s *Store) Close() {
	s.mu.Lock()
	watchers := make([]*watcher, 0, len(s.watchers))
	for _, w := range s.watchers {
		watchers = append(watchers, w)
	}
	s.mu.Unlock()

	for _, w := range watchers {
		w.stop()
	}
}

func updateInTx(ctx context.Context, tx *sql.Tx, collection, id string, fields map[string]any) error {
	var data string
	err := tx.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE collection = ? AND id = ?", collection, id,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read %s/%s for update: %w", collection, id, err)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(data), &body); err != nil {
		return fmt.Errorf("decode %s/%s for update: %w", collection, id, err)
	}
	for k, v := range fields {
		body[k] = v
	}

	merged, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s/%s update: %w", collection, id, err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE documents SET data = ?, updated_at = CURRENT_TIMESTAMP WHERE collection = ? AND id = ?",
		string(merged), collection, id,
	)
	if err != nil {
		return fmt.Errorf("write %s/%s update: %w", collection, id, err)
	}
	return nil
}

// newDocID mints a document key. Keys are opaque; nothing may parse them.
func newDocID() string {
	return uuid.NewString()
}

// marshalBody encodes a document body, dropping any top-level "id" field so
// the key only ever lives in the key column.
func marshalBody(doc any) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("document body must be a JSON object: %w", err)
	}
	delete(m, "id")

	return json.Marshal(m)
}
