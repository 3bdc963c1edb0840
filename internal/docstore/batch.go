package docstore

import (
	"context"
	"fmt"
)

type opKind int

const (
	opAdd opKind = iota
	opSet
	opUpdate
	opDelete
)

type op struct {
	kind       opKind
	collection string
	id         string
	data       []byte
	fields     map[string]any
}

// Batch accumulates writes that Commit applies in one transaction. Keys for
// added documents are assigned when the operation is queued, so callers can
// reference them before the batch commits.
type Batch struct {
	ops []op
	err error
}

func (s *Store) NewBatch() *Batch {
	return &Batch{}
}

// Add queues an insert under a fresh key and returns that key.
func (b *Batch) Add(collection string, doc any) string {
	id := newDocID()
	data, err := marshalBody(doc)
	if err != nil {
		b.fail(err)
		return id
	}
	b.ops = append(b.ops, op{kind: opAdd, collection: collection, id: id, data: data})
	return id
}

// Set queues a create-or-replace of the document at the given key.
func (b *Batch) Set(collection, id string, doc any) {
	data, err := marshalBody(doc)
	if err != nil {
		b.fail(err)
		return
	}
	b.ops = append(b.ops, op{kind: opSet, collection: collection, id: id, data: data})
}

// Update queues a field merge into an existing document. Commit fails the
// whole batch if the document is gone by then.
func (b *Batch) Update(collection, id string, fields map[string]any) {
	b.ops = append(b.ops, op{kind: opUpdate, collection: collection, id: id, fields: fields})
}

// Delete queues a removal of the document at the given key.
func (b *Batch) Delete(collection, id string) {
	b.ops = append(b.ops, op{kind: opDelete, collection: collection, id: id})
}

// Len returns the number of queued operations.
func (b *Batch) Len() int {
	return len(b.ops)
}

func (b *Batch) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Commit applies every queued operation in a single transaction. Either all
// of them become visible together or none do; watchers of the touched
// collections are notified once, after the commit.
func (s *Store) Commit(ctx context.Context, b *Batch) error {
	if b.err != nil {
		return fmt.Errorf("batch: %w", b.err)
	}
	if len(b.ops) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch tx: %w", err)
	}
	defer tx.Rollback()

	for _, o := range b.ops {
		switch o.kind {
		case opAdd:
			_, err = tx.ExecContext(ctx,
				"INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)",
				o.collection, o.id, string(o.data),
			)
			if err != nil {
				return fmt.Errorf("batch add %s/%s: %w", o.collection, o.id, err)
			}
		case opSet:
			_, err = tx.ExecContext(ctx,
				`INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)
				 ON CONFLICT (collection, id)
				 DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
				o.collection, o.id, string(o.data),
			)
			if err != nil {
				return fmt.Errorf("batch set %s/%s: %w", o.collection, o.id, err)
			}
		case opUpdate:
			if err := updateInTx(ctx, tx, o.collection, o.id, o.fields); err != nil {
				return fmt.Errorf("batch: %w", err)
			}
		case opDelete:
			_, err = tx.ExecContext(ctx,
				"DELETE FROM documents WHERE collection = ? AND id = ?", o.collection, o.id,
			)
			if err != nil {
				return fmt.Errorf("batch delete %s/%s: %w", o.collection, o.id, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	touched := make(map[string]struct{})
	for _, o := range b.ops {
		touched[o.collection] = struct{}{}
	}
	for collection := range touched {
		s.notify(collection)
	}
	return nil
}
