package docstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/dukerupert/mizan/internal/database"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := New(db, slog.Default())
	t.Cleanup(s.Close)
	return s
}

func TestAddAndGet(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	id, err := s.Add(ctx, ColFamilies, map[string]any{"familyName": "Mark", "saint": "St. Mark"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if id == "" {
		t.Fatal("expected a generated key")
	}

	doc, err := s.Get(ctx, ColFamilies, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc == nil {
		t.Fatal("expected document, got nil")
	}

	var body map[string]any
	if err := doc.Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["familyName"] != "Mark" {
		t.Errorf("familyName = %v, want Mark", body["familyName"])
	}
	if _, ok := body["id"]; ok {
		t.Error("document body must not contain the key")
	}
}

func TestGetMissing(t *testing.T) {
	s := setupStore(t)

	doc, err := s.Get(context.Background(), ColFamilies, "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc != nil {
		t.Fatal("expected nil for missing document")
	}
}

func TestQueryFilters(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	for _, e := range []map[string]any{
		{"userId": "u1", "itemId": "i1", "date": "2024-01-01"},
		{"userId": "u1", "itemId": "i1", "date": "2024-01-02"},
		{"userId": "u2", "itemId": "i1", "date": "2024-01-01"},
	} {
		if _, err := s.Add(ctx, ColEntries, e); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	docs, err := s.Query(ctx, ColEntries, Where("userId", "u1"))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents for u1, got %d", len(docs))
	}

	docs, err = s.Query(ctx, ColEntries,
		Where("userId", "u1"), Where("itemId", "i1"), Where("date", "2024-01-02"))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document for the triple, got %d", len(docs))
	}
}

func TestQueryOrderIsStable(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := s.Add(ctx, ColItems, map[string]any{"itemName": "x"})
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		ids = append(ids, id)
	}

	first, err := s.Query(ctx, ColItems)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	second, err := s.Query(ctx, ColItems)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(first) != 5 || len(second) != 5 {
		t.Fatalf("expected 5 documents, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("query order changed between runs at index %d", i)
		}
	}
}

func TestSetReplacesSingleton(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, ColSettings, DocControls, map[string]any{"saveEnabled": true}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, ColSettings, DocControls, map[string]any{"saveEnabled": false}); err != nil {
		t.Fatalf("set again: %v", err)
	}

	docs, err := s.Query(ctx, ColSettings)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected a single settings document, got %d", len(docs))
	}

	var body struct {
		SaveEnabled bool `json:"saveEnabled"`
	}
	if err := docs[0].Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.SaveEnabled {
		t.Error("expected saveEnabled false after replace")
	}
}

func TestUpdateMergesFields(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	id, err := s.Add(ctx, ColEntries, map[string]any{
		"userId": "u1", "itemId": "i1", "date": "2024-01-01", "value": "N", "familyId": "f1",
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := s.Update(ctx, ColEntries, id, map[string]any{"value": "Y", "familyId": "f2"}); err != nil {
		t.Fatalf("update: %v", err)
	}

	doc, err := s.Get(ctx, ColEntries, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var body map[string]any
	if err := doc.Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["value"] != "Y" {
		t.Errorf("value = %v, want Y", body["value"])
	}
	if body["familyId"] != "f2" {
		t.Errorf("familyId = %v, want f2", body["familyId"])
	}
	// Untouched fields survive the merge.
	if body["date"] != "2024-01-01" {
		t.Errorf("date = %v, want 2024-01-01", body["date"])
	}
}

func TestUpdateMissing(t *testing.T) {
	s := setupStore(t)

	err := s.Update(context.Background(), ColEntries, "gone", map[string]any{"value": "Y"})
	if err == nil {
		t.Fatal("expected error updating a missing document")
	}
}

func TestDelete(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	id, err := s.Add(ctx, ColFamilies, map[string]any{"familyName": "X"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Delete(ctx, ColFamilies, id); err != nil {
		t.Fatalf("delete: %v", err)
	}

	doc, err := s.Get(ctx, ColFamilies, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc != nil {
		t.Fatal("expected document gone after delete")
	}
}

func TestBatchAtomicity(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	b := s.NewBatch()
	b.Add(ColEntries, map[string]any{"userId": "u1", "itemId": "i1", "date": "2024-01-01", "value": "Y"})
	// Updating a document that does not exist must fail the whole batch.
	b.Update(ColEntries, "missing", map[string]any{"value": "Y"})

	if err := s.Commit(ctx, b); err == nil {
		t.Fatal("expected batch commit to fail")
	}

	docs, err := s.Query(ctx, ColEntries)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected no documents after failed batch, got %d", len(docs))
	}
}

func TestBatchCommit(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	existing, err := s.Add(ctx, ColEntries, map[string]any{
		"userId": "u1", "itemId": "i1", "date": "2024-01-01", "value": "N",
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	b := s.NewBatch()
	newID := b.Add(ColEntries, map[string]any{"userId": "u1", "itemId": "i2", "date": "2024-01-01", "value": "Y"})
	b.Update(ColEntries, existing, map[string]any{"value": "Y"})

	if err := s.Commit(ctx, b); err != nil {
		t.Fatalf("commit: %v", err)
	}

	doc, err := s.Get(ctx, ColEntries, newID)
	if err != nil || doc == nil {
		t.Fatalf("expected added document %s, err=%v", newID, err)
	}

	doc, err = s.Get(ctx, ColEntries, existing)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var body map[string]any
	if err := doc.Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["value"] != "Y" {
		t.Errorf("value = %v, want Y after batch update", body["value"])
	}
}

func waitEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev := <-sub.C:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for subscription event")
		return Event{}
	}
}

func TestWatchDeliversSnapshots(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	sub := s.Watch(ctx, ColFamilies)
	defer sub.Cancel()

	ev := waitEvent(t, sub)
	if ev.Err != nil {
		t.Fatalf("initial event error: %v", ev.Err)
	}
	if len(ev.Docs) != 0 {
		t.Fatalf("expected empty initial snapshot, got %d docs", len(ev.Docs))
	}

	if _, err := s.Add(ctx, ColFamilies, map[string]any{"familyName": "Mark"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	ev = waitEvent(t, sub)
	if ev.Err != nil {
		t.Fatalf("event error: %v", ev.Err)
	}
	if len(ev.Docs) != 1 {
		t.Fatalf("expected 1 doc in snapshot, got %d", len(ev.Docs))
	}
}

func TestWatchFiltered(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	sub := s.Watch(ctx, ColEntries, Where("userId", "u1"))
	defer sub.Cancel()
	waitEvent(t, sub)

	if _, err := s.Add(ctx, ColEntries, map[string]any{"userId": "u2", "itemId": "i1", "date": "2024-01-01", "value": "Y"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	// The write still triggers a snapshot, but the filtered query must not
	// surface the other user's entry.
	ev := waitEvent(t, sub)
	if len(ev.Docs) != 0 {
		t.Fatalf("filtered watch leaked %d foreign docs", len(ev.Docs))
	}

	if _, err := s.Add(ctx, ColEntries, map[string]any{"userId": "u1", "itemId": "i1", "date": "2024-01-01", "value": "Y"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	ev = waitEvent(t, sub)
	if len(ev.Docs) != 1 {
		t.Fatalf("expected 1 own doc, got %d", len(ev.Docs))
	}
	var body map[string]any
	if err := json.Unmarshal(ev.Docs[0].Data, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["userId"] != "u1" {
		t.Errorf("userId = %v, want u1", body["userId"])
	}
}

func TestWatchDocSingleton(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	sub := s.WatchDoc(ctx, ColSettings, DocControls)
	defer sub.Cancel()

	ev := waitEvent(t, sub)
	if ev.Doc != nil {
		t.Fatal("expected nil doc for absent singleton")
	}

	if err := s.Set(ctx, ColSettings, DocControls, map[string]any{"saveEnabled": false}); err != nil {
		t.Fatalf("set: %v", err)
	}

	ev = waitEvent(t, sub)
	if ev.Doc == nil {
		t.Fatal("expected controls doc after set")
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	sub := s.Watch(ctx, ColFamilies)
	waitEvent(t, sub)
	sub.Cancel()
	// Cancel twice must not panic.
	sub.Cancel()

	if _, err := s.Add(ctx, ColFamilies, map[string]any{"familyName": "X"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	select {
	case ev, ok := <-sub.C:
		if ok && ev.Err == nil && len(ev.Docs) > 0 {
			t.Fatal("received snapshot after cancel")
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBatchNotifiesWatchers(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	sub := s.Watch(ctx, ColEntries)
	defer sub.Cancel()
	waitEvent(t, sub)

	b := s.NewBatch()
	b.Add(ColEntries, map[string]any{"userId": "u1", "itemId": "i1", "date": "2024-01-01", "value": "Y"})
	b.Add(ColEntries, map[string]any{"userId": "u1", "itemId": "i2", "date": "2024-01-01", "value": "N"})
	if err := s.Commit(ctx, b); err != nil {
		t.Fatalf("commit: %v", err)
	}

	ev := waitEvent(t, sub)
	if len(ev.Docs) != 2 {
		t.Fatalf("expected both batch docs in one snapshot, got %d", len(ev.Docs))
	}
}
