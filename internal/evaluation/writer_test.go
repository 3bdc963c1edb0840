package evaluation

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/dukerupert/mizan/internal/database"
	"github.com/dukerupert/mizan/internal/docstore"
	"github.com/dukerupert/mizan/internal/model"
)

var admin = &model.User{ID: "d1", UID: "admin-uid", Role: model.RoleAdmin}

func setupWriter(t *testing.T) (*Writer, *docstore.Store) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := docstore.New(db, slog.Default())
	t.Cleanup(store.Close)
	return NewWriter(store, slog.Default()), store
}

func queryEntries(t *testing.T, store *docstore.Store, filters ...docstore.Filter) []model.EvaluationEntry {
	t.Helper()
	docs, err := store.Query(context.Background(), docstore.ColEntries, filters...)
	if err != nil {
		t.Fatalf("query entries: %v", err)
	}
	entries := make([]model.EvaluationEntry, len(docs))
	for i, doc := range docs {
		if err := doc.Decode(&entries[i]); err != nil {
			t.Fatalf("decode entry: %v", err)
		}
		entries[i].ID = doc.ID
	}
	return entries
}

func TestSaveRequiresViewer(t *testing.T) {
	w, store := setupWriter(t)

	err := w.Save(context.Background(), nil, []Input{{UserID: "u1", ItemID: "i1", Date: "2024-01-01", Value: model.Yes()}}, "f1")
	if !errors.Is(err, ErrNoViewer) {
		t.Fatalf("err = %v, want ErrNoViewer", err)
	}
	if got := queryEntries(t, store); len(got) != 0 {
		t.Fatalf("expected no writes, got %d", len(got))
	}
}

func TestSaveBlockedWhenDisabled(t *testing.T) {
	w, store := setupWriter(t)
	ctx := context.Background()

	if err := store.Set(ctx, docstore.ColSettings, docstore.DocControls, model.EvaluationControls{SaveEnabled: false}); err != nil {
		t.Fatalf("set controls: %v", err)
	}

	err := w.Save(ctx, admin, []Input{{UserID: "u1", ItemID: "i1", Date: "2024-01-01", Value: model.Yes()}}, "f1")
	if !errors.Is(err, ErrSaveDisabled) {
		t.Fatalf("err = %v, want ErrSaveDisabled", err)
	}
	if got := queryEntries(t, store); len(got) != 0 {
		t.Fatalf("disabled save still wrote %d entries", len(got))
	}
}

func TestSaveDefaultsToEnabled(t *testing.T) {
	w, store := setupWriter(t)

	// No controls document at all: saving is enabled.
	err := w.Save(context.Background(), admin, []Input{{UserID: "u1", ItemID: "i1", Date: "2024-01-01", Value: model.Yes()}}, "f1")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := queryEntries(t, store); len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
}

func TestSaveIdempotentUpsert(t *testing.T) {
	w, store := setupWriter(t)
	ctx := context.Background()

	in := []Input{{UserID: "u1", ItemID: "i1", Date: "2024-01-01", Value: model.No()}}
	if err := w.Save(ctx, admin, in, "f1"); err != nil {
		t.Fatalf("first save: %v", err)
	}

	in[0].Value = model.Yes()
	if err := w.Save(ctx, admin, in, "f1"); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got := queryEntries(t, store)
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 record for the triple, got %d", len(got))
	}
	if !got[0].Value.IsYes() {
		t.Errorf("value = %v, want Y (final value wins)", got[0].Value)
	}
}

func TestSaveUpdatesOldestDuplicate(t *testing.T) {
	w, store := setupWriter(t)
	ctx := context.Background()

	// Simulate pre-existing duplicates written before this layer enforced
	// uniqueness. The writer must update the oldest and create nothing.
	first, err := store.Add(ctx, docstore.ColEntries, map[string]any{
		"userId": "u1", "itemId": "i1", "date": "2024-01-01", "value": "N", "familyId": "f1",
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.Add(ctx, docstore.ColEntries, map[string]any{
		"userId": "u1", "itemId": "i1", "date": "2024-01-01", "value": "N", "familyId": "f1",
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := w.Save(ctx, admin, []Input{{UserID: "u1", ItemID: "i1", Date: "2024-01-01", Value: model.Yes()}}, "f1"); err != nil {
		t.Fatalf("save: %v", err)
	}

	got := queryEntries(t, store)
	if len(got) != 2 {
		t.Fatalf("expected the 2 seeded records, got %d", len(got))
	}
	for _, e := range got {
		if e.ID == first && !e.Value.IsYes() {
			t.Error("oldest duplicate was not the one updated")
		}
	}
}

func TestSaveMixedBatch(t *testing.T) {
	w, store := setupWriter(t)
	ctx := context.Background()

	if err := w.Save(ctx, admin, []Input{
		{UserID: "u1", ItemID: "i1", Date: "2024-01-01", Value: model.No()},
	}, "f1"); err != nil {
		t.Fatalf("seed save: %v", err)
	}

	// One update, one insert, in a single batch.
	if err := w.Save(ctx, admin, []Input{
		{UserID: "u1", ItemID: "i1", Date: "2024-01-01", Value: model.Yes()},
		{UserID: "u1", ItemID: "i2", Date: "2024-01-01", Value: model.Number(7)},
	}, "f1"); err != nil {
		t.Fatalf("save: %v", err)
	}

	got := queryEntries(t, store)
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}

	byItem := make(map[string]model.EvaluationEntry)
	for _, e := range got {
		byItem[e.ItemID] = e
	}
	if !byItem["i1"].Value.IsYes() {
		t.Errorf("i1 value = %v, want Y", byItem["i1"].Value)
	}
	if byItem["i2"].Value.Float() != 7 {
		t.Errorf("i2 value = %v, want 7", byItem["i2"].Value)
	}
}

func TestSaveAttachesFamilyID(t *testing.T) {
	w, store := setupWriter(t)
	ctx := context.Background()

	if err := w.Save(ctx, admin, []Input{{UserID: "u1", ItemID: "i1", Date: "2024-01-01", Value: model.Yes()}}, "f1"); err != nil {
		t.Fatalf("save: %v", err)
	}
	// A later save for the same triple moves the entry to the new family.
	if err := w.Save(ctx, admin, []Input{{UserID: "u1", ItemID: "i1", Date: "2024-01-01", Value: model.Yes()}}, "f2"); err != nil {
		t.Fatalf("save: %v", err)
	}

	got := queryEntries(t, store)
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0].FamilyID != "f2" {
		t.Errorf("familyId = %s, want f2", got[0].FamilyID)
	}
}

func TestSaveNormalizesOneTimeDates(t *testing.T) {
	w, store := setupWriter(t)
	ctx := context.Background()

	itemID, err := store.Add(ctx, docstore.ColItems, model.EvaluationItem{
		ItemName: "Confession", Type: model.ItemTypeOneTime, Price: 50,
	})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}

	pd, err := model.NewPeriodDoc("2024-01-01", "2024-01-31")
	if err != nil {
		t.Fatalf("period doc: %v", err)
	}
	if err := store.Set(ctx, docstore.ColPeriods, docstore.DocCurrentPeriod, pd); err != nil {
		t.Fatalf("set period: %v", err)
	}

	// Submitted mid-period; must be stored at the period start.
	if err := w.Save(ctx, admin, []Input{{UserID: "u1", ItemID: itemID, Date: "2024-01-15", Value: model.Yes()}}, "f1"); err != nil {
		t.Fatalf("save: %v", err)
	}

	got := queryEntries(t, store)
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0].Date != "2024-01-01" {
		t.Errorf("date = %s, want 2024-01-01 (period start)", got[0].Date)
	}

	// Saving again under yet another date still hits the same record.
	if err := w.Save(ctx, admin, []Input{{UserID: "u1", ItemID: itemID, Date: "2024-01-20", Value: model.No()}}, "f1"); err != nil {
		t.Fatalf("save: %v", err)
	}
	got = queryEntries(t, store)
	if len(got) != 1 {
		t.Fatalf("one-time item grew %d records, want 1", len(got))
	}
}

func TestSaveEmptyInput(t *testing.T) {
	w, _ := setupWriter(t)

	if err := w.Save(context.Background(), admin, nil, "f1"); err != nil {
		t.Fatalf("empty save should be a no-op, got %v", err)
	}
}
