// Package evaluation persists submitted evaluation entries. The store has no
// compound unique key, so the (user, item, date) uniqueness invariant lives
// here: every save resolves existing records first and updates them in place
// instead of inserting duplicates.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/mizan/internal/docstore"
	"github.com/dukerupert/mizan/internal/model"
)

var (
	// ErrNoViewer rejects saves with nobody to attribute the write to.
	ErrNoViewer = errors.New("no signed-in viewer")
	// ErrSaveDisabled rejects saves while the global kill-switch is off.
	ErrSaveDisabled = errors.New("evaluation saving is disabled")
)

// Input is one submitted (user, item, date, value) tuple.
type Input struct {
	UserID string      `json:"userId"`
	ItemID string      `json:"itemId"`
	Date   string      `json:"date"`
	Value  model.Value `json:"value"`
}

type Writer struct {
	store  *docstore.Store
	logger *slog.Logger
}

func NewWriter(store *docstore.Store, logger *slog.Logger) *Writer {
	return &Writer{store: store, logger: logger}
}

// Save upserts the given entries in one atomic batch. Entries for one-time
// items are normalized to the active period's start date before the
// duplicate lookup, so that item type can only ever have one record per
// user. Either every entry applies or none do.
func (w *Writer) Save(ctx context.Context, viewer *model.User, entries []Input, familyID string) error {
	if viewer == nil {
		return ErrNoViewer
	}

	enabled, err := w.saveEnabled(ctx)
	if err != nil {
		return err
	}
	if !enabled {
		return ErrSaveDisabled
	}

	if len(entries) == 0 {
		return nil
	}

	entries, err = w.normalizeOneTime(ctx, entries)
	if err != nil {
		return err
	}

	// One duplicate lookup per entry; they are independent reads and may
	// run concurrently.
	matches := make([]string, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	for i, e := range entries {
		g.Go(func() error {
			docs, err := w.store.Query(gctx, docstore.ColEntries,
				docstore.Where("userId", e.UserID),
				docstore.Where("itemId", e.ItemID),
				docstore.Where("date", e.Date),
			)
			if err != nil {
				return err
			}
			if len(docs) > 0 {
				// Oldest record wins; Query orders by creation.
				matches[i] = docs[0].ID
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("resolve existing entries: %w", err)
	}

	batch := w.store.NewBatch()
	for i, e := range entries {
		if matches[i] == "" {
			batch.Add(docstore.ColEntries, map[string]any{
				"userId":   e.UserID,
				"itemId":   e.ItemID,
				"date":     e.Date,
				"value":    e.Value,
				"familyId": familyID,
			})
		} else {
			batch.Update(docstore.ColEntries, matches[i], map[string]any{
				"value":    e.Value,
				"familyId": familyID,
			})
		}
	}

	if err := w.store.Commit(ctx, batch); err != nil {
		return fmt.Errorf("save evaluations: %w", err)
	}

	w.logger.Info("evaluations saved",
		"count", len(entries), "family_id", familyID, "saved_by", viewer.UID)
	return nil
}

// saveEnabled reads the controls singleton; an absent document means saving
// is enabled.
func (w *Writer) saveEnabled(ctx context.Context) (bool, error) {
	doc, err := w.store.Get(ctx, docstore.ColSettings, docstore.DocControls)
	if err != nil {
		return false, fmt.Errorf("read controls: %w", err)
	}
	if doc == nil {
		return true, nil
	}

	var controls model.EvaluationControls
	if err := doc.Decode(&controls); err != nil {
		return false, err
	}
	return controls.SaveEnabled, nil
}

// normalizeOneTime rewrites the date of every one-time-item entry to the
// active period's start date. The input slice is left untouched.
func (w *Writer) normalizeOneTime(ctx context.Context, entries []Input) ([]Input, error) {
	docs, err := w.store.Query(ctx, docstore.ColItems)
	if err != nil {
		return nil, fmt.Errorf("read items: %w", err)
	}

	oneTime := make(map[string]bool)
	for _, doc := range docs {
		var item model.EvaluationItem
		if err := doc.Decode(&item); err != nil {
			return nil, err
		}
		if item.Type == model.ItemTypeOneTime {
			oneTime[doc.ID] = true
		}
	}
	if len(oneTime) == 0 {
		return entries, nil
	}

	periodDoc, err := w.store.Get(ctx, docstore.ColPeriods, docstore.DocCurrentPeriod)
	if err != nil {
		return nil, fmt.Errorf("read period: %w", err)
	}
	if periodDoc == nil {
		// No active period: nothing to normalize against.
		return entries, nil
	}
	var pd model.PeriodDoc
	if err := periodDoc.Decode(&pd); err != nil {
		return nil, err
	}
	start := pd.CalendarPeriod().From

	normalized := make([]Input, len(entries))
	copy(normalized, entries)
	for i := range normalized {
		if oneTime[normalized[i].ItemID] {
			normalized[i].Date = start
		}
	}
	return normalized, nil
}
