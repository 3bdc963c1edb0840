package sync

import (
	"context"
	"fmt"

	"github.com/dukerupert/mizan/internal/docstore"
	"github.com/dukerupert/mizan/internal/model"
)

// Load reads a one-shot snapshot scoped exactly like a live manager would
// scope it for the same viewer. Request handlers use this when they need
// current state without holding a subscription open.
func Load(ctx context.Context, store *docstore.Store, viewer *model.User) (Snapshot, error) {
	snap := Snapshot{Controls: model.EvaluationControls{SaveEnabled: true}}

	famDocs, err := store.Query(ctx, docstore.ColFamilies)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load families: %w", err)
	}
	if snap.Families, err = decodeFamilies(famDocs); err != nil {
		return Snapshot{}, fmt.Errorf("decode families: %w", err)
	}

	if viewer == nil {
		return snap, nil
	}

	itemDocs, err := store.Query(ctx, docstore.ColItems)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load items: %w", err)
	}
	if snap.Items, err = decodeItems(itemDocs); err != nil {
		return Snapshot{}, fmt.Errorf("decode items: %w", err)
	}

	periodDoc, err := store.Get(ctx, docstore.ColPeriods, docstore.DocCurrentPeriod)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load period: %w", err)
	}
	if snap.Period, err = decodePeriod(periodDoc); err != nil {
		return Snapshot{}, fmt.Errorf("decode period: %w", err)
	}

	controlsDoc, err := store.Get(ctx, docstore.ColSettings, docstore.DocControls)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load controls: %w", err)
	}
	if snap.Controls, err = decodeControls(controlsDoc); err != nil {
		return Snapshot{}, fmt.Errorf("decode controls: %w", err)
	}

	var entryFilters []docstore.Filter
	if viewer.IsAdmin() {
		userDocs, err := store.Query(ctx, docstore.ColUsers)
		if err != nil {
			return Snapshot{}, fmt.Errorf("load users: %w", err)
		}
		if snap.Users, err = decodeUsers(userDocs); err != nil {
			return Snapshot{}, fmt.Errorf("decode users: %w", err)
		}
	} else {
		entryFilters = append(entryFilters, docstore.Where("userId", viewer.UID))
	}

	entryDocs, err := store.Query(ctx, docstore.ColEntries, entryFilters...)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load evaluations: %w", err)
	}
	if snap.Entries, err = decodeEntries(entryDocs); err != nil {
		return Snapshot{}, fmt.Errorf("decode evaluations: %w", err)
	}

	return snap, nil
}
