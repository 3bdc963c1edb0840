// Package sync keeps a viewer-scoped in-memory view of the shared
// collections consistent with the document store as it changes. One Manager
// serves one viewer; its subscription scope follows the viewer's role and
// narrows or widens as the identity changes.
package sync

import (
	"context"
	"log/slog"
	stdsync "sync"

	"github.com/dukerupert/mizan/internal/docstore"
	"github.com/dukerupert/mizan/internal/model"
)

// Update is published after a store notification has been folded into the
// snapshot. It carries the collection that changed and a copy of the whole
// snapshot after the change.
type Update struct {
	Collection string
	Snapshot   Snapshot
}

const updateBufferSize = 64

// Manager owns the snapshot for one viewer. All mutation happens under its
// lock; consumers only ever see copies.
type Manager struct {
	store  *docstore.Store
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu      stdsync.Mutex
	viewer  *model.User
	gen     int
	cancels []func()
	snap    Snapshot

	updates chan Update
}

// NewManager starts a manager with no viewer: only the families collection
// is live (public enrollment needs it), everything else is empty.
func NewManager(ctx context.Context, store *docstore.Store, logger *slog.Logger) *Manager {
	ctx, cancel := context.WithCancel(ctx)
	m := &Manager{
		store:   store,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		updates: make(chan Update, updateBufferSize),
	}
	m.SetViewer(nil)
	return m
}

// Viewer returns a copy of the current viewer, or nil when signed out.
func (m *Manager) Viewer() *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.viewer == nil {
		return nil
	}
	v := *m.viewer
	return &v
}

// Snapshot returns a copy of the current snapshot.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.clone()
}

// Updates is the ordered stream of snapshot changes. When the consumer lags
// behind the buffer, updates are dropped oldest-first; every delivered
// update carries the full current snapshot, so the stream re-converges.
func (m *Manager) Updates() <-chan Update {
	return m.updates
}

// SetViewer applies an identity transition. Every live query belonging to
// the previous identity is cancelled before new ones open, and a generation
// counter keeps any stale callback that races the switch from mutating the
// snapshot after the scope changed.
func (m *Manager) SetViewer(u *model.User) {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	old := m.cancels
	m.cancels = nil

	if u != nil {
		v := *u
		m.viewer = &v
	} else {
		m.viewer = nil
	}

	// Reset scoped state; families refill from their reopened watch.
	m.snap = Snapshot{Controls: model.EvaluationControls{SaveEnabled: true}}
	m.mu.Unlock()

	for _, cancel := range old {
		cancel()
	}

	// Public scope: families only.
	m.watchCollection(gen, docstore.ColFamilies, func(s *Snapshot, docs []docstore.Document) error {
		families, err := decodeFamilies(docs)
		if err != nil {
			return err
		}
		s.Families = families
		return nil
	})

	if u == nil {
		m.publish(gen, "reset")
		return
	}

	// Any signed-in viewer: items, period, controls.
	m.watchCollection(gen, docstore.ColItems, func(s *Snapshot, docs []docstore.Document) error {
		items, err := decodeItems(docs)
		if err != nil {
			return err
		}
		s.Items = items
		return nil
	})
	m.watchDoc(gen, docstore.ColPeriods, docstore.DocCurrentPeriod, func(s *Snapshot, doc *docstore.Document) error {
		period, err := decodePeriod(doc)
		if err != nil {
			return err
		}
		s.Period = period
		return nil
	})
	m.watchDoc(gen, docstore.ColSettings, docstore.DocControls, func(s *Snapshot, doc *docstore.Document) error {
		controls, err := decodeControls(doc)
		if err != nil {
			return err
		}
		s.Controls = controls
		return nil
	})

	if u.IsAdmin() {
		// Admin scope: every user, every entry.
		m.watchCollection(gen, docstore.ColUsers, func(s *Snapshot, docs []docstore.Document) error {
			users, err := decodeUsers(docs)
			if err != nil {
				return err
			}
			s.Users = users
			return nil
		})
		m.watchCollection(gen, docstore.ColEntries, func(s *Snapshot, docs []docstore.Document) error {
			entries, err := decodeEntries(docs)
			if err != nil {
				return err
			}
			s.Entries = entries
			return nil
		})
	} else {
		// Member scope: own entries only, filtered in the store query so
		// other users' entries never reach this process's memory.
		m.watchCollection(gen, docstore.ColEntries, func(s *Snapshot, docs []docstore.Document) error {
			entries, err := decodeEntries(docs)
			if err != nil {
				return err
			}
			s.Entries = entries
			return nil
		}, docstore.Where("userId", u.UID))
	}

	// Follow the viewer's own user document so a role change reapplies the
	// subscription scope within one notification cycle.
	m.watchOwnUser(gen, u.ID)
}

// Close cancels every live query and stops the manager.
func (m *Manager) Close() {
	m.mu.Lock()
	m.gen++
	old := m.cancels
	m.cancels = nil
	m.mu.Unlock()

	for _, cancel := range old {
		cancel()
	}
	m.cancel()
}

func (m *Manager) watchCollection(gen int, collection string, apply func(*Snapshot, []docstore.Document) error, filters ...docstore.Filter) {
	sub := m.store.Watch(m.ctx, collection, filters...)
	if !m.register(gen, sub.Cancel) {
		return
	}

	go func() {
		for ev := range sub.C {
			if ev.Err != nil {
				// Degrade this one collection to its last snapshot; the
				// other subscriptions stay up.
				m.logger.Error("live query failed", "collection", collection, "error", ev.Err)
				continue
			}
			m.apply(gen, collection, func(s *Snapshot) error {
				return apply(s, ev.Docs)
			})
		}
	}()
}

func (m *Manager) watchDoc(gen int, collection, id string, apply func(*Snapshot, *docstore.Document) error) {
	sub := m.store.WatchDoc(m.ctx, collection, id)
	if !m.register(gen, sub.Cancel) {
		return
	}

	go func() {
		for ev := range sub.C {
			if ev.Err != nil {
				m.logger.Error("live query failed", "collection", collection, "doc", id, "error", ev.Err)
				continue
			}
			m.apply(gen, collection, func(s *Snapshot) error {
				return apply(s, ev.Doc)
			})
		}
	}()
}

// watchOwnUser re-scopes the manager when the viewer's role changes.
func (m *Manager) watchOwnUser(gen int, userID string) {
	sub := m.store.WatchDoc(m.ctx, docstore.ColUsers, userID)
	if !m.register(gen, sub.Cancel) {
		return
	}

	go func() {
		for ev := range sub.C {
			if ev.Err != nil {
				m.logger.Error("live query failed", "collection", docstore.ColUsers, "doc", userID, "error", ev.Err)
				continue
			}
			if ev.Doc == nil {
				continue
			}

			var u model.User
			if err := ev.Doc.Decode(&u); err != nil {
				m.logger.Error("decode own user", "error", err)
				continue
			}
			u.ID = ev.Doc.ID

			m.mu.Lock()
			stale := gen != m.gen
			changed := m.viewer != nil && m.viewer.Role != u.Role
			m.mu.Unlock()
			if stale {
				return
			}
			if changed {
				m.logger.Info("viewer role changed, re-scoping subscriptions",
					"uid", u.UID, "role", u.Role)
				m.SetViewer(&u)
				return
			}
		}
	}()
}

// register records a cancel handle under the generation it belongs to. A
// registration that lost the race to a newer generation is cancelled on the
// spot and never tracked.
func (m *Manager) register(gen int, cancel func()) bool {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		cancel()
		return false
	}
	m.cancels = append(m.cancels, cancel)
	m.mu.Unlock()
	return true
}

func (m *Manager) apply(gen int, collection string, fn func(*Snapshot) error) {
	m.mu.Lock()
	if gen != m.gen {
		// Stale callback from a cancelled scope; must not touch state.
		m.mu.Unlock()
		return
	}
	if err := fn(&m.snap); err != nil {
		m.mu.Unlock()
		m.logger.Error("apply snapshot", "collection", collection, "error", err)
		return
	}
	m.mu.Unlock()

	m.publish(gen, collection)
}

func (m *Manager) publish(gen int, collection string) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	update := Update{Collection: collection, Snapshot: m.snap.clone()}
	m.mu.Unlock()

	for {
		select {
		case m.updates <- update:
			return
		default:
			// Buffer full: drop the oldest update. Each update carries the
			// full snapshot, so the consumer still converges.
			select {
			case <-m.updates:
			default:
			}
		}
	}
}
