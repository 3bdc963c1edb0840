package docstore

import (
	"context"
	"sync"
)

// Event is one delivery on a live subscription: a fresh collection snapshot,
// a fresh singleton document (nil when absent), or an error. An error leaves
// the subscription open; the previous snapshot stays valid.
type Event struct {
	Docs []Document
	Doc  *Document
	Err  error
}

// Subscription is a live query handle. Events arrive on C in the order the
// store commits writes; bursts coalesce so a slow consumer always sees the
// latest snapshot next. Cancel stops delivery and releases the registration.
type Subscription struct {
	C <-chan Event

	w *watcher
}

func (s *Subscription) Cancel() {
	s.w.stop()
}

type watcher struct {
	id         int64
	store      *Store
	collection string
	filters    []Filter
	docID      string
	isDoc      bool

	events   chan Event
	trigger  chan struct{}
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// Watch opens a live filtered query over a collection. The initial snapshot
// is delivered first, then one snapshot per committed write touching the
// collection, until the context ends or Cancel is called.
func (s *Store) Watch(ctx context.Context, collection string, filters ...Filter) *Subscription {
	return s.startWatcher(ctx, &watcher{
		collection: collection,
		filters:    filters,
	})
}

// WatchDoc opens a live point query on a single document, for the singleton
// records (active period, evaluation controls). Absence is delivered as a
// nil Doc, not an error.
func (s *Store) WatchDoc(ctx context.Context, collection, id string) *Subscription {
	return s.startWatcher(ctx, &watcher{
		collection: collection,
		docID:      id,
		isDoc:      true,
	})
}

func (s *Store) startWatcher(ctx context.Context, w *watcher) *Subscription {
	w.store = s
	w.events = make(chan Event, 1)
	w.trigger = make(chan struct{}, 1)
	w.done = make(chan struct{})
	w.stopped = make(chan struct{})

	s.mu.Lock()
	s.nextID++
	w.id = s.nextID
	s.watchers[w.id] = w
	s.mu.Unlock()

	go w.run(ctx)

	return &Subscription{C: w.events, w: w}
}

func (w *watcher) run(ctx context.Context) {
	defer func() {
		w.store.mu.Lock()
		delete(w.store.watchers, w.id)
		w.store.mu.Unlock()
		// run is the only sender, so consumers ranging over C see it end.
		close(w.events)
		close(w.stopped)
	}()

	// Initial snapshot, then one per notification.
	w.deliver(ctx)
	for {
		select {
		case <-w.trigger:
			w.deliver(ctx)
		case <-ctx.Done():
			return
		case <-w.done:
			return
		}
	}
}

func (w *watcher) deliver(ctx context.Context) {
	var ev Event
	if w.isDoc {
		doc, err := w.store.Get(ctx, w.collection, w.docID)
		ev = Event{Doc: doc, Err: err}
	} else {
		docs, err := w.store.Query(ctx, w.collection, w.filters...)
		ev = Event{Docs: docs, Err: err}
	}

	// Coalesce: replace an unread event so the consumer always gets the
	// latest snapshot, never a stale backlog.
	select {
	case <-w.events:
	default:
	}

	select {
	case w.events <- ev:
	case <-ctx.Done():
	case <-w.done:
	}
}

func (w *watcher) stop() {
	w.stopOnce.Do(func() { close(w.done) })
	<-w.stopped
}

// notify wakes every watcher registered on the collection. Called after each
// committed write; watchers requery on their own goroutines, so commit order
// is delivery order per subscription.
func (s *Store) notify(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range s.watchers {
		if w.collection != collection {
			continue
		}
		select {
		case w.trigger <- struct{}{}:
		default:
		}
	}
}
