package docstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// hub fans committed changes out to watchers and re-evaluates live
// subscriptions. Delivery to a single subscription is serialized.
type hub struct {
	mu       sync.Mutex
	nextID   uint64
	queries  map[uint64]*querySub
	docs     map[uint64]*docSub
	watchers map[uint64]*watcher
}

type querySub struct {
	q       Query
	fn      QueryHandler
	deliver sync.Mutex
	closed  atomic.Bool
}

type docSub struct {
	collection string
	id         string
	fn         DocHandler
	deliver    sync.Mutex
	closed     atomic.Bool
}

type watcher struct {
	collection string
	fn         ChangeHandler
	closed     atomic.Bool
}

func newHub() *hub {
	return &hub{
		queries:  make(map[uint64]*querySub),
		docs:     make(map[uint64]*docSub),
		watchers: make(map[uint64]*watcher),
	}
}

type (
	queryFetcher func(ctx context.Context, q Query) ([]Document, error)
	docFetcher   func(ctx context.Context, collection, id string) (*Document, error)
)

func (h *hub) addQuery(q Query, fn QueryHandler, fetch queryFetcher) Unsubscribe {
	sub := &querySub{q: q, fn: fn}
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.queries[id] = sub
	h.mu.Unlock()

	h.deliverQuery(context.Background(), sub, fetch)
	return func() {
		sub.closed.Store(true)
		h.mu.Lock()
		delete(h.queries, id)
		h.mu.Unlock()
	}
}

func (h *hub) addDoc(collection, docID string, fn DocHandler, fetch docFetcher) Unsubscribe {
	sub := &docSub{collection: collection, id: docID, fn: fn}
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.docs[id] = sub
	h.mu.Unlock()

	h.deliverDoc(context.Background(), sub, fetch)
	return func() {
		sub.closed.Store(true)
		h.mu.Lock()
		delete(h.docs, id)
		h.mu.Unlock()
	}
}

func (h *hub) addWatcher(collection string, fn ChangeHandler) Unsubscribe {
	w := &watcher{collection: collection, fn: fn}
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.watchers[id] = w
	h.mu.Unlock()
	return func() {
		w.closed.Store(true)
		h.mu.Lock()
		delete(h.watchers, id)
		h.mu.Unlock()
	}
}

// publish notifies subscribers of a committed change. Query and document
// subscriptions on the collection are re-evaluated through the fetchers.
func (h *hub) publish(ctx context.Context, change Change, fetchQuery queryFetcher, fetchDoc docFetcher) {
	h.mu.Lock()
	queries := make([]*querySub, 0, len(h.queries))
	for _, sub := range h.queries {
		if sub.q.Collection == change.Collection {
			queries = append(queries, sub)
		}
	}
	docs := make([]*docSub, 0)
	for _, sub := range h.docs {
		if sub.collection == change.Collection && sub.id == change.ID {
			docs = append(docs, sub)
		}
	}
	watchers := make([]*watcher, 0, len(h.watchers))
	for _, w := range h.watchers {
		if w.collection == change.Collection {
			watchers = append(watchers, w)
		}
	}
	h.mu.Unlock()

	for _, sub := range docs {
		h.deliverDoc(ctx, sub, fetchDoc)
	}
	for _, sub := range queries {
		h.deliverQuery(ctx, sub, fetchQuery)
	}
	for _, w := range watchers {
		if !w.closed.Load() {
			w.fn(ctx, change)
		}
	}
}

func (h *hub) deliverQuery(ctx context.Context, sub *querySub, fetch queryFetcher) {
	sub.deliver.Lock()
	defer sub.deliver.Unlock()
	if sub.closed.Load() {
		return
	}
	docs, err := fetch(ctx, sub.q)
	if sub.closed.Load() {
		return
	}
	sub.fn(docs, err)
}

func (h *hub) deliverDoc(ctx context.Context, sub *docSub, fetch docFetcher) {
	sub.deliver.Lock()
	defer sub.deliver.Unlock()
	if sub.closed.Load() {
		return
	}
	doc, err := fetch(ctx, sub.collection, sub.id)
	if errors.Is(err, ErrNotFound) {
		doc, err = nil, nil
	}
	if sub.closed.Load() {
		return
	}
	sub.fn(doc, err)
}

// closeAll drops every subscription.
func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.queries {
		sub.closed.Store(true)
		delete(h.queries, id)
	}
	for id, sub := range h.docs {
		sub.closed.Store(true)
		delete(h.docs, id)
	}
	for id, w := range h.watchers {
		w.closed.Store(true)
		delete(h.watchers, id)
	}
}
