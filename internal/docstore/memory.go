package docstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps documents in process memory. Subscribers are
// notified synchronously before the write call returns.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Fields
	clock       Clock
	hub         *hub
	newID       func() string
	unique      map[string][]string
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the server clock.
func WithClock(clock Clock) MemoryOption {
	return func(s *MemoryStore) { s.clock = clock }
}

// WithIDGenerator overrides document id generation.
func WithIDGenerator(gen func() string) MemoryOption {
	return func(s *MemoryStore) { s.newID = gen }
}

// WithUniqueField rejects creates in collection whose field value is
// already taken, mirroring a unique index.
func WithUniqueField(collection, field string) MemoryOption {
	return func(s *MemoryStore) {
		if s.unique == nil {
			s.unique = make(map[string][]string)
		}
		s.unique[collection] = append(s.unique[collection], field)
	}
}

// NewMemoryStore builds an empty store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		collections: make(map[string]map[string]Fields),
		clock:       time.Now,
		hub:         newHub(),
		newID:       func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) now() time.Time {
	return s.clock().UTC()
}

// Create stores data under a generated id.
func (s *MemoryStore) Create(ctx context.Context, collection string, data Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resolved, err := resolveMap(data, s.now())
	if err != nil {
		return "", fmt.Errorf("create %s: %w", collection, err)
	}
	id := s.newID()

	s.mu.Lock()
	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]Fields)
		s.collections[collection] = coll
	}
	if field, taken := s.takenLocked(coll, collection, Fields(resolved)); taken {
		s.mu.Unlock()
		return "", fmt.Errorf("create %s: %s: %w", collection, field, ErrConflict)
	}
	coll[id] = Fields(resolved)
	doc := Document{ID: id, Collection: collection, Data: Fields(resolved).Clone()}
	s.mu.Unlock()

	s.publish(ctx, Change{Type: ChangeCreated, Collection: collection, ID: id, Document: &doc})
	return id, nil
}

func (s *MemoryStore) takenLocked(coll map[string]Fields, collection string, data Fields) (string, bool) {
	for _, field := range s.unique[collection] {
		value, ok := data.Lookup(field)
		if !ok || value == nil {
			continue
		}
		for _, existing := range coll {
			if current, ok := existing.Lookup(field); ok && valuesEqual(current, value) {
				return field, true
			}
		}
	}
	return "", false
}

// Get returns a copy of the document.
func (s *MemoryStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return &Document{ID: id, Collection: collection, Data: data.Clone()}, nil
}

// Query filters, orders and limits a collection.
func (s *MemoryStore) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	s.mu.RLock()
	docs := make([]Document, 0)
	for id, data := range s.collections[q.Collection] {
		if Matches(data, q.Filters) {
			docs = append(docs, Document{ID: id, Collection: q.Collection, Data: data.Clone()})
		}
	}
	s.mu.RUnlock()

	sortDocuments(docs, q.OrderBy)
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs, nil
}

// Update applies a partial write.
func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	_, err := s.UpdateIf(ctx, collection, id, nil, fields)
	return err
}

// UpdateIf applies a partial write when conds hold.
func (s *MemoryStore) UpdateIf(ctx context.Context, collection, id string, conds []Filter, fields Fields) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	data, ok := s.collections[collection][id]
	if !ok {
		s.mu.Unlock()
		return false, ErrNotFound
	}
	if !Matches(data, conds) {
		s.mu.Unlock()
		return false, nil
	}
	next := data.Clone()
	if err := applyFields(next, fields, s.now()); err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	s.collections[collection][id] = next
	doc := Document{ID: id, Collection: collection, Data: next.Clone()}
	s.mu.Unlock()

	s.publish(ctx, Change{Type: ChangeUpdated, Collection: collection, ID: id, Document: &doc})
	return true, nil
}

// Delete removes a document.
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	data, ok := s.collections[collection][id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.collections[collection], id)
	s.mu.Unlock()

	s.publish(ctx, Change{Type: ChangeDeleted, Collection: collection, ID: id, Document: &Document{ID: id, Collection: collection, Data: data}})
	return nil
}

// SubscribeDoc delivers the document now and after every change to it.
func (s *MemoryStore) SubscribeDoc(collection, id string, fn DocHandler) (Unsubscribe, error) {
	return s.hub.addDoc(collection, id, fn, s.Get), nil
}

// SubscribeQuery delivers the result set now and after every change in
// the collection.
func (s *MemoryStore) SubscribeQuery(q Query, fn QueryHandler) (Unsubscribe, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	return s.hub.addQuery(q, fn, s.Query), nil
}

// Watch registers a trigger for every committed change in collection.
func (s *MemoryStore) Watch(collection string, fn ChangeHandler) Unsubscribe {
	return s.hub.addWatcher(collection, fn)
}

func (s *MemoryStore) publish(ctx context.Context, change Change) {
	s.hub.publish(context.WithoutCancel(ctx), change, s.Query, s.Get)
}
