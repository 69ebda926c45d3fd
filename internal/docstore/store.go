// Package docstore is a collection-oriented document store with partial
// updates, conditional writes and push subscriptions.
package docstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrConflict is returned when a write would break a unique field.
var ErrConflict = errors.New("document conflicts with an existing one")

// Fields holds document data. Keys passed to Update may be dotted paths
// addressing nested objects.
type Fields map[string]any

// Document is a stored record.
type Document struct {
	ID         string
	Collection string
	Data       Fields
}

// Direction orders query results.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Operator compares a document field against a filter value.
type Operator string

const (
	OpEqual         Operator = "=="
	OpNotEqual      Operator = "!="
	OpLess          Operator = "<"
	OpLessEqual     Operator = "<="
	OpGreater       Operator = ">"
	OpGreaterEqual  Operator = ">="
	OpIn            Operator = "in"
	OpArrayContains Operator = "array-contains"
)

// Filter restricts a query to documents whose field satisfies Op against Value.
type Filter struct {
	Field string
	Op    Operator
	Value any
}

// Where builds a filter.
func Where(field string, op Operator, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// OrderBy sorts query results by a field.
type OrderBy struct {
	Field     string
	Direction Direction
}

// Query selects documents from a collection.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    *OrderBy
	Limit      int
}

// ChangeType classifies a committed write.
type ChangeType string

const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

// Change describes a committed write. For deletions Document holds the
// last stored state when the store still knows it.
type Change struct {
	Type       ChangeType
	Collection string
	ID         string
	Document   *Document
}

type (
	// DocHandler receives the current document, or nil once it is deleted.
	DocHandler func(doc *Document, err error)
	// QueryHandler receives the full ordered result set of a query.
	QueryHandler func(docs []Document, err error)
	// ChangeHandler receives every committed change of a collection.
	ChangeHandler func(ctx context.Context, change Change)
	// Unsubscribe cancels a subscription. It is safe to call more than once.
	Unsubscribe func()
)

// Store is the document store contract.
type Store interface {
	Create(ctx context.Context, collection string, data Fields) (string, error)
	Get(ctx context.Context, collection, id string) (*Document, error)
	Query(ctx context.Context, q Query) ([]Document, error)
	Update(ctx context.Context, collection, id string, fields Fields) error
	// UpdateIf applies fields only when every condition holds on the
	// current document. It reports whether the write was applied.
	UpdateIf(ctx context.Context, collection, id string, conds []Filter, fields Fields) (bool, error)
	Delete(ctx context.Context, collection, id string) error
	SubscribeDoc(collection, id string, fn DocHandler) (Unsubscribe, error)
	SubscribeQuery(q Query, fn QueryHandler) (Unsubscribe, error)
	Watch(collection string, fn ChangeHandler) Unsubscribe
}

type serverTimestamp struct{}

// ServerTimestamp asks the store to write its own clock reading.
var ServerTimestamp any = serverTimestamp{}

type increment struct{ delta float64 }

// Increment asks the store to add delta to a numeric field.
func Increment(delta int) any {
	return increment{delta: float64(delta)}
}

// Clock supplies server time to a store.
type Clock func() time.Time
