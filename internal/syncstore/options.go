// Package syncstore keeps in-memory mirrors of document store queries for
// interactive clients and applies writes optimistically.
package syncstore

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrNotInitialized is returned by writes issued before a scope is live.
var ErrNotInitialized = errors.New("syncstore: scope not initialized")

// TempIDPrefix marks entities that exist only in the local mirror.
const TempIDPrefix = "temp-"

type options struct {
	logger *zap.Logger
	clock  func() time.Time
	limit  int
}

// Option configures a store.
type Option func(*options)

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock overrides the clock used for optimistic timestamps and edit
// eligibility.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithLimit bounds the number of mirrored tickets.
func WithLimit(limit int) Option {
	return func(o *options) { o.limit = limit }
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// tempIDs hands out placeholder ids from a monotonic sequence.
type tempIDs struct {
	seq atomic.Uint64
}

func (t *tempIDs) next() string {
	return fmt.Sprintf("%s%d", TempIDPrefix, t.seq.Add(1))
}

// IsTempID reports whether id is a local placeholder.
func IsTempID(id string) bool {
	return len(id) > len(TempIDPrefix) && id[:len(TempIDPrefix)] == TempIDPrefix
}
