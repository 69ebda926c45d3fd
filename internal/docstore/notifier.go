package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ChangeNotice is the wire form of a committed change. Data carries the
// removed document for deletions only.
type ChangeNotice struct {
	Type       ChangeType `json:"type"`
	Collection string     `json:"collection"`
	ID         string     `json:"id"`
	Data       Fields     `json:"data,omitempty"`
}

// Notifier carries change notices between store instances.
type Notifier interface {
	Publish(ctx context.Context, notice ChangeNotice) error
	// Subscribe registers fn and returns once notices will be delivered.
	Subscribe(ctx context.Context, fn func(context.Context, ChangeNotice)) (stop func(), err error)
}

// LocalNotifier delivers notices synchronously inside one process.
type LocalNotifier struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]func(context.Context, ChangeNotice)
}

// NewLocalNotifier builds an in-process notifier.
func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{handlers: make(map[int]func(context.Context, ChangeNotice))}
}

// Publish invokes every registered handler.
func (n *LocalNotifier) Publish(ctx context.Context, notice ChangeNotice) error {
	n.mu.RLock()
	handlers := make([]func(context.Context, ChangeNotice), 0, len(n.handlers))
	for _, h := range n.handlers {
		handlers = append(handlers, h)
	}
	n.mu.RUnlock()
	for _, h := range handlers {
		h(ctx, notice)
	}
	return nil
}

// Subscribe registers a handler.
func (n *LocalNotifier) Subscribe(_ context.Context, fn func(context.Context, ChangeNotice)) (func(), error) {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.handlers[id] = fn
	n.mu.Unlock()
	return func() {
		n.mu.Lock()
		delete(n.handlers, id)
		n.mu.Unlock()
	}, nil
}

// RedisNotifier fans notices out over a Redis pub/sub channel so every
// process sharing the database sees every write.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisNotifier builds a notifier on channel.
func NewRedisNotifier(client *redis.Client, channel string, logger *zap.Logger) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel, logger: logger}
}

// Publish sends a notice to the channel.
func (n *RedisNotifier) Publish(ctx context.Context, notice ChangeNotice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, n.channel, payload).Err()
}

// Subscribe listens on the channel until stop is called.
func (n *RedisNotifier) Subscribe(ctx context.Context, fn func(context.Context, ChangeNotice)) (func(), error) {
	pubsub := n.client.Subscribe(ctx, n.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", n.channel, err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range pubsub.Channel() {
			var notice ChangeNotice
			if err := json.Unmarshal([]byte(msg.Payload), &notice); err != nil {
				n.logger.Warn("discarding malformed change notice", zap.String("channel", n.channel), zap.Error(err))
				continue
			}
			fn(listenCtx, notice)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			_ = pubsub.Close()
			<-done
		})
	}, nil
}
