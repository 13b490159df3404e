package domain

import (
	"context"
	"time"
)

// RateLimiter throttles API clients (Allow) and outbound analysis calls
// (Wait). Implementations are shared across server replicas.
type RateLimiter interface {
	// Allow reports whether one more request fits in key's window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// Wait blocks until key may proceed or ctx ends.
	Wait(ctx context.Context, key string) error
}

// LockManager guards jobs that must not overlap across processes, such as
// the snapshot export. Acquire returns ErrLockHeld when another holder owns
// key.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage is one entry of the durable event stream. ID is ordered and
// may be passed back as lastID to resume after it.
type StreamMessage struct {
	ID      string `json:"id"`
	Payload []byte `json:"payload"`
}

// SignalBus carries domain events: a live channel for WebSocket fan-out and a
// capped stream for replay.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	// StreamRead returns up to count entries after lastID. "0" reads from
	// the beginning.
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
