// Package memory provides an in-process SignalBus for tests and
// single-instance ephemeral runs.
package memory

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/domain"
)

const subscriberBuffer = 128

type subscriber struct {
	pattern string
	ch      chan []byte
}

// Bus implements domain.SignalBus in memory. Publish never blocks: a
// subscriber whose buffer is full misses the message, matching Redis
// Pub/Sub's at-most-once delivery.
type Bus struct {
	mu      sync.Mutex
	subs    map[*subscriber]struct{}
	streams map[string][]domain.StreamMessage
	seq     uint64
	maxLen  int
}

// NewBus creates a Bus that keeps at most maxLen entries per stream.
func NewBus(maxLen int) *Bus {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &Bus{
		subs:    make(map[*subscriber]struct{}),
		streams: make(map[string][]domain.StreamMessage),
		maxLen:  maxLen,
	}
}

func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		if !matches(s.pattern, channel) {
			continue
		}
		msg := append([]byte(nil), payload...)
		select {
		case s.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of payloads published to channel, which may
// be a glob pattern. The channel is closed when ctx ends.
func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	if _, err := path.Match(channel, ""); err != nil {
		return nil, fmt.Errorf("memory: subscribe %s: %w", channel, err)
	}
	s := &subscriber{pattern: channel, ch: make(chan []byte, subscriberBuffer)}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, s)
		close(s.ch)
		b.mu.Unlock()
	}()
	return s.ch, nil
}

func (b *Bus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	entries := append(b.streams[stream], domain.StreamMessage{
		ID:      fmt.Sprintf("0-%d", b.seq),
		Payload: append([]byte(nil), payload...),
	})
	if len(entries) > b.maxLen {
		entries = entries[len(entries)-b.maxLen:]
	}
	b.streams[stream] = entries
	return nil
}

// StreamRead returns up to count entries after lastID ("0" reads from the
// start, "$" returns nothing).
func (b *Bus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if lastID == "$" {
		return nil, nil
	}
	after, err := seqOf(lastID)
	if err != nil {
		return nil, fmt.Errorf("memory: stream read %s: %w: %w", stream, domain.ErrInvalidInput, err)
	}
	var out []domain.StreamMessage
	for _, m := range b.streams[stream] {
		seq, _ := seqOf(m.ID)
		if seq <= after {
			continue
		}
		out = append(out, m)
		if count > 0 && len(out) == count {
			break
		}
	}
	return out, nil
}

func seqOf(id string) (uint64, error) {
	if id == "" || id == "0" {
		return 0, nil
	}
	_, seq, ok := strings.Cut(id, "-")
	if !ok {
		seq = id
	}
	return strconv.ParseUint(seq, 10, 64)
}

func matches(pattern, channel string) bool {
	if pattern == channel {
		return true
	}
	if !strings.ContainsAny(pattern, "*?[") {
		return false
	}
	ok, _ := path.Match(pattern, channel)
	return ok
}

var _ domain.SignalBus = (*Bus)(nil)
