package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/domain"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), ClientConfig{Addr: mr.Addr(), PoolSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestNewFailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), ClientConfig{Addr: addr, MaxRetries: -1})
	require.Error(t, err)
}

func TestLockManager(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "export", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:export"))

	_, err = lm.Acquire(ctx, "export", time.Minute)
	assert.True(t, errors.Is(err, domain.ErrLockHeld))

	unlock()
	unlock()
	assert.False(t, mr.Exists("lock:export"))

	unlock2, err := lm.Acquire(ctx, "export", time.Minute)
	require.NoError(t, err)
	defer unlock2()
}

func TestLockUnlockLeavesForeignHolderAlone(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "job", time.Second)
	require.NoError(t, err)

	// Simulate expiry followed by another process taking the lock.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("lock:job", "someone-else"))

	unlock()
	got, err := mr.Get("lock:job")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c)
	ctx := context.Background()

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "client", 3, time.Second)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
		clock = clock.Add(time.Millisecond)
	}
	ok, err := rl.Allow(ctx, "client", 3, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, "other", 3, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	clock = clock.Add(1100 * time.Millisecond)
	ok, err = rl.Allow(ctx, "client", 3, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiterWaitHonoursContext(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c).WithWaitLimit(1, time.Hour)

	require.NoError(t, rl.Wait(context.Background(), "k"))

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	err := rl.Wait(ctx, "k")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestSignalBusPublishSubscribe(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, domain.ChannelListing)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), domain.ChannelListing, []byte(`{"type":"industry.created"}`)))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"type":"industry.created"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestSignalBusStreams(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBusWithMaxLen(c, 100)
	ctx := context.Background()

	msgs, err := bus.StreamRead(ctx, domain.StreamEvents, "0", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	require.NoError(t, bus.StreamAppend(ctx, domain.StreamEvents, []byte("a")))
	require.NoError(t, bus.StreamAppend(ctx, domain.StreamEvents, []byte("b")))

	msgs, err = bus.StreamRead(ctx, domain.StreamEvents, "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte("a"), msgs[0].Payload)

	rest, err := bus.StreamRead(ctx, domain.StreamEvents, msgs[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, []byte("b"), rest[0].Payload)
}

func TestWrapSharesConnection(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	c := Wrap(rdb)
	require.NoError(t, c.Ping(context.Background()))
	assert.Same(t, rdb, c.Underlying())
}

func TestClientOptionsFromURL(t *testing.T) {
	opts, err := options(ClientConfig{Addr: "redis://:secret@cache.internal:6380/3", PoolSize: 8})
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, 8, opts.PoolSize)
	assert.Nil(t, opts.TLSConfig)

	opts, err = options(ClientConfig{Addr: "localhost:6379", Password: "pw", TLSEnabled: true})
	require.NoError(t, err)
	assert.Equal(t, "pw", opts.Password)
	assert.NotNil(t, opts.TLSConfig)

	_, err = options(ClientConfig{Addr: "http://nope"})
	assert.Error(t, err)
}

func TestSignalBusStreamSkipsForeignEntries(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)
	ctx := context.Background()

	require.NoError(t, c.Underlying().XAdd(ctx, &goredis.XAddArgs{
		Stream: domain.StreamEvents,
		Values: []any{"other", "x"},
	}).Err())
	require.NoError(t, bus.StreamAppend(ctx, domain.StreamEvents, []byte(`{"type":"industry.created"}`)))

	msgs, err := bus.StreamRead(ctx, domain.StreamEvents, "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"type":"industry.created"}`, string(msgs[0].Payload))
}
