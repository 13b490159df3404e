package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/domain"
)

func TestSessionAccumulatesAndCompletes(t *testing.T) {
	s := NewSession()
	require.NoError(t, s.Start())

	s.Feed(`{"reasoning":"A"}`)
	s.Feed(`{"reasoning":"B","content":"X"}`)
	s.Complete()

	assert.Equal(t, StateCompleted, s.State())
	assert.Equal(t, domain.StreamAnalysisState{Reasoning: "AB", Content: "X"}, s.Phase())

	res, ok := s.Result()
	require.True(t, ok)
	assert.Equal(t, "X", res.Prediction)
	assert.True(t, res.Success)
	assert.NoError(t, s.Err())
}

func TestSessionErrorChunkFails(t *testing.T) {
	s := NewSession()
	require.NoError(t, s.Start())

	s.Feed(`{"error":"boom"}`)

	assert.Equal(t, StateFailed, s.State())
	require.Error(t, s.Err())
	assert.Equal(t, "boom", s.Err().Error())
	_, ok := s.Result()
	assert.False(t, ok)

	// Terminal states ignore further input.
	s.Feed("late")
	s.Complete()
	assert.Equal(t, StateFailed, s.State())
	assert.Equal(t, "", s.Phase().Content)
}

func TestSessionEmptyErrorUsesDefault(t *testing.T) {
	s := NewSession()
	require.NoError(t, s.Start())
	s.Feed(`{"error":null}`)
	assert.EqualError(t, s.Err(), "unknown error")
}

func TestSessionPlainTextAppendsContent(t *testing.T) {
	s := NewSession()
	require.NoError(t, s.Start())

	s.Feed("hello")
	s.Feed(`{"content": "broken`)

	assert.Equal(t, `hello{"content": "broken`, s.Phase().Content)
	assert.Equal(t, StateStreaming, s.State())
}

func TestSessionTextChunksKeepWhitespace(t *testing.T) {
	s := NewSession()
	require.NoError(t, s.Start())

	s.Feed("Hello ")
	s.Feed(" world")
	assert.Equal(t, "Hello  world", s.Phase().Content)

	s.Complete()
	res, ok := s.Result()
	require.True(t, ok)
	assert.Equal(t, "Hello  world", res.Prediction)
}

func TestSessionIgnoresFeedWhenIdle(t *testing.T) {
	s := NewSession()
	s.Feed("hello")
	s.Complete()
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, "", s.Phase().Content)
}

func TestSessionStartResets(t *testing.T) {
	s := NewSession()
	require.NoError(t, s.Start())
	assert.ErrorIs(t, s.Start(), domain.ErrSessionActive)

	s.Feed("first")
	s.Fail(errors.New("dropped"))

	require.NoError(t, s.Start())
	assert.Equal(t, StateStreaming, s.State())
	assert.Equal(t, domain.StreamAnalysisState{}, s.Phase())
	assert.NoError(t, s.Err())
	_, ok := s.Result()
	assert.False(t, ok)
}

func TestSessionCancelReleasesOnceAndEmitsNothing(t *testing.T) {
	s := NewSession()
	updates, unsubscribe := s.Subscribe()
	defer unsubscribe()

	require.NoError(t, s.Start())
	<-updates // start snapshot

	released := 0
	s.bind(func() { released++ })

	s.Cancel()
	s.Cancel()

	assert.Equal(t, 1, released)
	assert.Equal(t, StateFailed, s.State())
	assert.ErrorIs(t, s.Err(), context.Canceled)

	s.Feed("after cancel")
	select {
	case u := <-updates:
		t.Fatalf("unexpected update after cancel: %+v", u)
	default:
	}
}

func TestSessionObservers(t *testing.T) {
	s := NewSession()
	updates, unsubscribe := s.Subscribe()

	require.NoError(t, s.Start())
	s.Feed(`{"reasoning":"A"}`)
	s.Feed("X")
	s.Complete()

	var got []Update
	for i := 0; i < 4; i++ {
		got = append(got, <-updates)
	}

	assert.Equal(t, StateStreaming, got[0].State)
	assert.Equal(t, "A", got[1].Phase.Reasoning)
	assert.Equal(t, "X", got[2].Phase.Content)
	assert.Equal(t, StateCompleted, got[3].State)
	require.NotNil(t, got[3].Result)
	assert.Equal(t, "X", got[3].Result.Prediction)

	unsubscribe()
	unsubscribe()
	_, open := <-updates
	assert.False(t, open)
}

func TestSessionSlowObserverKeepsLatest(t *testing.T) {
	s := NewSession()
	updates, unsubscribe := s.Subscribe()
	defer unsubscribe()

	require.NoError(t, s.Start())
	for i := 0; i < subscriberBuffer*3; i++ {
		s.Feed("x")
	}
	s.Complete()

	var last Update
	for len(updates) > 0 {
		last = <-updates
	}
	assert.Equal(t, StateCompleted, last.State)
}
