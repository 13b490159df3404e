package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/domain"
)

// State is the lifecycle position of a stream Session.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further chunks will be applied in this state.
func (s State) Terminal() bool { return s == StateCompleted || s == StateFailed }

// MarshalText renders the state name for JSON payloads.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

const unknownError = "unknown error"

const subscriberBuffer = 32

// Update is a snapshot emitted to observers after every applied chunk and on
// the terminal transition.
type Update struct {
	State  State
	Phase  domain.StreamAnalysisState
	Result *domain.NewsAnalysisResult
	Err    error
}

// Session is the stream ingestion state machine. Feed, Complete and Fail are
// expected to be driven by a single consumer; observers may subscribe from
// any goroutine.
type Session struct {
	mu        sync.Mutex
	state     State
	reasoning strings.Builder
	content   strings.Builder
	result    *domain.NewsAnalysisResult
	err       error
	release   func()

	subs   map[int]chan Update
	nextID int
}

// NewSession returns an idle session.
func NewSession() *Session {
	return &Session{subs: make(map[int]chan Update)}
}

// Start enters Streaming, clearing the accumulators and any previous result
// or error. A session that is already streaming returns ErrSessionActive.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateStreaming {
		return domain.ErrSessionActive
	}
	s.state = StateStreaming
	s.reasoning.Reset()
	s.content.Reset()
	s.result = nil
	s.err = nil
	s.release = nil
	s.emitLocked()
	return nil
}

// Feed classifies raw and applies it. Payloads arriving outside Streaming are
// ignored.
func (s *Session) Feed(raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStreaming {
		return
	}

	c := Classify(raw)
	switch c.Kind {
	case ChunkObject:
		if c.Error != nil {
			msg := *c.Error
			if msg == "" {
				msg = unknownError
			}
			s.failLocked(errors.New(msg))
			return
		}
		s.reasoning.WriteString(c.Reasoning)
		s.content.WriteString(c.Content)
	default:
		s.content.WriteString(c.Text)
	}
	s.emitLocked()
}

// Complete ends a streaming session successfully and builds the result from
// the accumulated content.
func (s *Session) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStreaming {
		return
	}
	res := BuildResult(s.content.String())
	s.result = &res
	s.state = StateCompleted
	s.release = nil
	s.emitLocked()
}

// Fail ends a streaming session with err. A nil err is reported as an
// unknown error.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStreaming {
		return
	}
	if err == nil {
		err = errors.New(unknownError)
	}
	s.failLocked(err)
}

// Cancel abandons a streaming session. The bound connection, if any, is
// released and observers receive nothing further for this session.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.state != StateStreaming {
		s.mu.Unlock()
		return
	}
	s.state = StateFailed
	s.err = context.Canceled
	release := s.release
	s.release = nil
	s.mu.Unlock()

	if release != nil {
		release()
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Phase returns the accumulated reasoning and content.
func (s *Session) Phase() domain.StreamAnalysisState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phaseLocked()
}

// Result returns the terminal result of a completed session.
func (s *Session) Result() (domain.NewsAnalysisResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return domain.NewsAnalysisResult{}, false
	}
	return *s.result, true
}

// Err returns the failure of a failed session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Snapshot returns the current state as an Update.
func (s *Session) Snapshot() Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers an observer. The returned func unsubscribes and closes
// the channel; it is safe to call more than once. Slow observers only ever
// lose intermediate snapshots, never the latest one.
func (s *Session) Subscribe() (<-chan Update, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Update, subscriberBuffer)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

// bind attaches the func that releases the underlying connection. It is a
// no-op unless the session is streaming.
func (s *Session) bind(release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStreaming {
		s.release = release
	}
}

func (s *Session) failLocked(err error) {
	s.state = StateFailed
	s.err = err
	s.release = nil
	s.emitLocked()
}

func (s *Session) phaseLocked() domain.StreamAnalysisState {
	return domain.StreamAnalysisState{
		Reasoning: s.reasoning.String(),
		Content:   s.content.String(),
	}
}

func (s *Session) snapshotLocked() Update {
	u := Update{State: s.state, Phase: s.phaseLocked(), Err: s.err}
	if s.result != nil {
		res := *s.result
		u.Result = &res
	}
	return u
}

func (s *Session) emitLocked() {
	if len(s.subs) == 0 {
		return
	}
	u := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- u:
		default:
			// Drop the oldest snapshot to make room for the newest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- u:
			default:
			}
		}
	}
}
