package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu     sync.Mutex
	name   string
	titles []string
	err    error
}

func (s *recordingSender) Send(ctx context.Context, title, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = append(s.titles, title)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifierFiltersAndDeduplicates(t *testing.T) {
	ctx := context.Background()
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{"outcome_recorded"}, time.Minute, discard())

	require.NoError(t, n.Notify(ctx, "analysis_failed", "ignored", "x"))
	require.NoError(t, n.Notify(ctx, "outcome_recorded", "Outcome", "p1"))
	require.NoError(t, n.Notify(ctx, "outcome_recorded", "Outcome", "p1"))
	require.NoError(t, n.Notify(ctx, "outcome_recorded", "Outcome", "p2"))
	require.NoError(t, n.NotifyAll(ctx, "All", "y"))

	assert.Equal(t, []string{"Outcome", "Outcome", "All"}, s.titles)
}

func TestNotifierCollectsSenderErrors(t *testing.T) {
	ok := &recordingSender{name: "ok"}
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	n := NewNotifier([]Sender{bad, ok}, nil, 0, discard())

	err := n.Notify(context.Background(), "any", "T", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Len(t, ok.titles, 1)
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42").WithAPIBase(srv.URL)
	require.NoError(t, s.Send(context.Background(), "Title", "body"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Title*\nbody", got["text"])
}

func TestDiscordSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload)
		assert.LessOrEqual(t, len([]rune(payload["content"])), discordMaxContent)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "T", strings.Repeat("x", 3000))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord: unexpected status 429: slow down")
}
