package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/analysis"
	cachemem "github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/cache/memory"
	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/domain"
	storemem "github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/store/memory"
)

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) Notify(ctx context.Context, event, title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *fakeNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

type fixture struct {
	store      *storemem.Store
	bus        *cachemem.Bus
	notifier   *fakeNotifier
	industries *IndustryService
	preds      *PredictionService
	accuracy   *AccuracyService
	feed       *ListingFeed
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	loc := time.FixedZone("CST", 8*3600)
	st := storemem.New(loc)
	bus := cachemem.NewBus(100)
	n := &fakeNotifier{}
	logger := discardLogger()
	return &fixture{
		store:      st,
		bus:        bus,
		notifier:   n,
		industries: NewIndustryService(st.Industries(), bus, st.Audit(), logger),
		preds:      NewPredictionService(st.Predictions(), st.Industries(), bus, st.Audit(), n, loc, logger),
		accuracy:   NewAccuracyService(st.Industries(), st.Predictions(), logger),
		feed:       NewListingFeed(bus, st.Industries(), st.Predictions(), logger),
	}
}

func day(d int) time.Time {
	return time.Date(2026, time.March, d, 10, 0, 0, 0, time.FixedZone("CST", 8*3600))
}

func TestIndustryLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.industries.Create(ctx, "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	tech, err := f.industries.Create(ctx, " Tech ")
	require.NoError(t, err)
	assert.Equal(t, "Tech", tech.Name)

	_, err = f.industries.Create(ctx, "Banks")
	require.NoError(t, err)

	list, err := f.industries.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Banks", list[0].Name)

	renamed, err := f.industries.Rename(ctx, tech.ID, "Technology")
	require.NoError(t, err)
	assert.Equal(t, "Technology", renamed.Name)

	_, err = f.industries.Rename(ctx, 999, "x")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.preds.Create(ctx, tech.ID, day(1), domain.DirectionUp)
	require.NoError(t, err)

	err = f.industries.Delete(ctx, tech.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)

	entries, err := f.store.Audit().List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestCreateRejectsSameDay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ind, err := f.industries.Create(ctx, "Energy")
	require.NoError(t, err)

	_, err = f.preds.Create(ctx, ind.ID, day(2), domain.DirectionUp)
	require.NoError(t, err)

	_, err = f.preds.Create(ctx, ind.ID, day(2).Add(5*time.Hour), domain.DirectionDown)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.preds.Create(ctx, ind.ID, day(3), domain.DirectionDown)
	assert.NoError(t, err)

	_, err = f.preds.Create(ctx, 999, day(3), domain.DirectionDown)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.preds.Create(ctx, ind.ID, day(4), domain.Direction(7))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRecordOutcomeWriteOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ind, err := f.industries.Create(ctx, "Energy")
	require.NoError(t, err)
	p, err := f.preds.Create(ctx, ind.ID, day(2), domain.DirectionUp)
	require.NoError(t, err)

	got, err := f.preds.RecordOutcome(ctx, p.ID, domain.DirectionUp)
	require.NoError(t, err)
	require.NotNil(t, got.Actual)
	assert.Equal(t, domain.DirectionUp, *got.Actual)

	got, err = f.preds.RecordOutcome(ctx, p.ID, domain.DirectionUp)
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionUp, *got.Actual)

	_, err = f.preds.RecordOutcome(ctx, p.ID, domain.DirectionDown)
	assert.ErrorIs(t, err, domain.ErrOutcomeLocked)

	stored, err := f.preds.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionUp, *stored.Actual)

	_, err = f.preds.RecordOutcome(ctx, 999, domain.DirectionUp)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Only the first, state-changing call notifies.
	assert.Equal(t, []string{NotifyOutcomeRecorded}, f.notifier.Events())
}

func TestRecordOutcomeConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ind, err := f.industries.Create(ctx, "Energy")
	require.NoError(t, err)
	p, err := f.preds.Create(ctx, ind.ID, day(2), domain.DirectionUp)
	require.NoError(t, err)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		locked int
	)
	dirs := []domain.Direction{domain.DirectionUp, domain.DirectionDown, domain.DirectionFlat}
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(d domain.Direction) {
			defer wg.Done()
			if _, err := f.preds.RecordOutcome(ctx, p.ID, d); err != nil {
				mu.Lock()
				locked++
				mu.Unlock()
			}
		}(dirs[i%3])
	}
	wg.Wait()

	stored, err := f.preds.Get(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Actual)
	// Exactly the ten calls carrying the winning value succeed.
	assert.Equal(t, 20, locked)
	assert.Len(t, f.notifier.Events(), 1)
}

func TestOpenIndustriesAndPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	now := day(10)
	f.preds.now = func() time.Time { return now }

	a, _ := f.industries.Create(ctx, "A")
	b, _ := f.industries.Create(ctx, "B")
	c, _ := f.industries.Create(ctx, "C")

	_, err := f.preds.Create(ctx, b.ID, now, domain.DirectionUp)
	require.NoError(t, err)
	old, err := f.preds.Create(ctx, a.ID, day(8), domain.DirectionDown)
	require.NoError(t, err)
	resolved, err := f.preds.Create(ctx, c.ID, day(9), domain.DirectionFlat)
	require.NoError(t, err)
	_, err = f.preds.RecordOutcome(ctx, resolved.ID, domain.DirectionFlat)
	require.NoError(t, err)

	open, err := f.preds.OpenIndustriesToday(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Industry{a, c}, open)

	pending, err := f.preds.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, b.ID, pending[0].IndustryID)
	assert.Equal(t, old.ID, pending[1].ID)
}

func TestTodaysOpenIndustriesPure(t *testing.T) {
	loc := time.UTC
	inds := []domain.Industry{{ID: 3, Name: "c"}, {ID: 1, Name: "a"}, {ID: 2, Name: "b"}}
	today := time.Date(2026, 1, 5, 12, 0, 0, 0, loc)
	preds := []domain.Prediction{
		{ID: 1, IndustryID: 1, Date: today.Add(-2 * time.Hour)},
		{ID: 2, IndustryID: 2, Date: today.Add(-24 * time.Hour)},
	}
	got := TodaysOpenIndustries(inds, preds, today, loc)
	assert.Equal(t, []domain.Industry{{ID: 3, Name: "c"}, {ID: 2, Name: "b"}}, got)
}

func TestPendingOutcomesPure(t *testing.T) {
	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	preds := []domain.Prediction{
		{ID: 1, Date: base},
		{ID: 2, Date: base.Add(48 * time.Hour), Actual: domain.DirectionPtr(domain.DirectionUp)},
		{ID: 3, Date: base.Add(24 * time.Hour)},
		{ID: 4, Date: base},
	}
	got := PendingOutcomes(preds)
	ids := make([]int64, 0, len(got))
	for _, p := range got {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []int64{3, 4, 1}, ids)
	assert.Equal(t, int64(1), preds[0].ID)
}

func TestAccuracyReport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ind, _ := f.industries.Create(ctx, "Energy")
	other, _ := f.industries.Create(ctx, "Banks")

	p1, _ := f.preds.Create(ctx, ind.ID, day(1), domain.DirectionUp)
	p2, _ := f.preds.Create(ctx, ind.ID, day(2), domain.DirectionUp)
	_, _ = f.preds.Create(ctx, ind.ID, day(3), domain.DirectionUp)
	_, err := f.preds.RecordOutcome(ctx, p1.ID, domain.DirectionUp)
	require.NoError(t, err)
	_, err = f.preds.RecordOutcome(ctx, p2.ID, domain.DirectionDown)
	require.NoError(t, err)

	report, err := f.accuracy.Report(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Overall.Correct)
	assert.Equal(t, 2, report.Overall.Resolved)
	assert.InDelta(t, 0.5, report.Overall.Rate, 1e-9)
	require.Len(t, report.Industries, 2)
	assert.Equal(t, "Banks", report.Industries[0].Industry.Name)
	assert.Zero(t, report.Industries[0].Rate)
	require.Len(t, report.Recent, 2)
	assert.Equal(t, p2.ID, report.Recent[0].ID)

	one, err := f.accuracy.ForIndustry(ctx, other.ID)
	require.NoError(t, err)
	assert.Zero(t, one.Summary.Rate)
	assert.Zero(t, one.Summary.Resolved)

	_, err = f.accuracy.ForIndustry(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListingFeedDeliversSnapshots(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t)

	listings, err := f.feed.Watch(ctx)
	require.NoError(t, err)

	first := <-listings
	assert.Empty(t, first.Industries)

	ind, err := f.industries.Create(ctx, "Energy")
	require.NoError(t, err)

	select {
	case l := <-listings:
		assert.Greater(t, l.Version, first.Version)
		assert.Equal(t, []domain.Industry{ind}, l.Industries)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after mutation")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-listings:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMutationsAppendToEventStream(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ind, _ := f.industries.Create(ctx, "Energy")
	_, err := f.preds.Create(ctx, ind.ID, day(1), domain.DirectionFlat)
	require.NoError(t, err)

	msgs, err := f.bus.StreamRead(ctx, domain.StreamEvents, "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	var evt struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(msgs[1].Payload, &evt))
	assert.Equal(t, domain.EventPredictionCreated, evt.Type)
}

type stubAnalyzer struct {
	result domain.NewsAnalysisResult
	frames []string
	err    error
}

func (s *stubAnalyzer) Analyze(ctx context.Context) domain.NewsAnalysisResult { return s.result }

func (s *stubAnalyzer) Stream(ctx context.Context, session *analysis.Session) error {
	if err := session.Start(); err != nil {
		return err
	}
	for _, fr := range s.frames {
		session.Feed(fr)
	}
	if s.err != nil {
		session.Fail(s.err)
		return s.err
	}
	if session.State() == analysis.StateFailed {
		return session.Err()
	}
	session.Complete()
	return nil
}

func TestAnalysisServiceFailureNotifies(t *testing.T) {
	ctx := context.Background()
	bus := cachemem.NewBus(10)
	n := &fakeNotifier{}
	events, err := bus.Subscribe(ctx, domain.ChannelAnalysis)
	require.NoError(t, err)

	svc := NewAnalysisService(&stubAnalyzer{frames: []string{`{"error":"boom"}`}}, bus, nil, n, discardLogger())
	s := analysis.NewSession()
	err = svc.Stream(ctx, s)
	assert.EqualError(t, err, "boom")
	assert.Equal(t, []string{NotifyAnalysisFailed}, n.Events())

	var evt domain.Event
	require.NoError(t, json.Unmarshal(<-events, &evt))
	assert.Equal(t, domain.EventAnalysisFailed, evt.Type)
}

func TestAnalysisServiceSuccessPublishes(t *testing.T) {
	ctx := context.Background()
	bus := cachemem.NewBus(10)
	events, err := bus.Subscribe(ctx, domain.ChannelAnalysis)
	require.NoError(t, err)

	svc := NewAnalysisService(&stubAnalyzer{frames: []string{`{"content":"X"}`}}, bus, nil, nil, discardLogger())
	s := analysis.NewSession()
	require.NoError(t, svc.Stream(ctx, s))

	var evt domain.Event
	require.NoError(t, json.Unmarshal(<-events, &evt))
	assert.Equal(t, domain.EventAnalysisCompleted, evt.Type)

	single := NewAnalysisService(&stubAnalyzer{result: domain.AnalysisError("down")}, bus, nil, nil, discardLogger())
	res := single.Analyze(ctx)
	assert.False(t, res.Success)
	require.NoError(t, json.Unmarshal(<-events, &evt))
	assert.Equal(t, domain.EventAnalysisFailed, evt.Type)
}
