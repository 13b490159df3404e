package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/domain"
)

const (
	analyzePath = "/api/news/analyze"
	streamPath  = "/api/news/analyze/stream"

	reportCacheKey = "report"

	// sharedLimiterKey is the upstream budget shared by every replica.
	sharedLimiterKey = "analysis:upstream"

	msgEmptyResponse      = "server returned empty response"
	msgUnreadableResponse = "server returned unreadable response"
)

// ClientConfig holds the upstream analysis server settings.
type ClientConfig struct {
	BaseURL        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	CacheTTL       time.Duration
	// RequestsPerMinute throttles outbound calls. Zero disables throttling.
	RequestsPerMinute int
}

// DefaultClientConfig returns the timeouts the analysis server is tuned for.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:           baseURL,
		ConnectTimeout:    300 * time.Second,
		ReadTimeout:       120 * time.Second,
		WriteTimeout:      30 * time.Second,
		CacheTTL:          5 * time.Minute,
		RequestsPerMinute: 30,
	}
}

// RequestError is a summarized transport failure. It matches ErrTimeout or
// ErrNetwork under errors.Is.
type RequestError struct {
	Kind    error
	Summary string
}

func (e *RequestError) Error() string { return "network request failed: " + e.Summary }

func (e *RequestError) Unwrap() error { return e.Kind }

// Client talks to the upstream news analysis server.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	limiter *rate.Limiter
	shared  domain.RateLimiter
	reports *cache.Cache
	logger  *slog.Logger
}

// NewClient builds a client. The transport dials with cfg.ConnectTimeout and
// bounds every socket write by cfg.WriteTimeout; read inactivity on response
// bodies is enforced separately by Report and Stream.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if cfg.WriteTimeout <= 0 {
				return conn, nil
			}
			return &writeDeadlineConn{Conn: conn, timeout: cfg.WriteTimeout}, nil
		},
		TLSHandshakeTimeout: cfg.ConnectTimeout,
		MaxIdleConns:        16,
		IdleConnTimeout:     90 * time.Second,
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Transport: transport},
		limiter: limiter,
		reports: cache.New(ttl, 2*ttl),
		logger:  logger.With(slog.String("component", "analysis_client")),
	}
}

// WithSharedLimiter adds a distributed throttle on top of the in-process
// one, so replicas share one upstream budget. Limiter outages are logged and
// otherwise ignored.
func (c *Client) WithSharedLimiter(l domain.RateLimiter) *Client {
	c.shared = l
	return c
}

// throttle waits for both the local and the shared request budget.
func (c *Client) throttle(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if c.shared == nil {
		return nil
	}
	if err := c.shared.Wait(ctx, sharedLimiterKey); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.logger.WarnContext(ctx, "shared limiter unavailable", slog.String("error", err.Error()))
	}
	return nil
}

// Analyze performs a single-shot analysis and always returns a result;
// failures are folded into a failed result carrying a short message.
func (c *Client) Analyze(ctx context.Context) domain.NewsAnalysisResult {
	report, err := c.Report(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrParse) {
			return domain.NewsAnalysisResult{Success: false, Message: strPtr(msgUnreadableResponse)}
		}
		return domain.AnalysisError(err.Error())
	}
	return report.Result()
}

// Report fetches the full single-shot report. Successful reports are served
// from an in-process cache until the configured TTL elapses.
func (c *Client) Report(ctx context.Context) (domain.NewsAnalysisReport, error) {
	if cached, ok := c.reports.Get(reportCacheKey); ok {
		return cached.(domain.NewsAnalysisReport), nil
	}

	if err := c.throttle(ctx); err != nil {
		return domain.NewsAnalysisReport{}, summarize(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(analyzePath), nil)
	if err != nil {
		return domain.NewsAnalysisReport{}, fmt.Errorf("analysis: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.doWithReadTimeout(req)
	if err != nil {
		c.logger.WarnContext(ctx, "analysis request failed", slog.String("error", err.Error()))
		return domain.NewsAnalysisReport{}, summarize(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.NewsAnalysisReport{}, statusError(resp)
	}

	reader, timedOut, stop := c.watchIdle(resp.Body, func() { resp.Body.Close() })
	defer stop()
	body, err := io.ReadAll(reader)
	if err != nil {
		if timedOut.Load() {
			return domain.NewsAnalysisReport{}, c.idleTimeout()
		}
		return domain.NewsAnalysisReport{}, summarize(err)
	}
	if strings.TrimSpace(string(body)) == "" {
		return domain.NewsAnalysisReport{}, errors.New(msgEmptyResponse)
	}

	var report domain.NewsAnalysisReport
	if err := json.Unmarshal(body, &report); err != nil {
		return domain.NewsAnalysisReport{}, fmt.Errorf("analysis: decode report: %w: %w", domain.ErrParse, err)
	}

	if report.Result().Success {
		c.reports.SetDefault(reportCacheKey, report)
	}
	return report, nil
}

// InvalidateCache drops any cached single-shot report.
func (c *Client) InvalidateCache() { c.reports.Flush() }

// Stream starts s and drives it from the upstream event stream until the
// stream completes, fails or ctx is cancelled. The returned error mirrors the
// session's failure; a cancelled ctx returns ctx.Err().
func (c *Client) Stream(ctx context.Context, s *Session) error {
	if err := s.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.bind(cancel)

	if err := c.throttle(ctx); err != nil {
		return c.abort(ctx, s, summarize(err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(streamPath), nil)
	if err != nil {
		err = fmt.Errorf("analysis: build request: %w", err)
		s.Fail(err)
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Connection", "keep-alive")

	resp, err := c.doWithReadTimeout(req)
	if err != nil {
		return c.abort(ctx, s, summarize(err))
	}

	var closeOnce sync.Once
	closeBody := func() { closeOnce.Do(func() { resp.Body.Close() }) }
	defer closeBody()
	stop := context.AfterFunc(ctx, closeBody)
	defer stop()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := statusError(resp)
		s.Fail(err)
		return err
	}

	body, timedOut, stopWatch := c.watchIdle(resp.Body, closeBody)
	defer stopWatch()

	dec := NewDecoder(body)
	for {
		ev, err := dec.Next()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF) && !timedOut.Load() && ctx.Err() == nil:
				s.Complete()
				return nil
			case timedOut.Load():
				err = c.idleTimeout()
				s.Fail(err)
				return err
			default:
				return c.abort(ctx, s, summarize(err))
			}
		}

		if ev.Type == "complete" {
			s.Complete()
			return nil
		}
		s.Feed(ev.Data)

		switch s.State() {
		case StateStreaming:
		case StateFailed:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return s.Err()
		default:
			return nil
		}
	}
}

// abort fails s with err, or cancels it when ctx is already done.
func (c *Client) abort(ctx context.Context, s *Session, err error) error {
	if ctx.Err() != nil {
		s.Cancel()
		return ctx.Err()
	}
	c.logger.Warn("analysis stream failed", slog.String("error", err.Error()))
	s.Fail(err)
	return err
}

// watchIdle bounds the gap between reads of body by the read timeout. When no
// bytes arrive in time, expire runs (it must unblock the pending read) and the
// returned flag is set.
func (c *Client) watchIdle(body io.Reader, expire func()) (io.Reader, *atomic.Bool, func()) {
	timedOut := new(atomic.Bool)
	if c.cfg.ReadTimeout <= 0 {
		return body, timedOut, func() {}
	}
	watchdog := time.AfterFunc(c.cfg.ReadTimeout, func() {
		timedOut.Store(true)
		expire()
	})
	return &idleReader{r: body, timer: watchdog, timeout: c.cfg.ReadTimeout}, timedOut, func() { watchdog.Stop() }
}

func (c *Client) idleTimeout() error {
	return &RequestError{
		Kind:    domain.ErrTimeout,
		Summary: fmt.Sprintf("no data received for %s", c.cfg.ReadTimeout),
	}
}

// doWithReadTimeout issues req, bounding the wait for response headers by the
// read timeout.
func (c *Client) doWithReadTimeout(req *http.Request) (*http.Response, error) {
	if c.cfg.ReadTimeout <= 0 {
		return c.http.Do(req)
	}
	ctx, cancel := context.WithCancelCause(req.Context())
	timer := time.AfterFunc(c.cfg.ReadTimeout, func() {
		cancel(&RequestError{Kind: domain.ErrTimeout, Summary: "timed out waiting for response"})
	})
	resp, err := c.http.Do(req.WithContext(ctx))
	timer.Stop()
	if err != nil {
		if cause := context.Cause(ctx); cause != nil && req.Context().Err() == nil {
			cancel(nil)
			return nil, cause
		}
		cancel(nil)
		return nil, err
	}
	// The body outlives this call; release the context once it is closed.
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: func() { cancel(nil) }}
	return resp, nil
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

func statusError(resp *http.Response) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return &domain.StatusError{Code: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
}

// summarize reduces a transport error to a short RequestError.
func summarize(err error) error {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr
	}
	if errors.Is(err, context.Canceled) {
		return &RequestError{Kind: domain.ErrNetwork, Summary: "request canceled"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &RequestError{Kind: domain.ErrTimeout, Summary: "request timed out"}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &RequestError{Kind: domain.ErrTimeout, Summary: "connection timed out"}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &RequestError{Kind: domain.ErrNetwork, Summary: "cannot resolve host " + dnsErr.Name}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Err != nil {
		return &RequestError{Kind: domain.ErrNetwork, Summary: opErr.Op + ": " + opErr.Err.Error()}
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return &RequestError{Kind: domain.ErrNetwork, Summary: "connection closed unexpectedly"}
	}
	return &RequestError{Kind: domain.ErrNetwork, Summary: err.Error()}
}

func strPtr(s string) *string { return &s }

type writeDeadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *writeDeadlineConn) Write(p []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(p)
}

// idleReader resets timer whenever bytes arrive.
type idleReader struct {
	r       io.Reader
	timer   *time.Timer
	timeout time.Duration
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.timer.Reset(r.timeout)
	}
	return n, err
}

type cancelOnClose struct {
	io.ReadCloser
	cancel func()
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
