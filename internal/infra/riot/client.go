// Package riot implements the rate-limited Riot Games API client and the three
// endpoints the tracker consumes.
package riot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ShaiBY10/lolDataAnalysis/errs"
	"github.com/ShaiBY10/lolDataAnalysis/internal/infra/config"
)

const (
	serviceName = "riot"
	// TokenHeader carries the API key on every request.
	TokenHeader = "X-Riot-Token"

	defaultMaxAttempts = 5
	defaultRetryAfter  = 30 * time.Second
	defaultHTTPTimeout = 10 * time.Second
	maxBodyBytes       = 4 << 20
)

// Kind classifies the outcome of a Fetch.
type Kind int

const (
	// KindSuccess is an HTTP 2xx response; Payload holds the body.
	KindSuccess Kind = iota
	// KindNotFound is an HTTP 404, a valid negative signal.
	KindNotFound
	// KindRateLimited is an HTTP 429 still returned once the attempt budget ran out.
	KindRateLimited
	// KindAuthFailure is an HTTP 401/403. It is never retried.
	KindAuthFailure
	// KindTransient is any other failure left after the attempt budget, or a cancelled wait.
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindAuthFailure:
		return "auth_failure"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Result is the tagged outcome of a Fetch.
type Result struct {
	Kind       Kind
	Status     int
	Payload    []byte
	RetryAfter time.Duration
	Attempts   int
	Err        error
}

// OK reports whether the request succeeded.
func (r Result) OK() bool { return r.Kind == KindSuccess }

// Error converts a non-success result into a structured error. Success yields nil.
func (r Result) Error() error {
	switch r.Kind {
	case KindSuccess:
		return nil
	case KindNotFound:
		return errs.New(serviceName, errs.CodeNotFound, errs.WithHTTP(http.StatusNotFound))
	case KindRateLimited:
		return errs.New(serviceName, errs.CodeRateLimited,
			errs.WithHTTP(http.StatusTooManyRequests),
			errs.WithMessage("rate limit persisted after retry budget"),
			errs.WithField("retry_after", r.RetryAfter.String()),
			errs.WithField("attempts", strconv.Itoa(r.Attempts)))
	case KindAuthFailure:
		return errs.New(serviceName, errs.CodeAuth,
			errs.WithHTTP(r.Status),
			errs.WithMessage("api key rejected"),
			errs.WithRemediation("renew the Riot API key and restart the tracker"))
	default:
		if r.Status > 0 {
			return errs.New(serviceName, errs.CodeUpstream,
				errs.WithHTTP(r.Status),
				errs.WithMessage("upstream request failed"),
				errs.WithField("attempts", strconv.Itoa(r.Attempts)),
				errs.WithCause(r.Err))
		}
		return errs.New(serviceName, errs.CodeNetwork,
			errs.WithMessage("upstream request failed"),
			errs.WithField("attempts", strconv.Itoa(r.Attempts)),
			errs.WithCause(r.Err))
	}
}

// Sleeper suspends the caller for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Options configures a Client.
type Options struct {
	APIKey            string
	MaxAttempts       int
	DefaultRetryAfter time.Duration
	HTTPTimeout       time.Duration
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
	Sleep             Sleeper
	Logger            *zap.Logger
}

// OptionsFromConfig maps the riot configuration section onto client options.
func OptionsFromConfig(cfg config.RiotConfig, logger *zap.Logger) Options {
	return Options{
		APIKey:            cfg.APIKey,
		MaxAttempts:       cfg.MaxAttempts,
		DefaultRetryAfter: cfg.DefaultRetryAfter,
		HTTPTimeout:       cfg.HTTPTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		HTTPClient:        nil,
		Sleep:             nil,
		Logger:            logger,
	}
}

// Client issues GET requests against the Riot API. One Client is shared by every tracker;
// its limiter paces the whole fleet.
type Client struct {
	http         *http.Client
	apiKey       string
	maxAttempts  int
	defaultRetry time.Duration
	limiter      *rate.Limiter
	sleep        Sleeper
	logger       *zap.Logger
	metrics      *clientMetrics
}

// NewClient constructs a Client, filling unset options with defaults.
func NewClient(opts Options) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.DefaultRetryAfter <= 0 {
		opts.DefaultRetryAfter = defaultRetryAfter
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = defaultHTTPTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport:     nil,
			CheckRedirect: nil,
			Jar:           nil,
			Timeout:       opts.HTTPTimeout,
		}
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:         httpClient,
		apiKey:       strings.TrimSpace(opts.APIKey),
		maxAttempts:  opts.MaxAttempts,
		defaultRetry: opts.DefaultRetryAfter,
		limiter:      rate.NewLimiter(limit, burst),
		sleep:        sleep,
		logger:       logger,
		metrics:      newClientMetrics(),
	}
}

// CloseIdleConnections releases pooled connections of the shared HTTP client.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}

// Fetch performs a GET with retry. 429 responses wait for Retry-After; other retryable
// failures wait the default delay. Authentication failures and 404s return after one call.
func (c *Client) Fetch(ctx context.Context, rawURL string, headers http.Header, params url.Values) Result {
	target, err := buildURL(rawURL, params)
	if err != nil {
		return Result{Kind: KindTransient, Err: err}
	}
	endpoint := endpointLabel(target.Path)

	var last Result
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return Result{Kind: KindTransient, Status: last.Status, Attempts: attempt - 1, Err: err}
		}

		last = c.do(ctx, target.String(), headers, endpoint)
		last.Attempts = attempt
		switch last.Kind {
		case KindSuccess, KindNotFound, KindAuthFailure:
			return last
		}
		if ctx.Err() != nil {
			last.Err = ctx.Err()
			return last
		}
		if attempt == c.maxAttempts {
			break
		}

		wait := c.defaultRetry
		if last.Kind == KindRateLimited {
			wait = last.RetryAfter
			c.logger.Warn("upstream throttled",
				zap.String("endpoint", endpoint),
				zap.Int("attempt", attempt),
				zap.Duration("retry_after", wait))
		} else {
			c.logger.Warn("upstream request failed, retrying",
				zap.String("endpoint", endpoint),
				zap.Int("attempt", attempt),
				zap.Int("status", last.Status),
				zap.Error(last.Err),
				zap.Duration("retry_in", wait))
		}
		if err := c.sleep(ctx, wait); err != nil {
			return Result{Kind: KindTransient, Status: last.Status, Attempts: attempt, Err: err}
		}
	}
	return last
}

func (c *Client) do(ctx context.Context, target string, headers http.Header, endpoint string) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Result{Kind: KindTransient, Err: fmt.Errorf("create request: %w", err)}
	}
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if c.apiKey != "" {
		req.Header.Set(TokenHeader, c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.record(ctx, endpoint, "error", time.Since(started))
		return Result{Kind: KindTransient, Err: fmt.Errorf("get %s: %w", endpoint, err)}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	c.metrics.record(ctx, endpoint, strconv.Itoa(resp.StatusCode), time.Since(started))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if readErr != nil {
			return Result{Kind: KindTransient, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", readErr)}
		}
		return Result{Kind: KindSuccess, Status: resp.StatusCode, Payload: body}
	case resp.StatusCode == http.StatusNotFound:
		return Result{Kind: KindNotFound, Status: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests:
		return Result{
			Kind:       KindRateLimited,
			Status:     resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), c.defaultRetry, time.Now()),
			Err:        errors.New("rate limited"),
		}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Result{Kind: KindAuthFailure, Status: resp.StatusCode}
	default:
		return Result{Kind: KindTransient, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 256))}
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date and falls back to def.
func parseRetryAfter(raw string, def time.Duration, now time.Time) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return def
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return def
}

func buildURL(rawURL string, params url.Values) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse url: %q is not absolute", rawURL)
	}
	if len(params) > 0 {
		query := parsed.Query()
		for key, values := range params {
			for _, v := range values {
				query.Add(key, v)
			}
		}
		parsed.RawQuery = query.Encode()
	}
	return parsed, nil
}

func endpointLabel(path string) string {
	switch {
	case strings.HasPrefix(path, spectatorPrefix):
		return EndpointActiveGame
	case strings.HasPrefix(path, leaguePrefix):
		return EndpointLeagueEntries
	case strings.HasPrefix(path, matchPrefix):
		return EndpointMatch
	default:
		return "other"
	}
}

func truncate(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
