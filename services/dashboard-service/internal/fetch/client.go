package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicsync/libs/httpx"
	otelx "github.com/md-rashed-zaman/clinicsync/libs/otel"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	DefaultTTL         = 60 * time.Second
	DefaultTimeout     = 8 * time.Second
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 1 * time.Second

	maxBodyBytes = 10 << 20
)

type Options struct {
	HTTPClient  *http.Client
	Cache       Cache
	TTL         time.Duration
	Timeout     time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
	// Limiter paces outbound attempts; nil means unlimited.
	Limiter *rate.Limiter
	Logger  *slog.Logger
	Now     func() time.Time
	// Sleep waits between attempts. It must return early with ctx.Err()
	// when ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client is the read-only request layer every other component fetches
// through: cache first, then bounded retries with a per-attempt timeout.
type Client struct {
	http        *http.Client
	cache       Cache
	ttl         time.Duration
	timeout     time.Duration
	maxAttempts int
	retryDelay  time.Duration
	limiter     *rate.Limiter
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error

	inflight singleflight.Group
}

func NewClient(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Cache == nil {
		opts.Cache = NewMemoryCache(opts.Now)
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Client{
		http:        opts.HTTPClient,
		cache:       opts.Cache,
		ttl:         opts.TTL,
		timeout:     opts.Timeout,
		maxAttempts: opts.MaxAttempts,
		retryDelay:  opts.RetryDelay,
		limiter:     opts.Limiter,
		logger:      opts.Logger,
		sleep:       opts.Sleep,
	}
}

// Get returns the payload of res. Concurrent callers for the same resource
// share one upstream flight; each caller still returns as soon as its own
// ctx is done.
func (c *Client) Get(ctx context.Context, res Resource) ([]byte, error) {
	key := res.Key()
	if b, ok := c.cache.Get(ctx, key); ok {
		return b, nil
	}

	ch := c.inflight.DoChan(key, func() (any, error) {
		// detached so one impatient caller cannot fail the others
		return c.fetch(context.WithoutCancel(ctx), res, key)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return clone(r.Val.([]byte)), nil
	}
}

// GetJSON decodes the payload of res into v. A payload that does not fit v
// is reported as malformed and dropped from the cache.
func (c *Client) GetJSON(ctx context.Context, res Resource, v any) error {
	b, err := c.Get(ctx, res)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		key := res.Key()
		c.cache.Delete(ctx, key)
		return &RequestError{Cause: CauseMalformed, Resource: key, Err: err}
	}
	return nil
}

// Invalidate drops cached payloads whose key starts with prefix.
func (c *Client) Invalidate(ctx context.Context, prefix string) int {
	return c.cache.Invalidate(ctx, prefix)
}

func (c *Client) fetch(ctx context.Context, res Resource, key string) (payload []byte, err error) {
	ctx, span := otelx.Start(ctx, "fetch.get", attribute.String("fetch.resource", key))
	defer func() { otelx.End(span, err) }()

	var last *RequestError
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, c.retryDelay); err != nil {
				return nil, err
			}
		}

		body, rerr := c.attempt(ctx, res)
		if rerr == nil {
			c.cache.Set(ctx, key, body, c.ttl)
			span.SetAttributes(attribute.Int("fetch.attempts", attempt))
			return body, nil
		}
		rerr.Attempts = attempt
		last = rerr
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("upstream fetch attempt failed",
			"resource", key,
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"cause", string(rerr.Cause),
			"err", rerr.Err,
		)
	}
	return nil, &RequestError{Cause: CauseExhausted, Resource: key, Status: last.Status, Attempts: c.maxAttempts, Err: last}
}

func (c *Client) attempt(ctx context.Context, res Resource) ([]byte, *RequestError) {
	key := res.Key()
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &RequestError{Cause: CauseTimeout, Resource: key, Err: err}
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, key, nil)
	if err != nil {
		return nil, &RequestError{Cause: CauseHTTP, Resource: key, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	httpx.PropagateRequestID(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(attemptCtx, key, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, transportError(attemptCtx, key, resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, ok := embeddedError(body)
		if !ok {
			msg = strings.TrimSpace(http.StatusText(resp.StatusCode))
		}
		return nil, &RequestError{Cause: CauseHTTP, Resource: key, Status: resp.StatusCode, Err: UpstreamError{Message: msg}}
	}
	if !json.Valid(body) {
		return nil, &RequestError{Cause: CauseMalformed, Resource: key, Status: resp.StatusCode, Err: errors.New("response is not valid JSON")}
	}
	// the API does not use status codes consistently
	if msg, ok := embeddedError(body); ok {
		return nil, &RequestError{Cause: CauseHTTP, Resource: key, Status: resp.StatusCode, Err: UpstreamError{Message: msg}}
	}
	return body, nil
}

func transportError(attemptCtx context.Context, key string, status int, err error) *RequestError {
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return &RequestError{Cause: CauseTimeout, Resource: key, Status: status, Err: err}
	}
	return &RequestError{Cause: CauseHTTP, Resource: key, Status: status, Err: err}
}

// embeddedError reports the message of a top-level {"error": ...} field.
// null, false and "" do not count as errors.
func embeddedError(body []byte) (string, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", false
	}
	var probe struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &probe); err != nil || len(probe.Error) == 0 {
		return "", false
	}
	switch raw := strings.TrimSpace(string(probe.Error)); raw {
	case "null", "false", `""`:
		return "", false
	default:
		var s string
		if json.Unmarshal(probe.Error, &s) == nil {
			return s, true
		}
		return raw, true
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
