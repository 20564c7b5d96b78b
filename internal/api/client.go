// Package api is the HTTP client for the aircraft parts backend: token
// exchange, refresh, current user, sign-up and logout, plus the parts,
// planes and score endpoints the dashboard reads and writes.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/hangar/internal/errors"
	"github.com/felixgeelhaar/hangar/internal/log"
	"github.com/felixgeelhaar/hangar/internal/metrics"
	"github.com/felixgeelhaar/hangar/internal/tokenstore"
)

const maxBodyBytes = 1 << 20

// Options configures a Client
type Options struct {
	// BaseURL is the backend root, e.g. https://api.example.com
	BaseURL string
	// Timeout bounds each HTTP request
	Timeout time.Duration
	// AllowInsecure permits plain http to loopback hosts
	AllowInsecure bool
	// RetryAttempts is the total number of tries for idempotent reads
	RetryAttempts int
	// RetryDelay is the first backoff delay
	RetryDelay time.Duration
	// Store supplies the access token for inventory calls
	Store tokenstore.Store
	// Transport is the innermost round tripper; nil means http.DefaultTransport
	Transport http.RoundTripper
	// UserAgent is sent on every request
	UserAgent string
	Logger    *log.Logger
	Metrics   *metrics.Metrics
}

// Client talks to the backend
type Client struct {
	baseURL *url.URL
	store   tokenstore.Store
	timeout time.Duration
	// guarded enforces token attributes below the bearer layer
	guarded http.RoundTripper
	// anon sends unauthenticated requests
	anon *http.Client
	// authed attaches the stored access token
	authed *http.Client

	retrier retry.Retry[*rawResponse]
	breaker circuitbreaker.CircuitBreaker[*rawResponse]

	logger  *log.Logger
	metrics *metrics.Metrics
}

// rawResponse is a fully read HTTP response
type rawResponse struct {
	status int
	body   []byte
}

// serverError marks a 5xx or 429 answer so retry and the circuit breaker
// treat it as a failure while other statuses pass through as results.
type serverError struct {
	endpoint string
	resp     *rawResponse
}

func (e *serverError) Error() string {
	return fmt.Sprintf("%s answered with status %d", e.endpoint, e.resp.status)
}

// New creates a Client
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.NewConfigInvalidError("api.url", "must not be empty")
	}
	base, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.NewConfigInvalidError("api.url", fmt.Sprintf("%q is not an absolute URL", opts.BaseURL))
	}

	store := opts.Store
	if store == nil {
		store = tokenstore.NewMemory(tokenstore.DefaultAttributes())
	}
	attrs := store.Attributes()
	if attrs.Secure && base.Scheme != "https" && !(opts.AllowInsecure && isLoopback(base.Hostname())) {
		return nil, errors.NewInsecureTransportError(base.Redacted())
	}

	inner := opts.Transport
	if inner == nil {
		inner = http.DefaultTransport
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	logger := log.Or(opts.Logger).With("component", "api")

	guarded := &credentialGuard{
		base:          &headerTransport{base: inner, userAgent: opts.UserAgent},
		apiHost:       strings.ToLower(base.Hostname()),
		attrs:         attrs,
		allowInsecure: opts.AllowInsecure,
	}

	c := &Client{
		baseURL: base,
		store:   store,
		timeout: opts.Timeout,
		guarded: guarded,
		anon:    &http.Client{Transport: guarded, Timeout: opts.Timeout},
		authed:  &http.Client{Transport: bearer(storeTokenSource{store: store}, guarded), Timeout: opts.Timeout},
		logger:  logger,
		metrics: opts.Metrics,
	}

	attempts := opts.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	c.retrier = retry.New[*rawResponse](retry.Config{
		MaxAttempts:   attempts,
		InitialDelay:  delay,
		MaxDelay:      5 * time.Second,
		Multiplier:    2.0,
		BackoffPolicy: retry.BackoffExponential,
		Jitter:        true,
		IsRetryable:   isRetryable,
	})
	c.breaker = circuitbreaker.New[*rawResponse](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state change", "from", from.String(), "to", to.String())
		},
	})

	return c, nil
}

// BaseURL returns the backend root
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Store returns the token store inventory calls read from
func (c *Client) Store() tokenstore.Store {
	return c.store
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if stderrors.Is(err, ErrNoAccessToken) || errors.HasCode(err, errors.ErrCodeInsecure) {
		return false
	}
	return true
}

// withToken returns a client that authenticates with one explicit token
func (c *Client) withToken(access string) *http.Client {
	return &http.Client{Transport: bearer(staticToken(access), c.guarded), Timeout: c.timeout}
}

// call performs one endpoint request and decodes a 2xx body into out.
// query and id are optional; a nil out discards the body.
func (c *Client) call(ctx context.Context, hc *http.Client, ep Endpoint, id int, query url.Values, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", ep.Name, err)
		}
	}

	target := c.baseURL.JoinPath(ep.expand(id))
	// JoinPath drops a trailing slash the backend requires
	if strings.HasSuffix(ep.Path, "/") && !strings.HasSuffix(target.Path, "/") {
		target.Path += "/"
	}
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	attempt := func(ctx context.Context) (*rawResponse, error) {
		resp, err := c.send(ctx, hc, ep, target.String(), payload)
		if err != nil {
			return nil, err
		}
		if resp.status >= 500 || resp.status == http.StatusTooManyRequests {
			return nil, &serverError{endpoint: ep.Path, resp: resp}
		}
		return resp, nil
	}

	var (
		resp *rawResponse
		err  error
	)
	if ep.Idempotent {
		resp, err = c.breaker.Execute(ctx, func(ctx context.Context) (*rawResponse, error) {
			return c.retrier.Do(ctx, attempt)
		})
	} else {
		resp, err = attempt(ctx)
	}

	if err != nil {
		var se *serverError
		if stderrors.As(err, &se) {
			resp = se.resp
		} else {
			return c.transportError(ep, err)
		}
	}

	if resp.status < 200 || resp.status >= 300 {
		return &ResponseError{
			Endpoint: ep.Path,
			Status:   resp.status,
			Detail:   extractDetail(resp.body),
			Body:     resp.body,
		}
	}

	if out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return errors.NewAPIDecodeError(ep.Path, err)
	}
	return nil
}

func (c *Client) transportError(ep Endpoint, err error) error {
	if stderrors.Is(err, ErrNoAccessToken) {
		return ErrNoAccessToken
	}
	var hErr *errors.HangarError
	if stderrors.As(err, &hErr) && (hErr.Code == errors.ErrCodeInsecure || hErr.Code == errors.ErrCodeStoreRead || hErr.Code == errors.ErrCodeStoreCrypt) {
		return hErr
	}
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	return errors.NewTransportError(ep.Path, err)
}

// send performs a single HTTP exchange and reads the whole body
func (c *Client) send(ctx context.Context, hc *http.Client, ep Endpoint, target string, payload []byte) (*rawResponse, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, ep.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)

	start := time.Now()
	resp, err := hc.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		c.metrics.ObserveAPIRequest(ep.Name, 0, elapsed)
		c.logger.DebugContext(ctx, "request failed", "endpoint", ep.Name, "request_id", requestID, "error", err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.metrics.ObserveAPIRequest(ep.Name, 0, elapsed)
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.metrics.ObserveAPIRequest(ep.Name, resp.StatusCode, elapsed)
	c.logger.DebugContext(ctx, "request completed",
		"endpoint", ep.Name,
		"request_id", requestID,
		"status", resp.StatusCode,
		"duration_ms", elapsed.Milliseconds())

	return &rawResponse{status: resp.StatusCode, body: data}, nil
}
