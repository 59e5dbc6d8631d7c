package dmarket

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/giratech/dmtrader/internal/domain"
)

const (
	maxAttempts    = 20
	getTimeout     = 30 * time.Second
	writeTimeout   = 10 * time.Second
	initialBackoff = 5 * time.Second
	maxBackoff     = 5 * time.Minute
)

// retryableStatus lists the HTTP statuses that are treated as transient.
// DMarket returns 403 from its edge during load shedding, so it is retried
// alongside the 5xx family.
var retryableStatus = map[int]bool{
	http.StatusForbidden:           true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Client is the resilient REST client for the DMarket API.
type Client struct {
	baseURL string
	signer  *Signer
	log     *slog.Logger

	getClient   *http.Client
	writeClient *http.Client

	now     func() time.Time
	sleepFn func(ctx context.Context, d time.Duration) error
}

// NewClient creates a DMarket REST client. Read requests get a generous
// timeout; mutating requests get a short one so a stuck buy fails fast.
func NewClient(baseURL string, signer *Signer, log *slog.Logger) *Client {
	return &Client{
		baseURL:     baseURL,
		signer:      signer,
		log:         log.With("component", "dmarket"),
		getClient:   &http.Client{Timeout: getTimeout},
		writeClient: &http.Client{Timeout: writeTimeout},
		now:         time.Now,
		sleepFn:     sleepCtx,
	}
}

// call signs and sends one logical request, retrying transient failures.
//
// Retryable statuses and timeouts are retried with a linearly growing delay
// for up to maxAttempts tries. Other transport errors (DNS, connection reset)
// back off exponentially from 5s up to 5m. Non-retryable 4xx statuses abort
// immediately with domain.ErrClientRejected. An empty 2xx body is returned
// as (nil, nil): absence of data, not an error.
//
// After a successful response the client honors the venue's RateLimit
// headers, sleeping for RateLimit-Reset seconds when RateLimit-Remaining hits
// zero.
func (c *Client) call(ctx context.Context, method, path string, params Params, body []byte) ([]byte, error) {
	backoff := initialBackoff

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		respBody, retryable, err := c.doOnce(ctx, method, path, params, body)
		if err == nil {
			return respBody, nil
		}
		if !retryable {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == maxAttempts {
			return nil, fmt.Errorf("dmarket: %s %s after %d attempts: %w: %w", method, path, attempt, domain.ErrRetriesExhausted, err)
		}

		var delay time.Duration
		if isStatusOrTimeout(err) {
			delay = time.Duration(attempt) * time.Second
		} else {
			delay = backoff
			backoff = min(backoff*2, maxBackoff)
		}
		c.log.Warn("request failed, retrying",
			"method", method, "path", path,
			"attempt", attempt, "delay", delay, "error", err)
		if err := c.sleepFn(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("dmarket: %s %s: %w", method, path, domain.ErrRetriesExhausted)
}

// statusError marks an HTTP-status or timeout failure so call can pick the
// linear delay schedule over the exponential one.
type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.code, e.msg)
}

func isStatusOrTimeout(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// doOnce performs a single signed request. The second return reports whether
// the failure is worth retrying.
func (c *Client) doOnce(ctx context.Context, method, path string, params Params, body []byte) ([]byte, bool, error) {
	fullURL := c.baseURL + path
	if q := params.Encode(); q != "" {
		fullURL += "?" + q
	}

	var bodyReader io.Reader
	if len(body) > 0 {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, false, fmt.Errorf("dmarket: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.signer.Headers(method, path, params, body, c.now()) {
		req.Header.Set(k, v)
	}

	httpClient := c.getClient
	if method != http.MethodGet {
		httpClient = c.writeClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("dmarket: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("dmarket: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		serr := &statusError{code: resp.StatusCode, msg: truncate(respBody, 200)}
		if retryableStatus[resp.StatusCode] {
			return nil, true, serr
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, false, fmt.Errorf("dmarket: %s %s: %w: %w", method, path, domain.ErrClientRejected, serr)
		}
		return nil, true, serr
	}

	c.honorRateLimit(ctx, resp.Header)

	if len(respBody) == 0 {
		return nil, false, nil
	}
	return respBody, false, nil
}

// honorRateLimit sleeps for the venue-advertised reset window when the
// current window is exhausted. Missing headers default to a remaining budget
// of one, so they never trigger a sleep.
func (c *Client) honorRateLimit(ctx context.Context, h http.Header) {
	remaining := headerInt(h, "RateLimit-Remaining", 1)
	reset := headerInt(h, "RateLimit-Reset", 1)
	if remaining == 0 {
		c.log.Debug("rate limit reached", "reset_seconds", reset)
		_ = c.sleepFn(ctx, time.Duration(reset)*time.Second)
	}
}

func headerInt(h http.Header, key string, def int) int {
	v := h.Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// sleepCtx sleeps for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
