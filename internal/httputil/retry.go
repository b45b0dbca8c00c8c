package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Policy controls how a Client retries a request.
type Policy struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterFactor float64 // fraction of delay to randomize (0..1)

	// MaxRetryAfter caps a server-supplied Retry-After. Zero means MaxDelay.
	MaxRetryAfter time.Duration
}

// DefaultPolicy suits an interactive resolver: few attempts, short waits.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		BaseDelay:     500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		JitterFactor:  0.25,
		MaxRetryAfter: 30 * time.Second,
	}
}

// Client sends requests with retry and backoff.
type Client struct {
	HTTP   *http.Client
	Policy Policy
}

// NewClient returns a Client using hc, or http.DefaultClient when hc is nil.
func NewClient(hc *http.Client, p Policy) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	return &Client{HTTP: hc, Policy: p}
}

// Do sends the request produced by build, which is called once per attempt
// since a body is consumed by each send.
//
// Network errors, 429 and 5xx are retried. Other responses are returned as
// they are. When attempts run out on a retryable status, the last response
// is returned with its body intact so the caller can read the server's
// error message.
func (c *Client) Do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	attempts := c.Policy.MaxAttempts

	for attempt := 0; attempt < attempts; attempt++ {
		last := attempt == attempts-1

		req, err := build(ctx)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = err
			if last {
				break
			}
			slog.Debug("httputil: network error, retrying",
				"url", req.URL.Redacted(),
				"attempt", attempt+1,
				"max", attempts,
				"err", err,
			)
			if err := sleepWithContext(ctx, c.backoff(attempt, nil)); err != nil {
				return nil, err
			}
			continue
		}

		if !retryable(resp.StatusCode) || last {
			return resp, nil
		}

		delay := c.backoff(attempt, resp)
		drain(resp)
		slog.Debug("httputil: retryable status",
			"url", req.URL.Redacted(),
			"status", resp.StatusCode,
			"attempt", attempt+1,
			"max", attempts,
			"delay", delay,
		)
		if err := sleepWithContext(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

// backoff computes the sleep before the next attempt. A Retry-After header
// wins over the exponential schedule, up to MaxRetryAfter.
func (c *Client) backoff(attempt int, resp *http.Response) time.Duration {
	p := c.Policy
	if resp != nil {
		if ra := parseRetryAfter(resp.Header.Get("Retry-After")); ra > 0 {
			limit := p.MaxRetryAfter
			if limit <= 0 {
				limit = p.MaxDelay
			}
			return min(ra, limit)
		}
	}

	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	delay = math.Min(delay, float64(p.MaxDelay))
	delay += delay * p.JitterFactor * (rand.Float64()*2 - 1)
	if delay < 0 {
		delay = float64(p.BaseDelay)
	}
	return time.Duration(delay)
}

// parseRetryAfter accepts delta seconds or an HTTP-date. It returns 0 when
// the value is empty, unparseable or in the past.
func parseRetryAfter(val string) time.Duration {
	val = strings.TrimSpace(val)
	if val == "" {
		return 0
	}
	if secs, err := strconv.Atoi(val); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(val); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsTimeout reports whether err came from a deadline, either the context's or
// the transport's.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
