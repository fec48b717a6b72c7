package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const bodySnippet = 512

// StatusError is returned for non-200 responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// Client performs JSON GETs with retry. 5xx, 429 and transport errors are
// retried; other statuses and decode failures are returned immediately.
type Client struct {
	HTTP    *http.Client
	Headers http.Header
	Log     *zap.Logger
	// NewBackOff builds the retry schedule for one call. Nil uses DefaultBackOff.
	NewBackOff func() backoff.BackOff
}

func DefaultBackOff() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 500 * time.Millisecond
	exp.MaxInterval = 30 * time.Second
	exp.MaxElapsedTime = 2 * time.Minute
	return exp
}

func (c *Client) DoJSON(ctx context.Context, req *http.Request, out any) error {
	if c.HTTP == nil {
		c.HTTP = http.DefaultClient
	}
	log := c.Log
	if log == nil {
		log = zap.NewNop()
	}
	newBO := c.NewBackOff
	if newBO == nil {
		newBO = DefaultBackOff
	}
	bo := &retryAfter{BackOff: newBO()}

	op := func() error {
		r := req.Clone(ctx)
		for k, vs := range c.Headers {
			for _, v := range vs {
				r.Header.Add(k, v)
			}
		}
		resp, err := c.HTTP.Do(r)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			bo.next = parseRetryAfter(resp.Header.Get("Retry-After"))
			return &StatusError{Code: resp.StatusCode}
		case resp.StatusCode >= 500:
			return &StatusError{Code: resp.StatusCode}
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(&StatusError{Code: resp.StatusCode, Body: snippet(resp.Body)})
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode: %w", err))
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("http.retry", zap.String("url", req.URL.Redacted()), zap.Duration("wait", wait), zap.Error(err))
	}
	err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

// retryAfter lets a server-provided Retry-After replace the next interval
// without resetting the elapsed-time budget of the wrapped schedule.
type retryAfter struct {
	backoff.BackOff
	next time.Duration
}

func (b *retryAfter) NextBackOff() time.Duration {
	d := b.BackOff.NextBackOff()
	if d == backoff.Stop {
		return d
	}
	if b.next > 0 {
		d, b.next = b.next, 0
	}
	return d
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func snippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, bodySnippet))
	return strings.TrimSpace(string(b))
}
