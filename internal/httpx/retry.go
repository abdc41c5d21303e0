// Package httpx provides the uniform outbound HTTP retry policy used by
// every call the pipeline makes to the source proxy and the archive: up to
// max_retries attempts with bounded exponential backoff, honoring a
// Retry-After header, and classifying which statuses are worth retrying.
package httpx

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultMaxRetries is the default attempt budget (the component design
// calls this "max_retries (default 3)").
const DefaultMaxRetries = 3

// retriableStatus is the fixed set of transient HTTP statuses.
var retriableStatus = map[int]bool{
	408: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// Options configures a single retrying request.
type Options struct {
	// MaxRetries caps the total number of attempts, the first try included.
	// Zero means DefaultMaxRetries.
	MaxRetries int

	// RetrySource400 additionally retries a 400 response — the
	// publication proxy is known to serve transient 400s.
	RetrySource400 bool
}

// attemptBackoff is a custom backoff.BackOff that normally returns 2^i
// seconds for attempt i (0-indexed), but yields to an explicit override
// set via UseNext when the previous response carried a Retry-After header.
// This is what drives the attempt loop below instead of a bare for-loop,
// matching the pluggable-backoff.BackOff idiom.
type attemptBackoff struct {
	attempt  int
	override time.Duration
}

func (b *attemptBackoff) Reset() { b.attempt = 0; b.override = 0 }

func (b *attemptBackoff) NextBackOff() time.Duration {
	if b.override > 0 {
		d := b.override
		b.override = 0
		b.attempt++
		return d
	}
	d := time.Duration(1<<uint(b.attempt)) * time.Second
	b.attempt++
	return d
}

func (b *attemptBackoff) UseNext(d time.Duration) { b.override = d }

var _ backoff.BackOff = (*attemptBackoff)(nil)

// RequestFunc builds a fresh *http.Request for each attempt — callers must
// supply a factory rather than a single Request because a retried request
// needs its body re-materialized.
type RequestFunc func() (*http.Request, error)

// Do executes req via client with retry semantics. On retry exhaustion the
// last response is returned as-is so the caller can classify it normally;
// a transport error surviving the last attempt is returned as err.
func Do(ctx context.Context, client *http.Client, req RequestFunc, opts Options) (*http.Response, error) {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	bo := &attemptBackoff{}
	var lastResp *http.Response
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		r, buildErr := req()
		if buildErr != nil {
			return nil, buildErr
		}
		r = r.WithContext(ctx)

		resp, err := client.Do(r)
		isLastAttempt := attempt == maxRetries-1

		if err != nil {
			lastErr = err
			lastResp = nil
			if isLastAttempt {
				return nil, err
			}
			sleep(ctx, time.Duration(1<<uint(attempt))*time.Second)
			continue
		}

		lastErr = nil
		lastResp = resp

		if !shouldRetryStatus(resp.StatusCode, opts.RetrySource400) || isLastAttempt {
			return resp, nil
		}

		delay := retryAfterDelay(resp)
		if delay <= 0 {
			delay = bo.NextBackOff()
		} else {
			bo.UseNext(delay)
			delay = bo.NextBackOff()
		}
		drainAndClose(resp)
		sleep(ctx, delay)
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return lastResp, nil
}

func shouldRetryStatus(status int, retrySource400 bool) bool {
	if retriableStatus[status] {
		return true
	}
	return retrySource400 && status == 400
}

// retryAfterDelay parses a Retry-After header (integer seconds or an
// HTTP-date), clamped to at least one second. Returns 0 when absent or
// unparseable, signaling the caller should fall back to exponential backoff.
func retryAfterDelay(resp *http.Response) time.Duration {
	v := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if v == "" {
		return 0
	}

	if secs, err := strconv.Atoi(v); err == nil {
		d := time.Duration(secs) * time.Second
		if d < time.Second {
			d = time.Second
		}
		return d
	}

	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < time.Second {
			d = time.Second
		}
		return d
	}

	return 0
}

func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
