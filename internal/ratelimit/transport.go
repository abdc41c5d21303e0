// Package ratelimit paces outbound HTTP calls independent of the bounded
// concurrency semaphores used elsewhere: those bound how many requests run
// at once, this bounds how many start per second.
package ratelimit

import (
	"net/http"

	"golang.org/x/time/rate"
)

// Transport wraps an http.RoundTripper with a token-bucket limiter. A nil
// Limiter means unlimited — the zero value is a plain passthrough.
type Transport struct {
	Base    http.RoundTripper
	Limiter *rate.Limiter
}

// New wraps base with a limiter allowing ratePerSecond requests/sec and a
// burst of the same size. ratePerSecond <= 0 means unlimited: base is
// returned unwrapped.
func New(base http.RoundTripper, ratePerSecond float64) http.RoundTripper {
	if ratePerSecond <= 0 {
		return base
	}
	if base == nil {
		base = http.DefaultTransport
	}
	burst := int(ratePerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Transport{Base: base, Limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

// RoundTrip waits for a token before delegating to the base transport.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Limiter != nil {
		if err := t.Limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
