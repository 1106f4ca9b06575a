package jira

import (
	"net/http"

	"golang.org/x/time/rate"
)

// rateLimitedTransport blocks every request until the shared limiter grants a token.
type rateLimitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

// newRateLimitedTransport wraps base. A non-positive rps disables limiting.
func newRateLimitedTransport(base http.RoundTripper, rps float64) *rateLimitedTransport {
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = max(1, int(rps))
	}
	return &rateLimitedTransport{base: base, limiter: rate.NewLimiter(limit, burst)}
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}
