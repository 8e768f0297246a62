package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"listing-harvester/core/harvest"
	"listing-harvester/core/record"

	"golang.org/x/time/rate"
)

// maxBody caps the size of a page read into memory.
const maxBody = 16 << 20

// client issues rate-limited GET requests and classifies failures.
type client struct {
	http    *http.Client
	limiter *rate.Limiter
}

func newClient(cfg Config) *client {
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &client{
		http:    &http.Client{Timeout: time.Duration(timeout) * time.Second},
		limiter: rate.NewLimiter(limit, burst),
	}
}

// get fetches url on behalf of key. Failures are *harvest.FetchError.
func (c *client) get(ctx context.Context, s *Session, key record.EntityKey, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, harvest.Transient(key, fmt.Errorf("rate limiter: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, harvest.Permanent(key, err)
	}
	s.apply(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, harvest.Transient(key, err)
	}
	defer resp.Body.Close()

	if kind, failed := statusKind(resp.StatusCode); failed {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &harvest.FetchError{
			Key:        key,
			Kind:       kind,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("GET %s: %s", url, http.StatusText(resp.StatusCode)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, harvest.Transient(key, fmt.Errorf("reading %s: %w", url, err))
	}
	return body, nil
}

// statusKind maps an HTTP status to a failure kind. failed is false for 2xx.
func statusKind(code int) (kind harvest.Kind, failed bool) {
	switch {
	case code >= 200 && code < 300:
		return harvest.KindTransient, false
	case code == http.StatusNotFound, code == http.StatusGone:
		return harvest.KindPermanent, true
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		// An expired session recovers on a later attempt.
		return harvest.KindTransient, true
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= 500:
		return harvest.KindTransient, true
	default:
		return harvest.KindPermanent, true
	}
}
