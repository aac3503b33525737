package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/platinummonkey/userdeck/pkg/apperr"
	"github.com/platinummonkey/userdeck/pkg/observability"
	"github.com/platinummonkey/userdeck/pkg/ratelimit"
)

// Limiter is the admission counter the rate limit stage consults. Both the
// in-memory store and the Redis store satisfy it (the former through
// MemoryLimiter).
type Limiter interface {
	Check(ctx context.Context, key string, window time.Duration, max int) (ratelimit.Decision, error)
	Forgive(ctx context.Context, key string) error
}

// MemoryLimiter adapts the in-process store to the Limiter interface
type MemoryLimiter struct {
	Store *ratelimit.Store
}

func (l *MemoryLimiter) Check(ctx context.Context, key string, window time.Duration, max int) (ratelimit.Decision, error) {
	return l.Store.Check(key, window, max), nil
}

func (l *MemoryLimiter) Forgive(ctx context.Context, key string) error {
	l.Store.Forgive(key)
	return nil
}

// RateLimit admits or rejects requests against a fixed-window counter.
// Every checked request counts immediately; the Skip flags then forgive
// the count after the fact based on the final response status. Forgiveness
// runs through the finalizer hook, which the chain only invokes for stages
// that returned Continue, so a request this stage rejected stays counted.
type RateLimit struct {
	Limiter        Limiter
	Window         time.Duration
	Max            int
	KeyFunc        func(rc *RequestContext) string
	SkipSuccessful bool
	SkipFailed     bool
	Metrics        *observability.Metrics
	Logger         *observability.Logger
}

func (s *RateLimit) Name() string { return "rate_limit" }

func (s *RateLimit) key(rc *RequestContext) string {
	if s.KeyFunc != nil {
		return s.KeyFunc(rc)
	}
	return ratelimit.ClientKey(rc.Request)
}

func (s *RateLimit) Process(ctx context.Context, rc *RequestContext) Result {
	key := s.key(rc)

	decision, err := s.Limiter.Check(ctx, key, s.Window, s.Max)
	if err != nil && s.Logger != nil {
		s.Logger.WithError(err).WithField("key", key).Warn("rate limit check degraded")
	}

	rc.Header.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	rc.Header.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	if !decision.ResetAt.IsZero() {
		rc.Header.Set("X-RateLimit-Reset", decision.ResetAt.UTC().Format(time.RFC3339))
	}

	if s.Metrics != nil {
		outcome := "allowed"
		if !decision.Allowed {
			outcome = "denied"
		}
		s.Metrics.RateLimitDecisionsTotal.WithLabelValues(outcome).Inc()
	}

	if !decision.Allowed {
		retryAfter := int(time.Until(decision.ResetAt).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		rc.Header.Set("Retry-After", strconv.Itoa(retryAfter))
		return TerminalError(rc, apperr.RateLimited("Too many requests, please try again later"))
	}
	return Continue()
}

// Finalize forgives the request's count when the configured skip flag
// matches the final status. Statuses below 400 count as successful.
func (s *RateLimit) Finalize(ctx context.Context, rc *RequestContext, status int) {
	failed := status >= 400
	if (s.SkipSuccessful && !failed) || (s.SkipFailed && failed) {
		if err := s.Limiter.Forgive(ctx, s.key(rc)); err != nil && s.Logger != nil {
			s.Logger.WithError(err).Warn("rate limit forgive failed")
		}
	}
}
