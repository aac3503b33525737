package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/platinummonkey/userdeck/pkg/apperr"
	"github.com/platinummonkey/userdeck/pkg/httputil"
	"github.com/platinummonkey/userdeck/pkg/observability"
	"github.com/platinummonkey/userdeck/pkg/ratelimit"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func okHandler(called *int) Handler {
	return func(ctx context.Context, rc *RequestContext) Result {
		*called++
		return Terminal(JSONResponse(http.StatusOK, map[string]string{"status": "ok"}))
	}
}

// recordingStage notes whether it ran and finalized
type recordingStage struct {
	name      string
	processed bool
	finalized bool
	lastCode  int
	result    Result
}

func (s *recordingStage) Name() string { return s.name }

func (s *recordingStage) Process(ctx context.Context, rc *RequestContext) Result {
	s.processed = true
	return s.result
}

func (s *recordingStage) Finalize(ctx context.Context, rc *RequestContext, status int) {
	s.finalized = true
	s.lastCode = status
}

func decodeEnvelope(t *testing.T, body []byte) httputil.ErrorEnvelope {
	t.Helper()
	var env httputil.ErrorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("response is not an error envelope: %v\n%s", err, body)
	}
	return env
}

func TestChain_RunsStagesInOrderThenHandler(t *testing.T) {
	first := &recordingStage{name: "first", result: Continue()}
	second := &recordingStage{name: "second", result: Continue()}
	var called int

	chain := NewChain(okHandler(&called), []Stage{first, second}, WithLogger(testLogger()))

	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, httptest.NewRequest("GET", "/api/users", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !first.processed || !second.processed || called != 1 {
		t.Errorf("pipeline incomplete: first=%v second=%v handler=%d", first.processed, second.processed, called)
	}
	if !first.finalized || first.lastCode != http.StatusOK {
		t.Errorf("first stage not finalized with final status: finalized=%v code=%d", first.finalized, first.lastCode)
	}
}

func TestChain_TerminalShortCircuits(t *testing.T) {
	before := &recordingStage{name: "before", result: Continue()}
	terminating := &recordingStage{name: "terminating"}
	terminating.result = Terminal(&Response{Status: http.StatusRequestEntityTooLarge, Body: map[string]string{"x": "y"}})
	after := &recordingStage{name: "after", result: Continue()}
	var called int

	chain := NewChain(okHandler(&called), []Stage{before, terminating, after}, WithLogger(testLogger()))

	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, httptest.NewRequest("POST", "/api/users", strings.NewReader("{}")))

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	if after.processed {
		t.Error("stage after the terminating one still ran")
	}
	if called != 0 {
		t.Error("handler ran despite short circuit")
	}
	// Only stages that returned Continue get finalized.
	if !before.finalized {
		t.Error("preceding stage was not finalized")
	}
	if terminating.finalized {
		t.Error("terminating stage must not be finalized")
	}
	if after.finalized {
		t.Error("skipped stage must not be finalized")
	}
	if before.lastCode != http.StatusRequestEntityTooLarge {
		t.Errorf("finalize saw status %d, want 413", before.lastCode)
	}
}

func TestChain_FailTranslatesOnce(t *testing.T) {
	failing := &recordingStage{name: "failing", result: Fail(apperr.Conflict("Email already in use"))}
	var called int

	chain := NewChain(okHandler(&called), []Stage{failing}, WithLogger(testLogger()))

	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, httptest.NewRequest("POST", "/api/users", strings.NewReader("{}")))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	env := decodeEnvelope(t, rec.Body.Bytes())
	if env.Error.Code != "CONFLICT" || env.Error.Message != "Email already in use" {
		t.Errorf("envelope = %+v", env.Error)
	}
	if env.Error.Path != "/api/users" {
		t.Errorf("path = %q", env.Error.Path)
	}
	if _, err := time.Parse(time.RFC3339, env.Error.Timestamp); err != nil {
		t.Errorf("timestamp %q not RFC3339", env.Error.Timestamp)
	}
}

// rejectingStage terminates every request through TerminalError
type rejectingStage struct{}

func (rejectingStage) Name() string { return "rejecting" }

func (rejectingStage) Process(ctx context.Context, rc *RequestContext) Result {
	return TerminalError(rc, apperr.Forbidden("Access denied"))
}

func TestChain_StageEnvelopeUsesChainClock(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var called int
	chain := NewChain(okHandler(&called), []Stage{rejectingStage{}},
		WithLogger(testLogger()),
		WithClock(func() time.Time { return fixed }))

	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, httptest.NewRequest("POST", "/api/users", strings.NewReader("{}")))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	env := decodeEnvelope(t, rec.Body.Bytes())
	if want := fixed.Format(time.RFC3339); env.Error.Timestamp != want {
		t.Errorf("timestamp = %q, want %q (stage envelopes must use the injected clock)", env.Error.Timestamp, want)
	}
}

func TestChain_UntypedHandlerErrorHidesCause(t *testing.T) {
	handler := func(ctx context.Context, rc *RequestContext) Result {
		return Fail(errors.New("pq: duplicate key value violates unique constraint"))
	}
	chain := NewChain(handler, nil, WithLogger(testLogger()))

	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, httptest.NewRequest("GET", "/api/users", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	env := decodeEnvelope(t, rec.Body.Bytes())
	if env.Error.Message != "Internal server error" {
		t.Errorf("message %q leaks internals", env.Error.Message)
	}
	if env.Error.Code != "INTERNAL_SERVER_ERROR" {
		t.Errorf("code = %q", env.Error.Code)
	}
}

func newRateLimitChain(t *testing.T, max int, skipSuccessful, skipFailed bool, handler Handler) (*Chain, *ratelimit.Store) {
	t.Helper()
	store := ratelimit.NewStore()
	stage := &RateLimit{
		Limiter:        &MemoryLimiter{Store: store},
		Window:         time.Minute,
		Max:            max,
		SkipSuccessful: skipSuccessful,
		SkipFailed:     skipFailed,
		Logger:         testLogger(),
	}
	return NewChain(handler, []Stage{stage}, WithLogger(testLogger())), store
}

func TestRateLimit_CountdownThenDeny(t *testing.T) {
	var called int
	chain, _ := newRateLimitChain(t, 5, false, false, okHandler(&called))

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/users", nil)
		req.Header.Set("X-Real-IP", "10.0.0.1")
		chain.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
		wantRemaining := strconv.Itoa(5 - (i + 1))
		if got := rec.Header().Get("X-RateLimit-Remaining"); got != wantRemaining {
			t.Errorf("request %d: X-RateLimit-Remaining = %q, want %q", i+1, got, wantRemaining)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "5" {
			t.Errorf("X-RateLimit-Limit = %q", got)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/users", nil)
	req.Header.Set("X-Real-IP", "10.0.0.1")
	chain.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", got)
	}
	env := decodeEnvelope(t, rec.Body.Bytes())
	if env.Error.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %q", env.Error.Code)
	}
	if called != 5 {
		t.Errorf("handler ran %d times, want 5", called)
	}
}

func TestRateLimit_SkipSuccessfulForgives(t *testing.T) {
	var called int
	chain, _ := newRateLimitChain(t, 2, true, false, okHandler(&called))

	// Every request succeeds and is forgiven, so the limit never trips.
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/users", nil)
		req.Header.Set("X-Real-IP", "10.0.0.2")
		chain.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}
}

func TestRateLimit_SkipFailedForgivesHandlerErrors(t *testing.T) {
	failing := func(ctx context.Context, rc *RequestContext) Result {
		return Fail(apperr.NotFound("User"))
	}
	chain, _ := newRateLimitChain(t, 2, false, true, failing)

	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/users/nope", nil)
		req.Header.Set("X-Real-IP", "10.0.0.3")
		chain.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("request %d: status = %d, want 404", i+1, rec.Code)
		}
	}
}

func TestRateLimit_OwnDenialIsNeverForgiven(t *testing.T) {
	var called int
	// skipFailed is set, and a 429 is a failed status, but the stage's own
	// rejection must stay counted: the finalizer only runs for stages that
	// returned Continue.
	chain, store := newRateLimitChain(t, 1, false, true, func(ctx context.Context, rc *RequestContext) Result {
		called++
		return Terminal(JSONResponse(http.StatusOK, nil))
	})

	send := func() int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/users", nil)
		req.Header.Set("X-Real-IP", "10.0.0.4")
		chain.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(); code != http.StatusOK {
		t.Fatalf("first request: status = %d", code)
	}
	for i := 0; i < 3; i++ {
		if code := send(); code != http.StatusTooManyRequests {
			t.Fatalf("denied request %d: status = %d, want 429", i+1, code)
		}
	}
	if called != 1 {
		t.Errorf("handler ran %d times, want 1", called)
	}
	if store.Len() != 1 {
		t.Errorf("tracked keys = %d, want 1", store.Len())
	}
}
