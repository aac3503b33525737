package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/userdeck/pkg/apperr"
	"github.com/platinummonkey/userdeck/pkg/auth"
	"github.com/platinummonkey/userdeck/pkg/contextkeys"
	"github.com/platinummonkey/userdeck/pkg/httputil"
	"github.com/platinummonkey/userdeck/pkg/observability"
)

// Response is a complete response a stage or handler hands back to the
// chain. The chain owns the writer; stages never touch it directly.
type Response struct {
	Status int
	Header http.Header
	Body   interface{}
}

// RequestContext is the mutable per-request state threaded through the
// chain. Header collects response headers (rate limit headers survive even
// when a later stage terminates the request). Body holds the sanitized
// request payload once body validation has run.
type RequestContext struct {
	Request *http.Request
	ID      string
	Method  string
	Path    string
	Header  http.Header
	Body    []byte
	Auth    *auth.AuthContext
	Start   time.Time

	// now is the chain's clock, threaded in so stage-built error envelopes
	// carry the same timestamps as translated ones
	now func() time.Time
}

type resultKind int

const (
	resultContinue resultKind = iota
	resultTerminal
	resultFail
)

// Result is the explicit outcome of one stage: pass the request on,
// terminate with a complete response, or fail with an error the chain
// translates. Control flow is always through the returned value, never
// through panics.
type Result struct {
	kind     resultKind
	response *Response
	err      error
}

// Continue passes the request to the next stage
func Continue() Result {
	return Result{kind: resultContinue}
}

// Terminal ends the request with a complete response; later stages and
// the handler never run
func Terminal(resp *Response) Result {
	return Result{kind: resultTerminal, response: resp}
}

// Fail ends the request with an error, translated once by the chain
func Fail(err error) Result {
	return Result{kind: resultFail, err: err}
}

// Stage is one step of the pre-handler pipeline
type Stage interface {
	Name() string
	Process(ctx context.Context, rc *RequestContext) Result
}

// Finalizer is an optional stage hook that runs after the response status
// is known. The chain only finalizes stages that returned Continue: a
// stage that terminated the request (or never ran) is not consulted.
type Finalizer interface {
	Finalize(ctx context.Context, rc *RequestContext, status int)
}

// Handler produces the final response once every stage has passed.
// It must return Terminal or Fail; Continue from a handler is a bug.
type Handler func(ctx context.Context, rc *RequestContext) Result

// Chain executes stages in the order given at construction, then the
// handler. The order is fixed; there is no per-request reordering.
type Chain struct {
	stages  []Stage
	handler Handler
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// ChainOption configures a Chain
type ChainOption func(*Chain)

// WithLogger sets the chain's structured logger
func WithLogger(logger *observability.Logger) ChainOption {
	return func(c *Chain) { c.logger = logger }
}

// WithMetrics enables pipeline metrics
func WithMetrics(metrics *observability.Metrics) ChainOption {
	return func(c *Chain) { c.metrics = metrics }
}

// WithClock injects the clock used for error timestamps and latency
func WithClock(now func() time.Time) ChainOption {
	return func(c *Chain) { c.now = now }
}

// NewChain builds a chain around handler with the given stage order
func NewChain(handler Handler, stages []Stage, opts ...ChainOption) *Chain {
	c := &Chain{
		stages:  stages,
		handler: handler,
		logger:  observability.NewLogger(observability.InfoLevel, nil),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chain) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()

	ctx := contextkeys.WithRequestID(r.Context(), requestID)
	ctx = contextkeys.WithLogger(ctx, c.logger)
	r = r.WithContext(ctx)

	rc := &RequestContext{
		Request: r,
		ID:      requestID,
		Method:  r.Method,
		Path:    r.URL.Path,
		Header:  make(http.Header),
		Start:   c.now(),
		now:     c.now,
	}

	var completed []Finalizer
	var resp *Response

	for _, stage := range c.stages {
		result := stage.Process(ctx, rc)
		switch result.kind {
		case resultContinue:
			if f, ok := stage.(Finalizer); ok {
				completed = append(completed, f)
			}
			continue
		case resultTerminal:
			resp = result.response
			if c.metrics != nil {
				c.metrics.StageShortCircuitsTotal.WithLabelValues(stage.Name()).Inc()
			}
		case resultFail:
			resp = c.translate(rc, result.err)
		}
		break
	}

	if resp == nil {
		result := c.handler(ctx, rc)
		switch result.kind {
		case resultTerminal:
			resp = result.response
		case resultFail:
			resp = c.translate(rc, result.err)
		default:
			resp = c.translate(rc, apperr.Internal(errNoHandlerResponse))
		}
	}

	c.write(w, rc, resp)

	for _, f := range completed {
		f.Finalize(ctx, rc, resp.Status)
	}

	if c.metrics != nil {
		c.metrics.ObserveRequest(rc.Method, rc.Path, resp.Status, c.now().Sub(rc.Start))
	}
}

var errNoHandlerResponse = &handlerContractError{}

type handlerContractError struct{}

func (*handlerContractError) Error() string { return "handler returned no response" }

// translate is the chain's single error translation point: every Fail,
// from any stage or the handler, becomes the uniform error envelope here.
func (c *Chain) translate(rc *RequestContext, err error) *Response {
	appErr := apperr.Coerce(err)

	log := c.logger.WithFields(map[string]interface{}{
		"request_id": rc.ID,
		"method":     rc.Method,
		"path":       rc.Path,
		"status":     appErr.Status,
		"code":       string(appErr.Code),
	})
	if appErr.Code == apperr.CodeInternal {
		log.WithError(appErr.Err).Error("request failed")
	} else {
		log.Warn(appErr.Message)
	}

	return &Response{
		Status: appErr.Status,
		Body:   httputil.EncodeError(rc.Path, appErr, c.now()),
	}
}

func (c *Chain) write(w http.ResponseWriter, rc *RequestContext, resp *Response) {
	for key, values := range rc.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	if resp.Body != nil {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(resp.Status)
	if resp.Body != nil {
		_ = json.NewEncoder(w).Encode(resp.Body)
	}
}

// JSONResponse builds a Terminal-ready JSON response
func JSONResponse(status int, body interface{}) *Response {
	return &Response{Status: status, Body: body}
}

// TerminalError builds a Terminal result carrying the uniform error
// envelope, for stages that decide a rejection themselves (rate limit,
// size limit) rather than failing into the chain's translator.
func TerminalError(rc *RequestContext, err error) Result {
	appErr := apperr.Coerce(err)
	now := rc.now
	if now == nil {
		now = time.Now
	}
	return Terminal(&Response{
		Status: appErr.Status,
		Body:   httputil.EncodeError(rc.Path, appErr, now()),
	})
}
