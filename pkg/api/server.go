package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/userdeck/pkg/apperr"
	"github.com/platinummonkey/userdeck/pkg/auth"
	"github.com/platinummonkey/userdeck/pkg/httputil"
	"github.com/platinummonkey/userdeck/pkg/middleware"
	"github.com/platinummonkey/userdeck/pkg/observability"
	"github.com/platinummonkey/userdeck/pkg/procedure"
	"github.com/platinummonkey/userdeck/pkg/users"
)

// RateLimitOptions configures the admission stage shared by API routes
type RateLimitOptions struct {
	Limiter        middleware.Limiter
	Window         time.Duration
	Max            int
	SkipSuccessful bool
	SkipFailed     bool
}

// SecurityOptions configures the request hygiene stages
type SecurityOptions struct {
	AllowedOrigins []string
	DeniedIPs      []string
	MaxBodyBytes   int64
}

// Options bundles the server's collaborators
type Options struct {
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	RateLimit RateLimitOptions
	Security  SecurityOptions

	// Health probes; nil checks are skipped
	DBCheck    func() error
	RedisCheck func() error
}

// Server is the HTTP API: user CRUD procedures behind the request pipeline
type Server struct {
	router   *mux.Router
	service  *users.Service
	resolver *auth.Resolver
	opts     Options
}

// NewServer creates the API server and registers all routes
func NewServer(service *users.Service, resolver *auth.Resolver, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	s := &Server{
		router:   mux.NewRouter(),
		service:  service,
		resolver: resolver,
		opts:     opts,
	}
	s.setupRoutes()
	return s
}

// Router exposes the configured router for the HTTP server
func (s *Server) Router() http.Handler {
	return s.router
}

// stages builds the canonical pipeline order. Every API route runs the
// same stage sequence; only the handler behind it differs.
func (s *Server) stages() []middleware.Stage {
	stages := []middleware.Stage{
		&middleware.RequestLogging{Logger: s.opts.Logger},
	}

	if len(s.opts.Security.DeniedIPs) > 0 {
		denied := make(map[string]struct{}, len(s.opts.Security.DeniedIPs))
		for _, ip := range s.opts.Security.DeniedIPs {
			denied[ip] = struct{}{}
		}
		stages = append(stages, &middleware.IPDenylist{Denied: denied})
	}

	stages = append(stages, &middleware.CSRF{AllowedOrigins: s.opts.Security.AllowedOrigins})

	if s.opts.Security.MaxBodyBytes > 0 {
		stages = append(stages, &middleware.SizeLimit{MaxBytes: s.opts.Security.MaxBodyBytes})
	}

	stages = append(stages, &middleware.BodyValidation{})

	if s.opts.RateLimit.Limiter != nil {
		stages = append(stages, &middleware.RateLimit{
			Limiter:        s.opts.RateLimit.Limiter,
			Window:         s.opts.RateLimit.Window,
			Max:            s.opts.RateLimit.Max,
			SkipSuccessful: s.opts.RateLimit.SkipSuccessful,
			SkipFailed:     s.opts.RateLimit.SkipFailed,
			Metrics:        s.opts.Metrics,
			Logger:         s.opts.Logger,
		})
	}

	return stages
}

// route wires one procedure behind its own chain instance. The stage list
// is rebuilt per route so per-route rate limit keys stay independent, but
// the order never varies.
func (s *Server) route(proc *procedure.Procedure, status int, input inputFunc) http.Handler {
	return middleware.NewChain(
		s.dispatch(proc, status, input),
		s.stages(),
		middleware.WithLogger(s.opts.Logger),
		middleware.WithMetrics(s.opts.Metrics),
	)
}

func (s *Server) setupRoutes() {
	// Unknown routes get the same error envelope as pipeline failures
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, r.URL.Path, apperr.NotFound("Route"))
	})

	// User routes
	s.router.Handle("/api/users", s.route(s.createUser(), http.StatusCreated, bodyInput)).Methods("POST")
	s.router.Handle("/api/users", s.route(s.listUsers(), http.StatusOK, listInput)).Methods("GET")
	s.router.Handle("/api/users/{id}", s.route(s.getUser(), http.StatusOK, pathIDInput)).Methods("GET")
	s.router.Handle("/api/users/{id}", s.route(s.updateUser(), http.StatusOK, bodyWithPathIDInput)).Methods("PUT")
	s.router.Handle("/api/users/{id}", s.route(s.deleteUser(), http.StatusOK, pathIDInput)).Methods("DELETE")

	// Health probe (outside the pipeline: probes must not be rate limited
	// or require auth)
	s.router.HandleFunc("/healthz", s.healthz).Methods("GET")

	if s.opts.Metrics != nil {
		s.router.Handle("/metrics", s.opts.Metrics.Handler()).Methods("GET")
	}
}
