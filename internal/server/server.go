package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/redacter-man/pii-redacter/internal/audit"
	"github.com/redacter-man/pii-redacter/internal/detect"
	"github.com/redacter-man/pii-redacter/internal/otel"
	"github.com/redacter-man/pii-redacter/internal/pipeline"
	"github.com/redacter-man/pii-redacter/internal/policy"
)

const defaultTimeout = 60 * time.Second

// Server holds all dependencies for the HTTP API.
type Server struct {
	router     *chi.Mux
	pipeline   *pipeline.Pipeline
	detector   *detect.Detector
	auditStore *audit.Store
	policy     *policy.Policy
	apiKeys    map[string]string
	limiter    *RateLimiter
	timeout    time.Duration
	startTime  time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithRateLimiter sets the request rate limiter (optional; nil = unlimited).
func WithRateLimiter(rl *RateLimiter) Option {
	return func(s *Server) { s.limiter = rl }
}

// WithRequestTimeout overrides the default 60s per-request timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewServer builds a Server. apiKeys maps API key -> caller name; an empty
// map means every authenticated route returns 401.
func NewServer(
	pipe *pipeline.Pipeline,
	detector *detect.Detector,
	auditStore *audit.Store,
	pol *policy.Policy,
	apiKeys map[string]string,
	opts ...Option,
) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		pipeline:   pipe,
		detector:   detector,
		auditStore: auditStore,
		policy:     pol,
		apiKeys:    apiKeys,
		timeout:    defaultTimeout,
		startTime:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.apiKeys == nil {
		s.apiKeys = make(map[string]string)
	}
	return s
}

// Routes returns the configured http.Handler (chi router with all middleware
// and routes).
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(otel.MiddlewareWithStatus())

	// Unauthenticated
	r.Get("/healthz", s.handleHealth)

	// Authenticated API group
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.apiKeys))
		r.Use(RateLimitMiddleware(s.limiter))
		r.Use(middleware.Timeout(s.timeout))

		r.Post("/v1/redact", s.handleRedact)
		r.Post("/v1/scan", s.handleScan)

		r.Get("/v1/audit", s.handleAuditList)
		r.Get("/v1/audit/{id}", s.handleAuditGet)
		r.Get("/v1/audit/{id}/verify", s.handleAuditVerify)
	})

	return r
}
