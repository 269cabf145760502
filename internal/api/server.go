package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pipeline"
)

const idleTimeout = 2 * time.Minute

// Server serves the Kestrel HTTP API.
type Server struct {
	router chi.Router
	http   *http.Server
}

// NewServer wires the handler into a router. metrics may be nil, in
// which case /metrics is not mounted.
func NewServer(cfg domain.ServerConfig, service *pipeline.Service, repo domain.Repository, cache domain.Cache, bus domain.EventBus, metrics http.Handler, version string) *Server {
	h := NewHandler(service, repo, cache, bus, version)
	router := newRouter(cfg, h, metrics)

	return &Server{
		router: router,
		http: &http.Server{
			Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:      router,
			ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
			IdleTimeout:  idleTimeout,
		},
	}
}

func newRouter(cfg domain.ServerConfig, h *Handler, metrics http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(
		allowOrigins(cfg.CORSOrigins),
		recoverPanics,
		traceRequests,
		logRequests,
		middleware.RealIP,
		middleware.Compress(5),
	)

	// Probes and metrics take no tenant.
	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	limiter := newTenantLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	r.Group(func(r chi.Router) {
		r.Use(requireTenant, limiter.middleware)

		r.Post("/verdict", h.Verdict)
		r.Route("/verdicts", func(r chi.Router) {
			r.Get("/", h.ListVerdicts)
			r.Get("/latest", h.LatestVerdict)
			r.Get("/{id}", h.GetVerdict)
		})
		r.Route("/rules", func(r chi.Router) {
			r.Get("/", h.ListRules)
			r.Post("/", h.CreateRule)
			r.Post("/reload", h.ReloadRules)
			r.Get("/{id}", h.GetRule)
			r.Delete("/{id}", h.DeleteRule)
		})
	})
	return r
}

// Start blocks serving until Shutdown; it then returns http.ErrServerClosed.
func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Router exposes the routing tree to in-process callers such as tests.
func (s *Server) Router() http.Handler {
	return s.router
}
