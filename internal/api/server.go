package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/observability"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server. metrics may be nil.
func NewServer(cfg domain.ServerConfig, deps Deps, metrics *observability.Metrics) *Server {
	handler := NewHandler(deps)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(TracingMiddleware)
	router.Use(AccessMiddleware(metrics))
	router.Use(RecoverMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, r, http.StatusNotFound, CodeNotFound, "Endpoint not found")
	})

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	if metrics != nil {
		router.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	router.Route("/v1", func(r chi.Router) {
		r.Use(TenantMiddleware)
		r.Use(RateLimitMiddleware(deps.Cache, cfg.RateLimit, cfg.RateWindow, metrics))

		// Provider scenarios
		r.Post("/decisions/evaluate", handler.EvaluateDecision)
		r.Post("/credit-score", handler.CreditScore)
		r.Post("/income/verify", handler.VerifyIncome)
		r.Post("/employment/verify", handler.VerifyEmployment)

		// Analytics
		r.Post("/income/analyze", handler.AnalyzeIncome)
		r.Get("/income/analyses/{id}", handler.GetIncomeAnalysis)
		r.Post("/income/dti", handler.CalculateDTI)
		r.Post("/payments/calculate", handler.CalculatePayment)

		// Application scoring
		r.Post("/applications/score", handler.ScoreApplication)
		r.Post("/applications/submit", handler.SubmitApplication)
		r.Get("/evaluations/{id}", handler.GetEvaluation)

		// Rule management
		r.Get("/rules", handler.ListRules)
		r.Get("/rules/{id}", handler.GetRule)
		r.Post("/rules", handler.CreateRule)
		r.Post("/rules/reload", handler.ReloadRules)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       time.Duration(s.config.ReadTimeout) * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
