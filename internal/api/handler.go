package api

import (
	"net/http"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/underwriting"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Deps are the services the API handlers call into. Repo, Cache and Bus
// may be nil; the endpoints that need them then answer 503.
type Deps struct {
	Repo      domain.Repository
	Cache     domain.Cache
	Bus       domain.EventBus
	Engine    *rules.Engine
	Processor *underwriting.Processor

	// Async enables POST /v1/applications/submit; Routing must match the
	// worker's configuration so submissions reach it.
	Async   bool
	Routing worker.Config

	EvaluationTTL time.Duration
	Version       string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	Deps
	now func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		Deps: deps,
		now:  time.Now,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "healthy"
	checks := map[string]string{}

	check := func(name string, ping func() error) {
		if err := ping(); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			return
		}
		checks[name] = "ok"
	}

	if h.Repo != nil {
		check("repository", func() error { return h.Repo.Ping(ctx) })
	}
	if h.Cache != nil {
		check("cache", func() error { return h.Cache.Ping(ctx) })
	}
	if h.Bus != nil {
		check("eventBus", func() error { return h.Bus.Ping(ctx) })
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": h.Version,
		"model":   h.Processor.Model().Config().Model,
		"rules":   h.Engine.RulesCount(),
		"checks":  checks,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.Repo != nil {
		if err := h.Repo.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}
