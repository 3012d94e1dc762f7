package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// ScoreApplication handles POST /v1/applications/score. The evaluation is
// persisted and cached before it is returned.
func (h *Handler) ScoreApplication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req domain.RawFeatures
	if !decodeJSON(w, r, &req) {
		return
	}

	eval, err := h.Processor.ScoreApplication(ctx, tenantID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if h.Repo != nil {
		if err := h.Repo.SaveEvaluation(ctx, tenantID, eval); err != nil {
			slog.Error("failed to save evaluation", "evaluation_id", eval.ID, "error", err)
		}
	}
	if h.Cache != nil {
		if err := h.Cache.SetEvaluation(ctx, tenantID, eval, h.EvaluationTTL); err != nil {
			slog.Warn("failed to cache evaluation", "evaluation_id", eval.ID, "error", err)
		}
	}

	writeData(w, r, http.StatusOK, eval.ToResponse())
}

// SubmitResponse acknowledges an application queued for async scoring.
type SubmitResponse struct {
	ApplicationID string `json:"applicationId"`
	Status        string `json:"status"`
	Topic         string `json:"topic"`
}

// SubmitApplication handles POST /v1/applications/submit. The application
// is validated, then published for the worker; the decision follows on
// the decision topic.
func (h *Handler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if !h.Async || h.Bus == nil {
		writeFailure(w, r, http.StatusServiceUnavailable, CodeUnavailable, "async processing is not enabled")
		return
	}

	var req domain.RawFeatures
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := scoring.Validate(req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ApplicationID == "" {
		req.ApplicationID = uuid.New().String()
	}

	msg := domain.ApplicationMessage{TenantID: tenantID, Features: req}
	if err := bus.PublishJSON(ctx, h.Bus, h.Routing.Route(tenantID), domain.TopicApplicationSubmitted, msg); err != nil {
		writeError(w, r, err)
		return
	}

	writeData(w, r, http.StatusAccepted, SubmitResponse{
		ApplicationID: req.ApplicationID,
		Status:        "SUBMITTED",
		Topic:         domain.TopicDecision,
	})
}

// GetEvaluation handles GET /v1/evaluations/{id}, reading through the cache.
func (h *Handler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	evalID := chi.URLParam(r, "id")

	if h.Cache != nil {
		eval, err := h.Cache.GetEvaluation(ctx, tenantID, evalID)
		if err != nil {
			slog.Warn("evaluation cache read failed", "evaluation_id", evalID, "error", err)
		}
		if eval != nil {
			writeData(w, r, http.StatusOK, eval)
			return
		}
	}

	if h.Repo == nil {
		writeFailure(w, r, http.StatusServiceUnavailable, CodeUnavailable, "repository not available")
		return
	}

	eval, err := h.Repo.GetEvaluation(ctx, tenantID, evalID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if h.Cache != nil {
		if err := h.Cache.SetEvaluation(ctx, tenantID, eval, h.EvaluationTTL); err != nil {
			slog.Warn("failed to cache evaluation", "evaluation_id", eval.ID, "error", err)
		}
	}

	writeData(w, r, http.StatusOK, eval)
}
