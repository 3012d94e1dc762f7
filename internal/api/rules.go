package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// RuleList is the response for GET /v1/rules.
type RuleList struct {
	Rules  []*domain.RuleConfig `json:"rules"`
	Count  int                  `json:"count"`
	Source string               `json:"source"`
}

// ListRules returns the rules currently loaded in the engine.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loaded := h.Engine.GetLoadedRules()
	writeData(w, r, http.StatusOK, RuleList{
		Rules:  loaded,
		Count:  len(loaded),
		Source: "database",
	})
}

// GetRule retrieves a loaded rule by ID.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	for _, rule := range h.Engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeData(w, r, http.StatusOK, rule)
			return
		}
	}

	writeFailure(w, r, http.StatusNotFound, CodeNotFound, "rule not found")
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Version     string            `json:"version,omitempty"`
	Expression  string            `json:"expression"`
	Bands       []domain.RuleBand `json:"bands"`
	Enabled     bool              `json:"enabled"`
}

// CreateRule validates a rule and stores it for all tenants. It takes
// effect on the next POST /v1/rules/reload.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.Repo == nil {
		writeFailure(w, r, http.StatusServiceUnavailable, CodeUnavailable, "repository not available")
		return
	}

	var req CreateRuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeFailure(w, r, http.StatusBadRequest, CodeValidation, "id, name, and expression are required")
		return
	}
	if req.Version == "" {
		req.Version = "1.0.0"
	}

	rule := &domain.RuleConfig{
		ID:          req.ID,
		TenantID:    domain.GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     req.Version,
		Expression:  req.Expression,
		Bands:       req.Bands,
		Enabled:     req.Enabled,
	}

	if err := h.Engine.ValidateRule(rule); err != nil {
		writeFailure(w, r, http.StatusBadRequest, CodeValidation, "invalid CEL expression: "+err.Error())
		return
	}

	if err := h.Repo.SaveRuleConfig(ctx, domain.GlobalTenantID, rule); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("rule created", "id", rule.ID, "name", rule.Name)
	writeData(w, r, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "Rule created. Call POST /v1/rules/reload to apply changes.",
	})
}

// ReloadRules swaps the engine's rules for the enabled set in the database.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.Repo == nil {
		writeFailure(w, r, http.StatusServiceUnavailable, CodeUnavailable, "repository not available")
		return
	}

	dbRules, err := h.Repo.ListRuleConfigs(ctx, domain.GlobalTenantID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.Engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeFailure(w, r, http.StatusInternalServerError, CodeInternal, "failed to reload rules: "+err.Error())
		return
	}

	slog.Info("rules reloaded from database", "count", len(dbRules))
	writeData(w, r, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}
