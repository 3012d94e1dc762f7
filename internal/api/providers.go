package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/scenario"
)

// decisionValidity is how long a canned decision stays valid.
const decisionValidity = 30 * 24 * time.Hour

// IdentifierRequest selects a canned scenario. ApplicationID wins over SSN.
type IdentifierRequest struct {
	ApplicationID string `json:"applicationId"`
	SSN           string `json:"ssn"`
}

func (req IdentifierRequest) identifier() string {
	if req.ApplicationID != "" {
		return req.ApplicationID
	}
	return req.SSN
}

// DecisionResponse is the canned decision engine answer.
type DecisionResponse struct {
	domain.OutcomeRecord
	CreditEvaluation domain.CreditEvaluation `json:"creditEvaluation"`
	ProcessedDate    time.Time               `json:"processedDate"`
	ExpirationDate   time.Time               `json:"expirationDate"`
}

// EvaluateDecision handles POST /v1/decisions/evaluate.
func (h *Handler) EvaluateDecision(w http.ResponseWriter, r *http.Request) {
	var req IdentifierRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rec, err := h.Processor.SelectDecisionScenario(req.identifier())
	if err != nil {
		writeError(w, r, err)
		return
	}

	now := h.now().UTC()
	writeData(w, r, http.StatusOK, DecisionResponse{
		OutcomeRecord:    rec,
		CreditEvaluation: scenario.CreditEvaluation(rec, now.Format(time.DateOnly)),
		ProcessedDate:    now,
		ExpirationDate:   now.Add(decisionValidity),
	})
}

// CreditScore handles POST /v1/credit-score.
func (h *Handler) CreditScore(w http.ResponseWriter, r *http.Request) {
	var req IdentifierRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	eval, err := h.Processor.CreditScore(req.identifier())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, eval)
}

// IncomeVerification is the canned income verification answer.
type IncomeVerification struct {
	domain.IncomeProfile
	VerificationDate time.Time `json:"verificationDate"`
}

// VerifyIncome handles POST /v1/income/verify. Unverifiable profiles answer
// 200 with success false, as the upstream provider does.
func (h *Handler) VerifyIncome(w http.ResponseWriter, r *http.Request) {
	var req IdentifierRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	profile := h.Processor.SelectIncomeProfile(req.identifier())
	if len(profile.Errors) > 0 {
		writeJSON(w, http.StatusOK, Envelope{
			Success:   false,
			Message:   "Income verification failed",
			ErrorCode: CodeIncomeUnverifiable,
			Errors:    profile.Errors,
			Metadata:  newMetadata(r),
		})
		return
	}

	writeData(w, r, http.StatusOK, IncomeVerification{
		IncomeProfile:    profile,
		VerificationDate: h.now().UTC(),
	})
}

// EmploymentVerification is the canned employment verification answer.
type EmploymentVerification struct {
	domain.Employment
	VerificationStatus string    `json:"verificationStatus"`
	VerificationDate   time.Time `json:"verificationDate"`
}

// VerifyEmployment handles POST /v1/employment/verify.
func (h *Handler) VerifyEmployment(w http.ResponseWriter, r *http.Request) {
	var req IdentifierRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	profile := h.Processor.SelectIncomeProfile(req.identifier())
	if profile.Employment.Status == "UNEMPLOYED" {
		writeJSON(w, http.StatusOK, Envelope{
			Success:   false,
			Message:   "Employment verification failed",
			ErrorCode: CodeEmploymentNotFound,
			Metadata:  newMetadata(r),
		})
		return
	}

	writeData(w, r, http.StatusOK, EmploymentVerification{
		Employment:         profile.Employment,
		VerificationStatus: "VERIFIED",
		VerificationDate:   h.now().UTC(),
	})
}

// DTIRequest is the request body for POST /v1/income/dti. When Breakdown
// is set it replaces MonthlyDebtPayments.
type DTIRequest struct {
	MonthlyIncome       float64               `json:"monthlyIncome"`
	MonthlyDebtPayments float64               `json:"monthlyDebtPayments"`
	Breakdown           *domain.DebtBreakdown `json:"breakdown,omitempty"`
}

// CalculateDTI handles POST /v1/income/dti.
func (h *Handler) CalculateDTI(w http.ResponseWriter, r *http.Request) {
	var req DTIRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var (
		result *domain.DTIResult
		err    error
	)
	if req.Breakdown != nil {
		result, err = h.Processor.DebtToIncomeBreakdown(req.MonthlyIncome, *req.Breakdown)
	} else {
		result, err = h.Processor.DebtToIncome(req.MonthlyIncome, req.MonthlyDebtPayments)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, result)
}

// AnalyzeIncome handles POST /v1/income/analyze. The analysis is stored so
// it can be fetched by ID later.
func (h *Handler) AnalyzeIncome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req domain.IncomeAnalysisRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	analysis, err := h.Processor.AnalyzeIncome(ctx, tenantID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if h.Repo != nil {
		if err := h.Repo.SaveIncomeAnalysis(ctx, tenantID, analysis); err != nil {
			slog.Error("failed to save income analysis", "analysis_id", analysis.ID, "error", err)
		}
	}

	writeData(w, r, http.StatusOK, analysis)
}

// GetIncomeAnalysis handles GET /v1/income/analyses/{id}.
func (h *Handler) GetIncomeAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.Repo == nil {
		writeFailure(w, r, http.StatusServiceUnavailable, CodeUnavailable, "repository not available")
		return
	}

	analysis, err := h.Repo.GetIncomeAnalysis(ctx, GetTenantID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, analysis)
}

// PaymentRequest is the request body for POST /v1/payments/calculate.
// Rate is an annual percentage.
type PaymentRequest struct {
	Principal float64 `json:"principal"`
	Rate      float64 `json:"rate"`
	Months    int     `json:"months"`
}

// CalculatePayment handles POST /v1/payments/calculate; ?schedule=true adds
// the per-period table.
func (h *Handler) CalculatePayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	withSchedule, _ := strconv.ParseBool(r.URL.Query().Get("schedule"))
	result, err := h.Processor.Amortize(req.Principal, req.Rate, req.Months, withSchedule)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, result)
}
