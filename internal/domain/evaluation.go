package domain

import (
	"time"
)

// Evaluation is the persisted record of one scored application.
type Evaluation struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenantId"`
	ApplicationID string    `json:"applicationId"`
	ApplicantID   string    `json:"applicantId,omitempty"`
	Status        string    `json:"status"` // "CLEAR" or "REVIEW"
	Timestamp     time.Time `json:"timestamp"`

	Features RawFeatures  `json:"request"`
	Score    *ScoreResult `json:"score"`

	// Policy rule results overlaid on the score
	RuleResults []RuleResult `json:"ruleResults"`

	// Processing metadata
	Metadata EvaluationMetadata `json:"metadata"`
}

// EvaluationMetadata contains processing information.
type EvaluationMetadata struct {
	TraceID        string `json:"traceId"`
	ScoreMs        int64  `json:"scoreMs"`
	RulesMs        int64  `json:"rulesMs"`
	TotalMs        int64  `json:"totalMs"`
	RulesEvaluated int    `json:"rulesEvaluated"`
	ModelVersion   string `json:"modelVersion"`
	EngineVersion  string `json:"engineVersion"`
}

// EvaluationResponse is the API response for a scored application.
type EvaluationResponse struct {
	EvaluationID        string             `json:"evaluationId"`
	ApplicationID       string             `json:"applicationId"`
	TenantID            string             `json:"tenantId"`
	Decision            Decision           `json:"decision"`
	ApprovalProbability float64            `json:"approvalProbability"`
	ApprovedAmount      float64            `json:"approvedAmount"`
	InterestRate        float64            `json:"interestRate"`
	Term                int                `json:"term"`
	MonthlyPayment      float64            `json:"monthlyPayment"`
	RiskLevel           RiskLevel          `json:"riskLevel"`
	RiskScore           float64            `json:"riskScore"`
	CreditEvaluation    CreditEvaluation   `json:"creditEvaluation"`
	Insights            ModelInsights      `json:"mlInsights"`
	Conditions          []string           `json:"conditions"`
	DenialReasons       []string           `json:"denialReasons"`
	ManualReview        bool               `json:"manualReview"`
	PolicyReasons       []string           `json:"policyReasons,omitempty"`
	Metadata            EvaluationMetadata `json:"metadata"`
}

// ModelInsights explains a score.
type ModelInsights struct {
	Model           string        `json:"model"`
	Features        FeatureVector `json:"features"`
	Weights         Coefficients  `json:"weights"`
	LogitScore      float64       `json:"logitScore"`
	RiskFactors     []string      `json:"riskFactors"`
	PositiveFactors []string      `json:"positiveFactors"`
	ConfidenceScore float64       `json:"confidenceScore"`
}

// Evaluation status constants
const (
	StatusClear  = "CLEAR"  // no policy rule asked for review
	StatusReview = "REVIEW" // at least one policy rule flagged the application
)

// ManualReview reports whether policy rules flagged the application.
func (e *Evaluation) ManualReview() bool {
	return e.Status == StatusReview
}

// PolicyReasons returns the reasons of flagged rule results.
func (e *Evaluation) PolicyReasons() []string {
	var reasons []string
	for _, r := range e.RuleResults {
		if r.SubRuleRef == RuleOutcomeFail || r.SubRuleRef == RuleOutcomeReview {
			reasons = append(reasons, r.Reason)
		}
	}
	return reasons
}

// ToResponse converts an Evaluation to an API response.
func (e *Evaluation) ToResponse() *EvaluationResponse {
	s := e.Score
	return &EvaluationResponse{
		EvaluationID:        e.ID,
		ApplicationID:       e.ApplicationID,
		TenantID:            e.TenantID,
		Decision:            s.Decision,
		ApprovalProbability: s.ApprovalPercent(),
		ApprovedAmount:      s.ApprovedAmount,
		InterestRate:        s.InterestRate,
		Term:                s.Term,
		MonthlyPayment:      s.MonthlyPayment,
		RiskLevel:           s.RiskLevel,
		RiskScore:           s.RiskScore,
		CreditEvaluation: CreditEvaluation{
			CreditScore: int(e.Features.CreditScore),
			CreditGrade: s.CreditGrade,
			Bureau:      "ML-Enhanced Evaluation",
			ScoreDate:   e.Timestamp.UTC().Format(time.DateOnly),
		},
		Insights: ModelInsights{
			Model:           s.Model,
			Features:        s.Features,
			Weights:         s.Weights,
			LogitScore:      s.Logit,
			RiskFactors:     s.RiskFactors,
			PositiveFactors: s.PositiveFactors,
			ConfidenceScore: s.ConfidenceScore,
		},
		Conditions:    s.Conditions,
		DenialReasons: s.DenialReasons,
		ManualReview:  e.ManualReview(),
		PolicyReasons: e.PolicyReasons(),
		Metadata:      e.Metadata,
	}
}
