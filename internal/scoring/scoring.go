// Package scoring evaluates loan applications with a fixed logistic model.
package scoring

import (
	"fmt"
	"math"

	"github.com/opensource-finance/kestrel/internal/amortize"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/scenario"
)

// Feature defaults applied when an optional input is absent.
const (
	DefaultEmploymentYears = 2.0
	DefaultDTIRatio        = 0.3
)

// Probability is kept inside (epsilon, 1-epsilon) so that extreme logits
// still map to a strictly open interval.
const epsilon = 1e-12

// Conditions attached to conditional approvals.
var approvalConditions = []string{"Income verification required", "Employment verification required"}

// Model scores applications against a bound coefficient table.
// It holds no mutable state and is safe for concurrent use.
type Model struct {
	cfg domain.ScoringConfig
}

// NewModel binds a model to cfg.
func NewModel(cfg domain.ScoringConfig) *Model {
	if cfg.Pricing.DefaultTermMonths <= 0 {
		cfg.Pricing.DefaultTermMonths = 60
	}
	return &Model{cfg: cfg}
}

// DefaultModel returns the LogisticRegression_v1 model.
func DefaultModel() *Model {
	return NewModel(domain.DefaultScoringConfig())
}

// Config returns the bound coefficients and pricing.
func (m *Model) Config() domain.ScoringConfig {
	return m.cfg
}

// Validate checks the required inputs of f.
func Validate(f domain.RawFeatures) error {
	required := []struct {
		field string
		value float64
	}{
		{"creditScore", f.CreditScore},
		{"annualIncome", f.AnnualIncome},
		{"loanAmount", f.LoanAmount},
	}
	for _, r := range required {
		if !(r.value > 0) || math.IsInf(r.value, 0) {
			return domain.NewValidationError(r.field, "is required and must be positive")
		}
	}
	if math.IsInf(f.LoanAmount/f.AnnualIncome, 0) {
		return domain.NewValidationError("annualIncome", "is too small relative to loanAmount")
	}
	if f.LoanTermMonths != nil && *f.LoanTermMonths <= 0 {
		return domain.NewValidationError("loanTerm", "must be greater than zero")
	}
	if f.LoanTermMonths != nil && *f.LoanTermMonths > amortize.MaxTermMonths {
		return domain.NewValidationError("loanTerm", fmt.Sprintf("must not exceed %d months", amortize.MaxTermMonths))
	}
	if f.EmploymentYears != nil && !isFinite(*f.EmploymentYears) {
		return domain.NewValidationError("employmentYears", "must be a finite number")
	}
	if f.DTIRatio != nil && !isFinite(*f.DTIRatio) {
		return domain.NewValidationError("dtiRatio", "must be a finite number")
	}
	return nil
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Term returns the loan term of f or the model default.
func (m *Model) Term(f domain.RawFeatures) int {
	if f.LoanTermMonths != nil {
		return *f.LoanTermMonths
	}
	return m.cfg.Pricing.DefaultTermMonths
}

// Normalize derives the feature vector of f.
func (m *Model) Normalize(f domain.RawFeatures) domain.FeatureVector {
	employment := DefaultEmploymentYears
	if f.EmploymentYears != nil {
		employment = *f.EmploymentYears
	}
	dti := DefaultDTIRatio
	if f.DTIRatio != nil {
		dti = *f.DTIRatio
	}
	var defaults float64
	if f.PriorDefaults {
		defaults = 1
	}

	return domain.FeatureVector{
		CreditScoreNorm:     clip((f.CreditScore-300)/550, 0, 1),
		LoanToIncomeRatio:   f.LoanAmount / f.AnnualIncome,
		DTIRatioNorm:        clip(dti/0.6, 0, 1),
		EmploymentStability: clip(employment/10, 0, 1),
		HasDefaults:         defaults,
		LoanAmountNorm:      clip(f.LoanAmount/100000, 0, 1),
		TermRisk:            float64(m.Term(f)) / 84,
	}
}

// Logit is the weighted sum of the features plus the intercept.
func (m *Model) Logit(v domain.FeatureVector) float64 {
	c := m.cfg.Coefficients
	return c.Intercept +
		c.CreditScore*v.CreditScoreNorm +
		c.LoanToIncome*v.LoanToIncomeRatio +
		c.DTIRatio*v.DTIRatioNorm +
		c.Employment*v.EmploymentStability +
		c.Defaults*v.HasDefaults +
		c.LoanAmount*v.LoanAmountNorm +
		c.TermRisk*v.TermRisk
}

// Sigmoid maps x into the open interval (0, 1).
func Sigmoid(x float64) float64 {
	var p float64
	if x >= 0 {
		p = 1 / (1 + math.Exp(-x))
	} else {
		e := math.Exp(x)
		p = e / (1 + e)
	}
	return clip(p, epsilon, 1-epsilon)
}

// Bucket maps an approval probability to a decision and risk level.
func Bucket(p float64) (domain.Decision, domain.RiskLevel) {
	switch {
	case p >= 0.75:
		return domain.DecisionApproved, domain.RiskLow
	case p >= 0.5:
		return domain.DecisionApprovedWithConditions, domain.RiskMedium
	case p >= 0.3:
		return domain.DecisionPendingReview, domain.RiskMediumHigh
	default:
		return domain.DecisionDenied, domain.RiskHigh
	}
}

// Score evaluates f and returns a fresh result.
func (m *Model) Score(f domain.RawFeatures) (*domain.ScoreResult, error) {
	if err := Validate(f); err != nil {
		return nil, err
	}

	v := m.Normalize(f)
	logit := m.Logit(v)
	p := Sigmoid(logit)
	decision, risk := Bucket(p)

	var approved float64
	switch decision {
	case domain.DecisionApproved:
		approved = f.LoanAmount
	case domain.DecisionApprovedWithConditions:
		approved = math.Round(f.LoanAmount * 0.8)
	}

	pricing := m.cfg.Pricing
	rate := domain.Round(pricing.BaseRate+(1-p)*pricing.MaxPremium, 2)
	term := m.Term(f)

	var payment float64
	if approved > 0 {
		a, err := amortize.Calculate(approved, rate, term)
		if err != nil {
			return nil, err
		}
		payment = a.MonthlyPayment
	}

	riskFactors, positiveFactors := factors(v)

	res := &domain.ScoreResult{
		Decision:        decision,
		Probability:     p,
		ApprovedAmount:  approved,
		InterestRate:    rate,
		Term:            term,
		MonthlyPayment:  payment,
		RiskLevel:       risk,
		RiskScore:       domain.Round((1-p)*100, 2),
		ConfidenceScore: domain.Round(math.Abs(p-0.5)*2*100, 2),
		Logit:           domain.Round(logit, 4),
		CreditGrade:     scenario.CreditGrade(f.CreditScore),
		Features:        v,
		RiskFactors:     riskFactors,
		PositiveFactors: positiveFactors,
		DenialReasons:   []string{},
		Conditions:      []string{},
		Model:           m.cfg.Model,
		Weights:         m.cfg.Coefficients,
	}
	switch decision {
	case domain.DecisionDenied:
		res.DenialReasons = append(res.DenialReasons, riskFactors...)
	case domain.DecisionApprovedWithConditions:
		res.Conditions = append(res.Conditions, approvalConditions...)
	}

	return res, nil
}

func factors(v domain.FeatureVector) (risk, positive []string) {
	risk = []string{}
	positive = []string{}

	if v.CreditScoreNorm < 0.5 {
		risk = append(risk, "Below average credit score")
	}
	if v.LoanToIncomeRatio > 0.4 {
		risk = append(risk, "High loan-to-income ratio")
	}
	if v.DTIRatioNorm > 0.6 {
		risk = append(risk, "Elevated debt-to-income ratio")
	}
	if v.EmploymentStability < 0.2 {
		risk = append(risk, "Limited employment history")
	}
	if v.HasDefaults > 0 {
		risk = append(risk, "Previous loan defaults")
	}

	if v.CreditScoreNorm >= 0.7 {
		positive = append(positive, "Strong credit history")
	}
	if v.LoanToIncomeRatio <= 0.2 {
		positive = append(positive, "Conservative loan amount")
	}
	if v.DTIRatioNorm <= 0.3 {
		positive = append(positive, "Low debt burden")
	}
	if v.EmploymentStability >= 0.5 {
		positive = append(positive, "Stable employment")
	}
	return risk, positive
}

func clip(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
