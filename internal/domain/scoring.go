package domain

// RawFeatures is an applicant as submitted for scoring.
// CreditScore, AnnualIncome and LoanAmount are required; nil optionals
// take the defaults documented on each field.
type RawFeatures struct {
	ApplicationID string `json:"applicationId,omitempty"`
	ApplicantID   string `json:"applicantId,omitempty"`
	LoanPurpose   string `json:"loanPurpose,omitempty"`

	CreditScore  float64 `json:"creditScore"`
	AnnualIncome float64 `json:"annualIncome"`
	LoanAmount   float64 `json:"loanAmount"`

	// LoanTermMonths defaults to 60.
	LoanTermMonths *int `json:"loanTerm,omitempty"`
	// EmploymentYears defaults to 2.
	EmploymentYears *float64 `json:"employmentYears,omitempty"`
	// DTIRatio is a fraction (0.35 = 35%) and defaults to 0.3.
	DTIRatio *float64 `json:"dtiRatio,omitempty"`

	PriorDefaults bool `json:"previousDefaults"`
}

// FeatureVector holds normalized scoring inputs.
type FeatureVector struct {
	CreditScoreNorm     float64 `json:"creditScoreNorm"`
	LoanToIncomeRatio   float64 `json:"loanToIncomeRatio"`
	DTIRatioNorm        float64 `json:"dtiRatioNorm"`
	EmploymentStability float64 `json:"employmentStability"`
	HasDefaults         float64 `json:"hasDefaults"`
	LoanAmountNorm      float64 `json:"loanAmountNorm"`
	TermRisk            float64 `json:"termRisk"`
}

// AsMap exposes the features by name, as seen by policy rules.
func (f FeatureVector) AsMap() map[string]float64 {
	return map[string]float64{
		"creditScoreNorm":     f.CreditScoreNorm,
		"loanToIncomeRatio":   f.LoanToIncomeRatio,
		"dtiRatioNorm":        f.DTIRatioNorm,
		"employmentStability": f.EmploymentStability,
		"hasDefaults":         f.HasDefaults,
		"loanAmountNorm":      f.LoanAmountNorm,
		"termRisk":            f.TermRisk,
	}
}

// ScoreResult is the outcome of scoring one application.
// It is built once per call and never mutated afterwards.
type ScoreResult struct {
	Decision       Decision  `json:"decision"`
	Probability    float64   `json:"probability"`
	ApprovedAmount float64   `json:"approvedAmount"`
	InterestRate   float64   `json:"interestRate"`
	Term           int       `json:"term"`
	MonthlyPayment float64   `json:"monthlyPayment"`
	RiskLevel      RiskLevel `json:"riskLevel"`

	// RiskScore is (1-p)*100 and ConfidenceScore is |p-0.5|*200, both 2 dp.
	RiskScore       float64 `json:"riskScore"`
	ConfidenceScore float64 `json:"confidenceScore"`
	Logit           float64 `json:"logitScore"`
	CreditGrade     string  `json:"creditGrade"`

	Features        FeatureVector `json:"features"`
	RiskFactors     []string      `json:"riskFactors"`
	PositiveFactors []string      `json:"positiveFactors"`
	DenialReasons   []string      `json:"denialReasons"`
	Conditions      []string      `json:"conditions"`

	Model   string       `json:"model"`
	Weights Coefficients `json:"weights"`
}

// ApprovalPercent returns the probability as a percentage rounded to 2 dp.
func (r *ScoreResult) ApprovalPercent() float64 {
	return Round(r.Probability*100, 2)
}

// Coefficients is the hand-authored weight table of the decision scorer.
type Coefficients struct {
	Intercept    float64 `json:"intercept" toml:"intercept"`
	CreditScore  float64 `json:"creditScore" toml:"credit_score"`
	LoanToIncome float64 `json:"loanToIncome" toml:"loan_to_income"`
	DTIRatio     float64 `json:"dtiRatio" toml:"dti_ratio"`
	Employment   float64 `json:"employment" toml:"employment"`
	Defaults     float64 `json:"defaults" toml:"defaults"`
	LoanAmount   float64 `json:"loanAmount" toml:"loan_amount"`
	TermRisk     float64 `json:"termRisk" toml:"term_risk"`
}

// PricingConfig holds risk-based pricing inputs.
type PricingConfig struct {
	BaseRate          float64 `json:"baseRate" toml:"base_rate"`
	MaxPremium        float64 `json:"maxPremium" toml:"max_premium"`
	DefaultTermMonths int     `json:"defaultTermMonths" toml:"default_term_months"`
}

// ScoringConfig binds the scorer's constants.
type ScoringConfig struct {
	Model        string        `json:"model" toml:"model"`
	Coefficients Coefficients  `json:"coefficients" toml:"coefficients"`
	Pricing      PricingConfig `json:"pricing" toml:"pricing"`
}

// DefaultScoringConfig returns the LogisticRegression_v1 table.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		Model: "LogisticRegression_v1",
		Coefficients: Coefficients{
			Intercept:    0.5,
			CreditScore:  5.2,
			LoanToIncome: -1.8,
			DTIRatio:     -2.5,
			Employment:   1.5,
			Defaults:     -6.0,
			LoanAmount:   -0.5,
			TermRisk:     -0.8,
		},
		Pricing: PricingConfig{
			BaseRate:          5.5,
			MaxPremium:        15,
			DefaultTermMonths: 60,
		},
	}
}
