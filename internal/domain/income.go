package domain

import "time"

// Statistics summarises a numeric series.
type Statistics struct {
	Mean                   float64 `json:"mean"`
	Median                 float64 `json:"median"`
	StdDev                 float64 `json:"stdDev"`
	CoefficientOfVariation float64 `json:"coefficientOfVariation"`
	TrendSlope             float64 `json:"trendSlope"`
}

// Anomaly kinds and severities.
const (
	AnomalySpike = "SPIKE"
	AnomalyDrop  = "DROP"

	SeverityMedium = "MEDIUM"
	SeverityHigh   = "HIGH"
)

// Anomaly is an income point whose z-score crosses the anomaly threshold.
type Anomaly struct {
	Index    int     `json:"index"`
	Month    int     `json:"month"`
	Value    float64 `json:"income"`
	ZScore   float64 `json:"zScore"`
	Type     string  `json:"type"`
	Severity string  `json:"severity"`
}

// Fraud indicator types.
const (
	FraudSuddenIncrease    = "SUDDEN_INCREASE"
	FraudRoundNumbers      = "ROUND_NUMBERS"
	FraudIrregularDeposits = "IRREGULAR_DEPOSITS"
)

// FraudIndicator is a fabrication signal raised on an income series.
type FraudIndicator struct {
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// Recommendation and confidence labels.
const (
	RecommendApprove = "APPROVE"
	RecommendReview  = "REVIEW"
	RecommendCaution = "CAUTION"

	ConfidenceHigh   = "HIGH"
	ConfidenceMedium = "MEDIUM"
	ConfidenceLow    = "LOW"
)

// StabilityFactors are the weighted components of the stability score.
type StabilityFactors struct {
	Consistency     float64 `json:"consistency"`
	Trend           float64 `json:"trend"`
	AnomalyPenalty  float64 `json:"anomalyPenalty"`
	EmploymentBonus float64 `json:"employmentBonus"`
}

// IncomeSummary is the display form of Statistics.
type IncomeSummary struct {
	MeanIncome             float64 `json:"meanIncome"`
	MedianIncome           float64 `json:"medianIncome"`
	StdDeviation           float64 `json:"stdDeviation"`
	CoefficientOfVariation float64 `json:"coefficientOfVariation"`
	Trend                  string  `json:"trend"` // INCREASING, DECREASING, STABLE
	TrendStrength          float64 `json:"trendStrength"`
}

// StabilityResult is the outcome of an income analysis.
type StabilityResult struct {
	StabilityScore         int              `json:"stabilityScore"`
	VerificationConfidence string           `json:"verificationConfidence"`
	Statistics             Statistics       `json:"-"`
	Summary                IncomeSummary    `json:"statistics"`
	Anomalies              []Anomaly        `json:"anomalies"`
	FraudIndicators        []FraudIndicator `json:"fraudIndicators"`
	StabilityFactors       StabilityFactors `json:"stabilityFactors"`
	Insights               []string         `json:"insights"`
	Recommendation         string           `json:"recommendation"`
	DataPoints             int              `json:"dataPoints"`
	ModelVersion           string           `json:"modelVersion"`
}

// IncomeAnalysisRequest is the input to an income analysis.
type IncomeAnalysisRequest struct {
	ApplicantID      string    `json:"applicantId,omitempty"`
	MonthlyIncomes   []float64 `json:"monthlyIncomes"`
	DepositPatterns  []float64 `json:"depositPatterns,omitempty"`
	EmploymentMonths *float64  `json:"employmentMonths,omitempty"`
}

// IncomeAnalysis is a persisted income analysis.
type IncomeAnalysis struct {
	ID          string           `json:"id"`
	TenantID    string           `json:"tenantId"`
	ApplicantID string           `json:"applicantId,omitempty"`
	Result      *StabilityResult `json:"result"`
	Timestamp   time.Time        `json:"timestamp"`
}

// IncomePolicy holds the analyzer thresholds and weights.
type IncomePolicy struct {
	MinDataPoints int `json:"minDataPoints" toml:"min_data_points"`

	AnomalyZ      float64 `json:"anomalyZ" toml:"anomaly_z"`
	HighSeverityZ float64 `json:"highSeverityZ" toml:"high_severity_z"`

	ConsistencyWeight float64 `json:"consistencyWeight" toml:"consistency_weight"`
	TrendWeight       float64 `json:"trendWeight" toml:"trend_weight"`
	AnomalyWeight     float64 `json:"anomalyWeight" toml:"anomaly_weight"`
	EmploymentWeight  float64 `json:"employmentWeight" toml:"employment_weight"`
	PenaltyPerAnomaly float64 `json:"penaltyPerAnomaly" toml:"penalty_per_anomaly"`

	SuddenIncreaseFactor float64 `json:"suddenIncreaseFactor" toml:"sudden_increase_factor"`
	RoundNumberUnit      float64 `json:"roundNumberUnit" toml:"round_number_unit"`
	RoundNumberRatio     float64 `json:"roundNumberRatio" toml:"round_number_ratio"`
	DepositDeviationZ    float64 `json:"depositDeviationZ" toml:"deposit_deviation_z"`
	IrregularRatio       float64 `json:"irregularRatio" toml:"irregular_ratio"`

	ApproveAt int `json:"approveAt" toml:"approve_at"`
	ReviewAt  int `json:"reviewAt" toml:"review_at"`

	ModelVersion string `json:"modelVersion" toml:"model_version"`
}

// DefaultIncomePolicy returns the StatisticalAnalysis_v1 thresholds.
func DefaultIncomePolicy() IncomePolicy {
	return IncomePolicy{
		MinDataPoints:        3,
		AnomalyZ:             2.5,
		HighSeverityZ:        3.5,
		ConsistencyWeight:    0.4,
		TrendWeight:          0.2,
		AnomalyWeight:        0.3,
		EmploymentWeight:     0.1,
		PenaltyPerAnomaly:    15,
		SuddenIncreaseFactor: 2,
		RoundNumberUnit:      1000,
		RoundNumberRatio:     0.7,
		DepositDeviationZ:    2,
		IrregularRatio:       0.3,
		ApproveAt:            70,
		ReviewAt:             50,
		ModelVersion:         "StatisticalAnalysis_v1",
	}
}

// DTI risk levels and recommendations.
const (
	DTIRiskLow      = "LOW"
	DTIRiskMedium   = "MEDIUM"
	DTIRiskHigh     = "HIGH"
	DTIRiskVeryHigh = "VERY_HIGH"

	DTIAcceptable       = "ACCEPTABLE"
	DTIExceedsThreshold = "EXCEEDS_THRESHOLD"
)

// DebtBreakdown itemises monthly debt obligations.
type DebtBreakdown struct {
	Mortgage     float64 `json:"mortgage"`
	AutoLoan     float64 `json:"autoLoan"`
	CreditCards  float64 `json:"creditCards"`
	StudentLoans float64 `json:"studentLoans"`
	OtherDebts   float64 `json:"otherDebts"`
}

// Total sums the breakdown.
func (b DebtBreakdown) Total() float64 {
	return b.Mortgage + b.AutoLoan + b.CreditCards + b.StudentLoans + b.OtherDebts
}

// DTIResult is a debt-to-income calculation.
type DTIResult struct {
	MonthlyIncome    float64        `json:"monthlyIncome"`
	TotalMonthlyDebt float64        `json:"totalMonthlyDebt"`
	DTIRatio         float64        `json:"dtiRatio"` // percent, 2 dp
	DisposableIncome float64        `json:"disposableIncome"`
	RiskLevel        string         `json:"riskLevel"`
	Recommendation   string         `json:"recommendation"`
	Classification   string         `json:"classification"`
	MaxLoanPayment   float64        `json:"maxRecommendedLoanPayment"`
	Breakdown        *DebtBreakdown `json:"breakdown,omitempty"`
}
