package domain

// Decision is the lending outcome produced by scoring or scenario selection.
type Decision string

const (
	DecisionApproved               Decision = "APPROVED"
	DecisionApprovedWithConditions Decision = "APPROVED_WITH_CONDITIONS"
	DecisionPendingReview          Decision = "PENDING_REVIEW"
	DecisionDenied                 Decision = "DENIED"
)

// Rank orders decisions from least to most favourable.
func (d Decision) Rank() int {
	switch d {
	case DecisionDenied:
		return 0
	case DecisionPendingReview:
		return 1
	case DecisionApprovedWithConditions:
		return 2
	case DecisionApproved:
		return 3
	default:
		return -1
	}
}

// RiskLevel labels applicant risk.
type RiskLevel string

const (
	RiskLow        RiskLevel = "LOW"
	RiskMedium     RiskLevel = "MEDIUM"
	RiskMediumHigh RiskLevel = "MEDIUM_HIGH"
	RiskHigh       RiskLevel = "HIGH"
)

// OutcomeRecord is one canned provider decision.
type OutcomeRecord struct {
	Scenario       string    `json:"scenario"`
	CreditScore    int       `json:"creditScore,omitempty"`
	CreditGrade    string    `json:"creditGrade,omitempty"`
	RiskLevel      RiskLevel `json:"riskLevel,omitempty"`
	Decision       Decision  `json:"decision,omitempty"`
	ApprovedAmount float64   `json:"approvedAmount"`
	InterestRate   float64   `json:"interestRate"`
	Term           int       `json:"term"`
	MonthlyPayment float64   `json:"monthlyPayment"`
	ReasonCodes    []string  `json:"reasonCodes"`
	Conditions     []string  `json:"conditions"`
	DenialReasons  []string  `json:"denialReasons"`
	PendingItems   []string  `json:"pendingItems,omitempty"`

	// Error marks a record that simulates a provider outage.
	Error     bool   `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
}

// CreditEvaluation is the bureau view of a canned outcome.
type CreditEvaluation struct {
	CreditScore int       `json:"creditScore"`
	CreditGrade string    `json:"creditGrade"`
	RiskLevel   RiskLevel `json:"riskLevel,omitempty"`
	Bureau      string    `json:"bureau"`
	ScoreDate   string    `json:"scoreDate"`
	Factors     []string  `json:"factors,omitempty"`
}

// Employment describes an income profile's employment record.
type Employment struct {
	Status      string  `json:"status"`
	Type        string  `json:"employmentType,omitempty"`
	Employer    string  `json:"employerName,omitempty"`
	JobTitle    string  `json:"jobTitle,omitempty"`
	YearsActive float64 `json:"yearsEmployed"`
}

// IncomeProfile is one canned income verification result.
type IncomeProfile struct {
	Profile             string     `json:"profile"`
	AnnualIncome        float64    `json:"annualIncome"`
	MonthlyIncome       float64    `json:"monthlyIncome"`
	Employment          Employment `json:"employment"`
	VerificationStatus  string     `json:"verificationStatus"`
	VerificationMethod  string     `json:"verificationMethod,omitempty"`
	DebtToIncomeRatio   float64    `json:"debtToIncomeRatio"`
	MonthlyDebtPayments float64    `json:"monthlyDebtPayments"`
	DisposableIncome    float64    `json:"disposableIncome"`
	Errors              []string   `json:"errors,omitempty"`
}

// Verified reports whether the profile's income could be verified.
func (p IncomeProfile) Verified() bool {
	return p.VerificationStatus == "VERIFIED"
}
