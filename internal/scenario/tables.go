package scenario

import "github.com/opensource-finance/kestrel/internal/domain"

// Decision scenario keys.
const (
	ApprovedExcellentCredit  = "APPROVED_EXCELLENT_CREDIT"
	ApprovedGoodCredit       = "APPROVED_GOOD_CREDIT"
	ApprovedWithConditions   = "APPROVED_WITH_CONDITIONS"
	DeniedLowCredit          = "DENIED_LOW_CREDIT"
	DeniedHighDTI            = "DENIED_HIGH_DTI"
	DeniedInsufficientIncome = "DENIED_INSUFFICIENT_INCOME"
	PendingDocumentReview    = "PENDING_DOCUMENT_REVIEW"
	ErrorScenario            = "ERROR_SCENARIO"
)

// Income profile keys.
const (
	IncomeHigh         = "HIGH"
	IncomeMedium       = "MEDIUM"
	IncomeLow          = "LOW"
	IncomeUnverifiable = "UNVERIFIABLE"
)

// Default table positions.
const (
	DefaultDecisionIndex = 1
	DefaultIncomeIndex   = 1
)

// DecisionTable returns a fresh copy of the canned decision outcomes, in
// bucket order.
func DecisionTable() []domain.OutcomeRecord {
	return []domain.OutcomeRecord{
		{
			Scenario:       ApprovedExcellentCredit,
			CreditScore:    780,
			CreditGrade:    "A",
			RiskLevel:      domain.RiskLow,
			Decision:       domain.DecisionApproved,
			ApprovedAmount: 50000,
			InterestRate:   5.99,
			Term:           60,
			MonthlyPayment: 966.64,
			ReasonCodes:    []string{"EXCELLENT_CREDIT", "LOW_RISK"},
			Conditions:     []string{},
			DenialReasons:  []string{},
		},
		{
			Scenario:       ApprovedGoodCredit,
			CreditScore:    720,
			CreditGrade:    "B",
			RiskLevel:      domain.RiskMedium,
			Decision:       domain.DecisionApproved,
			ApprovedAmount: 35000,
			InterestRate:   8.99,
			Term:           60,
			MonthlyPayment: 730.17,
			ReasonCodes:    []string{"GOOD_CREDIT", "ACCEPTABLE_RISK"},
			Conditions:     []string{},
			DenialReasons:  []string{},
		},
		{
			Scenario:       ApprovedWithConditions,
			CreditScore:    680,
			CreditGrade:    "C",
			RiskLevel:      domain.RiskMedium,
			Decision:       domain.DecisionApprovedWithConditions,
			ApprovedAmount: 25000,
			InterestRate:   12.99,
			Term:           48,
			MonthlyPayment: 667.67,
			ReasonCodes:    []string{"FAIR_CREDIT", "CONDITIONAL_APPROVAL"},
			Conditions:     []string{"Proof of income required", "Verification of employment"},
			DenialReasons:  []string{},
		},
		{
			Scenario:      DeniedLowCredit,
			CreditScore:   580,
			CreditGrade:   "E",
			RiskLevel:     domain.RiskHigh,
			Decision:      domain.DecisionDenied,
			ReasonCodes:   []string{"LOW_CREDIT_SCORE", "HIGH_RISK"},
			Conditions:    []string{},
			DenialReasons: []string{"Credit score below minimum threshold", "Poor payment history"},
		},
		{
			Scenario:      DeniedHighDTI,
			CreditScore:   650,
			CreditGrade:   "D",
			RiskLevel:     domain.RiskMediumHigh,
			Decision:      domain.DecisionDenied,
			ReasonCodes:   []string{"HIGH_DTI_RATIO", "INSUFFICIENT_INCOME"},
			Conditions:    []string{},
			DenialReasons: []string{"Debt-to-income ratio exceeds 45%", "Insufficient disposable income"},
		},
		{
			Scenario:      DeniedInsufficientIncome,
			CreditScore:   650,
			CreditGrade:   "D",
			RiskLevel:     domain.RiskMediumHigh,
			Decision:      domain.DecisionDenied,
			ReasonCodes:   []string{"INSUFFICIENT_INCOME", "UNVERIFIABLE_INCOME"},
			Conditions:    []string{},
			DenialReasons: []string{"Income cannot be verified", "Income below minimum threshold"},
		},
		{
			Scenario:      PendingDocumentReview,
			CreditScore:   680,
			CreditGrade:   "C",
			RiskLevel:     domain.RiskMedium,
			Decision:      domain.DecisionPendingReview,
			ReasonCodes:   []string{"MANUAL_REVIEW_REQUIRED"},
			Conditions:    []string{},
			DenialReasons: []string{},
			PendingItems:  []string{"Income verification", "Employment verification", "Bank statements"},
		},
		{
			Scenario:  ErrorScenario,
			Error:     true,
			Message:   "Decision engine temporarily unavailable",
			ErrorCode: "DECISION_ENGINE_ERROR",
		},
	}
}

// IncomeTable returns a fresh copy of the canned income profiles, in
// bucket order.
func IncomeTable() []domain.IncomeProfile {
	return []domain.IncomeProfile{
		{
			Profile:       IncomeHigh,
			AnnualIncome:  85000,
			MonthlyIncome: 7083,
			Employment: domain.Employment{
				Status:      "EMPLOYED",
				Type:        "FULL_TIME",
				Employer:    "TechCorp Inc.",
				JobTitle:    "Senior Software Engineer",
				YearsActive: 5,
			},
			VerificationStatus:  "VERIFIED",
			VerificationMethod:  "DIRECT_DEPOSIT",
			DebtToIncomeRatio:   28.5,
			MonthlyDebtPayments: 2019,
			DisposableIncome:    5064,
		},
		{
			Profile:       IncomeMedium,
			AnnualIncome:  65000,
			MonthlyIncome: 5417,
			Employment: domain.Employment{
				Status:      "EMPLOYED",
				Type:        "FULL_TIME",
				Employer:    "Marketing Solutions LLC",
				JobTitle:    "Marketing Manager",
				YearsActive: 3,
			},
			VerificationStatus:  "VERIFIED",
			VerificationMethod:  "PAY_STUB",
			DebtToIncomeRatio:   35.2,
			MonthlyDebtPayments: 1907,
			DisposableIncome:    3510,
		},
		{
			Profile:       IncomeLow,
			AnnualIncome:  45000,
			MonthlyIncome: 3750,
			Employment: domain.Employment{
				Status:      "EMPLOYED",
				Type:        "PART_TIME",
				Employer:    "Retail Store",
				JobTitle:    "Sales Associate",
				YearsActive: 1,
			},
			VerificationStatus:  "PENDING",
			VerificationMethod:  "BANK_STATEMENT",
			DebtToIncomeRatio:   48.5,
			MonthlyDebtPayments: 1819,
			DisposableIncome:    1931,
		},
		{
			Profile:            IncomeUnverifiable,
			Employment:         domain.Employment{Status: "UNEMPLOYED"},
			VerificationStatus: "FAILED",
			Errors:             []string{"Unable to verify income", "No employment records found"},
		},
	}
}
