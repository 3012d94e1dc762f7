package scoring

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kestrel/internal/amortize"
	"github.com/opensource-finance/kestrel/internal/domain"
)

func f64(v float64) *float64 { return &v }
func intp(v int) *int         { return &v }

func TestScore_Buckets(t *testing.T) {
	m := DefaultModel()

	tests := []struct {
		name     string
		in       domain.RawFeatures
		decision domain.Decision
		risk     domain.RiskLevel
		approved float64
		rate     float64
		payment  float64
		logit    float64
	}{
		{
			name: "approved",
			in: domain.RawFeatures{
				CreditScore: 780, AnnualIncome: 120000, LoanAmount: 20000,
				EmploymentYears: f64(8), DTIRatio: f64(0.2),
			},
			decision: domain.DecisionApproved,
			risk:     domain.RiskLow,
			approved: 20000,
			rate:     5.68,
			payment:  383.69,
			logit:    4.4334,
		},
		{
			name: "approved with conditions",
			in: domain.RawFeatures{
				CreditScore: 650, AnnualIncome: 50000, LoanAmount: 25000,
				LoanTermMonths: intp(60), EmploymentYears: f64(1), DTIRatio: f64(0.4),
			},
			decision: domain.DecisionApprovedWithConditions,
			risk:     domain.RiskMedium,
			approved: 20000,
			rate:     10.49,
			payment:  429.78,
			logit:    0.696,
		},
		{
			name: "pending review",
			in: domain.RawFeatures{
				CreditScore: 540, AnnualIncome: 40000, LoanAmount: 20000,
				EmploymentYears: f64(1), DTIRatio: f64(0.4),
			},
			decision: domain.DecisionPendingReview,
			risk:     domain.RiskMediumHigh,
			rate:     14.19,
			logit:    -0.319,
		},
		{
			name: "denied",
			in: domain.RawFeatures{
				CreditScore: 580, AnnualIncome: 40000, LoanAmount: 30000,
				EmploymentYears: f64(0.5), DTIRatio: f64(0.55), PriorDefaults: true,
			},
			decision: domain.DecisionDenied,
			risk:     domain.RiskHigh,
			rate:     20.49,
			logit:    -7.1408,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := m.Score(tt.in)
			require.NoError(t, err)

			assert.Equal(t, tt.decision, res.Decision)
			assert.Equal(t, tt.risk, res.RiskLevel)
			assert.Equal(t, tt.approved, res.ApprovedAmount)
			assert.Equal(t, tt.rate, res.InterestRate)
			assert.Equal(t, tt.payment, res.MonthlyPayment)
			assert.Equal(t, tt.logit, res.Logit)
			assert.Equal(t, 60, res.Term)
			assert.Equal(t, "LogisticRegression_v1", res.Model)
		})
	}
}

func TestScore_Factors(t *testing.T) {
	m := DefaultModel()

	t.Run("strong applicant", func(t *testing.T) {
		res, err := m.Score(domain.RawFeatures{
			CreditScore: 780, AnnualIncome: 120000, LoanAmount: 20000,
			EmploymentYears: f64(8), DTIRatio: f64(0.2),
		})
		require.NoError(t, err)

		assert.Empty(t, res.RiskFactors)
		assert.Equal(t, []string{"Strong credit history", "Conservative loan amount", "Stable employment"}, res.PositiveFactors)
		assert.Empty(t, res.DenialReasons)
		assert.Empty(t, res.Conditions)
		assert.Equal(t, "A", res.CreditGrade)
	})

	t.Run("conditional approval lists conditions", func(t *testing.T) {
		res, err := m.Score(domain.RawFeatures{
			CreditScore: 650, AnnualIncome: 50000, LoanAmount: 25000,
			EmploymentYears: f64(1), DTIRatio: f64(0.4),
		})
		require.NoError(t, err)

		assert.Equal(t, []string{"High loan-to-income ratio", "Elevated debt-to-income ratio", "Limited employment history"}, res.RiskFactors)
		assert.Empty(t, res.PositiveFactors)
		assert.Equal(t, []string{"Income verification required", "Employment verification required"}, res.Conditions)
		assert.Empty(t, res.DenialReasons)
	})

	t.Run("denial reasons mirror risk factors", func(t *testing.T) {
		res, err := m.Score(domain.RawFeatures{
			CreditScore: 580, AnnualIncome: 40000, LoanAmount: 30000,
			EmploymentYears: f64(0.5), DTIRatio: f64(0.55), PriorDefaults: true,
		})
		require.NoError(t, err)

		want := []string{"High loan-to-income ratio", "Elevated debt-to-income ratio", "Limited employment history", "Previous loan defaults"}
		assert.Equal(t, want, res.RiskFactors)
		assert.Equal(t, want, res.DenialReasons)
		assert.Empty(t, res.Conditions)
		assert.Zero(t, res.MonthlyPayment)
		assert.Equal(t, "E", res.CreditGrade)
	})
}

func TestScore_Defaults(t *testing.T) {
	m := DefaultModel()

	res, err := m.Score(domain.RawFeatures{CreditScore: 700, AnnualIncome: 60000, LoanAmount: 20000})
	require.NoError(t, err)

	assert.InDelta(t, 0.5, res.Features.DTIRatioNorm, 1e-12)
	assert.InDelta(t, 0.2, res.Features.EmploymentStability, 1e-12)
	assert.InDelta(t, 60.0/84, res.Features.TermRisk, 1e-12)
	assert.Zero(t, res.Features.HasDefaults)
	assert.Equal(t, domain.DecisionApproved, res.Decision)
	assert.Equal(t, 7.2, res.InterestRate)
	assert.Equal(t, 397.91, res.MonthlyPayment)
	assert.Equal(t, 11.3, res.RiskScore)
	assert.Equal(t, 77.4, res.ConfidenceScore)
	assert.Equal(t, 88.7, res.ApprovalPercent())
}

func TestNormalize_Clipping(t *testing.T) {
	m := DefaultModel()

	v := m.Normalize(domain.RawFeatures{
		CreditScore:     250,
		AnnualIncome:    10000,
		LoanAmount:      250000,
		LoanTermMonths:  intp(120),
		EmploymentYears: f64(40),
		DTIRatio:        f64(1.5),
	})
	assert.Zero(t, v.CreditScoreNorm)
	assert.Equal(t, 25.0, v.LoanToIncomeRatio)
	assert.Equal(t, 1.0, v.DTIRatioNorm)
	assert.Equal(t, 1.0, v.EmploymentStability)
	assert.Equal(t, 1.0, v.LoanAmountNorm)
	assert.InDelta(t, 120.0/84, v.TermRisk, 1e-12)

	v = m.Normalize(domain.RawFeatures{
		CreditScore: 900, AnnualIncome: 10000, LoanAmount: 100,
		EmploymentYears: f64(-3), DTIRatio: f64(-0.2),
	})
	assert.Equal(t, 1.0, v.CreditScoreNorm)
	assert.Zero(t, v.DTIRatioNorm)
	assert.Zero(t, v.EmploymentStability)
}

func TestScore_Validation(t *testing.T) {
	m := DefaultModel()

	tests := []struct {
		name  string
		in    domain.RawFeatures
		field string
	}{
		{"missing credit score", domain.RawFeatures{AnnualIncome: 1, LoanAmount: 1}, "creditScore"},
		{"negative income", domain.RawFeatures{CreditScore: 700, AnnualIncome: -1, LoanAmount: 1}, "annualIncome"},
		{"zero amount", domain.RawFeatures{CreditScore: 700, AnnualIncome: 1}, "loanAmount"},
		{"nan credit score", domain.RawFeatures{CreditScore: math.NaN(), AnnualIncome: 1, LoanAmount: 1}, "creditScore"},
		{"zero term", domain.RawFeatures{CreditScore: 700, AnnualIncome: 1, LoanAmount: 1, LoanTermMonths: intp(0)}, "loanTerm"},
		{"term over fifty years", domain.RawFeatures{CreditScore: 700, AnnualIncome: 1, LoanAmount: 1, LoanTermMonths: intp(601)}, "loanTerm"},
		{"overflowing ratio", domain.RawFeatures{CreditScore: 700, AnnualIncome: 1e-300, LoanAmount: 1e300}, "annualIncome"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Score(tt.in)
			require.Error(t, err)

			var verr *domain.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestScore_ProbabilityOpenInterval(t *testing.T) {
	m := DefaultModel()

	extremes := []domain.RawFeatures{
		{CreditScore: 850, AnnualIncome: 1e12, LoanAmount: 1, EmploymentYears: f64(50), DTIRatio: f64(0), LoanTermMonths: intp(1)},
		{CreditScore: 300, AnnualIncome: 1, LoanAmount: 1e12, PriorDefaults: true, DTIRatio: f64(5), LoanTermMonths: intp(amortize.MaxTermMonths)},
	}
	for _, in := range extremes {
		res, err := m.Score(in)
		require.NoError(t, err)
		assert.Greater(t, res.Probability, 0.0)
		assert.Less(t, res.Probability, 1.0)
	}
}

func TestSigmoid(t *testing.T) {
	assert.Equal(t, 0.5, Sigmoid(0))
	assert.InDelta(t, 0.7310585786, Sigmoid(1), 1e-9)
	assert.InDelta(t, 0.2689414214, Sigmoid(-1), 1e-9)

	for _, x := range []float64{-1e6, -800, 800, 1e6, math.Inf(1), math.Inf(-1)} {
		p := Sigmoid(x)
		assert.Greater(t, p, 0.0, "x=%v", x)
		assert.Less(t, p, 1.0, "x=%v", x)
	}
}

func TestBucket_Monotonic(t *testing.T) {
	prev := -1
	for i := 0; i <= 1000; i++ {
		d, _ := Bucket(float64(i) / 1000)
		rank := d.Rank()
		require.GreaterOrEqual(t, rank, prev, "p=%v", float64(i)/1000)
		require.LessOrEqual(t, rank-prev, 1)
		prev = rank
	}

	d, _ := Bucket(0.75)
	assert.Equal(t, domain.DecisionApproved, d)
	d, _ = Bucket(0.5)
	assert.Equal(t, domain.DecisionApprovedWithConditions, d)
	d, _ = Bucket(0.3)
	assert.Equal(t, domain.DecisionPendingReview, d)
	d, _ = Bucket(0.2999)
	assert.Equal(t, domain.DecisionDenied, d)
}

func TestNewModel_AlternateCoefficients(t *testing.T) {
	cfg := domain.DefaultScoringConfig()
	cfg.Coefficients = domain.Coefficients{Intercept: -10}
	cfg.Pricing.DefaultTermMonths = 0
	m := NewModel(cfg)

	res, err := m.Score(domain.RawFeatures{CreditScore: 850, AnnualIncome: 1e6, LoanAmount: 1000})
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionDenied, res.Decision)
	assert.Equal(t, 60, res.Term)
	assert.Equal(t, -10.0, res.Logit)
}
