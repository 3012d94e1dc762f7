package income

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestDebtToIncome(t *testing.T) {
	tests := []struct {
		name           string
		income, debts  float64
		ratio          float64
		risk           string
		recommendation string
		class          string
	}{
		{"low", 7083, 2019, 28.5, domain.DTIRiskLow, domain.DTIAcceptable, "excellent"},
		{"medium", 5417, 1907, 35.2, domain.DTIRiskMedium, domain.DTIAcceptable, "excellent"},
		{"high", 3750, 1819, 48.51, domain.DTIRiskHigh, domain.DTIExceedsThreshold, "fair"},
		{"very high", 4000, 2400, 60, domain.DTIRiskVeryHigh, domain.DTIExceedsThreshold, "poor"},
		{"good band", 5000, 2100, 42, domain.DTIRiskHigh, domain.DTIAcceptable, "good"},
		{"no debt", 5000, 0, 0, domain.DTIRiskLow, domain.DTIAcceptable, "excellent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := DebtToIncome(tt.income, tt.debts)
			require.NoError(t, err)
			assert.Equal(t, tt.ratio, res.DTIRatio)
			assert.Equal(t, tt.risk, res.RiskLevel)
			assert.Equal(t, tt.recommendation, res.Recommendation)
			assert.Equal(t, tt.class, res.Classification)
			assert.InDelta(t, tt.income-tt.debts, res.DisposableIncome, 0.001)
			assert.Nil(t, res.Breakdown)
		})
	}
}

func TestDebtToIncome_Validation(t *testing.T) {
	_, err := DebtToIncome(0, 100)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = DebtToIncome(-1000, 100)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = DebtToIncome(5000, -1)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDebtToIncomeBreakdown(t *testing.T) {
	debts := domain.DebtBreakdown{
		Mortgage:     1200,
		AutoLoan:     350,
		CreditCards:  150,
		StudentLoans: 300,
	}

	res, err := DebtToIncomeBreakdown(6000, debts)
	require.NoError(t, err)

	assert.Equal(t, 2000.0, res.TotalMonthlyDebt)
	assert.Equal(t, 33.33, res.DTIRatio)
	assert.Equal(t, "excellent", res.Classification)
	// floor(6000*0.28 - 1200)
	assert.Equal(t, 480.0, res.MaxLoanPayment)
	require.NotNil(t, res.Breakdown)
	assert.Equal(t, debts, *res.Breakdown)

	t.Run("mortgage above housing budget", func(t *testing.T) {
		res, err := DebtToIncomeBreakdown(3000, domain.DebtBreakdown{Mortgage: 1500})
		require.NoError(t, err)
		assert.Zero(t, res.MaxLoanPayment)
	})

	t.Run("negative item", func(t *testing.T) {
		_, err := DebtToIncomeBreakdown(3000, domain.DebtBreakdown{CreditCards: -5})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "creditCards")
	})
}
