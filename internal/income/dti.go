package income

import (
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Housing payments above this share of gross monthly income are
// considered unaffordable.
const housingRatio = 0.28

// DebtToIncome computes the DTI ratio for total monthly debt payments.
func DebtToIncome(monthlyIncome, monthlyDebts float64) (*domain.DTIResult, error) {
	return debtToIncome(monthlyIncome, monthlyDebts, 0, nil)
}

// DebtToIncomeBreakdown computes the DTI ratio from itemised debts. The
// mortgage item reduces the recommended maximum loan payment.
func DebtToIncomeBreakdown(monthlyIncome float64, debts domain.DebtBreakdown) (*domain.DTIResult, error) {
	items := []struct {
		field string
		value float64
	}{
		{"mortgage", debts.Mortgage},
		{"autoLoan", debts.AutoLoan},
		{"creditCards", debts.CreditCards},
		{"studentLoans", debts.StudentLoans},
		{"otherDebts", debts.OtherDebts},
	}
	for _, item := range items {
		if !(item.value >= 0) || math.IsInf(item.value, 0) {
			return nil, domain.NewValidationError(item.field, "must be zero or positive")
		}
	}
	return debtToIncome(monthlyIncome, debts.Total(), debts.Mortgage, &debts)
}

func debtToIncome(monthlyIncome, monthlyDebts, mortgage float64, breakdown *domain.DebtBreakdown) (*domain.DTIResult, error) {
	if !(monthlyIncome > 0) || math.IsInf(monthlyIncome, 0) {
		return nil, domain.NewValidationError("monthlyIncome", "must be a positive amount")
	}
	if !(monthlyDebts >= 0) || math.IsInf(monthlyDebts, 0) {
		return nil, domain.NewValidationError("monthlyDebtPayments", "must be zero or positive")
	}

	ratio := monthlyDebts / monthlyIncome * 100

	return &domain.DTIResult{
		MonthlyIncome:    monthlyIncome,
		TotalMonthlyDebt: monthlyDebts,
		DTIRatio:         domain.Round(ratio, 2),
		DisposableIncome: domain.Round(monthlyIncome-monthlyDebts, 2),
		RiskLevel:        dtiRiskLevel(ratio),
		Recommendation:   dtiRecommendation(ratio),
		Classification:   dtiClassification(ratio),
		MaxLoanPayment:   math.Max(0, math.Floor(monthlyIncome*housingRatio-mortgage)),
		Breakdown:        breakdown,
	}, nil
}

func dtiRiskLevel(ratio float64) string {
	switch {
	case ratio < 30:
		return domain.DTIRiskLow
	case ratio < 40:
		return domain.DTIRiskMedium
	case ratio < 50:
		return domain.DTIRiskHigh
	default:
		return domain.DTIRiskVeryHigh
	}
}

func dtiRecommendation(ratio float64) string {
	if ratio < 43 {
		return domain.DTIAcceptable
	}
	return domain.DTIExceedsThreshold
}

func dtiClassification(ratio float64) string {
	switch {
	case ratio <= 36:
		return "excellent"
	case ratio <= 43:
		return "good"
	case ratio <= 50:
		return "fair"
	default:
		return "poor"
	}
}
