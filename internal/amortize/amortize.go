// Package amortize computes fixed-rate installment loans.
package amortize

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// MaxTermMonths is the longest term accepted, fifty years.
const MaxTermMonths = 600

var (
	cents   = int32(2)
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
)

// MonthlyPayment returns the unrounded installment for a fully amortizing
// loan. A zero rate divides the principal evenly across the term.
func MonthlyPayment(principal, annualRatePercent float64, termMonths int) (float64, error) {
	if err := validate(principal, annualRatePercent, termMonths); err != nil {
		return 0, err
	}
	return payment(principal, annualRatePercent, termMonths)
}

// payment evaluates P·r·(1+r)^n / ((1+r)^n - 1) with the growth term taken
// through Expm1/Log1p, so rates too small to move 1+r still amortize.
func payment(principal, annualRatePercent float64, termMonths int) (float64, error) {
	r := annualRatePercent / 100 / 12
	n := float64(termMonths)

	var pay float64
	growth := math.Expm1(n * math.Log1p(r))
	switch {
	case r == 0 || growth == 0:
		pay = principal / n
	case math.IsInf(growth, 1):
		pay = principal * r
	default:
		pay = principal * r * (growth + 1) / growth
	}
	if math.IsNaN(pay) || math.IsInf(pay, 0) {
		return 0, domain.NewValidationError("principal", "payment is out of range")
	}
	return pay, nil
}

func validate(principal, annualRatePercent float64, termMonths int) error {
	switch {
	case termMonths <= 0:
		return domain.NewValidationError("months", "must be greater than zero")
	case termMonths > MaxTermMonths:
		return domain.NewValidationError("months", fmt.Sprintf("must not exceed %d", MaxTermMonths))
	case !(principal > 0) || math.IsInf(principal, 0):
		return domain.NewValidationError("principal", "must be a positive amount")
	case !(annualRatePercent >= 0) || math.IsInf(annualRatePercent, 0):
		return domain.NewValidationError("rate", "must be zero or positive")
	}
	return nil
}

// Calculate returns the installment, total paid and total interest, each
// rounded to cents. Totals are derived from the unrounded installment.
func Calculate(principal, annualRatePercent float64, termMonths int) (*domain.Amortization, error) {
	if err := validate(principal, annualRatePercent, termMonths); err != nil {
		return nil, err
	}

	p, err := payment(principal, annualRatePercent, termMonths)
	if err != nil {
		return nil, err
	}
	pay := decimal.NewFromFloat(p)
	total := pay.Mul(decimal.NewFromInt(int64(termMonths)))
	interest := total.Sub(decimal.NewFromFloat(principal))

	a := &domain.Amortization{
		Principal:      principal,
		Rate:           annualRatePercent,
		Months:         termMonths,
		MonthlyPayment: pay.Round(cents).InexactFloat64(),
		TotalPayment:   total.Round(cents).InexactFloat64(),
		TotalInterest:  interest.Round(cents).InexactFloat64(),
	}
	if math.IsInf(a.TotalPayment, 0) || math.IsInf(a.TotalInterest, 0) {
		return nil, domain.NewValidationError("principal", "payment is out of range")
	}
	return a, nil
}

// Schedule returns Calculate's result with a per-period breakdown.
// Each period pays the rounded installment; interest accrues on the
// outstanding balance in cents and the final period clears the balance.
func Schedule(principal, annualRatePercent float64, termMonths int) (*domain.Amortization, error) {
	a, err := Calculate(principal, annualRatePercent, termMonths)
	if err != nil {
		return nil, err
	}

	rate := decimal.NewFromFloat(annualRatePercent).Div(hundred).Div(twelve)
	pay := decimal.NewFromFloat(a.MonthlyPayment)
	balance := decimal.NewFromFloat(principal).Round(cents)

	a.Schedule = make([]domain.ScheduleEntry, 0, termMonths)
	for period := 1; period <= termMonths; period++ {
		interest := balance.Mul(rate).Round(cents)
		toPrincipal := pay.Sub(interest)
		if period == termMonths || toPrincipal.GreaterThan(balance) {
			toPrincipal = balance
		}
		balance = balance.Sub(toPrincipal)

		a.Schedule = append(a.Schedule, domain.ScheduleEntry{
			Period:    period,
			Payment:   toPrincipal.Add(interest).InexactFloat64(),
			Principal: toPrincipal.InexactFloat64(),
			Interest:  interest.InexactFloat64(),
			Balance:   balance.InexactFloat64(),
		})
	}

	return a, nil
}
