package income

import (
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Analyzer scores income stability under a fixed policy.
// It holds no mutable state and is safe for concurrent use.
type Analyzer struct {
	policy domain.IncomePolicy
}

// NewAnalyzer creates an analyzer bound to policy.
func NewAnalyzer(policy domain.IncomePolicy) *Analyzer {
	if policy.MinDataPoints < 1 {
		policy.MinDataPoints = 1
	}
	return &Analyzer{policy: policy}
}

// Policy returns the analyzer's thresholds.
func (a *Analyzer) Policy() domain.IncomePolicy {
	return a.policy
}

// Analyze scores an income series.
// It returns an *domain.InsufficientDataError when the series is shorter
// than the policy minimum and a *domain.ValidationError on non-finite input,
// negative employment or statistics that overflow.
func (a *Analyzer) Analyze(req domain.IncomeAnalysisRequest) (*domain.StabilityResult, error) {
	incomes := req.MonthlyIncomes
	if len(incomes) < a.policy.MinDataPoints {
		return nil, &domain.InsufficientDataError{Have: len(incomes), Need: a.policy.MinDataPoints}
	}
	if err := finite("monthlyIncomes", incomes); err != nil {
		return nil, err
	}
	if err := finite("depositPatterns", req.DepositPatterns); err != nil {
		return nil, err
	}
	var employmentMonths float64
	if req.EmploymentMonths != nil {
		employmentMonths = *req.EmploymentMonths
		if math.IsNaN(employmentMonths) || math.IsInf(employmentMonths, 0) {
			return nil, domain.NewValidationError("employmentMonths", "must be a finite number")
		}
		if employmentMonths < 0 {
			return nil, domain.NewValidationError("employmentMonths", "must not be negative")
		}
	}

	stats := ComputeStats(incomes)
	if !finiteStats(stats) {
		return nil, domain.NewValidationError("monthlyIncomes", "values are too large to analyze")
	}
	if len(req.DepositPatterns) > 0 && !finiteStats(ComputeStats(req.DepositPatterns)) {
		return nil, domain.NewValidationError("depositPatterns", "values are too large to analyze")
	}
	anomalies := a.detectAnomalies(incomes, stats)
	factors := a.stabilityFactors(incomes, stats, len(anomalies), employmentMonths)
	score := a.stabilityScore(factors)
	fraud := a.fraudIndicators(incomes, req.DepositPatterns)

	return &domain.StabilityResult{
		StabilityScore:         score,
		VerificationConfidence: confidence(fraud, len(anomalies)),
		Statistics:             stats,
		Summary:                summarize(stats),
		Anomalies:              anomalies,
		FraudIndicators:        fraud,
		StabilityFactors:       factors,
		Insights:               insights(stats),
		Recommendation:         a.recommend(score),
		DataPoints:             len(incomes),
		ModelVersion:           a.policy.ModelVersion,
	}, nil
}

func finite(field string, data []float64) error {
	for _, x := range data {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return domain.NewValidationError(field, "must contain only finite numbers")
		}
	}
	return nil
}

// finiteStats reports whether no statistic overflowed. Finite inputs can
// still overflow the running sums.
func finiteStats(s domain.Statistics) bool {
	for _, x := range []float64{s.Mean, s.Median, s.StdDev, s.CoefficientOfVariation, s.TrendSlope} {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func (a *Analyzer) detectAnomalies(incomes []float64, stats domain.Statistics) []domain.Anomaly {
	stdDev := stats.StdDev
	if stdDev == 0 {
		stdDev = 1
	}

	anomalies := []domain.Anomaly{}
	for i, x := range incomes {
		z := (x - stats.Mean) / stdDev
		if math.Abs(z) <= a.policy.AnomalyZ {
			continue
		}

		anomaly := domain.Anomaly{
			Index:    i,
			Month:    i + 1,
			Value:    x,
			ZScore:   domain.Round(z, 2),
			Type:     domain.AnomalyDrop,
			Severity: domain.SeverityMedium,
		}
		if z > 0 {
			anomaly.Type = domain.AnomalySpike
		}
		if math.Abs(z) > a.policy.HighSeverityZ {
			anomaly.Severity = domain.SeverityHigh
		}
		anomalies = append(anomalies, anomaly)
	}
	return anomalies
}

func (a *Analyzer) stabilityFactors(incomes []float64, stats domain.Statistics, anomalies int, employmentMonths float64) domain.StabilityFactors {
	return domain.StabilityFactors{
		Consistency:     math.Max(0, 100-stats.CoefficientOfVariation*100),
		Trend:           trendScore(incomes),
		AnomalyPenalty:  math.Max(0, 100-float64(anomalies)*a.policy.PenaltyPerAnomaly),
		EmploymentBonus: math.Min(20, employmentMonths/6*20),
	}
}

func (a *Analyzer) stabilityScore(f domain.StabilityFactors) int {
	p := a.policy
	raw := f.Consistency*p.ConsistencyWeight +
		f.Trend*p.TrendWeight +
		f.AnomalyPenalty*p.AnomalyWeight +
		f.EmploymentBonus*p.EmploymentWeight
	return int(math.Max(0, math.Min(100, math.Round(raw))))
}

// trendScore buckets the percentage change from the first half average
// to the second half average. The halves split at floor(n/2).
func trendScore(incomes []float64) float64 {
	if len(incomes) < 2 {
		return 50
	}

	mid := len(incomes) / 2
	first := average(incomes[:mid])
	second := average(incomes[mid:])

	var change float64
	switch {
	case first != 0:
		change = (second - first) / first * 100
	case second > 0:
		change = math.Inf(1)
	case second < 0:
		change = math.Inf(-1)
	}

	switch {
	case change > 20:
		return 100
	case change > 10:
		return 85
	case change > 0:
		return 70
	case change > -10:
		return 50
	case change > -20:
		return 30
	default:
		return 10
	}
}

func (a *Analyzer) fraudIndicators(incomes, deposits []float64) []domain.FraudIndicator {
	p := a.policy
	indicators := []domain.FraudIndicator{}

	// The last three months are compared against everything before them,
	// so a series of exactly three has no history to compare with.
	if n := len(incomes); n > 3 {
		recent := average(incomes[n-3:])
		history := average(incomes[:n-3])
		if recent > history*p.SuddenIncreaseFactor {
			indicators = append(indicators, domain.FraudIndicator{
				Type:        domain.FraudSuddenIncrease,
				Severity:    domain.SeverityHigh,
				Description: "Recent income more than doubled compared to history",
			})
		}
	}

	if p.RoundNumberUnit > 0 {
		var round int
		for _, x := range incomes {
			if math.Mod(x, p.RoundNumberUnit) == 0 {
				round++
			}
		}
		if float64(round) >= float64(len(incomes))*p.RoundNumberRatio {
			indicators = append(indicators, domain.FraudIndicator{
				Type:        domain.FraudRoundNumbers,
				Severity:    domain.SeverityMedium,
				Description: "Suspicious pattern of round numbers in income",
			})
		}
	}

	if len(deposits) > 0 {
		ds := ComputeStats(deposits)
		if ds.StdDev > 0 {
			var irregular int
			for _, c := range deposits {
				if math.Abs((c-ds.Mean)/ds.StdDev) > p.DepositDeviationZ {
					irregular++
				}
			}
			if irregular > 0 && float64(irregular) >= float64(len(deposits))*p.IrregularRatio {
				indicators = append(indicators, domain.FraudIndicator{
					Type:        domain.FraudIrregularDeposits,
					Severity:    domain.SeverityMedium,
					Description: "Inconsistent deposit patterns detected",
				})
			}
		}
	}

	return indicators
}

func confidence(fraud []domain.FraudIndicator, anomalies int) string {
	level := domain.ConfidenceHigh
	if len(fraud) > 0 || anomalies > 2 {
		level = domain.ConfidenceMedium
	}
	for _, f := range fraud {
		if f.Severity == domain.SeverityHigh {
			return domain.ConfidenceLow
		}
	}
	return level
}

func (a *Analyzer) recommend(score int) string {
	switch {
	case score >= a.policy.ApproveAt:
		return domain.RecommendApprove
	case score >= a.policy.ReviewAt:
		return domain.RecommendReview
	default:
		return domain.RecommendCaution
	}
}

func insights(stats domain.Statistics) []string {
	out := []string{}
	switch {
	case stats.TrendSlope > 0.1:
		out = append(out, "Positive income growth trend detected")
	case stats.TrendSlope < -0.1:
		out = append(out, "Declining income trend detected")
	}
	switch {
	case stats.CoefficientOfVariation < 0.15:
		out = append(out, "Very stable income pattern")
	case stats.CoefficientOfVariation > 0.35:
		out = append(out, "Highly variable income pattern")
	}
	return out
}

func summarize(stats domain.Statistics) domain.IncomeSummary {
	trend := "STABLE"
	switch {
	case stats.TrendSlope > 0:
		trend = "INCREASING"
	case stats.TrendSlope < -0.05:
		trend = "DECREASING"
	}
	return domain.IncomeSummary{
		MeanIncome:             domain.Round(stats.Mean, 2),
		MedianIncome:           domain.Round(stats.Median, 2),
		StdDeviation:           domain.Round(stats.StdDev, 2),
		CoefficientOfVariation: domain.Round(stats.CoefficientOfVariation, 3),
		Trend:                  trend,
		TrendStrength:          math.Abs(stats.TrendSlope),
	}
}
