// Package underwriting ties the scoring model, income analyzer, canned
// provider scenarios and policy rules into one processor.
package underwriting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/kestrel/internal/amortize"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/income"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scenario"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// EngineVersion is stamped on every evaluation.
const EngineVersion = "kestrel-1.0"

var tracer = otel.Tracer("kestrel-underwriting")

// Recorder receives processing outcomes for metrics.
type Recorder interface {
	ObserveDecision(decision domain.Decision, elapsed time.Duration)
	ObserveIncomeAnalysis(recommendation string)
	ObserveScenario(kind string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveDecision(domain.Decision, time.Duration) {}
func (nopRecorder) ObserveIncomeAnalysis(string)                   {}
func (nopRecorder) ObserveScenario(string)                         {}

// Processor scores applications and analyzes income. It is safe for
// concurrent use.
type Processor struct {
	model          *scoring.Model
	analyzer       *income.Analyzer
	decisions      *scenario.Decisions
	incomes        *scenario.Incomes
	engine         *rules.Engine
	velocityWindow int
	recorder       Recorder
	now            func() time.Time
}

// Option configures a Processor.
type Option func(*Processor)

// WithRules overlays policy rules on every scored application. Applications
// counted for application_count fall within velocityWindow seconds.
func WithRules(engine *rules.Engine, velocityWindow int) Option {
	return func(p *Processor) {
		p.engine = engine
		p.velocityWindow = velocityWindow
	}
}

// WithScenarios replaces the built-in canned provider tables.
func WithScenarios(decisions *scenario.Decisions, incomes *scenario.Incomes) Option {
	return func(p *Processor) {
		p.decisions = decisions
		p.incomes = incomes
	}
}

// WithRecorder sends processing outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(p *Processor) {
		p.recorder = r
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		p.now = now
	}
}

// NewProcessor creates a processor around a scoring model and income analyzer.
func NewProcessor(model *scoring.Model, analyzer *income.Analyzer, opts ...Option) *Processor {
	p := &Processor{
		model:     model,
		analyzer:  analyzer,
		decisions: scenario.NewDecisions(),
		incomes:   scenario.NewIncomes(),
		recorder:  nopRecorder{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ScoreApplication scores an application and overlays policy rules. The
// score itself is never altered by rules; flagged rules only move the
// evaluation to REVIEW.
func (p *Processor) ScoreApplication(ctx context.Context, tenantID string, f domain.RawFeatures) (*domain.Evaluation, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	start := p.now()
	ctx, span := tracer.Start(ctx, "underwriting.score",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("application.id", f.ApplicationID),
		),
	)
	defer span.End()

	score, err := p.model.Score(f)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	scoreMs := p.now().Sub(start).Milliseconds()
	span.SetAttributes(
		attribute.String("decision", string(score.Decision)),
		attribute.Float64("probability", score.Probability),
	)

	eval := &domain.Evaluation{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		ApplicationID: f.ApplicationID,
		ApplicantID:   f.ApplicantID,
		Status:        domain.StatusClear,
		Timestamp:     start.UTC(),
		Features:      f,
		Score:         score,
	}

	rulesStart := p.now()
	if p.engine != nil {
		input := rules.NewEvaluateInput(tenantID, f, score, p.velocityWindow)
		results, err := p.engine.EvaluateAll(ctx, input)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("policy rule evaluation failed: %w", err)
		}
		eval.RuleResults = results
		for _, r := range results {
			if r.SubRuleRef == domain.RuleOutcomeFail || r.SubRuleRef == domain.RuleOutcomeReview {
				eval.Status = domain.StatusReview
				break
			}
		}
	}
	rulesMs := p.now().Sub(rulesStart).Milliseconds()

	traceID := eval.ID
	if sc := span.SpanContext(); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	eval.Metadata = domain.EvaluationMetadata{
		TraceID:        traceID,
		ScoreMs:        scoreMs,
		RulesMs:        rulesMs,
		TotalMs:        p.now().Sub(start).Milliseconds(),
		RulesEvaluated: len(eval.RuleResults),
		ModelVersion:   score.Model,
		EngineVersion:  EngineVersion,
	}

	p.recorder.ObserveDecision(score.Decision, p.now().Sub(start))
	return eval, nil
}

// AnalyzeIncome runs the stability analysis and wraps it in a storable record.
func (p *Processor) AnalyzeIncome(ctx context.Context, tenantID string, req domain.IncomeAnalysisRequest) (*domain.IncomeAnalysis, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	_, span := tracer.Start(ctx, "underwriting.analyze_income",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.Int("data_points", len(req.MonthlyIncomes)),
		),
	)
	defer span.End()

	result, err := p.analyzer.Analyze(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("stability_score", result.StabilityScore))

	p.recorder.ObserveIncomeAnalysis(result.Recommendation)
	return &domain.IncomeAnalysis{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		ApplicantID: req.ApplicantID,
		Result:      result,
		Timestamp:   p.now().UTC(),
	}, nil
}

// SelectDecisionScenario returns the canned decision for an identifier.
// Records flagged as errors come back as a *domain.ProviderError.
func (p *Processor) SelectDecisionScenario(identifier string) (domain.OutcomeRecord, error) {
	rec := p.decisions.Select(identifier)
	p.recorder.ObserveScenario("decision")
	if rec.Error {
		return rec, &domain.ProviderError{Code: rec.ErrorCode, Message: rec.Message}
	}
	return rec, nil
}

// SelectIncomeProfile returns the canned income profile for an identifier.
func (p *Processor) SelectIncomeProfile(identifier string) domain.IncomeProfile {
	p.recorder.ObserveScenario("income")
	return p.incomes.Select(identifier)
}

// CreditScore returns the canned bureau evaluation for an identifier.
func (p *Processor) CreditScore(identifier string) (domain.CreditEvaluation, error) {
	rec := p.decisions.Select(identifier)
	p.recorder.ObserveScenario("credit")
	if rec.Error {
		return domain.CreditEvaluation{}, &domain.ProviderError{
			Code:    "CREDIT_BUREAU_ERROR",
			Message: "Unable to retrieve credit score",
		}
	}
	return scenario.CreditEvaluation(rec, p.now().UTC().Format(time.DateOnly)), nil
}

// DebtToIncome computes a DTI summary.
func (p *Processor) DebtToIncome(monthlyIncome, monthlyDebts float64) (*domain.DTIResult, error) {
	return income.DebtToIncome(monthlyIncome, monthlyDebts)
}

// DebtToIncomeBreakdown computes a DTI summary from itemized debts.
func (p *Processor) DebtToIncomeBreakdown(monthlyIncome float64, debts domain.DebtBreakdown) (*domain.DTIResult, error) {
	return income.DebtToIncomeBreakdown(monthlyIncome, debts)
}

// Amortize prices a loan; withSchedule adds the per-period table.
func (p *Processor) Amortize(principal, annualRatePercent float64, termMonths int, withSchedule bool) (*domain.Amortization, error) {
	if withSchedule {
		return amortize.Schedule(principal, annualRatePercent, termMonths)
	}
	return amortize.Calculate(principal, annualRatePercent, termMonths)
}

// Model returns the scoring model.
func (p *Processor) Model() *scoring.Model {
	return p.model
}
