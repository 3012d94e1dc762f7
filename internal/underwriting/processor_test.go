package underwriting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/income"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scenario"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

var fixedNow = time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

type fakeRecorder struct {
	mu        sync.Mutex
	decisions []domain.Decision
	analyses  []string
	scenarios []string
}

func (r *fakeRecorder) ObserveDecision(d domain.Decision, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, d)
}

func (r *fakeRecorder) ObserveIncomeAnalysis(rec string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analyses = append(r.analyses, rec)
}

func (r *fakeRecorder) ObserveScenario(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scenarios = append(r.scenarios, kind)
}

func newProcessor(t *testing.T, opts ...Option) *Processor {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock)}, opts...)
	return NewProcessor(scoring.DefaultModel(), income.NewAnalyzer(domain.DefaultIncomePolicy()), opts...)
}

func strongApplication(dti float64) domain.RawFeatures {
	employment := 8.0
	return domain.RawFeatures{
		ApplicationID:   "APP-100",
		ApplicantID:     "applicant-100",
		CreditScore:     780,
		AnnualIncome:    120000,
		LoanAmount:      20000,
		EmploymentYears: &employment,
		DTIRatio:        &dti,
	}
}

func TestScoreApplication(t *testing.T) {
	rec := &fakeRecorder{}
	p := newProcessor(t, WithRecorder(rec))
	ctx := context.Background()

	eval, err := p.ScoreApplication(ctx, "tenant-001", strongApplication(0.2))
	if err != nil {
		t.Fatalf("ScoreApplication failed: %v", err)
	}

	if eval.ID == "" {
		t.Error("expected evaluation ID")
	}
	if eval.TenantID != "tenant-001" || eval.ApplicationID != "APP-100" || eval.ApplicantID != "applicant-100" {
		t.Errorf("evaluation not tagged: %+v", eval)
	}
	if eval.Status != domain.StatusClear {
		t.Errorf("expected CLEAR without rules, got %s", eval.Status)
	}
	if eval.Score.Decision != domain.DecisionApproved {
		t.Errorf("expected APPROVED, got %s", eval.Score.Decision)
	}
	if eval.Score.InterestRate != 5.68 {
		t.Errorf("expected rate 5.68, got %.2f", eval.Score.InterestRate)
	}
	if !eval.Timestamp.Equal(fixedNow) {
		t.Errorf("expected timestamp %v, got %v", fixedNow, eval.Timestamp)
	}
	if eval.Metadata.EngineVersion != EngineVersion {
		t.Errorf("expected engine version %s, got %s", EngineVersion, eval.Metadata.EngineVersion)
	}
	if eval.Metadata.ModelVersion != "LogisticRegression_v1" {
		t.Errorf("expected model version, got %s", eval.Metadata.ModelVersion)
	}
	if eval.Metadata.RulesEvaluated != 0 || eval.RuleResults != nil {
		t.Errorf("expected no rule results, got %+v", eval.RuleResults)
	}
	if len(rec.decisions) != 1 || rec.decisions[0] != domain.DecisionApproved {
		t.Errorf("expected one APPROVED observation, got %v", rec.decisions)
	}
}

func TestScoreApplicationErrors(t *testing.T) {
	p := newProcessor(t)
	ctx := context.Background()

	t.Run("Validation", func(t *testing.T) {
		_, err := p.ScoreApplication(ctx, "tenant-001", domain.RawFeatures{CreditScore: 700, AnnualIncome: 50000})
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
		var ve *domain.ValidationError
		if !errors.As(err, &ve) || ve.Field != "loanAmount" {
			t.Errorf("expected loanAmount field, got %+v", ve)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if _, err := p.ScoreApplication(ctx, "", strongApplication(0.2)); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})
}

func TestScoreApplicationWithPolicyRules(t *testing.T) {
	engine, err := rules.NewEngine(nil, 4)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()
	if err := engine.LoadRules(rules.BuiltinRules()); err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}

	p := newProcessor(t, WithRules(engine, 86400))
	ctx := context.Background()

	t.Run("ClearWithinPolicy", func(t *testing.T) {
		eval, err := p.ScoreApplication(ctx, "tenant-001", strongApplication(0.2))
		if err != nil {
			t.Fatalf("ScoreApplication failed: %v", err)
		}
		if eval.Status != domain.StatusClear {
			t.Errorf("expected CLEAR, got %s (%v)", eval.Status, eval.PolicyReasons())
		}
		if eval.Metadata.RulesEvaluated != len(rules.BuiltinRules()) {
			t.Errorf("expected %d rules evaluated, got %d", len(rules.BuiltinRules()), eval.Metadata.RulesEvaluated)
		}
	})

	t.Run("HighDTIGoesToReview", func(t *testing.T) {
		app := strongApplication(0.45)
		eval, err := p.ScoreApplication(ctx, "tenant-001", app)
		if err != nil {
			t.Fatalf("ScoreApplication failed: %v", err)
		}
		if !eval.ManualReview() {
			t.Fatalf("expected manual review, got %s", eval.Status)
		}

		found := false
		for _, reason := range eval.PolicyReasons() {
			if reason == "DTI above 43%" {
				found = true
			}
		}
		if !found {
			t.Errorf("expected DTI reason, got %v", eval.PolicyReasons())
		}

		plain, _ := scoring.DefaultModel().Score(app)
		if eval.Score.Decision != plain.Decision || eval.Score.Probability != plain.Probability {
			t.Errorf("policy rules must not alter the score: got %s %.4f, want %s %.4f",
				eval.Score.Decision, eval.Score.Probability, plain.Decision, plain.Probability)
		}
	})
}

func TestScoreApplicationVelocity(t *testing.T) {
	counts := func(ctx context.Context, tenantID, applicantID string, windowSecs int) (int64, error) {
		if applicantID == "applicant-100" {
			return 6, nil
		}
		return 0, nil
	}
	engine, _ := rules.NewEngine(counts, 4)
	defer engine.Close()
	for _, r := range rules.BuiltinRules() {
		if r.ID == "application-velocity" {
			engine.LoadRule(r)
		}
	}

	p := newProcessor(t, WithRules(engine, 86400))

	eval, err := p.ScoreApplication(context.Background(), "tenant-001", strongApplication(0.2))
	if err != nil {
		t.Fatalf("ScoreApplication failed: %v", err)
	}
	if eval.Status != domain.StatusReview {
		t.Errorf("expected REVIEW for frequent applicant, got %s", eval.Status)
	}
	if eval.RuleResults[0].Score != 6 {
		t.Errorf("expected application_count 6, got %.0f", eval.RuleResults[0].Score)
	}
}

func TestAnalyzeIncome(t *testing.T) {
	rec := &fakeRecorder{}
	p := newProcessor(t, WithRecorder(rec))
	ctx := context.Background()

	analysis, err := p.AnalyzeIncome(ctx, "tenant-001", domain.IncomeAnalysisRequest{
		ApplicantID:    "applicant-100",
		MonthlyIncomes: []float64{5250, 5250, 5250, 5250, 5250, 5250},
	})
	if err != nil {
		t.Fatalf("AnalyzeIncome failed: %v", err)
	}
	if analysis.ID == "" || analysis.ApplicantID != "applicant-100" || analysis.TenantID != "tenant-001" {
		t.Errorf("analysis not tagged: %+v", analysis)
	}
	if analysis.Result.StabilityScore != 80 {
		t.Errorf("expected stability score 80, got %d", analysis.Result.StabilityScore)
	}
	if !analysis.Timestamp.Equal(fixedNow) {
		t.Errorf("expected timestamp %v, got %v", fixedNow, analysis.Timestamp)
	}
	if len(rec.analyses) != 1 || rec.analyses[0] != domain.RecommendApprove {
		t.Errorf("expected one APPROVE observation, got %v", rec.analyses)
	}

	_, err = p.AnalyzeIncome(ctx, "tenant-001", domain.IncomeAnalysisRequest{MonthlyIncomes: []float64{5000, 5100}})
	if !errors.Is(err, domain.ErrInsufficientData) {
		t.Errorf("expected insufficient data, got %v", err)
	}
}

func TestScenarioLookups(t *testing.T) {
	rec := &fakeRecorder{}
	p := newProcessor(t, WithRecorder(rec))

	t.Run("Decision", func(t *testing.T) {
		out, err := p.SelectDecisionScenario("APP-001")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Scenario != scenario.DeniedLowCredit {
			t.Errorf("expected %s, got %s", scenario.DeniedLowCredit, out.Scenario)
		}

		out, _ = p.SelectDecisionScenario("")
		if out.Scenario != scenario.ApprovedGoodCredit {
			t.Errorf("expected default %s, got %s", scenario.ApprovedGoodCredit, out.Scenario)
		}
	})

	t.Run("DecisionProviderError", func(t *testing.T) {
		_, err := p.SelectDecisionScenario("a0018000001")
		if !errors.Is(err, domain.ErrProvider) {
			t.Fatalf("expected provider error, got %v", err)
		}
		var pe *domain.ProviderError
		if !errors.As(err, &pe) || pe.Code != "DECISION_ENGINE_ERROR" {
			t.Errorf("expected DECISION_ENGINE_ERROR, got %+v", pe)
		}
	})

	t.Run("CreditScore", func(t *testing.T) {
		ce, err := p.CreditScore("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ce.CreditScore != 720 || ce.CreditGrade != "B" || ce.Bureau != "Experian" {
			t.Errorf("unexpected credit evaluation: %+v", ce)
		}
		if ce.ScoreDate != "2026-03-15" {
			t.Errorf("expected score date from clock, got %s", ce.ScoreDate)
		}
		if len(ce.Factors) != 2 {
			t.Errorf("expected good-credit factors, got %v", ce.Factors)
		}

		_, err = p.CreditScore("a0018000001")
		var pe *domain.ProviderError
		if !errors.As(err, &pe) || pe.Code != "CREDIT_BUREAU_ERROR" {
			t.Errorf("expected CREDIT_BUREAU_ERROR, got %v", err)
		}
	})

	t.Run("IncomeProfile", func(t *testing.T) {
		if got := p.SelectIncomeProfile("abc"); got.Profile != scenario.IncomeLow {
			t.Errorf("expected LOW, got %s", got.Profile)
		}
		got := p.SelectIncomeProfile("APP-001")
		if got.Profile != scenario.IncomeUnverifiable || got.Verified() {
			t.Errorf("expected unverifiable profile, got %+v", got)
		}
	})

	if len(rec.scenarios) == 0 {
		t.Error("expected scenario observations")
	}
}

func TestCustomScenarioTables(t *testing.T) {
	decisions, err := scenario.NewSelector([]domain.OutcomeRecord{{Scenario: "ONLY"}}, 0)
	if err != nil {
		t.Fatalf("NewSelector failed: %v", err)
	}
	incomes, _ := scenario.NewSelector([]domain.IncomeProfile{{Profile: "ONLY"}}, 0)

	p := newProcessor(t, WithScenarios(decisions, incomes))
	if out, _ := p.SelectDecisionScenario("anything"); out.Scenario != "ONLY" {
		t.Errorf("expected custom table, got %s", out.Scenario)
	}
	if got := p.SelectIncomeProfile("anything"); got.Profile != "ONLY" {
		t.Errorf("expected custom table, got %s", got.Profile)
	}
}

func TestAmortize(t *testing.T) {
	p := newProcessor(t)

	a, err := p.Amortize(10000, 6, 12, false)
	if err != nil {
		t.Fatalf("Amortize failed: %v", err)
	}
	if a.MonthlyPayment != 860.66 || a.Schedule != nil {
		t.Errorf("unexpected amortization: %+v", a)
	}

	s, err := p.Amortize(1000, 12, 3, true)
	if err != nil {
		t.Fatalf("Amortize with schedule failed: %v", err)
	}
	if len(s.Schedule) != 3 || s.Schedule[2].Balance != 0 {
		t.Errorf("unexpected schedule: %+v", s.Schedule)
	}

	if _, err := p.Amortize(10000, 6, 0, false); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
