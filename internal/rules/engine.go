// Package rules provides the CEL-Go based policy rule engine that runs over
// scored loan applications.
package rules

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// Engine is the CEL-based policy rule engine.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	countGetter   CountGetter
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// CountGetter returns how many applications an applicant submitted within a window.
type CountGetter func(ctx context.Context, tenantID, applicantID string, windowSecs int) (int64, error)

// NewEngine creates a new rule engine. countGetter may be nil, in which case
// application_count is always 0.
func NewEngine(countGetter CountGetter, maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("credit_score", cel.DoubleType),
		cel.Variable("annual_income", cel.DoubleType),
		cel.Variable("loan_amount", cel.DoubleType),
		cel.Variable("loan_term", cel.IntType),
		cel.Variable("dti_ratio", cel.DoubleType),
		cel.Variable("employment_years", cel.DoubleType),
		cel.Variable("prior_defaults", cel.BoolType),
		cel.Variable("loan_purpose", cel.StringType),
		cel.Variable("probability", cel.DoubleType),
		cel.Variable("decision", cel.StringType),
		cel.Variable("interest_rate", cel.DoubleType),
		cel.Variable("application_count", cel.IntType),
		cel.Variable("features", cel.MapType(cel.StringType, cel.DoubleType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		countGetter:   countGetter,
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles a rule without touching the loaded set.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled
	return nil
}

// LoadRules compiles and loads every enabled rule.
func (e *Engine) LoadRules(configs []*domain.RuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// EvaluateInput is a scored application resolved into rule variables.
type EvaluateInput struct {
	TenantID        string
	ApplicationID   string
	ApplicantID     string
	CreditScore     float64
	AnnualIncome    float64
	LoanAmount      float64
	LoanTerm        int
	DTIRatio        float64
	EmploymentYears float64
	PriorDefaults   bool
	LoanPurpose     string
	Probability     float64
	Decision        domain.Decision
	InterestRate    float64
	Features        map[string]float64
	VelocityWindow  int // seconds
}

// NewEvaluateInput resolves an application and its score into rule
// variables. Missing optional inputs take the same defaults the model used.
func NewEvaluateInput(tenantID string, f domain.RawFeatures, s *domain.ScoreResult, velocityWindow int) *EvaluateInput {
	in := &EvaluateInput{
		TenantID:        tenantID,
		ApplicationID:   f.ApplicationID,
		ApplicantID:     f.ApplicantID,
		CreditScore:     f.CreditScore,
		AnnualIncome:    f.AnnualIncome,
		LoanAmount:      f.LoanAmount,
		DTIRatio:        scoring.DefaultDTIRatio,
		EmploymentYears: scoring.DefaultEmploymentYears,
		PriorDefaults:   f.PriorDefaults,
		LoanPurpose:     f.LoanPurpose,
		VelocityWindow:  velocityWindow,
	}
	if f.DTIRatio != nil {
		in.DTIRatio = *f.DTIRatio
	}
	if f.EmploymentYears != nil {
		in.EmploymentYears = *f.EmploymentYears
	}
	if f.LoanTermMonths != nil {
		in.LoanTerm = *f.LoanTermMonths
	}
	if s != nil {
		in.Probability = s.Probability
		in.Decision = s.Decision
		in.InterestRate = s.InterestRate
		in.LoanTerm = s.Term
		in.Features = s.Features.AsMap()
	}
	return in
}

// EvaluateAll evaluates all loaded rules in parallel. Results are ordered by rule ID.
func (e *Engine) EvaluateAll(ctx context.Context, input *EvaluateInput) ([]domain.RuleResult, error) {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil, nil
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Config.ID < rules[j].Config.ID })

	var applicationCount int64
	if e.countGetter != nil && input.VelocityWindow > 0 && input.ApplicantID != "" {
		count, err := e.countGetter(ctx, input.TenantID, input.ApplicantID, input.VelocityWindow)
		if err != nil {
			return nil, fmt.Errorf("failed to count applications: %w", err)
		}
		applicationCount = count
	}

	features := input.Features
	if features == nil {
		features = map[string]float64{}
	}

	activation := map[string]any{
		"credit_score":      input.CreditScore,
		"annual_income":     input.AnnualIncome,
		"loan_amount":       input.LoanAmount,
		"loan_term":         int64(input.LoanTerm),
		"dti_ratio":         input.DTIRatio,
		"employment_years":  input.EmploymentYears,
		"prior_defaults":    input.PriorDefaults,
		"loan_purpose":      input.LoanPurpose,
		"probability":       input.Probability,
		"decision":          string(input.Decision),
		"interest_rate":     input.InterestRate,
		"application_count": applicationCount,
		"features":          features,
	}

	results := make([]domain.RuleResult, len(rules))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = e.evaluateRule(ctx, r, activation, input)
		}(i, rule)
	}

	wg.Wait()

	return results, nil
}

func (e *Engine) evaluateRule(ctx context.Context, rule *CompiledRule, activation map[string]any, input *EvaluateInput) domain.RuleResult {
	start := time.Now()

	result := domain.RuleResult{
		RuleID:        rule.Config.ID,
		TenantID:      input.TenantID,
		ApplicationID: input.ApplicationID,
	}

	out, _, err := rule.Program.ContextEval(ctx, activation)
	if err != nil {
		result.SubRuleRef = domain.RuleOutcomeError
		result.Reason = fmt.Sprintf("evaluation error: %v", err)
		result.ProcessMs = time.Since(start).Milliseconds()
		return result
	}

	result.Score = toScore(out)
	result.SubRuleRef, result.Reason = matchBand(result.Score, rule.Config.Bands)
	result.ProcessMs = time.Since(start).Milliseconds()

	return result
}

// toScore converts a CEL value to a numeric score.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// matchBand returns the first band with lower <= score < upper. A nil limit
// is unbounded on that side.
func matchBand(score float64, bands []domain.RuleBand) (string, string) {
	for _, band := range bands {
		lower, upper := math.Inf(-1), math.Inf(1)
		if band.LowerLimit != nil {
			lower = *band.LowerLimit
		}
		if band.UpperLimit != nil {
			upper = *band.UpperLimit
		}
		if score >= lower && score < upper {
			return band.SubRuleRef, band.Reason
		}
	}

	return domain.RuleOutcomePass, "no matching band"
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// ReloadRules atomically replaces the loaded set. On a compile error the
// previous set stays in place.
func (e *Engine) ReloadRules(configs []*domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules
	return nil
}

// GetLoadedRules returns the loaded rule configurations ordered by ID.
func (e *Engine) GetLoadedRules() []*domain.RuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.RuleConfig, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("rule ID is required")
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast, cel.InterruptCheckFrequency(100))
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
