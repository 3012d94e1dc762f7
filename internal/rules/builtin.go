package rules

import "github.com/opensource-finance/kestrel/internal/domain"

func limit(v float64) *float64 { return &v }

// BuiltinRules returns the starter policy set seeded into an empty tenant.
// Tenants replace or extend it through the rules API.
func BuiltinRules() []*domain.RuleConfig {
	return []*domain.RuleConfig{
		{
			ID:          "max-dti",
			Name:        "Maximum debt-to-income",
			Description: "Sends applications above the 43% DTI ceiling to review",
			Version:     "1.0.0",
			Expression:  "dti_ratio",
			Bands: []domain.RuleBand{
				{UpperLimit: limit(0.43), SubRuleRef: domain.RuleOutcomePass, Reason: "DTI within policy"},
				{LowerLimit: limit(0.43), UpperLimit: limit(0.5), SubRuleRef: domain.RuleOutcomeReview, Reason: "DTI above 43%"},
				{LowerLimit: limit(0.5), SubRuleRef: domain.RuleOutcomeFail, Reason: "DTI above 50%"},
			},
			Enabled: true,
		},
		{
			ID:          "application-velocity",
			Name:        "Application velocity",
			Description: "Flags applicants submitting many applications within the velocity window",
			Version:     "1.0.0",
			Expression:  "application_count",
			Bands: []domain.RuleBand{
				{UpperLimit: limit(4), SubRuleRef: domain.RuleOutcomePass, Reason: "Normal application volume"},
				{LowerLimit: limit(4), SubRuleRef: domain.RuleOutcomeReview, Reason: "Multiple recent applications"},
			},
			Enabled: true,
		},
		{
			ID:          "default-exposure",
			Name:        "Prior default exposure",
			Description: "Fails approvals above 30% of income for applicants with prior defaults",
			Version:     "1.0.0",
			Expression:  "prior_defaults && decision != 'DENIED' && loan_amount > annual_income * 0.3",
			Bands: []domain.RuleBand{
				{UpperLimit: limit(1), SubRuleRef: domain.RuleOutcomePass, Reason: "Exposure within policy"},
				{LowerLimit: limit(1), SubRuleRef: domain.RuleOutcomeFail, Reason: "Large exposure with prior defaults"},
			},
			Enabled: true,
		},
	}
}
