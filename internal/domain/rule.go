package domain

// RuleConfig defines an underwriting policy rule.
type RuleConfig struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression to evaluate against the scored application
	Expression string `json:"expression"`

	// Outcome bands for score-to-outcome mapping
	Bands []RuleBand `json:"bands"`

	// Whether rule is active
	Enabled bool `json:"enabled"`
}

// RuleBand maps a score range to an outcome.
type RuleBand struct {
	LowerLimit *float64 `json:"lowerLimit,omitempty"`
	UpperLimit *float64 `json:"upperLimit,omitempty"`
	SubRuleRef string   `json:"subRuleRef"` // e.g., ".pass", ".fail", ".review"
	Reason     string   `json:"reason"`
}

// RuleResult is the output of a rule evaluation.
type RuleResult struct {
	RuleID        string  `json:"ruleId"`
	TenantID      string  `json:"tenantId"`
	ApplicationID string  `json:"applicationId"`
	SubRuleRef    string  `json:"subRuleRef"` // ".pass", ".fail", ".review", ".err"
	Score         float64 `json:"score"`      // The computed value
	Reason        string  `json:"reason"`
	ProcessMs     int64   `json:"processMs"`
}

// Predefined rule outcomes
const (
	RuleOutcomePass   = ".pass"
	RuleOutcomeFail   = ".fail"
	RuleOutcomeReview = ".review"
	RuleOutcomeError  = ".err"
)

// VelocityPolicy bounds how many applications one applicant may submit
// within a window before policy rules see a high application_count.
type VelocityPolicy struct {
	WindowSecs int `json:"windowSecs" toml:"window_secs"`
}

// GlobalTenantID owns policy rules that apply to every tenant.
const GlobalTenantID = "*"
