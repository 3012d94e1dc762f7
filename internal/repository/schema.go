package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaEvaluations = `
CREATE TABLE IF NOT EXISTS evaluations (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    application_id TEXT NOT NULL,
    applicant_id TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    decision TEXT NOT NULL,
    probability REAL NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    request TEXT NOT NULL,
    score TEXT NOT NULL,
    rule_results TEXT NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evaluations_tenant ON evaluations(tenant_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_application ON evaluations(tenant_id, application_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_applicant ON evaluations(tenant_id, applicant_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_evaluations_decision ON evaluations(tenant_id, decision);
`

const schemaIncomeAnalyses = `
CREATE TABLE IF NOT EXISTS income_analyses (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    applicant_id TEXT NOT NULL DEFAULT '',
    stability_score INTEGER NOT NULL,
    recommendation TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    result TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_income_analyses_tenant ON income_analyses(tenant_id);
CREATE INDEX IF NOT EXISTS idx_income_analyses_applicant ON income_analyses(tenant_id, applicant_id);
`

const schemaPolicyRules = `
CREATE TABLE IF NOT EXISTS policy_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    bands TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_policy_rules_tenant ON policy_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_policy_rules_enabled ON policy_rules(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaEvaluations,
		schemaIncomeAnalyses,
		schemaPolicyRules,
	}
}
