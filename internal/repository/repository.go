// Package repository persists evaluations, income analyses and policy rules
// in SQLite or PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("record already exists")
)

// SQLRepository implements domain.Repository on database/sql. Every row is
// keyed by tenant and every query filters on it.
type SQLRepository struct {
	db      *sql.DB
	dialect dialect
}

// New opens the configured database and applies the schema.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	db, d, err := open(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 && (d.singleConn == nil || !d.singleConn(cfg)) {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{db: db, dialect: d}
	for i, schema := range AllSchemas() {
		if _, err := db.Exec(schema); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply schema %d: %w", i, err)
		}
	}
	return repo, nil
}

func requireTenant(tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	return nil
}

func (r *SQLRepository) exec(ctx context.Context, query string, args ...any) error {
	_, err := r.db.ExecContext(ctx, r.dialect.bind(query), args...)
	if err != nil && r.dialect.duplicate != nil && r.dialect.duplicate(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func (r *SQLRepository) row(ctx context.Context, query string, args ...any) *sql.Row {
	return r.db.QueryRowContext(ctx, r.dialect.bind(query), args...)
}

// notFound maps sql.ErrNoRows onto ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// jsonColumns encodes values for TEXT columns in order.
func jsonColumns(values ...any) ([]any, error) {
	out := make([]any, len(values))
	for i, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[i] = string(b)
	}
	return out, nil
}

// decodeColumn parses a TEXT column written by jsonColumns.
func decodeColumn(column, raw string, v any) error {
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to parse %s column: %w", column, err)
	}
	return nil
}

// SaveEvaluation stores a scored application under tenantID.
func (r *SQLRepository) SaveEvaluation(ctx context.Context, tenantID string, eval *domain.Evaluation) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if eval.Score == nil {
		return fmt.Errorf("%w: evaluation %s has no score", ErrInvalidInput, eval.ID)
	}

	cols, err := jsonColumns(eval.Features, eval.Score, eval.RuleResults, eval.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode evaluation %s: %w", eval.ID, err)
	}

	err = r.exec(ctx, `
		INSERT INTO evaluations (
			id, tenant_id, application_id, applicant_id, status, decision,
			probability, timestamp, request, score, rule_results, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		eval.ID, tenantID, eval.ApplicationID, eval.ApplicantID, eval.Status,
		string(eval.Score.Decision), eval.Score.Probability, eval.Timestamp.UTC(),
		cols[0], cols[1], cols[2], cols[3],
	)
	if err != nil {
		return fmt.Errorf("save evaluation %s: %w", eval.ID, err)
	}
	return nil
}

// GetEvaluation loads one evaluation. Another tenant's ID reads as missing.
func (r *SQLRepository) GetEvaluation(ctx context.Context, tenantID string, evalID string) (*domain.Evaluation, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	var (
		eval                                 domain.Evaluation
		request, score, ruleResults, details string
	)
	err := r.row(ctx, `
		SELECT id, tenant_id, application_id, applicant_id, status, timestamp,
			request, score, rule_results, metadata
		FROM evaluations
		WHERE tenant_id = ? AND id = ?`,
		tenantID, evalID,
	).Scan(
		&eval.ID, &eval.TenantID, &eval.ApplicationID, &eval.ApplicantID, &eval.Status, &eval.Timestamp,
		&request, &score, &ruleResults, &details,
	)
	if err != nil {
		return nil, notFound(err)
	}

	for _, col := range []struct {
		name string
		raw  string
		dst  any
	}{
		{"score", score, &eval.Score},
		{"request", request, &eval.Features},
		{"rule_results", ruleResults, &eval.RuleResults},
		{"metadata", details, &eval.Metadata},
	} {
		if err := decodeColumn(col.name, col.raw, col.dst); err != nil {
			return nil, fmt.Errorf("evaluation %s: %w", eval.ID, err)
		}
	}
	return &eval, nil
}

// CountEvaluationsByApplicant counts an applicant's evaluations at or after
// since. An empty applicant has no history.
func (r *SQLRepository) CountEvaluationsByApplicant(ctx context.Context, tenantID string, applicantID string, since time.Time) (int, error) {
	if err := requireTenant(tenantID); err != nil {
		return 0, err
	}
	if applicantID == "" {
		return 0, nil
	}

	var count int
	err := r.row(ctx, `
		SELECT COUNT(*) FROM evaluations
		WHERE tenant_id = ? AND applicant_id = ? AND timestamp >= ?`,
		tenantID, applicantID, since.UTC(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count evaluations for applicant: %w", err)
	}
	return count, nil
}

// SaveIncomeAnalysis stores an income analysis under tenantID.
func (r *SQLRepository) SaveIncomeAnalysis(ctx context.Context, tenantID string, analysis *domain.IncomeAnalysis) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if analysis.Result == nil {
		return fmt.Errorf("%w: income analysis %s has no result", ErrInvalidInput, analysis.ID)
	}

	cols, err := jsonColumns(analysis.Result)
	if err != nil {
		return fmt.Errorf("failed to encode income analysis %s: %w", analysis.ID, err)
	}

	err = r.exec(ctx, `
		INSERT INTO income_analyses (
			id, tenant_id, applicant_id, stability_score, recommendation, timestamp, result
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		analysis.ID, tenantID, analysis.ApplicantID,
		analysis.Result.StabilityScore, analysis.Result.Recommendation,
		analysis.Timestamp.UTC(), cols[0],
	)
	if err != nil {
		return fmt.Errorf("save income analysis %s: %w", analysis.ID, err)
	}
	return nil
}

// GetIncomeAnalysis loads one income analysis for tenantID.
func (r *SQLRepository) GetIncomeAnalysis(ctx context.Context, tenantID string, analysisID string) (*domain.IncomeAnalysis, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	var (
		a      domain.IncomeAnalysis
		result string
	)
	err := r.row(ctx, `
		SELECT id, tenant_id, applicant_id, timestamp, result
		FROM income_analyses
		WHERE tenant_id = ? AND id = ?`,
		tenantID, analysisID,
	).Scan(&a.ID, &a.TenantID, &a.ApplicantID, &a.Timestamp, &result)
	if err != nil {
		return nil, notFound(err)
	}

	if err := decodeColumn("result", result, &a.Result); err != nil {
		return nil, fmt.Errorf("income analysis %s: %w", a.ID, err)
	}
	return &a, nil
}

// SaveRuleConfig inserts a rule version, or replaces it when the same
// id and version already exist for the tenant.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, tenantID string, rule *domain.RuleConfig) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}

	cols, err := jsonColumns(rule.Bands)
	if err != nil {
		return fmt.Errorf("failed to encode bands of rule %s: %w", rule.ID, err)
	}
	enabled := 0
	if rule.Enabled {
		enabled = 1
	}
	now := time.Now().UTC()

	err = r.exec(ctx, `
		INSERT INTO policy_rules (
			id, tenant_id, name, description, version, expression, bands, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			bands = excluded.bands,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at`,
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Expression, cols[0], enabled, now, now,
	)
	if err != nil {
		return fmt.Errorf("save rule %s@%s: %w", rule.ID, rule.Version, err)
	}
	return nil
}

const ruleColumns = `id, tenant_id, name, description, version, expression, bands, enabled`

// GetRuleConfig returns the highest enabled version of a rule.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, tenantID string, ruleID string) (*domain.RuleConfig, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	cfg, err := scanRule(r.row(ctx, `
		SELECT `+ruleColumns+`
		FROM policy_rules
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1`,
		tenantID, ruleID,
	))
	if err != nil {
		return nil, notFound(err)
	}
	return cfg, nil
}

// ListRuleConfigs returns every enabled rule version for the tenant, by name.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context, tenantID string) ([]*domain.RuleConfig, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, r.dialect.bind(`
		SELECT `+ruleColumns+`
		FROM policy_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name, id`),
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		cfg, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(row scanner) (*domain.RuleConfig, error) {
	var (
		cfg         domain.RuleConfig
		description sql.NullString
		bands       string
		enabled     int
	)
	if err := row.Scan(
		&cfg.ID, &cfg.TenantID, &cfg.Name, &description,
		&cfg.Version, &cfg.Expression, &bands, &enabled,
	); err != nil {
		return nil, err
	}

	cfg.Description = description.String
	cfg.Enabled = enabled == 1
	if err := decodeColumn("bands", bands, &cfg.Bands); err != nil {
		return nil, fmt.Errorf("rule %s: %w", cfg.ID, err)
	}
	return &cfg, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the connection pool.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}
