// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// DefaultListLimit caps ListDecisions when the caller passes no limit.
const DefaultListLimit = 50

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveDecision appends a decision to the audit trail.
// Decisions are immutable; saving an existing ID is an error.
func (r *SQLRepository) SaveDecision(ctx context.Context, tenantID string, d *domain.Decision) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if d == nil || d.ID == "" {
		return fmt.Errorf("%w: decision id is required", ErrInvalidInput)
	}

	bundle, err := json.Marshal(d.Bundle)
	if err != nil {
		return fmt.Errorf("failed to encode bundle: %w", err)
	}
	conflicts, err := json.Marshal(d.Conflicts)
	if err != nil {
		return fmt.Errorf("failed to encode conflicts: %w", err)
	}
	resolution, err := json.Marshal(d.Resolution)
	if err != nil {
		return fmt.Errorf("failed to encode resolution: %w", err)
	}
	result, err := json.Marshal(d.Result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	metadata, _ := json.Marshal(d.Metadata)

	createdAt := d.Result.Timestamp.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO decisions (
			id, tenant_id, request_id, verdict, conviction, score,
			gated, gated_by, created_at, bundle, conflicts, resolution, result, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		d.ID, tenantID, d.RequestID,
		string(d.Result.Verdict), string(d.Result.Conviction), d.Score,
		boolToInt(d.Gated), d.GatedBy, createdAt,
		string(bundle), string(conflicts), string(resolution), string(result), string(metadata),
	)
	if err != nil {
		return fmt.Errorf("failed to save decision %s: %w", d.ID, err)
	}
	return nil
}

const decisionColumns = `
	id, tenant_id, request_id, score, gated, gated_by,
	bundle, conflicts, resolution, result, metadata
`

// GetDecision retrieves a decision by ID with tenant isolation.
func (r *SQLRepository) GetDecision(ctx context.Context, tenantID string, decisionID string) (*domain.Decision, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + decisionColumns + ` FROM decisions WHERE tenant_id = ? AND id = ?`

	d, err := scanDecision(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, decisionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListDecisions returns a tenant's decisions created at or after since, newest first.
func (r *SQLRepository) ListDecisions(ctx context.Context, tenantID string, since time.Time, limit int) ([]*domain.Decision, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT ` + decisionColumns + `
		FROM decisions
		WHERE tenant_id = ? AND created_at >= ?
		ORDER BY created_at DESC, id DESC
		LIMIT ` + strconv.Itoa(limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	return collect(rows, scanDecision)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDecision(row rowScanner) (*domain.Decision, error) {
	var d domain.Decision
	var requestID, gatedBy sql.NullString
	var metadata sql.NullString
	var bundle, conflicts, resolution, result string
	var gated int

	if err := row.Scan(
		&d.ID, &d.TenantID, &requestID, &d.Score, &gated, &gatedBy,
		&bundle, &conflicts, &resolution, &result, &metadata,
	); err != nil {
		return nil, err
	}

	d.RequestID = requestID.String
	d.Gated = gated == 1
	d.GatedBy = gatedBy.String

	err := decodeColumns(d.ID, []jsonColumn{
		{"bundle", bundle, &d.Bundle},
		{"conflicts", conflicts, &d.Conflicts},
		{"resolution", resolution, &d.Resolution},
		{"result", result, &d.Result},
		{"metadata", metadata.String, &d.Metadata},
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// SaveRuleConfig stores a custom resolution rule with tenant isolation.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, tenantID string, rule *domain.RuleConfig) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	weights, _ := json.Marshal(rule.Weights)
	now := time.Now().UTC()

	query := `
		INSERT INTO resolution_rules (
			id, tenant_id, name, description, version, priority, expression,
			weights, special_case, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			priority = excluded.priority,
			expression = excluded.expression,
			weights = excluded.weights,
			special_case = excluded.special_case,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description, rule.Version,
		rule.Priority, rule.Expression, string(weights), rule.SpecialCase,
		boolToInt(rule.Enabled), now, now,
	)
	return err
}

const ruleColumns = `
	id, tenant_id, name, description, version, priority,
	expression, weights, special_case, enabled
`

// GetRuleConfig retrieves an enabled rule with tenant isolation.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, tenantID string, ruleID string) (*domain.RuleConfig, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + ruleColumns + ` FROM resolution_rules WHERE tenant_id = ? AND id = ? AND enabled = 1`

	cfg, err := scanRuleConfig(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ListRuleConfigs retrieves all enabled rules for a tenant in table order.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context, tenantID string) ([]*domain.RuleConfig, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + ruleColumns + `
		FROM resolution_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY priority DESC, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return collect(rows, scanRuleConfig)
}

func scanRuleConfig(row rowScanner) (*domain.RuleConfig, error) {
	var cfg domain.RuleConfig
	var description, weights, specialCase sql.NullString
	var enabled int

	if err := row.Scan(
		&cfg.ID, &cfg.TenantID, &cfg.Name, &description, &cfg.Version, &cfg.Priority,
		&cfg.Expression, &weights, &specialCase, &enabled,
	); err != nil {
		return nil, err
	}

	cfg.Description = description.String
	cfg.SpecialCase = specialCase.String
	cfg.Enabled = enabled == 1
	if err := decodeColumns(cfg.ID, []jsonColumn{{"weights", weights.String, &cfg.Weights}}); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DeleteRuleConfig soft-deletes a rule by setting enabled = 0.
func (r *SQLRepository) DeleteRuleConfig(ctx context.Context, tenantID string, ruleID string) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}

	query := `
		UPDATE resolution_rules
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND enabled = 1
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = strconv.AppendInt(result, int64(n), 10)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func requireTenant(tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	return nil
}

// collect scans every row with scan and closes rows.
func collect[T any](rows *sql.Rows, scan func(rowScanner) (*T, error)) ([]*T, error) {
	defer rows.Close()

	var out []*T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// jsonColumn is a TEXT column holding a JSON document.
type jsonColumn struct {
	name string
	raw  string
	dest any
}

// decodeColumns unmarshals each non-empty column of record id.
func decodeColumns(id string, cols []jsonColumn) error {
	for _, c := range cols {
		if c.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(c.raw), c.dest); err != nil {
			return fmt.Errorf("failed to parse %s for %s: %w", c.name, id, err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
