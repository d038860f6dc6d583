// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/underwrite-labs/harrier/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

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

	// Configure connection pool
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

	// Run migrations
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

// SaveCase stores or updates a case with tenant isolation.
func (r *SQLRepository) SaveCase(ctx context.Context, tenantID string, c *domain.Case) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	applicant, _ := json.Marshal(c.Applicant)
	disclosures, _ := json.Marshal(c.MedicalDisclosures)
	medications, _ := json.Marshal(c.Medications)
	riskFactors, _ := json.Marshal(c.RiskFactors)
	testResults, _ := json.Marshal(c.TestResults)
	decisions, _ := json.Marshal(c.Decisions)
	metadata, _ := json.Marshal(c.Metadata)

	query := `
		INSERT INTO cases (
			id, tenant_id, product_type, sum_assured, status, applicant,
			medical_disclosures, medications, risk_factors, test_results,
			decisions, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			product_type = excluded.product_type,
			sum_assured = excluded.sum_assured,
			status = excluded.status,
			applicant = excluded.applicant,
			medical_disclosures = excluded.medical_disclosures,
			medications = excluded.medications,
			risk_factors = excluded.risk_factors,
			test_results = excluded.test_results,
			decisions = excluded.decisions,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		c.ID, tenantID, c.ProductType, c.SumAssured, c.Status,
		string(applicant), string(disclosures), string(medications),
		string(riskFactors), string(testResults), string(decisions),
		string(metadata), c.CreatedAt, c.UpdatedAt,
	)
	return err
}

// GetCase retrieves a case by ID with tenant isolation.
func (r *SQLRepository) GetCase(ctx context.Context, tenantID string, caseID string) (*domain.Case, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, product_type, sum_assured, status, applicant,
		       medical_disclosures, medications, risk_factors, test_results,
		       decisions, metadata, created_at, updated_at
		FROM cases
		WHERE tenant_id = ? AND id = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, caseID)
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// ListRecentCases retrieves the most recently created cases for a tenant.
// Used as the similarity candidate pool, so the limit is a hard cap.
func (r *SQLRepository) ListRecentCases(ctx context.Context, tenantID string, limit int) ([]*domain.Case, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, tenant_id, product_type, sum_assured, status, applicant,
		       medical_disclosures, medications, risk_factors, test_results,
		       decisions, metadata, created_at, updated_at
		FROM cases
		WHERE tenant_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []*domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (*domain.Case, error) {
	var c domain.Case
	var applicant, disclosures, medications, riskFactors string
	var testResults, decisions, metadata string

	err := row.Scan(
		&c.ID, &c.TenantID, &c.ProductType, &c.SumAssured, &c.Status,
		&applicant, &disclosures, &medications, &riskFactors,
		&testResults, &decisions, &metadata, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(applicant), &c.Applicant)
	json.Unmarshal([]byte(disclosures), &c.MedicalDisclosures)
	json.Unmarshal([]byte(medications), &c.Medications)
	json.Unmarshal([]byte(riskFactors), &c.RiskFactors)
	json.Unmarshal([]byte(testResults), &c.TestResults)
	json.Unmarshal([]byte(decisions), &c.Decisions)
	json.Unmarshal([]byte(metadata), &c.Metadata)

	return &c, nil
}

// SaveRule stores a rule configuration with tenant isolation.
func (r *SQLRepository) SaveRule(ctx context.Context, tenantID string, rule *domain.Rule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	conditions, _ := json.Marshal(rule.Conditions)
	actions, _ := json.Marshal(rule.Actions)

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}
	alwaysInclude := 0
	if rule.AlwaysInclude {
		alwaysInclude = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO rules (
			id, tenant_id, name, description, category, conditions, actions,
			priority, always_include, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			category = excluded.category,
			conditions = excluded.conditions,
			actions = excluded.actions,
			priority = excluded.priority,
			always_include = excluded.always_include,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description, rule.Category,
		string(conditions), string(actions),
		rule.Priority, alwaysInclude, enabled,
		now, now,
	)
	return err
}

// GetRule retrieves a rule configuration with tenant isolation.
func (r *SQLRepository) GetRule(ctx context.Context, tenantID string, ruleID string) (*domain.Rule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, category, conditions,
		       actions, priority, always_include, enabled
		FROM rules
		WHERE tenant_id = ? AND id = ?
	`

	rule, err := scanRule(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

// ListRules retrieves all rule configurations for a tenant, highest
// priority first.
func (r *SQLRepository) ListRules(ctx context.Context, tenantID string) ([]*domain.Rule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, category, conditions,
		       actions, priority, always_include, enabled
		FROM rules
		WHERE tenant_id = ?
		ORDER BY priority DESC, created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, rule)
	}
	return configs, rows.Err()
}

func scanRule(row rowScanner) (*domain.Rule, error) {
	var rule domain.Rule
	var conditions, actions string
	var alwaysInclude, enabled int

	err := row.Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &rule.Description, &rule.Category,
		&conditions, &actions, &rule.Priority, &alwaysInclude, &enabled,
	)
	if err != nil {
		return nil, err
	}

	rule.AlwaysInclude = alwaysInclude == 1
	rule.Enabled = enabled == 1
	if err := json.Unmarshal([]byte(conditions), &rule.Conditions); err != nil {
		return nil, fmt.Errorf("failed to parse conditions for rule %s: %w", rule.ID, err)
	}
	json.Unmarshal([]byte(actions), &rule.Actions)

	return &rule, nil
}

// SaveOverride stores an override record with tenant isolation.
// Overrides are write-once: updates go through UpdateOverride, which
// only touches the validation lifecycle columns.
func (r *SQLRepository) SaveOverride(ctx context.Context, tenantID string, o *domain.Override) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	systemDetails, _ := json.Marshal(o.SystemDetails)
	choiceDetails, _ := json.Marshal(o.ChoiceDetails)
	tags, _ := json.Marshal(o.ReasoningTags)
	snapshot, _ := json.Marshal(o.ContextSnapshot)

	query := `
		INSERT INTO overrides (
			id, tenant_id, case_id, override_type, direction,
			system_recommendation, system_details, system_confidence,
			underwriter_choice, choice_details, reasoning, reasoning_tags,
			context_snapshot, underwriter_id, underwriter_name,
			underwriter_experience_years, validated, validated_by,
			validation_notes, flagged_for_review, flag_reason,
			include_in_training, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		o.ID, tenantID, o.CaseID, o.OverrideType, o.Direction,
		o.SystemRecommendation, string(systemDetails), o.SystemConfidence,
		o.UnderwriterChoice, string(choiceDetails), o.Reasoning, string(tags),
		string(snapshot), o.UnderwriterID, o.UnderwriterName,
		o.UnderwriterExperienceYears, boolInt(o.Validated), o.ValidatedBy,
		o.ValidationNotes, boolInt(o.FlaggedForReview), o.FlagReason,
		boolInt(o.IncludeInTraining), o.CreatedAt,
	)
	return err
}

// GetOverride retrieves an override by ID with tenant isolation.
func (r *SQLRepository) GetOverride(ctx context.Context, tenantID string, overrideID string) (*domain.Override, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := overrideSelect + ` WHERE tenant_id = ? AND id = ?`

	o, err := scanOverride(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, overrideID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

// UpdateOverride persists validation lifecycle changes. The recorded
// decision, snapshot, and confidence columns are deliberately not
// updatable - they are write-once ground truth for learning.
func (r *SQLRepository) UpdateOverride(ctx context.Context, tenantID string, o *domain.Override) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE overrides
		SET validated = ?, validated_by = ?, validation_notes = ?,
		    flagged_for_review = ?, flag_reason = ?, include_in_training = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		boolInt(o.Validated), o.ValidatedBy, o.ValidationNotes,
		boolInt(o.FlaggedForReview), o.FlagReason, boolInt(o.IncludeInTraining),
		tenantID, o.ID,
	)
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

// ListOverridesByCase retrieves all overrides applied on a case.
func (r *SQLRepository) ListOverridesByCase(ctx context.Context, tenantID string, caseID string) ([]*domain.Override, error) {
	query := overrideSelect + ` WHERE tenant_id = ? AND case_id = ? ORDER BY created_at ASC`
	return r.listOverrides(ctx, tenantID, query, tenantID, caseID)
}

// ListOverridesByType retrieves all overrides of one type. Used by the
// pattern miner.
func (r *SQLRepository) ListOverridesByType(ctx context.Context, tenantID string, overrideType string) ([]*domain.Override, error) {
	query := overrideSelect + ` WHERE tenant_id = ? AND override_type = ? ORDER BY created_at ASC`
	return r.listOverrides(ctx, tenantID, query, tenantID, overrideType)
}

// ListOverrides retrieves the most recent overrides for a tenant.
func (r *SQLRepository) ListOverrides(ctx context.Context, tenantID string, limit int) ([]*domain.Override, error) {
	if limit <= 0 {
		limit = 500
	}
	query := overrideSelect + ` WHERE tenant_id = ? ORDER BY created_at DESC LIMIT ?`
	return r.listOverrides(ctx, tenantID, query, tenantID, limit)
}

// ListOverridesPendingValidation retrieves overrides that are neither
// validated nor flagged for review.
func (r *SQLRepository) ListOverridesPendingValidation(ctx context.Context, tenantID string) ([]*domain.Override, error) {
	query := overrideSelect + ` WHERE tenant_id = ? AND validated = 0 AND flagged_for_review = 0 ORDER BY created_at ASC`
	return r.listOverrides(ctx, tenantID, query, tenantID)
}

// ListOverridesForTraining retrieves training-included overrides of one
// type since a cutoff. Consumed by the external ML training pipeline.
func (r *SQLRepository) ListOverridesForTraining(ctx context.Context, tenantID string, overrideType string, since time.Time) ([]*domain.Override, error) {
	query := overrideSelect + `
		WHERE tenant_id = ? AND override_type = ? AND include_in_training = 1 AND created_at >= ?
		ORDER BY created_at ASC`
	return r.listOverrides(ctx, tenantID, query, tenantID, overrideType, since)
}

const overrideSelect = `
	SELECT id, tenant_id, case_id, override_type, direction,
	       system_recommendation, system_details, system_confidence,
	       underwriter_choice, choice_details, reasoning, reasoning_tags,
	       context_snapshot, underwriter_id, underwriter_name,
	       underwriter_experience_years, validated, validated_by,
	       validation_notes, flagged_for_review, flag_reason,
	       include_in_training, created_at
	FROM overrides`

func (r *SQLRepository) listOverrides(ctx context.Context, tenantID string, query string, args ...any) ([]*domain.Override, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []*domain.Override
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

func scanOverride(row rowScanner) (*domain.Override, error) {
	var o domain.Override
	var systemDetails, choiceDetails, tags, snapshot string
	var validated, flagged, training int
	var confidence sql.NullFloat64
	var validatedBy, validationNotes, flagReason, underwriterName sql.NullString

	err := row.Scan(
		&o.ID, &o.TenantID, &o.CaseID, &o.OverrideType, &o.Direction,
		&o.SystemRecommendation, &systemDetails, &confidence,
		&o.UnderwriterChoice, &choiceDetails, &o.Reasoning, &tags,
		&snapshot, &o.UnderwriterID, &underwriterName,
		&o.UnderwriterExperienceYears, &validated, &validatedBy,
		&validationNotes, &flagged, &flagReason,
		&training, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if confidence.Valid {
		v := confidence.Float64
		o.SystemConfidence = &v
	}
	o.UnderwriterName = underwriterName.String
	o.Validated = validated == 1
	o.ValidatedBy = validatedBy.String
	o.ValidationNotes = validationNotes.String
	o.FlaggedForReview = flagged == 1
	o.FlagReason = flagReason.String
	o.IncludeInTraining = training == 1

	json.Unmarshal([]byte(systemDetails), &o.SystemDetails)
	json.Unmarshal([]byte(choiceDetails), &o.ChoiceDetails)
	json.Unmarshal([]byte(tags), &o.ReasoningTags)
	if err := json.Unmarshal([]byte(snapshot), &o.ContextSnapshot); err != nil {
		return nil, fmt.Errorf("failed to parse context snapshot for override %s: %w", o.ID, err)
	}

	return &o, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
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
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
