package repository

// Schema definitions for the Harrier database.
// Compatible with both SQLite and PostgreSQL. Nested case structures
// (applicant, disclosures, test results) are stored as JSON text;
// queryable fields get their own columns.

const schemaCases = `
CREATE TABLE IF NOT EXISTS cases (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    product_type TEXT NOT NULL,
    sum_assured REAL NOT NULL,
    status TEXT NOT NULL,
    applicant TEXT NOT NULL,
    medical_disclosures TEXT,
    medications TEXT,
    risk_factors TEXT,
    test_results TEXT,
    decisions TEXT,
    metadata TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cases_tenant ON cases(tenant_id);
CREATE INDEX IF NOT EXISTS idx_cases_status ON cases(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_cases_created ON cases(tenant_id, created_at);
`

const schemaRules = `
CREATE TABLE IF NOT EXISTS rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    category TEXT NOT NULL,
    conditions TEXT NOT NULL,
    actions TEXT,
    priority INTEGER NOT NULL DEFAULT 0,
    always_include INTEGER NOT NULL DEFAULT 0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_rules_tenant ON rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_rules_enabled ON rules(tenant_id, enabled);
`

const schemaOverrides = `
CREATE TABLE IF NOT EXISTS overrides (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    case_id TEXT NOT NULL,
    override_type TEXT NOT NULL,
    direction TEXT NOT NULL,
    system_recommendation TEXT NOT NULL,
    system_details TEXT,
    system_confidence REAL,
    underwriter_choice TEXT NOT NULL,
    choice_details TEXT,
    reasoning TEXT NOT NULL,
    reasoning_tags TEXT,
    context_snapshot TEXT NOT NULL,
    underwriter_id TEXT NOT NULL,
    underwriter_name TEXT,
    underwriter_experience_years INTEGER NOT NULL DEFAULT 0,
    validated INTEGER NOT NULL DEFAULT 0,
    validated_by TEXT,
    validation_notes TEXT,
    flagged_for_review INTEGER NOT NULL DEFAULT 0,
    flag_reason TEXT,
    include_in_training INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_overrides_tenant ON overrides(tenant_id);
CREATE INDEX IF NOT EXISTS idx_overrides_case ON overrides(tenant_id, case_id);
CREATE INDEX IF NOT EXISTS idx_overrides_type ON overrides(tenant_id, override_type);
CREATE INDEX IF NOT EXISTS idx_overrides_pending ON overrides(tenant_id, validated, flagged_for_review);
CREATE INDEX IF NOT EXISTS idx_overrides_created ON overrides(tenant_id, created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaCases,
		schemaRules,
		schemaOverrides,
	}
}
