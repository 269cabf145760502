package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaDecisions = `
CREATE TABLE IF NOT EXISTS decisions (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    request_id TEXT,
    verdict TEXT NOT NULL,
    conviction TEXT NOT NULL,
    score REAL NOT NULL,
    gated INTEGER NOT NULL DEFAULT 0,
    gated_by TEXT,
    created_at TIMESTAMP NOT NULL,
    bundle TEXT NOT NULL,
    conflicts TEXT NOT NULL,
    resolution TEXT NOT NULL,
    result TEXT NOT NULL,
    metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_decisions_tenant ON decisions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_decisions_created ON decisions(tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_decisions_verdict ON decisions(tenant_id, verdict);
`

const schemaResolutionRules = `
CREATE TABLE IF NOT EXISTS resolution_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    priority INTEGER NOT NULL,
    expression TEXT NOT NULL,
    weights TEXT,
    special_case TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_resolution_rules_tenant ON resolution_rules(tenant_id, enabled);
`

// AllSchemas returns all schema definitions in order.
func AllSchemas() []string {
	return []string{
		schemaDecisions,
		schemaResolutionRules,
	}
}
