package store

// schema is applied on every Open. It sticks to the column types both SQLite
// and Postgres accept: timestamps are Unix millis, decimals are text, JSON is
// text and booleans are 0/1 integers.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    doc_type TEXT NOT NULL,
    doc_number TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    amount TEXT NOT NULL DEFAULT '0',
    version BIGINT NOT NULL DEFAULT 1,
    qc_signed_off_by TEXT,
    qc_signed_off_at BIGINT,
    gate_pass_id TEXT,
    gate_pass_auto_created INTEGER NOT NULL DEFAULT 0,
    reservation_status TEXT NOT NULL DEFAULT 'none',
    created_by TEXT,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_type_status ON documents (doc_type, status)`,

	`CREATE TABLE IF NOT EXISTS approval_requests (
    id TEXT PRIMARY KEY,
    document_type TEXT NOT NULL,
    document_id TEXT NOT NULL,
    amount TEXT NOT NULL,
    level INTEGER NOT NULL,
    approver_role TEXT NOT NULL,
    sla_hours INTEGER NOT NULL,
    due_at BIGINT NOT NULL,
    status TEXT NOT NULL,
    submitted_by TEXT NOT NULL DEFAULT '',
    decided_by TEXT,
    decided_at BIGINT,
    comments TEXT,
    created_at BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_approval_requests_document ON approval_requests (document_type, document_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_approval_requests_pending ON approval_requests (document_type, document_id) WHERE status = 'pending'`,

	`CREATE TABLE IF NOT EXISTS stock_balances (
    item_id TEXT NOT NULL,
    warehouse_id TEXT NOT NULL,
    qty_on_hand TEXT NOT NULL DEFAULT '0',
    qty_reserved TEXT NOT NULL DEFAULT '0',
    unit_cost TEXT NOT NULL DEFAULT '0',
    version BIGINT NOT NULL DEFAULT 1,
    updated_at BIGINT NOT NULL,
    PRIMARY KEY (item_id, warehouse_id)
)`,

	`CREATE TABLE IF NOT EXISTS workflows (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    priority INTEGER NOT NULL DEFAULT 0,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS workflow_rules (
    id TEXT PRIMARY KEY,
    workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
    name TEXT NOT NULL DEFAULT '',
    trigger_event TEXT NOT NULL,
    conditions TEXT NOT NULL DEFAULT '{}',
    actions TEXT NOT NULL DEFAULT '[]',
    stop_on_match INTEGER NOT NULL DEFAULT 0,
    sort_order INTEGER NOT NULL DEFAULT 0,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_workflow_rules_workflow ON workflow_rules (workflow_id)`,

	`CREATE TABLE IF NOT EXISTS rule_execution_logs (
    id TEXT PRIMARY KEY,
    rule_id TEXT NOT NULL,
    workflow_id TEXT NOT NULL,
    event_id TEXT NOT NULL DEFAULT '',
    event_type TEXT NOT NULL,
    entity_type TEXT NOT NULL DEFAULT '',
    entity_id TEXT NOT NULL DEFAULT '',
    success INTEGER NOT NULL,
    results TEXT NOT NULL DEFAULT '[]',
    error_message TEXT,
    executed_at BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_rule_execution_logs_executed ON rule_execution_logs (executed_at)`,

	`CREATE TABLE IF NOT EXISTS employees (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    email TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at BIGINT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS notifications (
    id TEXT PRIMARY KEY,
    recipient_id TEXT NOT NULL,
    title TEXT NOT NULL,
    body TEXT NOT NULL DEFAULT '',
    entity_type TEXT NOT NULL DEFAULT '',
    entity_id TEXT NOT NULL DEFAULT '',
    is_read INTEGER NOT NULL DEFAULT 0,
    created_at BIGINT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    assignee_id TEXT,
    priority TEXT NOT NULL DEFAULT 'medium',
    status TEXT NOT NULL DEFAULT 'open',
    entity_type TEXT NOT NULL DEFAULT '',
    entity_id TEXT NOT NULL DEFAULT '',
    due_at BIGINT,
    created_at BIGINT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS email_outbox (
    id TEXT PRIMARY KEY,
    template_code TEXT NOT NULL,
    recipients TEXT NOT NULL,
    variables TEXT NOT NULL DEFAULT '{}',
    status TEXT NOT NULL DEFAULT 'queued',
    created_at BIGINT NOT NULL
)`,
}
