// Package schema defines the database schema.
//
// Tables are created idempotently at startup; there are no versioned migrations.
package schema

// TableDefinitions contains all the SQL statements to create the database tables
// Don't put REFERENCES and don't put CHECK constraints in the CREATE TABLE statements
var TableDefinitions = []string{
	`CREATE TABLE IF NOT EXISTS contacts (
		id VARCHAR(64) PRIMARY KEY,
		email VARCHAR(255) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		engagement_score INTEGER NOT NULL DEFAULT 0,
		attributes JSONB NOT NULL DEFAULT '{}'::jsonb,
		last_sent_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS campaigns (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		subject TEXT NOT NULL,
		from_email VARCHAR(255) NOT NULL,
		reply_to VARCHAR(255),
		html_content TEXT NOT NULL,
		text_content TEXT,
		criteria JSONB NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		target_duration_hours DOUBLE PRECISION,
		metrics JSONB,
		total_contacts INTEGER NOT NULL DEFAULT 0,
		enqueued_contacts INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS send_queue (
		id VARCHAR(64) PRIMARY KEY,
		campaign_id VARCHAR(64) NOT NULL,
		contact_ids TEXT[] NOT NULL,
		subject TEXT NOT NULL,
		from_email VARCHAR(255) NOT NULL,
		reply_to VARCHAR(255),
		html_content TEXT NOT NULL,
		text_content TEXT,
		run_after TIMESTAMPTZ NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		stats JSONB,
		last_error TEXT,
		lease_owner VARCHAR(64),
		lease_expires_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS domain_limits (
		domain VARCHAR(255) PRIMARY KEY,
		hourly_count INTEGER NOT NULL DEFAULT 0,
		hourly_window_start TIMESTAMPTZ NOT NULL,
		daily_count INTEGER NOT NULL DEFAULT 0,
		daily_window_start TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

// IndexDefinitions back the claim, reaper and campaign lookups
var IndexDefinitions = []string{
	`CREATE INDEX IF NOT EXISTS idx_send_queue_due ON send_queue (run_after) WHERE status = 'pending'`,
	`CREATE INDEX IF NOT EXISTS idx_send_queue_lease ON send_queue (lease_expires_at) WHERE status = 'processing'`,
	`CREATE INDEX IF NOT EXISTS idx_send_queue_campaign ON send_queue (campaign_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_send_queue_contact_ids ON send_queue USING GIN (contact_ids)`,
	`CREATE INDEX IF NOT EXISTS idx_contacts_status ON contacts (status)`,
	`CREATE INDEX IF NOT EXISTS idx_campaigns_active ON campaigns (is_active)`,
}

// TableNames returns a list of all table names in creation order
var TableNames = []string{
	"contacts",
	"campaigns",
	"send_queue",
	"domain_limits",
}
