package store

// schema is applied on open. Statements are idempotent so reopening an
// existing database is safe.
const schema = `
CREATE TABLE IF NOT EXISTS drafts (
	id TEXT PRIMARY KEY,
	client_id TEXT NOT NULL,
	platform TEXT NOT NULL,
	body TEXT NOT NULL,
	image_prompt TEXT NOT NULL DEFAULT '',
	hashtags TEXT,
	image_ref TEXT NOT NULL DEFAULT '',
	suggested_at INTEGER,
	custom_post_time INTEGER,
	quality_report TEXT,
	voice_score REAL NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'draft',
	publish_mode TEXT NOT NULL DEFAULT 'auto',
	edit_history TEXT,
	reject_tags TEXT,
	reject_guidance TEXT NOT NULL DEFAULT '',
	approved_at INTEGER,
	approved_by TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_drafts_status ON drafts(status);
CREATE INDEX IF NOT EXISTS idx_drafts_client ON drafts(client_id, status);

CREATE TABLE IF NOT EXISTS queue_entries (
	id TEXT PRIMARY KEY,
	draft_id TEXT NOT NULL REFERENCES drafts(id),
	client_id TEXT NOT NULL,
	platform TEXT NOT NULL,
	scheduled_at INTEGER NOT NULL,
	publish_mode TEXT NOT NULL DEFAULT 'auto',
	status TEXT NOT NULL DEFAULT 'queued',
	retry_count INTEGER NOT NULL DEFAULT 0,
	platform_post_id TEXT NOT NULL DEFAULT '',
	platform_post_url TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	image_ref TEXT NOT NULL DEFAULT '',
	published_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_queue_status ON queue_entries(status, scheduled_at);
CREATE INDEX IF NOT EXISTS idx_queue_client_platform ON queue_entries(client_id, platform, scheduled_at);

CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	client_id TEXT NOT NULL,
	draft_id TEXT NOT NULL DEFAULT '',
	actor TEXT NOT NULL,
	action TEXT NOT NULL,
	before_snapshot TEXT,
	after_snapshot TEXT,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_draft ON audit_log(draft_id, id);

CREATE TABLE IF NOT EXISTS recovery_log (
	id TEXT PRIMARY KEY,
	draft_id TEXT NOT NULL,
	client_id TEXT NOT NULL,
	platform TEXT NOT NULL,
	platform_post_id TEXT NOT NULL DEFAULT '',
	urgency TEXT NOT NULL,
	reason TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	actor TEXT NOT NULL,
	completed_at INTEGER,
	replacement_draft_id TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS global_publish_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	paused INTEGER NOT NULL DEFAULT 0,
	paused_by TEXT NOT NULL DEFAULT '',
	paused_at INTEGER
);

INSERT OR IGNORE INTO global_publish_state (id, paused) VALUES (1, 0);

CREATE TABLE IF NOT EXISTS notification_preferences (
	channel TEXT PRIMARY KEY,
	enabled INTEGER NOT NULL DEFAULT 1,
	events TEXT
);

CREATE TABLE IF NOT EXISTS clients (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	posts_per_week INTEGER NOT NULL DEFAULT 3,
	min_hours_between_posts INTEGER NOT NULL DEFAULT 24,
	preferred_days TEXT,
	facebook_id TEXT NOT NULL DEFAULT '',
	instagram_id TEXT NOT NULL DEFAULT '',
	guardrails TEXT
);
`
