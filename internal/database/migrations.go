package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS digest_items (
    digest_item_id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    date TEXT NOT NULL,
    team TEXT NOT NULL,
    item_type TEXT NOT NULL,
    title TEXT NOT NULL,
    summary TEXT,
    severity TEXT DEFAULT 'medium',
    owners TEXT DEFAULT '[]',
    confidence REAL DEFAULT 1.0,
    source_channel TEXT DEFAULT '',
    source_ref TEXT DEFAULT '',
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS feedback_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    digest_item_id TEXT NOT NULL REFERENCES digest_items(digest_item_id),
    user_id TEXT NOT NULL,
    team TEXT DEFAULT '',
    feedback_type TEXT NOT NULL,
    comment TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS prompt_directives (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    team TEXT NOT NULL,
    directive TEXT NOT NULL,
    created_at TEXT DEFAULT (datetime('now')),
    last_confirmed_at TEXT DEFAULT (datetime('now')),
    confirmation_count INTEGER DEFAULT 1,
    active INTEGER DEFAULT 1,
    UNIQUE(team, directive)
);

CREATE TABLE IF NOT EXISTS user_personas (
    user_id TEXT PRIMARY KEY,
    role TEXT DEFAULT 'ic',
    team TEXT DEFAULT 'general',
    custom_topics TEXT DEFAULT '[]',
    custom_boosts TEXT DEFAULT '{}',
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_items_team ON digest_items(team);
CREATE INDEX IF NOT EXISTS idx_items_run ON digest_items(run_id);
CREATE INDEX IF NOT EXISTS idx_items_date ON digest_items(date);
CREATE INDEX IF NOT EXISTS idx_items_source ON digest_items(source_channel, source_ref);
CREATE INDEX IF NOT EXISTS idx_feedback_item ON feedback_events(digest_item_id);
CREATE INDEX IF NOT EXISTS idx_feedback_user ON feedback_events(user_id);
CREATE INDEX IF NOT EXISTS idx_feedback_created ON feedback_events(created_at);
CREATE INDEX IF NOT EXISTS idx_directives_team ON prompt_directives(team, active);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
