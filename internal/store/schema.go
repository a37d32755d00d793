package store

import (
	"context"
	"fmt"
)

// schemaStatements creates every table the gateway owns, plus the indexes
// needed for acceptable query time at 10^3 tools.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS providers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		command TEXT,
		args TEXT,
		env TEXT,
		quality REAL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tools (
		provider_id TEXT NOT NULL REFERENCES providers(id) ON DELETE CASCADE,
		name TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		input_schema TEXT NOT NULL,
		category TEXT,
		keywords TEXT,
		usage_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tools_provider ON tools(provider_id)`,
	`CREATE TABLE IF NOT EXISTS usage_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		tool_name TEXT NOT NULL,
		arguments TEXT NOT NULL,
		success INTEGER NOT NULL,
		elapsed_ms INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_tool_ts ON usage_log(tool_name, timestamp DESC)`,
	`CREATE TABLE IF NOT EXISTS memory (
		id TEXT PRIMARY KEY,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		category TEXT,
		tags TEXT,
		created_at DATETIME NOT NULL,
		last_access_at DATETIME NOT NULL,
		access_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_memory_category ON memory(category)`,
	`CREATE INDEX IF NOT EXISTS idx_memory_created ON memory(created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		status TEXT NOT NULL,
		parent_id TEXT REFERENCES tasks(id) ON DELETE CASCADE,
		tags TEXT,
		type TEXT,
		tdd_phase TEXT,
		test_path TEXT,
		agent_id TEXT,
		created_at DATETIME NOT NULL,
		completed_at DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
	`CREATE TABLE IF NOT EXISTS testruns (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		test_path TEXT NOT NULL,
		phase TEXT NOT NULL,
		passed INTEGER NOT NULL,
		coverage REAL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_testruns_path_ts ON testruns(test_path, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS guides (
		id TEXT PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		category TEXT,
		difficulty TEXT,
		body TEXT NOT NULL,
		excerpt TEXT,
		tags TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_guides_category ON guides(category)`,
	`CREATE TABLE IF NOT EXISTS guide_progress (
		guide_id TEXT NOT NULL REFERENCES guides(id) ON DELETE CASCADE,
		session_id TEXT NOT NULL,
		status TEXT NOT NULL,
		step INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (guide_id, session_id)
	)`,
	`CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		task TEXT NOT NULL,
		status TEXT NOT NULL,
		parent_task_id TEXT,
		result TEXT,
		spawned_at DATETIME NOT NULL,
		completed_at DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_agents_status ON agents(status)`,
	`CREATE TABLE IF NOT EXISTS context_snapshots (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		captured_at DATETIME NOT NULL,
		snapshot TEXT NOT NULL,
		metadata TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_session ON context_snapshots(session_id, captured_at DESC)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL
	)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}
	return nil
}
