package database

import (
	"context"
	"fmt"
)

var migrations = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`,

	// Minimal identity mirror. Accounts are provisioned by the main
	// application; this service only reads display name and role so it
	// can tell users who is holding a lock or sitting in a session.
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		email VARCHAR(255) UNIQUE NOT NULL,
		name VARCHAR(255) NOT NULL,
		role VARCHAR(100) NOT NULL DEFAULT '',
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,

	// One row per locked document section. The primary key on
	// resource_id is the mutual-exclusion guarantee: acquire is an
	// insert-or-conditional-update against this table and can only
	// ever leave one unexpired holder behind.
	`CREATE TABLE IF NOT EXISTS section_locks (
		resource_id VARCHAR(512) PRIMARY KEY,
		holder_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		acquired_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMP WITH TIME ZONE NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS collab_sessions (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		code VARCHAR(12) NOT NULL,
		resource_id VARCHAR(512) NOT NULL,
		host_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		workspace_state JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		last_activity_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		expires_at TIMESTAMP WITH TIME ZONE NOT NULL
	)`,

	// Codes are only unique among active sessions; an ended session
	// frees its code for reuse.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_collab_sessions_active_code
		ON collab_sessions(code) WHERE is_active`,

	`CREATE TABLE IF NOT EXISTS session_participants (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		session_id UUID NOT NULL REFERENCES collab_sessions(id) ON DELETE CASCADE,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		display_name VARCHAR(255) NOT NULL,
		role VARCHAR(100) NOT NULL DEFAULT '',
		is_host BOOLEAN NOT NULL DEFAULT FALSE,
		status VARCHAR(20) NOT NULL DEFAULT 'active',
		joined_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		left_at TIMESTAMP WITH TIME ZONE,
		UNIQUE(session_id, user_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_section_locks_expires_at ON section_locks(expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_collab_sessions_expires_at ON collab_sessions(expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_session_participants_session_id ON session_participants(session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_session_participants_user_id ON session_participants(user_id)`,
}

func (db *DB) Migrate(ctx context.Context) error {
	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
