package repositories

import (
	"context"
	"database/sql"
	"fmt"
)

// Tables owned by this service. users is managed by the account service and
// only read here, so it is created only when missing (local development).
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		notifications_enabled BOOLEAN NOT NULL DEFAULT true,
		daily_notification_time TEXT NOT NULL DEFAULT '09:00',
		time_zone TEXT NOT NULL DEFAULT 'UTC',
		telegram_chat_id BIGINT
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL CHECK (title <> ''),
		description TEXT NOT NULL DEFAULT '',
		priority TEXT NOT NULL CHECK (priority IN ('low','medium','high')),
		status TEXT NOT NULL CHECK (status IN ('pending','in_progress','completed','over_due')),
		due_date TIMESTAMPTZ,
		deadline_notified BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS tasks_user_id_idx ON tasks (user_id)`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		chat_id TEXT NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('user','assistant')),
		content TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS messages_chat_id_idx ON messages (chat_id, created_at, seq)`,
	`CREATE TABLE IF NOT EXISTS telegram_links (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		code TEXT NOT NULL UNIQUE,
		expires_at TIMESTAMPTZ NOT NULL,
		used BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
