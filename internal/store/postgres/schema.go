package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// schema is applied statement by statement; every statement is idempotent.
var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`,
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		first_name VARCHAR(100),
		last_name VARCHAR(100),
		avatar TEXT,
		bio TEXT,
		username VARCHAR(100) NOT NULL UNIQUE,
		email VARCHAR(100) NOT NULL UNIQUE,
		password TEXT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT now(),
		is_verified BOOLEAN DEFAULT false
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		sender UUID REFERENCES users(id) ON DELETE CASCADE,
		recipient UUID REFERENCES users(id) ON DELETE CASCADE,
		reply UUID REFERENCES messages(id) ON DELETE CASCADE,
		message TEXT,
		image TEXT,
		read BOOLEAN NOT NULL DEFAULT false,
		type VARCHAR(10) CHECK (type IN ('video_call', 'call')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS messages_recipient_idx ON messages (recipient, read)`,
	`CREATE TABLE IF NOT EXISTS posts (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id UUID REFERENCES users(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		image TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS follow (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		follower_id UUID REFERENCES users(id) ON DELETE CASCADE,
		following_id UUID REFERENCES users(id) ON DELETE CASCADE,
		UNIQUE (follower_id, following_id)
	)`,
	`CREATE TABLE IF NOT EXISTS likes (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id UUID REFERENCES users(id) ON DELETE CASCADE,
		post_id UUID REFERENCES posts(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (user_id, post_id)
	)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id UUID REFERENCES users(id) ON DELETE CASCADE,
		post_id UUID REFERENCES posts(id) ON DELETE CASCADE,
		comment TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		sender_id UUID REFERENCES users(id) ON DELETE CASCADE,
		receiver_id UUID REFERENCES users(id) ON DELETE CASCADE,
		post_id UUID REFERENCES posts(id) ON DELETE CASCADE,
		comment_id UUID REFERENCES comments(id) ON DELETE CASCADE,
		type VARCHAR(10) CHECK (type IN ('like', 'comment', 'follow')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		is_seen BOOLEAN NOT NULL DEFAULT false,
		CHECK (sender_id <> receiver_id)
	)`,
}

// Migrate creates the tables that are missing.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	log.Info().Str("module", "store.postgres").Int("statements", len(schema)).Msg("schema ready")
	return nil
}
