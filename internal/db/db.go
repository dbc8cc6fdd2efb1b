package db

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect initializes the database connection and runs migrations. The pool
// size should match the persistence gateway's concurrency cap so that bursts
// never open more connections than the pool sustains.
func Connect(dsn string, maxConns int) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS instances (
            id SERIAL PRIMARY KEY,
            name TEXT NOT NULL UNIQUE,
            connection_state TEXT NOT NULL DEFAULT 'created',
            last_connected_at TIMESTAMPTZ,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS contacts (
            id SERIAL PRIMARY KEY,
            instance TEXT NOT NULL,
            jid TEXT NOT NULL,
            name TEXT NOT NULL DEFAULT '',
            profile_picture_url TEXT NOT NULL DEFAULT '',
            is_business BOOLEAN NOT NULL DEFAULT FALSE,
            is_blocked BOOLEAN NOT NULL DEFAULT FALSE,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE(instance, jid)
        );`,
		`CREATE TABLE IF NOT EXISTS chats (
            id SERIAL PRIMARY KEY,
            instance TEXT NOT NULL,
            jid TEXT NOT NULL,
            type TEXT NOT NULL DEFAULT 'individual',
            subject TEXT NOT NULL DEFAULT '',
            unread_count INT NOT NULL DEFAULT 0,
            archived BOOLEAN NOT NULL DEFAULT FALSE,
            pinned BOOLEAN NOT NULL DEFAULT FALSE,
            muted BOOLEAN NOT NULL DEFAULT FALSE,
            last_message_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE(instance, jid)
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            id SERIAL PRIMARY KEY,
            instance TEXT NOT NULL,
            external_id TEXT NOT NULL,
            chat_jid TEXT NOT NULL,
            sender_jid TEXT NOT NULL DEFAULT '',
            direction TEXT NOT NULL DEFAULT 'inbound',
            type TEXT NOT NULL DEFAULT 'text',
            content TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'pending',
            timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE(instance, external_id)
        );`,
		`CREATE TABLE IF NOT EXISTS groups (
            id SERIAL PRIMARY KEY,
            instance TEXT NOT NULL,
            jid TEXT NOT NULL,
            subject TEXT NOT NULL DEFAULT '',
            owner_jid TEXT,
            description TEXT NOT NULL DEFAULT '',
            locked BOOLEAN NOT NULL DEFAULT FALSE,
            platform_created_at TIMESTAMPTZ,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE(instance, jid),
            FOREIGN KEY (instance, owner_jid) REFERENCES contacts(instance, jid)
        );`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	log.Println("database migrations applied")
	return nil
}
