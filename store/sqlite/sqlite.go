//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

// Package sqlite persists user messages in a SQLite database over
// database/sql. The caller supplies the *sql.DB and imports the driver,
// e.g. github.com/mattn/go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/weftlabs/weft/store"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS user_messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	thread_id  TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_user_messages_thread
	ON user_messages (thread_id, id);
`

// Store keeps user messages in a user_messages table.
type Store struct {
	db *sql.DB
}

// New creates the store and its table when missing.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("create user_messages table: %w", err)
	}
	return &Store{db: db}, nil
}

// AppendUserMessage implements store.Store.
func (s *Store) AppendUserMessage(ctx context.Context, threadID, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_messages (thread_id, content, created_at) VALUES (?, ?, ?)`,
		threadID, content, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert user message: %w", err)
	}
	return nil
}

// UserMessages implements store.Store.
func (s *Store) UserMessages(ctx context.Context, threadID string, before int64, limit int) (*store.Page, error) {
	if limit <= 0 {
		limit = store.DefaultPageSize
	}
	query := `SELECT id, content, created_at FROM user_messages
		WHERE thread_id = ?`
	args := []any{threadID}
	if before > 0 {
		query += ` AND id < ?`
		args = append(args, before)
	}
	// Fetch one extra row to learn whether older messages remain.
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query user messages: %w", err)
	}
	defer rows.Close()

	page := &store.Page{Messages: []store.UserMessage{}}
	for rows.Next() {
		var (
			msg store.UserMessage
			ts  string
		)
		if err := rows.Scan(&msg.ID, &msg.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan user message: %w", err)
		}
		msg.ThreadID = threadID
		if msg.CreatedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse user message timestamp: %w", err)
		}
		page.Messages = append(page.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user messages: %w", err)
	}
	if len(page.Messages) > limit {
		page.HasMore = true
		page.Messages = page.Messages[:limit]
	}
	return page, nil
}
