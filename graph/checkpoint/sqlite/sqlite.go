//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

// Package sqlite persists checkpoints in a SQLite database over database/sql.
// The caller supplies the *sql.DB and imports the driver, e.g.
// github.com/mattn/go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/weftlabs/weft/graph"
	"github.com/weftlabs/weft/model"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS checkpoints (
	thread_id     TEXT    NOT NULL,
	checkpoint_id TEXT    NOT NULL,
	step          INTEGER NOT NULL,
	timestamp     TEXT    NOT NULL,
	checkpoint_ns TEXT    NOT NULL DEFAULT '',
	state         TEXT    NOT NULL,
	PRIMARY KEY (thread_id, checkpoint_id)
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_thread_step
	ON checkpoints (thread_id, step);
`

// Saver stores checkpoints in a checkpoints table.
type Saver struct {
	db *sql.DB
}

// NewSaver creates the saver and its table when missing.
func NewSaver(db *sql.DB) (*Saver, error) {
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("create checkpoints table: %w", err)
	}
	return &Saver{db: db}, nil
}

// Save implements graph.CheckpointSaver.
func (s *Saver) Save(ctx context.Context, cp *graph.Checkpoint) error {
	state, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("marshal checkpoint state: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints
			(thread_id, checkpoint_id, step, timestamp, checkpoint_ns, state)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		cp.ThreadID, cp.CheckpointID, cp.Step,
		cp.Timestamp.UTC().Format(time.RFC3339Nano), cp.CheckpointNS, string(state))
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

// LoadLatest implements graph.CheckpointSaver.
func (s *Saver) LoadLatest(ctx context.Context, threadID string) (*graph.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT checkpoint_id, step, timestamp, checkpoint_ns, state
		 FROM checkpoints WHERE thread_id = ?
		 ORDER BY step DESC LIMIT 1`, threadID)

	var (
		cp      graph.Checkpoint
		ts      string
		rawJSON string
	)
	err := row.Scan(&cp.CheckpointID, &cp.Step, &ts, &cp.CheckpointNS, &rawJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	cp.ThreadID = threadID
	if cp.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
		return nil, fmt.Errorf("parse checkpoint timestamp: %w", err)
	}
	if cp.State, err = decodeState([]byte(rawJSON)); err != nil {
		return nil, err
	}
	return &cp, nil
}

// decodeState restores a state snapshot from JSON. The message history is
// decoded back into typed messages so append reducers keep working after a
// resume; everything else stays generic.
func decodeState(raw []byte) (graph.State, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode checkpoint state: %w", err)
	}
	state := make(graph.State, len(fields))
	for key, value := range fields {
		if key == graph.StateKeyMessages {
			var msgs []model.Message
			if err := json.Unmarshal(value, &msgs); err != nil {
				return nil, fmt.Errorf("decode checkpoint messages: %w", err)
			}
			state[key] = msgs
			continue
		}
		var generic any
		if err := json.Unmarshal(value, &generic); err != nil {
			return nil, fmt.Errorf("decode checkpoint field %s: %w", key, err)
		}
		state[key] = generic
	}
	return state, nil
}
