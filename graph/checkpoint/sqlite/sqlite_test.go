//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlabs/weft/graph"
	"github.com/weftlabs/weft/model"
)

func openSaver(t *testing.T) *Saver {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s, err := NewSaver(db)
	require.NoError(t, err)
	return s
}

func TestSaveAndLoadLatest(t *testing.T) {
	ctx := context.Background()
	s := openSaver(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for step := 1; step <= 3; step++ {
		require.NoError(t, s.Save(ctx, &graph.Checkpoint{
			ThreadID:     "t1",
			CheckpointID: fmt.Sprintf("cp-%d", step),
			Step:         step,
			Timestamp:    base.Add(time.Duration(step) * time.Second),
			State:        graph.State{"counter": float64(step)},
		}))
	}

	cp, err := s.LoadLatest(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, "cp-3", cp.CheckpointID)
	assert.Equal(t, 3, cp.Step)
	assert.Equal(t, base.Add(3*time.Second), cp.Timestamp)
	// JSON round-trips numbers as float64.
	assert.Equal(t, float64(3), cp.State["counter"])
}

func TestLoadLatestUnknownThread(t *testing.T) {
	s := openSaver(t)
	cp, err := s.LoadLatest(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestMessagesSurviveRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openSaver(t)
	msgs := []model.Message{
		model.NewUserMessage("hello"),
		model.NewAssistantMessage("hi there"),
	}
	require.NoError(t, s.Save(ctx, &graph.Checkpoint{
		ThreadID:     "t1",
		CheckpointID: "cp-1",
		Step:         1,
		Timestamp:    time.Now().UTC(),
		State:        graph.State{graph.StateKeyMessages: msgs},
	}))

	cp, err := s.LoadLatest(ctx, "t1")
	require.NoError(t, err)
	restored, ok := cp.State[graph.StateKeyMessages].([]model.Message)
	require.True(t, ok, "messages decode back into typed form")
	assert.Equal(t, msgs, restored)
}
