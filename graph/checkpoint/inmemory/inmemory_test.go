//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlabs/weft/graph"
)

func TestLoadLatestPicksHighestStep(t *testing.T) {
	ctx := context.Background()
	s := NewSaver()
	for step := 1; step <= 3; step++ {
		require.NoError(t, s.Save(ctx, &graph.Checkpoint{
			ThreadID:     "t1",
			CheckpointID: "cp",
			Step:         step,
			Timestamp:    time.Now().UTC(),
			State:        graph.State{"counter": step},
		}))
	}

	cp, err := s.LoadLatest(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, 3, cp.Step)
	assert.Equal(t, 3, cp.State["counter"])
	assert.Len(t, s.List("t1"), 3)
}

func TestLoadLatestUnknownThread(t *testing.T) {
	s := NewSaver()
	cp, err := s.LoadLatest(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestSaveClonesState(t *testing.T) {
	ctx := context.Background()
	s := NewSaver()
	state := graph.State{"key": "original"}
	require.NoError(t, s.Save(ctx, &graph.Checkpoint{ThreadID: "t", Step: 1, State: state}))

	// Mutating the caller's state must not alter the stored snapshot.
	state["key"] = "mutated"
	cp, err := s.LoadLatest(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, "original", cp.State["key"])
}
