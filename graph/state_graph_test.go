//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopNode(ctx context.Context, state State) (State, error) {
	return nil, nil
}

func TestCompileMinimalGraph(t *testing.T) {
	g, err := NewStateGraph(nil).
		AddNode("only", noopNode).
		SetEntryPoint("only").
		SetFinishPoint("only").
		Compile()
	require.NoError(t, err)
	assert.Equal(t, "only", g.EntryPoint())
	_, ok := g.Node("only")
	assert.True(t, ok)
}

func TestCompileRequiresEntryPoint(t *testing.T) {
	_, err := NewStateGraph(nil).
		AddNode("a", noopNode).
		SetFinishPoint("a").
		Compile()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry point not set")
}

func TestCompileRejectsUnknownEdgeTarget(t *testing.T) {
	_, err := NewStateGraph(nil).
		AddNode("a", noopNode).
		SetEntryPoint("a").
		AddEdge("a", "ghost").
		Compile()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "targets unknown node")
}

func TestCompileRejectsDuplicateNode(t *testing.T) {
	_, err := NewStateGraph(nil).
		AddNode("a", noopNode).
		AddNode("a", noopNode).
		SetEntryPoint("a").
		SetFinishPoint("a").
		Compile()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate node id a")
}

func TestCompileRejectsReservedNodeIDs(t *testing.T) {
	_, err := NewStateGraph(nil).
		AddNode(Start, noopNode).
		SetEntryPoint(Start).
		Compile()
	require.Error(t, err)
}

func TestCompileRejectsBothEdgeKindsOnOneNode(t *testing.T) {
	router := func(ctx context.Context, state State) (string, error) { return End, nil }
	_, err := NewStateGraph(nil).
		AddNode("a", noopNode).
		AddNode("b", noopNode).
		SetEntryPoint("a").
		AddEdge("a", "b").
		AddConditionalEdges("a", router, nil).
		SetFinishPoint("b").
		Compile()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both an unconditional and a conditional edge")
}

func TestCompileRejectsUnknownConditionalTarget(t *testing.T) {
	router := func(ctx context.Context, state State) (string, error) { return "x", nil }
	_, err := NewStateGraph(nil).
		AddNode("a", noopNode).
		SetEntryPoint("a").
		AddConditionalEdges("a", router, map[string]string{"x": "ghost"}).
		Compile()
	require.Error(t, err)
}

func TestCompileCollectsMultipleProblems(t *testing.T) {
	_, err := NewStateGraph(nil).
		AddNode("", noopNode).
		AddNode("a", nil).
		AddEdge("a", "ghost").
		Compile()
	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.GreaterOrEqual(t, len(buildErr.Problems), 3)
}

func TestAddEdgeFromStartSetsEntryPoint(t *testing.T) {
	g, err := NewStateGraph(nil).
		AddNode("a", noopNode).
		AddEdge(Start, "a").
		SetFinishPoint("a").
		Compile()
	require.NoError(t, err)
	assert.Equal(t, "a", g.EntryPoint())
}

func TestCyclesAreLegal(t *testing.T) {
	routed := false
	router := func(ctx context.Context, state State) (string, error) {
		if routed {
			return End, nil
		}
		routed = true
		return "a", nil
	}
	_, err := NewStateGraph(nil).
		AddNode("a", noopNode).
		AddNode("b", noopNode).
		SetEntryPoint("a").
		AddEdge("a", "b").
		AddConditionalEdges("b", router, nil).
		Compile()
	require.NoError(t, err)
}

func TestMustCompilePanicsOnInvalidGraph(t *testing.T) {
	assert.Panics(t, func() {
		NewStateGraph(nil).MustCompile()
	})
}
