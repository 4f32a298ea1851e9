//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

package dup

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlabs/weft/agent"
	"github.com/weftlabs/weft/event"
	"github.com/weftlabs/weft/graph"
	"github.com/weftlabs/weft/model/mock"
)

func collect(t *testing.T, run *agent.Run) ([]*event.Event, *agent.Result, error) {
	t.Helper()
	var events []*event.Event
	for e := range run.Events() {
		events = append(events, e)
	}
	result, err := run.Wait(context.Background())
	return events, result, err
}

func TestPipelineOrder(t *testing.T) {
	m := mock.New(
		mock.ReplyTurn("1. find the docs\n2. summarize them"),
		mock.ReplyTurn("Read the docs first, then write the summary."),
		mock.ReplyTurn("Here is the summary."),
	)
	a, err := New(WithModel(m))
	require.NoError(t, err)
	run, err := a.Run(context.Background(), "summarize the docs")
	require.NoError(t, err)
	events, result, err := collect(t, run)
	require.NoError(t, err)

	var enters []string
	for _, e := range events {
		if e.Type == event.TypeNodeEnter {
			payload, err := event.DecodePayload[event.NodeEnter](e)
			require.NoError(t, err)
			enters = append(enters, payload.ID)
		}
	}
	assert.Equal(t, []string{NodeUnderstand, NodePlan, agent.NodeThink}, enters)

	assert.Equal(t, "Here is the summary.", result.Reply)
	assert.Equal(t, []string{"find the docs", "summarize them"}, result.State[KeySubgoals])
	assert.Equal(t, "Read the docs first, then write the summary.", result.State[KeyPlan])
}

func TestUsageAccumulatesAcrossPipeline(t *testing.T) {
	m := mock.New(
		mock.ReplyTurn("1. a"),
		mock.ReplyTurn("do a"),
		mock.ReplyTurn("done"),
	)
	a, err := New(WithModel(m))
	require.NoError(t, err)
	run, err := a.Run(context.Background(), "do something")
	require.NoError(t, err)
	_, result, err := collect(t, run)
	require.NoError(t, err)
	assert.Greater(t, result.TotalUsage.TotalTokens, result.Usage.TotalTokens)
}

func TestUnderstandFailureAbortsRun(t *testing.T) {
	m := mock.New(mock.Turn{Err: errors.New("model offline")})
	a, err := New(WithModel(m))
	require.NoError(t, err)
	run, err := a.Run(context.Background(), "anything")
	require.NoError(t, err)
	_, _, err = collect(t, run)
	require.Error(t, err)
	var nodeErr *graph.NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, NodeUnderstand, nodeErr.NodeID)
}

func TestEmptyDecompositionFails(t *testing.T) {
	m := mock.New(mock.ReplyTurn("   "))
	a, err := New(WithModel(m))
	require.NoError(t, err)
	run, err := a.Run(context.Background(), "anything")
	require.NoError(t, err)
	_, _, err = collect(t, run)
	assert.Error(t, err)
}

func TestParseList(t *testing.T) {
	items := parseList("1. first\n2) second\n- third\n\n  * fourth  ")
	assert.Equal(t, []string{"first", "second", "third", "fourth"}, items)
}
