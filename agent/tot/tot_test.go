//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

package tot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlabs/weft/agent"
	"github.com/weftlabs/weft/event"
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

func TestDepthFirstSearchToFinalAnswer(t *testing.T) {
	m := mock.New(
		mock.ReplyTurn("1. thought A\n2. thought B"),
		mock.ReplyTurn("0.9"), // score A
		mock.ReplyTurn("0.2"), // score B
		mock.ReplyTurn("1. thought C"),
		mock.ReplyTurn("0.8"), // score C
		mock.ReplyTurn("the answer"),
	)
	a, err := New(WithModel(m), WithWidth(2), WithMaxDepth(2))
	require.NoError(t, err)
	run, err := a.Run(context.Background(), "solve it")
	require.NoError(t, err)
	events, result, err := collect(t, run)
	require.NoError(t, err)

	assert.Equal(t, "the answer", result.Reply)
	assert.Equal(t, []string{"thought A", "thought C"}, result.State[KeyPath])

	// Every tot_evaluate pairs with the preceding tot_expand: equal lengths
	// and a chosen index into it.
	var lastExpand *event.TotExpand
	var evaluations int
	for _, e := range events {
		switch e.Type {
		case event.TypeTotExpand:
			payload, err := event.DecodePayload[event.TotExpand](e)
			require.NoError(t, err)
			lastExpand = &payload
		case event.TypeTotEvaluate:
			require.NotNil(t, lastExpand)
			payload, err := event.DecodePayload[event.TotEvaluate](e)
			require.NoError(t, err)
			assert.Len(t, payload.Scores, len(lastExpand.Candidates))
			assert.GreaterOrEqual(t, payload.Chosen, 0)
			assert.Less(t, payload.Chosen, len(lastExpand.Candidates))
			evaluations++
		case event.TypeTotBacktrack:
			t.Error("no backtracking expected")
		}
	}
	assert.Equal(t, 2, evaluations)
}

func TestTieBreaksTowardFirstGenerated(t *testing.T) {
	m := mock.New(
		mock.ReplyTurn("1. first\n2. second"),
		mock.ReplyTurn("0.7"),
		mock.ReplyTurn("0.7"),
		mock.ReplyTurn("done"),
	)
	a, err := New(WithModel(m), WithWidth(2), WithMaxDepth(1))
	require.NoError(t, err)
	run, err := a.Run(context.Background(), "pick")
	require.NoError(t, err)
	events, result, err := collect(t, run)
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, result.State[KeyPath])
	for _, e := range events {
		if e.Type == event.TypeTotEvaluate {
			payload, err := event.DecodePayload[event.TotEvaluate](e)
			require.NoError(t, err)
			assert.Equal(t, 0, payload.Chosen)
		}
	}
}

func TestBacktrackOnLowScores(t *testing.T) {
	m := mock.New(
		mock.ReplyTurn("1. A"),
		mock.ReplyTurn("0.9"),
		mock.ReplyTurn("1. B"),
		mock.ReplyTurn("0.1"), // whole depth below threshold
		mock.ReplyTurn("1. C"),
		mock.ReplyTurn("0.8"),
		mock.ReplyTurn("1. D"),
		mock.ReplyTurn("0.9"),
		mock.ReplyTurn("recovered answer"),
	)
	a, err := New(WithModel(m), WithWidth(1), WithMaxDepth(2))
	require.NoError(t, err)
	run, err := a.Run(context.Background(), "solve it")
	require.NoError(t, err)
	events, result, err := collect(t, run)
	require.NoError(t, err)

	var backtracks []event.TotBacktrack
	for _, e := range events {
		if e.Type == event.TypeTotBacktrack {
			payload, err := event.DecodePayload[event.TotBacktrack](e)
			require.NoError(t, err)
			backtracks = append(backtracks, payload)
		}
	}
	require.Len(t, backtracks, 1)
	assert.Equal(t, "all candidates below threshold", backtracks[0].Reason)
	assert.Equal(t, 0, backtracks[0].ToDepth)
	assert.Equal(t, []string{"C", "D"}, result.State[KeyPath])
	assert.Equal(t, "recovered answer", result.Reply)
}

func TestSearchExhaustedAfterBacktrackBudget(t *testing.T) {
	m := mock.New(
		mock.ReplyTurn("1. A"),
		mock.ReplyTurn("0.1"),
		mock.ReplyTurn("1. B"),
		mock.ReplyTurn("0.1"),
	)
	a, err := New(WithModel(m), WithWidth(1), WithMaxDepth(2), WithMaxBacktracks(1))
	require.NoError(t, err)
	run, err := a.Run(context.Background(), "impossible")
	require.NoError(t, err)
	_, _, err = collect(t, run)
	assert.ErrorIs(t, err, ErrSearchExhausted)
}

func TestConcurrentScoringCompletes(t *testing.T) {
	m := mock.New(
		mock.ReplyTurn("1. A\n2. B"),
		mock.ReplyTurn("0.9"),
		mock.ReplyTurn("0.9"),
		mock.ReplyTurn("done"),
	)
	a, err := New(WithModel(m), WithWidth(2), WithMaxDepth(1), WithScoreConcurrency(2))
	require.NoError(t, err)
	run, err := a.Run(context.Background(), "race")
	require.NoError(t, err)
	events, result, err := collect(t, run)
	require.NoError(t, err)
	assert.Equal(t, "done", result.Reply)
	for _, e := range events {
		if e.Type == event.TypeTotEvaluate {
			payload, err := event.DecodePayload[event.TotEvaluate](e)
			require.NoError(t, err)
			assert.Len(t, payload.Scores, 2)
		}
	}
}

func TestParseScore(t *testing.T) {
	for text, want := range map[string]float32{
		"0.7":           0.7,
		"  0.25 likely": 0.25,
		"1.5":           1,
		"-2":            0,
	} {
		got, err := parseScore(text)
		require.NoError(t, err, text)
		assert.InDelta(t, want, got, 1e-6, text)
	}
	_, err := parseScore("not a number")
	assert.Error(t, err)
	_, err = parseScore("")
	assert.Error(t, err)
}
