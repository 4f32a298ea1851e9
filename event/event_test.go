//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventMarshalFlattensPayloadAndEnvelope(t *testing.T) {
	e := New(TypeNodeEnter, NodeEnter{ID: "think"})
	e.SessionID = "run-1"
	e.NodeID = "run-think-0"
	e.EventID = 1

	raw, err := json.Marshal(e)
	require.NoError(t, err)

	var frame map[string]any
	require.NoError(t, json.Unmarshal(raw, &frame))
	assert.Equal(t, "node_enter", frame["type"])
	assert.Equal(t, "think", frame["id"])
	assert.Equal(t, "run-1", frame["session_id"])
	assert.Equal(t, "run-think-0", frame["node_id"])
	assert.Equal(t, float64(1), frame["event_id"])
}

func TestNodeResultMarshal(t *testing.T) {
	ok, err := json.Marshal(NodeResult{})
	require.NoError(t, err)
	assert.JSONEq(t, `"Ok"`, string(ok))

	failed, err := json.Marshal(NodeResult{Err: "boom"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Err":"boom"}`, string(failed))
}

func TestNodeResultUnmarshal(t *testing.T) {
	var r NodeResult
	require.NoError(t, json.Unmarshal([]byte(`"Ok"`), &r))
	assert.True(t, r.Ok())

	require.NoError(t, json.Unmarshal([]byte(`{"Err":"bad"}`), &r))
	assert.Equal(t, "bad", r.Err)
	assert.False(t, r.Ok())

	assert.Error(t, json.Unmarshal([]byte(`"NotOk"`), &r))
}

func TestNodeExitRoundTrip(t *testing.T) {
	e := New(TypeNodeExit, NodeExit{ID: "act", Result: NodeResult{Err: "tool missing"}})
	e.EventID = 7

	raw, err := json.Marshal(e)
	require.NoError(t, err)

	var parsed Event
	require.NoError(t, json.Unmarshal(raw, &parsed))
	assert.Equal(t, TypeNodeExit, parsed.Type)
	assert.Equal(t, uint64(7), parsed.EventID)

	payload, err := DecodePayload[NodeExit](&parsed)
	require.NoError(t, err)
	assert.Equal(t, "act", payload.ID)
	assert.Equal(t, "tool missing", payload.Result.Err)
}

func TestDecodePayloadFromTypedEvent(t *testing.T) {
	e := New(TypeTotEvaluate, TotEvaluate{Chosen: 1, Scores: []float32{0.2, 0.9}})
	payload, err := DecodePayload[TotEvaluate](e)
	require.NoError(t, err)
	assert.Equal(t, 1, payload.Chosen)
	assert.Len(t, payload.Scores, 2)
}

func TestUsageAdd(t *testing.T) {
	total := Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}.
		Add(Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3})
	assert.Equal(t, Usage{PromptTokens: 11, CompletionTokens: 7, TotalTokens: 18}, total)
}

func TestEnvelopeFieldsOmittedWhenUnset(t *testing.T) {
	raw, err := json.Marshal(New(TypeCustom, Custom{Value: 42}))
	require.NoError(t, err)

	var frame map[string]any
	require.NoError(t, json.Unmarshal(raw, &frame))
	_, hasSession := frame["session_id"]
	_, hasNode := frame["node_id"]
	_, hasEvent := frame["event_id"]
	assert.False(t, hasSession)
	assert.False(t, hasNode)
	assert.False(t, hasEvent)
	assert.Equal(t, float64(42), frame["value"])
}
