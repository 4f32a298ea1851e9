//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

// Package event defines the wire event taxonomy emitted during a run.
//
// Each event serializes to one flat JSON object: the payload fields plus a
// "type" discriminator and the optional envelope (session_id, node_id,
// event_id). Frame order equals event order; event_id strictly increases
// within one run's stream.
package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types.
const (
	TypeRunStart      = "run_start"
	TypeNodeEnter     = "node_enter"
	TypeNodeExit      = "node_exit"
	TypeMessageChunk  = "message_chunk"
	TypeUsage         = "usage"
	TypeValues        = "values"
	TypeUpdates       = "updates"
	TypeCustom        = "custom"
	TypeCheckpoint    = "checkpoint"
	TypeTotExpand     = "tot_expand"
	TypeTotEvaluate   = "tot_evaluate"
	TypeTotBacktrack  = "tot_backtrack"
	TypeGotPlan       = "got_plan"
	TypeGotNodeStart  = "got_node_start"
	TypeGotNodeDone   = "got_node_complete"
	TypeGotNodeFailed = "got_node_failed"
	TypeGotExpand     = "got_expand"
	TypeToolCallChunk = "tool_call_chunk"
	TypeToolCall      = "tool_call"
	TypeToolStart     = "tool_start"
	TypeToolOutput    = "tool_output"
	TypeToolEnd       = "tool_end"
	TypeToolApproval  = "tool_approval"
	TypeReply         = "reply"
)

// Event is one stream frame: an envelope plus a typed payload.
//
// Payload holds one of the payload structs below when the event was built
// locally, or a json.RawMessage of the whole frame after UnmarshalJSON.
type Event struct {
	SessionID string
	NodeID    string
	EventID   uint64

	Type    string
	Payload any
}

// NodeResult is the outcome part of a node_exit payload. It serializes to
// the string "Ok" when Err is empty, otherwise to {"Err": "..."}.
type NodeResult struct {
	Err string
}

// Ok reports whether the node run succeeded.
func (r NodeResult) Ok() bool { return r.Err == "" }

// MarshalJSON implements json.Marshaler.
func (r NodeResult) MarshalJSON() ([]byte, error) {
	if r.Err == "" {
		return json.Marshal("Ok")
	}
	return json.Marshal(map[string]string{"Err": r.Err})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *NodeResult) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "Ok" {
			return fmt.Errorf("unexpected node result %q", s)
		}
		r.Err = ""
		return nil
	}
	var obj struct {
		Err string `json:"Err"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	r.Err = obj.Err
	return nil
}

// Usage is the token accounting attached to usage events and run_end.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add returns the component-wise sum of two usages.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

// Payload structs. Field names match the wire shape.

// RunStart announces a new run.
type RunStart struct {
	RunID   string `json:"run_id,omitempty"`
	Message string `json:"message,omitempty"`
	Agent   string `json:"agent,omitempty"`
}

// NodeEnter marks the start of one node run span.
type NodeEnter struct {
	ID string `json:"id"`
}

// NodeExit marks the end of one node run span.
type NodeExit struct {
	ID     string     `json:"id"`
	Result NodeResult `json:"result"`
}

// MessageChunk is one streamed fragment of assistant text.
type MessageChunk struct {
	Content string `json:"content"`
	ID      string `json:"id"`
}

// Values is a full state snapshot.
type Values struct {
	State any `json:"state"`
}

// Updates is the partial state update produced by one node.
type Updates struct {
	ID    string `json:"id"`
	State any    `json:"state"`
}

// Custom carries an application-defined value.
type Custom struct {
	Value any `json:"value"`
}

// Checkpoint reports a persisted state snapshot.
type Checkpoint struct {
	CheckpointID string    `json:"checkpoint_id"`
	Timestamp    time.Time `json:"timestamp"`
	Step         int       `json:"step"`
	State        any       `json:"state"`
	ThreadID     string    `json:"thread_id,omitempty"`
	CheckpointNS string    `json:"checkpoint_ns,omitempty"`
}

// TotExpand lists candidate thoughts generated at the current depth.
type TotExpand struct {
	Candidates []string `json:"candidates"`
}

// TotEvaluate reports candidate scores and the chosen index.
type TotEvaluate struct {
	Chosen int       `json:"chosen"`
	Scores []float32 `json:"scores"`
}

// TotBacktrack reports a backtracking decision.
type TotBacktrack struct {
	Reason  string `json:"reason"`
	ToDepth int    `json:"to_depth"`
}

// GotPlan reports the planned task DAG.
type GotPlan struct {
	NodeCount int      `json:"node_count"`
	EdgeCount int      `json:"edge_count"`
	NodeIDs   []string `json:"node_ids"`
}

// GotNodeStart marks the start of one DAG task.
type GotNodeStart struct {
	ID string `json:"id"`
}

// GotNodeComplete marks a successful DAG task.
type GotNodeComplete struct {
	ID            string `json:"id"`
	ResultSummary string `json:"result_summary"`
}

// GotNodeFailed marks a failed DAG task.
type GotNodeFailed struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// GotExpand reports adaptive growth of the task DAG.
type GotExpand struct {
	NodeID     string `json:"node_id"`
	NodesAdded int    `json:"nodes_added"`
	EdgesAdded int    `json:"edges_added"`
}

// ToolCallChunk is one streamed fragment of tool call arguments.
type ToolCallChunk struct {
	CallID         string `json:"call_id,omitempty"`
	Name           string `json:"name,omitempty"`
	ArgumentsDelta string `json:"arguments_delta"`
}

// ToolCall is a complete proposed tool invocation.
type ToolCall struct {
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name"`
	Arguments any    `json:"arguments"`
}

// ToolStart marks the beginning of a tool execution.
type ToolStart struct {
	CallID string `json:"call_id,omitempty"`
	Name   string `json:"name"`
}

// ToolOutput carries intermediate tool output.
type ToolOutput struct {
	CallID  string `json:"call_id,omitempty"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// ToolEnd marks the completion of a tool execution.
type ToolEnd struct {
	CallID  string `json:"call_id,omitempty"`
	Name    string `json:"name"`
	Result  string `json:"result"`
	IsError bool   `json:"is_error"`
}

// Reply is the terminal message of a successful run. It carries the next
// event_id after the last stream event.
type Reply struct {
	Reply string `json:"reply"`
}

// ToolApproval marks a destructive tool call waiting on the approval gate.
type ToolApproval struct {
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name"`
	Arguments any    `json:"arguments"`
}

// New creates an event of the given type with the given payload.
func New(eventType string, payload any) *Event {
	return &Event{Type: eventType, Payload: payload}
}

// MarshalJSON flattens the payload with the type discriminator and envelope
// into one JSON object.
func (e *Event) MarshalJSON() ([]byte, error) {
	frame := map[string]any{}
	if e.Payload != nil {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", e.Type, err)
		}
		if err := json.Unmarshal(raw, &frame); err != nil {
			return nil, fmt.Errorf("flatten %s payload: %w", e.Type, err)
		}
	}
	frame["type"] = e.Type
	if e.SessionID != "" {
		frame["session_id"] = e.SessionID
	}
	if e.NodeID != "" {
		frame["node_id"] = e.NodeID
	}
	if e.EventID != 0 {
		frame["event_id"] = e.EventID
	}
	return json.Marshal(frame)
}

// UnmarshalJSON extracts the envelope and type; the whole frame is retained
// in Payload as json.RawMessage so callers can decode the typed payload with
// DecodePayload.
func (e *Event) UnmarshalJSON(data []byte) error {
	var head struct {
		SessionID string `json:"session_id"`
		NodeID    string `json:"node_id"`
		EventID   uint64 `json:"event_id"`
		Type      string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	e.SessionID = head.SessionID
	e.NodeID = head.NodeID
	e.EventID = head.EventID
	e.Type = head.Type
	e.Payload = json.RawMessage(append([]byte(nil), data...))
	return nil
}

// DecodePayload decodes an event's payload into out. It accepts both locally
// built events (typed payload) and parsed frames (raw JSON payload).
func DecodePayload[T any](e *Event) (T, error) {
	var out T
	switch p := e.Payload.(type) {
	case T:
		return p, nil
	case json.RawMessage:
		err := json.Unmarshal(p, &out)
		return out, err
	case nil:
		return out, fmt.Errorf("event %s has no payload", e.Type)
	default:
		raw, err := json.Marshal(p)
		if err != nil {
			return out, err
		}
		err = json.Unmarshal(raw, &out)
		return out, err
	}
}
