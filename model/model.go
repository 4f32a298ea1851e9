//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

// Package model defines the LLM collaborator interface consumed by the
// reasoning graphs: a streaming content generator over a message history.
package model

import (
	"context"
	"encoding/json"

	"github.com/weftlabs/weft/event"
	"github.com/weftlabs/weft/tool"
)

// Role identifies the author of a message.
type Role string

// Message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of the conversation history.
type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID pairs a tool result message with the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
	// ToolName names the tool that produced a tool result message.
	ToolName string `json:"tool_name,omitempty"`
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewToolMessage creates a tool result message for a call.
func NewToolMessage(callID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID, ToolName: name}
}

// ToolCall is a complete tool invocation proposed by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Request is one generation request.
type Request struct {
	Messages []Message
	Tools    []tool.Declaration
}

// ToolCallChunk is a streamed fragment of a proposed tool call's arguments.
type ToolCallChunk struct {
	Index          int
	CallID         string
	Name           string
	ArgumentsDelta string
}

// Response is one item of a generation stream. Deltas arrive first; the last
// item has Done set and carries the aggregated message, the token usage and
// any stream error.
type Response struct {
	// Delta is a fragment of assistant text.
	Delta string
	// ToolCallChunk is a fragment of tool call arguments, when present.
	ToolCallChunk *ToolCallChunk

	// Done marks the final item of the stream.
	Done bool
	// Message is the aggregated assistant message, set with Done.
	Message *Message
	// Usage is the token accounting of this generation, set with Done.
	Usage *event.Usage
	// Err is the stream failure, set with Done when the generation failed.
	Err error
}

// Info describes a model.
type Info struct {
	Name string
}

// Model generates assistant content from a message history. The returned
// channel is closed after the Done item. Implementations must honor context
// cancellation while streaming.
type Model interface {
	Info() Info
	GenerateContent(ctx context.Context, req *Request) (<-chan *Response, error)
}
