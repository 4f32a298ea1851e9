//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

// Package mock provides a deterministic, scripted Model for tests and local
// development. Each GenerateContent call consumes the next scripted turn.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/weftlabs/weft/event"
	"github.com/weftlabs/weft/model"
)

// Turn scripts one generation: text chunks streamed in order, optional tool
// calls and the reported usage. A non-nil Err fails the turn instead.
type Turn struct {
	Chunks    []string
	ToolCalls []model.ToolCall
	Usage     event.Usage
	Err       error
}

// ReplyTurn scripts a plain text reply split into word chunks.
func ReplyTurn(text string) Turn {
	words := strings.SplitAfter(text, " ")
	return Turn{
		Chunks: words,
		Usage:  event.Usage{PromptTokens: 10, CompletionTokens: len(words), TotalTokens: 10 + len(words)},
	}
}

// ToolCallTurn scripts a turn that proposes one tool call.
func ToolCallTurn(callID, name, arguments string) Turn {
	return Turn{
		ToolCalls: []model.ToolCall{{ID: callID, Name: name, Arguments: []byte(arguments)}},
		Usage:     event.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

// Model replays scripted turns in order. It records every request it serves
// so tests can assert on the prompts the graphs build.
type Model struct {
	mu       sync.Mutex
	turns    []Turn
	next     int
	requests []*model.Request
}

// New creates a mock model over the given script.
func New(turns ...Turn) *Model {
	return &Model{turns: turns}
}

// Info implements model.Model.
func (m *Model) Info() model.Info { return model.Info{Name: "mock"} }

// Requests returns a copy of the requests served so far.
func (m *Model) Requests() []*model.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.Request(nil), m.requests...)
}

// GenerateContent implements model.Model.
func (m *Model) GenerateContent(ctx context.Context, req *model.Request) (<-chan *model.Response, error) {
	m.mu.Lock()
	if m.next >= len(m.turns) {
		m.mu.Unlock()
		return nil, fmt.Errorf("mock model: script exhausted after %d turns", len(m.turns))
	}
	turn := m.turns[m.next]
	m.next++
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	ch := make(chan *model.Response, len(turn.Chunks)+len(turn.ToolCalls)+1)
	go func() {
		defer close(ch)
		if turn.Err != nil {
			send(ctx, ch, &model.Response{Done: true, Err: turn.Err})
			return
		}
		for _, chunk := range turn.Chunks {
			if !send(ctx, ch, &model.Response{Delta: chunk}) {
				return
			}
		}
		for i, call := range turn.ToolCalls {
			chunk := &model.ToolCallChunk{
				Index:          i,
				CallID:         call.ID,
				Name:           call.Name,
				ArgumentsDelta: string(call.Arguments),
			}
			if !send(ctx, ch, &model.Response{ToolCallChunk: chunk}) {
				return
			}
		}
		final := model.Message{
			Role:      model.RoleAssistant,
			Content:   strings.Join(turn.Chunks, ""),
			ToolCalls: turn.ToolCalls,
		}
		usage := turn.Usage
		send(ctx, ch, &model.Response{Done: true, Message: &final, Usage: &usage})
	}()
	return ch, nil
}

func send(ctx context.Context, ch chan<- *model.Response, rsp *model.Response) bool {
	select {
	case ch <- rsp:
		return true
	case <-ctx.Done():
		return false
	}
}
