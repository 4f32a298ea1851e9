//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

// Package store persists the user messages that start runs, keyed by thread,
// with cursor pagination for history browsing.
package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultPageSize bounds a page when the caller passes limit <= 0.
const DefaultPageSize = 20

// UserMessage is one stored message. ID is a per-store monotonically
// increasing cursor.
type UserMessage struct {
	ID        int64     `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Page is one page of messages, newest first. HasMore reports whether older
// messages remain beyond the page.
type Page struct {
	Messages []UserMessage `json:"messages"`
	HasMore  bool          `json:"has_more"`
}

// Store records and pages user messages per thread.
type Store interface {
	// AppendUserMessage records one message on the thread.
	AppendUserMessage(ctx context.Context, threadID, content string) error
	// UserMessages returns messages of the thread newest first. before is an
	// exclusive upper ID bound; 0 means start from the newest. limit <= 0
	// falls back to DefaultPageSize.
	UserMessages(ctx context.Context, threadID string, before int64, limit int) (*Page, error)
}

// Memory is an in-process Store for tests and single-binary runs.
type Memory struct {
	mu     sync.Mutex
	nextID int64
	byTID  map[string][]UserMessage
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{byTID: make(map[string][]UserMessage)}
}

// AppendUserMessage implements Store.
func (m *Memory) AppendUserMessage(ctx context.Context, threadID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.byTID[threadID] = append(m.byTID[threadID], UserMessage{
		ID:        m.nextID,
		ThreadID:  threadID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// UserMessages implements Store.
func (m *Memory) UserMessages(ctx context.Context, threadID string, before int64, limit int) (*Page, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.byTID[threadID]
	eligible := make([]UserMessage, 0, len(all))
	for _, msg := range all {
		if before == 0 || msg.ID < before {
			eligible = append(eligible, msg)
		}
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].ID > eligible[j].ID })
	page := &Page{Messages: []UserMessage{}}
	if len(eligible) > limit {
		page.HasMore = true
		eligible = eligible[:limit]
	}
	page.Messages = append(page.Messages, eligible...)
	return page, nil
}
