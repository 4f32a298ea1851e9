//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides a process-local checkpoint saver, suitable for
// tests and single-process deployments.
package inmemory

import (
	"context"
	"sync"

	"github.com/weftlabs/weft/graph"
)

// Saver keeps checkpoints in memory, ordered per thread.
type Saver struct {
	mu       sync.RWMutex
	byThread map[string][]*graph.Checkpoint
}

// NewSaver creates an empty in-memory saver.
func NewSaver() *Saver {
	return &Saver{byThread: make(map[string][]*graph.Checkpoint)}
}

// Save implements graph.CheckpointSaver.
func (s *Saver) Save(ctx context.Context, cp *graph.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *cp
	stored.State = cp.State.Clone()
	s.byThread[cp.ThreadID] = append(s.byThread[cp.ThreadID], &stored)
	return nil
}

// LoadLatest implements graph.CheckpointSaver.
func (s *Saver) LoadLatest(ctx context.Context, threadID string) (*graph.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cps := s.byThread[threadID]
	if len(cps) == 0 {
		return nil, nil
	}
	latest := cps[0]
	for _, cp := range cps[1:] {
		if cp.Step >= latest.Step {
			latest = cp
		}
	}
	copied := *latest
	copied.State = latest.State.Clone()
	return &copied, nil
}

// List returns all checkpoints of a thread in save order.
func (s *Saver) List(threadID string) []*graph.Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*graph.Checkpoint(nil), s.byThread[threadID]...)
}
