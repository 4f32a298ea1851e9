//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"context"
	"time"
)

// Checkpoint is an immutable snapshot of a run's state after one step.
// Checkpoints for a thread are ordered by step and never mutate once written.
type Checkpoint struct {
	ThreadID     string    `json:"thread_id"`
	CheckpointID string    `json:"checkpoint_id"`
	Step         int       `json:"step"`
	Timestamp    time.Time `json:"timestamp"`
	CheckpointNS string    `json:"checkpoint_ns"`
	State        State     `json:"state"`
}

// CheckpointSaver persists checkpoints keyed by thread. The executor calls
// Save synchronously at policy-selected steps, so at most one write per
// thread is in flight, and LoadLatest once at run start when resuming.
type CheckpointSaver interface {
	// Save persists a checkpoint. A save failure is fatal to the run.
	Save(ctx context.Context, cp *Checkpoint) error
	// LoadLatest returns the highest-step checkpoint of a thread, or
	// (nil, nil) when the thread has none.
	LoadLatest(ctx context.Context, threadID string) (*Checkpoint, error)
}

// CheckpointPolicy decides whether to checkpoint after a given step.
type CheckpointPolicy func(step int) bool

// CheckpointEveryStep checkpoints after every step. This is the default
// policy when a saver and thread ID are configured.
func CheckpointEveryStep() CheckpointPolicy {
	return func(int) bool { return true }
}

// CheckpointEveryN checkpoints after every n-th step.
func CheckpointEveryN(n int) CheckpointPolicy {
	if n < 1 {
		n = 1
	}
	return func(step int) bool { return step%n == 0 }
}
