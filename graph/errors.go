//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors reported by the executor.
var (
	// ErrStepBudgetExceeded is returned when a run exceeds its step budget.
	ErrStepBudgetExceeded = errors.New("graph: step budget exceeded")
	// ErrNoRoute is returned when a node has no outgoing edge to follow.
	ErrNoRoute = errors.New("graph: no outgoing edge")
	// ErrCanceled is returned when the run context is canceled.
	ErrCanceled = errors.New("graph: run canceled")
)

// NodeError wraps a node function failure with the node that produced it.
type NodeError struct {
	NodeID string
	Err    error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.NodeID, e.Err)
}

// Unwrap returns the underlying node failure.
func (e *NodeError) Unwrap() error { return e.Err }

// CheckpointError wraps a checkpoint save or load failure. Save failures are
// fatal to the run.
type CheckpointError struct {
	ThreadID string
	Step     int
	Err      error
}

// Error implements the error interface.
func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint thread %s step %d: %v", e.ThreadID, e.Step, e.Err)
}

// Unwrap returns the underlying store failure.
func (e *CheckpointError) Unwrap() error { return e.Err }

// BuildError collects every problem found while building and compiling a
// StateGraph. The builder records problems as they occur and reports them
// together from Compile.
type BuildError struct {
	Problems []string
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	return fmt.Sprintf("graph build failed: %s", strings.Join(e.Problems, "; "))
}
