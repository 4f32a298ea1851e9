//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

// Package tool defines the external tool collaborator: a source that lists
// and executes tools, and the approval gate for destructive ones.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a named tool does not exist.
var ErrNotFound = errors.New("tool: not found")

// Declaration describes one callable tool.
type Declaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
	// Destructive tools must pass the approval gate before executing.
	Destructive bool `json:"destructive,omitempty"`
}

// Source lists and executes tools. Implementations live outside the runtime
// (local registries, remote bridges); the runtime only consumes this surface.
type Source interface {
	// ListTools returns the declarations of every available tool.
	ListTools(ctx context.Context) ([]Declaration, error)
	// Call executes a tool by name and returns its textual result.
	Call(ctx context.Context, name string, arguments json.RawMessage) (string, error)
}

// Decision is the outcome of an approval request.
type Decision int

// Approval decisions.
const (
	Denied Decision = iota
	Approved
)

// Approver decides whether a destructive tool call may execute. Approve may
// block until an external signal arrives; there is no timeout by default.
// Runs without an approver deny destructive calls with an explanatory error.
type Approver interface {
	Approve(ctx context.Context, callID, name string, arguments json.RawMessage) (Decision, error)
}

// ApproverFunc adapts a function to the Approver interface.
type ApproverFunc func(ctx context.Context, callID, name string, arguments json.RawMessage) (Decision, error)

// Approve implements Approver.
func (f ApproverFunc) Approve(ctx context.Context, callID, name string, arguments json.RawMessage) (Decision, error) {
	return f(ctx, callID, name, arguments)
}

// ApproveAll approves every call. For trusted environments and tests.
func ApproveAll() Approver {
	return ApproverFunc(func(context.Context, string, string, json.RawMessage) (Decision, error) {
		return Approved, nil
	})
}

// DenyAll denies every call.
func DenyAll() Approver {
	return ApproverFunc(func(context.Context, string, string, json.RawMessage) (Decision, error) {
		return Denied, nil
	})
}

// Find returns the declaration with the given name from a source.
func Find(ctx context.Context, src Source, name string) (Declaration, error) {
	decls, err := src.ListTools(ctx)
	if err != nil {
		return Declaration{}, fmt.Errorf("list tools: %w", err)
	}
	for _, d := range decls {
		if d.Name == name {
			return d, nil
		}
	}
	return Declaration{}, fmt.Errorf("%w: %s", ErrNotFound, name)
}
