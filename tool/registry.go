//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Handler executes one tool call.
type Handler func(ctx context.Context, arguments json.RawMessage) (string, error)

// Registry is an in-process Source backed by registered handlers. It doubles
// as the test double for tool-driven scenarios.
type Registry struct {
	mu       sync.RWMutex
	decls    map[string]Declaration
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		decls:    make(map[string]Declaration),
		handlers: make(map[string]Handler),
	}
}

// Register adds or replaces a tool.
func (r *Registry) Register(decl Declaration, handler Handler) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decls[decl.Name] = decl
	r.handlers[decl.Name] = handler
	return r
}

// ListTools implements Source. Declarations are returned in name order so
// listings are stable.
func (r *Registry) ListTools(ctx context.Context) ([]Declaration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	decls := make([]Declaration, 0, len(r.decls))
	for _, d := range r.decls {
		decls = append(decls, d)
	}
	sort.Slice(decls, func(i, j int) bool { return decls[i].Name < decls[j].Name })
	return decls, nil
}

// Call implements Source.
func (r *Registry) Call(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	r.mu.RLock()
	handler, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	result, err := handler(ctx, arguments)
	if err != nil {
		return "", fmt.Errorf("tool %s: %w", name, err)
	}
	return result, nil
}
