//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

// Package graph implements the state graph engine: a typed key/value state
// flows through a compiled graph of nodes, each returning a partial update
// merged back through per-key reducers, until the End marker is reached.
package graph

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/weftlabs/weft/model"
)

// Well-known state keys shared by the built-in reasoning graphs.
const (
	// StateKeyUserInput holds the seed user message of the run.
	StateKeyUserInput = "user_input"
	// StateKeyMessages holds the conversation history ([]model.Message).
	StateKeyMessages = "messages"
	// StateKeyLastResponse holds the latest assistant reply text.
	StateKeyLastResponse = "last_response"
	// StateKeyMetadata holds free-form run metadata.
	StateKeyMetadata = "metadata"
	// StateKeyLastError holds the message of the last node failure routed
	// through an error edge.
	StateKeyLastError = "last_error"
	// StateKeyErrorNode names the node that produced StateKeyLastError.
	StateKeyErrorNode = "error_node"
	// StateKeyExecContext carries the per-run execution context. It is
	// injected by the executor and never serialized.
	StateKeyExecContext = "exec_context"
)

// State is the shared data that flows between nodes. Nodes receive the full
// state and return a partial update; the schema's reducers decide how each
// updated key merges into the existing value.
type State map[string]any

// Clone returns a shallow copy of the state.
func (s State) Clone() State {
	clone := make(State, len(s))
	for k, v := range s {
		clone[k] = v
	}
	return clone
}

// StateReducer merges an update into the existing value of one channel.
type StateReducer func(existing, update any) any

// StateField declares one state channel: its value type, merge policy and
// optional default.
type StateField struct {
	Type     reflect.Type
	Reducer  StateReducer
	Default  func() any
	Required bool
}

// StateSchema declares the channels of a graph's state. Keys absent from the
// schema merge with replace semantics.
type StateSchema struct {
	mu     sync.RWMutex
	fields map[string]StateField
}

// NewStateSchema creates an empty state schema.
func NewStateSchema() *StateSchema {
	return &StateSchema{fields: make(map[string]StateField)}
}

// AddField declares a channel. A nil reducer defaults to replace.
func (s *StateSchema) AddField(name string, field StateField) *StateSchema {
	s.mu.Lock()
	defer s.mu.Unlock()
	if field.Reducer == nil {
		field.Reducer = DefaultReducer
	}
	s.fields[name] = field
	return s
}

// ApplyUpdate merges a partial update into the current state using the
// declared reducers. The merge is deterministic: replaying the same ordered
// updates over the same schema always yields the same state.
func (s *StateSchema) ApplyUpdate(current State, update State) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := current.Clone()
	for key, updateValue := range update {
		field, ok := s.fields[key]
		if !ok {
			result[key] = updateValue
			continue
		}
		currentValue, exists := result[key]
		if !exists && field.Default != nil {
			currentValue = field.Default()
		}
		result[key] = field.Reducer(currentValue, updateValue)
	}
	return result
}

// Validate checks required fields and value types against the schema.
func (s *StateSchema) Validate(state State) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for name, field := range s.fields {
		value, exists := state[name]
		if field.Required && !exists {
			return fmt.Errorf("required state field %s is missing", name)
		}
		if exists && value != nil && field.Type != nil {
			valueType := reflect.TypeOf(value)
			if !valueType.AssignableTo(field.Type) {
				return fmt.Errorf("state field %s has wrong type: expected %v, got %v",
					name, field.Type, valueType)
			}
		}
	}
	return nil
}

// MessagesStateSchema returns the schema used by the built-in reasoning
// graphs: an appending message history plus replace-semantics scratch keys.
func MessagesStateSchema() *StateSchema {
	return NewStateSchema().
		AddField(StateKeyMessages, StateField{
			Type:    reflect.TypeOf([]model.Message{}),
			Reducer: MessageReducer,
			Default: func() any { return []model.Message{} },
		}).
		AddField(StateKeyUserInput, StateField{
			Type:    reflect.TypeOf(""),
			Reducer: DefaultReducer,
		}).
		AddField(StateKeyLastResponse, StateField{
			Type:    reflect.TypeOf(""),
			Reducer: DefaultReducer,
		}).
		AddField(StateKeyMetadata, StateField{
			Type:    reflect.TypeOf(map[string]any{}),
			Reducer: MergeReducer,
		})
}

// Common reducers.

// DefaultReducer replaces the existing value with the update.
func DefaultReducer(existing, update any) any {
	return update
}

// AppendReducer appends update to the existing []any slice.
func AppendReducer(existing, update any) any {
	if existing == nil {
		existing = []any{}
	}
	existingSlice, ok1 := existing.([]any)
	updateSlice, ok2 := update.([]any)
	if !ok1 || !ok2 {
		return update
	}
	return append(existingSlice, updateSlice...)
}

// StringSliceReducer appends update to the existing []string slice.
func StringSliceReducer(existing, update any) any {
	if existing == nil {
		existing = []string{}
	}
	existingSlice, ok1 := existing.([]string)
	updateSlice, ok2 := update.([]string)
	if !ok1 || !ok2 {
		return update
	}
	return append(existingSlice, updateSlice...)
}

// MergeReducer merges the update map over the existing map.
func MergeReducer(existing, update any) any {
	if existing == nil {
		existing = map[string]any{}
	}
	existingMap, ok1 := existing.(map[string]any)
	updateMap, ok2 := update.(map[string]any)
	if !ok1 || !ok2 {
		return update
	}
	result := make(map[string]any, len(existingMap)+len(updateMap))
	for k, v := range existingMap {
		result[k] = v
	}
	for k, v := range updateMap {
		result[k] = v
	}
	return result
}

// MessageReducer appends update messages to the existing history.
func MessageReducer(existing, update any) any {
	if existing == nil {
		existing = []model.Message{}
	}
	existingMsgs, ok1 := existing.([]model.Message)
	updateMsgs, ok2 := update.([]model.Message)
	if !ok1 || !ok2 {
		return update
	}
	return append(existingMsgs, updateMsgs...)
}
