//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

// Package agent provides the shared runner plumbing of the reasoning-mode
// agents: run construction, the common state schema, and the think/act node
// implementations built on the graph engine.
package agent

import (
	"context"
	"reflect"

	"github.com/google/uuid"

	"github.com/weftlabs/weft/event"
	"github.com/weftlabs/weft/graph"
	"github.com/weftlabs/weft/model"
)

// Agent-level state keys, in addition to the graph package's well-known keys.
const (
	// KeyUsage holds the token usage of the latest generation.
	KeyUsage = "usage"
	// KeyTotalUsage accumulates token usage across the whole run.
	KeyTotalUsage = "total_usage"
)

// Agent is one configured reasoning mode over a compiled graph.
type Agent interface {
	// Name identifies the agent in run_start events and the transport.
	Name() string
	// Run starts one run from a user message.
	Run(ctx context.Context, message string, opts ...RunOption) (*Run, error)
}

// RunOptions configures one run.
type RunOptions struct {
	RunID    string
	ThreadID string
}

// RunOption configures one run.
type RunOption func(*RunOptions)

// WithRunID overrides the generated run ID.
func WithRunID(id string) RunOption {
	return func(o *RunOptions) { o.RunID = id }
}

// WithThreadID attaches the run to a persistent thread.
func WithThreadID(id string) RunOption {
	return func(o *RunOptions) { o.ThreadID = id }
}

// NewRunID generates a run identifier. It doubles as the stream session ID.
func NewRunID() string {
	return "run-" + uuid.NewString()
}

// Run is a handle on one in-flight agent run.
type Run struct {
	ID   string
	exec *graph.Execution
}

// Events returns the run's ordered event stream.
func (r *Run) Events() <-chan *event.Event { return r.exec.Events() }

// Wait blocks until the run terminates and extracts the outcome.
func (r *Run) Wait(ctx context.Context) (*Result, error) {
	state, err := r.exec.Wait(ctx)
	if err != nil {
		return nil, err
	}
	result := &Result{State: state}
	result.Reply, _ = state[graph.StateKeyLastResponse].(string)
	if u, ok := state[KeyUsage].(event.Usage); ok {
		result.Usage = u
	}
	if u, ok := state[KeyTotalUsage].(event.Usage); ok {
		result.TotalUsage = u
	}
	return result, nil
}

// Result is the terminal outcome of a run.
type Result struct {
	Reply      string
	Usage      event.Usage
	TotalUsage event.Usage
	State      graph.State
}

// BaseSchema returns the state schema shared by the built-in agents: the
// message history plus token accounting channels.
func BaseSchema() *graph.StateSchema {
	return graph.MessagesStateSchema().
		AddField(KeyUsage, graph.StateField{
			Type: reflect.TypeOf(event.Usage{}),
		}).
		AddField(KeyTotalUsage, graph.StateField{
			Type:    reflect.TypeOf(event.Usage{}),
			Reducer: UsageReducer,
		})
}

// UsageReducer accumulates token usage component-wise.
func UsageReducer(existing, update any) any {
	up, ok := update.(event.Usage)
	if !ok {
		return update
	}
	ex, _ := existing.(event.Usage)
	return ex.Add(up)
}

// InitialState builds the starting state of a run: the seed user message,
// preceded by the system prompt when one is configured.
func InitialState(systemPrompt, message string) graph.State {
	var msgs []model.Message
	if systemPrompt != "" {
		msgs = append(msgs, model.NewSystemMessage(systemPrompt))
	}
	msgs = append(msgs, model.NewUserMessage(message))
	return graph.State{
		graph.StateKeyUserInput: message,
		graph.StateKeyMessages:  msgs,
	}
}

// Runner binds a compiled graph to an executor and implements the run
// lifecycle shared by the concrete agents.
type Runner struct {
	name         string
	systemPrompt string
	exec         *graph.Executor
}

// NewRunner creates a runner over a compiled graph.
func NewRunner(name, systemPrompt string, g *graph.Graph, execOpts ...graph.Option) *Runner {
	execOpts = append([]graph.Option{graph.WithAgentName(name)}, execOpts...)
	return &Runner{
		name:         name,
		systemPrompt: systemPrompt,
		exec:         graph.NewExecutor(g, execOpts...),
	}
}

// Name implements Agent.
func (r *Runner) Name() string { return r.name }

// Run implements Agent.
func (r *Runner) Run(ctx context.Context, message string, opts ...RunOption) (*Run, error) {
	o := RunOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.RunID == "" {
		o.RunID = NewRunID()
	}
	exec := r.exec.Execute(ctx, InitialState(r.systemPrompt, message),
		graph.WithRunID(o.RunID), graph.WithThreadID(o.ThreadID))
	return &Run{ID: o.RunID, exec: exec}, nil
}

// ExecOptions translates the common agent configuration into executor
// options.
func ExecOptions(saver graph.CheckpointSaver, maxSteps int, middlewares []graph.NodeMiddleware) []graph.Option {
	var opts []graph.Option
	if saver != nil {
		opts = append(opts, graph.WithCheckpointSaver(saver))
	}
	if maxSteps > 0 {
		opts = append(opts, graph.WithMaxSteps(maxSteps))
	}
	if len(middlewares) > 0 {
		opts = append(opts, graph.WithMiddlewares(middlewares...))
	}
	return opts
}
