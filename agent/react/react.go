//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

// Package react implements the ReAct reasoning loop: think proposes either a
// final reply or tool calls, act executes the calls, and the loop repeats
// until think replies without pending calls.
package react

import (
	"errors"

	"github.com/weftlabs/weft/agent"
	"github.com/weftlabs/weft/graph"
	"github.com/weftlabs/weft/model"
	"github.com/weftlabs/weft/tool"
)

// Options configures a ReAct agent.
type Options struct {
	Model        model.Model
	Tools        tool.Source
	Approver     tool.Approver
	Saver        graph.CheckpointSaver
	MaxSteps     int
	SystemPrompt string
	Middlewares  []graph.NodeMiddleware
	Name         string
}

// Option configures a ReAct agent.
type Option func(*Options)

// WithModel sets the LLM collaborator. Required.
func WithModel(m model.Model) Option {
	return func(o *Options) { o.Model = m }
}

// WithTools sets the tool source offered to the model.
func WithTools(src tool.Source) Option {
	return func(o *Options) { o.Tools = src }
}

// WithApprover sets the approval gate for destructive tools.
func WithApprover(a tool.Approver) Option {
	return func(o *Options) { o.Approver = a }
}

// WithCheckpointSaver enables checkpointing for runs that carry a thread ID.
func WithCheckpointSaver(s graph.CheckpointSaver) Option {
	return func(o *Options) { o.Saver = s }
}

// WithMaxSteps bounds the think/act iterations.
func WithMaxSteps(n int) Option {
	return func(o *Options) { o.MaxSteps = n }
}

// WithSystemPrompt prepends a system message to every run.
func WithSystemPrompt(prompt string) Option {
	return func(o *Options) { o.SystemPrompt = prompt }
}

// WithMiddlewares adds node middlewares to the executor.
func WithMiddlewares(ms ...graph.NodeMiddleware) Option {
	return func(o *Options) { o.Middlewares = ms }
}

// WithAgentName overrides the default agent name.
func WithAgentName(name string) Option {
	return func(o *Options) { o.Name = name }
}

// Agent is a ReAct reasoning agent.
type Agent struct {
	*agent.Runner
}

// New builds and compiles the ReAct graph.
func New(opts ...Option) (*Agent, error) {
	o := Options{Name: "react"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Model == nil {
		return nil, errors.New("react: model is required")
	}
	g, err := buildGraph(&o)
	if err != nil {
		return nil, err
	}
	runner := agent.NewRunner(o.Name, o.SystemPrompt, g,
		agent.ExecOptions(o.Saver, o.MaxSteps, o.Middlewares)...)
	return &Agent{Runner: runner}, nil
}

func buildGraph(o *Options) (*graph.Graph, error) {
	return graph.NewStateGraph(agent.BaseSchema()).
		AddNode(agent.NodeThink, agent.LLMNode(o.Model, o.Tools),
			graph.WithNodeType(graph.NodeTypeLLM),
			graph.WithDescription("reason over the history, reply or propose tool calls")).
		AddNode(agent.NodeAct, agent.ToolsNode(o.Tools, o.Approver),
			graph.WithNodeType(graph.NodeTypeTool),
			graph.WithDescription("execute pending tool calls")).
		SetEntryPoint(agent.NodeThink).
		AddConditionalEdges(agent.NodeThink, agent.ToolsRouter, map[string]string{
			agent.RouteTools: agent.NodeAct,
			agent.RouteEnd:   graph.End,
		}).
		AddEdge(agent.NodeAct, agent.NodeThink).
		Compile()
}
