//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

// Package dup implements the DUP pipeline: understand decomposes the request
// into sub-goals, plan summarizes an approach, and a think/act loop carries
// the work out. A failure in understand aborts the run, since every later
// step builds on the decomposition.
package dup

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/weftlabs/weft/agent"
	"github.com/weftlabs/weft/graph"
	"github.com/weftlabs/weft/model"
	"github.com/weftlabs/weft/tool"
)

// State keys specific to the DUP pipeline.
const (
	// KeySubgoals holds the decomposed sub-goals ([]string).
	KeySubgoals = "subgoals"
	// KeyPlan holds the plan summary.
	KeyPlan = "plan"
)

// Node IDs of the pipeline.
const (
	NodeUnderstand = "understand"
	NodePlan       = "plan"
)

const understandPrompt = "Decompose the user's request into a short numbered list " +
	"of concrete sub-goals. Output only the list."

const planPrompt = "Given the sub-goals, describe in a few sentences the approach " +
	"you will take. Output only the plan."

// Options configures a DUP agent.
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

// Option configures a DUP agent.
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

// WithMaxSteps bounds the pipeline's iterations.
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

// Agent is a DUP pipeline agent.
type Agent struct {
	*agent.Runner
}

// New builds and compiles the DUP graph.
func New(opts ...Option) (*Agent, error) {
	o := Options{Name: "dup"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Model == nil {
		return nil, errors.New("dup: model is required")
	}
	g, err := buildGraph(&o)
	if err != nil {
		return nil, err
	}
	runner := agent.NewRunner(o.Name, o.SystemPrompt, g,
		agent.ExecOptions(o.Saver, o.MaxSteps, o.Middlewares)...)
	return &Agent{Runner: runner}, nil
}

func schema() *graph.StateSchema {
	return agent.BaseSchema().
		AddField(KeySubgoals, graph.StateField{
			Type: reflect.TypeOf([]string{}),
		}).
		AddField(KeyPlan, graph.StateField{
			Type: reflect.TypeOf(""),
		})
}

func buildGraph(o *Options) (*graph.Graph, error) {
	return graph.NewStateGraph(schema()).
		AddNode(NodeUnderstand, understandNode(o.Model),
			graph.WithNodeType(graph.NodeTypeLLM),
			graph.WithDescription("decompose the request into sub-goals")).
		AddNode(NodePlan, planNode(o.Model),
			graph.WithNodeType(graph.NodeTypeLLM),
			graph.WithDescription("summarize the approach")).
		AddNode(agent.NodeThink, agent.LLMNode(o.Model, o.Tools),
			graph.WithNodeType(graph.NodeTypeLLM)).
		AddNode(agent.NodeAct, agent.ToolsNode(o.Tools, o.Approver),
			graph.WithNodeType(graph.NodeTypeTool)).
		SetEntryPoint(NodeUnderstand).
		AddEdge(NodeUnderstand, NodePlan).
		AddEdge(NodePlan, agent.NodeThink).
		AddConditionalEdges(agent.NodeThink, agent.ToolsRouter, map[string]string{
			agent.RouteTools: agent.NodeAct,
			agent.RouteEnd:   graph.End,
		}).
		AddEdge(agent.NodeAct, agent.NodeThink).
		Compile()
}

// understandNode asks the model for sub-goals and merges them into state and
// the history. There is deliberately no error edge on this node.
func understandNode(m model.Model) graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (graph.State, error) {
		ec, _ := graph.ExecContextFromState(state)
		userInput, _ := state[graph.StateKeyUserInput].(string)
		req := &model.Request{Messages: []model.Message{
			model.NewSystemMessage(understandPrompt),
			model.NewUserMessage(userInput),
		}}
		msg, usage, err := agent.Generate(ctx, ec, m, req, true)
		if err != nil {
			return nil, fmt.Errorf("understand: %w", err)
		}
		subgoals := parseList(msg.Content)
		if len(subgoals) == 0 {
			return nil, fmt.Errorf("understand: no sub-goals in %q", msg.Content)
		}
		return graph.State{
			KeySubgoals: subgoals,
			graph.StateKeyMessages: []model.Message{
				model.NewAssistantMessage("Sub-goals:\n" + msg.Content),
			},
			agent.KeyUsage:      usage,
			agent.KeyTotalUsage: usage,
		}, nil
	}
}

// planNode asks the model for an approach summary over the sub-goals.
func planNode(m model.Model) graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (graph.State, error) {
		ec, _ := graph.ExecContextFromState(state)
		userInput, _ := state[graph.StateKeyUserInput].(string)
		subgoals, _ := state[KeySubgoals].([]string)
		req := &model.Request{Messages: []model.Message{
			model.NewSystemMessage(planPrompt),
			model.NewUserMessage(fmt.Sprintf("Request: %s\nSub-goals:\n%s",
				userInput, strings.Join(subgoals, "\n"))),
		}}
		msg, usage, err := agent.Generate(ctx, ec, m, req, true)
		if err != nil {
			return nil, fmt.Errorf("plan: %w", err)
		}
		return graph.State{
			KeyPlan: msg.Content,
			graph.StateKeyMessages: []model.Message{
				model.NewAssistantMessage("Plan: " + msg.Content),
			},
			agent.KeyUsage:      usage,
			agent.KeyTotalUsage: usage,
		}, nil
	}
}

// parseList extracts the items of a numbered or bulleted list, one per line.
func parseList(text string) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "0123456789.)- *")
		line = strings.TrimSpace(line)
		if line != "" {
			items = append(items, line)
		}
	}
	return items
}
