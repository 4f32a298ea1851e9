//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

// Package got implements Graph-of-Thought execution: plan asks the model for
// a DAG of sub-tasks, execute runs it in dependency order with bounded
// fan-out, and synthesize combines the partial results into the reply.
//
// A failed task marks every transitive dependent as skipped instead of
// aborting the run. In adaptive mode the DAG may grow mid-run in response to
// a completed task's result; every insertion is re-validated against the
// same referential-integrity and acyclicity rules as the initial plan.
package got

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/weftlabs/weft/agent"
	"github.com/weftlabs/weft/event"
	"github.com/weftlabs/weft/graph"
	"github.com/weftlabs/weft/model"
)

// State keys of the DAG execution.
const (
	// KeyPlan holds the parsed task DAG (*Plan).
	KeyPlan = "got_plan"
	// KeyResults maps completed task IDs to their results.
	KeyResults = "got_results"
	// KeyFailed maps failed task IDs to their error messages.
	KeyFailed = "got_failed"
	// KeySkipped lists task IDs skipped because a dependency failed.
	KeySkipped = "got_skipped"
)

// Node IDs of the outer graph.
const (
	NodePlan       = "plan"
	NodeExecute    = "execute"
	NodeSynthesize = "synthesize"
)

// Defaults.
const (
	DefaultMaxConcurrency = 4
	DefaultMaxNodes       = 12
)

const planPrompt = `Decompose the user's request into a DAG of sub-tasks.
Respond with JSON only, of the shape
{"nodes":[{"id":"n1","task":"...","deps":[]},{"id":"n2","task":"...","deps":["n1"]}]}.
Keep ids short and unique; deps name ids of prerequisite sub-tasks.`

const expandPrompt = `A sub-task just completed. If its result calls for new
sub-tasks, respond with JSON {"nodes":[{"id":"...","task":"...","deps":["..."]}]}
naming only new ids. Respond with {"nodes":[]} if nothing should be added.`

const synthesizePrompt = "Combine the sub-task results into the final answer " +
	"for the user's request."

// TaskNode is one sub-task of the plan.
type TaskNode struct {
	ID   string   `json:"id"`
	Task string   `json:"task"`
	Deps []string `json:"deps,omitempty"`
}

// Plan is the task DAG produced by the plan node.
type Plan struct {
	Nodes []TaskNode `json:"nodes"`
}

// Options configures a GoT agent.
type Options struct {
	Model           model.Model
	MaxConcurrency  int
	MaxNodes        int
	EnableExpansion bool
	Saver           graph.CheckpointSaver
	MaxSteps        int
	SystemPrompt    string
	Middlewares     []graph.NodeMiddleware
	Name            string
}

// Option configures a GoT agent.
type Option func(*Options)

// WithModel sets the LLM collaborator. Required.
func WithModel(m model.Model) Option {
	return func(o *Options) { o.Model = m }
}

// WithMaxConcurrency bounds the fan-out of independent tasks.
func WithMaxConcurrency(n int) Option {
	return func(o *Options) { o.MaxConcurrency = n }
}

// WithMaxNodes caps the DAG size, including adaptive growth.
func WithMaxNodes(n int) Option {
	return func(o *Options) { o.MaxNodes = n }
}

// WithExpansion enables adaptive (AGoT) mid-run DAG growth.
func WithExpansion(enabled bool) Option {
	return func(o *Options) { o.EnableExpansion = enabled }
}

// WithCheckpointSaver enables checkpointing for runs that carry a thread ID.
func WithCheckpointSaver(s graph.CheckpointSaver) Option {
	return func(o *Options) { o.Saver = s }
}

// WithMaxSteps bounds the outer graph's node invocations.
func WithMaxSteps(n int) Option {
	return func(o *Options) { o.MaxSteps = n }
}

// WithSystemPrompt prepends a system message to the synthesis.
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

// Agent is a Graph-of-Thought agent.
type Agent struct {
	*agent.Runner
}

// New builds and compiles the GoT graph.
func New(opts ...Option) (*Agent, error) {
	o := Options{
		Name:           "got",
		MaxConcurrency: DefaultMaxConcurrency,
		MaxNodes:       DefaultMaxNodes,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Model == nil {
		return nil, errors.New("got: model is required")
	}
	if o.MaxConcurrency < 1 {
		o.MaxConcurrency = 1
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
		AddField(KeyPlan, graph.StateField{Type: reflect.TypeOf(&Plan{})}).
		AddField(KeyResults, graph.StateField{Type: reflect.TypeOf(map[string]string{})}).
		AddField(KeyFailed, graph.StateField{Type: reflect.TypeOf(map[string]string{})}).
		AddField(KeySkipped, graph.StateField{Type: reflect.TypeOf([]string{})})
}

func buildGraph(o *Options) (*graph.Graph, error) {
	return graph.NewStateGraph(schema()).
		AddNode(NodePlan, planNode(o), graph.WithNodeType(graph.NodeTypeLLM),
			graph.WithDescription("produce the sub-task DAG")).
		AddNode(NodeExecute, executeNode(o), graph.WithNodeType(graph.NodeTypeControl),
			graph.WithDescription("run the DAG in dependency order")).
		AddNode(NodeSynthesize, synthesizeNode(o), graph.WithNodeType(graph.NodeTypeLLM),
			graph.WithDescription("combine partial results into the reply")).
		SetEntryPoint(NodePlan).
		AddEdge(NodePlan, NodeExecute).
		AddEdge(NodeExecute, NodeSynthesize).
		SetFinishPoint(NodeSynthesize).
		Compile()
}

// planNode asks the model for the task DAG and validates it.
func planNode(o *Options) graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (graph.State, error) {
		ec, _ := graph.ExecContextFromState(state)
		userInput, _ := state[graph.StateKeyUserInput].(string)
		req := &model.Request{Messages: []model.Message{
			model.NewSystemMessage(planPrompt),
			model.NewUserMessage(userInput),
		}}
		msg, usage, err := agent.Generate(ctx, ec, o.Model, req, false)
		if err != nil {
			return nil, fmt.Errorf("plan: %w", err)
		}
		plan, err := parsePlan(msg.Content)
		if err != nil {
			return nil, fmt.Errorf("plan: %w", err)
		}
		arena, err := newArena(plan.Nodes, o.MaxNodes)
		if err != nil {
			return nil, fmt.Errorf("plan: %w", err)
		}
		if ec != nil {
			e := event.New(event.TypeGotPlan, event.GotPlan{
				NodeCount: len(arena.nodes),
				EdgeCount: arena.edgeCount(),
				NodeIDs:   arena.ids(),
			})
			if err := ec.Emit(ctx, e); err != nil {
				return nil, err
			}
		}
		return graph.State{
			KeyPlan:             plan,
			agent.KeyUsage:      usage,
			agent.KeyTotalUsage: usage,
		}, nil
	}
}

// executeNode runs the DAG: independent ready tasks fan out onto a bounded
// worker pool and join before any dependent starts.
func executeNode(o *Options) graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (graph.State, error) {
		ec, _ := graph.ExecContextFromState(state)
		plan, _ := state[KeyPlan].(*Plan)
		if plan == nil {
			return nil, errors.New("execute: no plan in state")
		}
		arena, err := newArena(plan.Nodes, o.MaxNodes)
		if err != nil {
			return nil, fmt.Errorf("execute: %w", err)
		}
		userInput, _ := state[graph.StateKeyUserInput].(string)
		run := &dagRun{
			opts:      o,
			ec:        ec,
			arena:     arena,
			userInput: userInput,
		}
		return run.run(ctx)
	}
}

// synthesizeNode combines results, failures and skips into the reply.
func synthesizeNode(o *Options) graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (graph.State, error) {
		ec, _ := graph.ExecContextFromState(state)
		userInput, _ := state[graph.StateKeyUserInput].(string)
		plan, _ := state[KeyPlan].(*Plan)
		results, _ := state[KeyResults].(map[string]string)
		failed, _ := state[KeyFailed].(map[string]string)
		skipped, _ := state[KeySkipped].([]string)

		var sb strings.Builder
		fmt.Fprintf(&sb, "Request: %s\n", userInput)
		if plan != nil {
			for _, n := range plan.Nodes {
				switch {
				case results[n.ID] != "":
					fmt.Fprintf(&sb, "Result of %s (%s): %s\n", n.ID, n.Task, results[n.ID])
				case failed[n.ID] != "":
					fmt.Fprintf(&sb, "Sub-task %s failed: %s\n", n.ID, failed[n.ID])
				}
			}
		}
		if len(skipped) > 0 {
			fmt.Fprintf(&sb, "Skipped sub-tasks: %s\n", strings.Join(skipped, ", "))
		}
		req := &model.Request{Messages: []model.Message{
			model.NewSystemMessage(synthesizePrompt),
			model.NewUserMessage(sb.String()),
		}}
		msg, usage, err := agent.Generate(ctx, ec, o.Model, req, true)
		if err != nil {
			return nil, fmt.Errorf("synthesize: %w", err)
		}
		return graph.State{
			graph.StateKeyLastResponse: msg.Content,
			graph.StateKeyMessages:     []model.Message{*msg},
			agent.KeyUsage:             usage,
			agent.KeyTotalUsage:        usage,
		}, nil
	}
}

// parsePlan extracts the JSON object from the model output.
func parsePlan(text string) (*Plan, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in %q", text)
	}
	var plan Plan
	if err := json.Unmarshal([]byte(text[start:end+1]), &plan); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	if len(plan.Nodes) == 0 {
		return nil, errors.New("plan has no sub-tasks")
	}
	return &plan, nil
}
