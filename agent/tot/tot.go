//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

// Package tot implements Tree-of-Thought search: expand proposes up to W
// candidate thoughts, evaluate scores them, and the search either advances
// with the best candidate, backtracks when a whole depth scores below the
// threshold, or synthesizes the final answer once the depth cap is reached.
package tot

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/weftlabs/weft/agent"
	"github.com/weftlabs/weft/event"
	"github.com/weftlabs/weft/graph"
	"github.com/weftlabs/weft/log"
	"github.com/weftlabs/weft/model"
)

// State keys of the search.
const (
	// KeyPath holds the chosen thoughts so far ([]string).
	KeyPath = "tot_path"
	// KeyCandidates holds the candidates of the current depth ([]string).
	KeyCandidates = "tot_candidates"
	// KeyScores holds the candidate scores ([]float32), same length and
	// order as KeyCandidates.
	KeyScores = "tot_scores"
	// KeyChosen holds the index of the selected candidate.
	KeyChosen = "tot_chosen"
	// KeyDepth holds the current search depth.
	KeyDepth = "tot_depth"
	// KeyBacktracks counts backtracking decisions.
	KeyBacktracks = "tot_backtracks"
	// keyNext carries the decide node's routing verdict.
	keyNext = "tot_next"
)

// Node IDs of the search graph.
const (
	NodeExpand   = "expand"
	NodeEvaluate = "evaluate"
	NodeDecide   = "decide"
	NodeFinalize = "finalize"
)

// ErrSearchExhausted is returned when the backtrack budget runs out without
// an acceptable path.
var ErrSearchExhausted = errors.New("tot: search exhausted")

// Defaults of the search caps.
const (
	DefaultWidth         = 3
	DefaultMaxDepth      = 3
	DefaultThreshold     = 0.5
	DefaultMaxBacktracks = 3
)

const expandPrompt = "Propose distinct next thoughts that make progress on the " +
	"problem, as a numbered list, one short thought per line. Output only the list."

const scorePrompt = "Rate how promising the last thought is for solving the " +
	"problem, as a single number between 0 and 1. Output only the number."

const finalizePrompt = "Write the final answer to the problem, following the " +
	"chain of thoughts."

// Options configures a ToT agent.
type Options struct {
	Model            model.Model
	Width            int
	MaxDepth         int
	Threshold        float32
	MaxBacktracks    int
	ScoreConcurrency int
	Saver            graph.CheckpointSaver
	MaxSteps         int
	SystemPrompt     string
	Middlewares      []graph.NodeMiddleware
	Name             string
}

// Option configures a ToT agent.
type Option func(*Options)

// WithModel sets the LLM collaborator. Required.
func WithModel(m model.Model) Option {
	return func(o *Options) { o.Model = m }
}

// WithWidth caps the candidates generated per depth.
func WithWidth(w int) Option {
	return func(o *Options) { o.Width = w }
}

// WithMaxDepth sets the length of a complete thought path.
func WithMaxDepth(d int) Option {
	return func(o *Options) { o.MaxDepth = d }
}

// WithThreshold sets the minimum acceptable candidate score.
func WithThreshold(v float32) Option {
	return func(o *Options) { o.Threshold = v }
}

// WithMaxBacktracks bounds backtracking before the search gives up.
func WithMaxBacktracks(n int) Option {
	return func(o *Options) { o.MaxBacktracks = n }
}

// WithScoreConcurrency scores up to n sibling candidates concurrently.
// Sibling scores have no data dependency; results are joined before the
// selection runs. The default is sequential.
func WithScoreConcurrency(n int) Option {
	return func(o *Options) { o.ScoreConcurrency = n }
}

// WithCheckpointSaver enables checkpointing for runs that carry a thread ID.
func WithCheckpointSaver(s graph.CheckpointSaver) Option {
	return func(o *Options) { o.Saver = s }
}

// WithMaxSteps bounds the search's node invocations.
func WithMaxSteps(n int) Option {
	return func(o *Options) { o.MaxSteps = n }
}

// WithSystemPrompt prepends a system message to the final synthesis.
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

// Agent is a Tree-of-Thought agent.
type Agent struct {
	*agent.Runner
}

// New builds and compiles the ToT graph.
func New(opts ...Option) (*Agent, error) {
	o := Options{
		Name:             "tot",
		Width:            DefaultWidth,
		MaxDepth:         DefaultMaxDepth,
		Threshold:        DefaultThreshold,
		MaxBacktracks:    DefaultMaxBacktracks,
		ScoreConcurrency: 1,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Model == nil {
		return nil, errors.New("tot: model is required")
	}
	if o.Width < 1 || o.MaxDepth < 1 {
		return nil, errors.New("tot: width and depth must be positive")
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
		AddField(KeyPath, graph.StateField{Type: reflect.TypeOf([]string{})}).
		AddField(KeyCandidates, graph.StateField{Type: reflect.TypeOf([]string{})}).
		AddField(KeyScores, graph.StateField{Type: reflect.TypeOf([]float32{})}).
		AddField(KeyChosen, graph.StateField{Type: reflect.TypeOf(0)}).
		AddField(KeyDepth, graph.StateField{Type: reflect.TypeOf(0)}).
		AddField(KeyBacktracks, graph.StateField{Type: reflect.TypeOf(0)})
}

func buildGraph(o *Options) (*graph.Graph, error) {
	return graph.NewStateGraph(schema()).
		AddNode(NodeExpand, expandNode(o), graph.WithNodeType(graph.NodeTypeLLM),
			graph.WithDescription("generate candidate thoughts")).
		AddNode(NodeEvaluate, evaluateNode(o), graph.WithNodeType(graph.NodeTypeLLM),
			graph.WithDescription("score candidates and pick the best")).
		AddNode(NodeDecide, decideNode(o), graph.WithNodeType(graph.NodeTypeControl),
			graph.WithDescription("advance, backtrack or finish")).
		AddNode(NodeFinalize, finalizeNode(o), graph.WithNodeType(graph.NodeTypeLLM),
			graph.WithDescription("synthesize the final answer")).
		SetEntryPoint(NodeExpand).
		AddEdge(NodeExpand, NodeEvaluate).
		AddEdge(NodeEvaluate, NodeDecide).
		AddConditionalEdges(NodeDecide, func(ctx context.Context, state graph.State) (string, error) {
			next, _ := state[keyNext].(string)
			return next, nil
		}, map[string]string{
			NodeExpand:   NodeExpand,
			NodeFinalize: NodeFinalize,
		}).
		SetFinishPoint(NodeFinalize).
		Compile()
}

// expandNode generates up to Width candidate thoughts at the current depth.
func expandNode(o *Options) graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (graph.State, error) {
		ec, _ := graph.ExecContextFromState(state)
		userInput, _ := state[graph.StateKeyUserInput].(string)
		path, _ := state[KeyPath].([]string)

		var sb strings.Builder
		fmt.Fprintf(&sb, "Problem: %s\n", userInput)
		if len(path) > 0 {
			sb.WriteString("Thoughts so far:\n")
			for i, thought := range path {
				fmt.Fprintf(&sb, "%d. %s\n", i+1, thought)
			}
		}
		req := &model.Request{Messages: []model.Message{
			model.NewSystemMessage(expandPrompt),
			model.NewUserMessage(sb.String()),
		}}
		msg, usage, err := agent.Generate(ctx, ec, o.Model, req, false)
		if err != nil {
			return nil, fmt.Errorf("expand: %w", err)
		}
		candidates := parseList(msg.Content)
		if len(candidates) == 0 {
			return nil, fmt.Errorf("expand: no candidates in %q", msg.Content)
		}
		if len(candidates) > o.Width {
			candidates = candidates[:o.Width]
		}
		if ec != nil {
			e := event.New(event.TypeTotExpand, event.TotExpand{Candidates: candidates})
			if err := ec.Emit(ctx, e); err != nil {
				return nil, err
			}
		}
		return graph.State{
			KeyCandidates:       candidates,
			agent.KeyUsage:      usage,
			agent.KeyTotalUsage: usage,
		}, nil
	}
}

// evaluateNode scores every candidate and selects the best one. Scoring
// calls are independent; they run with bounded concurrency and join before
// the selection. Ties break toward the first-generated candidate.
func evaluateNode(o *Options) graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (graph.State, error) {
		ec, _ := graph.ExecContextFromState(state)
		userInput, _ := state[graph.StateKeyUserInput].(string)
		path, _ := state[KeyPath].([]string)
		candidates, _ := state[KeyCandidates].([]string)

		scores := make([]float32, len(candidates))
		usages := make([]event.Usage, len(candidates))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(max(o.ScoreConcurrency, 1))
		for i, candidate := range candidates {
			g.Go(func() error {
				score, usage, err := scoreCandidate(gctx, ec, o.Model, userInput, path, candidate)
				if err != nil {
					return err
				}
				scores[i] = score
				usages[i] = usage
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("evaluate: %w", err)
		}

		chosen := 0
		for i, score := range scores {
			if score > scores[chosen] {
				chosen = i
			}
		}
		if ec != nil {
			e := event.New(event.TypeTotEvaluate, event.TotEvaluate{Chosen: chosen, Scores: scores})
			if err := ec.Emit(ctx, e); err != nil {
				return nil, err
			}
		}
		var total event.Usage
		for _, u := range usages {
			total = total.Add(u)
		}
		return graph.State{
			KeyScores:           scores,
			KeyChosen:           chosen,
			agent.KeyUsage:      total,
			agent.KeyTotalUsage: total,
		}, nil
	}
}

func scoreCandidate(ctx context.Context, ec *graph.ExecContext, m model.Model, userInput string, path []string, candidate string) (float32, event.Usage, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Problem: %s\n", userInput)
	for i, thought := range path {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, thought)
	}
	fmt.Fprintf(&sb, "Last thought: %s\n", candidate)
	req := &model.Request{Messages: []model.Message{
		model.NewSystemMessage(scorePrompt),
		model.NewUserMessage(sb.String()),
	}}
	msg, usage, err := agent.Generate(ctx, ec, m, req, false)
	if err != nil {
		return 0, event.Usage{}, err
	}
	score, err := parseScore(msg.Content)
	if err != nil {
		log.Warnf("tot: unparsable score %q, treating as 0", msg.Content)
		return 0, usage, nil
	}
	return score, usage, nil
}

// decideNode advances the path with the chosen candidate, backtracks when the
// whole depth scored below the threshold, and finishes at the depth cap.
func decideNode(o *Options) graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (graph.State, error) {
		ec, _ := graph.ExecContextFromState(state)
		path, _ := state[KeyPath].([]string)
		candidates, _ := state[KeyCandidates].([]string)
		scores, _ := state[KeyScores].([]float32)
		chosen, _ := state[KeyChosen].(int)
		depth, _ := state[KeyDepth].(int)
		backtracks, _ := state[KeyBacktracks].(int)

		backtrack := func(reason string, toDepth int) (graph.State, error) {
			if backtracks >= o.MaxBacktracks {
				return nil, fmt.Errorf("%w: %d backtracks", ErrSearchExhausted, backtracks)
			}
			if toDepth < 0 {
				toDepth = 0
			}
			if ec != nil {
				e := event.New(event.TypeTotBacktrack, event.TotBacktrack{Reason: reason, ToDepth: toDepth})
				if err := ec.Emit(ctx, e); err != nil {
					return nil, err
				}
			}
			return graph.State{
				KeyPath:       append([]string(nil), path[:toDepth]...),
				KeyDepth:      toDepth,
				KeyBacktracks: backtracks + 1,
				keyNext:       NodeExpand,
			}, nil
		}

		if depth > o.MaxDepth {
			return backtrack("depth cap exceeded", o.MaxDepth-1)
		}
		if scores[chosen] < o.Threshold {
			return backtrack("all candidates below threshold", depth-1)
		}

		path = append(append([]string(nil), path...), candidates[chosen])
		depth++
		next := NodeExpand
		if depth >= o.MaxDepth {
			next = NodeFinalize
		}
		return graph.State{
			KeyPath:  path,
			KeyDepth: depth,
			keyNext:  next,
		}, nil
	}
}

// finalizeNode synthesizes the answer from the completed thought path.
func finalizeNode(o *Options) graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (graph.State, error) {
		ec, _ := graph.ExecContextFromState(state)
		userInput, _ := state[graph.StateKeyUserInput].(string)
		path, _ := state[KeyPath].([]string)

		var sb strings.Builder
		fmt.Fprintf(&sb, "Problem: %s\nThoughts:\n", userInput)
		for i, thought := range path {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, thought)
		}
		req := &model.Request{Messages: []model.Message{
			model.NewSystemMessage(finalizePrompt),
			model.NewUserMessage(sb.String()),
		}}
		msg, usage, err := agent.Generate(ctx, ec, o.Model, req, true)
		if err != nil {
			return nil, fmt.Errorf("finalize: %w", err)
		}
		return graph.State{
			graph.StateKeyLastResponse: msg.Content,
			graph.StateKeyMessages:     []model.Message{*msg},
			agent.KeyUsage:             usage,
			agent.KeyTotalUsage:        usage,
		}, nil
	}
}

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

func parseScore(text string) (float32, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0, errors.New("empty score")
	}
	v, err := strconv.ParseFloat(strings.Trim(fields[0], ","), 32)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return float32(v), nil
}
