//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/weftlabs/weft/event"
	"github.com/weftlabs/weft/log"
)

// Default executor limits.
const (
	defaultMaxSteps          = 50
	defaultChannelBufferSize = 256
)

// ExecContext is the per-run context handed to node functions under
// StateKeyExecContext. It is the only way nodes emit events; the envelope
// (session, node span, event_id) is stamped centrally so ordering guarantees
// hold regardless of which goroutine emits.
type ExecContext struct {
	RunID    string
	ThreadID string
	em       *emitter
}

// Emit delivers an event into the run's stream.
func (ec *ExecContext) Emit(ctx context.Context, e *event.Event) error {
	return ec.em.emit(ctx, e)
}

// ExecContextFromState extracts the run's ExecContext, if present.
func ExecContextFromState(state State) (*ExecContext, bool) {
	ec, ok := state[StateKeyExecContext].(*ExecContext)
	return ec, ok
}

// Executor drives a compiled graph: the step loop invokes the current node,
// merges its partial update, emits events, checkpoints per policy and routes
// to the next node until End.
type Executor struct {
	graph *Graph
	opts  options
}

type options struct {
	maxSteps          int
	channelBufferSize int
	saver             CheckpointSaver
	policy            CheckpointPolicy
	middlewares       []NodeMiddleware
	agentName         string
}

// Option configures an Executor.
type Option func(*options)

// WithMaxSteps bounds the number of node invocations per run.
func WithMaxSteps(n int) Option {
	return func(o *options) { o.maxSteps = n }
}

// WithChannelBufferSize sets the event stream buffer size.
func WithChannelBufferSize(n int) Option {
	return func(o *options) { o.channelBufferSize = n }
}

// WithCheckpointSaver sets the checkpoint store. Checkpoints are written
// only for runs that carry a thread ID.
func WithCheckpointSaver(s CheckpointSaver) Option {
	return func(o *options) { o.saver = s }
}

// WithCheckpointPolicy overrides the default every-step policy.
func WithCheckpointPolicy(p CheckpointPolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithMiddlewares appends node middlewares, run in declaration order.
func WithMiddlewares(ms ...NodeMiddleware) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, ms...) }
}

// WithAgentName names the agent in run_start events.
func WithAgentName(name string) Option {
	return func(o *options) { o.agentName = name }
}

// NewExecutor creates an executor over a compiled graph.
func NewExecutor(g *Graph, opts ...Option) *Executor {
	o := options{
		maxSteps:          defaultMaxSteps,
		channelBufferSize: defaultChannelBufferSize,
		policy:            CheckpointEveryStep(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxSteps < 1 {
		o.maxSteps = defaultMaxSteps
	}
	return &Executor{graph: g, opts: o}
}

// RunOption configures one run.
type RunOption func(*runConfig)

type runConfig struct {
	runID        string
	threadID     string
	checkpointNS string
}

// WithRunID overrides the generated run ID.
func WithRunID(id string) RunOption {
	return func(c *runConfig) { c.runID = id }
}

// WithThreadID attaches the run to a persistent thread, enabling checkpoint
// resume and writes.
func WithThreadID(id string) RunOption {
	return func(c *runConfig) { c.threadID = id }
}

// WithCheckpointNS sets the checkpoint namespace recorded on snapshots.
func WithCheckpointNS(ns string) RunOption {
	return func(c *runConfig) { c.checkpointNS = ns }
}

// Execution is a handle on one in-flight run. Events is closed when the run
// terminates; Wait then reports the final state or the run error.
type Execution struct {
	RunID string

	events <-chan *event.Event
	done   chan struct{}

	finalState State
	err        error
}

// Events returns the run's ordered event stream.
func (ex *Execution) Events() <-chan *event.Event { return ex.events }

// Wait blocks until the run terminates and returns the final state. Exactly
// one of state and error is meaningful: a run either completes with a final
// state or fails with a single run-level error.
func (ex *Execution) Wait(ctx context.Context) (State, error) {
	select {
	case <-ex.done:
		return ex.finalState, ex.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Execute starts a run of the graph from the given initial state. The run
// proceeds on its own goroutine; the caller consumes Events and then Wait.
func (e *Executor) Execute(ctx context.Context, initial State, opts ...RunOption) *Execution {
	cfg := runConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.runID == "" {
		cfg.runID = "run-" + uuid.NewString()
	}
	em := newEmitter(cfg.runID, e.opts.channelBufferSize)
	ex := &Execution{
		RunID:  cfg.runID,
		events: em.events(),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(ex.done)
		defer em.close()
		ex.finalState, ex.err = e.run(ctx, em, initial, cfg)
		if ex.err != nil {
			log.Errorf("run %s failed: %v", cfg.runID, ex.err)
		}
	}()
	return ex
}

func (e *Executor) run(ctx context.Context, em *emitter, initial State, cfg runConfig) (State, error) {
	state, step, err := e.initialState(ctx, initial, cfg)
	if err != nil {
		return nil, err
	}
	state[StateKeyExecContext] = &ExecContext{RunID: cfg.runID, ThreadID: cfg.threadID, em: em}

	userInput, _ := state[StateKeyUserInput].(string)
	if err := em.emit(ctx, event.New(event.TypeRunStart, event.RunStart{
		RunID:   cfg.runID,
		Message: userInput,
		Agent:   e.opts.agentName,
	})); err != nil {
		return nil, err
	}

	current := e.graph.EntryPoint()
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCanceled, err)
		}
		step++
		if step > e.opts.maxSteps {
			return nil, fmt.Errorf("%w: %d steps", ErrStepBudgetExceeded, e.opts.maxSteps)
		}

		node, ok := e.graph.Node(current)
		if !ok {
			return nil, fmt.Errorf("graph: unknown node %s", current)
		}

		em.enterNode(current)
		if err := em.emit(ctx, event.New(event.TypeNodeEnter, event.NodeEnter{ID: current})); err != nil {
			return nil, err
		}
		update, nodeErr := e.invokeNode(ctx, node, state)

		if nodeErr != nil {
			if emitErr := em.emit(ctx, event.New(event.TypeNodeExit, event.NodeExit{
				ID:     current,
				Result: event.NodeResult{Err: nodeErr.Error()},
			})); emitErr != nil {
				return nil, emitErr
			}
			em.exitNode()
			target, recovered := e.graph.errorEdge(current)
			if !recovered {
				return nil, &NodeError{NodeID: current, Err: nodeErr}
			}
			errUpdate := State{
				StateKeyLastError: nodeErr.Error(),
				StateKeyErrorNode: current,
			}
			state = e.graph.Schema().ApplyUpdate(state, errUpdate)
			if err := em.emit(ctx, event.New(event.TypeUpdates, event.Updates{
				ID:    current,
				State: exportableState(errUpdate),
			})); err != nil {
				return nil, err
			}
			if target == End {
				return e.finish(ctx, em, state)
			}
			current = target
			continue
		}

		if update != nil {
			state = e.graph.Schema().ApplyUpdate(state, update)
			if err := em.emit(ctx, event.New(event.TypeUpdates, event.Updates{
				ID:    current,
				State: exportableState(update),
			})); err != nil {
				return nil, err
			}
		}
		if err := em.emit(ctx, event.New(event.TypeNodeExit, event.NodeExit{
			ID:     current,
			Result: event.NodeResult{},
		})); err != nil {
			return nil, err
		}
		em.exitNode()

		if err := e.maybeCheckpoint(ctx, em, state, step, cfg); err != nil {
			return nil, err
		}

		next, err := e.route(ctx, current, state)
		if err != nil {
			return nil, err
		}
		if next == End {
			return e.finish(ctx, em, state)
		}
		current = next
	}
}

// initialState resolves the starting state and step counter, consulting the
// checkpoint store when the run carries a thread ID.
func (e *Executor) initialState(ctx context.Context, initial State, cfg runConfig) (State, int, error) {
	if initial == nil {
		initial = State{}
	}
	if e.opts.saver == nil || cfg.threadID == "" {
		return initial.Clone(), 0, nil
	}
	cp, err := e.opts.saver.LoadLatest(ctx, cfg.threadID)
	if err != nil {
		return nil, 0, &CheckpointError{ThreadID: cfg.threadID, Err: err}
	}
	if cp == nil {
		return initial.Clone(), 0, nil
	}
	log.Debugf("run resumes thread %s from checkpoint %s step %d",
		cfg.threadID, cp.CheckpointID, cp.Step)
	return e.graph.Schema().ApplyUpdate(cp.State, initial), cp.Step, nil
}

func (e *Executor) invokeNode(ctx context.Context, node *Node, state State) (update State, err error) {
	nodeCtx := ctx
	for _, m := range e.opts.middlewares {
		nodeCtx = m.BeforeNode(nodeCtx, node.ID, state)
	}
	start := time.Now()
	update, err = node.Function(nodeCtx, state)
	elapsed := time.Since(start)
	for i := len(e.opts.middlewares) - 1; i >= 0; i-- {
		e.opts.middlewares[i].AfterNode(nodeCtx, node.ID, state, err, elapsed)
	}
	return update, err
}

func (e *Executor) maybeCheckpoint(ctx context.Context, em *emitter, state State, step int, cfg runConfig) error {
	if e.opts.saver == nil || cfg.threadID == "" || !e.opts.policy(step) {
		return nil
	}
	cp := &Checkpoint{
		ThreadID:     cfg.threadID,
		CheckpointID: uuid.NewString(),
		Step:         step,
		Timestamp:    time.Now().UTC(),
		CheckpointNS: cfg.checkpointNS,
		State:        exportableState(state),
	}
	if err := e.opts.saver.Save(ctx, cp); err != nil {
		return &CheckpointError{ThreadID: cfg.threadID, Step: step, Err: err}
	}
	return em.emit(ctx, event.New(event.TypeCheckpoint, event.Checkpoint{
		CheckpointID: cp.CheckpointID,
		Timestamp:    cp.Timestamp,
		Step:         cp.Step,
		State:        cp.State,
		ThreadID:     cp.ThreadID,
		CheckpointNS: cp.CheckpointNS,
	}))
}

// route resolves the outgoing edge of the node just executed.
func (e *Executor) route(ctx context.Context, current string, state State) (string, error) {
	if ce, ok := e.graph.conditionalEdge(current); ok {
		result, err := ce.Router(ctx, state)
		if err != nil {
			return "", fmt.Errorf("graph: router of %s: %w", current, err)
		}
		if ce.PathMap != nil {
			target, ok := ce.PathMap[result]
			if !ok {
				return "", fmt.Errorf("graph: router of %s returned %q, not in path map", current, result)
			}
			return target, nil
		}
		return result, nil
	}
	if to, ok := e.graph.edge(current); ok {
		return to, nil
	}
	return "", fmt.Errorf("%w: node %s", ErrNoRoute, current)
}

// finish emits the terminal snapshot and reply, then returns the final state.
func (e *Executor) finish(ctx context.Context, em *emitter, state State) (State, error) {
	final := exportableState(state)
	if err := em.emit(ctx, event.New(event.TypeValues, event.Values{State: final})); err != nil {
		return nil, err
	}
	reply, _ := state[StateKeyLastResponse].(string)
	if err := em.emit(ctx, event.New(event.TypeReply, event.Reply{Reply: reply})); err != nil {
		return nil, err
	}
	return final, nil
}

// exportableState strips run-local values that must not appear in serialized
// snapshots or update events.
func exportableState(state State) State {
	out := make(State, len(state))
	for k, v := range state {
		if k == StateKeyExecContext {
			continue
		}
		out[k] = v
	}
	return out
}
