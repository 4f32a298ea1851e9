//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

package got

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/panjf2000/ants/v2"

	"github.com/weftlabs/weft/agent"
	"github.com/weftlabs/weft/event"
	"github.com/weftlabs/weft/graph"
	"github.com/weftlabs/weft/log"
	"github.com/weftlabs/weft/model"
)

type taskStatus int

const (
	statusPending taskStatus = iota
	statusRunning
	statusDone
	statusFailed
	statusSkipped
)

// taskState is the mutable execution record of one arena node.
type taskState struct {
	node       TaskNode
	deps       []int
	dependents []int
	indegree   int
	status     taskStatus
	result     string
	failure    string
}

// arena is an index-addressed view of the DAG. The coordinator goroutine is
// its only writer during execution.
type arena struct {
	nodes []*taskState
	index map[string]int
}

// newArena validates nodes against the structural rules: unique non-empty
// IDs, deps that name existing nodes, no cycles, size within maxNodes.
func newArena(nodes []TaskNode, maxNodes int) (*arena, error) {
	a := &arena{index: make(map[string]int, len(nodes))}
	if err := a.add(nodes, maxNodes); err != nil {
		return nil, err
	}
	return a, nil
}

// add appends nodes to the arena and re-validates the whole DAG. New nodes
// may depend on existing or same-batch nodes; no existing node is rewired,
// so acyclicity only needs the global Kahn check.
func (a *arena) add(nodes []TaskNode, maxNodes int) error {
	if len(a.nodes)+len(nodes) > maxNodes {
		return fmt.Errorf("DAG exceeds %d nodes", maxNodes)
	}
	first := len(a.nodes)
	for _, n := range nodes {
		if n.ID == "" {
			return fmt.Errorf("sub-task with empty id")
		}
		if _, dup := a.index[n.ID]; dup {
			return fmt.Errorf("duplicate sub-task id %q", n.ID)
		}
		a.index[n.ID] = len(a.nodes)
		a.nodes = append(a.nodes, &taskState{node: n})
	}
	for i := first; i < len(a.nodes); i++ {
		ts := a.nodes[i]
		for _, dep := range ts.node.Deps {
			j, ok := a.index[dep]
			if !ok {
				return fmt.Errorf("sub-task %q depends on unknown %q", ts.node.ID, dep)
			}
			ts.deps = append(ts.deps, j)
			a.nodes[j].dependents = append(a.nodes[j].dependents, i)
		}
	}
	return a.checkAcyclic()
}

// checkAcyclic runs Kahn's algorithm over the full arena.
func (a *arena) checkAcyclic() error {
	indeg := make([]int, len(a.nodes))
	for i, ts := range a.nodes {
		indeg[i] = len(ts.deps)
	}
	queue := make([]int, 0, len(a.nodes))
	for i, d := range indeg {
		if d == 0 {
			queue = append(queue, i)
		}
	}
	seen := 0
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		seen++
		for _, j := range a.nodes[i].dependents {
			indeg[j]--
			if indeg[j] == 0 {
				queue = append(queue, j)
			}
		}
	}
	if seen != len(a.nodes) {
		return fmt.Errorf("sub-task DAG has a cycle")
	}
	return nil
}

func (a *arena) edgeCount() int {
	n := 0
	for _, ts := range a.nodes {
		n += len(ts.deps)
	}
	return n
}

func (a *arena) ids() []string {
	out := make([]string, len(a.nodes))
	for i, ts := range a.nodes {
		out[i] = ts.node.ID
	}
	return out
}

// completion is a worker's report back to the coordinator.
type completion struct {
	idx    int
	result string
	usage  event.Usage
	err    error
}

// dagRun executes one arena. The coordinator loop owns all arena state;
// workers only call the model and report a completion.
type dagRun struct {
	opts      *Options
	ec        *graph.ExecContext
	arena     *arena
	userInput string
}

func (r *dagRun) run(ctx context.Context) (graph.State, error) {
	pool, err := ants.NewPool(r.opts.MaxConcurrency)
	if err != nil {
		return nil, fmt.Errorf("execute: worker pool: %w", err)
	}
	defer pool.Release()

	done := make(chan completion, len(r.arena.nodes))
	running := 0
	var usage event.Usage

	// Seed indegrees from the current arena.
	for _, ts := range r.arena.nodes {
		ts.indegree = len(ts.deps)
	}

	for {
		for _, idx := range r.ready() {
			ts := r.arena.nodes[idx]
			ts.status = statusRunning
			running++
			if err := r.submit(ctx, pool, idx, done); err != nil {
				return nil, fmt.Errorf("execute: submit %q: %w", ts.node.ID, err)
			}
		}
		if running == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case c := <-done:
			running--
			usage = usage.Add(c.usage)
			if err := r.settle(ctx, c, &usage); err != nil {
				return nil, err
			}
		}
	}
	return r.finalState(usage), nil
}

// ready collects pending nodes whose dependencies are all satisfied.
func (r *dagRun) ready() []int {
	var out []int
	for i, ts := range r.arena.nodes {
		if ts.status == statusPending && ts.indegree == 0 {
			out = append(out, i)
		}
	}
	return out
}

func (r *dagRun) submit(ctx context.Context, pool *ants.Pool, idx int, done chan<- completion) error {
	ts := r.arena.nodes[idx]
	node := ts.node
	depResults := r.depResults(idx)
	return pool.Submit(func() {
		c := completion{idx: idx}
		c.result, c.usage, c.err = r.runTask(ctx, node, depResults)
		done <- c
	})
}

// runTask is the worker body. It emits got_node_start just before the model
// call so skipped nodes never produce a start event.
func (r *dagRun) runTask(ctx context.Context, node TaskNode, depResults string) (string, event.Usage, error) {
	if r.ec != nil {
		e := event.New(event.TypeGotNodeStart, event.GotNodeStart{ID: node.ID})
		if err := r.ec.Emit(ctx, e); err != nil {
			return "", event.Usage{}, err
		}
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Overall request: %s\nYour sub-task: %s\n", r.userInput, node.Task)
	if depResults != "" {
		fmt.Fprintf(&sb, "Results of prerequisite sub-tasks:\n%s", depResults)
	}
	req := &model.Request{Messages: []model.Message{
		model.NewSystemMessage("Carry out the sub-task. Answer concisely."),
		model.NewUserMessage(sb.String()),
	}}
	msg, usage, err := agent.Generate(ctx, r.ec, r.opts.Model, req, false)
	if err != nil {
		return "", usage, err
	}
	return msg.Content, usage, nil
}

func (r *dagRun) depResults(idx int) string {
	ts := r.arena.nodes[idx]
	var sb strings.Builder
	for _, j := range ts.deps {
		dep := r.arena.nodes[j]
		if dep.status == statusDone {
			fmt.Fprintf(&sb, "- %s: %s\n", dep.node.ID, dep.result)
		}
	}
	return sb.String()
}

// settle applies one completion: record the outcome, emit the lifecycle
// event, propagate skips on failure, release dependents on success, and
// grow the DAG in adaptive mode.
func (r *dagRun) settle(ctx context.Context, c completion, usage *event.Usage) error {
	ts := r.arena.nodes[c.idx]
	if c.err != nil {
		ts.status = statusFailed
		ts.failure = c.err.Error()
		log.Warnf("got: sub-task %s failed: %v", ts.node.ID, c.err)
		if r.ec != nil {
			e := event.New(event.TypeGotNodeFailed, event.GotNodeFailed{
				ID:    ts.node.ID,
				Error: c.err.Error(),
			})
			if err := r.ec.Emit(ctx, e); err != nil {
				return err
			}
		}
		r.skipDependents(c.idx)
		return nil
	}
	ts.status = statusDone
	ts.result = c.result
	if r.ec != nil {
		e := event.New(event.TypeGotNodeDone, event.GotNodeComplete{
			ID:            ts.node.ID,
			ResultSummary: summarize(c.result),
		})
		if err := r.ec.Emit(ctx, e); err != nil {
			return err
		}
	}
	for _, j := range ts.dependents {
		r.arena.nodes[j].indegree--
	}
	if r.opts.EnableExpansion && len(r.arena.nodes) < r.opts.MaxNodes {
		if err := r.expand(ctx, c.idx, usage); err != nil {
			return err
		}
	}
	return nil
}

// skipDependents marks the transitive closure of dependents as skipped.
func (r *dagRun) skipDependents(idx int) {
	stack := append([]int(nil), r.arena.nodes[idx].dependents...)
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		ts := r.arena.nodes[i]
		if ts.status != statusPending {
			continue
		}
		ts.status = statusSkipped
		stack = append(stack, ts.dependents...)
	}
}

// expand asks the model whether the completed task's result warrants new
// sub-tasks, and inserts them after structural validation. A malformed
// expansion is logged and dropped rather than failing the run.
func (r *dagRun) expand(ctx context.Context, idx int, usage *event.Usage) error {
	ts := r.arena.nodes[idx]
	var sb strings.Builder
	fmt.Fprintf(&sb, "Overall request: %s\nCompleted sub-task %s: %s\nResult: %s\n",
		r.userInput, ts.node.ID, ts.node.Task, ts.result)
	req := &model.Request{Messages: []model.Message{
		model.NewSystemMessage(expandPrompt),
		model.NewUserMessage(sb.String()),
	}}
	msg, u, err := agent.Generate(ctx, r.ec, r.opts.Model, req, false)
	if err != nil {
		return err
	}
	*usage = usage.Add(u)
	plan, err := parsePlan(msg.Content)
	if err != nil {
		// {"nodes":[]} parses as an empty plan, which parsePlan rejects.
		// Either way there is nothing to insert.
		return nil
	}
	before := len(r.arena.nodes)
	edgesBefore := r.arena.edgeCount()
	if err := r.arena.add(plan.Nodes, r.opts.MaxNodes); err != nil {
		log.Warnf("got: dropping invalid expansion after %s: %v", ts.node.ID, err)
		return nil
	}
	for i := before; i < len(r.arena.nodes); i++ {
		nt := r.arena.nodes[i]
		nt.indegree = 0
		for _, j := range nt.deps {
			dep := r.arena.nodes[j]
			switch dep.status {
			case statusDone:
			case statusFailed, statusSkipped:
				nt.status = statusSkipped
			default:
				nt.indegree++
			}
		}
	}
	if r.ec != nil {
		e := event.New(event.TypeGotExpand, event.GotExpand{
			NodeID:     ts.node.ID,
			NodesAdded: len(r.arena.nodes) - before,
			EdgesAdded: r.arena.edgeCount() - edgesBefore,
		})
		if err := r.ec.Emit(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *dagRun) finalState(usage event.Usage) graph.State {
	results := make(map[string]string)
	failed := make(map[string]string)
	var skipped []string
	for _, ts := range r.arena.nodes {
		switch ts.status {
		case statusDone:
			results[ts.node.ID] = ts.result
		case statusFailed:
			failed[ts.node.ID] = ts.failure
		case statusSkipped, statusPending:
			// A node still pending at drain time is unreachable through a
			// failed or skipped dependency chain.
			skipped = append(skipped, ts.node.ID)
		}
	}
	sort.Strings(skipped)
	return graph.State{
		KeyPlan:             &Plan{Nodes: r.planNodes()},
		KeyResults:          results,
		KeyFailed:           failed,
		KeySkipped:          skipped,
		agent.KeyUsage:      usage,
		agent.KeyTotalUsage: usage,
	}
}

// planNodes snapshots the arena, including adaptive growth, back into plan
// form so synthesis and checkpoints see the executed DAG.
func (r *dagRun) planNodes() []TaskNode {
	out := make([]TaskNode, len(r.arena.nodes))
	for i, ts := range r.arena.nodes {
		out[i] = ts.node
	}
	return out
}

func summarize(s string) string {
	const max = 120
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
