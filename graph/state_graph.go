//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

package graph

import "fmt"

// StateGraph builds a Graph with a fluent API. Problems found while adding
// nodes and edges are accumulated and reported together by Compile, so
// builder calls can be chained without per-call error checks.
type StateGraph struct {
	schema           *StateSchema
	nodes            map[string]*Node
	edges            map[string]string
	conditionalEdges map[string]*ConditionalEdge
	errorEdges       map[string]string
	entryPoint       string
	problems         []string
}

// NewStateGraph creates a builder over the given state schema. A nil schema
// is replaced with an empty one.
func NewStateGraph(schema *StateSchema) *StateGraph {
	if schema == nil {
		schema = NewStateSchema()
	}
	return &StateGraph{
		schema:           schema,
		nodes:            make(map[string]*Node),
		edges:            make(map[string]string),
		conditionalEdges: make(map[string]*ConditionalEdge),
		errorEdges:       make(map[string]string),
	}
}

// NodeOption configures a node added with AddNode.
type NodeOption func(*Node)

// WithName sets a human-readable node name.
func WithName(name string) NodeOption {
	return func(n *Node) { n.Name = name }
}

// WithDescription sets the node description.
func WithDescription(desc string) NodeOption {
	return func(n *Node) { n.Description = desc }
}

// WithNodeType sets the node's informational type.
func WithNodeType(t NodeType) NodeOption {
	return func(n *Node) { n.Type = t }
}

// AddNode registers a node under a unique ID.
func (sg *StateGraph) AddNode(id string, fn NodeFunc, opts ...NodeOption) *StateGraph {
	switch {
	case id == "" || id == Start || id == End:
		sg.problem("invalid node id %q", id)
	case fn == nil:
		sg.problem("node %s has a nil function", id)
	default:
		if _, exists := sg.nodes[id]; exists {
			sg.problem("duplicate node id %s", id)
			break
		}
		node := &Node{ID: id, Name: id, Function: fn, Type: NodeTypeControl}
		for _, opt := range opts {
			opt(node)
		}
		sg.nodes[id] = node
	}
	return sg
}

// AddEdge registers an unconditional edge. The target may be End.
func (sg *StateGraph) AddEdge(from, to string) *StateGraph {
	if from == Start {
		return sg.SetEntryPoint(to)
	}
	if _, exists := sg.edges[from]; exists {
		sg.problem("node %s already has an unconditional edge", from)
		return sg
	}
	sg.edges[from] = to
	return sg
}

// AddConditionalEdges registers a router on a node. When pathMap is non-nil
// the router's result is translated through it; otherwise the result is used
// as the target node ID directly.
func (sg *StateGraph) AddConditionalEdges(from string, router RouterFunc, pathMap map[string]string) *StateGraph {
	if router == nil {
		sg.problem("conditional edge from %s has a nil router", from)
		return sg
	}
	if _, exists := sg.conditionalEdges[from]; exists {
		sg.problem("node %s already has a conditional edge", from)
		return sg
	}
	sg.conditionalEdges[from] = &ConditionalEdge{From: from, Router: router, PathMap: pathMap}
	return sg
}

// AddErrorEdge registers the target followed when the node's function fails.
// Without an error edge a node failure aborts the run.
func (sg *StateGraph) AddErrorEdge(from, to string) *StateGraph {
	if _, exists := sg.errorEdges[from]; exists {
		sg.problem("node %s already has an error edge", from)
		return sg
	}
	sg.errorEdges[from] = to
	return sg
}

// SetEntryPoint names the node the executor starts from.
func (sg *StateGraph) SetEntryPoint(id string) *StateGraph {
	if sg.entryPoint != "" && sg.entryPoint != id {
		sg.problem("entry point already set to %s", sg.entryPoint)
		return sg
	}
	sg.entryPoint = id
	return sg
}

// SetFinishPoint routes a node unconditionally to End.
func (sg *StateGraph) SetFinishPoint(id string) *StateGraph {
	return sg.AddEdge(id, End)
}

// Compile validates the builder and freezes it into an immutable Graph.
func (sg *StateGraph) Compile() (*Graph, error) {
	problems := append([]string(nil), sg.problems...)
	addProblem := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if sg.entryPoint == "" {
		addProblem("entry point not set")
	} else if _, ok := sg.nodes[sg.entryPoint]; !ok {
		addProblem("entry point %s is not a node", sg.entryPoint)
	}
	for from, to := range sg.edges {
		if _, ok := sg.nodes[from]; !ok {
			addProblem("edge source %s is not a node", from)
		}
		if _, ok := sg.nodes[to]; !ok && to != End {
			addProblem("edge %s -> %s targets unknown node", from, to)
		}
		if _, ok := sg.conditionalEdges[from]; ok {
			addProblem("node %s has both an unconditional and a conditional edge", from)
		}
	}
	for from, ce := range sg.conditionalEdges {
		if _, ok := sg.nodes[from]; !ok {
			addProblem("conditional edge source %s is not a node", from)
		}
		for result, to := range ce.PathMap {
			if _, ok := sg.nodes[to]; !ok && to != End {
				addProblem("conditional path %s -> %s targets unknown node", result, to)
			}
		}
	}
	for from, to := range sg.errorEdges {
		if _, ok := sg.nodes[from]; !ok {
			addProblem("error edge source %s is not a node", from)
		}
		if _, ok := sg.nodes[to]; !ok && to != End {
			addProblem("error edge %s -> %s targets unknown node", from, to)
		}
	}
	if len(problems) > 0 {
		return nil, &BuildError{Problems: problems}
	}

	g := &Graph{
		schema:           sg.schema,
		nodes:            make(map[string]*Node, len(sg.nodes)),
		edges:            make(map[string]string, len(sg.edges)),
		conditionalEdges: make(map[string]*ConditionalEdge, len(sg.conditionalEdges)),
		errorEdges:       make(map[string]string, len(sg.errorEdges)),
		entryPoint:       sg.entryPoint,
	}
	for id, n := range sg.nodes {
		copied := *n
		g.nodes[id] = &copied
	}
	for from, to := range sg.edges {
		g.edges[from] = to
	}
	for from, ce := range sg.conditionalEdges {
		copied := *ce
		g.conditionalEdges[from] = &copied
	}
	for from, to := range sg.errorEdges {
		g.errorEdges[from] = to
	}
	return g, nil
}

// MustCompile is Compile that panics on error. For graphs whose shape is
// fixed at program start.
func (sg *StateGraph) MustCompile() *Graph {
	g, err := sg.Compile()
	if err != nil {
		panic(err)
	}
	return g
}

func (sg *StateGraph) problem(format string, args ...any) {
	sg.problems = append(sg.problems, fmt.Sprintf(format, args...))
}
