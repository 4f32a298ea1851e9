//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

package graph

import "context"

// Virtual node identifiers used for routing.
const (
	// Start is the virtual entry marker.
	Start = "__start__"
	// End is the virtual terminal marker.
	End = "__end__"
)

// NodeType classifies a node. The type is informational and affects only
// which events the node is expected to emit.
type NodeType string

// Node types.
const (
	NodeTypeLLM     NodeType = "llm"
	NodeTypeTool    NodeType = "tool"
	NodeTypeControl NodeType = "control"
)

// NodeFunc is one unit of computation: it receives the full state and
// returns a partial update (the subset of channels it changed), or an error.
// A nil update is legal and merges nothing.
type NodeFunc func(ctx context.Context, state State) (State, error)

// RouterFunc resolves the next node for a conditional edge. The returned
// value is looked up in the edge's path map when one is set, otherwise it is
// taken as the target node ID directly. Returning End terminates the run.
type RouterFunc func(ctx context.Context, state State) (string, error)

// Node is a named unit of computation within a compiled graph.
type Node struct {
	ID          string
	Name        string
	Description string
	Function    NodeFunc
	Type        NodeType
}

// Edge is an unconditional transition between two nodes.
type Edge struct {
	From string
	To   string
}

// ConditionalEdge routes from one node by invoking a router over the state.
type ConditionalEdge struct {
	From    string
	Router  RouterFunc
	PathMap map[string]string
}

// Graph is the immutable, executable form produced by StateGraph.Compile.
// It is safe for concurrent reads and reusable across runs.
type Graph struct {
	schema           *StateSchema
	nodes            map[string]*Node
	edges            map[string]string
	conditionalEdges map[string]*ConditionalEdge
	errorEdges       map[string]string
	entryPoint       string
}

// Schema returns the graph's state schema.
func (g *Graph) Schema() *StateSchema { return g.schema }

// EntryPoint returns the ID of the entry node.
func (g *Graph) EntryPoint() string { return g.entryPoint }

// Node looks up a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// NodeIDs returns the IDs of all nodes.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	return ids
}

// edge returns the unconditional target of a node, if any.
func (g *Graph) edge(from string) (string, bool) {
	to, ok := g.edges[from]
	return to, ok
}

// conditionalEdge returns the conditional edge of a node, if any.
func (g *Graph) conditionalEdge(from string) (*ConditionalEdge, bool) {
	ce, ok := g.conditionalEdges[from]
	return ce, ok
}

// errorEdge returns the error-routing target of a node, if any.
func (g *Graph) errorEdge(from string) (string, bool) {
	to, ok := g.errorEdges[from]
	return to, ok
}
