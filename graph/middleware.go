//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"time"

	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/weftlabs/weft/log"
)

// NodeMiddleware observes node invocations. BeforeNode may derive a new
// context (for spans or deadlines); AfterNode receives the context returned
// by the chain, the node error and the elapsed wall time. Middleware must
// not mutate the state.
//
// BeforeNode hooks run in declaration order, AfterNode hooks in reverse.
type NodeMiddleware interface {
	BeforeNode(ctx context.Context, nodeID string, state State) context.Context
	AfterNode(ctx context.Context, nodeID string, state State, err error, elapsed time.Duration)
}

// LoggingMiddleware logs node enter/exit with latency.
type LoggingMiddleware struct{}

// BeforeNode implements NodeMiddleware.
func (LoggingMiddleware) BeforeNode(ctx context.Context, nodeID string, state State) context.Context {
	log.Debugf("node %s: enter", nodeID)
	return ctx
}

// AfterNode implements NodeMiddleware.
func (LoggingMiddleware) AfterNode(ctx context.Context, nodeID string, state State, err error, elapsed time.Duration) {
	if err != nil {
		log.Warnf("node %s: failed after %s: %v", nodeID, elapsed, err)
		return
	}
	log.Debugf("node %s: ok in %s", nodeID, elapsed)
}

// TracingMiddleware wraps each node invocation in an OpenTelemetry span.
type TracingMiddleware struct {
	Tracer trace.Tracer
}

// NewTracingMiddleware creates a tracing middleware on the global tracer
// provider.
func NewTracingMiddleware() *TracingMiddleware {
	return &TracingMiddleware{Tracer: otel.Tracer("github.com/weftlabs/weft/graph")}
}

// BeforeNode implements NodeMiddleware.
func (m *TracingMiddleware) BeforeNode(ctx context.Context, nodeID string, state State) context.Context {
	ctx, _ = m.Tracer.Start(ctx, "graph.node",
		trace.WithAttributes(attribute.String("graph.node.id", nodeID)))
	return ctx
}

// AfterNode implements NodeMiddleware.
func (m *TracingMiddleware) AfterNode(ctx context.Context, nodeID string, state State, err error, elapsed time.Duration) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
