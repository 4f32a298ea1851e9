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
	"sync"

	"github.com/weftlabs/weft/event"
)

// emitter stamps the per-run envelope on every event and delivers it to the
// run's stream channel. It is the single source of event ordering: event_id
// starts at 1 and increases by exactly 1 per emitted event, and node_id names
// the active node span.
//
// Node spans are identified as run-<node>-<seq>, where seq counts node_enter
// occurrences of that node within the run. Events emitted before the first
// node_enter carry the span id run-0.
//
// emit holds a mutex across the channel send so that stream order always
// matches event_id order, including under concurrent fan-out.
type emitter struct {
	sessionID string
	ch        chan *event.Event

	mu          sync.Mutex
	nextEventID uint64
	spanSeq     map[string]int
	activeSpan  string
}

func newEmitter(sessionID string, bufferSize int) *emitter {
	return &emitter{
		sessionID:   sessionID,
		ch:          make(chan *event.Event, bufferSize),
		nextEventID: 1,
		spanSeq:     make(map[string]int),
		activeSpan:  "run-0",
	}
}

// enterNode opens a new span for the node and returns its span id.
func (em *emitter) enterNode(nodeID string) string {
	em.mu.Lock()
	defer em.mu.Unlock()
	seq := em.spanSeq[nodeID]
	em.spanSeq[nodeID] = seq + 1
	em.activeSpan = fmt.Sprintf("run-%s-%d", nodeID, seq)
	return em.activeSpan
}

// exitNode closes the active span.
func (em *emitter) exitNode() {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.activeSpan = "run-0"
}

// emit stamps the envelope and delivers the event, honoring cancellation.
func (em *emitter) emit(ctx context.Context, e *event.Event) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCanceled, err)
	}
	em.mu.Lock()
	defer em.mu.Unlock()
	e.SessionID = em.sessionID
	e.NodeID = em.activeSpan
	e.EventID = em.nextEventID
	em.nextEventID++
	select {
	case em.ch <- e:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrCanceled, ctx.Err())
	}
}

func (em *emitter) close() {
	close(em.ch)
}

func (em *emitter) events() <-chan *event.Event {
	return em.ch
}
