//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/weftlabs/weft/event"
	"github.com/weftlabs/weft/graph"
	"github.com/weftlabs/weft/log"
	"github.com/weftlabs/weft/model"
	"github.com/weftlabs/weft/tool"
)

// Router results used by the think/act loop.
const (
	// RouteTools routes to the tool execution node.
	RouteTools = "tools"
	// RouteEnd terminates the loop.
	RouteEnd = "end"
)

// Node IDs of the think/act loop.
const (
	NodeThink = "think"
	NodeAct   = "act"
)

// Generate drives one model generation to completion. Text deltas are
// streamed as message_chunk events and tool call fragments as
// tool_call_chunk events; the generation's usage is emitted as a usage
// event. It returns the aggregated assistant message.
//
// emitChunks suppresses message_chunk events for internal generations whose
// text is not part of the user-visible reply.
func Generate(ctx context.Context, ec *graph.ExecContext, m model.Model, req *model.Request, emitChunks bool) (*model.Message, event.Usage, error) {
	ch, err := m.GenerateContent(ctx, req)
	if err != nil {
		return nil, event.Usage{}, fmt.Errorf("generate content: %w", err)
	}
	msgID := uuid.NewString()
	for rsp := range ch {
		switch {
		case rsp.Done:
			if rsp.Err != nil {
				return nil, event.Usage{}, rsp.Err
			}
			if rsp.Message == nil {
				return nil, event.Usage{}, errors.New("model stream finished without a message")
			}
			var usage event.Usage
			if rsp.Usage != nil {
				usage = *rsp.Usage
			}
			if ec != nil {
				if err := ec.Emit(ctx, event.New(event.TypeUsage, usage)); err != nil {
					return nil, event.Usage{}, err
				}
			}
			return rsp.Message, usage, nil
		case rsp.Delta != "" && emitChunks && ec != nil:
			e := event.New(event.TypeMessageChunk, event.MessageChunk{Content: rsp.Delta, ID: msgID})
			if err := ec.Emit(ctx, e); err != nil {
				return nil, event.Usage{}, err
			}
		case rsp.ToolCallChunk != nil && ec != nil:
			e := event.New(event.TypeToolCallChunk, event.ToolCallChunk{
				CallID:         rsp.ToolCallChunk.CallID,
				Name:           rsp.ToolCallChunk.Name,
				ArgumentsDelta: rsp.ToolCallChunk.ArgumentsDelta,
			})
			if err := ec.Emit(ctx, e); err != nil {
				return nil, event.Usage{}, err
			}
		}
	}
	return nil, event.Usage{}, errors.New("model stream closed early")
}

// LLMNode returns the think node: one generation over the current message
// history, with the source's tools offered to the model. When the model
// replies without tool calls the reply becomes the run's last response.
func LLMNode(m model.Model, tools tool.Source) graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (graph.State, error) {
		ec, _ := graph.ExecContextFromState(state)
		msgs, _ := state[graph.StateKeyMessages].([]model.Message)
		req := &model.Request{Messages: msgs}
		if tools != nil {
			decls, err := tools.ListTools(ctx)
			if err != nil {
				return nil, fmt.Errorf("list tools: %w", err)
			}
			req.Tools = decls
		}
		msg, usage, err := Generate(ctx, ec, m, req, true)
		if err != nil {
			return nil, err
		}
		update := graph.State{
			graph.StateKeyMessages: []model.Message{*msg},
			KeyUsage:               usage,
			KeyTotalUsage:          usage,
		}
		if len(msg.ToolCalls) == 0 {
			update[graph.StateKeyLastResponse] = msg.Content
		}
		return update, nil
	}
}

// ToolsRouter routes to RouteTools while the last assistant message carries
// unanswered tool calls, otherwise to RouteEnd.
func ToolsRouter(ctx context.Context, state graph.State) (string, error) {
	if len(PendingToolCalls(state)) > 0 {
		return RouteTools, nil
	}
	return RouteEnd, nil
}

// PendingToolCalls returns the tool calls proposed by the most recent
// assistant message, or nil when the history ends in anything else.
func PendingToolCalls(state graph.State) []model.ToolCall {
	msgs, _ := state[graph.StateKeyMessages].([]model.Message)
	if len(msgs) == 0 {
		return nil
	}
	last := msgs[len(msgs)-1]
	if last.Role != model.RoleAssistant {
		return nil
	}
	return last.ToolCalls
}

// ToolsNode returns the act node: it executes every pending tool call in
// proposal order, streaming the tool lifecycle events, and merges the
// results into the message history.
//
// Destructive tools pass through the approval gate first. A denial, like any
// tool failure, becomes an is_error result surfaced to the model rather than
// a run failure.
func ToolsNode(src tool.Source, approver tool.Approver) graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (graph.State, error) {
		ec, _ := graph.ExecContextFromState(state)
		calls := PendingToolCalls(state)
		results := make([]model.Message, 0, len(calls))
		for _, call := range calls {
			content, isErr, err := executeCall(ctx, ec, src, approver, call)
			if err != nil {
				return nil, err
			}
			if isErr {
				log.Debugf("tool %s call %s failed: %s", call.Name, call.ID, content)
			}
			results = append(results, model.NewToolMessage(call.ID, call.Name, content))
		}
		return graph.State{graph.StateKeyMessages: results}, nil
	}
}

// executeCall runs one tool call through its lifecycle. The bool result
// reports a tool-level failure; the error return is reserved for run-level
// failures (emit or cancellation).
func executeCall(ctx context.Context, ec *graph.ExecContext, src tool.Source, approver tool.Approver, call model.ToolCall) (string, bool, error) {
	emit := func(eventType string, payload any) error {
		if ec == nil {
			return nil
		}
		return ec.Emit(ctx, event.New(eventType, payload))
	}
	if err := emit(event.TypeToolCall, event.ToolCall{
		CallID: call.ID, Name: call.Name, Arguments: call.Arguments,
	}); err != nil {
		return "", false, err
	}

	finish := func(result string, isErr bool) (string, bool, error) {
		err := emit(event.TypeToolEnd, event.ToolEnd{
			CallID: call.ID, Name: call.Name, Result: result, IsError: isErr,
		})
		return result, isErr, err
	}

	if src == nil {
		return finish("no tool source configured", true)
	}
	decl, err := tool.Find(ctx, src, call.Name)
	if err != nil {
		return finish(fmt.Sprintf("unknown tool %s", call.Name), true)
	}
	if decl.Destructive {
		if err := emit(event.TypeToolApproval, event.ToolApproval{
			CallID: call.ID, Name: call.Name, Arguments: call.Arguments,
		}); err != nil {
			return "", false, err
		}
		if approver == nil {
			return finish(fmt.Sprintf(
				"tool %s is destructive and no approver is configured: call denied", call.Name), true)
		}
		decision, err := approver.Approve(ctx, call.ID, call.Name, call.Arguments)
		if err != nil {
			return "", false, fmt.Errorf("approval of %s: %w", call.Name, err)
		}
		if decision != tool.Approved {
			return finish(fmt.Sprintf("tool call %s denied by approver", call.Name), true)
		}
	}

	if err := emit(event.TypeToolStart, event.ToolStart{CallID: call.ID, Name: call.Name}); err != nil {
		return "", false, err
	}
	output, callErr := src.Call(ctx, call.Name, call.Arguments)
	if callErr != nil {
		return finish(callErr.Error(), true)
	}
	if err := emit(event.TypeToolOutput, event.ToolOutput{
		CallID: call.ID, Name: call.Name, Content: output,
	}); err != nil {
		return "", false, err
	}
	return finish(output, false)
}
