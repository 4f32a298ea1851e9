//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlabs/weft/agent/react"
	"github.com/weftlabs/weft/event"
	"github.com/weftlabs/weft/model/mock"
	"github.com/weftlabs/weft/store"
	"github.com/weftlabs/weft/tool"
)

// frame is the loose decoding of any server response.
type frame struct {
	Type     string              `json:"type"`
	ID       string              `json:"id"`
	Error    string              `json:"error"`
	Reply    string              `json:"reply"`
	ThreadID string              `json:"thread_id"`
	Messages []store.UserMessage `json:"messages"`
	HasMore  bool                `json:"has_more"`
	Tools    []tool.Declaration  `json:"tools"`
	Tool     tool.Declaration    `json:"tool"`
	Event    *event.Event        `json:"event"`
	Usage    *event.Usage        `json:"usage"`
}

func dial(t *testing.T, opts ...Option) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(New(opts...).Handler())
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, req string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(req)))
}

func recv(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestPingPong(t *testing.T) {
	conn := dial(t)
	send(t, conn, `{"type":"ping","id":"p1"}`)
	f := recv(t, conn)
	assert.Equal(t, "pong", f.Type)
	assert.Equal(t, "p1", f.ID)
}

func TestMalformedFrameKeepsConnectionUsable(t *testing.T) {
	conn := dial(t)
	send(t, conn, `{"type": "ping", "id":`)
	f := recv(t, conn)
	assert.Equal(t, "error", f.Type)
	assert.Empty(t, f.ID)

	// The next request on the same connection still works.
	send(t, conn, `{"type":"ping","id":"p2"}`)
	f = recv(t, conn)
	assert.Equal(t, "pong", f.Type)
	assert.Equal(t, "p2", f.ID)
}

func TestUserMessagesWithoutStore(t *testing.T) {
	conn := dial(t)
	send(t, conn, `{"type":"user_messages","id":"u1","thread_id":"t1"}`)
	f := recv(t, conn)
	assert.Equal(t, "user_messages", f.Type)
	assert.Equal(t, "u1", f.ID)
	assert.Equal(t, "t1", f.ThreadID)
	assert.NotNil(t, f.Messages)
	assert.Empty(t, f.Messages)
	assert.False(t, f.HasMore)
}

func TestToolsListAndShow(t *testing.T) {
	reg := tool.NewRegistry().
		Register(tool.Declaration{Name: "get_time", Description: "current time"}, nil).
		Register(tool.Declaration{Name: "delete_file", Destructive: true}, nil)
	conn := dial(t, WithTools(reg))

	send(t, conn, `{"type":"tools_list","id":"l1"}`)
	f := recv(t, conn)
	assert.Equal(t, "tools_list", f.Type)
	require.Len(t, f.Tools, 2)
	assert.Equal(t, "delete_file", f.Tools[0].Name)
	assert.Equal(t, "get_time", f.Tools[1].Name)

	send(t, conn, `{"type":"tool_show","id":"s1","name":"get_time"}`)
	f = recv(t, conn)
	assert.Equal(t, "tool_show", f.Type)
	assert.Equal(t, "get_time", f.Tool.Name)
	assert.Equal(t, "current time", f.Tool.Description)

	send(t, conn, `{"type":"tool_show","id":"s2","name":"ghost"}`)
	f = recv(t, conn)
	assert.Equal(t, "error", f.Type)
	assert.Equal(t, "s2", f.ID)
	assert.Contains(t, f.Error, "not found")
}

func timeAgent(t *testing.T) (*react.Agent, *tool.Registry) {
	t.Helper()
	reg := tool.NewRegistry().Register(
		tool.Declaration{Name: "get_time", Description: "current time"},
		func(context.Context, json.RawMessage) (string, error) { return "10:00", nil },
	)
	m := mock.New(
		mock.ToolCallTurn("call-1", "get_time", `{}`),
		mock.ReplyTurn("It is 10:00."),
	)
	a, err := react.New(react.WithModel(m), react.WithTools(reg))
	require.NoError(t, err)
	return a, reg
}

func TestRunStreamsEventsThenRunEnd(t *testing.T) {
	a, reg := timeAgent(t)
	mem := store.NewMemory()
	conn := dial(t, WithAgent(a), WithTools(reg), WithStore(mem))

	send(t, conn, `{"type":"run","id":"r1","message":"What time is it?","thread_id":"t1"}`)

	var types []string
	var lastEventID uint64
	for {
		f := recv(t, conn)
		if f.Type == "run_end" {
			assert.Equal(t, "r1", f.ID)
			assert.Equal(t, "It is 10:00.", f.Reply)
			require.NotNil(t, f.Usage)
			assert.NotZero(t, f.Usage.TotalTokens)
			break
		}
		require.Equal(t, "run_stream_event", f.Type)
		assert.Equal(t, "r1", f.ID)
		require.NotNil(t, f.Event)
		assert.NotEqual(t, event.TypeReply, f.Event.Type, "reply folds into run_end")
		if f.Event.EventID != 0 {
			assert.Equal(t, lastEventID+1, f.Event.EventID)
			lastEventID = f.Event.EventID
		}
		types = append(types, f.Event.Type)
	}

	for _, want := range []string{
		event.TypeRunStart, event.TypeNodeEnter, event.TypeToolCall,
		event.TypeToolStart, event.TypeToolOutput, event.TypeToolEnd,
		event.TypeMessageChunk, event.TypeValues,
	} {
		assert.Contains(t, types, want)
	}

	// The initial user message landed in the thread's store.
	page, err := mem.UserMessages(context.Background(), "t1", 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "What time is it?", page.Messages[0].Content)

	// The connection serves follow-up requests after a run.
	send(t, conn, `{"type":"ping","id":"p1"}`)
	f := recv(t, conn)
	assert.Equal(t, "pong", f.Type)
}

func TestRunErrorYieldsSingleErrorResponse(t *testing.T) {
	m := mock.New(mock.Turn{Err: errors.New("model down")})
	a, err := react.New(react.WithModel(m))
	require.NoError(t, err)
	conn := dial(t, WithAgent(a))

	send(t, conn, `{"type":"run","id":"r1","message":"hello"}`)
	f := recv(t, conn)
	for f.Type == "run_stream_event" {
		f = recv(t, conn)
	}
	assert.Equal(t, "error", f.Type)
	assert.Equal(t, "r1", f.ID)
	assert.Contains(t, f.Error, "model down")

	send(t, conn, `{"type":"ping","id":"p1"}`)
	f = recv(t, conn)
	assert.Equal(t, "pong", f.Type)
}

func TestUnknownRequestType(t *testing.T) {
	conn := dial(t)
	send(t, conn, `{"type":"teleport","id":"x1"}`)
	f := recv(t, conn)
	assert.Equal(t, "error", f.Type)
	assert.Equal(t, "x1", f.ID)
}

func TestRunWithoutAgent(t *testing.T) {
	conn := dial(t)
	send(t, conn, `{"type":"run","id":"r1","message":"hi"}`)
	f := recv(t, conn)
	assert.Equal(t, "error", f.Type)
	assert.Contains(t, f.Error, "no agent")
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(New().Handler())
	defer srv.Close()
	rsp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer rsp.Body.Close()
	assert.Equal(t, http.StatusOK, rsp.StatusCode)
}
