//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

// Package server exposes agent runs over a WebSocket transport. One JSON
// request per text frame; requests are served one at a time per connection,
// and a malformed frame produces a single error response without closing
// the connection.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/weftlabs/weft/agent"
	"github.com/weftlabs/weft/event"
	"github.com/weftlabs/weft/log"
	"github.com/weftlabs/weft/store"
	"github.com/weftlabs/weft/tool"
)

// Options configures a Server.
type Options struct {
	Agent          agent.Agent
	Tools          tool.Source
	Store          store.Store
	AllowedOrigins []string
}

// Option configures a Server.
type Option func(*Options)

// WithAgent sets the agent that serves run requests.
func WithAgent(a agent.Agent) Option {
	return func(o *Options) { o.Agent = a }
}

// WithTools sets the tool source behind tools_list and tool_show.
func WithTools(src tool.Source) Option {
	return func(o *Options) { o.Tools = src }
}

// WithStore sets the user-message store. Without one, run requests skip
// message persistence and user_messages requests return empty pages.
func WithStore(s store.Store) Option {
	return func(o *Options) { o.Store = s }
}

// WithAllowedOrigins sets the CORS allow-list. Empty allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(o *Options) { o.AllowedOrigins = origins }
}

// Server is the WebSocket transport over one configured agent.
type Server struct {
	opts     Options
	upgrader websocket.Upgrader
}

// New creates a server.
func New(opts ...Option) *Server {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		opts: o,
		upgrader: websocket.Upgrader{
			// Cross-origin policy is enforced by the CORS middleware.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP handler: the upgrade endpoint at /ws and a
// liveness probe at /healthz.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWS)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	c := cors.New(cors.Options{AllowedOrigins: s.opts.AllowedOrigins})
	return c.Handler(r)
}

// ListenAndServe serves the handler on addr until the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	log.Infof("weft server listening on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debugf("websocket read: %v", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			s.writeError(conn, "", errors.New("expected a text frame"))
			continue
		}
		if err := s.serveRequest(ctx, conn, raw); err != nil {
			log.Warnf("websocket write: %v", err)
			return
		}
	}
}

// request is the client frame. Fields beyond type and id apply per kind.
type request struct {
	Type string `json:"type"`
	ID   string `json:"id"`

	// run
	Message  string `json:"message,omitempty"`
	ThreadID string `json:"thread_id,omitempty"`

	// tool_show
	Name string `json:"name,omitempty"`

	// user_messages (thread_id shared with run)
	Before int64 `json:"before,omitempty"`
	Limit  int   `json:"limit,omitempty"`
}

type pongResponse struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

type errorResponse struct {
	Type  string `json:"type"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error"`
}

type toolsListResponse struct {
	Type  string             `json:"type"`
	ID    string             `json:"id,omitempty"`
	Tools []tool.Declaration `json:"tools"`
}

type toolShowResponse struct {
	Type string           `json:"type"`
	ID   string           `json:"id,omitempty"`
	Tool tool.Declaration `json:"tool"`
}

type userMessagesResponse struct {
	Type     string              `json:"type"`
	ID       string              `json:"id,omitempty"`
	ThreadID string              `json:"thread_id"`
	Messages []store.UserMessage `json:"messages"`
	HasMore  bool                `json:"has_more"`
}

type runStreamEvent struct {
	Type  string       `json:"type"`
	ID    string       `json:"id,omitempty"`
	Event *event.Event `json:"event"`
}

type runEnd struct {
	Type       string       `json:"type"`
	ID         string       `json:"id,omitempty"`
	Reply      string       `json:"reply"`
	Usage      *event.Usage `json:"usage,omitempty"`
	TotalUsage *event.Usage `json:"total_usage,omitempty"`
}

// serveRequest handles one frame start to finish. Its error return reports
// a failed write, which ends the connection; request-level failures are
// answered with an error response instead.
func (s *Server) serveRequest(ctx context.Context, conn *websocket.Conn, raw []byte) error {
	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		return s.writeError(conn, "", errors.New("malformed request frame"))
	}
	switch req.Type {
	case "ping":
		return conn.WriteJSON(pongResponse{Type: "pong", ID: req.ID})
	case "tools_list":
		return s.serveToolsList(ctx, conn, &req)
	case "tool_show":
		return s.serveToolShow(ctx, conn, &req)
	case "user_messages":
		return s.serveUserMessages(ctx, conn, &req)
	case "run":
		return s.serveRun(ctx, conn, &req)
	default:
		return s.writeError(conn, req.ID, errors.New("unknown request type"))
	}
}

func (s *Server) serveToolsList(ctx context.Context, conn *websocket.Conn, req *request) error {
	decls := []tool.Declaration{}
	if s.opts.Tools != nil {
		var err error
		if decls, err = s.opts.Tools.ListTools(ctx); err != nil {
			return s.writeError(conn, req.ID, err)
		}
	}
	return conn.WriteJSON(toolsListResponse{Type: "tools_list", ID: req.ID, Tools: decls})
}

func (s *Server) serveToolShow(ctx context.Context, conn *websocket.Conn, req *request) error {
	if s.opts.Tools == nil {
		return s.writeError(conn, req.ID, tool.ErrNotFound)
	}
	decl, err := tool.Find(ctx, s.opts.Tools, req.Name)
	if err != nil {
		return s.writeError(conn, req.ID, err)
	}
	return conn.WriteJSON(toolShowResponse{Type: "tool_show", ID: req.ID, Tool: decl})
}

// serveUserMessages pages the thread's stored messages. An absent store
// yields an empty page, not an error.
func (s *Server) serveUserMessages(ctx context.Context, conn *websocket.Conn, req *request) error {
	page := &store.Page{Messages: []store.UserMessage{}}
	if s.opts.Store != nil {
		var err error
		if page, err = s.opts.Store.UserMessages(ctx, req.ThreadID, req.Before, req.Limit); err != nil {
			return s.writeError(conn, req.ID, err)
		}
	}
	return conn.WriteJSON(userMessagesResponse{
		Type:     "user_messages",
		ID:       req.ID,
		ThreadID: req.ThreadID,
		Messages: page.Messages,
		HasMore:  page.HasMore,
	})
}

// serveRun streams one agent run: every event as a run_stream_event frame,
// then exactly one run_end or error. The terminal reply event folds into
// run_end rather than appearing in the stream.
func (s *Server) serveRun(ctx context.Context, conn *websocket.Conn, req *request) error {
	if s.opts.Agent == nil {
		return s.writeError(conn, req.ID, errors.New("no agent configured"))
	}
	if s.opts.Store != nil && req.ThreadID != "" {
		if err := s.opts.Store.AppendUserMessage(ctx, req.ThreadID, req.Message); err != nil {
			log.Warnf("append user message: %v", err)
		}
	}
	var runOpts []agent.RunOption
	if req.ThreadID != "" {
		runOpts = append(runOpts, agent.WithThreadID(req.ThreadID))
	}
	run, err := s.opts.Agent.Run(ctx, req.Message, runOpts...)
	if err != nil {
		return s.writeError(conn, req.ID, err)
	}
	for e := range run.Events() {
		if e.Type == event.TypeReply {
			continue
		}
		if err := conn.WriteJSON(runStreamEvent{Type: "run_stream_event", ID: req.ID, Event: e}); err != nil {
			return err
		}
	}
	result, err := run.Wait(ctx)
	if err != nil {
		return s.writeError(conn, req.ID, err)
	}
	end := runEnd{Type: "run_end", ID: req.ID, Reply: result.Reply}
	if result.Usage != (event.Usage{}) {
		usage := result.Usage
		end.Usage = &usage
	}
	if result.TotalUsage != (event.Usage{}) {
		total := result.TotalUsage
		end.TotalUsage = &total
	}
	return conn.WriteJSON(end)
}

func (s *Server) writeError(conn *websocket.Conn, id string, err error) error {
	return conn.WriteJSON(errorResponse{Type: "error", ID: id, Error: err.Error()})
}
