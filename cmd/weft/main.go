//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

// Command weft runs the agent runtime: `weft serve` exposes a configured
// agent over WebSocket, `weft run` executes a single run from the terminal.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/agent"
	"github.com/weftlabs/weft/agent/dup"
	"github.com/weftlabs/weft/agent/got"
	"github.com/weftlabs/weft/agent/react"
	"github.com/weftlabs/weft/agent/tot"
	"github.com/weftlabs/weft/event"
	"github.com/weftlabs/weft/graph"
	checkpointsqlite "github.com/weftlabs/weft/graph/checkpoint/sqlite"
	"github.com/weftlabs/weft/log"
	openaimodel "github.com/weftlabs/weft/model/openai"
	"github.com/weftlabs/weft/server"
	"github.com/weftlabs/weft/store"
	storesqlite "github.com/weftlabs/weft/store/sqlite"
	"github.com/weftlabs/weft/tool"
)

type config struct {
	agentKind    string
	modelName    string
	baseURL      string
	systemPrompt string
	maxSteps     int
	dbPath       string
	logLevel     string
}

func main() {
	var cfg config

	root := &cobra.Command{
		Use:           "weft",
		Short:         "agent-orchestration graph runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			log.SetLevel(cfg.logLevel)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&cfg.agentKind, "agent", "react", "reasoning mode: react, dup, tot or got")
	pf.StringVar(&cfg.modelName, "model", "gpt-4o-mini", "model name passed to the provider")
	pf.StringVar(&cfg.baseURL, "base-url", "", "OpenAI-compatible API base URL")
	pf.StringVar(&cfg.systemPrompt, "system-prompt", "", "system prompt prepended to every run")
	pf.IntVar(&cfg.maxSteps, "max-steps", 0, "step budget per run (0 uses the default)")
	pf.StringVar(&cfg.dbPath, "db", "", "SQLite file for checkpoints and message history (empty keeps them in memory)")
	pf.StringVar(&cfg.logLevel, "log-level", log.LevelInfo, "log level: debug, info, warn, error or fatal")

	root.AddCommand(newServeCmd(&cfg), newRunCmd(&cfg))

	if err := root.Execute(); err != nil {
		log.Errorf("weft: %v", err)
		os.Exit(1)
	}
}

func newServeCmd(cfg *config) *cobra.Command {
	var addr string
	var origins []string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "serve the agent over WebSocket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tools := demoTools()
			a, st, err := buildRuntime(cfg, tools)
			if err != nil {
				return err
			}
			srv := server.New(
				server.WithAgent(a),
				server.WithTools(tools),
				server.WithStore(st),
				server.WithAllowedOrigins(origins...),
			)
			return srv.ListenAndServe(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringSliceVar(&origins, "allowed-origins", nil, "CORS allow-list (empty allows any origin)")
	return cmd
}

func newRunCmd(cfg *config) *cobra.Command {
	var threadID string
	cmd := &cobra.Command{
		Use:   "run [message]",
		Short: "execute a single run and print the reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tools := demoTools()
			a, st, err := buildRuntime(cfg, tools)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if st != nil && threadID != "" {
				if err := st.AppendUserMessage(ctx, threadID, args[0]); err != nil {
					log.Warnf("append user message: %v", err)
				}
			}
			var opts []agent.RunOption
			if threadID != "" {
				opts = append(opts, agent.WithThreadID(threadID))
			}
			run, err := a.Run(ctx, args[0], opts...)
			if err != nil {
				return err
			}
			for e := range run.Events() {
				if e.Type == event.TypeMessageChunk {
					if chunk, err := event.DecodePayload[event.MessageChunk](e); err == nil {
						fmt.Print(chunk.Content)
					}
				}
			}
			result, err := run.Wait(ctx)
			if err != nil {
				return err
			}
			fmt.Println()
			log.Infof("tokens: %d (run total %d)",
				result.Usage.TotalTokens, result.TotalUsage.TotalTokens)
			return nil
		},
	}
	cmd.Flags().StringVar(&threadID, "thread", "", "thread id for checkpointing and message history")
	return cmd
}

// buildRuntime assembles the model, persistence and the selected agent.
func buildRuntime(cfg *config, tools tool.Source) (agent.Agent, store.Store, error) {
	var modelOpts []openaimodel.Option
	if cfg.baseURL != "" {
		modelOpts = append(modelOpts, openaimodel.WithBaseURL(cfg.baseURL))
	}
	m := openaimodel.New(cfg.modelName, modelOpts...)

	var (
		saver graph.CheckpointSaver
		st    store.Store
	)
	if cfg.dbPath != "" {
		db, err := sql.Open("sqlite3", cfg.dbPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", cfg.dbPath, err)
		}
		if saver, err = checkpointsqlite.NewSaver(db); err != nil {
			return nil, nil, err
		}
		if st, err = storesqlite.New(db); err != nil {
			return nil, nil, err
		}
	} else {
		st = store.NewMemory()
	}

	var (
		a   agent.Agent
		err error
	)
	switch cfg.agentKind {
	case "react":
		a, err = react.New(
			react.WithModel(m),
			react.WithTools(tools),
			react.WithApprover(tool.ApproveAll()),
			react.WithSystemPrompt(cfg.systemPrompt),
			react.WithCheckpointSaver(saver),
			react.WithMaxSteps(cfg.maxSteps),
			react.WithMiddlewares(graph.LoggingMiddleware{}, graph.NewTracingMiddleware()),
		)
	case "dup":
		a, err = dup.New(
			dup.WithModel(m),
			dup.WithTools(tools),
			dup.WithApprover(tool.ApproveAll()),
			dup.WithSystemPrompt(cfg.systemPrompt),
			dup.WithCheckpointSaver(saver),
			dup.WithMaxSteps(cfg.maxSteps),
		)
	case "tot":
		a, err = tot.New(
			tot.WithModel(m),
			tot.WithSystemPrompt(cfg.systemPrompt),
			tot.WithCheckpointSaver(saver),
			tot.WithMaxSteps(cfg.maxSteps),
		)
	case "got":
		a, err = got.New(
			got.WithModel(m),
			got.WithSystemPrompt(cfg.systemPrompt),
			got.WithCheckpointSaver(saver),
			got.WithMaxSteps(cfg.maxSteps),
			got.WithExpansion(true),
		)
	default:
		return nil, nil, fmt.Errorf("unknown agent %q", cfg.agentKind)
	}
	if err != nil {
		return nil, nil, err
	}
	return a, st, nil
}

// demoTools registers the built-in sample tool.
func demoTools() *tool.Registry {
	return tool.NewRegistry().Register(
		tool.Declaration{
			Name:        "get_time",
			Description: "Returns the current local time.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		},
		func(context.Context, json.RawMessage) (string, error) {
			return time.Now().Format(time.RFC1123), nil
		},
	)
}
