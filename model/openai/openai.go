//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

// Package openai adapts the OpenAI chat completions API (and compatible
// endpoints) to the model.Model interface.
package openai

import (
	"context"
	"encoding/json"
	"os"

	"github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/weftlabs/weft/event"
	"github.com/weftlabs/weft/log"
	"github.com/weftlabs/weft/model"
	"github.com/weftlabs/weft/tool"
)

const defaultChannelBufferSize = 64

type options struct {
	apiKey            string
	baseURL           string
	channelBufferSize int
	extraOpts         []openaiopt.RequestOption
}

// Option configures the adapter.
type Option func(*options)

// WithAPIKey sets the API key. Defaults to the OPENAI_API_KEY environment
// variable.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithChannelBufferSize sets the response stream buffer size.
func WithChannelBufferSize(n int) Option {
	return func(o *options) { o.channelBufferSize = n }
}

// WithOpenAIOptions appends raw client options.
func WithOpenAIOptions(opts ...openaiopt.RequestOption) Option {
	return func(o *options) { o.extraOpts = append(o.extraOpts, opts...) }
}

// Model is an OpenAI-backed model.Model.
type Model struct {
	client            openai.Client
	name              string
	channelBufferSize int
}

// New creates an adapter for the named model, e.g. "gpt-4o-mini".
func New(name string, opts ...Option) *Model {
	o := options{channelBufferSize: defaultChannelBufferSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.apiKey == "" {
		o.apiKey = os.Getenv("OPENAI_API_KEY")
	}
	var clientOpts []openaiopt.RequestOption
	if o.apiKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(o.apiKey))
	}
	if o.baseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(o.baseURL))
	}
	clientOpts = append(clientOpts, o.extraOpts...)
	return &Model{
		client:            openai.NewClient(clientOpts...),
		name:              name,
		channelBufferSize: o.channelBufferSize,
	}
}

// Info implements model.Model.
func (m *Model) Info() model.Info { return model.Info{Name: m.name} }

// GenerateContent implements model.Model.
func (m *Model) GenerateContent(ctx context.Context, req *model.Request) (<-chan *model.Response, error) {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.name),
		Messages: convertMessages(req.Messages),
		Tools:    convertTools(req.Tools),
	}
	ch := make(chan *model.Response, m.channelBufferSize)
	go m.stream(ctx, params, ch)
	return ch, nil
}

func (m *Model) stream(ctx context.Context, params openai.ChatCompletionNewParams, ch chan<- *model.Response) {
	defer close(ch)

	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			if !send(ctx, ch, &model.Response{Delta: delta.Content}) {
				return
			}
		}
		for _, tc := range delta.ToolCalls {
			chunkRsp := &model.Response{ToolCallChunk: &model.ToolCallChunk{
				Index:          int(tc.Index),
				CallID:         tc.ID,
				Name:           tc.Function.Name,
				ArgumentsDelta: tc.Function.Arguments,
			}}
			if !send(ctx, ch, chunkRsp) {
				return
			}
		}
	}
	if err := stream.Err(); err != nil {
		send(ctx, ch, &model.Response{Done: true, Err: err})
		return
	}
	send(ctx, ch, finalResponse(acc))
}

func finalResponse(acc openai.ChatCompletionAccumulator) *model.Response {
	msg := model.Message{Role: model.RoleAssistant}
	if len(acc.Choices) > 0 {
		accMsg := acc.Choices[0].Message
		msg.Content = accMsg.Content
		for _, tc := range accMsg.ToolCalls {
			if tc.ID == "" && tc.Function.Name == "" {
				continue
			}
			msg.ToolCalls = append(msg.ToolCalls, model.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: json.RawMessage(tc.Function.Arguments),
			})
		}
	}
	usage := event.Usage{
		PromptTokens:     int(acc.Usage.PromptTokens),
		CompletionTokens: int(acc.Usage.CompletionTokens),
		TotalTokens:      int(acc.Usage.TotalTokens),
	}
	return &model.Response{Done: true, Message: &msg, Usage: &usage}
}

func send(ctx context.Context, ch chan<- *model.Response, rsp *model.Response) bool {
	select {
	case ch <- rsp:
		return true
	case <-ctx.Done():
		return false
	}
}

func convertMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			result = append(result, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			assistant := &openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(msg.Content),
				}
			}
			for _, tc := range msg.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
			result = append(result, openai.ChatCompletionMessageParamUnion{OfAssistant: assistant})
		case model.RoleTool:
			result = append(result, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			result = append(result, openai.UserMessage(msg.Content))
		}
	}
	return result
}

func convertTools(tools []tool.Declaration) []openai.ChatCompletionToolParam {
	var result []openai.ChatCompletionToolParam
	for _, decl := range tools {
		var parameters shared.FunctionParameters
		if len(decl.InputSchema) > 0 {
			if err := json.Unmarshal(decl.InputSchema, &parameters); err != nil {
				log.Errorf("skip tool %s: bad input schema: %v", decl.Name, err)
				continue
			}
		}
		result = append(result, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        decl.Name,
				Description: openai.String(decl.Description),
				Parameters:  parameters,
			},
		})
	}
	return result
}
