//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlabs/weft/model"
)

func TestScriptedReplyTurn(t *testing.T) {
	m := New(ReplyTurn("hello there"))
	ch, err := m.GenerateContent(context.Background(), &model.Request{
		Messages: []model.Message{model.NewUserMessage("hi")},
	})
	require.NoError(t, err)

	var text string
	var final *model.Response
	for rsp := range ch {
		if rsp.Done {
			final = rsp
			continue
		}
		text += rsp.Delta
	}
	require.NotNil(t, final)
	assert.Equal(t, "hello there", text)
	assert.Equal(t, "hello there", final.Message.Content)
	assert.NotZero(t, final.Usage.TotalTokens)
	require.Len(t, m.Requests(), 1)
}

func TestScriptedToolCallTurn(t *testing.T) {
	m := New(ToolCallTurn("call-1", "get_time", `{}`))
	ch, err := m.GenerateContent(context.Background(), &model.Request{})
	require.NoError(t, err)

	var chunks int
	var final *model.Response
	for rsp := range ch {
		if rsp.ToolCallChunk != nil {
			chunks++
			assert.Equal(t, "get_time", rsp.ToolCallChunk.Name)
		}
		if rsp.Done {
			final = rsp
		}
	}
	assert.Equal(t, 1, chunks)
	require.NotNil(t, final)
	require.Len(t, final.Message.ToolCalls, 1)
	assert.Equal(t, "call-1", final.Message.ToolCalls[0].ID)
}

func TestScriptExhaustion(t *testing.T) {
	m := New(ReplyTurn("once"))
	_, err := m.GenerateContent(context.Background(), &model.Request{})
	require.NoError(t, err)
	_, err = m.GenerateContent(context.Background(), &model.Request{})
	assert.Error(t, err)
}

func TestErrTurn(t *testing.T) {
	boom := errors.New("rate limited")
	m := New(Turn{Err: boom})
	ch, err := m.GenerateContent(context.Background(), &model.Request{})
	require.NoError(t, err)
	rsp := <-ch
	require.True(t, rsp.Done)
	assert.ErrorIs(t, rsp.Err, boom)
}
