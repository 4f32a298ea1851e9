//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

package openai

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlabs/weft/model"
	"github.com/weftlabs/weft/tool"
)

func TestConvertMessagesCoversAllRoles(t *testing.T) {
	msgs := []model.Message{
		model.NewSystemMessage("be brief"),
		model.NewUserMessage("hello"),
		{
			Role:    model.RoleAssistant,
			Content: "calling a tool",
			ToolCalls: []model.ToolCall{
				{ID: "call-1", Name: "get_time", Arguments: json.RawMessage(`{}`)},
			},
		},
		model.NewToolMessage("call-1", "get_time", "10:00"),
	}
	converted := convertMessages(msgs)
	require.Len(t, converted, 4)

	assistant := converted[2].OfAssistant
	require.NotNil(t, assistant)
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, "call-1", assistant.ToolCalls[0].ID)
	assert.Equal(t, "get_time", assistant.ToolCalls[0].Function.Name)
}

func TestConvertToolsSkipsBadSchema(t *testing.T) {
	decls := []tool.Declaration{
		{Name: "good", InputSchema: json.RawMessage(`{"type":"object"}`)},
		{Name: "bad", InputSchema: json.RawMessage(`{not json`)},
		{Name: "schemaless"},
	}
	converted := convertTools(decls)
	require.Len(t, converted, 2)
	assert.Equal(t, "good", converted[0].Function.Name)
	assert.Equal(t, "schemaless", converted[1].Function.Name)
}

func TestNewUsesConfiguredName(t *testing.T) {
	m := New("gpt-4o-mini", WithAPIKey("test"), WithBaseURL("http://localhost:1"))
	assert.Equal(t, "gpt-4o-mini", m.Info().Name)
}
