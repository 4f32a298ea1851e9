//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPagination(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	for i := 1; i <= 5; i++ {
		require.NoError(t, s.AppendUserMessage(ctx, "t1", fmt.Sprintf("msg %d", i)))
	}
	require.NoError(t, s.AppendUserMessage(ctx, "t2", "other thread"))

	page, err := s.UserMessages(ctx, "t1", 0, 2)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "msg 5", page.Messages[0].Content)
	assert.Equal(t, "msg 4", page.Messages[1].Content)

	// Cursor continues where the previous page ended.
	page, err = s.UserMessages(ctx, "t1", page.Messages[1].ID, 2)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "msg 3", page.Messages[0].Content)

	page, err = s.UserMessages(ctx, "t1", page.Messages[1].ID, 2)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.False(t, page.HasMore)
	assert.Equal(t, "msg 1", page.Messages[0].Content)
}

func TestMemoryUnknownThreadIsEmpty(t *testing.T) {
	s := NewMemory()
	page, err := s.UserMessages(context.Background(), "nope", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
	assert.False(t, page.HasMore)
}

func TestMemoryDefaultLimit(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	for i := 0; i < DefaultPageSize+3; i++ {
		require.NoError(t, s.AppendUserMessage(ctx, "t", "m"))
	}
	page, err := s.UserMessages(ctx, "t", 0, 0)
	require.NoError(t, err)
	assert.Len(t, page.Messages, DefaultPageSize)
	assert.True(t, page.HasMore)
}
