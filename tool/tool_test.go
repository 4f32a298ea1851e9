//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryListToolsIsSorted(t *testing.T) {
	r := NewRegistry().
		Register(Declaration{Name: "zeta"}, func(context.Context, json.RawMessage) (string, error) {
			return "", nil
		}).
		Register(Declaration{Name: "alpha"}, func(context.Context, json.RawMessage) (string, error) {
			return "", nil
		})

	decls, err := r.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, decls, 2)
	assert.Equal(t, "alpha", decls[0].Name)
	assert.Equal(t, "zeta", decls[1].Name)
}

func TestRegistryCall(t *testing.T) {
	r := NewRegistry().Register(
		Declaration{Name: "echo"},
		func(ctx context.Context, args json.RawMessage) (string, error) {
			var in struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", err
			}
			return in.Text, nil
		})

	out, err := r.Call(context.Background(), "echo", json.RawMessage(`{"text":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
}

func TestRegistryCallUnknownTool(t *testing.T) {
	_, err := NewRegistry().Call(context.Background(), "ghost", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryCallWrapsHandlerError(t *testing.T) {
	boom := errors.New("boom")
	r := NewRegistry().Register(
		Declaration{Name: "bad"},
		func(context.Context, json.RawMessage) (string, error) { return "", boom })
	_, err := r.Call(context.Background(), "bad", nil)
	assert.ErrorIs(t, err, boom)
}

func TestFind(t *testing.T) {
	r := NewRegistry().Register(Declaration{Name: "get_time", Description: "clock"}, nil)

	decl, err := Find(context.Background(), r, "get_time")
	require.NoError(t, err)
	assert.Equal(t, "clock", decl.Description)

	_, err = Find(context.Background(), r, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApproverFuncs(t *testing.T) {
	d, err := ApproveAll().Approve(context.Background(), "c1", "rm", nil)
	require.NoError(t, err)
	assert.Equal(t, Approved, d)

	d, err = DenyAll().Approve(context.Background(), "c1", "rm", nil)
	require.NoError(t, err)
	assert.Equal(t, Denied, d)
}
