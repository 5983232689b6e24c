// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

package redis

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"sol.dev/sol/private/kvstore"
)

func openTestClient(t *testing.T) (*miniredis.Miniredis, *Client) {
	server := miniredis.RunT(t)

	client, err := OpenClient(t.Context(), server.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, client.Close()) })

	return server, client
}

func TestClientBasic(t *testing.T) {
	ctx := t.Context()
	_, client := openTestClient(t)

	_, err := client.Get(ctx, "missing")
	require.True(t, kvstore.ErrKeyNotFound.Has(err))

	require.NoError(t, client.Put(ctx, "a", kvstore.Value("one"), 0))

	value, err := client.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, kvstore.Value("one"), value)

	exists, err := client.Exists(ctx, "a")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, client.Delete(ctx, "a"))

	exists, err = client.Exists(ctx, "a")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestClientTTL(t *testing.T) {
	ctx := t.Context()
	server, client := openTestClient(t)

	require.NoError(t, client.Put(ctx, "a", kvstore.Value("one"), time.Minute))

	server.FastForward(2 * time.Minute)

	_, err := client.Get(ctx, "a")
	require.True(t, kvstore.ErrKeyNotFound.Has(err))
}

func TestClientEmptyKey(t *testing.T) {
	ctx := t.Context()
	_, client := openTestClient(t)

	require.True(t, kvstore.ErrEmptyKey.Has(client.Put(ctx, "", nil, 0)))
	_, err := client.Get(ctx, "")
	require.True(t, kvstore.ErrEmptyKey.Has(err))
}

func TestOpenClientFrom(t *testing.T) {
	server := miniredis.RunT(t)

	client, err := OpenClientFrom(t.Context(), "redis://"+server.Addr()+"?db=0")
	require.NoError(t, err)
	require.NoError(t, client.Ping(t.Context()))
	require.NoError(t, client.Close())

	_, err = OpenClientFrom(t.Context(), "http://localhost:6379")
	require.Error(t, err)
}
