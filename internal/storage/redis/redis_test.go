package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedmirror/internal/types"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: server.Addr()})
	store := NewWithClient(client, "")
	t.Cleanup(func() { store.Close(context.Background()) })
	return store, server
}

func TestKeys(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	store := NewWithClient(client, "")
	scope := types.Scope{Collection: "news", ChannelID: "111"}

	assert.Equal(t, "feedmirror:messages:news:111", store.messagesKey(scope))
	assert.Equal(t, "feedmirror:signatures:news:111", store.signaturesKey(scope))
	assert.Equal(t, "feedmirror:lease:news:111", store.leaseKey(scope))
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, server := newTestStore(t)

	news := types.Scope{Collection: "news", ChannelID: "111"}
	events := types.Scope{Collection: "events", ChannelID: "222"}

	mapping := types.Mapping{
		"url:https://a": {MessageID: "m1", Signature: "s1"},
		"idx:2":         {MessageID: "m2", Signature: "s2"},
	}
	require.NoError(t, store.SaveMapping(ctx, news, mapping))
	require.NoError(t, store.SaveMapping(ctx, events, types.Mapping{"payload": {MessageID: "m3", Signature: "s3"}}))

	loaded, err := store.LoadMapping(ctx, news)
	require.NoError(t, err)
	assert.Equal(t, mapping, loaded)
	assert.Equal(t, "m1", server.HGet("feedmirror:messages:news:111", "url:https://a"))
	assert.Equal(t, "s2", server.HGet("feedmirror:signatures:news:111", "idx:2"))

	scopes, err := store.ListScopes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.Scope{events, news}, scopes)

	require.NoError(t, store.SaveMapping(ctx, news, types.Mapping{"idx:2": {MessageID: "m2", Signature: "s2b"}}))
	loaded, err = store.LoadMapping(ctx, news)
	require.NoError(t, err)
	assert.Equal(t, types.Mapping{"idx:2": {MessageID: "m2", Signature: "s2b"}}, loaded)

	require.NoError(t, store.SaveMapping(ctx, news, types.Mapping{}))
	assert.False(t, server.Exists("feedmirror:messages:news:111"))
	assert.False(t, server.Exists("feedmirror:signatures:news:111"))

	require.NoError(t, store.DeleteMapping(ctx, events))
	loaded, err = store.LoadMapping(ctx, events)
	require.NoError(t, err)
	assert.Empty(t, loaded)

	scopes, err = store.ListScopes(ctx)
	require.NoError(t, err)
	assert.Empty(t, scopes)
}

func TestListScopesIgnoresOtherKeys(t *testing.T) {
	ctx := context.Background()
	store, server := newTestStore(t)

	require.NoError(t, store.SaveMapping(ctx, types.Scope{Collection: "news", ChannelID: "111"},
		types.Mapping{"a": {MessageID: "m1"}}))
	server.Set("feedmirror:messages:broken", "x")
	server.Set("other:messages:news:222", "x")
	_, err := store.TryLockScope(ctx, types.Scope{Collection: "events", ChannelID: "222"}, "me", time.Now(), time.Minute)
	require.NoError(t, err)

	scopes, err := store.ListScopes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.Scope{{Collection: "news", ChannelID: "111"}}, scopes)
}

func TestReserveRequestSharesWindow(t *testing.T) {
	ctx := context.Background()
	store, server := newTestStore(t)
	other := NewWithClient(goredis.NewClient(&goredis.Options{Addr: server.Addr()}), "")
	defer other.Close(ctx)

	now := time.Now()
	remaining, err := store.ReserveRequest(ctx, now, 15*time.Second)
	require.NoError(t, err)
	assert.Zero(t, remaining)

	server.FastForward(5 * time.Second)
	remaining, err = other.ReserveRequest(ctx, now.Add(5*time.Second), 15*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, remaining)

	server.FastForward(10 * time.Second)
	remaining, err = other.ReserveRequest(ctx, now.Add(15*time.Second), 15*time.Second)
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestReserveRequestRepairsKeyWithoutExpiry(t *testing.T) {
	ctx := context.Background()
	store, server := newTestStore(t)
	server.Set("feedmirror:feed_budget", "0")

	remaining, err := store.ReserveRequest(ctx, time.Now(), 15*time.Second)
	require.NoError(t, err)
	assert.Zero(t, remaining)
	assert.Equal(t, 15*time.Second, server.TTL("feedmirror:feed_budget"))
}

func TestScopeLease(t *testing.T) {
	ctx := context.Background()
	store, server := newTestStore(t)
	news := types.Scope{Collection: "news", ChannelID: "111"}
	now := time.Now()

	ok, err := store.TryLockScope(ctx, news, "a", now, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.TryLockScope(ctx, news, "b", now, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.UnlockScope(ctx, news, "b"))
	assert.Equal(t, "a", mustGet(t, server, "feedmirror:lease:news:111"))

	server.FastForward(time.Minute)
	ok, err = store.TryLockScope(ctx, news, "b", now, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired lease is taken over")

	require.NoError(t, store.UnlockScope(ctx, news, "b"))
	assert.False(t, server.Exists("feedmirror:lease:news:111"))
}

func mustGet(t *testing.T, server *miniredis.Miniredis, key string) string {
	t.Helper()
	value, err := server.Get(key)
	require.NoError(t, err)
	return value
}
