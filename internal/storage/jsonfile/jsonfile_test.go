package jsonfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedmirror/internal/types"
)

func TestStoreLayoutAndRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	store := Open(path)

	news := types.Scope{Collection: "news", ChannelID: "111"}
	require.NoError(t, store.SaveMapping(ctx, news, types.Mapping{
		"url:https://a": {MessageID: "m1", Signature: "s1"},
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]map[string]map[string]string
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "m1", doc["news_messages"]["111"]["url:https://a"])
	assert.Equal(t, "s1", doc["news_signatures"]["111"]["url:https://a"])

	loaded, err := store.LoadMapping(ctx, news)
	require.NoError(t, err)
	assert.Equal(t, types.Mapping{"url:https://a": {MessageID: "m1", Signature: "s1"}}, loaded)
}

func TestStoreKeepsOtherKeys(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"operator_note": "keep me", "news_messages": {"222": {"k": "m9"}}}`), 0o600))
	store := Open(path)

	require.NoError(t, store.SaveMapping(ctx, types.Scope{Collection: "news", ChannelID: "111"},
		types.Mapping{"k": {MessageID: "m1", Signature: "s"}}))

	doc, err := NewDocument(path).Load()
	require.NoError(t, err)
	assert.JSONEq(t, `"keep me"`, string(doc["operator_note"]))

	other, err := store.LoadMapping(ctx, types.Scope{Collection: "news", ChannelID: "222"})
	require.NoError(t, err)
	assert.Equal(t, types.Mapping{"k": {MessageID: "m9"}}, other)

	scopes, err := store.ListScopes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.Scope{
		{Collection: "news", ChannelID: "111"},
		{Collection: "news", ChannelID: "222"},
	}, scopes)
}

func TestStoreDeleteAndEmptySave(t *testing.T) {
	ctx := context.Background()
	store := Open(filepath.Join(t.TempDir(), "state.json"))
	scope := types.Scope{Collection: "events", ChannelID: "1"}

	require.NoError(t, store.SaveMapping(ctx, scope, types.Mapping{"payload": {MessageID: "m", Signature: "s"}}))
	require.NoError(t, store.DeleteMapping(ctx, scope))

	scopes, err := store.ListScopes(ctx)
	require.NoError(t, err)
	assert.Empty(t, scopes)

	require.NoError(t, store.SaveMapping(ctx, scope, types.Mapping{}))
	loaded, err := store.LoadMapping(ctx, scope)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestStoreToleratesMalformedSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"news_messages": ["not", "a", "table"]}`), 0o600))

	loaded, err := Open(path).LoadMapping(context.Background(), types.Scope{Collection: "news", ChannelID: "1"})
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestReserveRequestAcrossStores(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	first, second := Open(path), Open(path)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	remaining, err := first.ReserveRequest(ctx, now, 15*time.Second)
	require.NoError(t, err)
	assert.Zero(t, remaining)

	remaining, err = second.ReserveRequest(ctx, now.Add(6*time.Second), 15*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 9*time.Second, remaining)

	remaining, err = second.ReserveRequest(ctx, now.Add(15*time.Second), 15*time.Second)
	require.NoError(t, err)
	assert.Zero(t, remaining)

	scopes, err := first.ListScopes(ctx)
	require.NoError(t, err)
	assert.Empty(t, scopes)
}

func TestScopeLeaseAcrossStores(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	first, second := Open(path), Open(path)
	scope := types.Scope{Collection: "news", ChannelID: "111"}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, first.SaveMapping(ctx, scope, types.Mapping{"k": {MessageID: "m1"}}))

	ok, err := first.TryLockScope(ctx, scope, "a", now, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.TryLockScope(ctx, scope, "b", now.Add(time.Second), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, second.UnlockScope(ctx, scope, "b"))
	ok, err = second.TryLockScope(ctx, scope, "b", now.Add(time.Second), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.UnlockScope(ctx, scope, "a"))
	ok, err = second.TryLockScope(ctx, scope, "b", now.Add(time.Second), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, second.UnlockScope(ctx, scope, "b"))

	doc, err := NewDocument(path).Load()
	require.NoError(t, err)
	assert.NotContains(t, doc, leasesKey)

	loaded, err := second.LoadMapping(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, types.Mapping{"k": {MessageID: "m1"}}, loaded)
}
