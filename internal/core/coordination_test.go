package core

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedmirror/internal/clock"
	"feedmirror/internal/config"
	"feedmirror/internal/feed"
	"feedmirror/internal/reconcile"
	"feedmirror/internal/render"
	"feedmirror/internal/storage/jsonfile"
	"feedmirror/internal/types"
)

func TestBotsSharingStoreShareRequestBudget(t *testing.T) {
	t.Setenv("FEED_API_KEY", "key")
	ctx := context.Background()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"data": [{"title": "First", "url": "https://club.example/n/1"}]}`))
	}))
	t.Cleanup(srv.Close)

	cfg, err := config.Parse([]byte(strings.Replace(testConfig, "https://club.example", srv.URL, 1)))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "state.json")
	newBot := func() *Bot {
		store := jsonfile.Open(path)
		return NewBot(BotConfig{
			Config: func() *config.Config { return cfg },
			Fetcher: feed.NewClient(feed.Options{
				Budget:     store,
				Cooldown:   time.Minute,
				HTTPClient: srv.Client(),
			}),
			Engine: reconcile.NewEngine(newChannelMessages(), nil),
			Store:  store,
		})
	}
	first, second := newBot(), newBot()

	require.NoError(t, first.RunJob(ctx, newsScope))
	err = second.RunJob(ctx, types.Scope{Collection: "events", ChannelID: "222"})

	assert.True(t, types.IsCooldown(err))
	assert.Equal(t, int32(1), hits.Load())
}

func TestRunJobWaitsForScopeLease(t *testing.T) {
	f := newFixture(t, "key")
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	fake := clock.NewFake(start)
	f.bot.clock = fake
	f.fetcher.body = `{"data": [{"title": "First", "url": "https://club.example/n/1"}]}`

	ok, err := f.store.TryLockScope(context.Background(), newsScope, "other", start, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, f.bot.RunJob(context.Background(), newsScope))

	assert.NotEmpty(t, fake.Sleeps())
	assert.Len(t, f.messages.byID, 1)

	ok, err = f.store.TryLockScope(context.Background(), newsScope, "next", start, time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "lease is released after the pass")
}

func TestRunJobGivesUpWaitingOnCancel(t *testing.T) {
	f := newFixture(t, "key")
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	fake := clock.NewFake(start)
	f.bot.clock = fake
	f.fetcher.body = `{"data": [{"title": "First", "url": "https://club.example/n/1"}]}`

	ok, err := f.store.TryLockScope(context.Background(), newsScope, "other", start, time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	fake.OnSleep(func(time.Duration) { cancel() })

	err = f.bot.RunJob(ctx, newsScope)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.messages.calls)
}

func TestClearWaitsForScopeLease(t *testing.T) {
	f := newFixture(t, "key")
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	fake := clock.NewFake(start)
	f.bot.clock = fake

	f.messages.byID["111-1"] = render.Message{Content: "111-1"}
	require.NoError(t, f.store.SaveMapping(context.Background(), newsScope, types.Mapping{"k": {MessageID: "111-1"}}))
	ok, err := f.store.TryLockScope(context.Background(), newsScope, "other", start, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	deleted, err := f.bot.Clear(context.Background(), "111")

	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.NotEmpty(t, fake.Sleeps())
}
