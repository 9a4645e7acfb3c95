package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedmirror/internal/types"
)

const sample = `
[bot]
cooldown = "90s"

[feed]
base_url = "https://club.example"
api_key_env = "TEST_FEED_KEY"

[collections.news]
enabled = true
channels = ["111", " 222 ", "111", ""]

[collections.association]
enabled = true
channels = ["333"]

[collections.events]
enabled = false
channels = ["444"]

[collections.staff]
enabled = true
layout = "items"
channels = []
`

func TestParseDefaults(t *testing.T) {
	t.Setenv("TEST_FEED_KEY", " k3y ")

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	timing := cfg.Timing()
	assert.Equal(t, 90*time.Second, timing.Cooldown)
	assert.Equal(t, 10*time.Second, timing.IdleInterval)
	assert.Equal(t, 20*time.Second, timing.RequestTimeout)
	assert.Equal(t, 65*time.Second, timing.RemoteErrorDelay)

	assert.Equal(t, "k3y", cfg.Feed.APIKey)
	assert.Equal(t, "DISCORD_BOT_TOKEN", cfg.Discord.TokenEnv)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, "./feedmirror.db", cfg.Storage.Path)

	assert.Equal(t, LayoutItems, cfg.Collections["news"].Layout)
	assert.Equal(t, LayoutSections, cfg.Collections["association"].Layout)
	assert.Equal(t, LayoutSingle, cfg.Collections["events"].Layout)
	assert.Equal(t, []string{"111", "222"}, cfg.Collections["news"].Channels)
	assert.Empty(t, cfg.MissingFeedSettings())
}

func TestJobs(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, []types.Scope{
		{Collection: "association", ChannelID: "333"},
		{Collection: "news", ChannelID: "111"},
		{Collection: "news", ChannelID: "222"},
	}, cfg.Jobs())
	assert.Equal(t, []string{"association", "news"}, cfg.EnabledCollections())
	assert.Equal(t, []string{"333", "111", "222"}, cfg.ChannelIDs())

	assert.True(t, cfg.IsConfigured(types.Scope{Collection: "news", ChannelID: "222"}))
	assert.False(t, cfg.IsConfigured(types.Scope{Collection: "events", ChannelID: "444"}))
	assert.False(t, cfg.IsConfigured(types.Scope{Collection: "news", ChannelID: "999"}))
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown collection", "[collections.weather]\nenabled = true"},
		{"bad layout", "[collections.news]\nlayout = \"grid\""},
		{"bad duration", "[bot]\ncooldown = \"soon\""},
		{"negative duration", "[bot]\ncooldown = \"-1s\""},
		{"bad base url", "[feed]\nbase_url = \"ftp://club.example\""},
		{"postgres without dsn", "[storage]\ntype = \"postgres\""},
		{"unknown storage", "[storage]\ntype = \"mongo\""},
		{"bad log format", "[log]\nformat = \"xml\""},
		{"not toml", "[bot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestMissingFeedSettings(t *testing.T) {
	t.Setenv("FEED_API_KEY", "")

	cfg, err := Parse([]byte(""))
	require.NoError(t, err)

	assert.Equal(t, []string{"feed.base_url", "FEED_API_KEY"}, cfg.MissingFeedSettings())
	assert.Empty(t, cfg.Jobs())
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("FEEDMIRROR_TEST_TOKEN=abc\n"), 0o600))
	t.Setenv("FEEDMIRROR_TEST_TOKEN", "")
	require.NoError(t, os.Unsetenv("FEEDMIRROR_TEST_TOKEN"))

	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "abc", os.Getenv("FEEDMIRROR_TEST_TOKEN"))

	assert.NoError(t, LoadEnv(filepath.Join(dir, "missing.env")))
	assert.NoError(t, LoadEnv(""))
}

func TestWatcherReloadKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	initial, err := Load(path)
	require.NoError(t, err)
	w := NewWatcher(path, initial, nil)

	var notified []*Config
	w.OnChange(func(cfg *Config) { notified = append(notified, cfg) })

	require.NoError(t, os.WriteFile(path, []byte("[collections.weather]\nenabled = true"), 0o600))
	assert.Error(t, w.Reload())
	assert.Same(t, initial, w.Get())
	assert.Empty(t, notified)

	require.NoError(t, os.WriteFile(path, []byte("[collections.news]\nenabled = true\nchannels = [\"9\"]"), 0o600))
	require.NoError(t, w.Reload())
	assert.Equal(t, []types.Scope{{Collection: "news", ChannelID: "9"}}, w.Get().Jobs())
	require.Len(t, notified, 1)
	assert.Same(t, w.Get(), notified[0])
}
