package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Bot         BotConfig                   `toml:"bot"`
	Log         LogConfig                   `toml:"log"`
	Feed        FeedConfig                  `toml:"feed"`
	Discord     DiscordConfig               `toml:"discord"`
	Storage     StorageConfig               `toml:"storage"`
	Collections map[string]CollectionConfig `toml:"collections"`
}

type BotConfig struct {
	Name             string `toml:"name"`
	Cooldown         string `toml:"cooldown"`
	IdleInterval     string `toml:"idle_interval"`
	RequestTimeout   string `toml:"request_timeout"`
	IncompleteDelay  string `toml:"incomplete_delay"`
	RemoteErrorDelay string `toml:"remote_error_delay"`
	UnexpectedDelay  string `toml:"unexpected_delay"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type FeedConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKeyEnv string `toml:"api_key_env"`

	// APIKey is resolved from APIKeyEnv, never read from the file.
	APIKey string `toml:"-"`
}

type DiscordConfig struct {
	TokenEnv string  `toml:"token_env"`
	Sleep    string  `toml:"sleep"`
	Rate     float64 `toml:"rate"`
	Burst    int     `toml:"burst"`

	Token string `toml:"-"`
}

type StorageConfig struct {
	Type string `toml:"type"`
	Path string `toml:"path"`
	DSN  string `toml:"dsn"`

	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	Prefix        string `toml:"prefix"`
}

type CollectionConfig struct {
	Enabled  bool              `toml:"enabled"`
	Channels []string          `toml:"channels"`
	Layout   string            `toml:"layout"`
	Params   map[string]string `toml:"params"`
}

// Timing holds the parsed durations of the [bot] section.
type Timing struct {
	Cooldown         time.Duration
	IdleInterval     time.Duration
	RequestTimeout   time.Duration
	IncompleteDelay  time.Duration
	RemoteErrorDelay time.Duration
	UnexpectedDelay  time.Duration
	PlatformSleep    time.Duration
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a TOML document, then resolves secrets from
// the environment.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	config.Feed.APIKey = strings.TrimSpace(os.Getenv(config.Feed.APIKeyEnv))
	config.Discord.Token = strings.TrimSpace(os.Getenv(config.Discord.TokenEnv))

	return &config, nil
}

func validateConfig(config *Config) error {
	if config.Bot.Name == "" {
		config.Bot.Name = "feedmirror"
	}

	durations := []struct {
		name  string
		value *string
		def   string
	}{
		{"cooldown", &config.Bot.Cooldown, "60s"},
		{"idle_interval", &config.Bot.IdleInterval, "10s"},
		{"request_timeout", &config.Bot.RequestTimeout, "20s"},
		{"incomplete_delay", &config.Bot.IncompleteDelay, "60s"},
		{"remote_error_delay", &config.Bot.RemoteErrorDelay, "65s"},
		{"unexpected_delay", &config.Bot.UnexpectedDelay, "60s"},
		{"discord.sleep", &config.Discord.Sleep, "0s"},
	}
	for _, d := range durations {
		if *d.value == "" {
			*d.value = d.def
		}
		parsed, err := time.ParseDuration(*d.value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.name, err)
		}
		if parsed < 0 {
			return fmt.Errorf("invalid %s: must not be negative", d.name)
		}
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "console"
	}
	if config.Log.Format != "console" && config.Log.Format != "json" {
		return fmt.Errorf("invalid log format: %s", config.Log.Format)
	}

	config.Feed.BaseURL = strings.TrimSpace(config.Feed.BaseURL)
	if config.Feed.BaseURL != "" {
		u, err := url.Parse(config.Feed.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid feed base_url: %q", config.Feed.BaseURL)
		}
	}
	if config.Feed.APIKeyEnv == "" {
		config.Feed.APIKeyEnv = "FEED_API_KEY"
	}

	if config.Discord.TokenEnv == "" {
		config.Discord.TokenEnv = "DISCORD_BOT_TOKEN"
	}
	if config.Discord.Rate <= 0 {
		config.Discord.Rate = 5
	}
	if config.Discord.Burst <= 0 {
		config.Discord.Burst = 1
	}

	if config.Storage.Type == "" {
		config.Storage.Type = "sqlite"
	}
	switch config.Storage.Type {
	case "sqlite", "json":
		if config.Storage.Path == "" {
			if config.Storage.Type == "json" {
				config.Storage.Path = "./feedmirror.json"
			} else {
				config.Storage.Path = "./feedmirror.db"
			}
		}
	case "postgres":
		if config.Storage.DSN == "" {
			return fmt.Errorf("storage type postgres requires dsn")
		}
	case "redis":
		if config.Storage.RedisAddr == "" {
			config.Storage.RedisAddr = "localhost:6379"
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", config.Storage.Type)
	}
	if config.Storage.Prefix == "" {
		config.Storage.Prefix = "feedmirror"
	}

	for name, col := range config.Collections {
		if !IsKnownCollection(name) {
			return fmt.Errorf("unknown collection: %s", name)
		}
		if col.Layout == "" {
			col.Layout = DefaultLayout(name)
		}
		if !slices.Contains(Layouts, col.Layout) {
			return fmt.Errorf("collection %s: invalid layout %q", name, col.Layout)
		}
		col.Channels = normalizeChannels(col.Channels)
		config.Collections[name] = col
	}

	return nil
}

// normalizeChannels trims ids and removes duplicates, keeping the first
// occurrence.
func normalizeChannels(channels []string) []string {
	out := make([]string, 0, len(channels))
	seen := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		ch = strings.TrimSpace(ch)
		if ch == "" {
			continue
		}
		if _, dup := seen[ch]; dup {
			continue
		}
		seen[ch] = struct{}{}
		out = append(out, ch)
	}
	return out
}

// Timing returns the parsed durations. It assumes a validated config.
func (c *Config) Timing() Timing {
	parse := func(s string) time.Duration {
		d, _ := time.ParseDuration(s)
		return d
	}
	return Timing{
		Cooldown:         parse(c.Bot.Cooldown),
		IdleInterval:     parse(c.Bot.IdleInterval),
		RequestTimeout:   parse(c.Bot.RequestTimeout),
		IncompleteDelay:  parse(c.Bot.IncompleteDelay),
		RemoteErrorDelay: parse(c.Bot.RemoteErrorDelay),
		UnexpectedDelay:  parse(c.Bot.UnexpectedDelay),
		PlatformSleep:    parse(c.Discord.Sleep),
	}
}

// MissingFeedSettings lists what prevents the feed from being addressed.
func (c *Config) MissingFeedSettings() []string {
	var missing []string
	if c.Feed.BaseURL == "" {
		missing = append(missing, "feed.base_url")
	}
	if c.Feed.APIKey == "" {
		missing = append(missing, c.Feed.APIKeyEnv)
	}
	return missing
}
