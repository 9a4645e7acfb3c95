// Package loader builds a running bot from a config file.
package loader

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"feedmirror/internal/components"
	"feedmirror/internal/config"
	"feedmirror/internal/core"
	"feedmirror/internal/feed"
	"feedmirror/internal/logging"
	"feedmirror/internal/reconcile"
	"feedmirror/internal/scheduler"
	"feedmirror/internal/state"
	"feedmirror/internal/targets/discord"

	_ "feedmirror/internal/storage/jsonfile"
	_ "feedmirror/internal/storage/postgres"
	_ "feedmirror/internal/storage/redis"
	_ "feedmirror/internal/storage/sqlite"
)

type Options struct {
	ConfigPath string
	EnvFile    string
	// Offline skips the Discord gateway. The resulting bot can read state
	// but must not run jobs or clear channels.
	Offline bool
	// Logger overrides the logger built from the [log] section.
	Logger *zap.Logger
}

type Loader struct {
	opts Options
}

func NewLoader(opts Options) *Loader {
	return &Loader{
		opts: opts,
	}
}

func (l *Loader) Initialize(ctx context.Context) (*state.State, error) {
	if err := config.LoadEnv(l.opts.EnvFile); err != nil {
		return nil, err
	}

	cfg, err := config.Load(l.opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := l.opts.Logger
	if logger == nil {
		logger, err = logging.New(cfg.Log)
		if err != nil {
			return nil, err
		}
	}
	logger = logger.With(zap.String("bot", cfg.Bot.Name))

	watcher := config.NewWatcher(l.opts.ConfigPath, cfg, logger.Named("config"))

	registry := components.NewRegistry(logger)
	storageComp := components.NewStorageComponent(cfg.Storage)
	if err := registry.Register(storageComp); err != nil {
		return nil, fmt.Errorf("failed to register storage component: %w", err)
	}

	var platformComp *components.PlatformComponent
	if !l.opts.Offline {
		platformComp = components.NewPlatformComponent(cfg.Discord, logger.Named("discord"))
		if err := registry.Register(platformComp); err != nil {
			return nil, fmt.Errorf("failed to register platform component: %w", err)
		}
	}

	logger.Info("initializing components", zap.String("storage", cfg.Storage.Type), zap.Bool("offline", l.opts.Offline))
	if err := registry.InitializeAll(ctx); err != nil {
		return nil, fmt.Errorf("component initialization failed: %w", err)
	}

	var messenger reconcile.Messenger
	if platformComp != nil {
		platform := platformComp.Discord()
		messenger = discord.NewMessenger(platform.Session(), discord.Options{
			Rate:   cfg.Discord.Rate,
			Burst:  cfg.Discord.Burst,
			Sleep:  platform.SleepDuration(),
			Logger: logger.Named("messenger"),
		})
	}

	timing := cfg.Timing()
	store := storageComp.Store()
	client := feed.NewClient(feed.Options{
		Budget:   store,
		Cooldown: timing.Cooldown,
		Timeout:  timing.RequestTimeout,
		Logger:   logger.Named("feed"),
	})

	bot := core.NewBot(core.BotConfig{
		Config:  watcher.Get,
		Fetcher: client,
		Engine:  reconcile.NewEngine(messenger, logger.Named("reconcile")),
		Store:   store,
		Logger:  logger,
	})

	watcher.OnChange(func(next *config.Config) {
		if _, err := bot.PruneOrphans(context.Background(), next); err != nil {
			logger.Warn("failed to prune unconfigured scopes", zap.Error(err))
		}
	})

	sched := scheduler.New(bot, bot, nil, logger.Named("scheduler"))

	logger.Info("all components initialized", zap.Int("jobs", len(cfg.Jobs())))
	return state.NewState(watcher, registry, bot, sched, logger), nil
}

func LoadAndBuild(ctx context.Context, opts Options) (*state.State, error) {
	return NewLoader(opts).Initialize(ctx)
}
