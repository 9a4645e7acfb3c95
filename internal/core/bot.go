package core

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"feedmirror/internal/clock"
	"feedmirror/internal/config"
	"feedmirror/internal/feed"
	"feedmirror/internal/logging"
	"feedmirror/internal/payload"
	"feedmirror/internal/reconcile"
	"feedmirror/internal/scheduler"
	"feedmirror/internal/storage"
	"feedmirror/internal/types"
)

// Fetcher is the rate-limited feed client.
type Fetcher interface {
	Fetch(ctx context.Context, ep feed.Endpoint, params url.Values) (payload.Value, error)
}

type BotConfig struct {
	// Config returns the current configuration snapshot.
	Config  func() *config.Config
	Fetcher Fetcher
	Engine  *reconcile.Engine
	Store   storage.StateStore
	Clock   clock.Clock
	Logger  *zap.Logger
}

// Bot ties the feed, the reconciliation engine and the state store
// together. It runs jobs for the scheduler and serves the maintenance
// commands.
type Bot struct {
	config  func() *config.Config
	fetcher Fetcher
	engine  *reconcile.Engine
	store   storage.StateStore
	clock   clock.Clock
	logger  *zap.Logger

	// held while a scope's mapping is loaded, reconciled and saved
	mu sync.Mutex
}

func NewBot(cfg BotConfig) *Bot {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Bot{
		config:  cfg.Config,
		fetcher: cfg.Fetcher,
		engine:  cfg.Engine,
		store:   cfg.Store,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
	}
}

func (b *Bot) Jobs() []types.Scope {
	return b.config().Jobs()
}

func (b *Bot) Policy() scheduler.Policy {
	timing := b.config().Timing()
	return scheduler.Policy{
		Cooldown:         timing.Cooldown,
		IncompleteDelay:  timing.IncompleteDelay,
		RemoteErrorDelay: timing.RemoteErrorDelay,
		UnexpectedDelay:  timing.UnexpectedDelay,
	}
}

func (b *Bot) IdleInterval() time.Duration {
	return b.config().Timing().IdleInterval
}

// RunJob fetches one collection and mirrors it into one channel.
func (b *Bot) RunJob(ctx context.Context, scope types.Scope) error {
	cfg := b.config()
	col, ok := cfg.Collection(scope.Collection)
	if !ok {
		return fmt.Errorf("collection %s is not enabled", scope.Collection)
	}
	if missing := cfg.MissingFeedSettings(); len(missing) > 0 {
		return &types.ConfigIncompleteError{Missing: missing}
	}

	log := logging.WithPass(b.logger).With(
		zap.String("collection", scope.Collection),
		zap.String("channel_id", scope.ChannelID),
	)

	ep := feed.Endpoint{
		BaseURL: cfg.Feed.BaseURL,
		Path:    config.CollectionPath(scope.Collection),
		APIKey:  cfg.Feed.APIKey,
	}
	params := url.Values{}
	for k, v := range col.Params {
		params.Set(k, v)
	}

	log.Debug("requesting collection", zap.String("path", ep.Path))
	v, err := b.fetcher.Fetch(ctx, ep, params)
	if err != nil {
		return err
	}

	entries := Entries(col.Layout, scope.Collection, v)

	b.mu.Lock()
	defer b.mu.Unlock()

	var metrics reconcile.Metrics
	err = b.withScope(ctx, scope, func(ctx context.Context) error {
		prior, err := b.store.LoadMapping(ctx, scope)
		if err != nil {
			return fmt.Errorf("failed to load state: %w", err)
		}

		var next types.Mapping
		next, metrics = b.engine.Reconcile(ctx, scope.ChannelID, entries, prior)
		if metrics.Changed() {
			if err := b.store.SaveMapping(ctx, scope, next); err != nil {
				return fmt.Errorf("failed to save state: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info("pass complete",
		zap.Int("entries", len(entries)),
		zap.Int("created", metrics.Created),
		zap.Int("updated", metrics.Updated),
		zap.Int("unchanged", metrics.Unchanged),
		zap.Int("deleted", metrics.Deleted),
		zap.Int("dropped", metrics.Dropped),
		zap.Int("failed", metrics.Failed),
		zap.Int("duplicates", metrics.Duplicates),
	)
	return nil
}

// withScope runs fn while the store's lease on scope is held, so other
// processes sharing the store never interleave with the pass.
func (b *Bot) withScope(ctx context.Context, scope types.Scope, fn func(ctx context.Context) error) error {
	unlock, err := storage.LockScope(ctx, b.store, b.clock, scope)
	if err != nil {
		return err
	}

	// Once the lease is held the work runs to completion so the saved
	// mapping matches what was actually done on the platform.
	ctx = context.WithoutCancel(ctx)
	defer func() {
		if err := unlock(ctx); err != nil {
			b.logger.Warn("failed to release scope lease", zap.Stringer("scope", scope), zap.Error(err))
		}
	}()
	return fn(ctx)
}

// Entries builds the desired messages of a payload for a layout.
func Entries(layout, collection string, v payload.Value) []reconcile.Entry {
	switch layout {
	case config.LayoutItems:
		return reconcile.ItemEntries(v)
	case config.LayoutSections:
		return reconcile.SectionEntries(collection, v)
	default:
		return reconcile.SingleEntry(collection, v)
	}
}
