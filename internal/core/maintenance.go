package core

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"feedmirror/internal/config"
	"feedmirror/internal/reconcile"
	"feedmirror/internal/types"
)

var mentionRe = regexp.MustCompile(`^<#(\d+)>$`)

// ClearAll is the clear target matching every channel.
const ClearAll = "all"

// ParseClearTarget accepts "all", a channel id or a channel mention.
func ParseClearTarget(target string) (string, error) {
	target = strings.TrimSpace(target)
	if strings.EqualFold(target, ClearAll) {
		return ClearAll, nil
	}
	if m := mentionRe.FindStringSubmatch(target); m != nil {
		return m[1], nil
	}
	if target != "" && strings.Trim(target, "0123456789") == "" {
		return target, nil
	}
	return "", fmt.Errorf("invalid channel %q: use a channel id, <#id> or all", target)
}

// Clear deletes the tracked messages of one channel, or of every channel
// for ClearAll, and forgets their mappings. Deletion is best effort; the
// returned count only includes messages actually removed.
func (b *Bot) Clear(ctx context.Context, target string) (int, error) {
	channelID, err := ParseClearTarget(target)
	if err != nil {
		return 0, err
	}

	scopes, err := b.store.ListScopes(ctx)
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	deleted := 0
	for _, scope := range scopes {
		if channelID != ClearAll && scope.ChannelID != channelID {
			continue
		}
		var tracked int
		err := b.withScope(ctx, scope, func(ctx context.Context) error {
			mapping, err := b.store.LoadMapping(ctx, scope)
			if err != nil {
				return err
			}
			tracked = len(mapping)
			for _, key := range mapping.Keys() {
				if b.engine.TryDelete(ctx, scope.ChannelID, mapping[key].MessageID) == reconcile.Found {
					deleted++
				}
			}
			return b.store.DeleteMapping(ctx, scope)
		})
		if err != nil {
			return deleted, err
		}
		b.logger.Info("scope cleared", zap.Stringer("scope", scope), zap.Int("tracked", tracked))
	}
	return deleted, nil
}

// PruneOrphans forgets mappings of scopes the configuration no longer
// lists. Their messages are left in place.
func (b *Bot) PruneOrphans(ctx context.Context, cfg *config.Config) (int, error) {
	scopes, err := b.store.ListScopes(ctx)
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	pruned := 0
	for _, scope := range scopes {
		if cfg.IsConfigured(scope) {
			continue
		}
		err := b.withScope(ctx, scope, func(ctx context.Context) error {
			return b.store.DeleteMapping(ctx, scope)
		})
		if err != nil {
			return pruned, err
		}
		pruned++
		b.logger.Info("forgot unconfigured scope", zap.Stringer("scope", scope))
	}
	return pruned, nil
}

type ScopeStatus struct {
	Scope      types.Scope
	Tracked    int
	Configured bool
}

type Status struct {
	Enabled []string
	Jobs    int
	Scopes  []ScopeStatus
	Missing []string
}

func (b *Bot) Status(ctx context.Context) (Status, error) {
	cfg := b.config()
	status := Status{
		Enabled: cfg.EnabledCollections(),
		Jobs:    len(cfg.Jobs()),
		Missing: cfg.MissingFeedSettings(),
	}

	scopes, err := b.store.ListScopes(ctx)
	if err != nil {
		return status, err
	}
	for _, scope := range scopes {
		mapping, err := b.store.LoadMapping(ctx, scope)
		if err != nil {
			return status, err
		}
		status.Scopes = append(status.Scopes, ScopeStatus{
			Scope:      scope,
			Tracked:    len(mapping),
			Configured: cfg.IsConfigured(scope),
		})
	}
	return status, nil
}
