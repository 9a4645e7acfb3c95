// Package redis stores each scope as two parallel hashes: item key to
// message id and item key to signature.
package redis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"feedmirror/internal/config"
	"feedmirror/internal/storage"
	"feedmirror/internal/types"
)

func init() {
	storage.RegisterFactory("redis", New)
}

type Store struct {
	client goredis.UniversalClient
	prefix string
}

func New(ctx context.Context, cfg config.StorageConfig) (storage.StateStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	return NewWithClient(client, cfg.Prefix), nil
}

func NewWithClient(client goredis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "feedmirror"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) messagesKey(scope types.Scope) string {
	return fmt.Sprintf("%s:messages:%s:%s", s.prefix, scope.Collection, scope.ChannelID)
}

func (s *Store) signaturesKey(scope types.Scope) string {
	return fmt.Sprintf("%s:signatures:%s:%s", s.prefix, scope.Collection, scope.ChannelID)
}

func (s *Store) budgetKey() string {
	return s.prefix + ":feed_budget"
}

func (s *Store) leaseKey(scope types.Scope) string {
	return fmt.Sprintf("%s:lease:%s:%s", s.prefix, scope.Collection, scope.ChannelID)
}

// unlockScript deletes a lease only while it still belongs to the caller.
var unlockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (s *Store) LoadMapping(ctx context.Context, scope types.Scope) (types.Mapping, error) {
	pipe := s.client.Pipeline()
	messagesCmd := pipe.HGetAll(ctx, s.messagesKey(scope))
	signaturesCmd := pipe.HGetAll(ctx, s.signaturesKey(scope))
	if _, err := pipe.Exec(ctx); err != nil && err != goredis.Nil {
		return nil, fmt.Errorf("failed to load mapping %s: %w", scope, err)
	}
	return types.JoinMapping(messagesCmd.Val(), signaturesCmd.Val()), nil
}

func (s *Store) SaveMapping(ctx context.Context, scope types.Scope, mapping types.Mapping) error {
	messages, signatures := mapping.Split()

	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, s.messagesKey(scope), s.signaturesKey(scope))
		if len(messages) > 0 {
			pipe.HSet(ctx, s.messagesKey(scope), messages)
			pipe.HSet(ctx, s.signaturesKey(scope), signatures)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save mapping %s: %w", scope, err)
	}
	return nil
}

func (s *Store) ListScopes(ctx context.Context) ([]types.Scope, error) {
	pattern := s.prefix + ":messages:*"
	prefix := s.prefix + ":messages:"

	var scopes []types.Scope
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		rest := strings.TrimPrefix(iter.Val(), prefix)
		collection, channelID, ok := strings.Cut(rest, ":")
		if !ok {
			continue
		}
		scopes = append(scopes, types.Scope{Collection: collection, ChannelID: channelID})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list scopes: %w", err)
	}

	sort.Slice(scopes, func(i, j int) bool {
		if scopes[i].Collection != scopes[j].Collection {
			return scopes[i].Collection < scopes[j].Collection
		}
		return scopes[i].ChannelID < scopes[j].ChannelID
	})
	return scopes, nil
}

func (s *Store) DeleteMapping(ctx context.Context, scope types.Scope) error {
	if err := s.client.Del(ctx, s.messagesKey(scope), s.signaturesKey(scope)).Err(); err != nil {
		return fmt.Errorf("failed to delete mapping %s: %w", scope, err)
	}
	return nil
}

// ReserveRequest lets the budget key expire after cooldown, so the window is
// measured by the server rather than by now.
func (s *Store) ReserveRequest(ctx context.Context, now time.Time, cooldown time.Duration) (time.Duration, error) {
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.client.SetNX(ctx, s.budgetKey(), now.UnixMilli(), cooldown).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to reserve feed request: %w", err)
		}
		if ok {
			return 0, nil
		}
		ttl, err := s.client.PTTL(ctx, s.budgetKey()).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to read feed budget: %w", err)
		}
		if ttl > 0 {
			return min(ttl, cooldown), nil
		}
		// -2 means the key expired in between; -1 is a key without expiry.
		if ttl != -2 {
			if err := s.client.Del(ctx, s.budgetKey()).Err(); err != nil {
				return 0, fmt.Errorf("failed to reset feed budget: %w", err)
			}
		}
	}
	return cooldown, nil
}

func (s *Store) TryLockScope(ctx context.Context, scope types.Scope, owner string, _ time.Time, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.leaseKey(scope), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to take lease %s: %w", scope, err)
	}
	return ok, nil
}

func (s *Store) UnlockScope(ctx context.Context, scope types.Scope, owner string) error {
	if err := unlockScript.Run(ctx, s.client, []string{s.leaseKey(scope)}, owner).Err(); err != nil && err != goredis.Nil {
		return fmt.Errorf("failed to release lease %s: %w", scope, err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Close()
}
