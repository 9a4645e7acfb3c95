// Package storage persists the message mappings of every (collection,
// channel) scope. Backends register themselves from their package init.
package storage

import (
	"context"
	"fmt"
	"time"

	"feedmirror/internal/config"
	"feedmirror/internal/types"
)

// StateStore is durable key-value state with load and replace semantics.
// SaveMapping replaces the whole mapping of a scope atomically; an empty
// mapping removes the scope.
type StateStore interface {
	LoadMapping(ctx context.Context, scope types.Scope) (types.Mapping, error)
	SaveMapping(ctx context.Context, scope types.Scope, mapping types.Mapping) error
	ListScopes(ctx context.Context) ([]types.Scope, error)
	DeleteMapping(ctx context.Context, scope types.Scope) error
	Close(ctx context.Context) error

	Coordinator
}

// Coordinator is the state every process sharing a store agrees on: the
// time of the last feed request and who is working on a scope.
type Coordinator interface {
	// ReserveRequest records now as the last feed request and returns zero
	// when the previous one is at least cooldown old. Otherwise it records
	// nothing and returns what is left of the window.
	ReserveRequest(ctx context.Context, now time.Time, cooldown time.Duration) (time.Duration, error)
	// TryLockScope takes the lease of scope for owner until now+ttl. It
	// reports false without waiting while another owner holds a live lease.
	TryLockScope(ctx context.Context, scope types.Scope, owner string, now time.Time, ttl time.Duration) (bool, error)
	UnlockScope(ctx context.Context, scope types.Scope, owner string) error
}

type FactoryFunc func(ctx context.Context, cfg config.StorageConfig) (StateStore, error)

var factoryFuncs = map[string]FactoryFunc{}

func RegisterFactory(storageType string, fn FactoryFunc) {
	factoryFuncs[storageType] = fn
}

func New(ctx context.Context, cfg config.StorageConfig) (StateStore, error) {
	storageType := cfg.Type
	if storageType == "" {
		storageType = "sqlite"
	}

	fn, exists := factoryFuncs[storageType]
	if !exists {
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}

	return fn(ctx, cfg)
}
