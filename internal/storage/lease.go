package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"feedmirror/internal/clock"
	"feedmirror/internal/types"
)

const (
	// LeaseTTL bounds how long a crashed holder keeps a scope locked.
	LeaseTTL  = 10 * time.Minute
	leasePoll = 250 * time.Millisecond
)

// UnlockFunc releases a scope lease.
type UnlockFunc func(ctx context.Context) error

// LockScope waits until the lease of scope is taken under a fresh owner id.
func LockScope(ctx context.Context, c Coordinator, clk clock.Clock, scope types.Scope) (UnlockFunc, error) {
	owner := uuid.NewString()
	for {
		ok, err := c.TryLockScope(ctx, scope, owner, clk.Now(), LeaseTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to lock %s: %w", scope, err)
		}
		if ok {
			return func(ctx context.Context) error {
				if err := c.UnlockScope(ctx, scope, owner); err != nil {
					return fmt.Errorf("failed to unlock %s: %w", scope, err)
				}
				return nil
			}, nil
		}
		if err := clk.Sleep(ctx, leasePoll); err != nil {
			return nil, err
		}
	}
}
