// Package sqlstore is the StateStore shared by the SQL backends.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pressly/goose/v3"

	"feedmirror/internal/types"
)

//go:embed migrations
var migrationsFS embed.FS

type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "postgres"
)

// goose keeps its dialect and filesystem in package globals.
var gooseMu sync.Mutex

// Migrate brings the schema of db up to date for the dialect.
func Migrate(db *sql.DB, dialect Dialect) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(string(dialect)); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	dir := "migrations/sqlite"
	if dialect == Postgres {
		dir = "migrations/postgres"
	}
	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect, now: time.Now}
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) LoadMapping(ctx context.Context, scope types.Scope) (types.Mapping, error) {
	query := s.rebind(`
		SELECT item_key, message_id, signature
		FROM tracked_messages
		WHERE collection = ? AND channel_id = ?
	`)

	rows, err := s.db.QueryContext(ctx, query, scope.Collection, scope.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("failed to load mapping %s: %w", scope, err)
	}
	defer rows.Close()

	mapping := types.Mapping{}
	for rows.Next() {
		var key string
		var tracked types.TrackedMessage
		if err := rows.Scan(&key, &tracked.MessageID, &tracked.Signature); err != nil {
			return nil, fmt.Errorf("failed to scan tracked message: %w", err)
		}
		if tracked.MessageID == "" {
			continue
		}
		mapping[key] = tracked
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tracked messages: %w", err)
	}
	return mapping, nil
}

func (s *Store) SaveMapping(ctx context.Context, scope types.Scope, mapping types.Mapping) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM tracked_messages WHERE collection = ? AND channel_id = ?`),
		scope.Collection, scope.ChannelID); err != nil {
		return fmt.Errorf("failed to clear mapping %s: %w", scope, err)
	}

	if len(mapping) > 0 {
		stmt, err := tx.PrepareContext(ctx, s.rebind(`
			INSERT INTO tracked_messages (collection, channel_id, item_key, message_id, signature, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`))
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		now := s.now().UTC()
		for _, key := range mapping.Keys() {
			tracked := mapping[key]
			if _, err := stmt.ExecContext(ctx, scope.Collection, scope.ChannelID, key,
				tracked.MessageID, tracked.Signature, now); err != nil {
				return fmt.Errorf("failed to store tracked message %q: %w", key, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit mapping %s: %w", scope, err)
	}
	return nil
}

func (s *Store) ListScopes(ctx context.Context) ([]types.Scope, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT collection, channel_id
		FROM tracked_messages
		ORDER BY collection, channel_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list scopes: %w", err)
	}
	defer rows.Close()

	var scopes []types.Scope
	for rows.Next() {
		var scope types.Scope
		if err := rows.Scan(&scope.Collection, &scope.ChannelID); err != nil {
			return nil, fmt.Errorf("failed to scan scope: %w", err)
		}
		scopes = append(scopes, scope)
	}
	return scopes, rows.Err()
}

func (s *Store) DeleteMapping(ctx context.Context, scope types.Scope) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM tracked_messages WHERE collection = ? AND channel_id = ?`),
		scope.Collection, scope.ChannelID)
	if err != nil {
		return fmt.Errorf("failed to delete mapping %s: %w", scope, err)
	}
	return nil
}

// ReserveRequest keeps the last request time in a single feed_budget row
// and only moves it forward once the window has elapsed.
func (s *Store) ReserveRequest(ctx context.Context, now time.Time, cooldown time.Duration) (time.Duration, error) {
	nowMs := now.UnixMilli()
	res, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO feed_budget (id, last_request_at) VALUES (1, ?)
		ON CONFLICT (id) DO UPDATE SET last_request_at = excluded.last_request_at
		WHERE feed_budget.last_request_at <= ?
	`), nowMs, nowMs-cooldown.Milliseconds())
	if err != nil {
		return 0, fmt.Errorf("failed to reserve feed request: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return 0, fmt.Errorf("failed to reserve feed request: %w", err)
	} else if n > 0 {
		return 0, nil
	}

	var last int64
	if err := s.db.QueryRowContext(ctx, `SELECT last_request_at FROM feed_budget WHERE id = 1`).Scan(&last); err != nil {
		return 0, fmt.Errorf("failed to read feed budget: %w", err)
	}
	return remainingWindow(nowMs, last, cooldown), nil
}

func remainingWindow(nowMs, lastMs int64, cooldown time.Duration) time.Duration {
	remaining := cooldown - time.Duration(nowMs-lastMs)*time.Millisecond
	if remaining > cooldown {
		return cooldown
	}
	if remaining < time.Millisecond {
		return time.Millisecond
	}
	return remaining
}

func (s *Store) TryLockScope(ctx context.Context, scope types.Scope, owner string, now time.Time, ttl time.Duration) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO scope_leases (collection, channel_id, owner, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, channel_id) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at
		WHERE scope_leases.expires_at <= ?
	`), scope.Collection, scope.ChannelID, owner, now.Add(ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("failed to take lease %s: %w", scope, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to take lease %s: %w", scope, err)
	}
	return n > 0, nil
}

func (s *Store) UnlockScope(ctx context.Context, scope types.Scope, owner string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM scope_leases WHERE collection = ? AND channel_id = ? AND owner = ?`),
		scope.Collection, scope.ChannelID, owner)
	if err != nil {
		return fmt.Errorf("failed to release lease %s: %w", scope, err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
