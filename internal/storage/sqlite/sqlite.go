package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"feedmirror/internal/config"
	"feedmirror/internal/storage"
	"feedmirror/internal/storage/sqlstore"
)

func init() {
	storage.RegisterFactory("sqlite", New)
}

func New(ctx context.Context, cfg config.StorageConfig) (storage.StateStore, error) {
	return Open(ctx, cfg.Path)
}

// Open opens or creates the database at path and migrates it.
func Open(ctx context.Context, path string) (*sqlstore.Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL&_busy_timeout=5000", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := sqlstore.Migrate(conn, sqlstore.SQLite); err != nil {
		conn.Close()
		return nil, err
	}

	return sqlstore.New(conn, sqlstore.SQLite), nil
}
