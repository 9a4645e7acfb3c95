package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"feedmirror/internal/config"
	"feedmirror/internal/storage"
	"feedmirror/internal/storage/sqlstore"
)

const connectTimeout = 5 * time.Second

func init() {
	storage.RegisterFactory("postgres", New)
}

func New(ctx context.Context, cfg config.StorageConfig) (storage.StateStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("postgres storage requires a dsn")
	}

	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := sqlstore.Migrate(conn, sqlstore.Postgres); err != nil {
		conn.Close()
		return nil, err
	}

	return sqlstore.New(conn, sqlstore.Postgres), nil
}
