package components

import (
	"context"
	"fmt"

	"feedmirror/internal/config"
	"feedmirror/internal/storage"
)

type StorageComponent struct {
	config config.StorageConfig
	store  storage.StateStore
}

func NewStorageComponent(cfg config.StorageConfig) *StorageComponent {
	return &StorageComponent{
		config: cfg,
	}
}

func (c *StorageComponent) Name() string {
	return StorageComponentName
}

func (c *StorageComponent) Dependencies() []string {
	return []string{}
}

func (c *StorageComponent) Validate() error {
	switch c.config.Type {
	case "postgres":
		if c.config.DSN == "" {
			return fmt.Errorf("storage: dsn is required for postgres")
		}
	case "redis":
		if c.config.RedisAddr == "" {
			return fmt.Errorf("storage: redis_addr is required for redis")
		}
	default:
		if c.config.Path == "" {
			return fmt.Errorf("storage: path is required for %s", c.config.Type)
		}
	}
	return nil
}

func (c *StorageComponent) Initialize(ctx context.Context) error {
	store, err := storage.New(ctx, c.config)
	if err != nil {
		return fmt.Errorf("storage: failed to initialize store: %w", err)
	}

	c.store = store
	return nil
}

func (c *StorageComponent) Close(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	return c.store.Close(ctx)
}

func (c *StorageComponent) Store() storage.StateStore {
	return c.store
}
