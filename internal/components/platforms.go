package components

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"feedmirror/internal/config"
	"feedmirror/internal/platforms"
)

type PlatformComponent struct {
	config          config.DiscordConfig
	logger          *zap.Logger
	discordPlatform *platforms.DiscordPlatform
}

func NewPlatformComponent(cfg config.DiscordConfig, logger *zap.Logger) *PlatformComponent {
	return &PlatformComponent{
		config: cfg,
		logger: logger,
	}
}

func (c *PlatformComponent) Name() string {
	return PlatformComponentName
}

// The gateway is only opened once state is readable, so a broken store
// fails before the bot shows up online.
func (c *PlatformComponent) Dependencies() []string {
	return []string{StorageComponentName}
}

func (c *PlatformComponent) Validate() error {
	if c.config.Token == "" {
		return fmt.Errorf("discord: %s is not set", c.config.TokenEnv)
	}
	return nil
}

func (c *PlatformComponent) Initialize(ctx context.Context) error {
	discord, err := platforms.NewDiscordPlatform(c.config, c.logger)
	if err != nil {
		return fmt.Errorf("failed to create discord platform: %w", err)
	}
	if err := discord.Initialize(ctx); err != nil {
		return fmt.Errorf("discord platform initialization failed: %w", err)
	}
	c.discordPlatform = discord
	return nil
}

func (c *PlatformComponent) Close(ctx context.Context) error {
	if c.discordPlatform != nil {
		return c.discordPlatform.Close(ctx)
	}
	return nil
}

func (c *PlatformComponent) Discord() *platforms.DiscordPlatform {
	return c.discordPlatform
}
