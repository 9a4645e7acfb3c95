package platforms

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"feedmirror/internal/config"
)

type DiscordPlatform struct {
	botToken string
	sleep    time.Duration
	session  *discordgo.Session
	logger   *zap.Logger
}

func NewDiscordPlatform(cfg config.DiscordConfig, logger *zap.Logger) (*DiscordPlatform, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord platform: %s is not set", cfg.TokenEnv)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sleep, err := time.ParseDuration(cfg.Sleep)
	if err != nil {
		sleep = 0
	}

	return &DiscordPlatform{
		botToken: cfg.Token,
		sleep:    sleep,
		logger:   logger,
	}, nil
}

// Initialize creates the session and connects to the gateway.
func (p *DiscordPlatform) Initialize(ctx context.Context) error {
	session, err := discordgo.New("Bot " + p.botToken)
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		p.logger.Info("discord session ready", zap.String("user", r.User.Username), zap.Int("guilds", len(r.Guilds)))
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	p.session = session
	return nil
}

func (p *DiscordPlatform) Close(ctx context.Context) error {
	if p.session != nil {
		return p.session.Close()
	}
	return nil
}

func (p *DiscordPlatform) Session() *discordgo.Session {
	return p.session
}

func (p *DiscordPlatform) SleepDuration() time.Duration {
	return p.sleep
}
