package state

import (
	"context"

	"go.uber.org/zap"

	"feedmirror/internal/components"
	"feedmirror/internal/config"
	"feedmirror/internal/core"
	"feedmirror/internal/scheduler"
)

// State is everything a command needs once the process is wired up.
type State struct {
	Config    *config.Watcher
	Registry  *components.Registry
	Bot       *core.Bot
	Scheduler *scheduler.Scheduler
	Logger    *zap.Logger
}

func NewState(watcher *config.Watcher, registry *components.Registry, bot *core.Bot, sched *scheduler.Scheduler, logger *zap.Logger) *State {
	return &State{
		Config:    watcher,
		Registry:  registry,
		Bot:       bot,
		Scheduler: sched,
		Logger:    logger,
	}
}

// Close releases every component and flushes the logger.
func (s *State) Close(ctx context.Context) error {
	err := s.Registry.CloseAll(ctx)
	_ = s.Logger.Sync()
	return err
}
