package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every configured job until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runAction,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runAction(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	st, err := load(ctx, false)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = st.Close(shutdownCtx)
	}()

	if pruned, err := st.Bot.PruneOrphans(ctx, st.Config.Get()); err != nil {
		st.Logger.Warn("failed to prune unconfigured scopes", zap.Error(err))
	} else if pruned > 0 {
		st.Logger.Info("pruned unconfigured scopes", zap.Int("count", pruned))
	}

	go func() {
		if err := st.Config.Watch(ctx); err != nil {
			st.Logger.Warn("config watcher stopped", zap.Error(err))
		}
	}()

	return st.Scheduler.Run(ctx)
}
