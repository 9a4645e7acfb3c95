package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"feedmirror/internal/core"
)

var clearCmd = &cobra.Command{
	Use:   "clear <channel|all>",
	Short: "Delete tracked messages and forget their state",
	Long:  "clear deletes every message the bot tracks in one channel, given as an id or <#id> mention, or in every channel with \"all\".",
	Args:  cobra.ExactArgs(1),
	RunE:  clearAction,
}

func init() {
	rootCmd.AddCommand(clearCmd)
}

func clearAction(cmd *cobra.Command, args []string) error {
	target, err := core.ParseClearTarget(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	st, err := load(ctx, false)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close(context.WithoutCancel(ctx)) }()

	deleted, err := st.Bot.Clear(ctx, target)
	if err != nil {
		return fmt.Errorf("clear %s: %w", target, err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), clearSummary(target, deleted))
	return nil
}

func clearSummary(target string, deleted int) string {
	where := fmt.Sprintf("channel %s", target)
	if target == core.ClearAll {
		where = "all channels"
	}
	return fmt.Sprintf("Deleted %d message(s) from %s.", deleted, where)
}
