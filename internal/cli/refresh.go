package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run every configured job once and exit",
	Long:  "refresh runs one pass over every job, then exits. The request cooldown is kept in the state store, so it is shared with a running run. Jobs that hit the cooldown are reported as failed.",
	Args:  cobra.NoArgs,
	RunE:  refreshAction,
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

func refreshAction(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	st, err := load(ctx, false)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close(context.WithoutCancel(ctx)) }()

	ran, failed := st.Scheduler.RunPass(ctx)
	out := cmd.OutOrStdout()
	if ran == 0 {
		fmt.Fprintln(out, "No jobs configured.")
		return nil
	}
	fmt.Fprintf(out, "Refreshed %d job(s), %d failed.\n", ran, failed)
	if failed == ran {
		return fmt.Errorf("every job failed, see logs")
	}
	return nil
}
