package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"feedmirror/internal/core"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show enabled collections and tracked messages",
	Args:  cobra.NoArgs,
	RunE:  statusAction,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusAction(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	st, err := load(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close(context.WithoutCancel(ctx)) }()

	status, err := st.Bot.Status(ctx)
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	printStatus(cmd.OutOrStdout(), status)
	return nil
}

func printStatus(w io.Writer, status core.Status) {
	enabled := "none"
	if len(status.Enabled) > 0 {
		enabled = strings.Join(status.Enabled, ", ")
	}
	fmt.Fprintf(w, "Enabled collections: %s\n", enabled)
	fmt.Fprintf(w, "Jobs: %d\n", status.Jobs)
	if len(status.Missing) > 0 {
		fmt.Fprintf(w, "Configuration incomplete: missing %s\n", strings.Join(status.Missing, ", "))
	}

	if len(status.Scopes) == 0 {
		fmt.Fprintln(w, "No tracked messages.")
		return
	}

	fmt.Fprintln(w, "Tracked messages:")
	for _, s := range status.Scopes {
		note := ""
		if !s.Configured {
			note = " (not configured)"
		}
		fmt.Fprintf(w, "  %-12s <#%s>  %d%s\n", s.Scope.Collection, s.Scope.ChannelID, s.Tracked, note)
	}
}
