package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"feedmirror/internal/config"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List the (collection, channel) jobs in run order",
	Args:  cobra.NoArgs,
	RunE:  jobsAction,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
}

func jobsAction(cmd *cobra.Command, _ []string) error {
	if err := config.LoadEnv(envFile); err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	printJobs(cmd.OutOrStdout(), cfg)
	return nil
}

func printJobs(w io.Writer, cfg *config.Config) {
	jobs := cfg.Jobs()
	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs configured.")
		return
	}
	for i, job := range jobs {
		col, _ := cfg.Collection(job.Collection)
		fmt.Fprintf(w, "%2d. %-12s <#%s>  layout=%s path=%s\n", i+1, job.Collection, job.ChannelID, col.Layout, config.CollectionPath(job.Collection))
	}
	fmt.Fprintf(w, "Cooldown: %s between requests.\n", cfg.Timing().Cooldown)
}
