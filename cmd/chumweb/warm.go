package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/BadgerOps/chumweb/internal/resolver"
)

const defaultWarmConcurrency = 4

var warmConcurrency int

func newWarmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Resolve the package links of every repository",
		Long: `Fetch the catalog and resolve the links of every release and architecture,
filling the link cache so the first page visits are served without waiting on
the OBS tree. Repositories whose metadata did not change are not downloaded
again.`,
		Example: `  chumweb warm
  chumweb warm --concurrency 8`,
		RunE: warmRun,
	}

	cmd.Flags().IntVar(&warmConcurrency, "concurrency", defaultWarmConcurrency, "number of repositories resolved in parallel")

	return cmd
}

func warmRun(cmd *cobra.Command, args []string) error {
	log := slog.Default()

	if globalResolver == nil {
		return fmt.Errorf("resolver not initialized")
	}

	start := time.Now()
	results, err := globalResolver.Warm(commandContext(cmd), warmConcurrency)
	if err != nil {
		return err
	}
	failed := countFailed(results)
	log.Info("warm-up finished", "repositories", len(results), "failed", failed, "duration", time.Since(start))

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Repository", "Chum", "GUI", "Time", "Error")
	for _, r := range results {
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		_ = table.Append([]string{
			r.RepoID,
			yesNo(r.Chum),
			yesNo(r.GUI),
			r.Duration.Round(time.Millisecond).String(),
			errText,
		})
	}
	if err := table.Render(); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d repositories failed", failed, len(results))
	}
	return nil
}

func countFailed(results []resolver.WarmResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
