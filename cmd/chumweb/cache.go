package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/BadgerOps/chumweb/internal/catalog"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the persisted link cache",
		Long: `Every resolved repository is stored with the checksum of the metadata it
was read from. Subcommands list those entries or drop them so the next lookup
reads the metadata again.`,
		Example: `  chumweb cache list
  chumweb cache clear 4.5.0.16_aarch64
  chumweb cache clear --all`,
	}

	cmd.AddCommand(
		newCacheListCmd(),
		newCacheClearCmd(),
	)

	return cmd
}

func newCacheListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached repositories",
		RunE:  cacheListRun,
	}
}

var cacheClearAll bool

func newCacheClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear [REPO]",
		Short: "Drop one cached repository, or all of them with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE:  cacheClearRun,
	}

	cmd.Flags().BoolVar(&cacheClearAll, "all", false, "drop every cached repository and the cached catalog")

	return cmd
}

func cacheListRun(cmd *cobra.Command, args []string) error {
	if globalStore == nil {
		return fmt.Errorf("store not initialized")
	}

	entries, err := globalStore.ListRepoCache()
	if err != nil {
		return fmt.Errorf("listing cache: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("Cache is empty.")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Repository", "Chum", "GUI", "Fetched", "Hits", "Last Served")
	for _, e := range entries {
		_ = table.Append([]string{
			e.RepoID,
			fileOrDash(e.ChumURL),
			fileOrDash(e.GUIURL),
			ago(e.FetchedAt),
			strconv.FormatInt(e.Hits, 10),
			ago(e.LastServed),
		})
	}
	return table.Render()
}

func cacheClearRun(cmd *cobra.Command, args []string) error {
	log := slog.Default()

	if globalStore == nil || globalResolver == nil {
		return fmt.Errorf("store not initialized")
	}

	var repoID string
	switch {
	case cacheClearAll && len(args) > 0:
		return fmt.Errorf("give either a repository or --all, not both")
	case cacheClearAll:
	case len(args) == 1:
		repoID = args[0]
		if _, _, err := catalog.ParseRepoID(repoID); err != nil {
			return err
		}
	default:
		return fmt.Errorf("a repository or --all is required")
	}

	n, err := globalStore.DeleteRepoCache(repoID)
	if err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	globalResolver.Forget(repoID)

	log.Info("cache cleared", "repo", repoID, "entries", n)
	fmt.Printf("Removed %d cached %s.\n", n, pluralize(n, "repository", "repositories"))
	return nil
}

func fileOrDash(url string) string {
	if url == "" {
		return "-"
	}
	return catalog.FileName(url)
}

func ago(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

func pluralize(n int64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
