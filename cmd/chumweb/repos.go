package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/BadgerOps/chumweb/internal/catalog"
)

var reposJSON bool

func newReposCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repos",
		Short: "List the SailfishOS releases and architectures Chum is built for",
		Long: `Read the OBS project index and list every release with the architectures
that have a Chum repository, newest release first.`,
		Example: `  chumweb repos
  chumweb repos --json`,
		RunE: reposRun,
	}

	cmd.Flags().BoolVar(&reposJSON, "json", false, "print the catalog as the repositories endpoint returns it")

	return cmd
}

func reposRun(cmd *cobra.Command, args []string) error {
	log := slog.Default()

	if globalResolver == nil {
		return fmt.Errorf("resolver not initialized")
	}

	releases, err := globalResolver.Repositories(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("fetching repositories: %w", err)
	}
	log.Debug("catalog fetched", "releases", len(releases))

	if reposJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(catalog.RepositoriesResponse{Repositories: releases})
	}

	if len(releases) == 0 {
		fmt.Println("No repositories found.")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Version", "Architectures")
	for _, r := range releases {
		_ = table.Append([]string{r.Version, strings.Join(r.Architectures, ", ")})
	}
	return table.Render()
}
