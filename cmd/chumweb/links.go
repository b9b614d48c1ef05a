package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BadgerOps/chumweb/internal/form"
)

var (
	linksSFOS     string
	linksArch     string
	linksStatic   bool
	linksLocal    bool
	linksEndpoint string
	linksVerbose  bool
)

func newLinksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "links",
		Short: "Look up the Chum package links for a release and architecture",
		Long: `Run the download form in the terminal. The release list and the links
come from a running chumweb server (form.endpoint, or --endpoint), or from
the OBS tree directly with --local.

Missing --sfos or --arch values are asked for interactively.`,
		Example: `  chumweb links --sfos 4.5.0.16 --arch aarch64
  chumweb links --local
  chumweb links --static --sfos 3.4.0.24 --arch armv7hl --endpoint https://chumweb.example.org`,
		RunE: linksRun,
	}

	cmd.Flags().StringVar(&linksSFOS, "sfos", "", "SailfishOS version, e.g. 4.5.0.16")
	cmd.Flags().StringVar(&linksArch, "arch", "", "architecture, e.g. aarch64")
	cmd.Flags().BoolVar(&linksStatic, "static", false, "use the built-in release list instead of fetching it")
	cmd.Flags().BoolVar(&linksLocal, "local", false, "resolve against the OBS tree instead of a chumweb server")
	cmd.Flags().StringVar(&linksEndpoint, "endpoint", "", "chumweb server to query (default from config)")
	cmd.Flags().BoolVarP(&linksVerbose, "verbose", "v", false, "print selector changes too")

	return cmd
}

func linksRun(cmd *cobra.Command, args []string) error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}

	variant, err := form.ParseVariant(globalCfg.Form.Variant)
	if err != nil {
		return err
	}
	if linksStatic {
		variant = form.VariantStatic
	}

	var lookup form.Lookup
	if linksLocal {
		if err := initializeComponents(); err != nil {
			return fmt.Errorf("failed to initialize components: %w", err)
		}
		lookup = globalResolver
	} else {
		endpoint := globalCfg.Form.Endpoint
		if linksEndpoint != "" {
			endpoint = linksEndpoint
		}
		httpLookup, err := form.NewHTTPLookup(endpoint, variant, globalCfg.Upstream.Timeout, logger)
		if err != nil {
			return err
		}
		lookup = httpLookup
	}

	in, out := cmd.InOrStdin(), cmd.OutOrStdout()
	ctrl := form.New(form.Options{
		Variant:             variant,
		StaticVersions:      globalCfg.Form.StaticVersions,
		StaticArchitectures: globalCfg.Form.StaticArchitectures,
		AArch64MinVersion:   globalCfg.Form.AArch64MinVersion,
	}, lookup, form.NewTerminalPresenter(out, linksVerbose), logger)

	ctx := commandContext(cmd)
	if err := ctrl.Initialize(ctx); err != nil {
		return err
	}

	reader := bufio.NewReader(in)

	version := linksSFOS
	if version == "" {
		version, err = choose(reader, out, "SailfishOS version", ctrl.Snapshot().Catalog.Versions())
		if err != nil {
			return err
		}
	}
	if err := ctrl.SelectVersion(ctx, version); err != nil {
		return err
	}

	arch := linksArch
	if arch == "" {
		arch, err = choose(reader, out, "Architecture", ctrl.Snapshot().Architectures)
		if err != nil {
			return err
		}
	}
	return ctrl.SelectArchitecture(ctx, arch)
}

// choose prints a numbered list and reads a selection, by number or value.
func choose(r *bufio.Reader, w io.Writer, label string, options []string) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("no %s to choose from", strings.ToLower(label))
	}

	fmt.Fprintf(w, "%s:\n", label)
	for i, opt := range options {
		fmt.Fprintf(w, "  %d) %s\n", i+1, opt)
	}

	for {
		fmt.Fprintf(w, "%s [1-%d]: ", label, len(options))
		line, err := r.ReadString('\n')
		answer := strings.TrimSpace(line)
		if answer != "" {
			if n, convErr := strconv.Atoi(answer); convErr == nil && n >= 1 && n <= len(options) {
				return options[n-1], nil
			}
			for _, opt := range options {
				if opt == answer {
					return opt, nil
				}
			}
			fmt.Fprintf(w, "invalid choice %q\n", answer)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", fmt.Errorf("no %s selected", strings.ToLower(label))
			}
			return "", err
		}
	}
}
