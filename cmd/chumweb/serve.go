package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/BadgerOps/chumweb/internal/server"
)

var (
	serveListen    string
	servePublicDir string
	serveWarm      bool
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the download page and lookup endpoints",
		Long: `Start the HTTP server. It renders the download page at /index.html,
answers the catalog and package lookups under /.netlify/functions/lambda and
serves static assets from --public-dir or the built-in defaults.

By default, the server listens on the address configured in the config file
(default: 127.0.0.1:9999). Use --listen to override.`,
		Example: `  chumweb serve
  chumweb serve --listen 0.0.0.0:8080
  chumweb serve --public-dir ./public --warm`,
		RunE: serveRun,
	}

	cmd.Flags().StringVar(&serveListen, "listen", "", "address to listen on (host:port, default from config)")
	cmd.Flags().StringVar(&servePublicDir, "public-dir", "", "serve static assets from this directory")
	cmd.Flags().BoolVar(&serveWarm, "warm", false, "resolve every repository in the background on startup")

	return cmd
}

func serveRun(cmd *cobra.Command, args []string) error {
	log := slog.Default()

	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}
	if globalResolver == nil {
		return fmt.Errorf("resolver not initialized")
	}

	listen := globalCfg.Server.Listen
	if serveListen != "" {
		listen = serveListen
	}
	if servePublicDir != "" {
		globalCfg.Server.PublicDir = servePublicDir
	}

	log.Info("server starting", "listen", listen, "data_dir", globalCfg.Server.DataDir, "variant", globalCfg.Form.Variant)

	srv, err := server.NewServer(globalResolver, globalCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	warmDone := startWarm(ctx, serveWarm)
	defer func() {
		cancel()
		<-warmDone
	}()

	// Channel to listen for errors from server
	errChan := make(chan error, 1)

	// Start the server in a goroutine
	go func() {
		fmt.Printf("Starting server on http://%s/\n", listen)
		if err := srv.Start(listen); err != nil {
			errChan <- err
		}
	}()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// Wait for either an error or a shutdown signal
	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		log.Info("received shutdown signal", "signal", sig)
		fmt.Println("\nShutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		fmt.Println("Server stopped gracefully")
	}

	return nil
}

// startWarm resolves every repository in the background when enabled.
// The returned channel is closed once the warm-up has returned.
func startWarm(ctx context.Context, enabled bool) <-chan struct{} {
	done := make(chan struct{})
	if !enabled {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		results, err := globalResolver.Warm(ctx, defaultWarmConcurrency)
		if err != nil {
			slog.Default().Warn("cache warm-up failed", "error", err)
			return
		}
		slog.Default().Info("cache warmed", "repositories", len(results), "failed", countFailed(results))
	}()
	return done
}
