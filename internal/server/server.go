package server

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/BadgerOps/chumweb/internal/catalog"
	"github.com/BadgerOps/chumweb/internal/config"
	"github.com/BadgerOps/chumweb/internal/form"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Backend answers the catalog and package lookups. *resolver.Resolver
// implements it.
type Backend interface {
	Repositories(ctx context.Context) (catalog.Catalog, error)
	Packages(ctx context.Context, repoID string) (catalog.Links, error)
}

// Server serves the lookup endpoints, the download page and its assets.
type Server struct {
	backend    Backend
	config     *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	templates  *template.Template
	assets     assetSource
	formOpts   form.Options
}

// NewServer creates a new Server instance.
func NewServer(backend Backend, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	variant, err := form.ParseVariant(cfg.Form.Variant)
	if err != nil {
		return nil, err
	}

	s := &Server{
		backend: backend,
		config:  cfg,
		logger:  logger,
		formOpts: form.Options{
			Variant:             variant,
			StaticVersions:      cfg.Form.StaticVersions,
			StaticArchitectures: cfg.Form.StaticArchitectures,
			AArch64MinVersion:   cfg.Form.AArch64MinVersion,
		},
	}

	if cfg.Server.PublicDir != "" {
		s.assets = dirAssets{root: cfg.Server.PublicDir}
	} else {
		sub, err := fs.Sub(staticFS, "static")
		if err != nil {
			return nil, fmt.Errorf("opening embedded assets: %w", err)
		}
		s.assets = fsAssets{fsys: sub}
	}

	if err := s.parseTemplates(); err != nil {
		return nil, err
	}
	return s, nil
}

// parseTemplates loads the page templates with custom functions.
func (s *Server) parseTemplates() error {
	tmpl, err := template.New("").Funcs(initializeTemplateFuncs()).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return fmt.Errorf("failed to parse templates: %w", err)
	}
	s.templates = tmpl
	return nil
}

// Handler returns the full handler chain: routes wrapped in the request
// logging and error reporting middleware.
func (s *Server) Handler() http.Handler {
	return s.requestLogger(s.recoverer(s.setupRoutes()))
}

// Start starts the HTTP server on the given listen address.
func (s *Server) Start(listenAddr string) error {
	s.httpServer = &http.Server{
		Addr:         listenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * s.upstreamTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server",
		"addr", listenAddr,
		"variant", s.formOpts.Variant.String(),
		"public_dir", s.config.Server.PublicDir)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// upstreamTimeout bounds a lookup; the write timeout must outlast it so
// slow upstream answers still reach the client.
func (s *Server) upstreamTimeout() time.Duration {
	if s.config.Upstream.Timeout > 0 {
		return s.config.Upstream.Timeout
	}
	return 60 * time.Second
}

// setupRoutes registers all HTTP routes on a new ServeMux.
// Uses Go 1.22+ enhanced routing with method prefixes and path variables.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Lookup API
	mux.HandleFunc("GET "+catalog.FunctionsBase+"/repositories", s.handleRepositories)
	mux.HandleFunc("GET "+catalog.FunctionsBase+"/packages/{repo}", s.handlePackages)
	mux.HandleFunc("GET "+catalog.FunctionsBase+"/{version}/{arch}", s.handleNestedPackages)
	mux.HandleFunc("GET "+catalog.FunctionsBase+"/", s.handleAPINotFound)

	// Download page
	mux.HandleFunc("GET /index.html", s.handleIndex)

	// Root redirect
	mux.HandleFunc("GET /{$}", s.handleRedirectIndex)

	// Everything else is a static asset
	mux.HandleFunc("GET /", s.handleStatic)

	return mux
}
