package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BadgerOps/chumweb/internal/safety"
)

// Config is the top-level configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Cache    CacheConfig    `yaml:"cache"`
	Form     FormConfig     `yaml:"form"`
	Sentry   SentryConfig   `yaml:"sentry"`
}

// ServerConfig holds server settings
type ServerConfig struct {
	Listen    string `yaml:"listen"`
	DataDir   string `yaml:"data_dir"`
	DBPath    string `yaml:"db_path"`
	PublicDir string `yaml:"public_dir"`
}

// UpstreamConfig describes the OBS repository tree the lookups read from
type UpstreamConfig struct {
	BaseURL          string        `yaml:"base_url"`
	Timeout          time.Duration `yaml:"timeout"`
	ChumPackage      string        `yaml:"chum_package"`
	GUIPackage       string        `yaml:"gui_package"`
	MaxMetadataBytes int64         `yaml:"max_metadata_bytes"`
}

// CacheConfig holds resolver cache settings
type CacheConfig struct {
	CatalogTTL time.Duration `yaml:"catalog_ttl"`
	LRUSize    int           `yaml:"lru_size"`
}

// FormConfig selects how the download form behaves.
// Variant "dynamic" reads the catalog from the endpoint, "static" uses
// StaticVersions and StaticArchitectures with the aarch64 cutoff.
type FormConfig struct {
	Variant             string   `yaml:"variant"`
	Endpoint            string   `yaml:"endpoint"`
	StaticVersions      []string `yaml:"static_versions"`
	StaticArchitectures []string `yaml:"static_architectures"`
	AArch64MinVersion   string   `yaml:"aarch64_min_version"`
}

// SentryConfig enables error reporting when DSN is set
type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

const (
	VariantDynamic = "dynamic"
	VariantStatic  = "static"
)

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:  "127.0.0.1:9999",
			DataDir: "/var/lib/chumweb",
		},
		Upstream: UpstreamConfig{
			BaseURL:          "https://repo.sailfishos.org/obs/sailfishos:/chum/",
			Timeout:          60 * time.Second,
			ChumPackage:      "sailfishos-chum-repo-config",
			GUIPackage:       "sailfishos-chum-gui",
			MaxMetadataBytes: 128 * 1024 * 1024,
		},
		Cache: CacheConfig{
			CatalogTTL: 15 * time.Minute,
			LRUSize:    256,
		},
		Form: FormConfig{
			Variant:  VariantDynamic,
			Endpoint: "http://127.0.0.1:9999",
			StaticVersions: []string{
				"4.5.0.16",
				"4.4.0.58",
				"4.3.0.12",
				"4.2.0.21",
				"4.1.0.24",
				"4.0.1.48",
				"3.4.0.24",
			},
			StaticArchitectures: []string{"armv7hl", "aarch64", "i486"},
			AArch64MinVersion:   "4.0.1.48",
		},
	}
}

// Load reads a config file from the given path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config file: %w", err)
	}

	return cfg, nil
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() (string, error) {
	searchPaths := []string{
		"chumweb.yaml",
		"/etc/chumweb/chumweb.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(home, ".config", "chumweb", "chumweb.yaml"),
		)
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPaths)
}

// Validate checks the settings that would otherwise fail late at request time
func (c *Config) Validate() error {
	if _, err := safety.ValidateHTTPURL(c.Upstream.BaseURL); err != nil {
		return fmt.Errorf("upstream.base_url: %w", err)
	}
	if !strings.HasSuffix(c.Upstream.BaseURL, "/") {
		c.Upstream.BaseURL += "/"
	}
	if c.Upstream.ChumPackage == "" || c.Upstream.GUIPackage == "" {
		return fmt.Errorf("upstream.chum_package and upstream.gui_package are required")
	}
	if c.Upstream.MaxMetadataBytes <= 0 {
		return fmt.Errorf("upstream.max_metadata_bytes must be positive")
	}
	if c.Cache.LRUSize <= 0 {
		return fmt.Errorf("cache.lru_size must be positive")
	}

	switch c.Form.Variant {
	case VariantDynamic:
	case VariantStatic:
		if len(c.Form.StaticVersions) == 0 {
			return fmt.Errorf("form.static_versions is required for the static variant")
		}
		if len(c.Form.StaticArchitectures) == 0 {
			return fmt.Errorf("form.static_architectures is required for the static variant")
		}
	default:
		return fmt.Errorf("form.variant must be %q or %q, got %q", VariantDynamic, VariantStatic, c.Form.Variant)
	}
	if _, err := safety.ValidateHTTPURL(c.Form.Endpoint); err != nil {
		return fmt.Errorf("form.endpoint: %w", err)
	}

	return nil
}

// DatabasePath returns the configured SQLite path, defaulting under DataDir
func (c *Config) DatabasePath() string {
	if c.Server.DBPath != "" {
		return c.Server.DBPath
	}
	return filepath.Join(c.Server.DataDir, "chumweb.db")
}
