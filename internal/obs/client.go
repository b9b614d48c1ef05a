// Package obs reads the Chum project tree published by the Open Build
// Service: the index of per-release repositories and the rpm-md metadata
// inside each of them.
package obs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BadgerOps/chumweb/internal/catalog"
	"github.com/BadgerOps/chumweb/internal/safety"
)

const userAgent = "chumweb/1.0"

// ErrUpstreamStatus is wrapped when the OBS server answers with a non-200 status.
var ErrUpstreamStatus = errors.New("unexpected upstream status")

// Client fetches documents below the project base URL.
type Client struct {
	baseURL  string
	http     *http.Client
	logger   *slog.Logger
	maxBytes int64
}

// NewClient creates a client for baseURL. baseURL must end with a slash;
// config.Validate takes care of that for configured values.
func NewClient(baseURL string, timeout time.Duration, maxBytes int64, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		baseURL:  baseURL,
		http:     safety.NewHTTPClient(timeout, userAgent),
		logger:   logger,
		maxBytes: maxBytes,
	}
}

// BaseURL returns the project base URL, with trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RepoURL returns the base URL of one release repository.
func (c *Client) RepoURL(repoID string) string {
	return c.baseURL + repoID + "/"
}

// Catalog fetches the project index and parses the release list from it.
func (c *Client) Catalog(ctx context.Context) (catalog.Catalog, error) {
	data, err := c.fetch(ctx, c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("fetching repository index: %w", err)
	}
	releases := ParseIndex(data)
	c.logger.Debug("parsed repository index",
		slog.Int("bytes", len(data)),
		slog.Int("releases", len(releases)))
	return releases, nil
}

// Repomd fetches and parses repodata/repomd.xml of a repository.
func (c *Client) Repomd(ctx context.Context, repoID string) (*Repomd, error) {
	data, err := c.fetch(ctx, c.RepoURL(repoID)+"repodata/repomd.xml")
	if err != nil {
		return nil, fmt.Errorf("fetching repomd.xml: %w", err)
	}
	return ParseRepomd(data)
}

// Primary fetches, decompresses and parses the primary package list
// referenced by ref.
func (c *Client) Primary(ctx context.Context, repoID string, ref PrimaryRef) (*PrimaryXML, error) {
	href, err := safety.CleanRelativePath(ref.Href)
	if err != nil {
		return nil, fmt.Errorf("unsafe primary location in repomd metadata: %w", err)
	}

	raw, err := c.fetch(ctx, c.RepoURL(repoID)+href)
	if err != nil {
		return nil, fmt.Errorf("fetching primary metadata: %w", err)
	}

	data, format, err := Decompress(raw, c.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("decompressing primary metadata: %w", err)
	}
	c.logger.Debug("primary metadata decompressed",
		slog.String("repo", repoID),
		slog.String("format", format),
		slog.Int("compressed_bytes", len(raw)),
		slog.Int("decompressed_bytes", len(data)))

	return ParsePrimary(data)
}

// fetch performs a GET and returns the body, bounded by maxBytes.
func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	if _, err := safety.ValidateHTTPURL(url); err != nil {
		return nil, fmt.Errorf("invalid fetch URL: %w", err)
	}
	c.logger.Debug("GET", slog.String("url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w %d for %s", ErrUpstreamStatus, resp.StatusCode, url)
	}

	body, err := safety.ReadAllWithLimit(resp.Body, c.maxBytes)
	if err != nil {
		if errors.Is(err, safety.ErrBodyTooLarge) {
			return nil, fmt.Errorf("response exceeded %d bytes for %s: %w", c.maxBytes, url, err)
		}
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return body, nil
}
