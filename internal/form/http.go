package form

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BadgerOps/chumweb/internal/catalog"
	"github.com/BadgerOps/chumweb/internal/safety"
)

const maxLookupResponseBytes int64 = 4 * 1024 * 1024

// ServerError carries the message of an {"error": ...} payload.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (status %d): %s", e.Status, e.Message)
}

// HTTPLookup talks to the lookup endpoints of a chumweb server. The
// dynamic variant uses packages/{version}_{arch}, the static one
// {version}/{arch}.
type HTTPLookup struct {
	endpoint string
	variant  Variant
	client   *http.Client
	logger   *slog.Logger
}

// NewHTTPLookup creates a lookup against endpoint, e.g. http://127.0.0.1:9999.
func NewHTTPLookup(endpoint string, variant Variant, timeout time.Duration, logger *slog.Logger) (*HTTPLookup, error) {
	if _, err := safety.ValidateHTTPURL(endpoint); err != nil {
		return nil, fmt.Errorf("invalid lookup endpoint: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPLookup{
		endpoint: strings.TrimRight(endpoint, "/"),
		variant:  variant,
		client:   safety.NewHTTPClient(timeout, "chumweb-form/1.0"),
		logger:   logger,
	}, nil
}

// Catalog fetches the release list.
func (l *HTTPLookup) Catalog(ctx context.Context) (catalog.Catalog, error) {
	var body struct {
		catalog.RepositoriesResponse
		catalog.ErrorResponse
	}
	if err := l.get(ctx, catalog.RepositoriesPath(), &body, &body.ErrorResponse); err != nil {
		return nil, err
	}
	return body.Repositories, nil
}

// Links fetches the package links of one release and architecture.
func (l *HTTPLookup) Links(ctx context.Context, version, arch string) (catalog.Links, error) {
	path := catalog.PackagesPath(version, arch)
	if l.variant == VariantStatic {
		path = catalog.NestedPath(version, arch)
	}

	var body struct {
		catalog.Links
		catalog.ErrorResponse
	}
	if err := l.get(ctx, path, &body, &body.ErrorResponse); err != nil {
		return catalog.Links{}, err
	}
	return body.Links, nil
}

// get decodes the JSON body into out. An error payload is returned as a
// *ServerError whatever the status code; other non-200 answers and
// undecodable bodies are plain errors.
func (l *HTTPLookup) get(ctx context.Context, path string, out interface{}, errBody *catalog.ErrorResponse) error {
	url := l.endpoint + path
	l.logger.Debug("lookup request", slog.String("url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := safety.ReadAllWithLimit(resp.Body, maxLookupResponseBytes)
	if err != nil {
		if errors.Is(err, safety.ErrBodyTooLarge) {
			return fmt.Errorf("lookup response exceeded %d bytes: %w", maxLookupResponseBytes, err)
		}
		return fmt.Errorf("reading response body: %w", err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
		}
		return fmt.Errorf("decoding response from %s: %w", url, err)
	}
	if errBody.Error != "" {
		return &ServerError{Status: resp.StatusCode, Message: errBody.Error}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}
	return nil
}
