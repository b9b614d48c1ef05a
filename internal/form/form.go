// Package form drives the download form: a release selector, a dependent
// architecture selector and the two package links resolved for the pair.
//
// The Controller owns all form state and talks to the outside world only
// through a Lookup (where catalog and links come from) and a Presenter
// (what the user sees). Presenter methods are called with the controller
// lock held and must not call back into the controller.
package form

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/BadgerOps/chumweb/internal/catalog"
)

// None is the selector value meaning no choice has been made.
const None = "none"

var (
	ErrNotInitialized      = errors.New("form not initialized")
	ErrCatalogUnavailable  = errors.New("failed to fetch available repositories")
	ErrLookupFailed        = errors.New("failed to fetch package links")
	ErrUnknownVersion      = errors.New("unknown version")
	ErrUnknownArchitecture = errors.New("architecture not available for version")
	// ErrSuperseded is returned when a lookup finished after a newer
	// selection was made; its result was discarded.
	ErrSuperseded = errors.New("lookup superseded by a newer selection")
)

// Variant selects where the release list comes from.
type Variant int

const (
	// VariantDynamic fetches the catalog from the Lookup at initialisation.
	VariantDynamic Variant = iota
	// VariantStatic uses a fixed release list and hides aarch64 for
	// releases older than the configured cutoff.
	VariantStatic
)

func (v Variant) String() string {
	if v == VariantStatic {
		return "static"
	}
	return "dynamic"
}

// ParseVariant maps a configuration value to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "", "dynamic":
		return VariantDynamic, nil
	case "static":
		return VariantStatic, nil
	}
	return 0, fmt.Errorf("unknown form variant %q", s)
}

// LinkKind identifies one of the two links on the form.
type LinkKind int

const (
	LinkChum LinkKind = iota
	LinkGUI
)

// LinkID is the element id of the link.
func (k LinkKind) LinkID() string {
	if k == LinkGUI {
		return "chum-gui-link"
	}
	return "chum-link"
}

// PlaceholderID is the element id of the "not available" indicator.
func (k LinkKind) PlaceholderID() string {
	return "no-" + k.LinkID()
}

func (k LinkKind) String() string {
	if k == LinkGUI {
		return "gui"
	}
	return "chum"
}

// Lookup resolves the catalog and the links of a (version, architecture) pair.
type Lookup interface {
	Catalog(ctx context.Context) (catalog.Catalog, error)
	Links(ctx context.Context, version, arch string) (catalog.Links, error)
}

// Presenter renders form state.
type Presenter interface {
	RenderVersions(versions []string)
	RenderArchitectures(options []string, selected string)
	ShowArchitectures()
	HideLinks()
	ShowLink(kind LinkKind, url, label string)
	ShowPlaceholder(kind LinkKind)
	SetLoading(loading bool)
	RevealForm()
	Alert(message string)
}

// Options configures a Controller.
type Options struct {
	Variant Variant
	// Static form only.
	StaticVersions      []string
	StaticArchitectures []string
	AArch64MinVersion   string
}

// Selection is the current value of both selectors.
type Selection struct {
	Version string
	Arch    string
}

// State is everything the form knows. Snapshot returns a copy.
type State struct {
	Catalog       catalog.Catalog
	Selection     Selection
	Architectures []string
	Links         *catalog.Links
	Initialized   bool
}

// Controller implements the form behaviour.
type Controller struct {
	opts      Options
	lookup    Lookup
	presenter Presenter
	logger    *slog.Logger

	mu    sync.Mutex
	state State
	// seq numbers lookups; only the latest may update the links.
	seq atomic.Uint64
}

// New creates a Controller. Call Initialize before any selection.
func New(opts Options, lookup Lookup, presenter Presenter, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		opts:      opts,
		lookup:    lookup,
		presenter: presenter,
		logger:    logger,
		state: State{
			Selection: Selection{Version: None, Arch: None},
		},
	}
}

// Initialize loads the release list, renders the version selector and
// reveals the form. If the catalog cannot be fetched the user is alerted
// and the form stays hidden.
func (c *Controller) Initialize(ctx context.Context) error {
	c.mu.Lock()
	c.presenter.SetLoading(true)
	c.mu.Unlock()

	var (
		releases catalog.Catalog
		err      error
	)
	switch c.opts.Variant {
	case VariantStatic:
		releases = catalog.Static(c.opts.StaticVersions, c.opts.StaticArchitectures, c.opts.AArch64MinVersion)
	default:
		releases, err = c.lookup.Catalog(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.logger.Error("catalog fetch failed", slog.String("error", err.Error()))
		c.presenter.SetLoading(false)
		c.presenter.Alert(fmt.Sprintf("Failed to fetch available repositories\n\nServer reply: %s", serverMessage(err)))
		return fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}

	c.state = State{
		Catalog:     releases,
		Selection:   Selection{Version: None, Arch: None},
		Initialized: true,
	}
	c.presenter.RenderVersions(releases.Versions())
	c.presenter.SetLoading(false)
	c.presenter.RevealForm()

	c.logger.Debug("form initialized",
		slog.String("variant", c.opts.Variant.String()),
		slog.Int("releases", len(releases)))
	return nil
}

// SelectVersion handles a change of the release selector. The architecture
// options are recomputed; a previously chosen architecture that is still
// offered is kept and its links are resolved straight away, otherwise the
// architecture resets to None.
func (c *Controller) SelectVersion(ctx context.Context, version string) error {
	c.mu.Lock()
	if !c.state.Initialized {
		c.mu.Unlock()
		return ErrNotInitialized
	}

	c.presenter.HideLinks()
	c.state.Links = nil
	c.seq.Add(1)

	if version == None {
		c.state.Selection.Version = None
		c.presenter.SetLoading(false)
		c.mu.Unlock()
		return nil
	}

	release, ok := c.state.Catalog.Find(version)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownVersion, version)
	}

	previous := c.state.Selection.Arch
	archs := slices.Clone(release.Architectures)
	selected := None
	if slices.Contains(archs, previous) {
		selected = previous
	}

	c.state.Selection = Selection{Version: version, Arch: selected}
	c.state.Architectures = archs
	c.presenter.RenderArchitectures(append([]string{None}, archs...), selected)
	c.presenter.ShowArchitectures()
	if selected == None {
		c.presenter.SetLoading(false)
	}
	c.mu.Unlock()

	if previous != None && selected == None {
		c.logger.Debug("architecture reset", slog.String("version", version), slog.String("previous", previous))
	}
	if selected == None {
		return nil
	}
	return c.resolve(ctx)
}

// Replay restores a selection made outside this controller, such as a
// submitted page form. sel.Arch is treated as the previously chosen
// architecture, so SelectVersion keeps it when the version offers it and
// resets it to None otherwise.
func (c *Controller) Replay(ctx context.Context, sel Selection) error {
	c.mu.Lock()
	if !c.state.Initialized {
		c.mu.Unlock()
		return ErrNotInitialized
	}
	if sel.Version != None && sel.Arch != "" {
		c.state.Selection.Arch = sel.Arch
	}
	c.mu.Unlock()

	return c.SelectVersion(ctx, sel.Version)
}

// SelectArchitecture handles a change of the architecture selector.
func (c *Controller) SelectArchitecture(ctx context.Context, arch string) error {
	c.mu.Lock()
	if !c.state.Initialized {
		c.mu.Unlock()
		return ErrNotInitialized
	}
	if arch != None && !slices.Contains(c.state.Architectures, arch) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q for %q", ErrUnknownArchitecture, arch, c.state.Selection.Version)
	}
	c.state.Selection.Arch = arch
	c.mu.Unlock()

	return c.resolve(ctx)
}

// resolve looks up the links of the current selection and renders them,
// unless a newer selection was made while the lookup was in flight.
func (c *Controller) resolve(ctx context.Context) error {
	c.mu.Lock()
	c.presenter.HideLinks()
	c.state.Links = nil
	sel := c.state.Selection
	id := c.seq.Add(1)
	if sel.Version == None || sel.Arch == None {
		// Any lookup still in flight is now stale and will not clear this.
		c.presenter.SetLoading(false)
		c.mu.Unlock()
		return nil
	}
	c.presenter.SetLoading(true)
	c.mu.Unlock()

	links, err := c.lookup.Links(ctx, sel.Version, sel.Arch)

	c.mu.Lock()
	defer c.mu.Unlock()

	if latest := c.seq.Load(); latest != id {
		c.logger.Debug("discarding stale lookup",
			slog.String("version", sel.Version),
			slog.String("arch", sel.Arch),
			slog.Uint64("seq", id),
			slog.Uint64("latest", latest))
		return ErrSuperseded
	}

	c.presenter.SetLoading(false)
	if err != nil {
		c.logger.Error("links lookup failed",
			slog.String("version", sel.Version),
			slog.String("arch", sel.Arch),
			slog.String("error", err.Error()))
		c.presenter.Alert(fmt.Sprintf("Failed to fetch package links\n\nServer reply: %s", serverMessage(err)))
		return fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}

	c.state.Links = &links
	c.renderLink(LinkChum, links.Chum)
	c.renderLink(LinkGUI, links.GUI)
	return nil
}

func (c *Controller) renderLink(kind LinkKind, url string) {
	if url == "" {
		c.presenter.ShowPlaceholder(kind)
		return
	}
	c.presenter.ShowLink(kind, url, catalog.FileName(url))
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.state
	s.Catalog = slices.Clone(s.Catalog)
	s.Architectures = slices.Clone(s.Architectures)
	if s.Links != nil {
		l := *s.Links
		s.Links = &l
	}
	return s
}

// serverMessage prefers the message the lookup service sent over the
// wrapped transport error.
func serverMessage(err error) string {
	var se *ServerError
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}
