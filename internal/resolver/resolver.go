// Package resolver answers the two lookups the download page needs: the
// catalog of releases and, per repository, the links of the Chum bootstrap
// packages. Links are cached by the checksum of the primary metadata they
// were read from, in memory and in the store.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/BadgerOps/chumweb/internal/catalog"
	"github.com/BadgerOps/chumweb/internal/obs"
	"github.com/BadgerOps/chumweb/internal/reporting"
	"github.com/BadgerOps/chumweb/internal/store"
)

const defaultFetchTimeout = time.Minute

// ErrClosed is returned by lookups started after Close.
var ErrClosed = errors.New("resolver closed")

// Upstream is the part of the OBS client the resolver depends on.
type Upstream interface {
	Catalog(ctx context.Context) (catalog.Catalog, error)
	Repomd(ctx context.Context, repoID string) (*obs.Repomd, error)
	Primary(ctx context.Context, repoID string, ref obs.PrimaryRef) (*obs.PrimaryXML, error)
	RepoURL(repoID string) string
}

// Options configures a Resolver.
type Options struct {
	ChumPackage string
	GUIPackage  string
	CatalogTTL  time.Duration
	LRUSize     int
	// FetchTimeout bounds one shared upstream lookup. It does not follow
	// any single caller's context, since other callers may be waiting on
	// the same result.
	FetchTimeout time.Duration
}

type cachedLinks struct {
	checksum string
	links    catalog.Links
}

// Resolver resolves catalog and package lookups against an Upstream.
type Resolver struct {
	upstream Upstream
	store    *store.Store
	opts     Options
	logger   *slog.Logger

	group singleflight.Group
	links *lru.Cache[string, cachedLinks]

	mu          sync.RWMutex
	catalog     catalog.Catalog
	catalogTime time.Time

	// base is cancelled by Close and ends every shared fetch.
	base    context.Context
	stop    context.CancelFunc
	closeMu sync.Mutex
	closed  bool
	fetches sync.WaitGroup

	now func() time.Time
}

// New creates a Resolver. st may be nil, in which case links are only
// cached in memory.
func New(upstream Upstream, st *store.Store, opts Options, logger *slog.Logger) (*Resolver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.LRUSize <= 0 {
		opts.LRUSize = 256
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	cache, err := lru.New[string, cachedLinks](opts.LRUSize)
	if err != nil {
		return nil, fmt.Errorf("creating links cache: %w", err)
	}
	base, stop := context.WithCancel(context.Background())
	return &Resolver{
		upstream: upstream,
		store:    st,
		opts:     opts,
		logger:   logger,
		links:    cache,
		base:     base,
		stop:     stop,
		now:      time.Now,
	}, nil
}

// Repositories returns the release catalog, refreshed from upstream once
// the cached copy is older than CatalogTTL.
func (r *Resolver) Repositories(ctx context.Context) (catalog.Catalog, error) {
	r.mu.RLock()
	cached, at := r.catalog, r.catalogTime
	r.mu.RUnlock()
	if cached != nil && r.opts.CatalogTTL > 0 && r.now().Sub(at) < r.opts.CatalogTTL {
		return cached, nil
	}

	v, _, err := r.shared(ctx, "catalog", func(ctx context.Context) (interface{}, error) {
		reporting.Breadcrumb(ctx, "obs", "fetching repository index")
		c, err := r.upstream.Catalog(ctx)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.catalog, r.catalogTime = c, r.now()
		r.mu.Unlock()
		r.logger.Info("catalog refreshed", slog.Int("releases", len(c)))
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(catalog.Catalog), nil
}

// Packages resolves the bootstrap package links of one repository.
// repomd.xml is always fetched; the primary list is only downloaded when
// its checksum differs from the cached one.
func (r *Resolver) Packages(ctx context.Context, repoID string) (catalog.Links, error) {
	if _, _, err := catalog.ParseRepoID(repoID); err != nil {
		return catalog.Links{}, err
	}

	v, shared, err := r.shared(ctx, "packages:"+repoID, func(ctx context.Context) (interface{}, error) {
		return r.resolve(ctx, repoID)
	})
	if err != nil {
		return catalog.Links{}, err
	}
	if shared {
		r.logger.Debug("lookup shared with in-flight request", slog.String("repo", repoID))
	}
	r.recordHit(repoID)
	return v.(catalog.Links), nil
}

// shared runs fn once for all concurrent callers of key. fn gets a context
// detached from ctx, bounded by FetchTimeout and ended by Close. Each
// caller still stops waiting when its own ctx is done.
func (r *Resolver) shared(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, bool, error) {
	ch := r.group.DoChan(key, func() (interface{}, error) {
		r.closeMu.Lock()
		if r.closed {
			r.closeMu.Unlock()
			return nil, ErrClosed
		}
		r.fetches.Add(1)
		r.closeMu.Unlock()
		defer r.fetches.Done()

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.FetchTimeout)
		defer cancel()
		defer context.AfterFunc(r.base, cancel)()
		return fn(fetchCtx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (r *Resolver) resolve(ctx context.Context, repoID string) (catalog.Links, error) {
	reporting.Breadcrumb(ctx, "obs", "fetching repomd.xml of "+repoID)
	repomd, err := r.upstream.Repomd(ctx, repoID)
	if err != nil {
		return catalog.Links{}, err
	}
	ref, err := repomd.FindPrimary()
	if err != nil {
		return catalog.Links{}, err
	}

	if cl, ok := r.cached(repoID); ok && cl.checksum == ref.Checksum {
		r.logger.Debug("primary unchanged, using cached links",
			slog.String("repo", repoID), slog.String("checksum", ref.Checksum))
		return cl.links, nil
	}
	if err := ref.RequireHref(); err != nil {
		return catalog.Links{}, err
	}

	reporting.Breadcrumb(ctx, "obs", "fetching "+ref.Href+" of "+repoID)
	primary, err := r.upstream.Primary(ctx, repoID, ref)
	if err != nil {
		return catalog.Links{}, err
	}

	hrefs := primary.FindHrefs(r.opts.ChumPackage, r.opts.GUIPackage)
	links := catalog.Links{
		Chum: r.packageURL(repoID, hrefs[r.opts.ChumPackage]),
		GUI:  r.packageURL(repoID, hrefs[r.opts.GUIPackage]),
	}

	r.links.Add(repoID, cachedLinks{checksum: ref.Checksum, links: links})
	if r.store != nil {
		entry := &store.RepoCacheEntry{
			RepoID:    repoID,
			Checksum:  ref.Checksum,
			ChumURL:   links.Chum,
			GUIURL:    links.GUI,
			FetchedAt: r.now().UTC(),
		}
		if err := r.store.PutRepoCache(entry); err != nil {
			r.logger.Warn("failed to persist links", slog.String("repo", repoID), slog.String("error", err.Error()))
		}
	}

	r.logger.Info("links resolved",
		slog.String("repo", repoID),
		slog.Bool("chum", links.Chum != ""),
		slog.Bool("gui", links.GUI != ""))
	return links, nil
}

// cached looks in memory first and falls back to the store, promoting
// persisted entries into memory.
func (r *Resolver) cached(repoID string) (cachedLinks, bool) {
	if cl, ok := r.links.Get(repoID); ok {
		return cl, true
	}
	if r.store == nil {
		return cachedLinks{}, false
	}
	entry, err := r.store.GetRepoCache(repoID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("failed to read persisted links", slog.String("repo", repoID), slog.String("error", err.Error()))
		}
		return cachedLinks{}, false
	}
	cl := cachedLinks{
		checksum: entry.Checksum,
		links:    catalog.Links{Chum: entry.ChumURL, GUI: entry.GUIURL},
	}
	r.links.Add(repoID, cl)
	return cl, true
}

func (r *Resolver) recordHit(repoID string) {
	if r.store == nil {
		return
	}
	if err := r.store.RecordHit(repoID, r.now()); err != nil && !errors.Is(err, store.ErrNotFound) {
		r.logger.Warn("failed to record hit", slog.String("repo", repoID), slog.String("error", err.Error()))
	}
}

func (r *Resolver) packageURL(repoID, href string) string {
	if href == "" {
		return ""
	}
	return r.upstream.RepoURL(repoID) + href
}

// Forget drops a repository from the memory cache, or everything when
// repoID is empty. Persisted entries are left to the caller.
func (r *Resolver) Forget(repoID string) {
	if repoID == "" {
		r.links.Purge()
		r.mu.Lock()
		r.catalog = nil
		r.mu.Unlock()
		return
	}
	r.links.Remove(repoID)
}

// Close cancels the shared fetches still running and waits for them, so
// nothing writes to the store afterwards. Later lookups fail with
// ErrClosed.
func (r *Resolver) Close() {
	r.closeMu.Lock()
	r.closed = true
	r.closeMu.Unlock()

	r.stop()
	r.fetches.Wait()
}

// Catalog is Repositories under the name the download form looks up; with
// Links it lets a Resolver back the form in-process.
func (r *Resolver) Catalog(ctx context.Context) (catalog.Catalog, error) {
	return r.Repositories(ctx)
}

// Links resolves the package links of version and arch.
func (r *Resolver) Links(ctx context.Context, version, arch string) (catalog.Links, error) {
	return r.Packages(ctx, catalog.RepoID(version, arch))
}
