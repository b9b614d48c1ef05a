package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/BadgerOps/chumweb/internal/catalog"
	"github.com/BadgerOps/chumweb/internal/config"
	"github.com/BadgerOps/chumweb/internal/obs"
	"github.com/BadgerOps/chumweb/internal/obs/obstest"
	"github.com/BadgerOps/chumweb/internal/resolver"
	"github.com/BadgerOps/chumweb/internal/store"
)

const (
	chumPkg = "sailfishos-chum-repo-config"
	guiPkg  = "sailfishos-chum-gui"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(":memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	orig := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	_ = w.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading captured stdout: %v", err)
	}
	_ = r.Close()
	return string(data)
}

func newUpstream(t *testing.T) *obstest.Server {
	t.Helper()
	srv := obstest.NewServer(t)
	srv.SetRepo("4.1.0.24_aarch64", obstest.Repo{Packages: []obstest.Package{
		{Name: chumPkg, Href: "noarch/sailfishos-chum-repo-config-0.5-1.noarch.rpm"},
		{Name: guiPkg, Href: "aarch64/sailfishos-chum-gui-0.6.4-1.aarch64.rpm"},
	}})
	srv.SetRepo("4.1.0.24_armv7hl", obstest.Repo{Packages: []obstest.Package{
		{Name: chumPkg, Href: "noarch/sailfishos-chum-repo-config-0.5-1.noarch.rpm"},
	}})
	srv.SetRepo("3.4.0.24_i486", obstest.Repo{})
	return srv
}

// useComponents points the command globals at a resolver over upstream
// and restores them afterwards.
func useComponents(t *testing.T, upstream *obstest.Server) *store.Store {
	t.Helper()
	st := newTestStore(t)
	quietLogger := slog.New(slog.NewTextHandler(io.Discard, nil))

	client := obs.NewClient(upstream.BaseURL(), 5*time.Second, 1<<20, quietLogger)
	res, err := resolver.New(client, st, resolver.Options{
		ChumPackage: chumPkg,
		GUIPackage:  guiPkg,
		CatalogTTL:  time.Minute,
		LRUSize:     8,
	}, quietLogger)
	if err != nil {
		t.Fatalf("resolver.New() failed: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Upstream.BaseURL = upstream.BaseURL()

	origCfg, origStore, origResolver, origLogger := globalCfg, globalStore, globalResolver, logger
	globalCfg, globalStore, globalResolver, logger = cfg, st, res, quietLogger
	t.Cleanup(func() {
		globalCfg, globalStore, globalResolver, logger = origCfg, origStore, origResolver, origLogger
	})
	return st
}

func TestRootCommandTree(t *testing.T) {
	root := NewRootCmd()

	want := map[string]bool{"serve": false, "repos": false, "links": false, "warm": false, "cache": false, "config": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}

	for _, flag := range []string{"config", "data-dir", "log-level", "log-format", "quiet"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("persistent flag --%s missing", flag)
		}
	}
}

func TestShouldSkipComponentInit(t *testing.T) {
	for name, want := range map[string]bool{"config": true, "links": true, "serve": false, "warm": false, "list": false} {
		if got := shouldSkipComponentInit(name); got != want {
			t.Errorf("shouldSkipComponentInit(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestReposRun(t *testing.T) {
	useComponents(t, newUpstream(t))
	reposJSON = false

	out := captureStdout(t, func() {
		if err := reposRun(nil, nil); err != nil {
			t.Fatalf("reposRun returned error: %v", err)
		}
	})

	for _, want := range []string{"4.1.0.24", "aarch64, armv7hl", "3.4.0.24", "i486"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "4.1.0.24") > strings.Index(out, "3.4.0.24") {
		t.Errorf("releases not newest first:\n%s", out)
	}
}

func TestReposRunJSON(t *testing.T) {
	useComponents(t, newUpstream(t))
	reposJSON = true
	t.Cleanup(func() { reposJSON = false })

	out := captureStdout(t, func() {
		if err := reposRun(nil, nil); err != nil {
			t.Fatalf("reposRun returned error: %v", err)
		}
	})

	var resp catalog.RepositoriesResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, out)
	}
	if len(resp.Repositories) != 2 || resp.Repositories[0].Version != "4.1.0.24" {
		t.Errorf("repositories = %+v", resp.Repositories)
	}
}

func TestLinksRunLocal(t *testing.T) {
	useComponents(t, newUpstream(t))

	cmd := newLinksCmd()
	linksSFOS, linksArch, linksLocal = "4.1.0.24", "armv7hl", true
	var out bytes.Buffer
	cmd.SetOut(&out)

	if err := linksRun(cmd, nil); err != nil {
		t.Fatalf("linksRun returned error: %v", err)
	}

	text := out.String()
	if !strings.Contains(text, "chum  sailfishos-chum-repo-config-0.5-1.noarch.rpm") {
		t.Errorf("chum link missing:\n%s", text)
	}
	if !strings.Contains(text, "gui   not available") {
		t.Errorf("gui placeholder missing:\n%s", text)
	}
}

func TestLinksRunPrompts(t *testing.T) {
	useComponents(t, newUpstream(t))

	cmd := newLinksCmd()
	linksLocal = true
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("1\naarch64\n"))

	if err := linksRun(cmd, nil); err != nil {
		t.Fatalf("linksRun returned error: %v", err)
	}

	text := out.String()
	for _, want := range []string{
		"SailfishOS version:",
		"  1) 4.1.0.24",
		"Architecture:",
		"gui   sailfishos-chum-gui-0.6.4-1.aarch64.rpm",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestLinksRunUnknownArchitecture(t *testing.T) {
	useComponents(t, newUpstream(t))

	cmd := newLinksCmd()
	linksSFOS, linksArch, linksLocal = "3.4.0.24", "aarch64", true
	cmd.SetOut(io.Discard)

	if err := linksRun(cmd, nil); err == nil {
		t.Fatal("expected error for an architecture the release does not have")
	}
}

func TestChoose(t *testing.T) {
	var out bytes.Buffer
	r := bufio.NewReader(strings.NewReader("9\nfoo\n\n2\n"))

	got, err := choose(r, &out, "Architecture", []string{"aarch64", "armv7hl"})
	if err != nil {
		t.Fatalf("choose returned error: %v", err)
	}
	if got != "armv7hl" {
		t.Errorf("choose = %q, want armv7hl", got)
	}
	if strings.Count(out.String(), "invalid choice") != 2 {
		t.Errorf("expected two rejections:\n%s", out.String())
	}

	_, err = choose(bufio.NewReader(strings.NewReader("")), io.Discard, "Architecture", []string{"aarch64"})
	if err == nil {
		t.Error("expected error at end of input")
	}
}

func TestWarmAndCacheCommands(t *testing.T) {
	upstream := newUpstream(t)
	upstream.SetRepo("3.4.0.24_armv7hl", obstest.Repo{OmitPrimary: true})
	st := useComponents(t, upstream)
	warmConcurrency = 2

	var warmErr error
	out := captureStdout(t, func() {
		warmErr = warmRun(nil, nil)
	})
	if warmErr == nil || !strings.Contains(warmErr.Error(), "1 of 4 repositories failed") {
		t.Fatalf("warmRun error = %v", warmErr)
	}
	if !strings.Contains(out, "4.1.0.24_aarch64") {
		t.Errorf("warm output missing repository:\n%s", out)
	}

	entries, err := st.ListRepoCache()
	if err != nil {
		t.Fatalf("ListRepoCache: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d cached entries, want 3", len(entries))
	}

	out = captureStdout(t, func() {
		if err := cacheListRun(nil, nil); err != nil {
			t.Fatalf("cacheListRun returned error: %v", err)
		}
	})
	for _, want := range []string{"4.1.0.24_armv7hl", "sailfishos-chum-gui-0.6.4-1.aarch64.rpm"} {
		if !strings.Contains(out, want) {
			t.Errorf("cache list missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(out, "now") && !strings.Contains(out, "ago") {
		t.Errorf("cache list missing relative times:\n%s", out)
	}

	cacheClearAll = false
	out = captureStdout(t, func() {
		if err := cacheClearRun(nil, []string{"4.1.0.24_armv7hl"}); err != nil {
			t.Fatalf("cacheClearRun returned error: %v", err)
		}
	})
	if !strings.Contains(out, "Removed 1 cached repository.") {
		t.Errorf("unexpected clear output: %s", out)
	}

	cacheClearAll = true
	t.Cleanup(func() { cacheClearAll = false })
	out = captureStdout(t, func() {
		if err := cacheClearRun(nil, nil); err != nil {
			t.Fatalf("cacheClearRun --all returned error: %v", err)
		}
	})
	if !strings.Contains(out, "Removed 2 cached repositories.") {
		t.Errorf("unexpected clear output: %s", out)
	}
}

func TestCacheClearValidatesArgs(t *testing.T) {
	useComponents(t, newUpstream(t))

	cacheClearAll = false
	if err := cacheClearRun(nil, nil); err == nil {
		t.Error("expected error without repository or --all")
	}
	if err := cacheClearRun(nil, []string{"not-a-repo"}); err == nil {
		t.Error("expected error for malformed repository id")
	}
}

func TestConfigShowRun(t *testing.T) {
	useComponents(t, newUpstream(t))

	out := captureStdout(t, func() {
		if err := configShowRun(nil, nil); err != nil {
			t.Fatalf("configShowRun returned error: %v", err)
		}
	})
	for _, want := range []string{"upstream:", "chum_package: sailfishos-chum-repo-config", "variant: dynamic"} {
		if !strings.Contains(out, want) {
			t.Errorf("config output missing %q:\n%s", want, out)
		}
	}
}

func TestStartWarmJoins(t *testing.T) {
	st := useComponents(t, newUpstream(t))

	<-startWarm(context.Background(), false)

	ctx, cancel := context.WithCancel(context.Background())
	done := startWarm(ctx, true)
	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("warm-up did not finish after cancel")
	}

	// No shared fetch may touch the store once the resolver is closed.
	globalResolver.Close()
	if _, err := st.ListRepoCache(); err != nil {
		t.Fatalf("ListRepoCache: %v", err)
	}
}
