package form

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newLookupServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPLookupCatalog(t *testing.T) {
	srv := newLookupServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.netlify/functions/lambda/repositories" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"repositories":[["4.1.0.24",["aarch64","armv7hl"]],["3.4.0.24",["i486"]]]}`))
	})

	lookup, err := NewHTTPLookup(srv.URL+"/", VariantDynamic, 5*time.Second, testLogger())
	if err != nil {
		t.Fatalf("NewHTTPLookup() failed: %v", err)
	}
	releases, err := lookup.Catalog(context.Background())
	if err != nil {
		t.Fatalf("Catalog() failed: %v", err)
	}
	if len(releases) != 2 {
		t.Fatalf("got %d releases, want 2", len(releases))
	}
	if releases[0].Version != "4.1.0.24" || !releases[0].Supports("aarch64") {
		t.Errorf("first release = %+v", releases[0])
	}
}

func TestHTTPLookupLinksPaths(t *testing.T) {
	tests := []struct {
		name    string
		variant Variant
		path    string
	}{
		{"dynamic", VariantDynamic, "/.netlify/functions/lambda/packages/4.1.0.24_armv7hl"},
		{"static", VariantStatic, "/.netlify/functions/lambda/4.1.0.24/armv7hl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath string
			srv := newLookupServer(t, func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				_, _ = w.Write([]byte(`{"chum":"https://x/a.rpm"}`))
			})

			lookup, err := NewHTTPLookup(srv.URL, tt.variant, 5*time.Second, testLogger())
			if err != nil {
				t.Fatalf("NewHTTPLookup() failed: %v", err)
			}
			links, err := lookup.Links(context.Background(), "4.1.0.24", "armv7hl")
			if err != nil {
				t.Fatalf("Links() failed: %v", err)
			}
			if gotPath != tt.path {
				t.Errorf("path = %q, want %q", gotPath, tt.path)
			}
			if links.Chum != "https://x/a.rpm" || links.GUI != "" {
				t.Errorf("links = %+v", links)
			}
		})
	}
}

func TestHTTPLookupServerError(t *testing.T) {
	srv := newLookupServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"db down"}`))
	})

	lookup, err := NewHTTPLookup(srv.URL, VariantDynamic, 5*time.Second, testLogger())
	if err != nil {
		t.Fatalf("NewHTTPLookup() failed: %v", err)
	}

	_, err = lookup.Catalog(context.Background())
	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("expected *ServerError, got %v", err)
	}
	if se.Status != http.StatusInternalServerError || se.Message != "db down" {
		t.Errorf("server error = %+v", se)
	}
}

func TestHTTPLookupErrorPayloadWithOK(t *testing.T) {
	srv := newLookupServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"checksum mismatch"}`))
	})

	lookup, err := NewHTTPLookup(srv.URL, VariantDynamic, 5*time.Second, testLogger())
	if err != nil {
		t.Fatalf("NewHTTPLookup() failed: %v", err)
	}
	_, err = lookup.Links(context.Background(), "4.1.0.24", "armv7hl")
	var se *ServerError
	if !errors.As(err, &se) || se.Message != "checksum mismatch" {
		t.Fatalf("expected ServerError with message, got %v", err)
	}
}

func TestHTTPLookupNonJSON(t *testing.T) {
	srv := newLookupServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	lookup, err := NewHTTPLookup(srv.URL, VariantDynamic, 5*time.Second, testLogger())
	if err != nil {
		t.Fatalf("NewHTTPLookup() failed: %v", err)
	}
	_, err = lookup.Catalog(context.Background())
	if err == nil || !strings.Contains(err.Error(), "unexpected status 502") {
		t.Fatalf("expected status error, got %v", err)
	}
	var se *ServerError
	if errors.As(err, &se) {
		t.Error("plain text failure should not be a ServerError")
	}
}

func TestNewHTTPLookupRejectsBadEndpoint(t *testing.T) {
	if _, err := NewHTTPLookup("file:///etc/passwd", VariantDynamic, time.Second, nil); err == nil {
		t.Fatal("expected error for non-http endpoint")
	}
}

func TestControllerOverHTTP(t *testing.T) {
	srv := newLookupServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/.netlify/functions/lambda/repositories":
			_, _ = w.Write([]byte(`{"repositories":[["4.1.0.24",["armv7hl"]]]}`))
		case "/.netlify/functions/lambda/packages/4.1.0.24_armv7hl":
			_, _ = w.Write([]byte(`{"chum":"https://x/chum-1.0.rpm","gui":"https://x/gui-0.5.rpm"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"Not found"}`))
		}
	})

	lookup, err := NewHTTPLookup(srv.URL, VariantDynamic, 5*time.Second, testLogger())
	if err != nil {
		t.Fatalf("NewHTTPLookup() failed: %v", err)
	}
	var out bytes.Buffer
	c := New(Options{Variant: VariantDynamic}, lookup, NewTerminalPresenter(&out, false), testLogger())
	ctx := context.Background()

	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	if err := c.SelectVersion(ctx, "4.1.0.24"); err != nil {
		t.Fatalf("SelectVersion() failed: %v", err)
	}
	if err := c.SelectArchitecture(ctx, "armv7hl"); err != nil {
		t.Fatalf("SelectArchitecture() failed: %v", err)
	}

	text := out.String()
	for _, want := range []string{"chum  chum-1.0.rpm", "https://x/chum-1.0.rpm", "gui   gui-0.5.rpm"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestTerminalPresenterAlert(t *testing.T) {
	var out bytes.Buffer
	p := NewTerminalPresenter(&out, false)
	p.Alert("Failed to fetch package links\n\nServer reply: boom")
	p.ShowPlaceholder(LinkGUI)

	want := "error: Failed to fetch package links: Server reply: boom\ngui   not available\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}
