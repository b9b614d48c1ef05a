package server

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/BadgerOps/chumweb/internal/safety"
)

// assetSource reads a static file by slash-separated relative name.
type assetSource interface {
	ReadFile(name string) ([]byte, error)
}

// dirAssets serves files from a directory on disk.
type dirAssets struct {
	root string
}

func (d dirAssets) ReadFile(name string) ([]byte, error) {
	full, err := safety.SafeJoinUnder(d.root, name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fs.ErrNotExist
	}
	return os.ReadFile(full)
}

// fsAssets serves files from the embedded defaults.
type fsAssets struct {
	fsys fs.FS
}

func (f fsAssets) ReadFile(name string) ([]byte, error) {
	clean, err := safety.CleanRelativePath(name)
	if err != nil {
		return nil, err
	}
	return fs.ReadFile(f.fsys, clean)
}

// contentType maps a file extension to the type the page assets use.
func contentType(name string) string {
	switch path.Ext(name) {
	case ".html":
		return "text/html; charset=utf-8"
	case ".js":
		return "text/javascript; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	}
	return "text/plain; charset=utf-8"
}

// etagFor derives a strong validator from the file content.
func etagFor(data []byte) string {
	sum := sha256.Sum256(data)
	return `"` + hex.EncodeToString(sum[:8]) + `"`
}

// handleStatic serves public assets with ETag revalidation.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/")
	data, err := s.assets.ReadFile(name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("rejected static path", "path", r.URL.Path, "error", err)
		}
		http.NotFound(w, r)
		return
	}

	etag := etagFor(data)
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && (match == etag || strings.Trim(match, `"`) == strings.Trim(etag, `"`)) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", contentType(name))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(data)
}
