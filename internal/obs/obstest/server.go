// Package obstest provides a fake OBS project tree for tests.
package obstest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/gzip"
)

// Package is one rpm listed in a fake repository.
type Package struct {
	Name string
	Href string
}

// Repo is one fake {version}_{arch} repository.
type Repo struct {
	Packages []Package
	// OmitPrimary drops the primary entry from repomd.xml.
	OmitPrimary bool
	// OmitLocation keeps the primary checksum but drops its location.
	OmitLocation bool
}

// Server serves an OBS-like directory index plus rpm-md metadata.
type Server struct {
	*httptest.Server

	mu    sync.Mutex
	repos map[string]Repo
	order []string

	IndexHits   atomic.Int32
	RepomdHits  atomic.Int32
	PrimaryHits atomic.Int32
	// FailIndex makes the index page answer 503.
	FailIndex atomic.Bool
}

// NewServer starts a fake tree; it is closed on test cleanup.
func NewServer(t *testing.T) *Server {
	t.Helper()
	s := &Server{repos: make(map[string]Repo)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// BaseURL returns the project URL with trailing slash.
func (s *Server) BaseURL() string {
	return s.URL + "/"
}

// SetRepo adds or replaces a repository. Replacing changes its primary
// checksum when the package list changes.
func (s *Server) SetRepo(id string, repo Repo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.repos[id]; !ok {
		s.order = append(s.order, id)
	}
	s.repos[id] = repo
}

func (s *Server) repo(id string) (Repo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[id]
	return r, ok
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	if path == "" {
		s.IndexHits.Add(1)
		if s.FailIndex.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		s.writeIndex(w)
		return
	}

	id, rest, ok := strings.Cut(path, "/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	repo, ok := s.repo(id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	primary, sum := primaryGz(repo)
	switch {
	case rest == "repodata/repomd.xml":
		s.RepomdHits.Add(1)
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, repomdXML(repo, sum))
	case rest == "repodata/"+sum+"-primary.xml.gz":
		s.PrimaryHits.Add(1)
		_, _ = w.Write(primary)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) writeIndex(w http.ResponseWriter) {
	s.mu.Lock()
	ids := append([]string(nil), s.order...)
	s.mu.Unlock()
	sort.Strings(ids)

	var b strings.Builder
	b.WriteString("<html><body><pre>\n<a href=\"../\">../</a>\n")
	for _, id := range ids {
		fmt.Fprintf(&b, "<a href=\"%s/\">%s/</a>\n", id, id)
	}
	b.WriteString("</pre></body></html>\n")
	_, _ = w.Write([]byte(b.String()))
}

// PrimaryXML renders the uncompressed package list for repo.
func PrimaryXML(repo Repo) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<?xml version="1.0" encoding="UTF-8"?>
<metadata xmlns="http://linux.duke.edu/metadata/common" xmlns:rpm="http://linux.duke.edu/metadata/rpm" packages="%d">
`, len(repo.Packages))
	for _, p := range repo.Packages {
		fmt.Fprintf(&b, `<package type="rpm">
  <name>%s</name>
  <arch>noarch</arch>
  <version epoch="0" ver="1.0" rel="1"/>
  <location href="%s"/>
</package>
`, p.Name, p.Href)
	}
	b.WriteString("</metadata>\n")
	return b.String()
}

func primaryGz(repo Repo) ([]byte, string) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write([]byte(PrimaryXML(repo)))
	_ = zw.Close()
	h := sha256.Sum256(buf.Bytes())
	return buf.Bytes(), hex.EncodeToString(h[:])
}

func repomdXML(repo Repo, sum string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<repomd xmlns="http://linux.duke.edu/metadata/repo" xmlns:rpm="http://linux.duke.edu/metadata/rpm">
  <revision>1700000000</revision>
`)
	switch {
	case repo.OmitPrimary:
	case repo.OmitLocation:
		fmt.Fprintf(&b, `  <data type="primary">
    <checksum type="sha256">%s</checksum>
    <size>1</size>
  </data>
`, sum)
	default:
		fmt.Fprintf(&b, `  <data type="primary">
    <checksum type="sha256">%s</checksum>
    <location href="repodata/%s-primary.xml.gz"/>
    <size>1</size>
  </data>
`, sum, sum)
	}
	b.WriteString(`  <data type="filelists">
    <checksum type="sha256">ffff</checksum>
    <location href="repodata/ffff-filelists.xml.gz"/>
  </data>
</repomd>
`)
	return b.String()
}
