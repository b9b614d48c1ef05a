// Package catalog holds the data shared by the lookup backend and the
// download form: the list of SailfishOS releases with their architectures
// and the pair of package links resolved for one repository.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
)

// ErrInvalidRepoID is returned for repository identifiers that are not
// of the form {version}_{arch}.
var ErrInvalidRepoID = errors.New("invalid repository id")

// Release is one SailfishOS version and the architectures built for it.
type Release struct {
	Version       string
	Architectures []string
}

// MarshalJSON encodes a release as the [version, [arch, ...]] tuple the
// download page expects.
func (r Release) MarshalJSON() ([]byte, error) {
	archs := r.Architectures
	if archs == nil {
		archs = []string{}
	}
	return json.Marshal([]interface{}{r.Version, archs})
}

// UnmarshalJSON decodes the [version, [arch, ...]] tuple form.
func (r *Release) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("decoding release tuple: %w", err)
	}
	if len(tuple) != 2 {
		return fmt.Errorf("release tuple has %d elements, want 2", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &r.Version); err != nil {
		return fmt.Errorf("decoding release version: %w", err)
	}
	if err := json.Unmarshal(tuple[1], &r.Architectures); err != nil {
		return fmt.Errorf("decoding release architectures: %w", err)
	}
	return nil
}

// Supports reports whether arch is built for this release.
func (r Release) Supports(arch string) bool {
	return slices.Contains(r.Architectures, arch)
}

// Catalog is the ordered list of releases, newest first.
type Catalog []Release

// Find returns the release with the given version.
func (c Catalog) Find(version string) (Release, bool) {
	for _, r := range c {
		if r.Version == version {
			return r, true
		}
	}
	return Release{}, false
}

// Versions returns the release versions in catalog order.
func (c Catalog) Versions() []string {
	versions := make([]string, 0, len(c))
	for _, r := range c {
		versions = append(versions, r.Version)
	}
	return versions
}

// RepoIDs returns every {version}_{arch} pair in the catalog.
func (c Catalog) RepoIDs() []string {
	var ids []string
	for _, r := range c {
		for _, a := range r.Architectures {
			ids = append(ids, RepoID(r.Version, a))
		}
	}
	return ids
}

// SortDescending orders releases newest first by numeric version segments.
func (c Catalog) SortDescending() {
	slices.SortStableFunc(c, func(a, b Release) int {
		return CompareVersions(b.Version, a.Version)
	})
}

// Links holds the resolved download URLs for one repository.
// An empty field means the package is not published there.
type Links struct {
	Chum string `json:"chum,omitempty"`
	GUI  string `json:"gui,omitempty"`
}

// FileName returns the last path segment of a download URL, which is what
// the download page shows as the link text.
func FileName(url string) string {
	if url == "" {
		return ""
	}
	return path.Base(strings.TrimRight(url, "/"))
}

// RepoID joins a version and architecture into the OBS directory name.
func RepoID(version, arch string) string {
	return version + "_" + arch
}

// ParseRepoID splits a repository id into version and architecture.
// The version must be four dot-separated numbers and the architecture a
// single word, matching the directories listed on the OBS index.
func ParseRepoID(id string) (version, arch string, err error) {
	i := strings.LastIndex(id, "_")
	if i <= 0 || i == len(id)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRepoID, id)
	}
	version, arch = id[:i], id[i+1:]
	if !ValidVersion(version) {
		return "", "", fmt.Errorf("%w: bad version in %q", ErrInvalidRepoID, id)
	}
	for _, r := range arch {
		if !isWordRune(r) {
			return "", "", fmt.Errorf("%w: bad architecture in %q", ErrInvalidRepoID, id)
		}
	}
	return version, arch, nil
}

func isWordRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
