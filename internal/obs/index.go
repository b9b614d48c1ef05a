package obs

import (
	"regexp"

	"github.com/BadgerOps/chumweb/internal/catalog"
)

// repoDirRegex matches the per-release directory links on the OBS project
// index, e.g. >4.1.0.24_aarch64/<.
var repoDirRegex = regexp.MustCompile(`>(\d+\.\d+\.\d+\.\d+)_(\w+)/<`)

// ParseIndex extracts the release catalog from the OBS index page.
// Consecutive entries for the same version are grouped; the result is
// sorted newest first.
func ParseIndex(data []byte) catalog.Catalog {
	var releases catalog.Catalog
	for _, m := range repoDirRegex.FindAllSubmatch(data, -1) {
		version, arch := string(m[1]), string(m[2])
		if n := len(releases); n == 0 || releases[n-1].Version != version {
			releases = append(releases, catalog.Release{Version: version})
		}
		last := &releases[len(releases)-1]
		last.Architectures = append(last.Architectures, arch)
	}
	releases.SortDescending()
	return releases
}
