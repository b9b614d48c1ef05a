package catalog

import (
	"strconv"
	"strings"
)

// AArch64 is the architecture gated by the release cutoff on the static form.
const AArch64 = "aarch64"

// ValidVersion reports whether v is a four-part SailfishOS version such as 4.0.1.48.
func ValidVersion(v string) bool {
	parts := strings.Split(v, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
		for _, r := range p {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}

// CompareVersions compares dotted numeric versions segment by segment and
// returns -1, 0 or 1. Missing segments count as zero; a non-numeric
// segment falls back to string comparison.
func CompareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := max(len(as), len(bs))
	for i := 0; i < n; i++ {
		var x, y string
		if i < len(as) {
			x = as[i]
		}
		if i < len(bs) {
			y = bs[i]
		}
		if c := compareSegment(x, y); c != 0 {
			return c
		}
	}
	return 0
}

func compareSegment(x, y string) int {
	xi, xerr := segmentValue(x)
	yi, yerr := segmentValue(y)
	if xerr == nil && yerr == nil {
		switch {
		case xi < yi:
			return -1
		case xi > yi:
			return 1
		}
		return 0
	}
	return strings.Compare(x, y)
}

func segmentValue(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

// ArchitecturesFor filters a static architecture list for version: aarch64
// is only offered from minAArch64 onwards. An empty cutoff disables the rule.
func ArchitecturesFor(version string, archs []string, minAArch64 string) []string {
	out := make([]string, 0, len(archs))
	for _, a := range archs {
		if a == AArch64 && minAArch64 != "" && CompareVersions(version, minAArch64) < 0 {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Static builds a catalog from a fixed version list, applying the aarch64 cutoff.
func Static(versions, archs []string, minAArch64 string) Catalog {
	c := make(Catalog, 0, len(versions))
	for _, v := range versions {
		c = append(c, Release{
			Version:       v,
			Architectures: ArchitecturesFor(v, archs, minAArch64),
		})
	}
	return c
}
