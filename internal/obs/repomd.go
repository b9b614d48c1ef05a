package obs

import (
	"encoding/xml"
	"errors"
	"fmt"
)

// ErrNoPrimary is returned when repomd.xml lacks usable primary metadata.
var ErrNoPrimary = errors.New("no primary metadata in repomd.xml")

// Repomd represents the structure of repodata/repomd.xml
type Repomd struct {
	XMLName  xml.Name     `xml:"repomd"`
	Revision string       `xml:"revision"`
	Data     []RepomdData `xml:"data"`
}

// RepomdData is one <data type="..."> entry
type RepomdData struct {
	Type     string         `xml:"type,attr"`
	Location RepomdLocation `xml:"location"`
	Checksum RepomdChecksum `xml:"checksum"`
	Size     int64          `xml:"size"`
}

// RepomdLocation represents the location element
type RepomdLocation struct {
	Href string `xml:"href,attr"`
}

// RepomdChecksum represents the checksum element
type RepomdChecksum struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

// PrimaryRef points at the primary package list and identifies its content.
type PrimaryRef struct {
	Href     string
	Checksum string
}

// ParseRepomd parses repomd.xml data
func ParseRepomd(data []byte) (*Repomd, error) {
	var repomd Repomd
	if err := xml.Unmarshal(data, &repomd); err != nil {
		return nil, fmt.Errorf("parsing repomd.xml: %w", err)
	}
	return &repomd, nil
}

// FindPrimary returns the checksum and location of the primary metadata.
// The checksum is always required. Href may be empty; call RequireHref
// before downloading.
func (r *Repomd) FindPrimary() (PrimaryRef, error) {
	for _, data := range r.Data {
		if data.Type != "primary" {
			continue
		}
		if data.Checksum.Value == "" {
			return PrimaryRef{}, fmt.Errorf("%w: \"primary\" data has no \"checksum\"", ErrNoPrimary)
		}
		return PrimaryRef{Href: data.Location.Href, Checksum: data.Checksum.Value}, nil
	}
	return PrimaryRef{}, fmt.Errorf("%w: cannot find \"primary\" data", ErrNoPrimary)
}

// RequireHref fails when the primary metadata has no location.
func (p PrimaryRef) RequireHref() error {
	if p.Href == "" {
		return fmt.Errorf("%w: \"primary\" data has no \"location\" href", ErrNoPrimary)
	}
	return nil
}
