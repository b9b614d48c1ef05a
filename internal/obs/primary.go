package obs

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// PrimaryXML represents the root metadata element of primary.xml
type PrimaryXML struct {
	XMLName  xml.Name  `xml:"metadata"`
	Packages int       `xml:"packages,attr"`
	Package  []Package `xml:"package"`
}

// Package represents a single rpm package in primary.xml
type Package struct {
	Type     string   `xml:"type,attr"`
	Name     string   `xml:"name"`
	Arch     string   `xml:"arch"`
	Version  Version  `xml:"version"`
	Location Location `xml:"location"`
}

// Version represents the version element
type Version struct {
	Epoch string `xml:"epoch,attr"`
	Ver   string `xml:"ver,attr"`
	Rel   string `xml:"rel,attr"`
}

// Location represents the location element
type Location struct {
	Href string `xml:"href,attr"`
}

// ParsePrimary parses primary.xml data.
// The decoder is lenient so that unknown entities in package descriptions
// do not abort the parse.
func ParsePrimary(data []byte) (*PrimaryXML, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Entity = map[string]string{}
	decoder.Strict = false

	var metadata PrimaryXML
	if err := decoder.Decode(&metadata); err != nil {
		return nil, fmt.Errorf("parsing primary.xml: %w", err)
	}
	return &metadata, nil
}

// FindHrefs returns the location href of each named package that has one.
// When several builds of a package are listed the last one wins.
func (p *PrimaryXML) FindHrefs(names ...string) map[string]string {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	found := make(map[string]string, len(names))
	for _, pkg := range p.Package {
		if !wanted[pkg.Name] || pkg.Location.Href == "" {
			continue
		}
		found[pkg.Name] = pkg.Location.Href
	}
	return found
}
