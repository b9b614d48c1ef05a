package store

import "time"

// RepoCacheEntry stores the links resolved for one repository together with
// the primary metadata checksum they were resolved from.
type RepoCacheEntry struct {
	RepoID     string
	Checksum   string
	ChumURL    string
	GUIURL     string
	FetchedAt  time.Time
	Hits       int64
	LastServed time.Time
}
