package model

import (
	"net/http"
	"strings"
)

// PartitionKind separates eagerly installed assets from lazily cached ones.
type PartitionKind string

const (
	PartitionPrecache PartitionKind = "precache"
	PartitionDynamic  PartitionKind = "dynamic"
)

// CachePartition is a named, versioned bucket of cached responses.
type CachePartition struct {
	Name       string        `json:"name"`
	VersionTag string        `json:"versionTag"`
	Kind       PartitionKind `json:"kind"`
}

// PartitionName builds the storage name for a kind and version.
func PartitionName(kind PartitionKind, version string) string {
	return string(kind) + "-" + version
}

// ParsePartition splits a storage name back into its parts.
func ParsePartition(name string) (CachePartition, bool) {
	for _, k := range []PartitionKind{PartitionPrecache, PartitionDynamic} {
		prefix := string(k) + "-"
		if strings.HasPrefix(name, prefix) && len(name) > len(prefix) {
			return CachePartition{Name: name, VersionTag: name[len(prefix):], Kind: k}, true
		}
	}
	return CachePartition{}, false
}

// CacheEntry is one stored response. Entries never expire on their own;
// they disappear with their partition.
type CacheEntry struct {
	RequestKey string      `json:"requestKey"`
	Status     int         `json:"status"`
	Header     http.Header `json:"header,omitempty"`
	Body       []byte      `json:"body"`
}
