// Package cache owns the versioned response partitions of the offline
// agent: the storage backends, the per-version install/activate manager and
// the maintenance sweeper.
package cache

import (
	"context"
	"encoding/hex"
	"errors"

	"github.com/quocanhngo/eventspot/internal/model"
	"golang.org/x/crypto/blake2b"
)

var (
	// ErrMiss is returned when no entry exists for a request key.
	ErrMiss = errors.New("cache miss")
	// ErrPrecache is returned when a manifest asset cannot be fetched during install.
	ErrPrecache = errors.New("precache failed")
)

// Store persists partitions. Implementations must be safe for concurrent
// use; concurrent writes to the same key resolve as last write wins.
type Store interface {
	// Put writes entries into a partition, creating it if needed.
	Put(ctx context.Context, partition string, entries ...model.CacheEntry) error
	// Get returns the entry for key or ErrMiss.
	Get(ctx context.Context, partition, key string) (*model.CacheEntry, error)
	// Partitions lists every existing partition name.
	Partitions(ctx context.Context) ([]string, error)
	// Len returns the number of entries in a partition.
	Len(ctx context.Context, partition string) (int, error)
	// Drop deletes a partition and all of its entries.
	Drop(ctx context.Context, partition string) error
}

// hashKey turns a request key into a fixed-length name safe for object
// paths and hash fields.
func hashKey(key string) string {
	sum := blake2b.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
