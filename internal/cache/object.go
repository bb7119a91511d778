package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/quocanhngo/eventspot/internal/model"
	"github.com/quocanhngo/eventspot/pkg/storage"
)

// ObjectStore keeps partitions in a blob bucket, one object per entry at
// "<partition>/<hashed key>.json". It survives agent restarts.
type ObjectStore struct {
	blobs storage.Storage
}

func NewObjectStore(blobs storage.Storage) *ObjectStore {
	return &ObjectStore{blobs: blobs}
}

func (s *ObjectStore) Put(ctx context.Context, partition string, entries ...model.CacheEntry) error {
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal entry %s: %w", e.RequestKey, err)
		}
		if err := s.blobs.Put(ctx, objectKey(partition, e.RequestKey), data, "application/json"); err != nil {
			return err
		}
	}
	return nil
}

func (s *ObjectStore) Get(ctx context.Context, partition, key string) (*model.CacheEntry, error) {
	data, err := s.blobs.Get(ctx, objectKey(partition, key))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}

	var e model.CacheEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode entry %s: %w", key, err)
	}
	return &e, nil
}

func (s *ObjectStore) Partitions(ctx context.Context) ([]string, error) {
	keys, err := s.blobs.List(ctx, "", false)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, k := range keys {
		if strings.HasSuffix(k, "/") {
			names = append(names, strings.TrimSuffix(k, "/"))
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *ObjectStore) Len(ctx context.Context, partition string) (int, error) {
	keys, err := s.blobs.List(ctx, partition+"/", true)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (s *ObjectStore) Drop(ctx context.Context, partition string) error {
	return s.blobs.RemovePrefix(ctx, partition+"/")
}

func objectKey(partition, key string) string {
	return partition + "/" + hashKey(key) + ".json"
}
