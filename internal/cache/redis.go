package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/quocanhngo/eventspot/internal/model"
	"github.com/redis/go-redis/v9"
)

const (
	redisPartitionSet = "eventspot:cache:partitions"
	redisPartitionKey = "eventspot:cache:partition:"
)

// RedisStore keeps each partition in a Redis hash keyed by the hashed
// request key. The set of partition names lives in a separate Redis set.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Put(ctx context.Context, partition string, entries ...model.CacheEntry) error {
	values := make(map[string]interface{}, len(entries))
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal entry %s: %w", e.RequestKey, err)
		}
		values[hashKey(e.RequestKey)] = data
	}

	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, redisPartitionSet, partition)
	if len(values) > 0 {
		pipe.HSet(ctx, redisPartitionKey+partition, values)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put %s: %w", partition, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, partition, key string) (*model.CacheEntry, error) {
	data, err := s.rdb.HGet(ctx, redisPartitionKey+partition, hashKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", partition, err)
	}

	var e model.CacheEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode entry %s: %w", key, err)
	}
	return &e, nil
}

func (s *RedisStore) Partitions(ctx context.Context) ([]string, error) {
	names, err := s.rdb.SMembers(ctx, redisPartitionSet).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list partitions: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *RedisStore) Len(ctx context.Context, partition string) (int, error) {
	n, err := s.rdb.HLen(ctx, redisPartitionKey+partition).Result()
	if err != nil {
		return 0, fmt.Errorf("redis len %s: %w", partition, err)
	}
	return int(n), nil
}

func (s *RedisStore) Drop(ctx context.Context, partition string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, redisPartitionKey+partition)
	pipe.SRem(ctx, redisPartitionSet, partition)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis drop %s: %w", partition, err)
	}
	return nil
}
