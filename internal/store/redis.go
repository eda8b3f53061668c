// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis implementation of the [Store] interface. Keys are
// stored as plain strings without expiration.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to the Redis server at url and checks that it
// responds.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return &RedisStore{rdb: rdb}, nil
}

// Get retrieves a value for a given key.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set stores a value for a given key.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.rdb.Set(ctx, key, value, 0).Err()
}

// setMaxScript compares decimal strings by length first so that IDs above
// 2^53 are not rounded by Lua numbers. Negative values are not supported.
var setMaxScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
local n = ARGV[1]
if not cur or not string.match(cur, "^%d+$") or #cur < #n or (#cur == #n and cur < n) then
	redis.call("SET", KEYS[1], n)
end
return 0
`)

// SetMax stores n for a given key unless it holds a higher or equal integer.
// It runs as a script, so it is atomic for every client of the server.
func (s *RedisStore) SetMax(ctx context.Context, key string, n int64) error {
	if n < 0 {
		return fmt.Errorf("store: SetMax of negative value %d", n)
	}
	return setMaxScript.Run(ctx, s.rdb, []string{key}, strconv.FormatInt(n, 10)).Err()
}

// Contains reports whether the key is present.
func (s *RedisStore) Contains(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
