// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package store implements a persistent string key-value store backed by
// memory, a JSON file, SQLite, PostgreSQL or Redis.
//
// Entries never expire. Callers that need eviction must implement it
// themselves.
package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Store is a generic interface for a key-value store.
type Store interface {
	// Get retrieves a value for a given key. ok is false if the key is not
	// found.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores a value for a given key.
	Set(ctx context.Context, key, value string) error
	// Contains reports whether the key is present.
	Contains(ctx context.Context, key string) (bool, error)
	// SetMax atomically stores n for a given key unless the key already
	// holds an integer that is not lower than n. Stores shared between
	// processes must keep this atomic across all of them.
	SetMax(ctx context.Context, key string, n int64) error
	// Close closes the store and releases any resources.
	Close() error
}

// lower reports whether v, a stored value, should be replaced by n in SetMax.
// Missing and malformed values are replaced.
func lower(v string, n int64) bool {
	cur, err := strconv.ParseInt(v, 10, 64)
	return err != nil || cur < n
}

// Open opens the store described by dsn:
//
//   - "mem:<name>" is an in-process store shared by every Open of the same
//     name;
//   - "json:<path>" or a path ending in ".json" is a JSON file;
//   - "sqlite:<path>" or a path ending in ".db" is a SQLite database;
//   - "postgres://..." or "postgresql://..." is a PostgreSQL database;
//   - "redis://..." or "rediss://..." is a Redis server.
func Open(ctx context.Context, dsn string) (Store, error) {
	scheme, rest, _ := strings.Cut(dsn, ":")
	switch {
	case scheme == "mem":
		return OpenMem(rest), nil
	case scheme == "json":
		return NewJSONFile(rest)
	case scheme == "sqlite":
		return NewSQLiteStore(ctx, rest)
	case scheme == "postgres" || scheme == "postgresql":
		return NewPostgresStore(ctx, dsn)
	case scheme == "redis" || scheme == "rediss":
		return NewRedisStore(ctx, dsn)
	case strings.HasSuffix(dsn, ".json"):
		return NewJSONFile(dsn)
	case strings.HasSuffix(dsn, ".db"):
		return NewSQLiteStore(ctx, dsn)
	}
	return nil, fmt.Errorf("store: unsupported DSN %q", dsn)
}
