// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package dedup records which items were delivered and the highest delivered
// item ID (the watermark), so every item is delivered at most once per cache.
package dedup

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.astrophena.name/chirp/internal/store"
)

// WatermarkKey is the reserved key holding the watermark.
const WatermarkKey = "since_id"

// DefaultWatermark is the watermark of an empty cache.
const DefaultWatermark int64 = 1

// CacheError is returned when the underlying store fails.
type CacheError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheError) Error() string {
	s := "cache " + e.Op
	if e.Key != "" {
		s += " " + strconv.Quote(e.Key)
	}
	return s + ": " + e.Err.Error()
}

func (e *CacheError) Unwrap() error { return e.Err }

// Cache is the dedup cache on top of a [store.Store].
type Cache struct {
	s store.Store
}

// New returns a Cache backed by s.
func New(s store.Store) *Cache {
	return &Cache{s: s}
}

// Open opens the store described by dsn and returns a Cache backed by it.
func Open(ctx context.Context, dsn string) (*Cache, error) {
	s, err := store.Open(ctx, dsn)
	if err != nil {
		return nil, &CacheError{Op: "open", Err: err}
	}
	return New(s), nil
}

// Key returns the dedup key of the item id from source. Sources are
// case-insensitive.
func Key(source string, id int64) string {
	return strings.ToLower(source) + "/" + strconv.FormatInt(id, 10)
}

// Watermark returns the current watermark, or [DefaultWatermark] if none was
// recorded yet.
func (c *Cache) Watermark(ctx context.Context) (int64, error) {
	v, ok, err := c.s.Get(ctx, WatermarkKey)
	if err != nil {
		return 0, &CacheError{Op: "get", Key: WatermarkKey, Err: err}
	}
	if !ok {
		return DefaultWatermark, nil
	}
	wm, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, &CacheError{Op: "get", Key: WatermarkKey, Err: err}
	}
	return wm, nil
}

// Seen reports whether key was marked delivered.
func (c *Cache) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := c.s.Contains(ctx, key)
	if err != nil {
		return false, &CacheError{Op: "lookup", Key: key, Err: err}
	}
	return ok, nil
}

// MarkDelivered records key as delivered at now and raises the watermark to
// id if it is higher. The watermark never decreases, even when several
// processes share the store.
func (c *Cache) MarkDelivered(ctx context.Context, key string, id int64, now time.Time) error {
	if err := c.s.Set(ctx, key, strconv.FormatInt(now.Unix(), 10)); err != nil {
		return &CacheError{Op: "set", Key: key, Err: err}
	}
	if err := c.s.SetMax(ctx, WatermarkKey, id); err != nil {
		return &CacheError{Op: "set", Key: WatermarkKey, Err: err}
	}
	return nil
}

// Close closes the underlying store.
func (c *Cache) Close() error {
	if err := c.s.Close(); err != nil {
		return &CacheError{Op: "close", Err: err}
	}
	return nil
}
