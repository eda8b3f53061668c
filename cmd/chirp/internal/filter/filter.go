// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package filter decides which fetched items become delivery entries.
package filter

import (
	"context"
	"html"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"go.astrophena.name/chirp/cmd/chirp/internal/config"
	"go.astrophena.name/chirp/cmd/chirp/internal/dedup"
	"go.astrophena.name/chirp/cmd/chirp/internal/timeline"
)

// Entry is an item accepted for delivery.
type Entry struct {
	Source       string   `json:"source"`
	ItemID       int64    `json:"item_id"`
	Text         string   `json:"text"`
	Permalink    string   `json:"permalink"`
	DedupKey     string   `json:"dedup_key"`
	Destinations []string `json:"destinations"`
}

// Seener reports whether a dedup key was already delivered.
type Seener interface {
	Seen(ctx context.Context, key string) (bool, error)
}

// Filter turns fetched items into entries. The zero value is ready to use.
type Filter struct {
	// PermalinkBase is the base of item permalinks. If empty,
	// config.DefaultPermalinkBase is used.
	PermalinkBase string
}

var strict = bluemonday.StrictPolicy()

// StripMarkup removes HTML tags from s and decodes entities.
func StripMarkup(s string) string {
	return html.UnescapeString(strict.Sanitize(s))
}

// Accept returns the entry for item, or nil if the item must not be
// delivered: its text doesn't contain the feed pattern, or it was already
// delivered. The cache is consulted only for items matching the pattern.
func (f *Filter) Accept(ctx context.Context, item timeline.Item, feed config.Feed, cache Seener) (*Entry, error) {
	text := StripMarkup(item.RawText)
	if feed.Pattern != "" && !strings.Contains(text, feed.Pattern) {
		return nil, nil
	}

	key := dedup.Key(feed.Source, item.ID)
	seen, err := cache.Seen(ctx, key)
	if err != nil {
		return nil, err
	}
	if seen {
		return nil, nil
	}

	base := f.PermalinkBase
	if base == "" {
		base = config.DefaultPermalinkBase
	}

	return &Entry{
		Source:       feed.Source,
		ItemID:       item.ID,
		Text:         strings.ReplaceAll(text, "\n", " "),
		Permalink:    strings.TrimSuffix(base, "/") + "/" + feed.Source + "/status/" + strconv.FormatInt(item.ID, 10),
		DedupKey:     key,
		Destinations: append([]string(nil), feed.Destinations...),
	}, nil
}
