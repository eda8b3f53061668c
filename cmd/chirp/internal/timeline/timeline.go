// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package timeline fetches the recent items of a source, either from the
// timeline API or from an RSS/Atom rendition of it.
package timeline

import (
	"context"

	"go.astrophena.name/chirp/cmd/chirp/internal/auth"
)

// PageSize is the maximum number of items a single fetch returns.
const PageSize = 10

// Item is an item returned by a fetch.
type Item struct {
	ID      int64
	RawText string
	// AboveWatermark reports whether ID is greater than the watermark the
	// fetch was made with.
	AboveWatermark bool
}

// Fetcher fetches the items of a source newer than a watermark.
type Fetcher interface {
	FetchSince(ctx context.Context, source string, watermark int64, tok auth.Token) ([]Item, error)
}

// FetchError is returned when fetching a source fails.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return "fetching " + e.Source + ": " + e.Err.Error()
}

func (e *FetchError) Unwrap() error { return e.Err }
