// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package timeline

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"

	"go.astrophena.name/chirp/cmd/chirp/internal/auth"
	"go.astrophena.name/chirp/internal/request"
)

// Bridge fetches timelines from RSS or Atom feeds that mirror them, such as
// ones served by Nitter instances. It needs no token.
//
// URL contains a single %s that is replaced by the escaped source, for
// example "https://nitter.example/%s/rss". Other percent signs are left as
// is, so URL may contain percent-encoded characters.
type Bridge struct {
	URL        string
	HTTPClient *http.Client
}

// bridgeURL substitutes source for %s in tmpl. Past a '?' the source is
// escaped as a query value, otherwise as a path segment.
func bridgeURL(tmpl, source string) string {
	i := strings.Index(tmpl, "%s")
	if i < 0 {
		return tmpl
	}
	esc := url.PathEscape(source)
	if strings.Contains(tmpl[:i], "?") {
		esc = url.QueryEscape(source)
	}
	return tmpl[:i] + esc + tmpl[i+len("%s"):]
}

var statusIDRe = regexp.MustCompile(`/status(?:es)?/(\d+)`)

// FetchSince implements the [Fetcher] interface.
func (b *Bridge) FetchSince(ctx context.Context, source string, watermark int64, _ auth.Token) ([]Item, error) {
	u := bridgeURL(b.URL, source)

	raw, err := request.Make[request.Bytes](ctx, request.Params{
		Method:     http.MethodGet,
		URL:        u,
		HTTPClient: b.HTTPClient,
	})
	if err != nil {
		return nil, &FetchError{Source: source, Err: err}
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, &FetchError{Source: source, Err: fmt.Errorf("parsing feed %q: %w", u, err)}
	}

	var items []Item
	for _, fi := range feed.Items {
		id, ok := itemID(fi)
		if !ok || id <= watermark {
			continue
		}
		text := fi.Description
		if text == "" {
			text = fi.Title
		}
		items = append(items, Item{
			ID:             id,
			RawText:        text,
			AboveWatermark: true,
		})
		if len(items) == PageSize {
			break
		}
	}
	return items, nil
}

func itemID(fi *gofeed.Item) (int64, bool) {
	for _, s := range []string{fi.Link, fi.GUID} {
		m := statusIDRe.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err == nil {
			return id, true
		}
	}
	return 0, false
}
