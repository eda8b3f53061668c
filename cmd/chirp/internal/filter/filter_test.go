// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package filter

import (
	"context"
	"errors"
	"testing"

	"go.astrophena.name/chirp/cmd/chirp/internal/config"
	"go.astrophena.name/chirp/cmd/chirp/internal/timeline"
	"go.astrophena.name/chirp/internal/testutil"
)

type fakeCache struct {
	seen    map[string]bool
	lookups []string
	err     error
}

func (c *fakeCache) Seen(_ context.Context, key string) (bool, error) {
	c.lookups = append(c.lookups, key)
	return c.seen[key], c.err
}

func TestStripMarkup(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"plain":                          "plain",
		"<b>bold</b> and <i>it</i>":      "bold and it",
		"Tom &amp; Jerry":                "Tom & Jerry",
		`<a href="https://x">link</a>`:   "link",
		"a &lt; b":                       "a < b",
		"quotes \"stay\" and 'single'":   "quotes \"stay\" and 'single'",
		"<p>multi</p>\n<p>paragraph</p>": "multi\nparagraph",
	}
	for in, want := range cases {
		t.Run(in, func(t *testing.T) {
			testutil.AssertEqual(t, StripMarkup(in), want)
		})
	}
}

func TestAccept(t *testing.T) {
	t.Parallel()

	feed := config.Feed{Source: "Alice", Destinations: []string{"#a", "#b"}}
	item := timeline.Item{ID: 105, RawText: "line one\n<b>line</b> two", AboveWatermark: true}

	cache := &fakeCache{}
	var f Filter
	got, err := f.Accept(t.Context(), item, feed, cache)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, got, &Entry{
		Source:       "Alice",
		ItemID:       105,
		Text:         "line one line two",
		Permalink:    "https://twitter.com/Alice/status/105",
		DedupKey:     "alice/105",
		Destinations: []string{"#a", "#b"},
	})
	testutil.AssertEqual(t, cache.lookups, []string{"alice/105"})

	// The entry owns its destinations.
	got.Destinations[0] = "#changed"
	testutil.AssertEqual(t, feed.Destinations[0], "#a")
}

func TestAcceptPermalinkBase(t *testing.T) {
	t.Parallel()

	f := &Filter{PermalinkBase: "https://x.com/"}
	got, err := f.Accept(t.Context(), timeline.Item{ID: 7, RawText: "hi"}, config.Feed{Source: "bob", Destinations: []string{"#a"}}, &fakeCache{})
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, got.Permalink, "https://x.com/bob/status/7")
}

func TestAcceptPattern(t *testing.T) {
	t.Parallel()

	feed := config.Feed{Source: "bob", Destinations: []string{"#a"}, Pattern: "release"}
	var f Filter

	t.Run("no match skips the cache", func(t *testing.T) {
		cache := &fakeCache{}
		got, err := f.Accept(t.Context(), timeline.Item{ID: 1, RawText: "just chatting"}, feed, cache)
		if err != nil {
			t.Fatal(err)
		}
		if got != nil {
			t.Fatalf("want nil entry, got %+v", got)
		}
		testutil.AssertEqual(t, len(cache.lookups), 0)
	})

	t.Run("match is case sensitive", func(t *testing.T) {
		got, err := f.Accept(t.Context(), timeline.Item{ID: 2, RawText: "New Release out"}, feed, &fakeCache{})
		if err != nil {
			t.Fatal(err)
		}
		if got != nil {
			t.Fatalf("want nil entry, got %+v", got)
		}
	})

	t.Run("match after stripping markup", func(t *testing.T) {
		got, err := f.Accept(t.Context(), timeline.Item{ID: 3, RawText: "new <b>rel</b>ease"}, feed, &fakeCache{})
		if err != nil {
			t.Fatal(err)
		}
		if got == nil {
			t.Fatal("want entry")
		}
		testutil.AssertEqual(t, got.Text, "new release")
	})
}

func TestAcceptSeen(t *testing.T) {
	t.Parallel()

	cache := &fakeCache{seen: map[string]bool{"bob/9": true}}
	var f Filter
	got, err := f.Accept(t.Context(), timeline.Item{ID: 9, RawText: "again"}, config.Feed{Source: "BOB", Destinations: []string{"#a"}}, cache)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("want nil entry, got %+v", got)
	}
}

func TestAcceptCacheError(t *testing.T) {
	t.Parallel()

	errBroken := errors.New("broken")
	var f Filter
	_, err := f.Accept(t.Context(), timeline.Item{ID: 9, RawText: "x"}, config.Feed{Source: "bob", Destinations: []string{"#a"}}, &fakeCache{err: errBroken})
	if !errors.Is(err, errBroken) {
		t.Fatalf("want %v, got %v", errBroken, err)
	}
}
