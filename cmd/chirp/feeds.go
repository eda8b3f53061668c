// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"go.astrophena.name/chirp/cmd/chirp/internal/config"
	"go.astrophena.name/chirp/cmd/chirp/internal/dedup"
	"go.astrophena.name/chirp/internal/cli"
)

func (a *app) listFeeds(ctx context.Context, w io.Writer) (err error) {
	cfg, err := a.loadConfig(cli.GetEnv(ctx))
	if err != nil {
		return err
	}

	cache, err := dedup.Open(ctx, a.cacheDSN)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := cache.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	wm, err := cache.Watermark(ctx)
	if err != nil {
		return err
	}

	if a.json {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Watermark int64         `json:"watermark"`
			Feeds     []config.Feed `json:"feeds"`
		}{wm, cfg.Feeds})
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tCHANNELS\tPATTERN\tSOURCE")
	for _, f := range cfg.Feeds {
		pattern, source := "-", "api"
		if f.Pattern != "" {
			pattern = fmt.Sprintf("%q", f.Pattern)
		}
		if f.Bridge != "" {
			source = f.Bridge
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Source, strings.Join(f.Destinations, ","), pattern, source)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d feeds, watermark %d\n", len(cfg.Feeds), wm)
	return nil
}
