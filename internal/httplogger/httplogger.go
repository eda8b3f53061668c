// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package httplogger provides an [http.RoundTripper] that logs outgoing
// requests and their outcome at debug level.
package httplogger

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Transport logs requests made through the wrapped RoundTripper.
type Transport struct {
	// Base is the wrapped RoundTripper. If nil, http.DefaultTransport is used.
	Base http.RoundTripper
	// Logger receives the records.
	Logger *slog.Logger
	// Scrubber, if not nil, is applied to logged URLs and errors, so secrets
	// that end up in them aren't logged.
	Scrubber *strings.Replacer
	// now acts as time.Now, but can be mocked for testing.
	now func() time.Time
}

// Client returns a copy of c with its transport wrapped for logging.
func Client(c *http.Client, l *slog.Logger, scrubber *strings.Replacer) *http.Client {
	wrapped := *c
	wrapped.Transport = &Transport{Base: c.Transport, Logger: l, Scrubber: scrubber}
	return &wrapped
}

// RoundTrip implements the [http.RoundTripper] interface.
func (t *Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	now := t.now
	if now == nil {
		now = time.Now
	}

	start := now()
	resp, err := base.RoundTrip(r)

	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("url", t.scrub(r.URL.String())),
		slog.Duration("duration", now().Sub(start)),
	}
	if resp != nil {
		attrs = append(attrs, slog.Int("status", resp.StatusCode))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", t.scrub(err.Error())))
	}
	t.Logger.LogAttrs(r.Context(), slog.LevelDebug, "http request", attrs...)

	return resp, err
}

func (t *Transport) scrub(s string) string {
	if t.Scrubber == nil {
		return s
	}
	return t.Scrubber.Replace(s)
}
