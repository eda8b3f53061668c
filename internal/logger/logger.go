// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package logger holds the logging plumbing shared by commands: a printf-like
// Logf type, a leveled [slog.Logger] carried in a context, and a ring buffer
// that keeps recent log lines for inspection over HTTP.
package logger

import (
	"container/ring"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

// Logf is a printf-like logging function. Logf functions must be safe for
// concurrent use.
type Logf func(format string, args ...any)

// Write implements the [io.Writer] interface.
func (f Logf) Write(p []byte) (n int, err error) {
	f("%s", p)
	return len(p), nil
}

// Logger is a structured logger with an adjustable level.
type Logger struct {
	*slog.Logger
	Level *slog.LevelVar
}

// New returns a Logger writing text records to w at info level.
func New(w io.Writer) *Logger {
	level := new(slog.LevelVar)
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})),
		Level:  level,
	}
}

type ctxKey struct{}

// Put returns a copy of ctx carrying l.
func Put(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// Get returns the Logger carried by ctx. If there is none, it returns a Logger
// that discards everything, so callers never have to check for nil.
func Get(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return New(io.Discard)
}

// Ring keeps the last N complete lines written to it.
type Ring struct {
	mu        sync.Mutex
	r         *ring.Ring
	remainder string
}

// NewRing returns a Ring holding at most size lines.
func NewRing(size int) *Ring {
	return &Ring{r: ring.New(size)}
}

// Write implements the [io.Writer] interface. Incomplete trailing lines are
// buffered until the next newline.
func (lr *Ring) Write(b []byte) (int, error) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	text := lr.remainder + string(b)
	for {
		idx := strings.IndexByte(text, '\n')
		if idx == -1 {
			break
		}
		lr.r.Value = text[:idx+1]
		lr.r = lr.r.Next()
		text = text[idx+1:]
	}
	lr.remainder = text
	return len(b), nil
}

// Lines returns the buffered lines, oldest first.
func (lr *Ring) Lines() []string {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	lines := make([]string, 0, lr.r.Len())
	lr.r.Do(func(x any) {
		if x != nil {
			lines = append(lines, x.(string))
		}
	})
	return lines
}

// ServeHTTP writes the buffered lines as plain text.
func (lr *Ring) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	for _, line := range lr.Lines() {
		io.WriteString(w, line)
	}
}

var (
	_ io.Writer    = (*Ring)(nil)
	_ http.Handler = (*Ring)(nil)
)
