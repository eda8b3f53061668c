// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package sink defines where rendered messages go.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Sink accepts rendered messages for delivery.
type Sink interface {
	// Put submits msg. A nil error means the sink took responsibility for
	// the message.
	Put(ctx context.Context, msg Message) error
	// Decorations returns the values of formatting placeholders, like
	// {bold} or {green}, understood by this sink.
	Decorations() map[string]string
	// Escape quotes s so that it renders literally inside a message body
	// for this sink. It is applied to fields coming from feeds.
	Escape(s string) string
}

// Message is a rendered message for a single destination.
type Message struct {
	Destination string `json:"destination"`
	Body        string `json:"body"`
}

// DecorationNames lists the formatting placeholders every sink must define.
var DecorationNames = []string{
	"bold", "italic", "underline", "reset", "color",
	"white", "black", "blue", "green", "red", "brown", "magenta", "orange",
	"yellow", "light_green", "cyan", "light_cyan", "light_blue", "pink",
	"gray", "light_gray",
}

// IRC holds mIRC formatting control codes. Colors are meant to follow
// {color}, which starts a colored span and also ends it.
var IRC = map[string]string{
	"bold":        "\x02",
	"italic":      "\x1d",
	"underline":   "\x1f",
	"reset":       "\x0f",
	"color":       "\x03",
	"white":       "00",
	"black":       "01",
	"blue":        "02",
	"green":       "03",
	"red":         "04",
	"brown":       "05",
	"magenta":     "06",
	"orange":      "07",
	"yellow":      "08",
	"light_green": "09",
	"cyan":        "10",
	"light_cyan":  "11",
	"light_blue":  "12",
	"pink":        "13",
	"gray":        "14",
	"light_gray":  "15",
}

// Markdown renders bold and italic as Markdown and drops colors.
var Markdown = blank(map[string]string{
	"bold":   "**",
	"italic": "_",
})

// Plain drops every decoration.
var Plain = blank(nil)

func blank(set map[string]string) map[string]string {
	m := make(map[string]string, len(DecorationNames))
	for _, name := range DecorationNames {
		m[name] = set[name]
	}
	return m
}

// EscapeMarkdown backslash-escapes every ASCII punctuation character in s,
// so that a Markdown parser treats s as literal text.
func EscapeMarkdown(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := range len(s) {
		if isPunct(s[i]) {
			sb.WriteByte('\\')
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

func isPunct(c byte) bool {
	return '!' <= c && c <= '/' || ':' <= c && c <= '@' || '[' <= c && c <= '`' || '{' <= c && c <= '~'
}

// Writer writes every message as a line of JSON. It stands in for a chat
// connection in dry runs and when messages are consumed by another process.
type Writer struct {
	mu  sync.Mutex
	w   io.Writer
	dec map[string]string
	md  bool
}

// NewWriter returns a Writer writing to w. style selects the decorations:
// "irc" for mIRC codes, "markdown" for Markdown and anything else for none.
func NewWriter(w io.Writer, style string) *Writer {
	wr := &Writer{w: w, dec: Plain}
	switch style {
	case "irc":
		wr.dec = IRC
	case "markdown":
		wr.dec = Markdown
		wr.md = true
	}
	return wr
}

// Put implements the [Sink] interface.
func (w *Writer) Put(_ context.Context, msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprintf(w.w, "%s\n", b); err != nil {
		return err
	}
	return nil
}

// Decorations implements the [Sink] interface.
func (w *Writer) Decorations() map[string]string { return w.dec }

// Escape implements the [Sink] interface. Only the "markdown" style needs
// escaping; other styles return s as is.
func (w *Writer) Escape(s string) string {
	if w.md {
		return EscapeMarkdown(s)
	}
	return s
}

var _ Sink = (*Writer)(nil)
