// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package tgmarkup converts Markdown text to Telegram message entities.
package tgmarkup

import (
	"strings"
	"unicode/utf16"

	"rsc.io/markdown"
)

// Message is a text with entities, ready to be embedded in a sendMessage
// request. See https://core.telegram.org/bots/api#message.
type Message struct {
	Text     string   `json:"text"`
	Entities []Entity `json:"entities,omitempty"`
}

// Type is the type of a message entity.
// See https://core.telegram.org/bots/api#messageentity.
type Type string

// Entity types produced by [FromMarkdown].
const (
	URL           Type = "url"
	Bold          Type = "bold"
	Italic        Type = "italic"
	Strikethrough Type = "strikethrough"
	Blockquote    Type = "blockquote"
	Code          Type = "code"
	Pre           Type = "pre"
	TextLink      Type = "text_link"
)

// Entity is a formatted part of the message text. Offsets and lengths are
// in UTF-16 code units.
type Entity struct {
	Type     Type   `json:"type"`
	Offset   int    `json:"offset"`
	Length   int    `json:"length"`
	URL      string `json:"url,omitempty"`
	Language string `json:"language,omitempty"`
}

// FromMarkdown converts a Markdown text to a [Message].
func FromMarkdown(text string) Message {
	var p markdown.Parser
	doc := p.Parse(text)

	c := new(converter)
	for _, b := range doc.Blocks {
		c.block(b)
	}
	return Message{
		Text:     c.sb.String(),
		Entities: c.entities,
	}
}

type converter struct {
	sb       strings.Builder
	n        int // UTF-16 length of sb
	entities []Entity
}

func (c *converter) write(s string) {
	c.sb.WriteString(s)
	c.n += utf16len(s)
}

// wrap records an entity of type typ covering everything written by f.
func (c *converter) wrap(typ Type, f func()) *Entity {
	offset := c.n
	f()
	c.entities = append(c.entities, Entity{Type: typ, Offset: offset, Length: c.n - offset})
	return &c.entities[len(c.entities)-1]
}

func (c *converter) block(b markdown.Block) {
	switch b := b.(type) {
	case *markdown.Paragraph:
		c.inlines(b.Text.Inline)
		c.write("\n")
	case *markdown.Heading:
		c.wrap(Bold, func() { c.inlines(b.Text.Inline) })
		c.write("\n")
	case *markdown.Quote:
		c.wrap(Blockquote, func() {
			for _, b := range b.Blocks {
				c.block(b)
			}
		})
	case *markdown.CodeBlock:
		e := c.wrap(Pre, func() { c.write(strings.Join(b.Text, "\n")) })
		e.Language = b.Info
		c.write("\n")
	case *markdown.List:
		for _, ib := range b.Items {
			item, ok := ib.(*markdown.Item)
			if !ok {
				continue
			}
			for _, b := range item.Blocks {
				c.block(b)
			}
		}
	case *markdown.ThematicBreak:
		c.write("⸻\n")
	}
}

func (c *converter) inlines(inlines markdown.Inlines) {
	for _, i := range inlines {
		c.inline(i)
	}
}

func (c *converter) inline(i markdown.Inline) {
	switch i := i.(type) {
	case *markdown.Plain:
		c.write(i.Text)
	case *markdown.Escaped:
		c.write(i.Text)
	case *markdown.Strong:
		c.wrap(Bold, func() { c.inlines(i.Inner) })
	case *markdown.Emph:
		c.wrap(Italic, func() { c.inlines(i.Inner) })
	case *markdown.Del:
		c.wrap(Strikethrough, func() { c.inlines(i.Inner) })
	case *markdown.Link:
		e := c.wrap(TextLink, func() { c.inlines(i.Inner) })
		e.URL = i.URL
	case *markdown.AutoLink:
		c.wrap(URL, func() { c.write(i.Text) })
	case *markdown.Code:
		c.wrap(Code, func() { c.write(i.Text) })
	case *markdown.SoftBreak, *markdown.HardBreak:
		c.write("\n")
	}
}

func utf16len(s string) int {
	return len(utf16.Encode([]rune(s)))
}
