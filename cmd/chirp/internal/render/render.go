// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package render fills delivery templates.
//
// A template is text with named placeholders in braces, like "{user}".
// Doubled braces ("{{" and "}}") stand for literal braces. Placeholders
// without a value are left as they are.
package render

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultTemplate is used when no template is configured for a destination.
const DefaultTemplate = "From {color}{green}{user}{color} twitter: {bold}{status}{bold} @ {color}{blue}{link}{color}"

// Templates maps destinations to templates.
type Templates struct {
	// Default is used for destinations without their own template. If empty,
	// DefaultTemplate is used.
	Default        string
	PerDestination map[string]string
}

// For returns the template for dest.
func (t Templates) For(dest string) string {
	if tmpl, ok := t.PerDestination[dest]; ok {
		return tmpl
	}
	if t.Default != "" {
		return t.Default
	}
	return DefaultTemplate
}

// Render substitutes fields into tmpl.
func Render(tmpl string, fields map[string]string) string {
	var sb strings.Builder
	sb.Grow(len(tmpl))
	for i := 0; i < len(tmpl); {
		switch c := tmpl[i]; {
		case c == '{' && strings.HasPrefix(tmpl[i:], "{{"):
			sb.WriteByte('{')
			i += 2
		case c == '}' && strings.HasPrefix(tmpl[i:], "}}"):
			sb.WriteByte('}')
			i += 2
		case c == '{':
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				sb.WriteString(tmpl[i:])
				return sb.String()
			}
			name := tmpl[i+1 : i+1+end]
			if v, ok := fields[name]; ok {
				sb.WriteString(v)
			} else {
				sb.WriteString(tmpl[i : i+end+2])
			}
			i += end + 2
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String()
}

var (
	errUnclosed  = errors.New("unclosed placeholder")
	errUnopened  = errors.New("unmatched closing brace")
	errEmptyName = errors.New("empty placeholder")
)

// Validate reports whether tmpl has balanced braces and non-empty placeholder
// names.
func Validate(tmpl string) error {
	for i := 0; i < len(tmpl); {
		switch {
		case strings.HasPrefix(tmpl[i:], "{{"), strings.HasPrefix(tmpl[i:], "}}"):
			i += 2
		case tmpl[i] == '}':
			return fmt.Errorf("at offset %d: %w", i, errUnopened)
		case tmpl[i] == '{':
			end := strings.IndexAny(tmpl[i+1:], "{}")
			if end < 0 || tmpl[i+1+end] == '{' {
				return fmt.Errorf("at offset %d: %w", i, errUnclosed)
			}
			if end == 0 {
				return fmt.Errorf("at offset %d: %w", i, errEmptyName)
			}
			i += end + 2
		default:
			i++
		}
	}
	return nil
}
