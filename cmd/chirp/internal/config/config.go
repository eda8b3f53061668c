// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package config loads the list of followed sources and delivery settings
// from a Starlark or YAML file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"gopkg.in/yaml.v3"

	"go.astrophena.name/chirp/cmd/chirp/internal/render"
	"go.astrophena.name/chirp/internal/logger"
)

// DefaultPermalinkBase is the base of item permalinks.
const DefaultPermalinkBase = "https://twitter.com"

// Feed is a followed source.
type Feed struct {
	// Source is the account name.
	Source string `json:"user" yaml:"user"`
	// Destinations are the channels each accepted item is delivered to.
	Destinations []string `json:"channels" yaml:"channels"`
	// Pattern, if not empty, must be a substring of an item's text for the
	// item to be delivered.
	Pattern string `json:"pattern,omitempty" yaml:"pattern"`
	// Bridge, if not empty, is the URL of an RSS or Atom feed mirroring the
	// timeline, with a single %s standing for the escaped user. Such feeds
	// are fetched without credentials.
	Bridge string `json:"bridge,omitempty" yaml:"bridge"`
}

// Config is the loaded configuration.
type Config struct {
	ConsumerKey    string
	ConsumerSecret string
	// Interval is the time between cycles. Zero means unset.
	Interval      time.Duration
	PermalinkBase string
	Templates     render.Templates
	Feeds         []Feed
}

// NeedsToken reports whether some feed is fetched from the timeline API.
func (c *Config) NeedsToken() bool {
	for _, f := range c.Feeds {
		if f.Bridge == "" {
			return true
		}
	}
	return false
}

// Load reads the configuration file at path. Files ending in .yaml or .yml
// are YAML, everything else is Starlark.
func Load(path string, logf logger.Logf) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c *Config
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		c, err = ParseYAML(b)
	default:
		c, err = ParseStarlark(filepath.Base(path), b, logf)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return c, nil
}

// Validate checks that every feed has a source and at least one destination,
// and that every template is well-formed.
func (c *Config) Validate() error {
	var errs []error
	for i, f := range c.Feeds {
		if f.Source == "" {
			errs = append(errs, fmt.Errorf("feed #%d: user is empty", i+1))
		}
		if len(f.Destinations) == 0 {
			errs = append(errs, fmt.Errorf("feed %q: no channels", f.Source))
		}
		for _, d := range f.Destinations {
			if d == "" {
				errs = append(errs, fmt.Errorf("feed %q: empty channel", f.Source))
			}
		}
		if f.Bridge != "" {
			if strings.Count(f.Bridge, "%s") != 1 {
				errs = append(errs, fmt.Errorf("feed %q: bridge %q must contain exactly one %%s", f.Source, f.Bridge))
			} else if _, err := url.Parse(strings.Replace(f.Bridge, "%s", "user", 1)); err != nil {
				errs = append(errs, fmt.Errorf("feed %q: bridge: %w", f.Source, err))
			}
		}
	}
	if c.Templates.Default != "" {
		if err := render.Validate(c.Templates.Default); err != nil {
			errs = append(errs, fmt.Errorf("default template: %w", err))
		}
	}
	for dest, tmpl := range c.Templates.PerDestination {
		if err := render.Validate(tmpl); err != nil {
			errs = append(errs, fmt.Errorf("template for %q: %w", dest, err))
		}
	}
	if c.Interval < 0 {
		errs = append(errs, errors.New("interval is negative"))
	}
	return errors.Join(errs...)
}

func (c *Config) setTemplates(m map[string]string) {
	for k, v := range m {
		if k == "default" {
			c.Templates.Default = v
			continue
		}
		if c.Templates.PerDestination == nil {
			c.Templates.PerDestination = make(map[string]string)
		}
		c.Templates.PerDestination[k] = v
	}
}

type yamlConfig struct {
	ConsumerKey    string            `yaml:"consumer_key"`
	ConsumerSecret string            `yaml:"consumer_secret"`
	Timeout        int               `yaml:"timeout"`
	PermalinkBase  string            `yaml:"permalink_base"`
	Templates      map[string]string `yaml:"templates"`
	Feeds          []Feed            `yaml:"feeds"`
}

// ParseYAML parses a YAML configuration. The timeout key holds the interval
// in seconds.
func ParseYAML(b []byte) (*Config, error) {
	var yc yamlConfig
	if err := yaml.Unmarshal(b, &yc); err != nil {
		return nil, err
	}
	c := &Config{
		ConsumerKey:    yc.ConsumerKey,
		ConsumerSecret: yc.ConsumerSecret,
		Interval:       time.Duration(yc.Timeout) * time.Second,
		PermalinkBase:  yc.PermalinkBase,
		Feeds:          yc.Feeds,
	}
	c.setTemplates(yc.Templates)
	return c, nil
}

// ParseStarlark executes a Starlark configuration. It reads these globals:
//
//   - consumer_key and consumer_secret: strings;
//   - interval: int, seconds between cycles;
//   - permalink_base: string;
//   - templates: dict of strings keyed by channel, or "default";
//   - feeds: list of values returned by the feed builtin.
func ParseStarlark(filename string, src []byte, logf logger.Logf) (*Config, error) {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	globals, err := starlark.ExecFileOptions(
		&syntax.FileOptions{
			TopLevelControl: true,
		},
		&starlark.Thread{
			Print: func(_ *starlark.Thread, msg string) { logf("%s", msg) },
		},
		filename,
		src,
		starlark.StringDict{
			"feed": starlark.NewBuiltin("feed", feedBuiltin),
		},
	)
	if err != nil {
		return nil, err
	}

	c := new(Config)
	for name, p := range map[string]*string{
		"consumer_key":    &c.ConsumerKey,
		"consumer_secret": &c.ConsumerSecret,
		"permalink_base":  &c.PermalinkBase,
	} {
		v, ok := globals[name]
		if !ok {
			continue
		}
		s, ok := starlark.AsString(v)
		if !ok {
			return nil, fmt.Errorf("%s must be a string, got %s", name, v.Type())
		}
		*p = s
	}

	if v, ok := globals["interval"]; ok {
		var secs int
		if err := starlark.AsInt(v, &secs); err != nil {
			return nil, fmt.Errorf("interval: %w", err)
		}
		c.Interval = time.Duration(secs) * time.Second
	}

	if v, ok := globals["templates"]; ok {
		d, ok := v.(*starlark.Dict)
		if !ok {
			return nil, fmt.Errorf("templates must be a dict, got %s", v.Type())
		}
		m := make(map[string]string, d.Len())
		for _, item := range d.Items() {
			k, kok := starlark.AsString(item[0])
			tmpl, vok := starlark.AsString(item[1])
			if !kok || !vok {
				return nil, fmt.Errorf("templates must map strings to strings, got %s: %s", item[0].Type(), item[1].Type())
			}
			m[k] = tmpl
		}
		c.setTemplates(m)
	}

	feedsList, ok := globals["feeds"].(*starlark.List)
	if !ok {
		return nil, errors.New("feeds must be defined and be a list")
	}
	for i := range feedsList.Len() {
		f, ok := feedsList.Index(i).(*feedValue)
		if !ok {
			return nil, fmt.Errorf("feeds[%d] is %s, want feed", i, feedsList.Index(i).Type())
		}
		c.Feeds = append(c.Feeds, f.Feed)
	}

	return c, nil
}

type feedValue struct{ Feed }

func (f *feedValue) String() string        { return fmt.Sprintf("<feed user=%q>", f.Source) }
func (f *feedValue) Type() string          { return "feed" }
func (f *feedValue) Freeze()               {} // immutable
func (f *feedValue) Truth() starlark.Bool  { return starlark.Bool(f.Source != "") }
func (f *feedValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: %s", f.Type()) }

func feedBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("%s: unexpected positional arguments", b.Name())
	}
	var (
		f        = new(feedValue)
		channels starlark.Value
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"user", &f.Source,
		"channels", &channels,
		"pattern?", &f.Pattern,
		"bridge?", &f.Bridge,
	); err != nil {
		return nil, err
	}

	// A single channel may be given as a string.
	if s, ok := starlark.AsString(channels); ok {
		f.Destinations = []string{s}
		return f, nil
	}
	iter := starlark.Iterate(channels)
	if iter == nil {
		return nil, fmt.Errorf("%s: channels must be a string or a list of strings, got %s", b.Name(), channels.Type())
	}
	defer iter.Done()
	var v starlark.Value
	for iter.Next(&v) {
		s, ok := starlark.AsString(v)
		if !ok {
			return nil, fmt.Errorf("%s: channels must be a string or a list of strings, got %s in list", b.Name(), v.Type())
		}
		f.Destinations = append(f.Destinations, s)
	}
	return f, nil
}
