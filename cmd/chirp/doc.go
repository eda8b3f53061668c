// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Chirp polls timelines of followed accounts and delivers new posts to chat
destinations, delivering each post at most once.

# Usage

	$ chirp [flags...] <command>

Commands:

  - run: run a single polling cycle and exit. Suitable for systemd timers.
  - serve: run a cycle immediately and then one every interval, until
    interrupted. With -addr, also serve an admin HTTP endpoint.
  - feeds: list the configured feeds and the current watermark. Honors -json.

# Environment Variables

  - CONSUMER_KEY, CONSUMER_SECRET: application credentials for the timeline
    API. They take precedence over the ones in the configuration file.
  - TELEGRAM_TOKEN: Telegram bot token. If set, messages are sent through the
    Telegram Bot API, with destinations being chat IDs, optionally followed by
    a colon and a topic ID. Otherwise messages are written to standard output
    as JSON lines.
  - STATE_DIRECTORY: directory with the default configuration and cache.
    Defaults to $XDG_STATE_HOME/chirp.

Every flag can also be set by an environment variable, see -help.

# Configuration

The configuration is read at the start of every cycle, so edits are picked up
without a restart. It's written in Starlark:

	consumer_key = "..."
	consumer_secret = "..."

	# Seconds between cycles in serve mode.
	interval = 300

	templates = {
	    "default": "From {color}{green}{user}{color} twitter: {bold}{status}{bold} @ {color}{blue}{link}{color}",
	    "-100123": "{status} {link}",
	}

	feeds = [
	    feed(user = "alice", channels = ["-100123", "-100456:7"]),
	    feed(user = "bob", channels = "-100123", pattern = "release"),
	    feed(user = "carol", channels = "-100123", bridge = "https://nitter.example/%s/rss"),
	]

A feed with a pattern only delivers posts that contain it. A feed with a bridge
is read from an RSS or Atom mirror of the timeline and needs no credentials.

Files ending in .yaml or .yml are read as YAML instead, with a top-level
consumer_key, consumer_secret, timeout (the interval in seconds), templates
and feeds list of {user, channels, pattern, bridge} mappings.

# Templates

Templates substitute {user}, {status} and {link} along with formatting
placeholders such as {bold} and {color}{green}, which depend on the
destination: Markdown for Telegram, and mIRC codes, Markdown or nothing for
standard output, as selected by -style. Unknown placeholders are kept as is.
For Markdown destinations {user} and {status} are escaped, so posts can't
add formatting or links of their own.

# Cache

Delivered posts and the watermark are stored in a cache selected by -cache:

  - path/to/cache.json or json:PATH: a JSON file (the default);
  - path/to/cache.db or sqlite:PATH: an SQLite database;
  - postgres://...: a PostgreSQL database;
  - redis://...: a Redis server;
  - mem:NAME: memory, lost on exit.

Several hosts may share a PostgreSQL or Redis cache. The watermark is raised
atomically, so it never moves back. Cycles of different hosts still may
deliver a post twice when they overlap, since -lock only covers one host.

# Admin Endpoint

With -addr, serve exposes:

  - /health: outcome of the last cycle;
  - /metrics: Prometheus metrics;
  - /debug/last-cycle: report of the last cycle as JSON;
  - /debug/logs: recent log lines.
*/
package main
