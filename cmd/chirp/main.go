// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"cmp"
	"context"
	_ "embed"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go.astrophena.name/chirp/cmd/chirp/internal/auth"
	"go.astrophena.name/chirp/cmd/chirp/internal/config"
	"go.astrophena.name/chirp/cmd/chirp/internal/cycle"
	"go.astrophena.name/chirp/cmd/chirp/internal/dedup"
	"go.astrophena.name/chirp/cmd/chirp/internal/metrics"
	"go.astrophena.name/chirp/cmd/chirp/internal/sink"
	"go.astrophena.name/chirp/cmd/chirp/internal/telegram"
	"go.astrophena.name/chirp/cmd/chirp/internal/timeline"
	"go.astrophena.name/chirp/internal/cli"
	"go.astrophena.name/chirp/internal/cli/envflag"
	"go.astrophena.name/chirp/internal/httplogger"
	"go.astrophena.name/chirp/internal/logger"
	"go.astrophena.name/chirp/internal/request"
)

// defaultInterval is used when neither -interval nor the configuration set one.
const defaultInterval = 300 * time.Second

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }

func main() { cli.Main(newApp(os.Getenv)) }

type app struct {
	// getenv is used for flag defaults.
	getenv func(string) string

	// configuration
	addr       string
	cacheDSN   string
	configPath string
	dry        bool
	interval   int
	json       bool
	lockPath   string
	style      string

	// for tests
	httpc *http.Client
	now   func() time.Time
	ready func(addr string)

	metrics *metrics.Metrics
	logs    *logger.Ring
	// cfgInterval is the interval from the last loaded configuration.
	cfgInterval atomic.Int64
}

func newApp(getenv func(string) string) *app {
	return &app{
		getenv:  getenv,
		metrics: metrics.New(),
		logs:    logger.NewRing(500),
	}
}

func (a *app) Flags(fs *flag.FlagSet) {
	envflag.Var(fs, a.getenv, &a.addr, "addr", "CHIRP_ADDR", "", "Listen on `host:port` for the admin HTTP endpoint in serve mode. Disabled if empty.")
	envflag.Var(fs, a.getenv, &a.cacheDSN, "cache", "CHIRP_CACHE", "", "Cache `DSN`. Defaults to cache.json in the state directory.")
	envflag.Var(fs, a.getenv, &a.configPath, "config", "CHIRP_CONFIG", "", "Configuration `file`. Defaults to config.star in the state directory.")
	envflag.Var(fs, a.getenv, &a.interval, "interval", "CHIRP_INTERVAL", 0, "`Seconds` between cycles in serve mode. Takes precedence over the configuration.")
	envflag.Var(fs, a.getenv, &a.lockPath, "lock", "CHIRP_LOCK", "", "Lock `file` that keeps cycles of different processes from overlapping.")
	envflag.Var(fs, a.getenv, &a.style, "style", "CHIRP_STYLE", "plain", "Formatting of messages written to standard output: irc, markdown or plain.")
	fs.BoolVar(&a.dry, "dry", false, "Enable dry-run mode: write messages to standard output even if TELEGRAM_TOKEN is set, and log debug messages.")
	fs.BoolVar(&a.json, "json", false, "Output in JSON format (honored in supported commands).")
}

func (a *app) Run(ctx context.Context) error {
	env := cli.GetEnv(ctx)

	if len(env.Args) == 0 {
		return fmt.Errorf("%w: command is required, see -help for usage", cli.ErrInvalidArgs)
	}
	command := env.Args[0]
	if len(env.Args) > 1 {
		return fmt.Errorf("%w: %s takes no arguments", cli.ErrInvalidArgs, command)
	}

	if a.interval < 0 {
		return fmt.Errorf("%w: -interval must not be negative", cli.ErrInvalidArgs)
	}
	if err := a.resolvePaths(env); err != nil {
		return err
	}

	// Enable debug logging in dry-run mode.
	if a.dry {
		logger.Get(ctx).Level.Set(slog.LevelDebug)
	}

	switch command {
	case "run":
		_, err := a.newRunner(ctx).Run(ctx)
		return err
	case "serve":
		return a.serve(ctx)
	case "feeds":
		return a.listFeeds(ctx, env.Stdout)
	default:
		return fmt.Errorf("%w: no such command %q", cli.ErrInvalidArgs, command)
	}
}

// resolvePaths fills in the configuration and cache locations that weren't
// set by flags.
func (a *app) resolvePaths(env *cli.Env) error {
	if a.configPath != "" && a.cacheDSN != "" {
		return nil
	}
	stateDir := env.Getenv("STATE_DIRECTORY")
	if stateDir == "" {
		xdgStateHome := env.Getenv("XDG_STATE_HOME")
		if xdgStateHome == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			xdgStateHome = filepath.Join(home, ".local", "state")
		}
		stateDir = filepath.Join(xdgStateHome, "chirp")
		if err := os.MkdirAll(stateDir, 0o700); err != nil {
			return err
		}
	}
	a.configPath = cmp.Or(a.configPath, filepath.Join(stateDir, "config.star"))
	a.cacheDSN = cmp.Or(a.cacheDSN, filepath.Join(stateDir, "cache.json"))
	return nil
}

// loadConfig loads the configuration file, with credentials from the
// environment taking precedence.
func (a *app) loadConfig(env *cli.Env) (*config.Config, error) {
	cfg, err := config.Load(a.configPath, env.Logf)
	if err != nil {
		return nil, err
	}
	cfg.ConsumerKey = cmp.Or(env.Getenv("CONSUMER_KEY"), cfg.ConsumerKey)
	cfg.ConsumerSecret = cmp.Or(env.Getenv("CONSUMER_SECRET"), cfg.ConsumerSecret)
	a.cfgInterval.Store(int64(cfg.Interval))
	return cfg, nil
}

// cycleInterval returns the time between cycles in serve mode.
func (a *app) cycleInterval() time.Duration {
	if a.interval > 0 {
		return time.Duration(a.interval) * time.Second
	}
	return cmp.Or(time.Duration(a.cfgInterval.Load()), defaultInterval)
}

func (a *app) newRunner(ctx context.Context) *cycle.Runner {
	env := cli.GetEnv(ctx)

	// The Telegram token is a part of request URLs.
	tgToken := env.Getenv("TELEGRAM_TOKEN")
	var scrubber *strings.Replacer
	if tgToken != "" {
		scrubber = strings.NewReplacer(tgToken, "[EXPUNGED]")
	}
	httpc := httplogger.Client(cmp.Or(a.httpc, request.DefaultClient), logger.Get(ctx).Logger, scrubber)

	var s sink.Sink = sink.NewWriter(env.Stdout, a.style)
	if tgToken != "" && !a.dry {
		s = telegram.New(telegram.Config{
			Token:      tgToken,
			HTTPClient: httpc,
			Logger:     logger.Get(ctx).Logger,
		})
	}

	return &cycle.Runner{
		LoadConfig: func() (*config.Config, error) {
			return a.loadConfig(env)
		},
		Broker: func(cfg *config.Config) cycle.TokenSource {
			return &auth.Broker{
				Key:        cfg.ConsumerKey,
				Secret:     cfg.ConsumerSecret,
				HTTPClient: httpc,
			}
		},
		Fetcher: func(feed config.Feed) timeline.Fetcher {
			if feed.Bridge != "" {
				return &timeline.Bridge{URL: feed.Bridge, HTTPClient: httpc}
			}
			return &timeline.API{HTTPClient: httpc}
		},
		OpenCache: func(ctx context.Context) (*dedup.Cache, error) {
			return dedup.Open(ctx, a.cacheDSN)
		},
		Sink:     s,
		LockPath: a.lockPath,
		Metrics:  a.metrics,
		Now:      a.now,
	}
}
