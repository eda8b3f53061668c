// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.astrophena.name/chirp/cmd/chirp/internal/cycle"
	"go.astrophena.name/chirp/internal/cli"
	"go.astrophena.name/chirp/internal/logger"
	"go.astrophena.name/chirp/internal/systemd"
	"go.astrophena.name/chirp/internal/web"
)

func (a *app) serve(ctx context.Context) error {
	env := cli.GetEnv(ctx)

	// Keep recent log lines for /debug/logs.
	l := logger.Get(ctx)
	ctx = logger.Put(ctx, &logger.Logger{
		Logger: slog.New(slog.NewTextHandler(io.MultiWriter(env.Stderr, a.logs), &slog.HandlerOptions{Level: l.Level})),
		Level:  l.Level,
	})
	log := logger.Get(ctx)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := a.newRunner(ctx)
	sd := systemd.FromEnv(env.Getenv, env.Logf)

	srvErr := make(chan error, 1)
	if a.addr != "" {
		go func() {
			srvErr <- web.ListenAndServe(ctx, &web.ListenAndServeConfig{
				Addr:  a.addr,
				Mux:   a.adminMux(r),
				Logf:  env.Logf,
				Ready: a.ready,
			})
			// Stop the scheduler if the server fails.
			cancel()
		}()
	} else {
		srvErr <- nil
	}

	go sd.WatchdogLoop(ctx)
	sd.Notify(systemd.Ready)

	interval := a.cycleInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		a.tick(ctx, r, sd)

		// The configuration could have changed the interval.
		if next := a.cycleInterval(); next != interval {
			log.Info("interval changed", slog.Duration("from", interval), slog.Duration("to", next))
			interval = next
			ticker.Reset(interval)
		}

		select {
		case <-ctx.Done():
			sd.Notify(systemd.Stopping)
			return <-srvErr
		case <-ticker.C:
		}
	}
}

// tick runs a cycle. Ticks that fire while it runs are dropped by the ticker.
func (a *app) tick(ctx context.Context, r *cycle.Runner, sd *systemd.Notifier) {
	_, err := r.Run(ctx)
	if errors.Is(err, cycle.ErrAlreadyRunning) {
		logger.Get(ctx).Info("skipping tick, another cycle is running")
		return
	}
	// Other errors are logged by the runner.
	status, _ := r.Health()
	sd.Notify(systemd.Status(status))
}

func (a *app) adminMux(r *cycle.Runner) *http.ServeMux {
	mux := http.NewServeMux()

	web.Health(mux).RegisterFunc("cycle", r.Health)
	mux.Handle("GET /metrics", a.metrics.Handler())
	mux.HandleFunc("GET /debug/last-cycle", func(w http.ResponseWriter, _ *http.Request) {
		rep, err := r.Last()
		if rep == nil {
			web.RespondJSONError(w, web.ErrNotFound)
			return
		}
		resp := struct {
			*cycle.Report
			Error string `json:"error,omitempty"`
		}{Report: rep}
		if err != nil {
			resp.Error = err.Error()
		}
		web.RespondJSON(w, resp)
	})
	mux.Handle("GET /debug/logs", a.logs)

	return mux
}
