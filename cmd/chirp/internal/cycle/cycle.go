// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package cycle runs polling cycles: fetch every followed source, filter out
// delivered and unmatched items, deliver the rest and record them as
// delivered.
package cycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync/atomic"
	"time"

	"go.astrophena.name/chirp/cmd/chirp/internal/auth"
	"go.astrophena.name/chirp/cmd/chirp/internal/config"
	"go.astrophena.name/chirp/cmd/chirp/internal/dedup"
	"go.astrophena.name/chirp/cmd/chirp/internal/filter"
	"go.astrophena.name/chirp/cmd/chirp/internal/metrics"
	"go.astrophena.name/chirp/cmd/chirp/internal/render"
	"go.astrophena.name/chirp/cmd/chirp/internal/sink"
	"go.astrophena.name/chirp/cmd/chirp/internal/timeline"
	"go.astrophena.name/chirp/internal/filelock"
	"go.astrophena.name/chirp/internal/logger"
	"go.astrophena.name/chirp/internal/syncx"
)

// ErrAlreadyRunning is returned by [Runner.Run] when another cycle is in
// progress.
var ErrAlreadyRunning = errors.New("cycle already running")

// DefaultFetchTimeout bounds a single fetch when [Runner.FetchTimeout] is zero.
const DefaultFetchTimeout = 30 * time.Second

// DeliveryError is returned when a sink refuses a message.
type DeliveryError struct {
	Source      string
	ItemID      int64
	Destination string
	Err         error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivering %s/%d to %s: %v", e.Source, e.ItemID, e.Destination, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// TokenSource issues bearer tokens.
type TokenSource interface {
	Token(ctx context.Context) (auth.Token, error)
}

// Runner runs cycles. All of its fields must be set before the first call to
// Run, except for those documented as optional.
type Runner struct {
	// LoadConfig returns the configuration. It is called at the start of
	// every cycle.
	LoadConfig func() (*config.Config, error)
	// Broker returns the token source for cfg. It is only called when some
	// feed is fetched from the timeline API.
	Broker func(cfg *config.Config) TokenSource
	// Fetcher returns the fetcher for feed.
	Fetcher func(feed config.Feed) timeline.Fetcher
	// OpenCache opens the dedup cache. The cache is closed at the end of
	// every cycle.
	OpenCache func(ctx context.Context) (*dedup.Cache, error)
	// Sink receives rendered messages.
	Sink sink.Sink

	// FetchTimeout bounds each fetch. Optional.
	FetchTimeout time.Duration
	// LockPath, if set, is a file locked for the duration of a cycle, so
	// cycles don't overlap across processes. Optional.
	LockPath string
	// Metrics receives cycle statistics. Optional.
	Metrics *metrics.Metrics
	// Now returns the current time. Optional.
	Now func() time.Time

	running     atomic.Bool
	lazyLast    syncx.Lazy[*syncx.Protected[lastCycle]]
	lazyMetrics syncx.Lazy[*metrics.Metrics]
}

type lastCycle struct {
	report *Report
	err    error
}

// Report summarizes a cycle.
type Report struct {
	StartedAt        time.Time `json:"started_at"`
	Duration         Duration  `json:"duration"`
	Feeds            int       `json:"feeds"`
	Fetched          int       `json:"fetched"`
	Accepted         int       `json:"accepted"`
	Delivered        int       `json:"delivered"`
	Messages         int       `json:"messages"`
	FetchFailures    int       `json:"fetch_failures"`
	DeliveryFailures int       `json:"delivery_failures"`
	DeliveredKeys    []string  `json:"delivered_keys,omitempty"`
	Watermark        int64     `json:"watermark"`
	Errors           []string  `json:"errors,omitempty"`
}

// Duration is a [time.Duration] that is encoded in JSON as a string like
// "1.5s".
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalJSON implements the [json.Marshaler] interface.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements the [json.Unmarshaler] interface.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) metrics() *metrics.Metrics {
	if r.Metrics != nil {
		return r.Metrics
	}
	return r.lazyMetrics.Get(metrics.New)
}

func (r *Runner) lastCycle() *syncx.Protected[lastCycle] {
	return r.lazyLast.Get(func() *syncx.Protected[lastCycle] {
		return syncx.Protect(lastCycle{})
	})
}

// Last returns the report and error of the last finished cycle. The report
// is nil if no cycle has finished yet.
func (r *Runner) Last() (*Report, error) {
	lc := r.lastCycle().Load()
	return lc.report, lc.err
}

// Health reports the outcome of the last cycle in the form expected by
// web.HealthHandler.
func (r *Runner) Health() (status string, ok bool) {
	rep, err := r.Last()
	switch {
	case rep == nil:
		return "no cycle has finished yet", true
	case err != nil:
		return "last cycle failed: " + err.Error(), false
	}
	return fmt.Sprintf("last cycle at %s delivered %d entries", rep.StartedAt.Format(time.RFC3339), rep.Delivered), true
}

// Run runs a single cycle. It returns [ErrAlreadyRunning] without doing
// anything if another cycle is in progress.
//
// A failure to obtain a token or to use the cache ends the cycle. A failure
// to fetch a source or to deliver a message is logged and counted in the
// report, and the cycle continues.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	log := logger.Get(ctx)

	if !r.running.CompareAndSwap(false, true) {
		r.metrics().Cycles.WithLabelValues(metrics.OutcomeSkipped).Inc()
		return nil, ErrAlreadyRunning
	}
	defer r.running.Store(false)

	if r.LockPath != "" {
		lock, err := filelock.Acquire(r.LockPath)
		if errors.Is(err, filelock.ErrAlreadyLocked) {
			r.metrics().Cycles.WithLabelValues(metrics.OutcomeSkipped).Inc()
			return nil, ErrAlreadyRunning
		}
		if err != nil {
			return nil, fmt.Errorf("acquiring run lock: %w", err)
		}
		defer func() {
			if err := lock.Release(); err != nil {
				log.Warn("releasing run lock failed", slog.Any("error", err))
			}
		}()
	}

	rep := &Report{StartedAt: r.now()}
	err := r.run(ctx, rep)
	took := r.now().Sub(rep.StartedAt)
	rep.Duration = Duration(took)

	m := r.metrics()
	m.Cycles.WithLabelValues(outcome(err)).Inc()
	m.CycleDuration.Observe(took.Seconds())
	m.LastCycleTimestamp.Set(float64(r.now().Unix()))
	if err != nil {
		rep.Errors = append(rep.Errors, err.Error())
		log.Error("cycle failed", slog.Any("error", err), slog.Duration("duration", took))
	} else {
		log.Info("cycle finished",
			slog.Int("fetched", rep.Fetched),
			slog.Int("accepted", rep.Accepted),
			slog.Int("delivered", rep.Delivered),
			slog.Int64("watermark", rep.Watermark),
			slog.Duration("duration", took),
		)
	}

	r.lastCycle().Store(lastCycle{report: rep, err: err})
	return rep, err
}

func outcome(err error) string {
	var (
		ae *auth.AuthError
		ce *dedup.CacheError
	)
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.As(err, &ae):
		return metrics.OutcomeAuth
	case errors.As(err, &ce):
		return metrics.OutcomeCache
	}
	return metrics.OutcomeError
}

func (r *Runner) run(ctx context.Context, rep *Report) (err error) {
	log := logger.Get(ctx)
	m := r.metrics()

	cfg, err := r.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	rep.Feeds = len(cfg.Feeds)

	var tok auth.Token
	if cfg.NeedsToken() {
		tok, err = r.Broker(cfg).Token(ctx)
		if err != nil {
			return err
		}
	}

	cache, err := r.OpenCache(ctx)
	if err != nil {
		var ce *dedup.CacheError
		if !errors.As(err, &ce) {
			err = &dedup.CacheError{Op: "open", Err: err}
		}
		return err
	}
	defer func() {
		if cerr := cache.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	// Fetch and filter.
	var (
		entries []*filter.Entry
		byKey   = make(map[string]*filter.Entry)
		filt    = &filter.Filter{PermalinkBase: cfg.PermalinkBase}
	)
	for _, feed := range cfg.Feeds {
		accepted, err := r.fetchFeed(ctx, cache, filt, feed, tok, rep)
		if err != nil {
			var ce *dedup.CacheError
			if errors.As(err, &ce) {
				return err
			}
			rep.FetchFailures++
			rep.Errors = append(rep.Errors, err.Error())
			m.FetchFailures.WithLabelValues(feed.Source).Inc()
			log.Warn("fetch failed", slog.String("source", feed.Source), slog.Any("error", err))
			continue
		}
		for _, e := range accepted {
			// The same source may be followed more than once with different
			// destinations; deliver such items once to all of them.
			if prev, ok := byKey[e.DedupKey]; ok {
				prev.Destinations = appendMissing(prev.Destinations, e.Destinations...)
				continue
			}
			byKey[e.DedupKey] = e
			entries = append(entries, e)
		}
	}

	// Deliver and persist.
	dec := r.Sink.Decorations()
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.deliver(ctx, cfg.Templates, dec, e, rep) == 0 {
			log.Warn("no destination accepted entry, will retry next cycle", slog.String("key", e.DedupKey))
			continue
		}
		if err := cache.MarkDelivered(ctx, e.DedupKey, e.ItemID, r.now()); err != nil {
			return err
		}
		rep.Delivered++
		rep.DeliveredKeys = append(rep.DeliveredKeys, e.DedupKey)
		m.EntriesDelivered.WithLabelValues(e.Source).Inc()
		log.Info("delivered", slog.String("source", e.Source), slog.Int64("item", e.ItemID), slog.Any("destinations", e.Destinations))
	}

	rep.Watermark, err = cache.Watermark(ctx)
	if err != nil {
		return err
	}
	m.Watermark.Set(float64(rep.Watermark))
	return nil
}

func (r *Runner) fetchFeed(ctx context.Context, cache *dedup.Cache, filt *filter.Filter, feed config.Feed, tok auth.Token, rep *Report) ([]*filter.Entry, error) {
	log := logger.Get(ctx)
	m := r.metrics()

	wm, err := cache.Watermark(ctx)
	if err != nil {
		return nil, err
	}

	timeout := r.FetchTimeout
	if timeout == 0 {
		timeout = DefaultFetchTimeout
	}
	fctx, cancel := context.WithTimeout(ctx, timeout)
	items, err := r.Fetcher(feed).FetchSince(fctx, feed.Source, wm, tok)
	cancel()
	if err != nil {
		var fe *timeline.FetchError
		if !errors.As(err, &fe) {
			err = &timeline.FetchError{Source: feed.Source, Err: err}
		}
		return nil, err
	}
	rep.Fetched += len(items)
	m.ItemsFetched.WithLabelValues(feed.Source).Add(float64(len(items)))
	log.Debug("fetched", slog.String("source", feed.Source), slog.Int("items", len(items)), slog.Int64("watermark", wm))

	var accepted []*filter.Entry
	for _, item := range items {
		e, err := filt.Accept(ctx, item, feed, cache)
		if err != nil {
			return nil, err
		}
		if e == nil {
			log.Debug("skipped", slog.String("source", feed.Source), slog.Int64("item", item.ID))
			continue
		}
		accepted = append(accepted, e)
	}
	rep.Accepted += len(accepted)
	m.EntriesAccepted.WithLabelValues(feed.Source).Add(float64(len(accepted)))
	return accepted, nil
}

// deliver submits e to every destination and returns the number of
// destinations that accepted it.
func (r *Runner) deliver(ctx context.Context, tmpls render.Templates, dec map[string]string, e *filter.Entry, rep *Report) (ok int) {
	log := logger.Get(ctx)

	fields := maps.Clone(dec)
	if fields == nil {
		fields = make(map[string]string)
	}
	fields["user"] = r.Sink.Escape(e.Source)
	fields["status"] = r.Sink.Escape(e.Text)
	fields["link"] = e.Permalink

	for _, dest := range e.Destinations {
		msg := sink.Message{
			Destination: dest,
			Body:        render.Render(tmpls.For(dest), fields),
		}
		if err := r.Sink.Put(ctx, msg); err != nil {
			derr := &DeliveryError{Source: e.Source, ItemID: e.ItemID, Destination: dest, Err: err}
			rep.DeliveryFailures++
			rep.Errors = append(rep.Errors, derr.Error())
			r.metrics().DeliveryFailures.WithLabelValues(dest).Inc()
			log.Warn("delivery failed",
				slog.String("source", e.Source),
				slog.Int64("item", e.ItemID),
				slog.String("destination", dest),
				slog.Any("error", err),
			)
			continue
		}
		rep.Messages++
		ok++
	}
	return ok
}

func appendMissing(dst []string, src ...string) []string {
	for _, s := range src {
		if !slices.Contains(dst, s) {
			dst = append(dst, s)
		}
	}
	return dst
}
