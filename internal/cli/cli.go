// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package cli runs command-line applications: it parses flags, wires up the
// environment and a leveled logger, and reports errors.
package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.astrophena.name/chirp/internal/logger"
	"go.astrophena.name/chirp/internal/syncx"
	"go.astrophena.name/chirp/internal/version"
)

// ErrInvalidArgs reports unusable command-line arguments. Wrap it to explain
// what is wrong:
//
//	return fmt.Errorf("%w: command is required", cli.ErrInvalidArgs)
var ErrInvalidArgs = errors.New("invalid arguments")

// ErrExitVersion is returned after the version was printed.
var ErrExitVersion = &unprintableError{errors.New("version flag exit")}

type unprintableError struct{ err error }

func (e *unprintableError) Error() string { return e.err.Error() }
func (e *unprintableError) Unwrap() error { return e.err }

// App is a command-line application.
type App interface {
	Run(context.Context) error
}

// HasFlags is an App that defines flags.
type HasFlags interface {
	App
	Flags(*flag.FlagSet)
}

// AppFunc adapts a function to the [App] interface.
type AppFunc func(context.Context) error

// Run calls f(ctx).
func (f AppFunc) Run(ctx context.Context) error { return f(ctx) }

// Env is the environment an application runs in.
type Env struct {
	Args   []string
	Getenv func(string) string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	logf syncx.Lazy[logger.Logf]
}

// Logf prints a formatted line to standard error of this environment.
func (e *Env) Logf(format string, args ...any) {
	e.logf.Get(func() logger.Logf {
		return log.New(e.Stderr, "", 0).Printf
	})(format, args...)
}

// OSEnv returns the environment of the current process.
func OSEnv() *Env {
	return &Env{
		Args:   os.Args[1:],
		Getenv: os.Getenv,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

type envKey struct{}

// WithEnv returns a copy of ctx carrying env.
func WithEnv(ctx context.Context, env *Env) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

// GetEnv returns the Env carried by ctx, or the process environment.
func GetEnv(ctx context.Context) *Env {
	if env, ok := ctx.Value(envKey{}).(*Env); ok {
		return env
	}
	return OSEnv()
}

// Main runs app in the process environment and exits with a non-zero status
// if it fails. SIGINT and SIGTERM cancel the context passed to app.
func Main(app App) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := Run(WithEnv(ctx, OSEnv()), app)
	if err == nil {
		return
	}
	if printable(err) {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(1)
}

func printable(err error) bool {
	if errors.Is(err, flag.ErrHelp) {
		return false
	}
	var ue *unprintableError
	return !errors.As(err, &ue)
}

// Run parses flags from the environment in ctx and runs app. The logger
// available through [logger.Get] writes to the environment's standard error.
func Run(ctx context.Context, app App) error {
	env := GetEnv(ctx)
	name := version.CmdName()

	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	if fa, ok := app.(HasFlags); ok {
		fa.Flags(flags)
	}
	var showVersion, verbose bool
	if flags.Lookup("version") == nil {
		flags.BoolVar(&showVersion, "version", false, "Show version.")
	}
	if flags.Lookup("v") == nil {
		flags.BoolVar(&verbose, "v", false, "Enable debug logging.")
	}
	flags.SetOutput(env.Stderr)
	flags.Usage = func() {
		if docSrc != nil {
			fmt.Fprintf(env.Stderr, "%s\n", doc.Get(parseDocComment))
		}
		fmt.Fprint(env.Stderr, "Available flags:\n\n")
		flags.PrintDefaults()
	}
	if err := flags.Parse(env.Args); err != nil {
		// The flag package already printed the error.
		return &unprintableError{err}
	}

	if showVersion {
		fmt.Fprint(env.Stderr, version.Version())
		return ErrExitVersion
	}
	env.Args = flags.Args()

	l := logger.Get(ctx)
	if _, ok := ctx.Value(loggerSetKey{}).(bool); !ok {
		l = logger.New(env.Stderr)
		ctx = logger.Put(ctx, l)
	}
	if verbose {
		l.Level.Set(slog.LevelDebug)
	}

	return app.Run(ctx)
}

type loggerSetKey struct{}

// WithLogger returns a copy of ctx carrying l. [Run] uses it instead of
// creating its own logger.
func WithLogger(ctx context.Context, l *logger.Logger) context.Context {
	return context.WithValue(logger.Put(ctx, l), loggerSetKey{}, true)
}

var (
	docSrc []byte
	doc    syncx.Lazy[string]
)

// SetDocComment sets the source of the help text. src must contain the
// program documentation in a single /* ... */ block, usually embedded from
// doc.go:
//
//	//go:embed doc.go
//	var doc []byte
//
//	func init() { cli.SetDocComment(doc) }
func SetDocComment(src []byte) { docSrc = src }

func parseDocComment() string {
	s := bufio.NewScanner(bytes.NewReader(docSrc))
	var (
		buf       bytes.Buffer
		inComment bool
	)
	for s.Scan() {
		line := s.Text()
		switch {
		case line == "/*":
			inComment = true
		case line == "*/":
			return buf.String()
		case inComment:
			buf.WriteString(line + "\n")
		}
	}
	return buf.String()
}
