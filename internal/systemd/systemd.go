// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package systemd implements the client side of the sd_notify protocol, so a
// long-running service can report readiness, status and watchdog keep-alives.
package systemd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.astrophena.name/chirp/internal/logger"
)

// State is a sd_notify protocol assignment.
// See https://www.freedesktop.org/software/systemd/man/sd_notify.html.
type State string

const (
	// Ready tells the service manager that startup is finished.
	Ready State = "READY=1"
	// Stopping tells the service manager that the service is shutting down.
	Stopping State = "STOPPING=1"
	// Watchdog updates the watchdog timestamp.
	Watchdog State = "WATCHDOG=1"
)

// Status returns a state that sets the free-form status line shown by
// systemctl status.
func Status(s string) State {
	return State("STATUS=" + strings.ReplaceAll(s, "\n", " "))
}

// Notifier sends states to the service manager. A nil Notifier, returned by
// [FromEnv] when the process doesn't run under systemd, does nothing.
type Notifier struct {
	addr     *net.UnixAddr
	logf     logger.Logf
	watchdog time.Duration
}

// FromEnv returns a Notifier for the socket in NOTIFY_SOCKET, or nil if it's
// not set. Errors are reported to logf.
func FromEnv(getenv func(string) string, logf logger.Logf) *Notifier {
	sock := getenv("NOTIFY_SOCKET")
	if sock == "" {
		return nil
	}
	n := &Notifier{
		addr: &net.UnixAddr{Net: "unixgram", Name: sock},
		logf: logf,
	}
	if usec := getenv("WATCHDOG_USEC"); usec != "" {
		d, err := parseWatchdog(usec)
		if err != nil {
			logf("systemd: %v", err)
		} else {
			n.watchdog = d
		}
	}
	return n
}

func parseWatchdog(usec string) (time.Duration, error) {
	n, err := strconv.Atoi(usec)
	if err != nil {
		return 0, fmt.Errorf("parsing WATCHDOG_USEC: %w", err)
	}
	if n <= 0 {
		return 0, errors.New("WATCHDOG_USEC must be a positive number")
	}
	return time.Duration(n) * time.Microsecond, nil
}

// Notify sends states in a single datagram.
func (n *Notifier) Notify(states ...State) {
	if n == nil || len(states) == 0 {
		return
	}
	msg := make([]string, len(states))
	for i, s := range states {
		msg[i] = string(s)
	}

	conn, err := net.DialUnix(n.addr.Net, nil, n.addr)
	if err != nil {
		n.logf("systemd: notifying failed: %v", err)
		return
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(strings.Join(msg, "\n"))); err != nil {
		n.logf("systemd: notifying failed: %v", err)
	}
}

// WatchdogLoop sends keep-alives at half the watchdog interval until ctx is
// canceled. It returns immediately if the watchdog is not enabled.
func (n *Notifier) WatchdogLoop(ctx context.Context) {
	if n == nil || n.watchdog == 0 {
		return
	}

	ticker := time.NewTicker(n.watchdog / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.Notify(Watchdog)
		case <-ctx.Done():
			return
		}
	}
}
