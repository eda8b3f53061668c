// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package logger

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"go.astrophena.name/chirp/internal/testutil"
)

func TestLogfWriter(t *testing.T) {
	t.Parallel()

	var message string
	logf := func(format string, args ...any) {
		message = fmt.Sprintf(format, args...)
	}
	Logf(logf).Write([]byte("hello"))
	testutil.AssertEqual(t, message, "hello")
}

func TestContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := New(&buf)
	ctx := Put(context.Background(), l)

	Get(ctx).Debug("hidden")
	l.Level.Set(slog.LevelDebug)
	Get(ctx).Debug("shown", "key", "value")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug record logged below level: %q", out)
	}
	if !strings.Contains(out, "msg=shown key=value") {
		t.Fatalf("debug record not logged: %q", out)
	}

	// Missing logger must not panic.
	Get(context.Background()).Info("discarded")
}

func TestRing(t *testing.T) {
	t.Parallel()

	r := NewRing(3)
	for i := range 4 {
		fmt.Fprintf(r, "line %d\n", i)
	}
	r.Write([]byte("partial"))
	testutil.AssertEqual(t, r.Lines(), []string{"line 1\n", "line 2\n", "line 3\n"})

	r.Write([]byte(" done\n"))
	testutil.AssertEqual(t, r.Lines(), []string{"line 2\n", "line 3\n", "partial done\n"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/debug/logs", nil))
	testutil.AssertEqual(t, w.Body.String(), "line 2\nline 3\npartial done\n")
}
