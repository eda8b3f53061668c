// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"context"
	"io"
	"net/http"
	"testing"

	"go.astrophena.name/chirp/internal/testutil"
)

func TestListenAndServe(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/hello", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "hello")
	})

	ctx, cancel := context.WithCancel(t.Context())
	ready := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- ListenAndServe(ctx, &ListenAndServeConfig{
			Addr:  "127.0.0.1:0",
			Mux:   mux,
			Logf:  t.Logf,
			Ready: func(addr string) { ready <- addr },
		})
	}()

	var addr string
	select {
	case addr = <-ready:
	case err := <-errCh:
		t.Fatal(err)
	}

	for path, want := range map[string]int{
		"/hello":  http.StatusOK,
		"/health": http.StatusOK,
	} {
		res, err := http.Get("http://" + addr + path)
		if err != nil {
			t.Fatal(err)
		}
		res.Body.Close()
		testutil.AssertEqual(t, res.StatusCode, want)
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatal(err)
	}
}

func TestListenAndServeConfigErrors(t *testing.T) {
	t.Parallel()

	for name, c := range map[string]*ListenAndServeConfig{
		"no addr": {Mux: http.NewServeMux()},
		"no mux":  {Addr: "127.0.0.1:0"},
	} {
		t.Run(name, func(t *testing.T) {
			if err := ListenAndServe(t.Context(), c); err == nil {
				t.Fatal("want error")
			}
		})
	}
}
