// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.astrophena.name/chirp/cmd/chirp/internal/config"
	"go.astrophena.name/chirp/internal/cli"
	"go.astrophena.name/chirp/internal/testutil"
)

// Typical Telegram Bot API token, copied from docs.
const tgToken = "123456:ABC-DEF1234ghIkl-zyx57W2v1u123ew11"

var update = flag.Bool("update", false, "update golden files in testdata")

func TestMain(m *testing.M) {
	flag.Parse()
	os.Exit(m.Run())
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type telegramMessage struct {
	ChatID          string `json:"chat_id"`
	MessageThreadID int64  `json:"message_thread_id"`
	Text            string `json:"text"`
}

// fakeAPI serves the token, timeline, bridge and Telegram endpoints from
// files in dir.
type fakeAPI struct {
	dir string

	mu            sync.Mutex
	tokenRequests int
	telegram      []telegramMessage
}

func (f *fakeAPI) client(t *testing.T) *http.Client {
	mux := http.NewServeMux()

	mux.HandleFunc("POST api.twitter.com/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.tokenRequests++
		f.mu.Unlock()
		if user, pass, ok := r.BasicAuth(); !ok || user != "key" || pass != "secret" {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"errors":[{"code":99,"message":"Unable to verify your credentials"}]}`))
			return
		}
		w.Write([]byte(`{"token_type":"bearer","access_token":"AAAA"}`))
	})
	mux.HandleFunc("GET api.twitter.com/1.1/statuses/user_timeline.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer AAAA" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		f.serveFile(t, w, filepath.Join("timeline", r.URL.Query().Get("screen_name")+".json"))
	})
	mux.HandleFunc("GET nitter.example/{user}/rss", func(w http.ResponseWriter, r *http.Request) {
		f.serveFile(t, w, filepath.Join("bridge", r.PathValue("user")+".rss"))
	})
	mux.HandleFunc("POST api.telegram.org/bot"+tgToken+"/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		var m telegramMessage
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			t.Errorf("decoding Telegram message: %v", err)
		}
		f.mu.Lock()
		f.telegram = append(f.telegram, m)
		f.mu.Unlock()
		w.Write([]byte(`{"ok":true}`))
	})

	return &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, r)
			return w.Result(), nil
		}),
	}
}

func (f *fakeAPI) serveFile(t *testing.T, w http.ResponseWriter, name string) {
	b, err := os.ReadFile(filepath.Join(f.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		t.Errorf("reading %s: %v", name, err)
	}
	w.Write(b)
}

// testEnv is a state directory extracted from a txtar archive.
type testEnv struct {
	dir  string
	api  *fakeAPI
	vars map[string]string
}

func newTestEnv(t *testing.T, archive string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	testutil.ExtractTxtar(t, archive, dir)
	return &testEnv{
		dir:  dir,
		api:  &fakeAPI{dir: dir},
		vars: map[string]string{"STATE_DIRECTORY": dir},
	}
}

func (e *testEnv) getenv(key string) string { return e.vars[key] }

func (e *testEnv) newApp(t *testing.T) *app {
	a := newApp(e.getenv)
	a.httpc = e.api.client(t)
	a.now = func() time.Time { return time.Date(2026, time.October, 15, 12, 0, 0, 0, time.UTC) }
	return a
}

// run runs the app with args and returns what it wrote to standard output.
func (e *testEnv) run(ctx context.Context, t *testing.T, a *app, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	env := &cli.Env{
		Args:   args,
		Getenv: e.getenv,
		Stdin:  strings.NewReader(""),
		Stdout: &stdout,
		Stderr: &stderr,
	}
	err := cli.Run(cli.WithEnv(ctx, env), a)
	t.Logf("stderr:\n%s", stderr.String())
	return stdout.String(), err
}

func TestRun(t *testing.T) {
	t.Parallel()

	testutil.RunGolden(t, "testdata/run/*.txtar", func(t *testing.T, tc string) []byte {
		t.Parallel()

		e := newTestEnv(t, tc)
		out, err := e.run(t.Context(), t, e.newApp(t), "run")
		if err != nil {
			t.Fatal(err)
		}

		// Nothing is delivered twice.
		again, err := e.run(t.Context(), t, e.newApp(t), "run")
		if err != nil {
			t.Fatal(err)
		}
		testutil.AssertEqual(t, again, "")

		return []byte(out)
	}, *update)
}

func TestRunBridgeOnlyNeedsNoToken(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, "testdata/run/bridge_only.txtar")
	if _, err := e.run(t.Context(), t, e.newApp(t), "run"); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, e.api.tokenRequests, 0)
}

func TestRunAuthFailure(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, "testdata/run/basic.txtar")
	e.vars["CONSUMER_SECRET"] = "wrong"

	out, err := e.run(t.Context(), t, e.newApp(t), "run")
	if err == nil {
		t.Fatal("want error, got nil")
	}
	testutil.AssertContains(t, err.Error(), "acquiring token: want 200, got 403")
	testutil.AssertEqual(t, out, "")

	// The watermark is untouched.
	out, err = e.run(t.Context(), t, e.newApp(t), "-json", "feeds")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertContains(t, out, `"watermark": 100`)
}

func TestRunCredentialsFromEnvironment(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, "testdata/run/basic.txtar")
	// Break the credentials in the configuration file.
	cfg := filepath.Join(e.dir, "config.star")
	b, err := os.ReadFile(cfg)
	if err != nil {
		t.Fatal(err)
	}
	b = bytes.ReplaceAll(b, []byte(`"secret"`), []byte(`"stale"`))
	if err := os.WriteFile(cfg, b, 0o644); err != nil {
		t.Fatal(err)
	}
	e.vars["CONSUMER_KEY"] = "key"
	e.vars["CONSUMER_SECRET"] = "secret"

	out, err := e.run(t.Context(), t, e.newApp(t), "run")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, strings.Count(out, "\n"), 5)
	testutil.AssertEqual(t, e.api.tokenRequests, 1)
}

func TestRunTelegram(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, "testdata/run/bridge_only.txtar")
	e.vars["TELEGRAM_TOKEN"] = tgToken
	cfg := filepath.Join(e.dir, "config.star")
	if err := os.WriteFile(cfg, []byte(`
feeds = [
    feed(user = "carol", channels = "-1001:5", bridge = "https://nitter.example/%s/rss"),
]
`), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := e.run(t.Context(), t, e.newApp(t), "run")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, out, "")
	testutil.AssertEqual(t, len(e.api.telegram), 2)
	for _, m := range e.api.telegram {
		testutil.AssertEqual(t, m.ChatID, "-1001")
		testutil.AssertEqual(t, m.MessageThreadID, int64(5))
		testutil.AssertContains(t, m.Text, "From carol twitter: ")
		// Markdown markers are turned into entities.
		if strings.Contains(m.Text, "**") {
			t.Errorf("message text %q contains Markdown markers", m.Text)
		}
	}
	testutil.AssertContains(t, e.api.telegram[0].Text, "Newer")
}

func TestRunDryIgnoresTelegram(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, "testdata/run/bridge_only.txtar")
	e.vars["TELEGRAM_TOKEN"] = tgToken

	out, err := e.run(t.Context(), t, e.newApp(t), "-dry", "run")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, out, string(testutil.ReadFile(t, "testdata/run/bridge_only.golden")))
	testutil.AssertEqual(t, len(e.api.telegram), 0)
}

func TestRunStyle(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, "testdata/run/basic.txtar")
	out, err := e.run(t.Context(), t, e.newApp(t), "-style", "markdown", "run")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertContains(t, out, `"body":"From alice twitter: **second post** @ https://twitter.com/alice/status/102"`)
	testutil.AssertContains(t, out, `"body":"From bob twitter: **v1\\.2 release is out** @ https://twitter.com/bob/status/104"`)
}

func TestFeeds(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, "testdata/run/basic.txtar")
	out, err := e.run(t.Context(), t, e.newApp(t), "feeds")
	if err != nil {
		t.Fatal(err)
	}
	want := `USER   CHANNELS            PATTERN    SOURCE
alice  #general            -          api
bob    #releases,#general  "release"  api
carol  #general            -          https://nitter.example/%s/rss

3 feeds, watermark 100
`
	testutil.AssertEqual(t, out, want)
}

func TestFeedsJSON(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, "testdata/run/basic.txtar")
	out, err := e.run(t.Context(), t, e.newApp(t), "-json", "feeds")
	if err != nil {
		t.Fatal(err)
	}
	got := testutil.UnmarshalJSON[struct {
		Watermark int64         `json:"watermark"`
		Feeds     []config.Feed `json:"feeds"`
	}](t, []byte(out))
	testutil.AssertEqual(t, got.Watermark, int64(100))
	testutil.AssertEqual(t, got.Feeds[1], config.Feed{
		Source:       "bob",
		Destinations: []string{"#releases", "#general"},
		Pattern:      "release",
	})
}

func TestInvalidArgs(t *testing.T) {
	t.Parallel()

	cases := map[string][]string{
		"no command":        nil,
		"unknown command":   {"tweet"},
		"extra arguments":   {"run", "now"},
		"negative interval": {"-interval", "-5", "serve"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			e := newTestEnv(t, "testdata/run/basic.txtar")
			_, err := e.run(t.Context(), t, e.newApp(t), args...)
			if !errors.Is(err, cli.ErrInvalidArgs) {
				t.Fatalf("want %v, got %v", cli.ErrInvalidArgs, err)
			}
		})
	}
}

func TestFlagsFromEnvironment(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, "testdata/run/basic.txtar")
	e.vars["CHIRP_CACHE"] = "mem:" + t.Name()
	e.vars["CHIRP_STYLE"] = "irc"

	out, err := e.run(t.Context(), t, e.newApp(t), "-json", "feeds")
	if err != nil {
		t.Fatal(err)
	}
	// A fresh in-memory cache instead of cache.json.
	testutil.AssertContains(t, out, `"watermark": 1,`)

	out, err = e.run(t.Context(), t, e.newApp(t), "run")
	if err != nil {
		t.Fatal(err)
	}
	// mIRC bold.
	testutil.AssertContains(t, out, `\u0002second post\u0002`)
}

func TestCycleInterval(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		flag   int
		config time.Duration
		want   time.Duration
	}{
		"default":       {want: defaultInterval},
		"from config":   {config: 2 * time.Minute, want: 2 * time.Minute},
		"flag wins":     {flag: 60, config: 2 * time.Minute, want: time.Minute},
		"only the flag": {flag: 10, want: 10 * time.Second},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			a := newApp(func(string) string { return "" })
			a.interval = tc.flag
			a.cfgInterval.Store(int64(tc.config))
			testutil.AssertEqual(t, a.cycleInterval(), tc.want)
		})
	}
}

func TestServe(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, "testdata/run/basic.txtar")
	a := e.newApp(t)
	addrc := make(chan string, 1)
	a.ready = func(addr string) { addrc <- addr }

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		_, err := e.run(ctx, t, a, "-addr", "localhost:0", "-interval", "3600", "serve")
		errc <- err
	}()

	var addr string
	select {
	case addr = <-addrc:
	case err := <-errc:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("server didn't become ready")
	}
	base := "http://" + addr

	// Wait for the first cycle.
	var last string
	deadline := time.Now().Add(10 * time.Second)
	for {
		code, body := get(t, base+"/debug/last-cycle")
		if code == http.StatusOK {
			last = body
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("first cycle didn't finish: %d %s", code, body)
		}
		time.Sleep(10 * time.Millisecond)
	}
	testutil.AssertContains(t, last, `"delivered": 4`)
	testutil.AssertContains(t, last, `"watermark": 105`)
	testutil.AssertContains(t, last, `"duration": "`)

	code, body := get(t, base+"/health")
	testutil.AssertEqual(t, code, http.StatusOK)
	testutil.AssertContains(t, body, "delivered 4 entries")

	_, body = get(t, base+"/metrics")
	testutil.AssertContains(t, body, `chirp_cycles_total{outcome="ok"} 1`)
	testutil.AssertContains(t, body, "chirp_watermark 105")

	_, body = get(t, base+"/debug/logs")
	testutil.AssertContains(t, body, "cycle finished")

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("serve didn't stop")
	}
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, string(b)
}
