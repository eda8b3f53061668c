// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.astrophena.name/chirp/internal/testutil"
)

const (
	testKey    = "consumer-key"
	testSecret = "consumer-secret"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func testBroker(h http.HandlerFunc) *Broker {
	return &Broker{
		Key:    testKey,
		Secret: testSecret,
		HTTPClient: &http.Client{
			Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
				w := httptest.NewRecorder()
				h(w, r)
				return w.Result(), nil
			}),
		},
	}
}

func TestToken(t *testing.T) {
	t.Parallel()

	b := testBroker(func(w http.ResponseWriter, r *http.Request) {
		testutil.AssertEqual(t, r.Method, http.MethodPost)
		testutil.AssertEqual(t, r.URL.String(), DefaultEndpoint)
		testutil.AssertEqual(t, r.Header.Get("Content-Type"), "application/x-www-form-urlencoded;charset=UTF-8")

		key, secret, ok := r.BasicAuth()
		testutil.AssertEqual(t, ok, true)
		testutil.AssertEqual(t, key, testKey)
		testutil.AssertEqual(t, secret, testSecret)

		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		testutil.AssertEqual(t, r.PostForm.Get("grant_type"), "client_credentials")

		w.Write([]byte(`{"token_type":"bearer","access_token":"AAAA"}`))
	})

	tok, err := b.Token(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, tok, Token("AAAA"))
}

func TestTokenNotCached(t *testing.T) {
	t.Parallel()

	var calls int
	b := testBroker(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"access_token":"AAAA"}`))
	})
	for range 2 {
		if _, err := b.Token(t.Context()); err != nil {
			t.Fatal(err)
		}
	}
	testutil.AssertEqual(t, calls, 2)
}

func TestTokenErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		broker   *Broker
		contains string
	}{
		"unauthorized": {
			broker: testBroker(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "bad credentials for "+testKey, http.StatusForbidden)
			}),
			contains: "want 200, got 403: bad credentials for [EXPUNGED]",
		},
		"malformed json": {
			broker: testBroker(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"access_token":`))
			}),
			contains: "decoding response",
		},
		"missing token": {
			broker: testBroker(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"token_type":"bearer"}`))
			}),
			contains: "no access_token",
		},
		"transport error": {
			broker: &Broker{
				Key:    testKey,
				Secret: testSecret,
				HTTPClient: &http.Client{
					Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
						return nil, errors.New("connection refused")
					}),
				},
			},
			contains: "connection refused",
		},
		"no credentials": {
			broker:   &Broker{},
			contains: "not set",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := tc.broker.Token(t.Context())
			var ae *AuthError
			if !errors.As(err, &ae) {
				t.Fatalf("want *AuthError, got %v", err)
			}
			testutil.AssertContains(t, err.Error(), tc.contains)
			if strings.Contains(err.Error(), testSecret) {
				t.Fatalf("error leaks the secret: %v", err)
			}
		})
	}
}
