// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package request makes HTTP requests and decodes their JSON responses.
package request

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.astrophena.name/chirp/internal/version"
)

// DefaultClient is used when [Params.HTTPClient] is nil. Its timeout bounds
// every request, so a single unresponsive endpoint can't stall callers
// indefinitely.
var DefaultClient = &http.Client{
	Timeout: 30 * time.Second,
}

// Params describes a request.
type Params struct {
	Method string
	URL    string
	// Query is appended to URL, if not empty.
	Query url.Values
	// Headers are set on the request after the default ones.
	Headers map[string]string
	// Body is the request body. url.Values are sent form-encoded, []byte as
	// is, and anything else is marshaled to JSON.
	Body any
	// WantStatusCode is the status code treated as success. Zero means 200.
	WantStatusCode int
	// HTTPClient is used to send the request instead of DefaultClient.
	HTTPClient *http.Client
	// Scrubber removes secrets from error messages.
	Scrubber *strings.Replacer
}

// StatusError is returned when the response status code isn't the wanted one.
type StatusError struct {
	WantStatusCode int
	StatusCode     int
	Body           []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("want %d, got %d: %s", e.WantStatusCode, e.StatusCode, e.Body)
}

// IgnoreResponse can be used as the Response type parameter of [Make] when the
// response body doesn't matter.
type IgnoreResponse struct{}

// Bytes can be used as the Response type parameter of [Make] to get the raw
// response body.
type Bytes []byte

type scrubbedError struct {
	err      error
	scrubber *strings.Replacer
}

func (e *scrubbedError) Error() string {
	if e.scrubber == nil {
		return e.err.Error()
	}
	return e.scrubber.Replace(e.err.Error())
}

func (e *scrubbedError) Unwrap() error { return e.err }

func scrub(err error, s *strings.Replacer) error {
	return &scrubbedError{err: err, scrubber: s}
}

// Make sends the request described by p and decodes the JSON response into
// a value of type Response.
func Make[Response any](ctx context.Context, p Params) (Response, error) {
	var resp Response

	var (
		body        io.Reader
		contentType string
	)
	switch b := p.Body.(type) {
	case nil:
	case url.Values:
		body = strings.NewReader(b.Encode())
		contentType = "application/x-www-form-urlencoded"
	case []byte:
		body = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return resp, scrub(err, p.Scrubber)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	u := p.URL
	if len(p.Query) > 0 {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + p.Query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, p.Method, u, body)
	if err != nil {
		return resp, scrub(err, p.Scrubber)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	httpc := p.HTTPClient
	if httpc == nil {
		httpc = DefaultClient
	}

	res, err := httpc.Do(req)
	if err != nil {
		return resp, scrub(err, p.Scrubber)
	}
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return resp, scrub(err, p.Scrubber)
	}

	want := p.WantStatusCode
	if want == 0 {
		want = http.StatusOK
	}
	if res.StatusCode != want {
		return resp, scrub(&StatusError{
			WantStatusCode: want,
			StatusCode:     res.StatusCode,
			Body:           b,
		}, p.Scrubber)
	}

	switch v := any(&resp).(type) {
	case *IgnoreResponse:
		return resp, nil
	case *Bytes:
		*v = b
		return resp, nil
	}

	if err := json.Unmarshal(b, &resp); err != nil {
		return resp, scrub(fmt.Errorf("decoding response of %s %q: %w", p.Method, p.URL, err), p.Scrubber)
	}
	return resp, nil
}
