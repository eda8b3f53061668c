// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.astrophena.name/chirp/internal/testutil"
)

func TestRespondJSON(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	RespondJSON(rec, map[string]int{"delivered": 2})

	testutil.AssertEqual(t, rec.Code, http.StatusOK)
	testutil.AssertEqual(t, rec.Header().Get("Content-Type"), "application/json")
	testutil.AssertEqual(t, rec.Body.String(), "{\n  \"delivered\": 2\n}\n")
}

func TestRespondJSONMarshalError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	RespondJSON(rec, map[string]any{"ch": make(chan int)})

	testutil.AssertEqual(t, rec.Code, http.StatusInternalServerError)
	got := testutil.UnmarshalJSON[errorResponse](t, rec.Body.Bytes())
	testutil.AssertEqual(t, got.Status, "error")
	testutil.AssertContains(t, got.Error, "JSON marshal error")
}

func TestRespondJSONError(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		err        error
		wantStatus int
	}{
		"status error": {
			err:        fmt.Errorf("no cycle has run yet: %w", ErrNotFound),
			wantStatus: http.StatusNotFound,
		},
		"plain error": {
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondJSONError(rec, tc.err)
			testutil.AssertEqual(t, rec.Code, tc.wantStatus)
			got := testutil.UnmarshalJSON[errorResponse](t, rec.Body.Bytes())
			testutil.AssertEqual(t, got, errorResponse{Status: "error", Error: tc.err.Error()})
		})
	}
}
