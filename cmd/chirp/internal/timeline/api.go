// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package timeline

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.astrophena.name/chirp/cmd/chirp/internal/auth"
	"go.astrophena.name/chirp/internal/request"
)

// DefaultEndpoint is the timeline endpoint used when [API.Endpoint] is empty.
const DefaultEndpoint = "https://api.twitter.com/1.1/statuses/user_timeline.json"

// API fetches timelines from the user_timeline endpoint. Replies and reposts
// are excluded server-side.
type API struct {
	Endpoint   string
	HTTPClient *http.Client
}

type status struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// FetchSince implements the [Fetcher] interface.
func (a *API) FetchSince(ctx context.Context, source string, watermark int64, tok auth.Token) ([]Item, error) {
	endpoint := a.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	var scrubber *strings.Replacer
	if tok != "" {
		scrubber = strings.NewReplacer(string(tok), "[EXPUNGED]")
	}

	statuses, err := request.Make[[]status](ctx, request.Params{
		Method: http.MethodGet,
		URL:    endpoint,
		Query: url.Values{
			"screen_name":     {source},
			"exclude_replies": {"true"},
			"trim_user":       {"true"},
			"include_rts":     {"false"},
			"since_id":        {strconv.FormatInt(watermark, 10)},
			"count":           {strconv.Itoa(PageSize)},
		},
		Headers: map[string]string{
			"Authorization": "Bearer " + string(tok),
		},
		HTTPClient: a.HTTPClient,
		Scrubber:   scrubber,
	})
	if err != nil {
		return nil, &FetchError{Source: source, Err: err}
	}

	items := make([]Item, 0, len(statuses))
	for _, st := range statuses {
		items = append(items, Item{
			ID:             st.ID,
			RawText:        st.Text,
			AboveWatermark: st.ID > watermark,
		})
	}
	return items, nil
}
