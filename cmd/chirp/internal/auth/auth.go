// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package auth exchanges application credentials for a bearer token using
// the OAuth 2 client credentials grant.
package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.astrophena.name/chirp/internal/request"
)

// DefaultEndpoint is the token endpoint used when [Broker.Endpoint] is empty.
const DefaultEndpoint = "https://api.twitter.com/oauth2/token"

// Token is an opaque bearer token. It is valid for the duration of one cycle.
type Token string

// AuthError is returned when a token can't be obtained.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "acquiring token: " + e.Err.Error() }

func (e *AuthError) Unwrap() error { return e.Err }

// Broker obtains bearer tokens. Tokens are not cached: every call to Token
// makes a new request.
type Broker struct {
	Key        string
	Secret     string
	Endpoint   string
	HTTPClient *http.Client
}

type tokenResponse struct {
	TokenType   string `json:"token_type"`
	AccessToken string `json:"access_token"`
}

// Token requests a new bearer token.
func (b *Broker) Token(ctx context.Context) (Token, error) {
	if b.Key == "" || b.Secret == "" {
		return "", &AuthError{Err: fmt.Errorf("consumer key or secret is not set")}
	}

	endpoint := b.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	basic := base64.StdEncoding.EncodeToString([]byte(b.Key + ":" + b.Secret))
	resp, err := request.Make[tokenResponse](ctx, request.Params{
		Method: http.MethodPost,
		URL:    endpoint,
		Headers: map[string]string{
			"Authorization": "Basic " + basic,
			"Content-Type":  "application/x-www-form-urlencoded;charset=UTF-8",
		},
		Body:       url.Values{"grant_type": {"client_credentials"}},
		HTTPClient: b.HTTPClient,
		Scrubber:   strings.NewReplacer(b.Key, "[EXPUNGED]", b.Secret, "[EXPUNGED]", basic, "[EXPUNGED]"),
	})
	if err != nil {
		return "", &AuthError{Err: err}
	}
	if resp.AccessToken == "" {
		return "", &AuthError{Err: fmt.Errorf("response has no access_token")}
	}
	return Token(resp.AccessToken), nil
}
