// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package telegram implements message delivery over the Telegram Bot API.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.astrophena.name/chirp/cmd/chirp/internal/sink"
	"go.astrophena.name/chirp/internal/request"
	"go.astrophena.name/chirp/internal/tgmarkup"
)

const (
	tgAPI          = "https://api.telegram.org"
	sendRetryLimit = 5 // N attempts to retry message sending
	maxMessageLen  = 4096
)

// Config configures a Telegram sender.
type Config struct {
	Token      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Sender delivers messages through the Telegram Bot API. A destination is a
// chat ID, optionally followed by a colon and a topic (message thread) ID.
type Sender struct {
	token       string
	httpc       *http.Client
	scrubber    *strings.Replacer
	slog        *slog.Logger
	makeRequest func(context.Context, string, any) error
	sleep       func(context.Context, time.Duration) bool
}

// New returns a Telegram sender.
func New(cfg Config) *Sender {
	s := &Sender{
		token: cfg.Token,
		httpc: cfg.HTTPClient,
		slog:  cfg.Logger,
	}
	if s.token != "" {
		s.scrubber = strings.NewReplacer(s.token, "[EXPUNGED]")
	}
	if s.httpc == nil {
		s.httpc = request.DefaultClient
	}
	if s.slog == nil {
		s.slog = slog.Default()
	}
	s.makeRequest = s.makeTelegramRequest
	s.sleep = sleep
	return s
}

type message struct {
	ChatID             string `json:"chat_id"`
	MessageThreadID    int64  `json:"message_thread_id,omitempty"`
	LinkPreviewOptions struct {
		IsDisabled bool `json:"is_disabled"`
	} `json:"link_preview_options"`
	tgmarkup.Message
}

// Decorations implements the [sink.Sink] interface.
func (s *Sender) Decorations() map[string]string { return sink.Markdown }

// Escape implements the [sink.Sink] interface. Bodies are parsed as
// Markdown, so punctuation in s is escaped.
func (s *Sender) Escape(str string) string { return sink.EscapeMarkdown(str) }

// Put implements the [sink.Sink] interface. Bodies longer than Telegram
// allows are split into several messages. Rate-limited requests are retried
// after the delay Telegram asks for.
func (s *Sender) Put(ctx context.Context, msg sink.Message) error {
	chatID, topic, hasTopic := strings.Cut(msg.Destination, ":")
	if chatID == "" {
		return fmt.Errorf("empty chat ID in destination %q", msg.Destination)
	}

	tgmsg := &message{ChatID: chatID}
	if hasTopic {
		threadID, err := strconv.ParseInt(topic, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing topic of destination %q as thread ID: %w", msg.Destination, err)
		}
		tgmsg.MessageThreadID = threadID
	}

	for _, chunk := range splitMessage(msg.Body) {
		tgmsg.Message = tgmarkup.FromMarkdown(chunk)

		var err error
		for range sendRetryLimit {
			err = s.makeRequest(ctx, "sendMessage", tgmsg)
			if err == nil {
				break
			}

			retryable, wait := isRateLimited(err)
			if !retryable {
				break
			}

			s.slog.Warn("sending rate limited, waiting", slog.String("destination", msg.Destination), slog.Duration("wait", wait))
			if !s.sleep(ctx, wait) {
				return ctx.Err()
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Sender) makeTelegramRequest(ctx context.Context, method string, args any) error {
	_, err := request.Make[request.IgnoreResponse](ctx, request.Params{
		Method:     http.MethodPost,
		URL:        tgAPI + "/bot" + s.token + "/" + method,
		Body:       args,
		HTTPClient: s.httpc,
		Scrubber:   s.scrubber,
	})
	return err
}

func splitMessage(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var chunks []string
	for text != "" {
		if utf8.RuneCountInString(text) <= maxMessageLen {
			chunks = append(chunks, text)
			break
		}

		var (
			lastNewline    = -1
			lastWhitespace = -1
			byteCap        = len(text)
			runeCount      int
		)

		for i, r := range text {
			if runeCount == maxMessageLen {
				byteCap = i
				break
			}
			runeCount++

			if r == '\n' {
				lastNewline = i
				continue
			}
			if unicode.IsSpace(r) {
				lastWhitespace = i
			}
		}

		splitAt := byteCap
		switch {
		case lastNewline > 0:
			splitAt = lastNewline
		case lastWhitespace > 0:
			splitAt = lastWhitespace
		}

		if chunk := strings.TrimSpace(text[:splitAt]); chunk != "" {
			chunks = append(chunks, chunk)
		}
		text = strings.TrimSpace(text[splitAt:])
	}

	return chunks
}

func isRateLimited(err error) (bool, time.Duration) {
	var statusErr *request.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusTooManyRequests {
		return false, 0
	}

	var errorResponse struct {
		Parameters struct {
			RetryAfter int `json:"retry_after"`
		} `json:"parameters"`
	}
	if err := json.Unmarshal(statusErr.Body, &errorResponse); err != nil {
		return false, 0
	}

	return true, time.Duration(errorResponse.Parameters.RetryAfter) * time.Second
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

var _ sink.Sink = (*Sender)(nil)
