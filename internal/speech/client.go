// Package speech fetches synthesized speech from the remote TTS endpoint as a
// raw byte stream: one newline-terminated JSON header line followed by an
// unframed 16-bit little-endian PCM tail.
package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/civicvoice/bylaw-tts/internal/logging"
)

var ErrEmptyText = errors.New("speech: text is empty")

// StatusError reports a non-2xx response from the speech endpoint. It always
// surfaces before any audio byte is delivered.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("speech: unexpected status %d", e.Code)
}

type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a client for the given endpoint. timeout bounds the whole
// request including the body read; zero means no client-side timeout, leaving
// lifetime control to the caller's context.
func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint:   strings.TrimSpace(endpoint),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Stream requests synthesis of text and returns the response body as a
// readable stream. The caller owns the stream and must Close it.
func (c *Client) Stream(ctx context.Context, text string) (*Stream, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	reqURL := c.endpoint + "?text=" + url.QueryEscape(text)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("speech: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech: request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused, then fail hard.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		_ = resp.Body.Close()
		logging.Warnf("speech: endpoint returned status %d", resp.StatusCode)
		return nil, &StatusError{Code: resp.StatusCode}
	}

	return &Stream{body: resp.Body}, nil
}

// Stream is the live response body of one synthesis request.
type Stream struct {
	body io.ReadCloser
}

func (s *Stream) Read(p []byte) (int, error) {
	return s.body.Read(p)
}

func (s *Stream) Close() error {
	return s.body.Close()
}
