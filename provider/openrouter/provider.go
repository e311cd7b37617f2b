package openrouter

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fogfish/opts"
	json "github.com/goccy/go-json"
	"github.com/parleyhq/parley/provider"
	"github.com/tidwall/gjson"
)

const (
	// DefaultBaseURL is the public OpenRouter API root.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	doneSentinel = "[DONE]"
	dataPrefix   = "data: "

	// maxLineBytes bounds a single SSE line; completion deltas are tiny
	// but model descriptions in error payloads can run long.
	maxLineBytes = 1 << 20
)

var _ provider.Provider = (*Client)(nil)

// Client talks to an OpenRouter-compatible chat-completions endpoint.
type Client struct {
	baseURL string
	apiKey  string
	referer string
	title   string
	hc      *http.Client
}

var (
	// WithBaseURL points the client at a different API root, typically a
	// test server.
	WithBaseURL = opts.ForName[Client, string]("baseURL")
	// WithAPIKey sets the bearer token sent on every request.
	WithAPIKey = opts.ForName[Client, string]("apiKey")
	// WithReferer sets the HTTP-Referer attribution header.
	WithReferer = opts.ForName[Client, string]("referer")
	// WithTitle sets the X-Title attribution header.
	WithTitle = opts.ForName[Client, string]("title")
	// WithHTTPClient replaces the underlying HTTP client.
	WithHTTPClient = opts.ForName[Client, *http.Client]("hc")
)

// New creates a client with the provided options applied over defaults.
func New(options ...opts.Option[Client]) *Client {
	client := &Client{
		baseURL: DefaultBaseURL,
		hc:      &http.Client{Timeout: 5 * time.Minute},
	}
	if err := opts.Apply(client, options); err != nil {
		panic(err)
	}
	return client
}

type completionRequest struct {
	Model    string             `json:"model"`
	Messages []provider.Message `json:"messages"`
	Stream   bool               `json:"stream"`
}

// Stream opens one streaming completion request and returns the raw SSE
// body after the status line has been checked. The caller owns closing
// the returned reader. A non-2xx response is returned as an error
// carrying the status code and response body.
func (c *Client) Stream(ctx context.Context, model string, messages []provider.Message) (io.ReadCloser, error) {
	payload, err := json.Marshal(completionRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build completion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxLineBytes))
		resp.Body.Close()
		return nil, fmt.Errorf("openrouter error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp.Body, nil
}

// StreamCompletion implements provider.Provider. It decodes the SSE body
// into text deltas: each "data: " line's payload is parsed and
// choices.0.delta.content extracted, unparsable payloads are skipped
// (keep-alive and partial frames), and the literal [DONE] sentinel ends
// the sequence. Anything after the sentinel is unreachable.
func (c *Client) StreamCompletion(ctx context.Context, model string, messages []provider.Message) (<-chan provider.StreamEvent, error) {
	body, err := c.Stream(ctx, model, messages)
	if err != nil {
		return nil, err
	}

	events := make(chan provider.StreamEvent, 10)
	go func() {
		defer close(events)
		defer body.Close()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}

			data, ok := strings.CutPrefix(scanner.Text(), dataPrefix)
			if !ok {
				continue
			}
			data = strings.TrimSpace(data)
			if data == doneSentinel {
				return
			}
			if !gjson.Valid(data) {
				continue
			}

			content := gjson.Get(data, "choices.0.delta.content")
			if !content.Exists() || content.String() == "" {
				continue
			}

			select {
			case events <- provider.Delta{Content: content.String()}:
			case <-ctx.Done():
				return
			}
		}

		// A read error after cancellation is the abort itself, not a
		// failure to report.
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			events <- provider.StreamError{Err: fmt.Errorf("openrouter stream failed: %w", err)}
		}
	}()

	return events, nil
}

// Complete implements provider.Provider by draining a streaming call into
// a single string.
func (c *Client) Complete(ctx context.Context, model string, messages []provider.Message) (string, error) {
	stream, err := c.StreamCompletion(ctx, model, messages)
	if err != nil {
		return "", err
	}

	var full strings.Builder
	for event := range stream {
		switch e := event.(type) {
		case provider.Delta:
			full.WriteString(e.Content)
		case provider.StreamError:
			return "", e.Err
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return full.String(), nil
}
