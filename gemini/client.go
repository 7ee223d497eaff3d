// Package gemini is a small client for the Gemini generateContent endpoint,
// used both for chunk transcription and for transcript structure analysis.
package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-2.5-flash"

	defaultTimeout   = 60 * time.Second
	defaultRetries   = 2
	defaultRetryWait = 500 * time.Millisecond

	transcribeInstruction = "Please transcribe this audio to text. Only return the transcribed text, nothing else."
)

// APIError is returned when the service answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini API error (status %d): %s", e.StatusCode, e.Message)
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. Primarily used in tests to point at
// a local server.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithModel sets the model used for requests.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithTimeout bounds a single HTTP attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetries sets how many times a transient failure is retried.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// WithRetryWait sets the initial backoff between retries.
func WithRetryWait(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retryWait = d
		}
	}
}

// Client talks to the generateContent endpoint. It is safe for concurrent use.
type Client struct {
	apiKey    string
	model     string
	baseURL   string
	timeout   time.Duration
	retries   int
	retryWait time.Duration

	http *resty.Client
}

// New creates a Client authenticating with apiKey.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:    apiKey,
		model:     DefaultModel,
		baseURL:   DefaultBaseURL,
		timeout:   defaultTimeout,
		retries:   defaultRetries,
		retryWait: defaultRetryWait,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.http = resty.New().
		SetBaseURL(c.baseURL).
		SetTimeout(c.timeout).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(c.retries).
		SetRetryWaitTime(c.retryWait).
		SetRetryMaxWaitTime(10 * c.retryWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		})

	return c
}

// Model returns the model the client sends requests to.
func (c *Client) Model() string {
	return c.model
}

// GenerateContent sends req and decodes the reply.
func (c *Client) GenerateContent(ctx context.Context, req *Request) (*Response, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetBody(req).
		Post("/models/" + c.model + ":generateContent")
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	if resp.IsError() {
		msg := resp.String()
		var apiErr errorResponse
		if json.Unmarshal(resp.Body(), &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return nil, &APIError{StatusCode: resp.StatusCode(), Message: msg}
	}

	var out Response
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("failed to decode gemini response: %w", err)
	}

	slog.Debug("Gemini response received",
		"model", c.model,
		"status", resp.StatusCode(),
		"candidates", len(out.Candidates),
		"elapsed", resp.Time())

	return &out, nil
}

// Transcribe asks the model for a verbatim transcript of a WAV payload. A
// reply without text yields an empty string.
func (c *Client) Transcribe(ctx context.Context, wav []byte) (string, error) {
	req := &Request{
		Contents: []Content{{
			Parts: []Part{
				{Text: transcribeInstruction},
				{InlineData: &InlineData{
					MimeType: "audio/wav",
					Data:     base64.StdEncoding.EncodeToString(wav),
				}},
			},
		}},
	}

	resp, err := c.GenerateContent(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// Generate sends a text-only prompt and returns the reply text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	req := &Request{
		Contents: []Content{{
			Parts: []Part{{Text: prompt}},
		}},
	}

	resp, err := c.GenerateContent(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
