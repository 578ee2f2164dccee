package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultMaxTokens    = 4000
	defaultHTTPTimeout  = 60 * time.Second
	defaultMaxRetries   = 2
	defaultRetryInitial = 500 * time.Millisecond
)

// APIError is a non-2xx reply from a hosted provider.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s API error: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// Retryable reports whether the provider asked the caller to back off.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// Option customizes a hosted provider client.
type Option func(*httpProvider)

// WithModel overrides the provider's default model. Empty keeps the default.
func WithModel(model string) Option {
	return func(p *httpProvider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL points the client at a different API host, e.g. a proxy or an
// OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(p *httpProvider) {
		if url != "" {
			p.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithTimeout bounds each HTTP attempt. Zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(p *httpProvider) {
		if d > 0 {
			p.client.Timeout = d
		}
	}
}

// WithMaxRetries sets how many times a rate-limited or 5xx reply is retried
// with exponential backoff. Zero disables retries.
func WithMaxRetries(n int) Option {
	return func(p *httpProvider) {
		if n >= 0 {
			p.maxRetries = n
		}
	}
}

func WithMaxTokens(n int) Option {
	return func(p *httpProvider) {
		if n > 0 {
			p.maxTokens = n
		}
	}
}

// httpProvider is the transport shared by the JSON-over-HTTP providers.
type httpProvider struct {
	name         string
	apiKey       string
	baseURL      string
	model        string
	maxTokens    int
	maxRetries   int
	retryInitial time.Duration
	client       *http.Client
}

func newHTTPProvider(name, apiKey, baseURL, model string, opts []Option) httpProvider {
	p := httpProvider{
		name:         name,
		apiKey:       apiKey,
		baseURL:      baseURL,
		model:        model,
		maxTokens:    defaultMaxTokens,
		maxRetries:   defaultMaxRetries,
		retryInitial: defaultRetryInitial,
		client:       &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// GetModel returns the model requests are sent to.
func (p *httpProvider) GetModel() string { return p.model }

// post sends body as JSON and decodes a 200 reply into out. Any other status
// becomes an *APIError carrying the provider's message when it has one.
// Retryable API errors are retried up to maxRetries times.
func (p *httpProvider) post(ctx context.Context, path string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", p.name, err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.retryInitial

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		err := p.send(ctx, path, headers, payload, out)
		var apiErr *APIError
		if err != nil && !(errors.As(err, &apiErr) && apiErr.Retryable()) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(p.maxRetries+1)))
	return err
}

func (p *httpProvider) send(ctx context.Context, path string, headers map[string]string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", strings.ToLower(p.name), err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", p.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{Provider: p.name, StatusCode: resp.StatusCode, Message: errorMessage(respBytes)}
	}
	if err := json.Unmarshal(respBytes, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", p.name, err)
	}
	return nil
}

// errorMessage pulls error.message out of a provider error body, falling
// back to the raw body.
func errorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return strings.TrimSpace(string(body))
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
