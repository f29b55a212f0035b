// Package provider is the HTTP client for the outbound transactional email
// provider. It performs a single attempt per call; retry policy belongs to
// the caller.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/courtside/mailer/internal/config"
	"github.com/courtside/mailer/internal/pkg/httpretry"
)

// Client talks to the provider's REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient httpretry.HTTPDoer
	now        func() time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(doer httpretry.HTTPDoer) Option {
	return func(c *Client) { c.httpClient = doer }
}

// NewClient creates a provider client from configuration.
func NewClient(cfg config.ProviderConfig, opts ...Option) *Client {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool { return c.apiKey != "" }

// Send submits a single message.
func (c *Client) Send(ctx context.Context, email *Email) (*SendResponse, error) {
	var out SendResponse
	if err := c.doRequest(ctx, "/emails", email, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendBatch submits up to MaxBatchSize messages in permissive validation
// mode: invalid items are reported in BatchResponse.Errors while the rest
// are accepted.
func (c *Client) SendBatch(ctx context.Context, emails []Email, opts BatchOptions) (*BatchResponse, error) {
	if len(emails) > MaxBatchSize {
		return nil, httpretry.Permanent(fmt.Errorf("batch of %d exceeds provider limit %d", len(emails), MaxBatchSize))
	}
	headers := map[string]string{"x-batch-validation": "permissive"}
	if opts.IdempotencyKey != "" {
		headers["Idempotency-Key"] = opts.IdempotencyKey
	}

	var out BatchResponse
	if err := c.doRequest(ctx, "/emails/batch", emails, headers, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) doRequest(ctx context.Context, path string, body any, headers map[string]string, out any) error {
	if c.apiKey == "" {
		return httpretry.Permanent(ErrNotConfigured)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return httpretry.Permanent(fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return httpretry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Wait:       httpretry.ParseRetryAfter(resp.Header.Get("Retry-After"), c.now()),
		}
		var eb errorBody
		if json.Unmarshal(respBody, &eb) == nil && eb.Message != "" {
			apiErr.Name = eb.Name
			apiErr.Message = eb.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return httpretry.Permanent(fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}

var tagUnsafe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// SanitizeTag restricts a tag name or value to the characters the provider
// accepts.
func SanitizeTag(s string) string {
	return tagUnsafe.ReplaceAllString(strings.TrimSpace(s), "_")
}

// NewTag builds a tag with sanitized name and value.
func NewTag(name, value string) Tag {
	return Tag{Name: SanitizeTag(name), Value: SanitizeTag(value)}
}
