package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"offlinesync/internal/config"
	"offlinesync/internal/domain"
	"offlinesync/internal/models"

	"golang.org/x/time/rate"
)

// maxErrorBody caps how much of a failed response ends up in LastError.
const maxErrorBody = 256

// StatusError is returned when the remote answers with a non-2xx status.
type StatusError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: http %d", e.Method, e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: http %d: %s", e.Method, e.Endpoint, e.StatusCode, e.Body)
}

// Client replays recorded operations against the remote API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient constructs a client for cfg.BaseURL. A positive RPS paces
// replay so a long backlog does not burst the remote on reconnect.
func NewClient(cfg config.RemoteConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = models.DefaultRemoteTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
	}
	if cfg.RateLimit.RPS > 0 {
		burst := cfg.RateLimit.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), burst)
	}
	return c
}

// Send issues one request for op. Only a 2xx status counts as success.
func (c *Client) Send(ctx context.Context, op *models.PendingOperation) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := c.newRequest(ctx, op)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", op.Method, op.Endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method:     op.Method,
			Endpoint:   op.Endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) newRequest(ctx context.Context, op *models.PendingOperation) (*http.Request, error) {
	var body io.Reader
	if op.HasBody() {
		body = bytes.NewReader(op.Data)
	}

	req, err := http.NewRequestWithContext(ctx, op.Method, c.resolve(op.Endpoint), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	// Captured headers are replayed verbatim and win over defaults.
	for k, v := range op.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (c *Client) resolve(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return c.baseURL + endpoint
}

var _ domain.Sender = (*Client)(nil)
