package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"offlinesync/internal/config"
	"offlinesync/internal/models"
	"offlinesync/internal/transport"
)

const syncPath = "/api/v1/queue/sync?wait=true"

var errDaemonUnreachable = errors.New("daemon unreachable")

// daemonClient asks a running daemon to replay, so only one process ever
// sends from the queue.
type daemonClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// newDaemonClient returns nil when no daemon API is configured.
func newDaemonClient(cfg config.APIConfig, override string) *daemonClient {
	baseURL := strings.TrimRight(override, "/")
	if baseURL == "" {
		if !cfg.Enabled || cfg.Port == 0 {
			return nil
		}
		baseURL = fmt.Sprintf("http://127.0.0.1:%d", cfg.Port)
	}
	return &daemonClient{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *daemonClient) Sync(ctx context.Context) (models.PassSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+syncPath, http.NoBody)
	if err != nil {
		return models.PassSummary{}, err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.PassSummary{}, fmt.Errorf("%w: %w", errDaemonUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.PassSummary{}, fmt.Errorf("read daemon response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var summary models.PassSummary
		if err := json.Unmarshal(body, &summary); err != nil {
			return models.PassSummary{}, fmt.Errorf("decode daemon summary: %w", err)
		}
		return summary, nil
	case http.StatusInternalServerError:
		// The pass ran but hit store errors; keep its summary.
		var failed struct {
			Summary models.PassSummary `json:"summary"`
		}
		_ = json.Unmarshal(body, &failed)
		return failed.Summary, statusError(resp, body)
	default:
		return models.PassSummary{}, statusError(resp, body)
	}
}

func statusError(resp *http.Response, body []byte) error {
	return &transport.StatusError{
		Method:     http.MethodPost,
		Endpoint:   syncPath,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}
