package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"offlinesync/internal/config"
	"offlinesync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSendSuccess(t *testing.T) {
	var (
		gotMethod string
		gotPath   string
		gotHeader http.Header
		gotBody   string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotHeader = r.Header.Clone()
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(ts.Close)

	client := NewClient(config.RemoteConfig{BaseURL: ts.URL + "/"}, nil)
	op := &models.PendingOperation{
		Endpoint: "/events/42",
		Method:   models.MethodPut,
		Headers:  map[string]string{"Authorization": "Bearer abc"},
		Data:     json.RawMessage(`{"title":"X"}`),
	}

	require.NoError(t, client.Send(context.Background(), op))
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/events/42", gotPath)
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.Equal(t, "Bearer abc", gotHeader.Get("Authorization"))
	assert.JSONEq(t, `{"title":"X"}`, gotBody)
}

func TestClientCapturedHeadersOverrideContentType(t *testing.T) {
	var contentType string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(ts.Close)

	client := NewClient(config.RemoteConfig{BaseURL: ts.URL}, nil)
	op := &models.PendingOperation{
		Endpoint: "events",
		Method:   models.MethodPost,
		Headers:  map[string]string{"Content-Type": "application/merge-patch+json"},
		Data:     json.RawMessage(`{}`),
	}
	require.NoError(t, client.Send(context.Background(), op))
	assert.Equal(t, "application/merge-patch+json", contentType)
}

func TestClientSendWithoutBody(t *testing.T) {
	var length int64 = -2
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		length = r.ContentLength
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(ts.Close)

	client := NewClient(config.RemoteConfig{BaseURL: ts.URL}, nil)
	err := client.Send(context.Background(), &models.PendingOperation{Endpoint: "/events/1", Method: models.MethodDelete})
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)
}

func TestClientNon2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "validation failed", http.StatusUnprocessableEntity)
	}))
	t.Cleanup(ts.Close)

	client := NewClient(config.RemoteConfig{BaseURL: ts.URL}, nil)
	err := client.Send(context.Background(), &models.PendingOperation{Endpoint: "/events", Method: models.MethodPost})
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnprocessableEntity, statusErr.StatusCode)
	assert.Equal(t, "validation failed", statusErr.Body)
	assert.Contains(t, err.Error(), "http 422")
}

func TestClientTransportError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	client := NewClient(config.RemoteConfig{BaseURL: url}, nil)
	err := client.Send(context.Background(), &models.PendingOperation{Endpoint: "/events", Method: models.MethodPost})
	require.Error(t, err)

	var statusErr *StatusError
	assert.False(t, errors.As(err, &statusErr))
}

func TestClientTimeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		ts.Close()
	})

	client := NewClient(config.RemoteConfig{BaseURL: ts.URL, Timeout: 50 * time.Millisecond}, nil)
	err := client.Send(context.Background(), &models.PendingOperation{Endpoint: "/slow", Method: models.MethodPatch})
	assert.Error(t, err)
}

func TestClientRateLimitHonoursContext(t *testing.T) {
	client := NewClient(config.RemoteConfig{BaseURL: "http://127.0.0.1:1", RateLimit: config.RateLimitConfig{RPS: 0.001, Burst: 1}}, nil)
	// consume the single token
	require.True(t, client.limiter.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := client.Send(ctx, &models.PendingOperation{Endpoint: "/x", Method: models.MethodPost})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait")
}

func TestClientResolve(t *testing.T) {
	client := NewClient(config.RemoteConfig{BaseURL: "https://api.example.com/v1/"}, nil)
	assert.Equal(t, "https://api.example.com/v1/events", client.resolve("/events"))
	assert.Equal(t, "https://api.example.com/v1/events", client.resolve("events"))
	assert.Equal(t, "https://other.example.com/x", client.resolve("https://other.example.com/x"))
}
