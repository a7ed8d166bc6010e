package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"offlinesync/internal/config"
	"offlinesync/internal/domain"
	"offlinesync/internal/models"
	"offlinesync/internal/service"

	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// HTTPServer exposes queue status and manual controls to local UI surfaces.
type HTTPServer struct {
	cfg    config.APIConfig
	queue  domain.QueueService
	server *http.Server
	auth   *HTTPAuth
	logger *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, queue domain.QueueService, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	mux := http.NewServeMux()
	srv := &HTTPServer{cfg: cfg, queue: queue, logger: logger}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc("/api/v1/queue/status", srv.handleStatus)
	mux.HandleFunc("/api/v1/queue/stats", srv.handleStats)
	mux.HandleFunc("/api/v1/queue/sync", srv.handleSync)
	mux.HandleFunc("/api/v1/queue/failed", srv.handleClearFailed)
	mux.HandleFunc("/api/v1/queue/operations", srv.handleOperations)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	handler := loggingMiddleware(logger, srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the fully wrapped handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	count, err := s.queue.GetPendingCount(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("pending count")
		writeError(w, http.StatusInternalServerError, "queue unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pending_count": count,
		"syncing":       s.queue.IsSyncing(),
	})
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats, err := s.queue.Stats(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("queue stats")
		writeError(w, http.StatusInternalServerError, "queue unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleSync triggers a pass. By default the pass runs in the background and
// the call returns 202; with wait=true it blocks and returns the summary.
func (s *HTTPServer) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait {
		if s.queue.IsSyncing() {
			writeJSON(w, http.StatusAccepted, map[string]any{"started": false, "syncing": true})
			return
		}
		ctx := context.WithoutCancel(r.Context())
		go func() {
			if _, err := s.queue.ProcessPendingOperations(ctx); err != nil {
				s.logger.Error().Err(err).Msg("manual sync failed")
			}
		}()
		writeJSON(w, http.StatusAccepted, map[string]any{"started": true})
		return
	}

	summary, err := s.queue.ProcessPendingOperations(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("manual sync failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "sync failed",
			"summary": summary,
		})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *HTTPServer) handleClearFailed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	removed, err := s.queue.ClearFailedOperations(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Int("removed", removed).Msg("clear failed operations")
		writeError(w, http.StatusInternalServerError, "clear failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *HTTPServer) handleOperations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ops, err := s.queue.ListOperations(r.Context())
		if err != nil {
			s.logger.Error().Err(err).Msg("list operations")
			writeError(w, http.StatusInternalServerError, "queue unavailable")
			return
		}
		if ops == nil {
			ops = []models.PendingOperation{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"operations": ops})
	case http.MethodPost:
		s.enqueue(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) enqueue(w http.ResponseWriter, r *http.Request) {
	var req models.EnqueueRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	op, err := s.queue.QueueOperation(r.Context(), req)
	switch {
	case errors.Is(err, service.ErrInvalidMethod), errors.Is(err, service.ErrEmptyEndpoint):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, domain.ErrStorage):
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	case err != nil:
		s.logger.Error().Err(err).Msg("enqueue")
		writeError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}

	writeJSON(w, http.StatusCreated, op)
}

func loggingMiddleware(logger *zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("dur", time.Since(start)).
			Msg("http")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
