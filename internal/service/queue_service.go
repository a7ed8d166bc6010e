package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"offlinesync/internal/domain"
	"offlinesync/internal/metrics"
	"offlinesync/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidMethod = errors.New("only POST, PUT, PATCH and DELETE can be queued")
	ErrEmptyEndpoint = errors.New("endpoint is required")
)

// QueueService is the single entry point for producers and status surfaces.
// One instance is built at startup and shared.
type QueueService struct {
	store    domain.OperationStore
	replayer domain.Replayer
	bus      domain.EventBus
	logger   *zerolog.Logger
	now      func() time.Time
}

var _ domain.QueueService = (*QueueService)(nil)

func NewQueueService(store domain.OperationStore, replayer domain.Replayer, bus domain.EventBus, logger *zerolog.Logger) *QueueService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &QueueService{
		store:    store,
		replayer: replayer,
		bus:      bus,
		logger:   logger,
		now:      time.Now,
	}
}

// QueueOperation records a write for later replay. The caller gets the stored
// record back; storage failures are returned unchanged.
func (s *QueueService) QueueOperation(ctx context.Context, req models.EnqueueRequest) (*models.PendingOperation, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if !models.IsQueueableMethod(method) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMethod, req.Method)
	}
	endpoint := strings.TrimSpace(req.Endpoint)
	if endpoint == "" {
		return nil, ErrEmptyEndpoint
	}

	op := &models.PendingOperation{
		ID:        uuid.NewString(),
		Endpoint:  endpoint,
		Method:    method,
		Headers:   copyHeaders(req.Headers),
		Data:      req.Data,
		Timestamp: s.now().UTC(),
		Retries:   0,
		Status:    models.StatusPending,
	}

	if _, err := s.store.Insert(ctx, op); err != nil {
		s.logger.Error().Err(err).Str("method", method).Str("endpoint", endpoint).Msg("failed to queue operation")
		return nil, err
	}

	metrics.IncEnqueued()
	s.bus.Notify()

	// Уведомление для пользователя: операция сохранена офлайн
	s.logger.Info().
		Str("op_id", op.ID).
		Str("method", method).
		Str("endpoint", endpoint).
		Msg("saved offline, will sync later")

	return op, nil
}

func (s *QueueService) ProcessPendingOperations(ctx context.Context) (models.PassSummary, error) {
	return s.replayer.ProcessPendingOperations(ctx)
}

// GetPendingCount counts records waiting for replay. Failed records are not
// included.
func (s *QueueService) GetPendingCount(ctx context.Context) (int, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return 0, err
	}
	return stats.Pending, nil
}

func (s *QueueService) IsSyncing() bool {
	return s.replayer.IsSyncing()
}

// ClearFailedOperations deletes every failed record and reports how many
// were removed. Zero is a valid outcome.
func (s *QueueService) ClearFailedOperations(ctx context.Context) (int, error) {
	ops, err := s.store.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for i := range ops {
		if ops[i].Status != models.StatusFailed {
			continue
		}
		if err := s.store.Delete(ctx, ops[i].ID); err != nil {
			s.logger.Error().Err(err).Str("op_id", ops[i].ID).Msg("failed to delete failed operation")
			if removed > 0 {
				s.bus.Notify()
			}
			return removed, err
		}
		removed++
	}

	metrics.AddCleared(removed)
	s.bus.Notify()
	if removed > 0 {
		s.logger.Info().Int("count", removed).Msg("cleared failed operations")
	}
	return removed, nil
}

func (s *QueueService) ListOperations(ctx context.Context) ([]models.PendingOperation, error) {
	return s.store.ListAll(ctx)
}

func (s *QueueService) Stats(ctx context.Context) (models.QueueStats, error) {
	ops, err := s.store.ListAll(ctx)
	if err != nil {
		return models.QueueStats{}, err
	}
	return models.CountByStatus(ops), nil
}

func (s *QueueService) Subscribe(callback func()) func() {
	return s.bus.Subscribe(callback)
}

func copyHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = v
	}
	return out
}
