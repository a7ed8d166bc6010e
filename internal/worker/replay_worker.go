package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"offlinesync/internal/domain"
	"offlinesync/internal/logging"
	"offlinesync/internal/metrics"
	"offlinesync/internal/models"

	"github.com/rs/zerolog"
)

// SummaryHandler receives the aggregate outcome of a finished pass.
type SummaryHandler func(models.PassSummary)

// ReplayWorker drains eligible pending operations to the remote API, one at
// a time and in store order. At most one pass runs at any moment.
type ReplayWorker struct {
	store       domain.OperationStore
	sender      domain.Sender
	notifier    domain.Notifier
	retryPolicy RetryPolicy
	logger      *zerolog.Logger

	// inFlight guards single-flight; syncing is the externally visible state
	// and is only set once a pass has something to send.
	inFlight atomic.Bool
	syncing  atomic.Bool

	handlersMu sync.RWMutex
	handlers   []SummaryHandler
}

// NewReplayWorker builds a worker with sane defaults.
func NewReplayWorker(store domain.OperationStore, sender domain.Sender, notifier domain.Notifier, retry RetryPolicy, logger *zerolog.Logger) *ReplayWorker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ReplayWorker{
		store:       store,
		sender:      sender,
		notifier:    notifier,
		retryPolicy: retry.normalized(),
		logger:      logger,
	}
}

// OnSummary registers a handler called after every pass that processed at
// least one operation.
func (w *ReplayWorker) OnSummary(handler SummaryHandler) {
	if handler == nil {
		return
	}
	w.handlersMu.Lock()
	defer w.handlersMu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// IsSyncing reports whether a pass is sending operations. A pass that finds
// nothing eligible never shows up here.
func (w *ReplayWorker) IsSyncing() bool {
	return w.syncing.Load()
}

// RetryPolicy returns the policy the worker applies.
func (w *ReplayWorker) RetryPolicy() RetryPolicy {
	return w.retryPolicy
}

// ProcessPendingOperations runs one replay pass. A call made while another
// pass is running returns immediately with Skipped set.
//
// A store error while loading the queue aborts the pass. Store errors on
// individual operations do not: the pass continues and they are returned
// joined, together with the summary, once it completes.
func (w *ReplayWorker) ProcessPendingOperations(ctx context.Context) (models.PassSummary, error) {
	if !w.inFlight.CompareAndSwap(false, true) {
		w.logger.Debug().Msg("replay pass already running, skipping")
		return models.PassSummary{Skipped: true}, nil
	}
	released := false
	release := func() {
		if !released {
			released = true
			w.inFlight.Store(false)
		}
	}
	defer release()

	// A pass always runs to completion so nothing is left in syncing.
	ctx = context.WithoutCancel(ctx)

	all, err := w.store.ListAll(ctx)
	if err != nil {
		return models.PassSummary{}, fmt.Errorf("load pending operations: %w", err)
	}

	eligible := make([]models.PendingOperation, 0, len(all))
	for i := range all {
		if all[i].Eligible(w.retryPolicy.MaxRetries) {
			eligible = append(eligible, all[i])
		}
	}
	if len(eligible) == 0 {
		return models.PassSummary{}, nil
	}

	w.syncing.Store(true)
	metrics.SetInFlight(true)
	w.notify()
	w.logger.Info().Int("eligible", len(eligible)).Msg("replay pass started")

	var (
		summary  models.PassSummary
		errs     []error
		stranded []string
	)
	for i := range eligible {
		stuck, err := w.processOperation(ctx, &eligible[i], &summary)
		if err != nil {
			errs = append(errs, err)
		}
		if stuck {
			stranded = append(stranded, eligible[i].ID)
		}
	}
	errs = append(errs, w.releaseStranded(ctx, stranded)...)

	w.syncing.Store(false)
	release()
	metrics.SetInFlight(false)
	metrics.IncPass()
	w.notify()
	w.report(summary)

	passErr := errors.Join(errs...)
	if passErr != nil {
		w.logger.Error().Err(passErr).Int("errors", len(errs)).Msg("replay pass had store errors")
	}
	return summary, passErr
}

// processOperation attempts one operation. stuck is set when the operation
// may still be marked syncing because every attempt to move it out failed.
func (w *ReplayWorker) processOperation(ctx context.Context, op *models.PendingOperation, summary *models.PassSummary) (stuck bool, err error) {
	summary.Attempted++
	log := logging.Operation(w.logger, op)

	if err := w.store.UpdateStatus(ctx, op.ID, models.StatusUpdate{Status: models.StatusSyncing}); err != nil {
		// Nothing was sent; the record keeps its previous status.
		log.Error().Err(err).Msg("mark syncing")
		summary.Failed++
		return false, fmt.Errorf("mark operation %s syncing: %w", op.ID, err)
	}

	sendErr := w.sender.Send(ctx, op)
	if sendErr == nil {
		summary.Succeeded++
		metrics.IncAttempt(metrics.ResultSuccess)

		if err := w.store.Delete(ctx, op.ID); err != nil {
			// Delivered but still stored: back to pending, it will be sent again.
			log.Error().Err(err).Msg("delete delivered operation")
			err = fmt.Errorf("delete delivered operation %s: %w", op.ID, err)
			if resetErr := w.resetPending(ctx, op.ID); resetErr != nil {
				return true, errors.Join(err, resetErr)
			}
			return false, err
		}
		log.Debug().Msg("operation delivered")
		return false, nil
	}

	return w.retryOrFail(ctx, op, sendErr, summary, &log)
}

func (w *ReplayWorker) retryOrFail(ctx context.Context, op *models.PendingOperation, cause error, summary *models.PassSummary, log *zerolog.Logger) (bool, error) {
	retries := op.Retries + 1
	status := w.retryPolicy.NextStatus(retries)
	msg := cause.Error()
	summary.Failed++

	if err := w.store.UpdateStatus(ctx, op.ID, models.StatusUpdate{Status: status, Retries: &retries, LastError: &msg}); err != nil {
		// The attempt is not counted; the operation stays eligible.
		log.Error().Err(err).Msg("record failed attempt")
		metrics.IncAttempt(metrics.ResultRetry)
		err = fmt.Errorf("record failed attempt for %s: %w", op.ID, err)
		if resetErr := w.resetPending(ctx, op.ID); resetErr != nil {
			return true, errors.Join(err, resetErr)
		}
		return false, err
	}

	if status == models.StatusFailed {
		summary.Terminal++
		metrics.IncAttempt(metrics.ResultFailed)
		log.Warn().Err(cause).Int("attempt", retries).Msg("operation failed permanently")
		return false, nil
	}
	metrics.IncAttempt(metrics.ResultRetry)
	log.Debug().Err(cause).Int("attempt", retries).Int("max_retries", w.retryPolicy.MaxRetries).Msg("operation failed, will retry next pass")
	return false, nil
}

func (w *ReplayWorker) resetPending(ctx context.Context, id string) error {
	if err := w.store.UpdateStatus(ctx, id, models.StatusUpdate{Status: models.StatusPending}); err != nil {
		return fmt.Errorf("reset operation %s to pending: %w", id, err)
	}
	return nil
}

// releaseStranded makes a last attempt at the end of the pass to move
// operations out of syncing.
func (w *ReplayWorker) releaseStranded(ctx context.Context, ids []string) []error {
	var errs []error
	for _, id := range ids {
		if err := w.resetPending(ctx, id); err != nil {
			w.logger.Error().Err(err).Str("op_id", id).Msg("operation left in syncing until recovery")
			errs = append(errs, err)
		}
	}
	return errs
}

// RecoverStuck resets operations left in syncing by an interrupted process
// back to pending. Retry counts are left unchanged. It must run before the
// first pass.
func (w *ReplayWorker) RecoverStuck(ctx context.Context) (int, error) {
	if w.inFlight.Load() {
		return 0, nil
	}
	all, err := w.store.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load operations: %w", err)
	}

	recovered := 0
	for i := range all {
		if all[i].Status != models.StatusSyncing {
			continue
		}
		status := w.retryPolicy.NextStatus(all[i].Retries)
		if err := w.store.UpdateStatus(ctx, all[i].ID, models.StatusUpdate{Status: status}); err != nil {
			return recovered, fmt.Errorf("reset operation %s: %w", all[i].ID, err)
		}
		recovered++
	}

	if recovered > 0 {
		w.logger.Warn().Int("count", recovered).Msg("recovered operations stuck in syncing")
		w.notify()
	}
	return recovered, nil
}

func (w *ReplayWorker) notify() {
	if w.notifier != nil {
		w.notifier.Notify()
	}
}

func (w *ReplayWorker) report(summary models.PassSummary) {
	w.logger.Info().
		Int("attempted", summary.Attempted).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("terminal", summary.Terminal).
		Msg("replay pass finished")

	w.handlersMu.RLock()
	handlers := append([]SummaryHandler(nil), w.handlers...)
	w.handlersMu.RUnlock()

	for _, h := range handlers {
		h(summary)
	}
}
