package domain

import (
	"context"
	"errors"

	"offlinesync/internal/models"
)

// ErrStorage marks failures of the durable medium itself.
var ErrStorage = errors.New("storage unavailable")

// OperationStore is the durable record store behind the queue.
// ListAll must return records in insertion order.
type OperationStore interface {
	Insert(ctx context.Context, op *models.PendingOperation) (string, error)
	ListAll(ctx context.Context) ([]models.PendingOperation, error)
	UpdateStatus(ctx context.Context, id string, update models.StatusUpdate) error
	Delete(ctx context.Context, id string) error
}

// Sender delivers one recorded operation to the remote API.
// A nil error means the remote answered with a 2xx status.
type Sender interface {
	Send(ctx context.Context, op *models.PendingOperation) error
}

// Notifier fans a payload-free change signal out to subscribers.
type Notifier interface {
	Notify()
}

// EventBus is a Notifier that also accepts subscribers.
type EventBus interface {
	Notifier
	Subscribe(callback func()) func()
}

type Replayer interface {
	ProcessPendingOperations(ctx context.Context) (models.PassSummary, error)
	IsSyncing() bool
}

type QueueService interface {
	QueueOperation(ctx context.Context, req models.EnqueueRequest) (*models.PendingOperation, error)
	ProcessPendingOperations(ctx context.Context) (models.PassSummary, error)
	GetPendingCount(ctx context.Context) (int, error)
	IsSyncing() bool
	ClearFailedOperations(ctx context.Context) (int, error)
	ListOperations(ctx context.Context) ([]models.PendingOperation, error)
	Stats(ctx context.Context) (models.QueueStats, error)
	Subscribe(callback func()) func()
}
