package repository

import (
	"context"
	"fmt"
	"sync"

	"offlinesync/internal/domain"
	"offlinesync/internal/models"
)

// MemoryOperationStore keeps operations in process memory. Nothing survives
// a restart, so it is meant for tests and throwaway runs.
type MemoryOperationStore struct {
	mu    sync.RWMutex
	order []string
	ops   map[string]models.PendingOperation
}

func NewMemoryOperationStore() *MemoryOperationStore {
	return &MemoryOperationStore{
		ops: make(map[string]models.PendingOperation),
	}
}

func (r *MemoryOperationStore) Insert(ctx context.Context, op *models.PendingOperation) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ops[op.ID]; exists {
		return "", fmt.Errorf("operation %s already exists: %w", op.ID, domain.ErrStorage)
	}
	r.ops[op.ID] = cloneOperation(*op)
	r.order = append(r.order, op.ID)
	return op.ID, nil
}

func (r *MemoryOperationStore) ListAll(ctx context.Context) ([]models.PendingOperation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.PendingOperation, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, cloneOperation(r.ops[id]))
	}
	return out, nil
}

func (r *MemoryOperationStore) UpdateStatus(ctx context.Context, id string, update models.StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	op, ok := r.ops[id]
	if !ok {
		return nil
	}
	update.Apply(&op)
	r.ops[id] = op
	return nil
}

func (r *MemoryOperationStore) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ops[id]; !ok {
		return nil
	}
	delete(r.ops, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func cloneOperation(op models.PendingOperation) models.PendingOperation {
	if op.Headers != nil {
		headers := make(map[string]string, len(op.Headers))
		for k, v := range op.Headers {
			headers[k] = v
		}
		op.Headers = headers
	}
	if op.Data != nil {
		op.Data = append([]byte(nil), op.Data...)
	}
	return op
}

var _ domain.OperationStore = (*MemoryOperationStore)(nil)
