package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"offlinesync/internal/domain"
	"offlinesync/internal/models"
)

const operationColumns = `id, endpoint, method, headers, data, created_at, retries, status, last_error`

// Insert persists a new operation and returns its id.
func (db *DB) Insert(ctx context.Context, op *models.PendingOperation) (string, error) {
	headers, err := encodeHeaders(op.Headers)
	if err != nil {
		return "", fmt.Errorf("encode headers: %w", err)
	}

	var data []byte
	if op.HasBody() {
		data = op.Data
	}

	query := `INSERT INTO pending_operations (id, endpoint, method, headers, data, created_at, retries, status, last_error, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = db.ExecContext(ctx, query,
		op.ID,
		op.Endpoint,
		op.Method,
		headers,
		data,
		op.Timestamp,
		op.Retries,
		string(op.Status),
		op.LastError,
		time.Now(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert operation %s: %w: %w", op.ID, domain.ErrStorage, err)
	}

	return op.ID, nil
}

// ListAll returns every stored operation in insertion order.
func (db *DB) ListAll(ctx context.Context) ([]models.PendingOperation, error) {
	query := `SELECT ` + operationColumns + ` FROM pending_operations ORDER BY seq ASC`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w: %w", domain.ErrStorage, err)
	}
	defer rows.Close()

	var ops []models.PendingOperation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate operations: %w: %w", domain.ErrStorage, err)
	}
	return ops, nil
}

// UpdateStatus applies a partial update. Unknown ids are ignored.
func (db *DB) UpdateStatus(ctx context.Context, id string, update models.StatusUpdate) error {
	sets := []string{"status = ?", "updated_at = ?"}
	args := []interface{}{string(update.Status), time.Now()}

	if update.Retries != nil {
		sets = append(sets, "retries = ?")
		args = append(args, *update.Retries)
	}
	if update.LastError != nil {
		sets = append(sets, "last_error = ?")
		args = append(args, *update.LastError)
	}
	args = append(args, id)

	query := `UPDATE pending_operations SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update operation %s: %w: %w", id, domain.ErrStorage, err)
	}
	return nil
}

// Delete removes an operation. Missing ids are not an error.
func (db *DB) Delete(ctx context.Context, id string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM pending_operations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete operation %s: %w: %w", id, domain.ErrStorage, err)
	}
	return nil
}

// Get returns a single operation by id; a missing id yields sql.ErrNoRows.
func (db *DB) Get(ctx context.Context, id string) (*models.PendingOperation, error) {
	query := `SELECT ` + operationColumns + ` FROM pending_operations WHERE id = ?`
	op, err := scanOperation(db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return &op, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOperation(row rowScanner) (models.PendingOperation, error) {
	var (
		op      models.PendingOperation
		headers string
		data    []byte
		status  string
	)
	err := row.Scan(&op.ID, &op.Endpoint, &op.Method, &headers, &data, &op.Timestamp, &op.Retries, &status, &op.LastError)
	if err != nil {
		return op, err
	}
	op.Status = models.OperationStatus(status)
	if len(data) > 0 {
		op.Data = json.RawMessage(data)
	}
	if headers != "" && headers != "{}" {
		if err := json.Unmarshal([]byte(headers), &op.Headers); err != nil {
			return op, fmt.Errorf("decode headers: %w", err)
		}
	}
	return op, nil
}

func encodeHeaders(headers map[string]string) (string, error) {
	if len(headers) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(headers)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

var _ domain.OperationStore = (*DB)(nil)
