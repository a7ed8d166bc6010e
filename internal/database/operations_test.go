package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"offlinesync/internal/domain"
	"offlinesync/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "queue.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newOperation(endpoint string) *models.PendingOperation {
	return &models.PendingOperation{
		ID:        uuid.NewString(),
		Endpoint:  endpoint,
		Method:    models.MethodPut,
		Headers:   map[string]string{"Authorization": "Bearer token"},
		Data:      json.RawMessage(`{"title":"X"}`),
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
		Status:    models.StatusPending,
	}
}

func TestNewDB_DirectoryCreation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "queue.db")
	logger := zerolog.Nop()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
	assert.Equal(t, dbPath, db.Path())
	assert.NoError(t, db.PingContext(context.Background()))
}

func TestOperationsCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	op := newOperation("/events/42")

	// Insert
	id, err := db.Insert(ctx, op)
	require.NoError(t, err)
	assert.Equal(t, op.ID, id)

	// List
	ops, err := db.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	got := ops[0]
	assert.Equal(t, op.ID, got.ID)
	assert.Equal(t, "/events/42", got.Endpoint)
	assert.Equal(t, models.MethodPut, got.Method)
	assert.Equal(t, "Bearer token", got.Headers["Authorization"])
	assert.JSONEq(t, `{"title":"X"}`, string(got.Data))
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, 0, got.Retries)
	assert.True(t, op.Timestamp.Equal(got.Timestamp))

	// Partial update: status only
	require.NoError(t, db.UpdateStatus(ctx, id, models.StatusUpdate{Status: models.StatusSyncing}))
	stored, err := db.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSyncing, stored.Status)
	assert.Equal(t, 0, stored.Retries)

	// Partial update: retries and error
	retries, msg := 1, "http 500"
	require.NoError(t, db.UpdateStatus(ctx, id, models.StatusUpdate{Status: models.StatusPending, Retries: &retries, LastError: &msg}))
	stored, err = db.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Equal(t, 1, stored.Retries)
	assert.Equal(t, "http 500", stored.LastError)

	// Delete is idempotent
	require.NoError(t, db.Delete(ctx, id))
	require.NoError(t, db.Delete(ctx, id))
	_, err = db.Get(ctx, id)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestUpdateStatusUnknownID(t *testing.T) {
	db := setupTestDB(t)
	err := db.UpdateStatus(context.Background(), "missing", models.StatusUpdate{Status: models.StatusFailed})
	assert.NoError(t, err)
}

func TestListAllPreservesInsertionOrder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	endpoints := []string{"/a", "/b", "/c", "/d"}
	for _, e := range endpoints {
		_, err := db.Insert(ctx, newOperation(e))
		require.NoError(t, err)
	}

	ops, err := db.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, ops, len(endpoints))
	for i, e := range endpoints {
		assert.Equal(t, e, ops[i].Endpoint)
	}
}

func TestInsertWithoutBodyOrHeaders(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	op := newOperation("/events/7")
	op.Method = models.MethodDelete
	op.Data = nil
	op.Headers = nil

	_, err := db.Insert(ctx, op)
	require.NoError(t, err)

	stored, err := db.Get(ctx, op.ID)
	require.NoError(t, err)
	assert.False(t, stored.HasBody())
	assert.Empty(t, stored.Headers)
}

func TestDuplicateIDRejected(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	op := newOperation("/dup")
	_, err := db.Insert(ctx, op)
	require.NoError(t, err)

	_, err = db.Insert(ctx, op)
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestDB_ErrorPaths(t *testing.T) {
	logger := zerolog.Nop()
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	db.Close() // Close the DB to trigger errors

	ctx := context.Background()

	t.Run("Insert_Error", func(t *testing.T) {
		_, err := db.Insert(ctx, newOperation("/x"))
		assert.ErrorIs(t, err, domain.ErrStorage)
	})

	t.Run("ListAll_Error", func(t *testing.T) {
		_, err := db.ListAll(ctx)
		assert.ErrorIs(t, err, domain.ErrStorage)
	})

	t.Run("UpdateStatus_Error", func(t *testing.T) {
		err := db.UpdateStatus(ctx, "x", models.StatusUpdate{Status: models.StatusPending})
		assert.ErrorIs(t, err, domain.ErrStorage)
	})

	t.Run("Delete_Error", func(t *testing.T) {
		err := db.Delete(ctx, "x")
		assert.ErrorIs(t, err, domain.ErrStorage)
	})
}
