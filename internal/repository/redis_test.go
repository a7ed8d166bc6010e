package repository

import (
	"context"
	"testing"

	"offlinesync/internal/config"
	"offlinesync/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisOperationStore(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	defer client.Close()

	store := NewRedisOperationStore(client, "test_queue")
	ctx := context.Background()

	storeContract(t, store)

	t.Run("DuplicateID", func(t *testing.T) {
		_, err := store.Insert(ctx, testOperation("a", "/a"))
		assert.ErrorIs(t, err, domain.ErrStorage)
	})

	t.Run("KeysUsePrefix", func(t *testing.T) {
		assert.True(t, s.Exists("test_queue:op:a"))
		assert.True(t, s.Exists("test_queue:order"))
	})

	t.Run("DanglingOrderEntrySkipped", func(t *testing.T) {
		s.Del("test_queue:op:c")

		ops, err := store.ListAll(ctx)
		require.NoError(t, err)
		for _, op := range ops {
			assert.NotEqual(t, "c", op.ID)
		}
		list, err := s.List("test_queue:order")
		require.NoError(t, err)
		assert.NotContains(t, list, "c")
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, Ping(ctx, client))
	})
}

func TestRedisOperationStore_NilClient(t *testing.T) {
	store := NewRedisOperationStore(nil, "")
	ctx := context.Background()

	_, err := store.Insert(ctx, testOperation("x", "/x"))
	assert.ErrorIs(t, err, domain.ErrStorage)

	_, err = store.ListAll(ctx)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis client is nil")

	assert.Error(t, store.UpdateStatus(ctx, "x", testStatusUpdate()))
	assert.Error(t, store.Delete(ctx, "x"))
	assert.NoError(t, Close(nil))
}

func TestRedisOperationStore_ServerDown(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)

	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	defer client.Close()
	store := NewRedisOperationStore(client, "")

	s.Close()

	_, err = store.ListAll(context.Background())
	assert.ErrorIs(t, err, domain.ErrStorage)
}
