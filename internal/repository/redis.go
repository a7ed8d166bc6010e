package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"offlinesync/internal/config"
	"offlinesync/internal/domain"
	"offlinesync/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisOperationStore keeps each operation as a JSON value and the
// insertion order in a list. Durability follows the server's persistence
// settings (AOF or RDB).
type RedisOperationStore struct {
	client *redis.Client
	prefix string
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisOperationStore(client *redis.Client, prefix string) *RedisOperationStore {
	if prefix == "" {
		prefix = models.DefaultRedisKeyPrefix
	}
	return &RedisOperationStore{
		client: client,
		prefix: prefix,
	}
}

func (r *RedisOperationStore) opKey(id string) string {
	return fmt.Sprintf("%s:op:%s", r.prefix, id)
}

func (r *RedisOperationStore) orderKey() string {
	return r.prefix + ":order"
}

func (r *RedisOperationStore) Insert(ctx context.Context, op *models.PendingOperation) (string, error) {
	if r.client == nil {
		return "", fmt.Errorf("redis client is nil: %w", domain.ErrStorage)
	}
	data, err := json.Marshal(op)
	if err != nil {
		return "", fmt.Errorf("failed to marshal operation: %w", err)
	}

	created, err := r.client.SetNX(ctx, r.opKey(op.ID), data, 0).Result()
	if err != nil {
		return "", fmt.Errorf("failed to store operation in redis: %w: %w", domain.ErrStorage, err)
	}
	if !created {
		return "", fmt.Errorf("operation %s already exists: %w", op.ID, domain.ErrStorage)
	}
	if err := r.client.RPush(ctx, r.orderKey(), op.ID).Err(); err != nil {
		r.client.Del(ctx, r.opKey(op.ID))
		return "", fmt.Errorf("failed to append operation order: %w: %w", domain.ErrStorage, err)
	}
	return op.ID, nil
}

func (r *RedisOperationStore) ListAll(ctx context.Context) ([]models.PendingOperation, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil: %w", domain.ErrStorage)
	}
	ids, err := r.client.LRange(ctx, r.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read operation order: %w: %w", domain.ErrStorage, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.opKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load operations: %w: %w", domain.ErrStorage, err)
	}

	ops := make([]models.PendingOperation, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// order entry without a value: left behind by an interrupted delete
			r.client.LRem(ctx, r.orderKey(), 0, ids[i])
			continue
		}
		var op models.PendingOperation
		if err := json.Unmarshal([]byte(raw), &op); err != nil {
			return nil, fmt.Errorf("failed to unmarshal operation %s: %w", ids[i], err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (r *RedisOperationStore) UpdateStatus(ctx context.Context, id string, update models.StatusUpdate) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil: %w", domain.ErrStorage)
	}
	key := r.opKey(id)

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		var op models.PendingOperation
		if err := json.Unmarshal([]byte(raw), &op); err != nil {
			return fmt.Errorf("failed to unmarshal operation %s: %w", id, err)
		}
		update.Apply(&op)

		data, err := json.Marshal(op)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("failed to update operation %s: %w: %w", id, domain.ErrStorage, err)
	}
	return nil
}

func (r *RedisOperationStore) Delete(ctx context.Context, id string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil: %w", domain.ErrStorage)
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.opKey(id))
		pipe.LRem(ctx, r.orderKey(), 0, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete operation %s: %w: %w", id, domain.ErrStorage, err)
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}

var _ domain.OperationStore = (*RedisOperationStore)(nil)
