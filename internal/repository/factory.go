package repository

import (
	"context"
	"fmt"
	"io"

	"offlinesync/internal/config"
	"offlinesync/internal/database"
	"offlinesync/internal/domain"

	"github.com/rs/zerolog"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenStore builds the operation store selected by cfg.Storage.Backend.
// For sqlite the returned *database.DB is also available for backups.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (domain.OperationStore, io.Closer, error) {
	switch cfg.Storage.Backend {
	case config.StorageSQLite, "":
		db, err := database.NewDB(cfg.Storage.SQLitePath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return db, db, nil
	case config.StorageRedis:
		client := NewRedisClient(cfg.Redis)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis %s: %w: %w", cfg.Redis.Address, domain.ErrStorage, err)
		}
		return NewRedisOperationStore(client, cfg.Redis.KeyPrefix), client, nil
	case config.StorageMemory:
		return NewMemoryOperationStore(), nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
