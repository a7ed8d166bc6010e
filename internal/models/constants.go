package models

import "time"

// OperationStatus is the lifecycle state of a queued operation.
// There is no success status: a confirmed operation is deleted.
type OperationStatus string

const (
	StatusPending OperationStatus = "pending"
	StatusSyncing OperationStatus = "syncing"
	StatusFailed  OperationStatus = "failed"
)

const (
	MethodPost   = "POST"
	MethodPut    = "PUT"
	MethodPatch  = "PATCH"
	MethodDelete = "DELETE"
)

const (
	// MaxRetries количество попыток до перевода операции в failed
	MaxRetries = 3

	// DefaultRefreshInterval период обновления статуса очереди
	DefaultRefreshInterval = 30 * time.Second

	// DefaultProbeInterval период проверки доступности удаленного API
	DefaultProbeInterval = 10 * time.Second

	// DefaultRemoteTimeout таймаут одного запроса при воспроизведении
	DefaultRemoteTimeout = 15 * time.Second

	// DefaultRedisKeyPrefix префикс ключей очереди в Redis
	DefaultRedisKeyPrefix = "offline_queue"
)

// Valid reports whether s is one of the known statuses.
func (s OperationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSyncing, StatusFailed:
		return true
	}
	return false
}

// IsQueueableMethod reports whether method may be recorded for replay.
// Reads are never queued.
func IsQueueableMethod(method string) bool {
	switch method {
	case MethodPost, MethodPut, MethodPatch, MethodDelete:
		return true
	}
	return false
}
