package models

import (
	"encoding/json"
	"time"
)

// PendingOperation is a durably recorded write that has not yet been
// confirmed by the remote API.
type PendingOperation struct {
	ID        string            `json:"id"`
	Endpoint  string            `json:"endpoint"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	Data      json.RawMessage   `json:"data,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Retries   int               `json:"retries"`
	Status    OperationStatus   `json:"status"`
	LastError string            `json:"last_error,omitempty"`
}

// HasBody reports whether the operation carries a payload to send.
func (op *PendingOperation) HasBody() bool {
	return len(op.Data) > 0 && string(op.Data) != "null"
}

// Eligible reports whether automatic replay may pick the operation up.
func (op *PendingOperation) Eligible(maxRetries int) bool {
	return op.Status == StatusPending && op.Retries < maxRetries
}

// StatusUpdate is a partial update applied by the replay engine.
// Nil fields are left untouched.
type StatusUpdate struct {
	Status    OperationStatus
	Retries   *int
	LastError *string
}

// Apply copies the update onto op.
func (u StatusUpdate) Apply(op *PendingOperation) {
	op.Status = u.Status
	if u.Retries != nil {
		op.Retries = *u.Retries
	}
	if u.LastError != nil {
		op.LastError = *u.LastError
	}
}

// QueueStats holds per-status record counts.
type QueueStats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Syncing int `json:"syncing"`
	Failed  int `json:"failed"`
}

// CountByStatus builds QueueStats from a store listing.
func CountByStatus(ops []PendingOperation) QueueStats {
	stats := QueueStats{Total: len(ops)}
	for i := range ops {
		switch ops[i].Status {
		case StatusPending:
			stats.Pending++
		case StatusSyncing:
			stats.Syncing++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats
}

// EnqueueRequest carries everything needed to replay a write later.
type EnqueueRequest struct {
	Endpoint string            `json:"endpoint"`
	Method   string            `json:"method"`
	Headers  map[string]string `json:"headers,omitempty"`
	Data     json.RawMessage   `json:"data,omitempty"`
}

// PassSummary is the aggregate outcome of one replay pass.
type PassSummary struct {
	Attempted int  `json:"attempted"`
	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`
	Terminal  int  `json:"terminal"`
	Skipped   bool `json:"skipped,omitempty"`
}
