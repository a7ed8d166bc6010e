package worker

import "offlinesync/internal/models"

// RetryPolicy bounds how many failed attempts an operation gets before it
// is parked as failed. There is no delay between attempts: a failed
// operation waits for the next pass.
type RetryPolicy struct {
	MaxRetries int
}

// DefaultRetryPolicy returns the queue-wide policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: models.MaxRetries}
}

func (r RetryPolicy) normalized() RetryPolicy {
	if r.MaxRetries <= 0 {
		r.MaxRetries = models.MaxRetries
	}
	return r
}

// Exhausted reports whether an operation with the given retry count may not
// be attempted again.
func (r RetryPolicy) Exhausted(retries int) bool {
	return retries >= r.normalized().MaxRetries
}

// NextStatus is the status an operation takes after its retries-th failure.
func (r RetryPolicy) NextStatus(retries int) models.OperationStatus {
	if r.Exhausted(retries) {
		return models.StatusFailed
	}
	return models.StatusPending
}
