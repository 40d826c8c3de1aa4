package dedup

import (
	"context"
	"errors"
)

// Status reports the outcome of an insert-if-absent attempt.
type Status int

const (
	// Inserted means the key was not present and is now recorded.
	Inserted Status = iota
	// AlreadyExists means the key was recorded by an earlier request.
	AlreadyExists
)

var ErrStoreUnavailable = errors.New("dedup store unavailable")

// Store records call IDs that have been accepted, so retried webhook
// deliveries are detected across restarts. InsertIfAbsent must be atomic:
// for concurrent calls with the same key exactly one caller observes
// Inserted.
type Store interface {
	InsertIfAbsent(ctx context.Context, key string) (Status, error)
	// Delete removes a key. Used to compensate when a call was recorded
	// but could not be enqueued, so the sender's retry is not swallowed
	// as a duplicate.
	Delete(ctx context.Context, key string) error
	Count(ctx context.Context) (int64, error)
	Close()
}
