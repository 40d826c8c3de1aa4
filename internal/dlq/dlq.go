// Package dlq persists calls that could not be delivered to the sheet
// bridge, so no billable call row is silently lost.
package dlq

import (
	"context"
	"time"

	"github.com/callrelay-systems/callrelay/internal/models"
)

// FailedCall is the envelope stored for every dead-lettered call.
type FailedCall struct {
	Timestamp time.Time    `json:"timestamp"`
	Call      *models.Call `json:"call"`
	Error     string       `json:"error"`
	Reason    string       `json:"reason"`
	Attempts  int          `json:"attempts"`
}

// Reasons used as DLQ subject suffixes.
const (
	ReasonRejected       = "rejected"
	ReasonRetryExhausted = "retry_exhausted"
)

// Writer records calls that the pipeline gave up on.
type Writer interface {
	Write(ctx context.Context, call *models.Call, cause error, reason string) error
}

// NoopWriter discards dead letters. Used when the DLQ is disabled.
type NoopWriter struct{}

func (NoopWriter) Write(context.Context, *models.Call, error, string) error { return nil }
