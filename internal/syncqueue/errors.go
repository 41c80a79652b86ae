package syncqueue

import (
	"context"
	"errors"

	"github.com/bissquit/inspection-sync/internal/remote"
)

var (
	ErrMaxAttemptsExceeded = errors.New("max attempts exceeded")
	ErrNoInspection        = errors.New("queue item has no inspection data")
)

// ErrorKind classifies why an item could not be submitted.
type ErrorKind string

const (
	KindConnectivity ErrorKind = "connectivity"
	KindTransport    ErrorKind = "transport"
	KindPayload      ErrorKind = "payload"
	KindCapacity     ErrorKind = "capacity"
	KindConcurrency  ErrorKind = "concurrency"
	KindUnknown      ErrorKind = "unknown"
)

// Classify maps err onto the sync error taxonomy.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMaxAttemptsExceeded):
		return KindCapacity
	case errors.Is(err, ErrNoInspection):
		return KindPayload
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindConnectivity
	}

	switch remote.KindOf(err) {
	case remote.KindConnectivity:
		return KindConnectivity
	case remote.KindTransport:
		return KindTransport
	case remote.KindPayload:
		return KindPayload
	}
	return KindUnknown
}

// DeferReason explains why an item was skipped in a pass without an attempt.
type DeferReason string

const (
	DeferInFlight      DeferReason = "in_flight"
	DeferCooldown      DeferReason = "cooldown"
	DeferAttemptActive DeferReason = "attempt_active"
	DeferClaimed       DeferReason = "claimed"
	DeferLockError     DeferReason = "lock_error"
)
