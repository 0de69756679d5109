package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports a remote 404: the record vanished upstream.
	ErrNotFound = errors.New("record not found on server")

	// ErrNotSynced reports an update attempted before the record's initial
	// create has been acknowledged.
	ErrNotSynced = errors.New("record has no server id")
)

// TransportError covers no-route and timeout failures. Always recoverable:
// the operation is deferred to the queue.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RejectedError is a 4xx response carrying a server message. Retrying would
// fail identically, so rejections are surfaced and never queued.
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("server rejected request (%d): %s", e.StatusCode, e.Message)
}

// IsRecoverable reports whether an error should defer the operation to the
// pending queue rather than surface to the caller.
func IsRecoverable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var re *RejectedError
	if errors.As(err, &re) {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotSynced) {
		return false
	}
	// Unclassified failures (5xx and friends) are treated as transient.
	return true
}
