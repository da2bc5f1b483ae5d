// Package queue holds the errors shared by WorkQueue backends. The backends
// live in subpackages: memory, redis and pubsub.
package queue

import "errors"

var (
	// ErrUnknownClaim is returned when acknowledging a token the queue does
	// not recognize, usually because its visibility timeout already lapsed.
	ErrUnknownClaim = errors.New("unknown claim token")
	// ErrClosed is returned by operations on a closed queue.
	ErrClosed = errors.New("queue closed")
)
