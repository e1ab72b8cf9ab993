package relay

import "errors"

var (
	// ErrSend marks a failed delivery to the peer platform. The message is dropped.
	ErrSend = errors.New("relay send failed")

	// ErrRetryable is wrapped by adapters around failures that are known not to
	// have delivered anything (rate limits, gateway unavailability). The
	// pipeline retries such sends once.
	ErrRetryable = errors.New("retryable send failure")

	// ErrQueueFull is returned when the dispatcher is closed.
	ErrQueueFull = errors.New("relay queue is closed")

	// ErrQueueDropped is reported when a queued event is evicted to make room.
	ErrQueueDropped = errors.New("event dropped from relay queue")
)
