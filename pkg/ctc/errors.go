package ctc

import "errors"

var (
	// ErrBusy is returned when a transfer is already running on the channel.
	// Concurrent transfers over one region corrupt each other.
	ErrBusy = errors.New("ctc: transfer already in progress")
	// ErrPayloadTooLarge is returned when the padded buffer needs more blocks
	// than the 16-bit index can address.
	ErrPayloadTooLarge = errors.New("ctc: payload exceeds 65536 words")
	// ErrTimeout is returned when the context deadline expires mid-transfer.
	ErrTimeout = errors.New("ctc: transfer timed out")
	// ErrCanceled is returned when the context is canceled mid-transfer.
	ErrCanceled = errors.New("ctc: transfer canceled")
	// ErrIncomplete is returned by ReceiveWithRetry when no attempt
	// delivered every block.
	ErrIncomplete = errors.New("ctc: transfer incomplete")
	// ErrInvalidConfig is returned by VerifyConfig.
	ErrInvalidConfig = errors.New("ctc: invalid config")
)
