// Package api defines public API contracts for plugin-ctc.
package api

import (
	"context"

	"github.com/srediag/plugin-ctc/pkg/frame"
)

// Transport is one end of a covert transfer.
type Transport interface {
	// Transmit sends data as one framed transfer.
	Transmit(ctx context.Context, data []byte) (frame.Stats, error)
	// Receive blocks until one framed transfer completes and copies it into dst.
	Receive(ctx context.Context, dst []byte) (frame.Stats, error)
}
