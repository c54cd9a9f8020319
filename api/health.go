// Package api defines public API contracts for plugin-ctc.
package api

// Health reports whether a transport can be used.
type Health interface {
	// Calibrated fails when the region or its line size could not be resolved.
	Calibrated() error
	// Idle fails while a transfer holds the region.
	Idle() error
}
