// Package ctc transfers byte buffers between two processes through the
// residency state of 64 cache lines in a region both can read.
//
// The transmitter evicts the lines of set bits; the receiver times reads of
// every line and votes. Words are framed as START, checksummed blocks and
// END (package frame) so a receiver can join at any time and drop corrupted
// words. Delivery is best effort: Receive succeeds even when blocks were
// lost and reports how many arrived.
//
// Example usage:
//
//	ch, err := ctc.New(ctx, ctc.DefaultConfig())
//	// ...
//	st, err := ch.Transmit(ctx, []byte("hello"))
//
// Both processes must resolve the same region: the default landmark, or the
// same explicit address inside a shared mapping.
package ctc
