/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package frame carries a sequence of 32-bit words over a word link as
// START, one checksummed block per word, END.
//
// Delivery is best effort. The transmitter never learns whether a word was
// seen; the receiver silently drops blocks with a bad checksum or an index
// outside its destination, and reports what it dropped in Stats.
package frame

import (
	"context"
	"errors"
	"fmt"

	"github.com/srediag/plugin-ctc/internal/logging"
	"github.com/srediag/plugin-ctc/pkg/codec"
)

var (
	ErrTooManyBlocks     = errors.New("frame: transfer exceeds the 16-bit block index space")
	ErrSentinelCollision = errors.New("frame: block encodes to a sentinel word")
	ErrFilledLength      = errors.New("frame: filled set does not match destination")
)

var internalLogger = logging.New("frame", nil)

// Link moves one raw word at a time. codec.BitPlane is the hardware link.
type Link interface {
	Encode(ctx context.Context, value uint64) error
	Decode(ctx context.Context) (codec.Vote, error)
}

// Stats describes one transfer.
type Stats struct {
	// Expected is the number of blocks sent, or the number of blocks the
	// destination holds.
	Expected int
	// Accepted is the number of distinct indices written, or of blocks
	// emitted by a transmitter.
	Accepted int
	// Words is the number of words encoded or decoded.
	Words int

	Duplicates      int
	ChecksumDropped int
	OutOfRange      int
	Ambiguous       int
	// Skipped counts words discarded while waiting for START.
	Skipped int
}

// Complete reports whether every expected block arrived.
func (s Stats) Complete() bool {
	return s.Accepted == s.Expected
}

// Dropped is the number of decoded blocks that were not applied.
func (s Stats) Dropped() int {
	return s.ChecksumDropped + s.OutOfRange
}

func (s Stats) String() string {
	return fmt.Sprintf("accepted=%d/%d words=%d dup=%d checksum=%d range=%d ambiguous=%d skipped=%d",
		s.Accepted, s.Expected, s.Words, s.Duplicates, s.ChecksumDropped, s.OutOfRange, s.Ambiguous, s.Skipped)
}

type state int

const (
	stateSendStart state = iota
	stateSendBlocks
	stateSendEnd
	stateSync
	stateReceiving
	stateDone
)

var stateNames = [...]string{"SEND_START", "SEND_BLOCKS", "SEND_END", "SYNC", "RECEIVING", "DONE"}

func (s state) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}

// Transmitter is the sending side of the protocol.
type Transmitter struct {
	link Link
}

func NewTransmitter(link Link) *Transmitter {
	return &Transmitter{link: link}
}

// Send emits START, words[i] as block i for every i, then END.
func (t *Transmitter) Send(ctx context.Context, words []uint32) (Stats, error) {
	st := Stats{Expected: len(words)}
	if len(words) > MaxBlocks {
		return st, fmt.Errorf("%w: %d words", ErrTooManyBlocks, len(words))
	}
	blocks := make([]uint64, len(words))
	for i, w := range words {
		raw := NewBlock(w, uint16(i)).Pack()
		if Classify(raw).Kind != KindBlock {
			return st, fmt.Errorf("%w: index %d", ErrSentinelCollision, i)
		}
		blocks[i] = raw
	}

	s := stateSendStart
	for s != stateDone {
		internalLogger.Tracef("transmitter %s", s)
		switch s {
		case stateSendStart:
			if err := t.link.Encode(ctx, StartMagic); err != nil {
				return st, err
			}
			st.Words++
			s = stateSendBlocks
		case stateSendBlocks:
			for _, raw := range blocks {
				if err := t.link.Encode(ctx, raw); err != nil {
					return st, err
				}
				st.Words++
				st.Accepted++
			}
			s = stateSendEnd
		case stateSendEnd:
			if err := t.link.Encode(ctx, EndMagic); err != nil {
				return st, err
			}
			st.Words++
			s = stateDone
		}
	}
	internalLogger.Debugf("transmitter done: %s", st)
	return st, nil
}

// Receiver is the receiving side of the protocol.
type Receiver struct {
	link Link
}

func NewReceiver(link Link) *Receiver {
	return &Receiver{link: link}
}

// Receive waits for START, then writes every valid in-range block into dst
// until END. Indices that never arrive keep their previous content. It only
// returns early when ctx is done or the link fails.
func (r *Receiver) Receive(ctx context.Context, dst []uint32) (Stats, error) {
	return r.Resume(ctx, dst, make([]bool, len(dst)))
}

// Resume is Receive for a destination partly filled by earlier transfers.
// filled[i] marks dst[i] as already received; it is updated in place and
// Stats.Accepted counts every marked index, old and new. Blocks for indices
// already marked count as duplicates.
func (r *Receiver) Resume(ctx context.Context, dst []uint32, filled []bool) (Stats, error) {
	st := Stats{Expected: len(dst)}
	if len(filled) != len(dst) {
		return st, fmt.Errorf("%w: %d marks for %d words", ErrFilledLength, len(filled), len(dst))
	}
	for _, ok := range filled {
		if ok {
			st.Accepted++
		}
	}

	s := stateSync
	internalLogger.Tracef("receiver %s", s)
	for s != stateDone {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		vote, err := r.link.Decode(ctx)
		if err != nil {
			return st, err
		}
		st.Words++
		if vote.Outcome == codec.Ambiguous {
			st.Ambiguous++
			continue
		}

		w := Classify(vote.Value)
		switch s {
		case stateSync:
			if w.Kind != KindStart {
				st.Skipped++
				continue
			}
			s = stateReceiving
			internalLogger.Tracef("receiver %s", s)
		case stateReceiving:
			switch w.Kind {
			case KindEnd:
				s = stateDone
			case KindStart:
				// the sender is still dwelling on START
			case KindBlock:
				r.apply(w.Block, dst, filled, &st)
			}
		}
	}
	internalLogger.Debugf("receiver done: %s", st)
	return st, nil
}

func (r *Receiver) apply(b Block, dst []uint32, filled []bool, st *Stats) {
	if !b.Valid() {
		st.ChecksumDropped++
		internalLogger.Tracef("drop %s: checksum", b)
		return
	}
	if int(b.Index) >= len(dst) {
		st.OutOfRange++
		internalLogger.Tracef("drop %s: out of range", b)
		return
	}
	dst[b.Index] = b.Value
	if filled[b.Index] {
		st.Duplicates++
		return
	}
	filled[b.Index] = true
	st.Accepted++
}
