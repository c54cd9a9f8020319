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

// Package loopback is an ideal, lossless word link for exercising the framing
// and transfer layers without cache hardware. Each encoded word is delivered
// to exactly one decode, in order.
package loopback

import (
	"context"
	"errors"
	"time"

	queuepkg "github.com/Workiva/go-datastructures/queue"

	"github.com/srediag/plugin-ctc/internal/logging"
	"github.com/srediag/plugin-ctc/pkg/codec"
)

const (
	defaultCapacity = 1024
	pollInterval    = 5 * time.Millisecond
)

var ErrClosed = errors.New("loopback: link closed")

var internalLogger = logging.New("loopback", nil)

// Link is a bounded in-memory word queue shared by one encoder and one
// decoder.
type Link struct {
	q *queuepkg.RingBuffer
	// Corrupt, when set, rewrites each word on its way through.
	Corrupt func(uint64) uint64
	samples int
}

// NewLink returns a link holding up to capacity words in flight; zero picks
// a default.
func NewLink(capacity uint64) *Link {
	if capacity == 0 {
		capacity = defaultCapacity
	}
	return &Link{
		q:       queuepkg.NewRingBuffer(capacity),
		samples: codec.DefaultSampleCount,
	}
}

// Encode queues value, waiting while the link is full.
func (l *Link) Encode(ctx context.Context, value uint64) error {
	if l.Corrupt != nil {
		value = l.Corrupt(value)
	}
	for {
		ok, err := l.q.Offer(value)
		if err != nil {
			return translate(err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Decode returns the next word as a unanimous vote.
func (l *Link) Decode(ctx context.Context) (codec.Vote, error) {
	for {
		if err := ctx.Err(); err != nil {
			return codec.Vote{}, err
		}
		item, err := l.q.Poll(pollInterval)
		if errors.Is(err, queuepkg.ErrTimeout) {
			continue
		}
		if err != nil {
			return codec.Vote{}, translate(err)
		}
		value, ok := item.(uint64)
		if !ok {
			internalLogger.Warnf("unexpected item %T on link", item)
			continue
		}
		return codec.Vote{Value: value, Outcome: codec.Majority, Support: l.samples, Samples: l.samples}, nil
	}
}

// Len returns the number of words in flight.
func (l *Link) Len() int {
	return int(l.q.Len())
}

// Close disposes the queue; pending and future calls fail with ErrClosed.
func (l *Link) Close() {
	l.q.Dispose()
}

func translate(err error) error {
	if errors.Is(err, queuepkg.ErrDisposed) {
		return ErrClosed
	}
	return err
}
