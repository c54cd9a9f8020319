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

// Package codec maps a 64-bit word onto the 64 lines of a region, one line
// per bit. A set bit is sent by keeping its line evicted for a dwell period
// and received by voting over repeated full samples of every line.
package codec

import (
	"context"
	"errors"
	"fmt"

	"github.com/srediag/plugin-ctc/internal/logging"
)

// Lines is the number of lines, and bits, in a word.
const Lines = 64

const (
	DefaultSampleCount     = 16
	DefaultDwellIterations = 250000
)

var ErrInvalidOptions = errors.New("codec: sample count and dwell iterations must be positive")

var internalLogger = logging.New("codec", nil)

// Sensor classifies a line as evicted (positive) or resident.
type Sensor interface {
	IsLinePositive(line int) bool
}

// Flusher evicts a line.
type Flusher interface {
	FlushLine(line int)
}

// Options tunes the encoder dwell and the decoder vote.
type Options struct {
	SampleCount     int
	DwellIterations int
}

// DefaultOptions returns the tuned constants.
func DefaultOptions() Options {
	return Options{
		SampleCount:     DefaultSampleCount,
		DwellIterations: DefaultDwellIterations,
	}
}

func (o Options) Verify() error {
	if o.SampleCount <= 0 || o.DwellIterations <= 0 {
		return fmt.Errorf("%w: samples=%d dwell=%d", ErrInvalidOptions, o.SampleCount, o.DwellIterations)
	}
	return nil
}

// BitPlane is the word codec over one region. Encode needs a Flusher, Decode
// a Sensor; a process usually only does one of the two.
type BitPlane struct {
	sensor  Sensor
	flusher Flusher
	opts    Options
}

// New returns a BitPlane. Either side may be nil when unused.
func New(sensor Sensor, flusher Flusher, opts Options) (*BitPlane, error) {
	if err := opts.Verify(); err != nil {
		return nil, err
	}
	return &BitPlane{sensor: sensor, flusher: flusher, opts: opts}, nil
}

// Encode holds value on the lines: for DwellIterations rounds it flushes the
// line of every set bit. Zero bits are never touched. ctx is checked once per
// round.
func (b *BitPlane) Encode(ctx context.Context, value uint64) error {
	if b.flusher == nil {
		return errors.New("codec: encode without a flusher")
	}
	set := setBits(value)
	done := ctx.Done()
	for n := 0; n < b.opts.DwellIterations; n++ {
		select {
		case <-done:
			return ctx.Err()
		default:
		}
		for _, line := range set {
			b.flusher.FlushLine(line)
		}
	}
	internalLogger.Tracef("encoded %#016x", value)
	return nil
}

// Sample reads every line once and packs the classifications, bit i for
// line i.
func (b *BitPlane) Sample() uint64 {
	var v uint64
	for i := 0; i < Lines; i++ {
		if b.sensor.IsLinePositive(i) {
			v |= 1 << uint(i)
		}
	}
	return v
}

// Decode takes SampleCount samples and returns the word-level vote. ctx is
// checked before every sample.
func (b *BitPlane) Decode(ctx context.Context) (Vote, error) {
	if b.sensor == nil {
		return Vote{}, errors.New("codec: decode without a sensor")
	}
	samples := make([]uint64, b.opts.SampleCount)
	for i := range samples {
		if err := ctx.Err(); err != nil {
			return Vote{}, err
		}
		samples[i] = b.Sample()
	}
	v := MostFrequent(samples)
	internalLogger.Tracef("decoded %#016x %s support=%d/%d", v.Value, v.Outcome, v.Support, v.Samples)
	return v, nil
}

func setBits(value uint64) []int {
	set := make([]int, 0, Lines)
	for i := 0; i < Lines; i++ {
		if value&(1<<uint(i)) != 0 {
			set = append(set, i)
		}
	}
	return set
}
