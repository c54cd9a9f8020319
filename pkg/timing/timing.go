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

// Package timing senses whether a cache line of the communication region was
// evicted by timing reads against the cycle counter.
//
// Two noise sources are handled separately. Measurement jitter is smoothed by
// averaging MeasureRounds timed reads per measurement; unrelated cache traffic
// is rejected by voting over VoteRounds measurements per classification.
package timing

import (
	"errors"
	"fmt"

	"github.com/srediag/plugin-ctc/internal/cpu"
	"github.com/srediag/plugin-ctc/internal/logging"
	"github.com/srediag/plugin-ctc/pkg/calibrate"
)

const (
	// DefaultThreshold separates an L1/L2 hit from a flushed line, in cycles,
	// on the microarchitecture the channel was tuned for.
	DefaultThreshold     = 75
	DefaultMeasureRounds = 10
	DefaultVoteRounds    = 16
)

var (
	ErrUnsupported  = errors.New("timing: cycle counter or cache flush unavailable")
	ErrInvalidLine  = errors.New("timing: line index out of range")
	ErrInvalidRound = errors.New("timing: round counts must be positive")
)

var internalLogger = logging.New("timing", nil)

// Options tunes the two sampling layers.
type Options struct {
	Threshold     uint64
	MeasureRounds int
	VoteRounds    int
}

// DefaultOptions returns the tuned constants.
func DefaultOptions() Options {
	return Options{
		Threshold:     DefaultThreshold,
		MeasureRounds: DefaultMeasureRounds,
		VoteRounds:    DefaultVoteRounds,
	}
}

// Verify checks that both layers take at least one sample.
func (o Options) Verify() error {
	if o.MeasureRounds <= 0 || o.VoteRounds <= 0 {
		return fmt.Errorf("%w: measure=%d vote=%d", ErrInvalidRound, o.MeasureRounds, o.VoteRounds)
	}
	return nil
}

// Sample is one smoothed measurement of a line and its classification.
type Sample struct {
	Line     int
	Duration uint64
	Positive bool
}

// Prober measures and flushes lines of one region. It is not safe for
// concurrent use; the lines it times are shared hardware state anyway.
type Prober struct {
	region *calibrate.Region
	opts   Options

	timedRead func(addr uintptr) uint64
	prefetch  func(addr uintptr)
	flush     func(addr uintptr)
}

// NewProber returns a Prober backed by the CPU primitives.
func NewProber(region *calibrate.Region, opts Options) (*Prober, error) {
	if !cpu.Supported() {
		return nil, ErrUnsupported
	}
	flush := cpu.Flush
	if cpu.HasFlushOpt() {
		flush = cpu.FlushOpt
	} else {
		internalLogger.Infof("clflushopt not advertised, using clflush")
	}
	return newProber(region, opts, cpu.TimedRead, cpu.Prefetch, flush)
}

func newProber(region *calibrate.Region, opts Options,
	timedRead func(uintptr) uint64, prefetch, flush func(uintptr)) (*Prober, error) {
	if err := opts.Verify(); err != nil {
		return nil, err
	}
	return &Prober{
		region:    region,
		opts:      opts,
		timedRead: timedRead,
		prefetch:  prefetch,
		flush:     flush,
	}, nil
}

// Region returns the region being probed.
func (p *Prober) Region() *calibrate.Region {
	return p.region
}

// Options returns the sampling parameters.
func (p *Prober) Options() Options {
	return p.opts
}

// MeasureLine prefetches line and returns the mean latency of MeasureRounds
// one-byte reads.
func (p *Prober) MeasureLine(line int) uint64 {
	addr := p.region.Line(line)
	p.prefetch(addr)

	var total uint64
	for i := 0; i < p.opts.MeasureRounds; i++ {
		total += p.timedRead(addr)
	}
	return total / uint64(p.opts.MeasureRounds)
}

// IsLinePositive reports whether more than half of VoteRounds measurements
// of line exceed the threshold, that is whether the line looks evicted.
func (p *Prober) IsLinePositive(line int) bool {
	likelihood := 0
	for i := 0; i < p.opts.VoteRounds; i++ {
		if p.MeasureLine(line) > p.opts.Threshold {
			likelihood++
		}
	}
	return likelihood > p.opts.VoteRounds/2
}

// FlushLine evicts line from every cache level.
func (p *Prober) FlushLine(line int) {
	p.flush(p.region.Line(line))
}

// Sample measures line once and classifies the result against the threshold.
func (p *Prober) Sample(line int) (Sample, error) {
	if line < 0 || line >= calibrate.Lines {
		return Sample{}, fmt.Errorf("%w: %d", ErrInvalidLine, line)
	}
	d := p.MeasureLine(line)
	return Sample{Line: line, Duration: d, Positive: d > p.opts.Threshold}, nil
}

// Survey samples every line of the region in order.
func (p *Prober) Survey() []Sample {
	out := make([]Sample, calibrate.Lines)
	for i := range out {
		out[i], _ = p.Sample(i)
	}
	return out
}
