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

package ctc

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/valyala/bytebufferpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/srediag/plugin-ctc/api"
	"github.com/srediag/plugin-ctc/internal/logging"
	"github.com/srediag/plugin-ctc/pkg/calibrate"
	"github.com/srediag/plugin-ctc/pkg/codec"
	"github.com/srediag/plugin-ctc/pkg/frame"
	"github.com/srediag/plugin-ctc/pkg/timing"
)

const instrumentationName = "github.com/srediag/plugin-ctc/pkg/ctc"

var internalLogger = logging.New("ctc", nil)

var (
	_ api.Transport = (*Channel)(nil)
	_ api.Health    = (*Channel)(nil)
)

// Channel is one end of the covert channel. It runs one transfer at a time.
type Channel struct {
	cfg    *Config
	region *calibrate.Region
	tx     *frame.Transmitter
	rx     *frame.Receiver
	busy   atomic.Bool

	tracer   trace.Tracer
	accepted metric.Int64Counter
	dropped  metric.Int64Counter
}

// New calibrates the region described by cfg and returns a channel driving
// the cache lines. A nil cfg uses DefaultConfig.
func New(ctx context.Context, cfg *Config) (*Channel, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := VerifyConfig(cfg); err != nil {
		return nil, err
	}
	region, err := calibrate.Initialize(ctx, calibrate.Options{
		Address:  cfg.Address,
		Landmark: cfg.Landmark,
		LineSize: cfg.LineSize,
	})
	if err != nil {
		return nil, err
	}
	prober, err := timing.NewProber(region, cfg.timingOptions())
	if err != nil {
		return nil, err
	}
	planes, err := codec.New(prober, prober, cfg.codecOptions())
	if err != nil {
		return nil, err
	}
	return newChannel(cfg, region, planes)
}

// NewWithLink returns a channel over an arbitrary word link, such as
// loopback.Link. The channel has no region.
func NewWithLink(link frame.Link, cfg *Config) (*Channel, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := VerifyConfig(cfg); err != nil {
		return nil, err
	}
	return newChannel(cfg, nil, link)
}

func newChannel(cfg *Config, region *calibrate.Region, link frame.Link) (*Channel, error) {
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer(instrumentationName)
	}
	meter := cfg.Meter
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter(instrumentationName)
	}
	accepted, err := meter.Int64Counter("ctc.blocks.accepted",
		metric.WithDescription("Blocks written to a receive buffer."))
	if err != nil {
		return nil, fmt.Errorf("ctc: meter: %w", err)
	}
	dropped, err := meter.Int64Counter("ctc.blocks.dropped",
		metric.WithDescription("Blocks dropped for a bad checksum or index."))
	if err != nil {
		return nil, fmt.Errorf("ctc: meter: %w", err)
	}
	return &Channel{
		cfg:      cfg,
		region:   region,
		tx:       frame.NewTransmitter(link),
		rx:       frame.NewReceiver(link),
		tracer:   tracer,
		accepted: accepted,
		dropped:  dropped,
	}, nil
}

// Region returns the calibrated region, nil for a link channel.
func (c *Channel) Region() *calibrate.Region {
	return c.region
}

// Transmit sends data as one transfer. The length is padded to a multiple of
// 4 with zeros.
func (c *Channel) Transmit(ctx context.Context, data []byte) (st frame.Stats, err error) {
	if !c.busy.CompareAndSwap(false, true) {
		return st, ErrBusy
	}
	defer c.busy.Store(false)

	ctx, span := c.tracer.Start(ctx, "ctc.Transmit", trace.WithAttributes(attribute.Int("ctc.bytes", len(data))))
	start := time.Now()
	defer func() {
		c.finish(span, directionTransmit, st, err, time.Since(start))
	}()

	aligned := alignedLength(len(data))
	if aligned/4 > frame.MaxBlocks {
		return st, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(data))
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	buf.B = append(buf.B[:0], data...)
	buf.B = appendZeros(buf.B, aligned-len(data))

	st, err = c.tx.Send(ctx, bytesToWords(buf.B))
	return st, wrapContextErr(err)
}

// Receive waits for one transfer and copies its first len(dst) bytes into
// dst. Blocks that never arrive leave the matching bytes of dst unchanged;
// the returned Stats tell how many did. Without a deadline on ctx it waits
// forever for a sender.
func (c *Channel) Receive(ctx context.Context, dst []byte) (frame.Stats, error) {
	return c.receive(ctx, dst, nil)
}

// ReceiveWithRetry repeats Receive under policy until every block has
// arrived in some attempt. Blocks accepted by earlier attempts are kept, so
// later attempts only need to supply what is still missing.
func (c *Channel) ReceiveWithRetry(ctx context.Context, dst []byte, policy backoff.BackOff) (frame.Stats, error) {
	words := alignedLength(len(dst)) / 4
	if words > frame.MaxBlocks {
		return frame.Stats{}, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(dst))
	}
	filled := make([]bool, words)
	attempt := 0
	op := func() (frame.Stats, error) {
		attempt++
		st, err := c.receive(ctx, dst, filled)
		if err != nil {
			return st, backoff.Permanent(err)
		}
		if !st.Complete() {
			internalLogger.Infof("receive attempt %d incomplete: %s", attempt, st)
			return st, ErrIncomplete
		}
		return st, nil
	}
	return backoff.RetryWithData(op, backoff.WithContext(policy, ctx))
}

// receive runs one transfer. A nil filled starts from nothing received.
func (c *Channel) receive(ctx context.Context, dst []byte, filled []bool) (st frame.Stats, err error) {
	if !c.busy.CompareAndSwap(false, true) {
		return st, ErrBusy
	}
	defer c.busy.Store(false)

	ctx, span := c.tracer.Start(ctx, "ctc.Receive", trace.WithAttributes(attribute.Int("ctc.bytes", len(dst))))
	start := time.Now()
	defer func() {
		c.finish(span, directionReceive, st, err, time.Since(start))
	}()

	aligned := alignedLength(len(dst))
	if aligned/4 > frame.MaxBlocks {
		return st, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(dst))
	}
	if filled == nil {
		filled = make([]bool, aligned/4)
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	buf.B = append(buf.B[:0], dst...)
	buf.B = appendZeros(buf.B, aligned-len(dst))

	words := bytesToWords(buf.B)
	st, err = c.rx.Resume(ctx, words, filled)
	wordsToBytes(buf.B, words)
	copy(dst, buf.B[:len(dst)])
	return st, wrapContextErr(err)
}

// Calibrated reports whether the channel has a usable region.
func (c *Channel) Calibrated() error {
	if c.region == nil {
		return nil
	}
	if c.region.LineSize() == 0 {
		return calibrate.ErrLineSizeUnknown
	}
	return nil
}

// Idle fails while a transfer is running.
func (c *Channel) Idle() error {
	if c.busy.Load() {
		return ErrBusy
	}
	return nil
}

func (c *Channel) finish(span trace.Span, direction string, st frame.Stats, err error, d time.Duration) {
	recordTransfer(direction, st, err, d)
	ctx := trace.ContextWithSpan(context.Background(), span)
	if direction == directionReceive {
		c.accepted.Add(ctx, int64(st.Accepted))
		c.dropped.Add(ctx, int64(st.Dropped()))
	}
	span.SetAttributes(
		attribute.Int("ctc.words", st.Words),
		attribute.Int("ctc.blocks.expected", st.Expected),
		attribute.Int("ctc.blocks.accepted", st.Accepted),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		internalLogger.Warnf("%s failed after %s: %v", direction, d, err)
	} else {
		internalLogger.Debugf("%s done in %s: %s", direction, d, st)
	}
	span.End()
}

func wrapContextErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	default:
		return err
	}
}

func alignedLength(n int) int {
	return (n + 3) &^ 3
}

func appendZeros(b []byte, n int) []byte {
	for i := 0; i < n; i++ {
		b = append(b, 0)
	}
	return b
}

func bytesToWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words
}

func wordsToBytes(b []byte, words []uint32) {
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}
}
