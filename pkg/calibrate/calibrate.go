// Package calibrate resolves the communication region: the host cache line
// size and the base address of 64 lines that every participating process can
// read.
package calibrate

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/srediag/plugin-ctc/internal/cpu"
	"github.com/srediag/plugin-ctc/internal/logging"
	"github.com/srediag/plugin-ctc/internal/shm"
)

// Lines is the number of cache lines in a region, one per bit of a word.
const Lines = 64

var (
	ErrLineSizeUnknown = errors.New("calibrate: cache line size unavailable")
	ErrInvalidLineSize = errors.New("calibrate: cache line size is not a power of two")
)

var (
	internalLogger = logging.New("calibrate", nil)

	// landmarks caches mappings by landmark and span so repeated
	// initialization resolves to the same base.
	landmarks = cmap.New[*shm.MappedRegion]()
)

// Options selects the region. The zero value detects the line size and uses
// the default landmark.
type Options struct {
	// Address, when non-zero, is used instead of a landmark and aligned down
	// to a line boundary.
	Address uintptr
	// Landmark overrides the default landmark module or file.
	Landmark string
	// LineSize overrides detection.
	LineSize uint64
}

// Region is the immutable result of calibration.
type Region struct {
	base     uintptr
	lineSize uint64
	source   string
}

// Initialize determines the line size and resolves the region base.
func Initialize(ctx context.Context, opts Options) (*Region, error) {
	lineSize := opts.LineSize
	if lineSize == 0 {
		lineSize = cpu.LineSize()
	}
	if lineSize == 0 {
		return nil, ErrLineSizeUnknown
	}
	if lineSize&(lineSize-1) != 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLineSize, lineSize)
	}

	if opts.Address != 0 {
		r := &Region{
			base:     AlignDown(opts.Address, lineSize),
			lineSize: lineSize,
			source:   "address",
		}
		internalLogger.Debugf("region %s", r)
		return r, nil
	}

	m, err := mapLandmark(ctx, opts.Landmark, int(Lines*lineSize))
	if err != nil {
		return nil, fmt.Errorf("calibrate: resolve landmark: %w", err)
	}
	r := &Region{
		base:     AlignDown(m.Base, lineSize),
		lineSize: lineSize,
		source:   m.Name,
	}
	internalLogger.Infof("region %s", r)
	return r, nil
}

// AlignDown rounds addr down to a multiple of lineSize, which must be a power
// of two.
func AlignDown(addr uintptr, lineSize uint64) uintptr {
	return addr &^ uintptr(lineSize-1)
}

// Release unmaps every landmark mapped by Initialize. Regions resolved from
// those landmarks must not be used afterwards.
func Release(ctx context.Context) error {
	var errs []error
	for _, key := range landmarks.Keys() {
		m, ok := landmarks.Pop(key)
		if !ok {
			continue
		}
		if err := shm.UnmapRegion(ctx, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func mapLandmark(ctx context.Context, name string, span int) (*shm.MappedRegion, error) {
	key := name + "@" + strconv.Itoa(span)
	if m, ok := landmarks.Get(key); ok {
		return m, nil
	}
	m, err := shm.MapRegion(ctx, shm.MapOptions{Name: name, Size: span})
	if err != nil {
		return nil, err
	}
	if !landmarks.SetIfAbsent(key, m) {
		// lost the race, keep the winner's mapping
		if err := shm.UnmapRegion(ctx, m); err != nil {
			internalLogger.Warnf("unmap duplicate landmark %s: %v", m.Name, err)
		}
		m, _ = landmarks.Get(key)
	}
	return m, nil
}

// Base returns the address of line 0.
func (r *Region) Base() uintptr {
	return r.base
}

// LineSize returns the line stride in bytes.
func (r *Region) LineSize() uint64 {
	return r.lineSize
}

// Line returns the address of line n.
func (r *Region) Line(n int) uintptr {
	return r.base + uintptr(uint64(n)*r.lineSize)
}

// Span returns the number of bytes covered by all lines.
func (r *Region) Span() uint64 {
	return Lines * r.lineSize
}

// Source names where the base came from: a landmark or "address".
func (r *Region) Source() string {
	return r.source
}

func (r *Region) String() string {
	return fmt.Sprintf("base=%#x line=%d source=%s", r.base, r.lineSize, r.source)
}
