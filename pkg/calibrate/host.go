package calibrate

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"

	ctccpu "github.com/srediag/plugin-ctc/internal/cpu"
)

// HostInfo describes the processor the timing threshold is being applied to.
type HostInfo struct {
	Vendor      string
	Family      string
	Model       string
	ModelName   string
	CacheSizeKB int32
	LineSize    uint64
	FlushOpt    bool
	Timing      bool
}

// Describe collects HostInfo. The threshold is tuned for one class of x86
// cores, so callers log this next to any calibration they report.
func Describe(ctx context.Context) (HostInfo, error) {
	info := HostInfo{
		LineSize: ctccpu.LineSize(),
		FlushOpt: ctccpu.HasFlushOpt(),
		Timing:   ctccpu.Supported(),
	}
	stats, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return info, fmt.Errorf("calibrate: cpu info: %w", err)
	}
	if len(stats) > 0 {
		s := stats[0]
		info.Vendor = s.VendorID
		info.Family = s.Family
		info.Model = s.Model
		info.ModelName = s.ModelName
		info.CacheSizeKB = s.CacheSize
	}
	return info, nil
}
