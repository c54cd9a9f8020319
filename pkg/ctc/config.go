package ctc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/plugin-ctc/pkg/codec"
	"github.com/srediag/plugin-ctc/pkg/timing"
)

const defaultMetricsAddr = ":9464"

// Config holds channel parameters. Both ends of a channel must agree on the
// region and on the sampling constants.
type Config struct {
	// Address selects an explicit region base; zero uses Landmark.
	Address uintptr
	// Landmark overrides the default shared module.
	Landmark string
	// LineSize overrides CPUID detection; zero detects.
	LineSize uint64

	Threshold       uint64
	MeasureRounds   int
	VoteRounds      int
	SampleCount     int
	DwellIterations int

	// MetricsAddr is where ctcctl serves metrics and health.
	MetricsAddr string

	Meter  metric.Meter
	Tracer trace.Tracer
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() *Config {
	return &Config{
		Threshold:       timing.DefaultThreshold,
		MeasureRounds:   timing.DefaultMeasureRounds,
		VoteRounds:      timing.DefaultVoteRounds,
		SampleCount:     codec.DefaultSampleCount,
		DwellIterations: codec.DefaultDwellIterations,
		MetricsAddr:     defaultMetricsAddr,
	}
}

// VerifyConfig checks c for values the channel cannot run with.
func VerifyConfig(c *Config) error {
	if c == nil {
		return fmt.Errorf("%w: nil", ErrInvalidConfig)
	}
	if c.LineSize != 0 && c.LineSize&(c.LineSize-1) != 0 {
		return fmt.Errorf("%w: line size %d is not a power of two", ErrInvalidConfig, c.LineSize)
	}
	if c.Threshold == 0 {
		return fmt.Errorf("%w: threshold must be positive", ErrInvalidConfig)
	}
	if err := c.timingOptions().Verify(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.codecOptions().Verify(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) timingOptions() timing.Options {
	return timing.Options{
		Threshold:     c.Threshold,
		MeasureRounds: c.MeasureRounds,
		VoteRounds:    c.VoteRounds,
	}
}

func (c *Config) codecOptions() codec.Options {
	return codec.Options{
		SampleCount:     c.SampleCount,
		DwellIterations: c.DwellIterations,
	}
}

type fileConfig struct {
	Address         string `toml:"address"`
	Landmark        string `toml:"landmark"`
	LineSize        uint64 `toml:"line_size"`
	Threshold       uint64 `toml:"threshold"`
	MeasureRounds   int    `toml:"measure_rounds"`
	VoteRounds      int    `toml:"vote_rounds"`
	SampleCount     int    `toml:"sample_count"`
	DwellIterations int    `toml:"dwell_iterations"`
	MetricsAddr     string `toml:"metrics_addr"`
}

// LoadConfig reads a TOML file over DefaultConfig. Only keys present in the
// file override defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load ctc config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		internalLogger.Warnf("config %s: unknown keys %v", path, undecoded)
	}

	if meta.IsDefined("address") {
		addr, err := parseAddress(raw.Address)
		if err != nil {
			return nil, fmt.Errorf("parse address: %w", err)
		}
		cfg.Address = addr
	}
	if meta.IsDefined("landmark") {
		cfg.Landmark = strings.TrimSpace(raw.Landmark)
	}
	if meta.IsDefined("line_size") {
		cfg.LineSize = raw.LineSize
	}
	if meta.IsDefined("threshold") {
		cfg.Threshold = raw.Threshold
	}
	if meta.IsDefined("measure_rounds") {
		cfg.MeasureRounds = raw.MeasureRounds
	}
	if meta.IsDefined("vote_rounds") {
		cfg.VoteRounds = raw.VoteRounds
	}
	if meta.IsDefined("sample_count") {
		cfg.SampleCount = raw.SampleCount
	}
	if meta.IsDefined("dwell_iterations") {
		cfg.DwellIterations = raw.DwellIterations
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}

	if err := VerifyConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseAddress accepts decimal or 0x-prefixed hex.
func parseAddress(raw string) (uintptr, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 0, 64)
	if err != nil {
		return 0, err
	}
	return uintptr(v), nil
}
