package ctc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/plugin-ctc/pkg/codec"
	"github.com/srediag/plugin-ctc/pkg/timing"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	assert.NoError(t, VerifyConfig(c))
	assert.Equal(t, uint64(timing.DefaultThreshold), c.Threshold)
	assert.Equal(t, codec.DefaultSampleCount, c.SampleCount)
	assert.Equal(t, codec.DefaultDwellIterations, c.DwellIterations)
	assert.Equal(t, defaultMetricsAddr, c.MetricsAddr)
}

func TestVerifyConfig(t *testing.T) {
	assert.ErrorIs(t, VerifyConfig(nil), ErrInvalidConfig)

	c := DefaultConfig()
	c.LineSize = 48
	assert.ErrorIs(t, VerifyConfig(c), ErrInvalidConfig)

	c = DefaultConfig()
	c.Threshold = 0
	assert.ErrorIs(t, VerifyConfig(c), ErrInvalidConfig)

	c = DefaultConfig()
	c.SampleCount = 0
	assert.ErrorIs(t, VerifyConfig(c), ErrInvalidConfig)

	c = DefaultConfig()
	c.MeasureRounds = 0
	assert.ErrorIs(t, VerifyConfig(c), ErrInvalidConfig)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ctc.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
address = "0x7f0000001234"
line_size = 64
threshold = 120
sample_count = 8
`)
	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uintptr(0x7f0000001234), c.Address)
	assert.Equal(t, uint64(64), c.LineSize)
	assert.Equal(t, uint64(120), c.Threshold)
	assert.Equal(t, 8, c.SampleCount)
	// untouched keys keep defaults
	assert.Equal(t, timing.DefaultMeasureRounds, c.MeasureRounds)
	assert.Equal(t, codec.DefaultDwellIterations, c.DwellIterations)
	assert.Equal(t, defaultMetricsAddr, c.MetricsAddr)
}

func TestLoadConfigInvalid(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `vote_rounds = 0`))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = LoadConfig(writeConfig(t, `address = "nowhere"`))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, `threshold = [`))
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestParseAddress(t *testing.T) {
	for raw, want := range map[string]uintptr{
		"":         0,
		"4096":     4096,
		" 0x1000 ": 0x1000,
	} {
		got, err := parseAddress(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}
