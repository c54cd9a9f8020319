//go:build unix

package shm

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLandmark(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "landmark.so")
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestMapRegion(t *testing.T) {
	path := writeLandmark(t, 3*os.Getpagesize())
	ctx := context.Background()

	region, err := MapRegion(ctx, MapOptions{Name: path, Size: 4096})
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, UnmapRegion(ctx, region))
	}()

	assert.Equal(t, path, region.Name)
	assert.Zero(t, region.Base%uintptr(os.Getpagesize()))
	assert.GreaterOrEqual(t, region.Size, 4096)
	assert.Equal(t, byte(7), region.Addr[7])
}

func TestMapRegionTooSmall(t *testing.T) {
	path := writeLandmark(t, 128)
	_, err := MapRegion(context.Background(), MapOptions{Name: path, Size: 4096})
	assert.ErrorIs(t, err, ErrRegionTooSmall)
}

func TestMapRegionMissing(t *testing.T) {
	_, err := MapRegion(context.Background(), MapOptions{Name: filepath.Join(t.TempDir(), "nope"), Size: 64})
	assert.Error(t, err)
}

func TestMapRegionCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := MapRegion(ctx, MapOptions{Size: 64})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnmapRegionNil(t *testing.T) {
	assert.NoError(t, UnmapRegion(context.Background(), nil))
	assert.NoError(t, UnmapRegion(context.Background(), &MappedRegion{}))
}
