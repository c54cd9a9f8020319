//go:build !unix && !windows

package shm

import "context"

func DefaultLandmarks() []string {
	return nil
}

func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	return nil, ErrUnsupportedPlatform
}

func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	return nil
}
