//go:build windows

package shm

import (
	"context"
	"fmt"

	"golang.org/x/sys/windows"
)

// DefaultLandmarks lists modules every Win32 process has loaded.
func DefaultLandmarks() []string {
	return []string{"kernelbase.dll", "kernel32.dll", "ntdll.dll"}
}

// MapRegion resolves the load address of an already loaded module. The loader
// shares the image pages between processes, so nothing is mapped here.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	names := DefaultLandmarks()
	if opts.Name != "" {
		names = []string{opts.Name}
	}
	for _, name := range names {
		p, err := windows.UTF16PtrFromString(name)
		if err != nil {
			return nil, fmt.Errorf("module name %q: %w", name, err)
		}
		var h windows.Handle
		if err := windows.GetModuleHandleEx(0, p, &h); err != nil {
			continue
		}
		// the image is at least one section larger than the span we touch
		return &MappedRegion{Name: name, Base: uintptr(h), Size: opts.Size}, nil
	}
	return nil, ErrNoLandmark
}

// UnmapRegion is a no-op; loader-owned modules stay mapped.
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	return nil
}
