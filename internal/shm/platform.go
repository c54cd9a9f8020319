// Package shm contains platform-specific helpers that resolve a memory region
// shared by unrelated processes without any IPC handle: a read-only mapping of
// a system library that the kernel backs with the same physical pages in every
// process that maps it.
package shm

import "errors"

var (
	ErrUnsupportedPlatform = errors.New("shm: shared landmark mapping not supported on this platform")
	ErrRegionTooSmall      = errors.New("shm: landmark smaller than requested span")
	ErrNoLandmark          = errors.New("shm: no landmark module found")
)

// MappedRegion represents a read-only view of a landmark module.
type MappedRegion struct {
	// Name is the landmark path or module name that was resolved.
	Name string
	// Base is the first byte of the view.
	Base uintptr
	// Size is the number of readable bytes starting at Base.
	Size int
	// Addr holds the mapping when this process created it, nil when the
	// region belongs to a module already loaded by the loader.
	Addr []byte
}

// MapOptions defines options for resolving a landmark.
type MapOptions struct {
	// Name is the landmark file or module; empty selects DefaultLandmarks.
	Name string
	// Size is the minimum span in bytes that must be readable.
	Size int
}

// Function implementations are provided in platform-specific files (platform_unix.go, platform_windows.go).
