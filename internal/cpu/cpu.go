// Package cpu exposes the few x86 instructions the channel is built on:
// CPUID, RDTSCP, CLFLUSH/CLFLUSHOPT, PREFETCHT0 and a timed one-byte load.
//
// On architectures without an implementation Supported reports false, the
// line size resolves to 0 and every primitive is a no-op returning zero.
package cpu

import (
	xcpu "golang.org/x/sys/cpu"
)

// clflushopt is CPUID.(EAX=7,ECX=0):EBX bit 23.
const clflushoptBit = 1 << 23

// Supported reports whether the timing and flush primitives are usable.
func Supported() bool {
	return archSupported && xcpu.X86.HasSSE2
}

// CPUID executes the feature identification instruction.
func CPUID(leaf, subleaf uint32) (eax, ebx, ecx, edx uint32) {
	return cpuid(leaf, subleaf)
}

// LineSize returns the cache line size reported by CPUID leaf 1, EBX bits 15:8
// in units of 8 bytes, or 0 when it cannot be read.
func LineSize() uint64 {
	if !archSupported {
		return 0
	}
	maxLeaf, _, _, _ := cpuid(0, 0)
	if maxLeaf < 1 {
		return 0
	}
	_, ebx, _, _ := cpuid(1, 0)
	return uint64((ebx>>8)&0xFF) * 8
}

// HasFlushOpt reports whether CLFLUSHOPT is advertised.
func HasFlushOpt() bool {
	if !archSupported {
		return false
	}
	maxLeaf, _, _, _ := cpuid(0, 0)
	if maxLeaf < 7 {
		return false
	}
	_, ebx, _, _ := cpuid(7, 0)
	return ebx&clflushoptBit != 0
}

// TimedRead loads one byte at addr between two RDTSCP reads and returns the
// elapsed cycles.
func TimedRead(addr uintptr) uint64 {
	return timedRead(addr)
}

// Prefetch hints addr into every cache level (T0).
func Prefetch(addr uintptr) {
	prefetch(addr)
}

// Flush evicts the line holding addr with CLFLUSH.
func Flush(addr uintptr) {
	flush(addr)
}

// FlushOpt evicts the line holding addr with CLFLUSHOPT. Callers must check
// HasFlushOpt first.
func FlushOpt(addr uintptr) {
	flushOpt(addr)
}
