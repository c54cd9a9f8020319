//go:build !amd64

package cpu

const archSupported = false

func cpuid(eaxArg, ecxArg uint32) (eax, ebx, ecx, edx uint32) {
	return 0, 0, 0, 0
}

func timedRead(addr uintptr) uint64 { return 0 }

func prefetch(addr uintptr) {}

func flush(addr uintptr) {}

func flushOpt(addr uintptr) {}
