//go:build amd64

package cpu

const archSupported = true

func cpuid(eaxArg, ecxArg uint32) (eax, ebx, ecx, edx uint32)

func timedRead(addr uintptr) uint64

func prefetch(addr uintptr)

func flush(addr uintptr)

func flushOpt(addr uintptr)
