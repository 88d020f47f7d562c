package engine

import "github.com/klauspost/cpuid/v2"

// acceleration names the widest SIMD family the host offers. The name is
// informational; vector kernels do their own runtime dispatch.
func acceleration() string {
	switch {
	case cpuid.CPU.Supports(cpuid.AVX512F):
		return "avx512"
	case cpuid.CPU.Supports(cpuid.AVX2):
		return "avx2"
	case cpuid.CPU.Supports(cpuid.ASIMD):
		return "neon"
	}
	return "serial"
}
