// Package cpuspec derives a sensible inference thread count from the CPU
// model, preferring performance cores on hybrid parts.
package cpuspec

import (
	"regexp"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// CPUSpec contains information about CPU specifications
type CPUSpec struct {
	BrandName        string
	PerformanceCores int
}

// GetCPUSpec returns CPU specifications including the number of performance cores
func GetCPUSpec() CPUSpec {
	brandName := cpuid.CPU.BrandName
	return CPUSpec{
		BrandName:        brandName,
		PerformanceCores: determinePerformanceCores(brandName),
	}
}

// GetOptimalThreadCount returns the recommended number of interpreter
// threads for model inference on this host.
func (c CPUSpec) GetOptimalThreadCount() int {
	// NumCPU reflects the cgroup/VM limit, which matters on field gateways
	availableCPUs := runtime.NumCPU()

	if c.PerformanceCores > 0 {
		if c.PerformanceCores > availableCPUs {
			return availableCPUs
		}
		return c.PerformanceCores
	}

	if cores := cpuid.CPU.LogicalCores; cores > 0 {
		if cores > availableCPUs {
			return availableCPUs
		}
		return cores
	}
	return availableCPUs
}

var intelHybridRegex = regexp.MustCompile(`intel.*core.*i[3579]-1([2-9])\d{3}`)

// determinePerformanceCores estimates P-core counts for known hybrid
// CPU families. Returns 0 when the split cannot be determined, which
// makes GetOptimalThreadCount fall back to logical cores.
func determinePerformanceCores(brandName string) int {
	brandName = strings.ToLower(brandName)

	// Intel 12th gen and later desktop/mobile hybrids
	if m := intelHybridRegex.FindStringSubmatch(brandName); m != nil {
		switch {
		case strings.Contains(brandName, "i9"):
			return 8
		case strings.Contains(brandName, "i7"):
			return 8
		case strings.Contains(brandName, "i5"):
			return 6
		case strings.Contains(brandName, "i3"):
			return 4
		}
	}

	// Apple silicon publishes the split directly via core kinds
	if strings.Contains(brandName, "apple") {
		switch {
		case strings.Contains(brandName, "pro"), strings.Contains(brandName, "max"):
			return 8
		case strings.Contains(brandName, "ultra"):
			return 16
		default:
			return 4
		}
	}

	// ARM big.LITTLE single-board computers common on field gateways
	if strings.Contains(brandName, "cortex") {
		if strings.Contains(brandName, "a76") || strings.Contains(brandName, "a78") {
			return 4
		}
	}

	return 0
}
