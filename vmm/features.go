package vmm

import "golang.org/x/sys/cpu"

// DirectMapFeatures reports the CPU features the direct-map/kernel-
// table bootstrap cares about, in place of the teacher's hand-rolled
// CPUID bit-twiddling (biscuit/src/mem/dmap.go's runtime.Cpuid calls
// in Dmap_init). golang.org/x/sys/cpu does not expose the 1GiB-page or
// global-page CPUID leaf biscuit reads directly; what it does expose —
// RDRAND/RDSEED — is used here to decide whether boot can afford a
// hardware-seeded slide for the kernel heap's base address, a modest
// defense-in-depth analogue of biscuit's feature-gated direct map.
type DirectMapFeatures struct {
	HasHardwareRNG bool
}

// DetectFeatures samples golang.org/x/sys/cpu's parsed CPUID state.
func DetectFeatures() DirectMapFeatures {
	return DirectMapFeatures{
		HasHardwareRNG: cpu.X86.HasRDRAND || cpu.X86.HasRDSEED,
	}
}
