// Package seed derives a deterministic vector of per-work-item RNG seeds
// from a single master seed (spec.md §4.B).
package seed

// Source draws deterministic seed vectors, grass timers and uniform
// integers from a master seed. It is not safe for concurrent use; the CPU
// CLI draws grass timers, agent placement and the seed vector from one
// Source on a single goroutine.
type Source struct {
	rng *mt19937_64
}

// NewSource creates a Source seeded with the given master seed.
func NewSource(masterSeed uint32) *Source {
	return &Source{rng: newMT19937_64(uint64(masterSeed))}
}

// Generate draws n uint64 seeds, each scaled from the host PRNG's
// next double by 2^64, matching the original's
// "(cl_ulong) (g_rand_double(rng) * CL_ULONG_MAX)" construction.
func (s *Source) Generate(n int) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = uint64(s.rng.nextDouble() * 18446744073709551615.0)
	}
	return out
}

// NextGrassTimerCPU draws a CPU-driver grass timer value: alive (0) with
// probability 1/2, otherwise a countdown drawn uniformly from
// [1, grassRestart] inclusive. Grounded on
// original_source/pp/pp_cpu.c's g_rand_int_range(rng, 1, grass_restart+1).
func (s *Source) NextGrassTimerCPU(grassRestart int) uint32 {
	if s.intRange(0, 2) == 0 {
		return 0
	}
	return uint32(s.intRange(1, grassRestart+1))
}

// NextGrassTimerGPU draws the legacy GPU-driver grass timer value: alive (0)
// with probability 1/2, otherwise a countdown drawn uniformly from
// [1, grassRestart) exclusive of grassRestart — the GPU driver's legacy
// behavior, preserved distinct from the CPU driver's per spec.md §9.
func (s *Source) NextGrassTimerGPU(grassRestart int) uint32 {
	if s.intRange(0, 2) == 0 {
		return 0
	}
	return uint32(s.intRange(1, grassRestart))
}

// IntRange draws a uniform integer in [lo, hi), the same general-purpose
// primitive the original uses directly for agent placement and energy
// (original_source/pp/pp_cpu.c's g_rand_int_range calls outside of grass
// initialization), exposed here for host-side setup code outside this
// package.
func (s *Source) IntRange(lo, hi int) int {
	return s.intRange(lo, hi)
}

// intRange draws a uniform integer in [lo, hi).
func (s *Source) intRange(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	span := uint64(hi - lo)
	return lo + int(uint64(s.rng.nextDouble()*float64(span)))
}
