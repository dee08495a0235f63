package hammer

// clflush evicts the cache line containing addr from all cache
// levels.
//
//go:noescape
func clflush(addr uintptr)

// clflushopt is the weakly-ordered counterpart of clflush. Callers
// must issue their own mfence/lfence where ordering matters.
//
//go:noescape
func clflushopt(addr uintptr)

// mfence is a full memory fence.
//
//go:noescape
func mfence()

// lfence is a load fence.
//
//go:noescape
func lfence()

// rdtscp reads the processor timestamp counter and the value of
// IA32_TSC_AUX (used here only to force serialization relative to
// preceding instructions, per the instruction's defined behavior).
//
//go:noescape
func rdtscp() (tsc uint64, aux uint32)
