package hammer

import "sync/atomic"

// hammerAssembly issues mov+clflush per aggressor, repeated
// hammer_count times. With only CLFLUSH available, each access is
// flushed immediately; with CLFLUSHOPT, every aggressor is accessed
// before any of them is flushed, since CLFLUSHOPT is weakly ordered
// and does not need to be interleaved with the access it follows.
func (f *Flipper) hammerAssembly() error {
	interleaved := !hasCLFLUSHOpt()

	for i := uint64(0); i < f.cfg.HammerCount; i++ {
		if interleaved {
			for _, base := range f.addrs.VirtAggs {
				_ = atomic.LoadUint64((*uint64)(ptrOf(base)))
				clflush(base)
			}
			continue
		}

		for _, base := range f.addrs.VirtAggs {
			_ = atomic.LoadUint64((*uint64)(ptrOf(base)))
		}
		for _, base := range f.addrs.VirtAggs {
			clflushopt(base)
		}
	}

	return nil
}
