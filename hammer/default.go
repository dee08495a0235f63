package hammer

import "sync/atomic"

// hammerDefault is the reference algorithm: for hammer_count
// iterations, read one word from every aggressor, then clflush each.
func (f *Flipper) hammerDefault() error {
	for i := uint64(0); i < f.cfg.HammerCount; i++ {
		for _, base := range f.addrs.VirtAggs {
			_ = atomic.LoadUint64((*uint64)(ptrOf(base)))
		}
		for _, base := range f.addrs.VirtAggs {
			clflush(base)
		}
	}

	return nil
}
