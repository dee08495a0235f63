package hammer

import "sync/atomic"

// hammerTRRespass adds an mfence at the start of each iteration and
// separates the read-all and flush-all phases, optionally preceded by
// a busy-loop that waits for a refresh-aligned rdtscp delta.
func (f *Flipper) hammerTRRespass() error {
	if f.cfg.Threshold > 0 && len(f.addrs.VirtAggs) > 0 {
		f.syncToRefresh(f.addrs.VirtAggs[:1])
	}

	for i := uint64(0); i < f.cfg.HammerCount; i++ {
		mfence()

		for _, base := range f.addrs.VirtAggs {
			_ = atomic.LoadUint64((*uint64)(ptrOf(base)))
		}
		for _, base := range f.addrs.VirtAggs {
			clflush(base)
		}
	}

	return nil
}

// syncToRefresh busy-loops an access + flush of every aggressor in
// aggs, measuring the rdtscp delta across the round, until the delta
// exceeds the configured threshold - an approximation of refresh-window
// alignment. Blacksmith uses this with the edge aggressors reserved for
// sync; every other variant calls it with a single aggressor.
func (f *Flipper) syncToRefresh(aggs []uintptr) {
	for {
		before, _ := rdtscp()
		for _, agg := range aggs {
			_ = atomic.LoadUint64((*uint64)(ptrOf(agg)))
			clflush(agg)
		}
		after, _ := rdtscp()

		if after-before > f.cfg.Threshold {
			return
		}
	}
}
