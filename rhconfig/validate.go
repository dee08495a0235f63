package rhconfig

import "fmt"

// Validate checks the cross-field invariants read() alone cannot
// express: mask shapes, and which allocator/algorithm names are
// recognized.
func (c Config) Validate() error {
	if err := c.DRAMLayout.Validate(); err != nil {
		return fmt.Errorf("dram_layout - %w", err)
	}

	switch c.MemoryAllocator {
	case "contiguous", "noncontiguous":
	default:
		return fmt.Errorf("unknown memory_allocator %q", c.MemoryAllocator)
	}

	switch c.IterAlgorithm {
	case "default", "fast", "debug":
	default:
		return fmt.Errorf("unknown iter_algorithm %q", c.IterAlgorithm)
	}

	if len(c.AggressorInit) != 0 && len(c.AggressorInit) != len(c.VictimInit) {
		return fmt.Errorf("aggressor_init has %d entries, victim_init has %d - they must match when both are set", len(c.AggressorInit), len(c.VictimInit))
	}

	banksCnt := uint64(1) << uint(len(c.DRAMLayout.HFns))
	for _, b := range c.Banks {
		if b >= banksCnt {
			return fmt.Errorf("bank %d is out of range - the configured dram_layout has %d banks [0, %d]", b, banksCnt, banksCnt-1)
		}
	}

	if _, _, err := c.HammerPattern(); err != nil {
		return fmt.Errorf("hammer_pattern - %w", err)
	}

	return nil
}
