package hammer

import "fmt"

// Variant selects the hammer-kernel strategy. Selection is dispatched
// once per Hammer() call, not per iteration, per the tagged-variant
// design used throughout this package in place of virtual dispatch.
type Variant string

const (
	Default     Variant = "default"
	TRRespass   Variant = "trrespass"
	Assembly    Variant = "assembly"
	MachineCode Variant = "machinecode"
	Blacksmith  Variant = "blacksmith"
)

// FlushPolicy selects when a Blacksmith-variant aggressor access is
// flushed relative to its neighbors.
type FlushPolicy string

const (
	FlushEarliestPossible FlushPolicy = "earliest_possible"
	FlushLatestPossible   FlushPolicy = "latest_possible"
)

// FencePolicy selects when a Blacksmith-variant mfence is issued.
// FenceEarliestPossible is accepted for configuration compatibility
// but has no effect - the original tool declares the option without
// implementing it, and this port preserves that rather than silently
// reinterpreting it.
type FencePolicy string

const (
	FenceEarliestPossible FencePolicy = "earliest_possible"
	FenceLatestPossible   FencePolicy = "latest_possible"
)

// BlacksmithConfig holds the Blacksmith-variant-specific tuning
// parameters.
type BlacksmithConfig struct {
	HammerOrder         []int
	NumAggsForSync      int
	TotalNumActivations uint64
	Flushing            FlushPolicy
	Fencing             FencePolicy
}

func (f *Flipper) runVariant() error {
	switch f.cfg.Variant {
	case Default, "":
		return f.hammerDefault()
	case TRRespass:
		return f.hammerTRRespass()
	case Assembly:
		return f.hammerAssembly()
	case MachineCode:
		return f.hammerMachineCode()
	case Blacksmith:
		return f.hammerBlacksmith()
	default:
		return fmt.Errorf("unsupported hammer variant: %q", f.cfg.Variant)
	}
}

// hasCLFLUSHOpt reports whether the running CPU supports CLFLUSHOPT.
// Variants that care about flush ordering branch on this once,
// outside their hot loop.
var hasCLFLUSHOpt = detectCLFLUSHOpt

func (f *Flipper) flushAgg(addr uintptr) {
	if hasCLFLUSHOpt() {
		clflushopt(addr)
		return
	}
	clflush(addr)
}
