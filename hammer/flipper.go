// Package hammer implements the bit flipper: row initialization,
// the five hammer-kernel variants, and flip detection.
package hammer

import (
	"fmt"
	"log"
	"math/bits"
	"sync/atomic"
	"unsafe"

	"github.com/fault-injection-lab/dramhammer/dram"
)

// Direction is the observed transition of a flipped bit.
type Direction int

const (
	ZeroToOne Direction = iota
	OneToZero
)

func (d Direction) String() string {
	if d == ZeroToOne {
		return "0->1"
	}
	return "1->0"
}

// BitFlip is one detected bit flip.
type BitFlip struct {
	VictimPhys  uint64
	VictimBank  uint64
	VictimRow   uint64
	VictimCol   uint64
	ByteOffset  int
	BitIndex    int
	Direction   Direction
}

// HammerAddrs holds the physical row-start addresses for one hammer
// invocation, plus their resolved virtual counterparts once
// FindPages has run.
type HammerAddrs struct {
	Aggs        []uint64
	Victims     []uint64
	VirtAggs    []uintptr
	VirtVictims []uintptr
}

// PageFinder resolves a physical address to the virtual address at
// which this process has it mapped. *pagemap.Acquirer implements
// this.
type PageFinder interface {
	FindPage(physAddr uint64) (virt uintptr, ok bool)
}

// TempMonitor reads the live temperature during a hammer cycle.
// *tempctl.Controller implements this.
type TempMonitor interface {
	ActualTemperature() (int64, error)
	TargetTemperature() int64
}

// Store is the persistence collaborator. A nil Store disables
// persistence entirely; Flipper treats every method as optional via
// nil receiver checks, matching the "persistence is external, best
// effort" error-handling policy.
type Store interface {
	BeginTransaction() error
	Commit() error
	InsertTest(row TestRow) error
	InsertBitFlip(flip BitFlip) error
}

// TestRow is one hammer-and-check invocation's summary, as recorded
// by a Store.
type TestRow struct {
	VictimInit    uint64
	AggressorInit uint64
	NumFlips      int
}

// Config carries the tuning knobs threaded down from the session
// configuration that the Flipper and its variants need.
type Config struct {
	Layout       dram.Layout
	PageSize     uint64
	HammerCount  uint64
	Variant      Variant
	RowPadding   uint64
	NOPCount     int
	Threshold    uint64
	Blacksmith   BlacksmithConfig
	DebugDump    bool
	OptLogger    *log.Logger
	OptStore     Store

	// OptTempMonitor, when set, is polled once per hammer-and-check
	// cycle; an actual reading more than TempInterval degrees from
	// TargetTemperature() is a fatal temperature excursion.
	OptTempMonitor TempMonitor
	TempInterval   uint64
}

func (c Config) logger() *log.Logger {
	if c.OptLogger != nil {
		return c.OptLogger
	}
	return log.Default()
}

// Flipper drives one set of aggressor/victim rows through
// initialization, hammering, and flip detection.
type Flipper struct {
	cfg     Config
	finder  PageFinder
	addrs   HammerAddrs
}

// NewFlipper constructs a Flipper for the given physical row
// addresses. Call FindPages before Hammer.
func NewFlipper(cfg Config, finder PageFinder, addrs HammerAddrs) *Flipper {
	return &Flipper{
		cfg:    cfg,
		finder: finder,
		addrs:  addrs,
	}
}

// FindPages resolves every aggressor and victim row start to a
// virtual address. It returns an error, without mutating f.addrs,
// if any row is missing from the page finder.
func (f *Flipper) FindPages() error {
	virtAggs := make([]uintptr, len(f.addrs.Aggs))
	for i, phys := range f.addrs.Aggs {
		v, ok := f.finder.FindPage(phys)
		if !ok {
			return fmt.Errorf("aggressor row at phys 0x%x is not in the owned page map", phys)
		}
		virtAggs[i] = v
	}

	virtVictims := make([]uintptr, len(f.addrs.Victims))
	for i, phys := range f.addrs.Victims {
		v, ok := f.finder.FindPage(phys)
		if !ok {
			return fmt.Errorf("victim row at phys 0x%x is not in the owned page map", phys)
		}
		virtVictims[i] = v
	}

	f.addrs.VirtAggs = virtAggs
	f.addrs.VirtVictims = virtVictims

	return nil
}

// InitPair is one (victim_init, aggressor_init) 64-bit word pair used
// to fill rows before hammering.
type InitPair struct {
	VictimInit    uint64
	AggressorInit uint64
}

// Hammer runs one hammer-and-check cycle per InitPair: initialize
// every victim and aggressor row, run the selected variant, then scan
// every victim row for bits that differ from its init word. It
// returns true iff at least one bit flipped across all pairs.
func (f *Flipper) Hammer(pairs []InitPair) (bool, []BitFlip, error) {
	if f.cfg.OptStore != nil {
		if err := f.cfg.OptStore.BeginTransaction(); err != nil {
			f.cfg.logger().Printf("failed to begin persistence transaction: %v", err)
		}
	}

	var anyFlip bool
	var allFlips []BitFlip

	for _, pair := range pairs {
		flipped, flips, err := f.hammerAndCheck(pair)
		if err != nil {
			return anyFlip, allFlips, err
		}

		if flipped {
			anyFlip = true
		}
		allFlips = append(allFlips, flips...)

		if f.cfg.OptStore != nil {
			err := f.cfg.OptStore.InsertTest(TestRow{
				VictimInit:    pair.VictimInit,
				AggressorInit: pair.AggressorInit,
				NumFlips:      len(flips),
			})
			if err != nil {
				f.cfg.logger().Printf("failed to persist test row: %v", err)
			}

			for _, fl := range flips {
				if err := f.cfg.OptStore.InsertBitFlip(fl); err != nil {
					f.cfg.logger().Printf("failed to persist bit flip: %v", err)
				}
			}
		}
	}

	if f.cfg.OptStore != nil {
		if err := f.cfg.OptStore.Commit(); err != nil {
			f.cfg.logger().Printf("failed to commit persistence transaction: %v", err)
		}
	}

	return anyFlip, allFlips, nil
}

func (f *Flipper) hammerAndCheck(pair InitPair) (bool, []BitFlip, error) {
	initRow(f.addrs.VirtVictims, f.cfg.PageSize, pair.VictimInit)
	initRow(f.addrs.VirtAggs, f.cfg.PageSize, pair.AggressorInit)

	if err := f.runVariant(); err != nil {
		return false, nil, fmt.Errorf("hammer variant %q failed - %w", f.cfg.Variant, err)
	}

	if err := f.checkTemperature(); err != nil {
		return false, nil, err
	}

	flips := f.scanVictims(pair.VictimInit)

	if len(flips) > int(8*f.cfg.PageSize) {
		f.cfg.logger().Printf("warning: %d flips in one call exceeds 8*page_size - dumping init state", len(flips))
		f.dumpSanity(pair)
	}

	return len(flips) > 0, flips, nil
}

// initRow writes value as repeating 64-bit words across every row in
// virts, then flushes each cache line written.
func initRow(virts []uintptr, pageSize uint64, value uint64) {
	for _, base := range virts {
		for off := uint64(0); off < pageSize; off += 8 {
			ptr := (*uint64)(unsafe.Pointer(base + uintptr(off)))
			atomic.StoreUint64(ptr, value)
		}
		for off := uint64(0); off < pageSize; off += 64 {
			clflush(base + uintptr(off))
		}
	}
}

// scanVictims compares every victim row word-by-word against
// victimInit and emits one BitFlip per differing bit.
func (f *Flipper) scanVictims(victimInit uint64) []BitFlip {
	var flips []BitFlip

	for i, base := range f.addrs.VirtVictims {
		phys := f.addrs.Victims[i]
		addr := dram.FromPhys(f.cfg.Layout, phys)

		for off := uint64(0); off < f.cfg.PageSize; off += 8 {
			ptr := (*uint64)(unsafe.Pointer(base + uintptr(off)))
			word := atomic.LoadUint64(ptr)

			if word == victimInit {
				continue
			}

			diff := word ^ victimInit
			for diff != 0 {
				bit := bits.TrailingZeros64(diff)
				diff &^= 1 << uint(bit)

				flips = append(flips, BitFlip{
					VictimPhys: phys + off,
					VictimBank: addr.Bank,
					VictimRow:  addr.Row,
					VictimCol:  addr.Col,
					ByteOffset: int(off),
					BitIndex:   bit,
					Direction:  directionOf(word, bit),
				})
			}
		}
	}

	return flips
}

// checkTemperature polls OptTempMonitor, if configured, and reports a
// fatal error if the actual reading has drifted more than TempInterval
// degrees from the target - mirroring hammer_and_check's temperature
// excursion check in the original.
func (f *Flipper) checkTemperature() error {
	if f.cfg.OptTempMonitor == nil {
		return nil
	}

	actual, err := f.cfg.OptTempMonitor.ActualTemperature()
	if err != nil {
		return fmt.Errorf("failed to read temperature during hammering - %w", err)
	}

	target := f.cfg.OptTempMonitor.TargetTemperature()
	interval := int64(f.cfg.TempInterval)

	if actual <= target-interval || actual >= target+interval {
		return fmt.Errorf("temperature excursion: target %d +/- %d, actual %d", target, f.cfg.TempInterval, actual)
	}

	f.cfg.logger().Printf("current temperature: %d degrees C", actual)
	return nil
}

func directionOf(word uint64, bit int) Direction {
	if (word>>uint(bit))&1 == 1 {
		return ZeroToOne
	}
	return OneToZero
}

func (f *Flipper) dumpSanity(pair InitPair) {
	l := f.cfg.logger()
	l.Printf("victim_init=0x%x aggressor_init=0x%x", pair.VictimInit, pair.AggressorInit)

	for i, base := range f.addrs.VirtVictims {
		word := atomic.LoadUint64((*uint64)(unsafe.Pointer(base)))
		l.Printf("victim[%d] phys=0x%x first_word=0x%x", i, f.addrs.Victims[i], word)
	}

	for i, base := range f.addrs.VirtAggs {
		word := atomic.LoadUint64((*uint64)(unsafe.Pointer(base)))
		l.Printf("aggressor[%d] phys=0x%x first_word=0x%x", i, f.addrs.Aggs[i], word)
	}
}
