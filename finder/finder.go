// Package finder drives a flip-search session: picking hammer targets
// out of the owned physical memory region per the configured memory
// allocator, running the configured iteration algorithm over them, and
// repeating across experiment repetitions and target temperatures.
package finder

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/fault-injection-lab/dramhammer/dram"
	"github.com/fault-injection-lab/dramhammer/hammer"
	"github.com/fault-injection-lab/dramhammer/hammerpat"
	"github.com/fault-injection-lab/dramhammer/rhconfig"
	"github.com/fault-injection-lab/dramhammer/tempctl"
)

const (
	pageSize    = 4 * 1024
	pagesPerRow = 2
)

func physToPage(phys uint64) uint32 {
	return uint32(phys >> 12)
}

func pageToPhys(page uint32) uint64 {
	return uint64(page) << 12
}

// PageOwner is everything a Finder needs from the acquired physical
// memory region. *pagemap.Acquirer implements this.
type PageOwner interface {
	hammer.PageFinder
	SortedFrames() []uint32
	Contains(frame uint32) bool
}

// ExperimentRecorder brackets each repetition with a database row.
// *rhstore.Store implements this. A nil ExperimentRecorder disables
// experiment bookkeeping, matching the original's `#ifdef USE_DB`.
type ExperimentRecorder interface {
	StartExperiment(aggressorRows, hammerCount uint64, targetTemp int64, comment string) (int64, error)
	EndExperiment() error
}

// Deps carries the Finder's collaborators beyond the session
// configuration. Owner is required; the rest are optional.
type Deps struct {
	Owner       PageOwner
	OptTemp     *tempctl.Controller
	OptRecorder ExperimentRecorder
	OptStore    hammer.Store
	OptLogger   *log.Logger
}

// Finder holds the state shared by every memory-allocator strategy:
// the resolved configuration, the expanded hammer pattern, and the
// cooperative-cancellation flag toggled by SIGINT or a test-max-time
// deadline.
type Finder struct {
	cfg        rhconfig.Config
	deps       Deps
	pattern    hammerpat.Pattern
	victimRows uint32
	hammerRows uint32
	doExit     atomic.Bool
}

// newBase expands the configured hammer pattern and builds the shared
// Finder state. Both ContiguousFinder and NoncontiguousFinder embed
// this rather than duplicating it, mirroring FlipFinder as the common
// base of the original's two concrete finders.
func newBase(cfg rhconfig.Config, deps Deps) (*Finder, error) {
	pattern, adjustedAggRows, err := cfg.HammerPattern()
	if err != nil {
		return nil, fmt.Errorf("failed to expand hammer pattern - %w", err)
	}
	cfg.AggressorRows = adjustedAggRows

	return &Finder{
		cfg:        cfg,
		deps:       deps,
		pattern:    pattern,
		victimRows: victimCount(pattern),
		hammerRows: uint32(len(pattern.Bits)),
	}, nil
}

func victimCount(p hammerpat.Pattern) uint32 {
	n := uint32(0)
	for _, b := range p.Bits {
		if !b {
			n++
		}
	}
	return n
}

func (f *Finder) logger() *log.Logger {
	if f.deps.OptLogger != nil {
		return f.deps.OptLogger
	}
	return log.Default()
}

// tempMonitor wraps f.deps.OptTemp as a hammer.TempMonitor, leaving the
// interface genuinely nil when no controller is connected - assigning
// a nil *tempctl.Controller straight to the interface field would
// instead produce a non-nil interface wrapping a nil pointer.
func (f *Finder) tempMonitor() hammer.TempMonitor {
	if f.deps.OptTemp == nil {
		return nil
	}
	return f.deps.OptTemp
}

func (f *Finder) hammerConfig() hammer.Config {
	return hammer.Config{
		Layout:      f.cfg.DRAMLayout,
		PageSize:    pageSize,
		HammerCount: f.cfg.HammerCount,
		Variant:     f.cfg.HammerAlgorithm,
		RowPadding:  f.cfg.RowPadding,
		NOPCount:    f.cfg.NOPCount,
		Threshold:   f.cfg.Threshold,
		DebugDump:   f.cfg.DebugDump,
		Blacksmith: hammer.BlacksmithConfig{
			HammerOrder:         f.cfg.HammerOrder,
			NumAggsForSync:      f.cfg.NumAggsForSync,
			TotalNumActivations: f.cfg.TotalNumActivations,
			Flushing:            f.cfg.Flushing,
			Fencing:             f.cfg.Fencing,
		},
		OptLogger:      f.deps.OptLogger,
		OptStore:       f.deps.OptStore,
		OptTempMonitor: f.tempMonitor(),
		TempInterval:   f.cfg.Interval,
	}
}

func (f *Finder) initPairs() []hammer.InitPair {
	pairs := make([]hammer.InitPair, len(f.cfg.VictimInit))
	for i, v := range f.cfg.VictimInit {
		pairs[i] = hammer.InitPair{VictimInit: v, AggressorInit: f.cfg.AggressorInit[i]}
	}
	return pairs
}

// runHammerCycle resolves aggs/victims to virtual pages and runs one
// full round of hammer-and-check across every configured init pair.
// It returns false without error if the run was cancelled.
func (f *Finder) runHammerCycle(aggs, victims []uint64) (bool, error) {
	if f.doExit.Load() {
		return false, nil
	}

	flipper := hammer.NewFlipper(f.hammerConfig(), f.deps.Owner, hammer.HammerAddrs{
		Aggs:    aggs,
		Victims: victims,
	})

	if err := flipper.FindPages(); err != nil {
		return false, fmt.Errorf("could not find physical pages - %w", err)
	}

	firstRow := dram.FromPhys(f.cfg.DRAMLayout, aggs[0]).Row
	lastRow := dram.FromPhys(f.cfg.DRAMLayout, aggs[len(aggs)-1]).Row
	f.logger().Printf("hammer %d aggressors (rows [%d, %d])...", len(aggs), firstRow, lastRow)

	if _, _, err := flipper.Hammer(f.initPairs()); err != nil {
		return false, fmt.Errorf("hammer failed - %w", err)
	}

	return true, nil
}

// repetitionLoop runs iterAlgorithm once per configured experiment
// repetition, bracketing each with an optional database row and an
// optional test-max-time deadline.
func (f *Finder) repetitionLoop(iterAlgorithm func(), targetTemp int64) {
	for rep := uint32(0); rep < f.cfg.ExperimentRepetitions; rep++ {
		if f.deps.OptRecorder != nil {
			id, err := f.deps.OptRecorder.StartExperiment(uint64(f.cfg.AggressorRows), f.cfg.HammerCount, targetTemp, f.cfg.ExperimentComment)
			if err != nil {
				f.logger().Printf("failed to start experiment record: %v", err)
			} else {
				f.logger().Printf("experiment id: %d", id)
			}
		}

		f.doExit.Store(false)

		var stopTimer *time.Timer
		if f.cfg.TestMaxTime > 0 {
			stopTimer = time.AfterFunc(f.cfg.TestMaxTime, func() {
				f.doExit.Store(true)
			})
		}

		iterAlgorithm()

		if stopTimer != nil {
			stopTimer.Stop()
		}

		if f.deps.OptRecorder != nil {
			if err := f.deps.OptRecorder.EndExperiment(); err != nil {
				f.logger().Printf("failed to end experiment record: %v", err)
			}
		}
	}
}

// experimentLoop installs a SIGINT handler for the duration of the
// search, then either walks every configured target temperature (if
// a temperature controller is configured) or runs repetitionLoop once
// at whatever temperature the hardware happens to be at.
func (f *Finder) experimentLoop(iterAlgorithm func()) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			f.doExit.Store(true)
		case <-done:
		}
	}()
	defer close(done)

	if len(f.cfg.TargetTemps) == 0 {
		f.repetitionLoop(iterAlgorithm, 0)
		return nil
	}

	f.logger().Printf("using temperature controller...")
	if f.deps.OptTemp == nil {
		return fmt.Errorf("target_temps is configured but no temperature controller is connected")
	}

	for _, target := range f.cfg.TargetTemps {
		if err := f.deps.OptTemp.SetTargetTemperature(target); err != nil {
			return fmt.Errorf("failed to set target temperature - %w", err)
		}

		f.doExit.Store(false)
		cancel := make(chan struct{})
		stopWatch := make(chan struct{})
		go func() {
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-stopWatch:
					return
				case <-ticker.C:
					if f.doExit.Load() {
						close(cancel)
						return
					}
				}
			}
		}()

		reached, err := tempctl.WaitForTemperature(f.deps.OptTemp, target, f.cfg.Timeout, cancel)
		close(stopWatch)
		if err != nil {
			return fmt.Errorf("failed to poll temperature - %w", err)
		}

		if f.doExit.Load() {
			_ = f.deps.OptTemp.SetTargetTemperature(20)
			return nil
		}

		if !reached {
			_ = f.deps.OptTemp.SetTargetTemperature(20)
			return fmt.Errorf("timeout: could not reach target temperature %d within %v", target, f.cfg.Timeout)
		}

		f.repetitionLoop(iterAlgorithm, target)
	}

	_ = f.deps.OptTemp.SetTargetTemperature(20)
	return nil
}
