// Package validator replays previously recorded aggressor/victim
// address sets against freshly allocated memory, to confirm that a
// flip found on one boot still reproduces on another.
package validator

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fault-injection-lab/dramhammer/hammer"
	"github.com/fault-injection-lab/dramhammer/rhconfig"
)

const (
	pageSize    = 4 * 1024
	pagesPerRow = 2
	rowSize     = pageSize * pagesPerRow
)

// AddrSet is one recorded hammer target: a label for logging and the
// physical addresses of its aggressor rows and victim row.
type AddrSet struct {
	Label  string
	Addrs  hammer.HammerAddrs
}

// ReadAddrFile parses an address file: one comma-separated record per
// line, "<label>,<agg1_hex>,...,<aggN_hex>,<victim_hex>". The victim
// address is floored to the start of its row, matching the original's
// "(addr / row_size) * row_size".
func ReadAddrFile(path string) ([]AddrSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open address file %q - %w", path, err)
	}
	defer f.Close()

	return parseAddrFile(f)
}

func parseAddrFile(r io.Reader) ([]AddrSet, error) {
	var sets []AddrSet

	scanner := bufio.NewScanner(r)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		cols := strings.Split(line, ",")
		if len(cols) < 3 {
			return nil, fmt.Errorf("line %d: expected \"label,agg1,...,aggN,victim\", got %q", lineNum, line)
		}

		aggTokens := cols[1 : len(cols)-1]
		aggs := make([]uint64, len(aggTokens))
		for i, tok := range aggTokens {
			v, err := strconv.ParseUint(strings.TrimSpace(tok), 16, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad aggressor address %q - %w", lineNum, tok, err)
			}
			aggs[i] = v
		}

		victim, err := strconv.ParseUint(strings.TrimSpace(cols[len(cols)-1]), 16, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad victim address %q - %w", lineNum, cols[len(cols)-1], err)
		}
		victim = (victim / rowSize) * rowSize

		sets = append(sets, AddrSet{
			Label: strings.TrimSpace(cols[0]),
			Addrs: hammer.HammerAddrs{
				Aggs:    aggs,
				Victims: []uint64{victim},
			},
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read address file - %w", err)
	}

	return sets, nil
}

// Result is the outcome of replaying one AddrSet.
type Result struct {
	Set     AddrSet
	Found   bool
	Flipped bool
	Flips   []hammer.BitFlip
}

// Replay runs a hammer-and-check cycle for every AddrSet against the
// given page owner, bypassing pattern expansion entirely: each set's
// addresses are hammered exactly as recorded, matching the original's
// direct BitFlipper(a) construction in validator.cpp's main loop.
func Replay(cfg rhconfig.Config, owner hammer.PageFinder, sets []AddrSet) ([]Result, error) {
	pairs := initPairs(cfg)
	hammerCfg := hammerConfig(cfg)

	results := make([]Result, 0, len(sets))
	for _, set := range sets {
		flipper := hammer.NewFlipper(hammerCfg, owner, set.Addrs)

		if err := flipper.FindPages(); err != nil {
			results = append(results, Result{Set: set, Found: false})
			continue
		}

		flipped, flips, err := flipper.Hammer(pairs)
		if err != nil {
			return results, fmt.Errorf("replay of %q failed - %w", set.Label, err)
		}

		results = append(results, Result{
			Set:     set,
			Found:   true,
			Flipped: flipped,
			Flips:   flips,
		})
	}

	return results, nil
}

func initPairs(cfg rhconfig.Config) []hammer.InitPair {
	pairs := make([]hammer.InitPair, len(cfg.VictimInit))
	for i, v := range cfg.VictimInit {
		pairs[i] = hammer.InitPair{VictimInit: v, AggressorInit: cfg.AggressorInit[i]}
	}
	return pairs
}

func hammerConfig(cfg rhconfig.Config) hammer.Config {
	return hammer.Config{
		Layout:      cfg.DRAMLayout,
		PageSize:    pageSize,
		HammerCount: cfg.HammerCount,
		Variant:     cfg.HammerAlgorithm,
		RowPadding:  cfg.RowPadding,
		NOPCount:    cfg.NOPCount,
		Threshold:   cfg.Threshold,
		DebugDump:   cfg.DebugDump,
		Blacksmith: hammer.BlacksmithConfig{
			HammerOrder:         cfg.HammerOrder,
			NumAggsForSync:      cfg.NumAggsForSync,
			TotalNumActivations: cfg.TotalNumActivations,
			Flushing:            cfg.Flushing,
			Fencing:             cfg.Fencing,
		},
	}
}
