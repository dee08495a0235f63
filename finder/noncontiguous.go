package finder

import (
	"sort"

	"github.com/fault-injection-lab/dramhammer/dram"
	"github.com/fault-injection-lab/dramhammer/rhconfig"
)

// NoncontiguousFinder hammers rows wherever they fall in the owned
// physical memory region, skipping any row with a missing page
// within row_padding of the window being tested.
type NoncontiguousFinder struct {
	*Finder

	missingRows map[uint64]map[uint64]bool
}

// NewNoncontiguousFinder builds a NoncontiguousFinder over owner's
// memory.
func NewNoncontiguousFinder(cfg rhconfig.Config, deps Deps) (*NoncontiguousFinder, error) {
	base, err := newBase(cfg, deps)
	if err != nil {
		return nil, err
	}

	return &NoncontiguousFinder{Finder: base}, nil
}

func (n *NoncontiguousFinder) pageBounds() (firstPage, lastPage uint32) {
	frames := n.deps.Owner.SortedFrames()
	return frames[0], frames[len(frames)-1]
}

// rowBounds finds the lowest and highest row owned in bank, assuming
// (as the physical-to-DRAM mapping guarantees) that a higher row
// never has a lower physical address.
func (n *NoncontiguousFinder) rowBounds(bank uint64, firstPage, lastPage uint32) (firstRow, lastRow uint64) {
	firstRow = ^uint64(0)

	for p := firstPage; p <= lastPage; p++ {
		if !n.deps.Owner.Contains(p) {
			continue
		}
		addr := dram.FromPhys(n.cfg.DRAMLayout, pageToPhys(p))
		if addr.Bank == bank {
			firstRow = addr.Row
			break
		}
		if p == lastPage {
			break
		}
	}

	for p := lastPage; ; p-- {
		if n.deps.Owner.Contains(p) {
			addr := dram.FromPhys(n.cfg.DRAMLayout, pageToPhys(p))
			if addr.Bank == bank {
				lastRow = addr.Row
				break
			}
		}
		if p == firstPage {
			break
		}
	}

	if n.cfg.TestFirstRow != 0 && n.cfg.TestFirstRow > firstRow {
		firstRow = n.cfg.TestFirstRow
	}
	if n.cfg.TestLastRow != 0 && n.cfg.TestLastRow < lastRow {
		lastRow = n.cfg.TestLastRow
	}

	return firstRow, lastRow
}

// findMissingRows records, per bank, every row with at least one page
// missing from the owned region between firstPage and lastPage.
func (n *NoncontiguousFinder) findMissingRows(firstPage, lastPage uint32) {
	n.missingRows = make(map[uint64]map[uint64]bool)

	for page := firstPage; ; page++ {
		if !n.deps.Owner.Contains(page) {
			addr := dram.FromPhys(n.cfg.DRAMLayout, pageToPhys(page))
			if n.missingRows[addr.Bank] == nil {
				n.missingRows[addr.Bank] = make(map[uint64]bool)
			}
			n.missingRows[addr.Bank][addr.Row] = true
		}
		if page == lastPage {
			break
		}
	}
}

// isAnyRowMissing reports whether any row in
// [firstRow-row_padding, lastRow+row_padding] is missing a page, to
// prevent hammering into memory this process does not own.
func (n *NoncontiguousFinder) isAnyRowMissing(bank uint64, firstRow, lastRow uint64) bool {
	missing := n.missingRows[bank]
	if len(missing) == 0 {
		return false
	}

	padding := n.cfg.RowPadding
	lo := firstRow - padding
	if padding > firstRow {
		lo = 0
	}
	hi := lastRow + padding

	rows := make([]uint64, 0, len(missing))
	for row := range missing {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i] < rows[j] })

	for _, row := range rows {
		if row < lo {
			continue
		}
		return row <= hi
	}
	return false
}

func (n *NoncontiguousFinder) hammer(bank uint64, firstVictim, lastVictim uint64) (bool, error) {
	if n.isAnyRowMissing(bank, firstVictim, lastVictim) {
		return true, nil
	}

	var aggs, victims []uint64

	offset := uint64(0)
	for _, isAgg := range n.pattern.Bits {
		phys := dram.PhysChecked(n.cfg.DRAMLayout, dram.Addr{Bank: bank, Row: firstVictim + offset, Col: 0}, n.logger())

		if isAgg {
			aggs = append(aggs, phys)
		} else {
			victims = append(victims, phys)
		}
		offset++
	}

	ok, err := n.runHammerCycle(aggs, victims)
	if err != nil {
		return false, err
	}

	return ok && !n.doExit.Load(), nil
}

// defaultTest advances one row per iteration, so a row is hammered
// multiple times as the window slides past it (like TRRespass).
func (n *NoncontiguousFinder) defaultTest(bank uint64, firstRow, lastRow uint64) (bool, error) {
	if lastRow+1 < uint64(n.hammerRows) {
		return true, nil
	}
	for row := firstRow; row <= lastRow-uint64(n.hammerRows)+1; row++ {
		ok, err := n.hammer(bank, row, row+uint64(n.hammerRows)-1)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// fastTest hammers every row in only one pass, so each row is
// hammered at most once. It does not test the last few rows in a
// block if the block is shorter than hammer_rows.
func (n *NoncontiguousFinder) fastTest(bank uint64, firstRow, lastRow uint64) (bool, error) {
	if lastRow+1 < uint64(n.hammerRows) {
		return true, nil
	}
	for row := firstRow; row <= lastRow-uint64(n.hammerRows)+1; row += uint64(n.hammerRows) - 1 {
		firstVictim := row
		lastVictim := row + uint64(n.hammerRows) - 1

		ok, err := n.hammer(bank, firstVictim, lastVictim)
		if err != nil || !ok {
			return false, err
		}
		ok, err = n.hammer(bank, firstVictim+1, lastVictim+1)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// debugTest hammers half the rows in only the first bank, for
// debugging.
func (n *NoncontiguousFinder) debugTest(bank uint64, firstRow, lastRow uint64) (bool, error) {
	if lastRow+1 < uint64(n.hammerRows) {
		return false, nil
	}
	for row := firstRow; row <= lastRow-uint64(n.hammerRows)+1; row += uint64(n.hammerRows) - 1 {
		ok, err := n.hammer(bank, row, row+uint64(n.hammerRows)-1)
		if err != nil || !ok {
			return false, err
		}
	}
	return false, nil // test only the first bank
}

// FindFlips picks the configured iteration algorithm, determines the
// row bounds per bank, and runs the experiment loop over them.
func (n *NoncontiguousFinder) FindFlips() error {
	firstPage, lastPage := n.pageBounds()
	n.findMissingRows(firstPage, lastPage)

	var loopErr error
	err := n.experimentLoop(func() {
		for _, bank := range n.cfg.Banks {
			firstRow, lastRow := n.rowBounds(bank, firstPage, lastPage)

			n.logger().Printf("testing bank %d: rows [%d, %d], missing rows: %d", bank, firstRow, lastRow, len(n.missingRows[bank]))

			var cont bool
			var err error
			switch n.cfg.IterAlgorithm {
			case "fast":
				cont, err = n.fastTest(bank, firstRow, lastRow)
			case "debug":
				cont, err = n.debugTest(bank, firstRow, lastRow)
			default:
				cont, err = n.defaultTest(bank, firstRow, lastRow)
			}
			if err != nil {
				loopErr = err
				return
			}
			if !cont {
				return
			}
		}
	})
	if err != nil {
		return err
	}
	return loopErr
}
