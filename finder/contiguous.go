package finder

import (
	"fmt"
	"log"
	"sort"

	"github.com/fault-injection-lab/dramhammer/dram"
	"github.com/fault-injection-lab/dramhammer/rhconfig"
)

// ContiguousFinder hammers rows drawn from one contiguous run of
// physically-adjacent owned pages, grouped by bank.
type ContiguousFinder struct {
	*Finder

	hammerPages  uint64
	pagesPerBank uint64
	banks        map[uint64][]uint64
}

// NewContiguousFinder builds a ContiguousFinder over owner's memory.
func NewContiguousFinder(cfg rhconfig.Config, deps Deps) (*ContiguousFinder, error) {
	base, err := newBase(cfg, deps)
	if err != nil {
		return nil, err
	}

	return &ContiguousFinder{
		Finder:      base,
		hammerPages: uint64(base.hammerRows) * pagesPerRow,
	}, nil
}

// findRun finds the first run of consecutive owned pages at least
// minLength long, scanning the owned frames in ascending order.
func findRun(owner PageOwner, minLength uint64) (firstPage, lastPage uint32, ok bool) {
	frames := owner.SortedFrames()
	prevPage := ^uint32(0) // wraps to 0 on the first +1 comparison

	for _, page := range frames {
		if page != prevPage+1 {
			firstPage = page
		} else {
			lastPage = page
			if lastPage > firstPage && uint64(lastPage-firstPage) > minLength {
				return firstPage, lastPage, true
			}
		}
		prevPage = page
	}

	return 0, 0, false
}

// findRunFixed finds the run of consecutive owned pages starting
// exactly at firstPage.
func findRunFixed(owner PageOwner, firstPage uint32, minLength uint64) (lastPage uint32, ok bool) {
	frames := owner.SortedFrames()
	maxFrame := frames[len(frames)-1]

	lastPage = firstPage
	for page := firstPage; page <= maxFrame; page++ {
		if owner.Contains(page) {
			lastPage = page
		} else {
			break
		}
	}

	return lastPage, uint64(lastPage-firstPage) > minLength
}

// findFirstPageInRow returns the lowest physical address, across
// every bank, that maps to row under layout.
func findFirstPageInRow(layout dram.Layout, row uint64, logger *log.Logger) uint64 {
	minPhys := ^uint64(0)

	for bank := uint64(0); bank < banksCount(layout); bank++ {
		phys := dram.PhysChecked(layout, dram.Addr{Bank: bank, Row: row, Col: 0}, logger)
		if phys < minPhys {
			minPhys = phys
		}
	}

	return minPhys
}

func banksCount(layout dram.Layout) uint64 {
	return 1 << uint(len(layout.HFns))
}

func (c *ContiguousFinder) determinePageRange() (firstPage, lastPage uint32, err error) {
	banksCnt := banksCount(c.cfg.DRAMLayout)
	firstRow := c.cfg.TestFirstRow

	if firstRow == 0 {
		c.logger().Printf("determining contiguous pages...")

		var ok bool
		firstPage, lastPage, ok = findRun(c.deps.Owner, banksCnt*c.cfg.TestMinRows*pagesPerRow)
		if !ok {
			return 0, 0, fmt.Errorf("could not find run of minimum length")
		}

		// skip a row so we are sure we own every page of the first
		// row, and to reduce the chance of flipping a bit owned by
		// another process.
		firstRow = dram.FromPhys(c.cfg.DRAMLayout, pageToPhys(firstPage)).Row + 1
	}

	c.logger().Printf("determining contiguous pages starting at row %d...", firstRow)

	firstPagePhys := findFirstPageInRow(c.cfg.DRAMLayout, firstRow, c.logger())
	firstPage = physToPage(firstPagePhys)

	if _, ok := c.deps.Owner.FindPage(firstPagePhys); !ok {
		return 0, 0, fmt.Errorf("could not find first row %d", firstRow)
	}

	lastPage, ok := findRunFixed(c.deps.Owner, firstPage, banksCnt*c.cfg.TestMinRows*pagesPerRow)
	if !ok {
		return 0, 0, fmt.Errorf("could not find %d rows starting at row %d", c.cfg.TestMinRows, firstRow)
	}

	if c.cfg.TestLastRow > 0 {
		lastPagePhys := findFirstPageInRow(c.cfg.DRAMLayout, c.cfg.TestLastRow+1, c.logger()) - 1
		if p := physToPage(lastPagePhys); p < lastPage {
			lastPage = p
		}
	}

	if c.cfg.TestMaxRows > 0 {
		lastPagePhys := findFirstPageInRow(c.cfg.DRAMLayout, dram.FromPhys(c.cfg.DRAMLayout, pageToPhys(firstPage)).Row+c.cfg.TestMaxRows, c.logger()) - 1
		if p := physToPage(lastPagePhys); p < lastPage {
			lastPage = p
		}
	}

	pagesCnt := uint64(lastPage-firstPage) + 1
	rowsCnt := pagesCnt / (pagesPerRow * banksCnt)
	c.logger().Printf("found %d contiguous pages", pagesCnt)
	c.logger().Printf("test %d rows/bank...", rowsCnt)

	c.pagesPerBank = pagesCnt / banksCnt

	if c.pagesPerBank < c.hammerPages {
		return 0, 0, fmt.Errorf("expected at least %d pages per bank, got %d pages per bank", c.hammerPages, c.pagesPerBank)
	}

	return firstPage, lastPage, nil
}

// hammer builds one hammer window out of pages[pagesBegin:pagesEnd]
// per the expanded pattern and runs it.
func (c *ContiguousFinder) hammer(bank uint64, pages []uint64, pagesBegin, pagesEnd int) (bool, error) {
	if c.doExit.Load() {
		return false, nil
	}

	var aggs, victims []uint64

	offset := 0
	for _, isAgg := range c.pattern.Bits {
		i := pagesBegin + offset*pagesPerRow
		if i+1 >= pagesEnd {
			return false, fmt.Errorf("pattern window runs past pages_end (bank %d)", bank)
		}

		p0 := pages[i]
		p1 := pages[i+1]
		if p1-p0 != pageSize {
			return false, fmt.Errorf("pages %d and %d in bank %d row are not adjacent", p0, p1, bank)
		}

		if isAgg {
			aggs = append(aggs, p0)
		} else {
			victims = append(victims, p0)
		}
		offset++
	}

	return c.runHammerCycle(aggs, victims)
}

func sortedBanks(banks map[uint64][]uint64) []uint64 {
	out := make([]uint64, 0, len(banks))
	for b := range banks {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// defaultTest advances one row per iteration, so a row is hammered
// multiple times as the window slides past it (like TRRespass).
func (c *ContiguousFinder) defaultTest() {
	for offset := uint64(0); offset <= c.pagesPerBank-c.hammerPages; offset += pagesPerRow {
		for _, bank := range sortedBanks(c.banks) {
			pages := c.banks[bank]
			pagesEnd := int(offset) + int(c.hammerPages)
			if pagesEnd > len(pages) {
				c.logger().Printf("pages_end (%d) > len(pages) (%d)", pagesEnd, len(pages))
				return
			}

			ok, err := c.hammer(bank, pages, int(offset), pagesEnd)
			if err != nil {
				c.logger().Printf("hammer failed: %v", err)
				return
			}
			if !ok {
				return
			}
		}
	}
}

// fastTest hammers every row in only one pass, so each row is
// hammered at most once.
func (c *ContiguousFinder) fastTest() {
	for offset := uint64(0); offset <= c.pagesPerBank-c.hammerPages; offset += c.hammerPages - pagesPerRow {
		for _, bank := range sortedBanks(c.banks) {
			pages := c.banks[bank]
			begin := int(offset)
			end := begin + int(c.hammerPages)
			if end > len(pages) {
				continue
			}

			if _, err := c.hammer(bank, pages, begin, end); err != nil {
				c.logger().Printf("hammer failed: %v", err)
			}

			begin += pagesPerRow
			end += pagesPerRow
			if end <= len(pages) {
				ok, err := c.hammer(bank, pages, begin, end)
				if err != nil {
					c.logger().Printf("hammer failed: %v", err)
					return
				}
				if !ok {
					return
				}
			}
		}
	}
}

// debugTest hammers half the rows in only the first bank, for
// debugging.
func (c *ContiguousFinder) debugTest() {
	banks := sortedBanks(c.banks)
	if len(banks) == 0 {
		return
	}
	bank := banks[0]
	pages := c.banks[bank]

	for offset := uint64(0); offset <= c.pagesPerBank-c.hammerPages; offset += c.hammerPages - pagesPerRow {
		begin := int(offset)
		end := begin + int(c.hammerPages)
		if end > len(pages) {
			return
		}

		ok, err := c.hammer(bank, pages, begin, end)
		if err != nil {
			c.logger().Printf("hammer failed: %v", err)
			return
		}
		if !ok {
			return
		}
	}
}

// FindFlips picks the configured iteration algorithm, determines the
// contiguous page range to test, and runs the experiment loop over
// it.
func (c *ContiguousFinder) FindFlips() error {
	firstPage, lastPage, err := c.determinePageRange()
	if err != nil {
		return err
	}

	c.banks = make(map[uint64][]uint64)
	for page := firstPage; page <= lastPage; page++ {
		phys := pageToPhys(page)
		addr := dram.FromPhys(c.cfg.DRAMLayout, phys)
		if inBanks(addr.Bank, c.cfg.Banks) {
			c.banks[addr.Bank] = append(c.banks[addr.Bank], phys)
		}
	}

	return c.experimentLoop(func() {
		switch c.cfg.IterAlgorithm {
		case "fast":
			c.fastTest()
		case "debug":
			c.debugTest()
		default:
			c.defaultTest()
		}
	})
}

func inBanks(bank uint64, banks []uint64) bool {
	if len(banks) == 0 {
		return true
	}
	for _, b := range banks {
		if b == bank {
			return true
		}
	}
	return false
}
