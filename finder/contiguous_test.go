package finder

import (
	"testing"

	"github.com/fault-injection-lab/dramhammer/dram"
)

type fakeOwner struct {
	frames map[uint32]uintptr
}

func newFakeOwner(frames ...uint32) *fakeOwner {
	o := &fakeOwner{frames: map[uint32]uintptr{}}
	for _, f := range frames {
		o.frames[f] = uintptr(f) << 12
	}
	return o
}

func (o *fakeOwner) FindPage(physAddr uint64) (uintptr, bool) {
	frame := uint32(physAddr >> 12)
	v, ok := o.frames[frame]
	return v, ok
}

func (o *fakeOwner) Contains(frame uint32) bool {
	_, ok := o.frames[frame]
	return ok
}

func (o *fakeOwner) SortedFrames() []uint32 {
	out := make([]uint32, 0, len(o.frames))
	for f := range o.frames {
		out = append(out, f)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func rangeFrames(first, last uint32) []uint32 {
	out := make([]uint32, 0, last-first+1)
	for f := first; f <= last; f++ {
		out = append(out, f)
	}
	return out
}

func TestFindRunLocatesLongestContiguousBlock(t *testing.T) {
	owner := newFakeOwner()
	for _, f := range rangeFrames(10, 15) {
		owner.frames[f] = uintptr(f) << 12
	}
	for _, f := range rangeFrames(100, 150) {
		owner.frames[f] = uintptr(f) << 12
	}

	first, last, ok := findRun(owner, 20)
	if !ok {
		t.Fatalf("expected a run to be found")
	}
	if first != 100 || last != 150 {
		t.Fatalf("expected run [100, 150], got [%d, %d]", first, last)
	}
}

func TestFindRunFailsBelowMinLength(t *testing.T) {
	owner := newFakeOwner(rangeFrames(10, 15)...)

	if _, _, ok := findRun(owner, 20); ok {
		t.Fatalf("expected no run to satisfy the minimum length")
	}
}

func TestFindRunFixedStopsAtGap(t *testing.T) {
	owner := newFakeOwner(rangeFrames(10, 20)...)
	owner.frames[25] = 0 // isolated page past a gap

	last, ok := findRunFixed(owner, 10, 5)
	if !ok {
		t.Fatalf("expected a run of at least 5 pages")
	}
	if last != 20 {
		t.Fatalf("expected run to stop at frame 20, got %d", last)
	}
}

func TestFindRunFixedRejectsShortRun(t *testing.T) {
	owner := newFakeOwner(rangeFrames(10, 12)...)

	if _, ok := findRunFixed(owner, 10, 5); ok {
		t.Fatalf("expected the run to be shorter than the minimum length")
	}
}

func TestFindFirstPageInRowPicksLowestBank(t *testing.T) {
	layout := dram.Layout{
		HFns:     []uint64{0x1000},
		RowMasks: []uint64{0xf0000},
		ColMasks: []uint64{0xf},
	}

	phys := findFirstPageInRow(layout, 3, nil)
	got := dram.FromPhys(layout, phys)
	if got.Row != 3 {
		t.Fatalf("expected row 3, got %d", got.Row)
	}

	for bank := uint64(0); bank < banksCount(layout); bank++ {
		other := dram.Phys(layout, dram.Addr{Bank: bank, Row: 3, Col: 0})
		if other < phys {
			t.Fatalf("findFirstPageInRow did not return the minimum physical address across banks")
		}
	}
}

func TestInBanksEmptyMeansAll(t *testing.T) {
	if !inBanks(7, nil) {
		t.Fatalf("expected an empty bank list to accept every bank")
	}
	if !inBanks(1, []uint64{0, 1, 2}) {
		t.Fatalf("expected bank 1 to be accepted")
	}
	if inBanks(5, []uint64{0, 1, 2}) {
		t.Fatalf("expected bank 5 to be rejected")
	}
}
