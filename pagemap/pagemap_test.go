package pagemap

import "testing"

func TestFrameNumberAndPresent(t *testing.T) {
	// Bit 63 set (present), frame number 0x1234 in bits 0-54.
	entry := uint64(1<<63) | 0x1234

	if !isPagePresent(entry) {
		t.Fatalf("expected entry to be present")
	}

	if got := frameNumber(entry); got != 0x1234 {
		t.Fatalf("frameNumber() = 0x%x, want 0x1234", got)
	}
}

func TestNotPresent(t *testing.T) {
	entry := uint64(0x1234) // present bit not set

	if isPagePresent(entry) {
		t.Fatalf("expected entry to be absent")
	}
}

func TestFindPageAlignsOffset(t *testing.T) {
	a := &Acquirer{
		pageSize: 4096,
		base:     0x7f0000000000,
		pageMap:  map[uint32]uint32{5: 2},
	}

	phys := uint64(5*4096 + 0x123)

	virt, ok := a.FindPage(phys)
	if !ok {
		t.Fatalf("expected page 5 to be found")
	}

	wantOffset := phys & (a.pageSize - 1)
	gotOffset := uint64(virt) & (a.pageSize - 1)

	if gotOffset != wantOffset {
		t.Fatalf("FindPage in-page offset = 0x%x, want 0x%x", gotOffset, wantOffset)
	}

	wantVirt := a.base + uintptr(2)*uintptr(a.pageSize) + uintptr(wantOffset)
	if virt != wantVirt {
		t.Fatalf("FindPage() = 0x%x, want 0x%x", virt, wantVirt)
	}
}

func TestFindPageMissing(t *testing.T) {
	a := &Acquirer{
		pageSize: 4096,
		pageMap:  map[uint32]uint32{},
	}

	if _, ok := a.FindPage(0x1000); ok {
		t.Fatalf("expected missing page to report ok=false")
	}
}

func TestFindPageRejectsFrameAtMaxPFN(t *testing.T) {
	a := &Acquirer{
		pageSize: 4096,
		pageMap:  map[uint32]uint32{0: 0},
	}

	// A frame number exactly at maxPFN truncates to 0 under uint32,
	// which would otherwise alias frame 0 in the pageMap.
	phys := uint64(maxPFN * 4096)

	if _, ok := a.FindPage(phys); ok {
		t.Fatalf("expected a frame number at maxPFN to be rejected, not aliased to frame 0")
	}
}
