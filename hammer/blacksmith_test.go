package hammer

import "testing"

func TestBuildBlacksmithFuncFlushEarliest(t *testing.T) {
	aggVirts := []uintptr{0x1000, 0x2000}
	var scratch uint32

	code := buildBlacksmithFunc(aggVirts, 4, FlushEarliestPossible, FenceLatestPossible, false, &scratch)

	accessFlush := append(append([]byte{}, opMovabsRax(0x1000)...), opMovRcxFromRax()...)
	accessFlush = append(accessFlush, opClflushRax()...)
	accessFlush = append(accessFlush, opLfence()...)

	if indexOfBytes(code, accessFlush) < 0 {
		t.Fatalf("expected an immediate access+flush block for the earliest-possible flush policy")
	}

	if indexOfBytes(code, opMfence()) < 0 {
		t.Fatalf("expected an mfence for the latest-possible fence policy")
	}

	if indexOfBytes(code, opXorR12R12()) < 0 {
		t.Fatalf("expected the activation counter to be zeroed")
	}

	if indexOfBytes(code, opAddR12Imm32(2)) < 0 {
		t.Fatalf("expected the activation counter to be incremented by len(hammer_order)=2 per round")
	}
}

func TestBuildBlacksmithFuncFlushLatest(t *testing.T) {
	aggVirts := []uintptr{0x1000}
	var scratch uint32

	code := buildBlacksmithFunc(aggVirts, 4, FlushLatestPossible, FenceEarliestPossible, false, &scratch)

	readOnly := append(append([]byte{}, opMovabsRax(0x1000)...), opMovRcxFromRax()...)
	flushOnly := append(append([]byte{}, opMovabsRax(0x1000)...), opClflushRax()...)

	if indexOfBytes(code, readOnly) < 0 {
		t.Fatalf("expected a read-only access phase for the latest-possible flush policy")
	}
	if indexOfBytes(code, flushOnly) < 0 {
		t.Fatalf("expected a separate flush-only phase for the latest-possible flush policy")
	}
	if indexOfBytes(code, opMfence()) >= 0 {
		t.Fatalf("earliest-possible fence policy should not emit an mfence")
	}
}

func TestBuildBlacksmithFuncEmptyOrder(t *testing.T) {
	var scratch uint32

	code := buildBlacksmithFunc(nil, 10, FlushEarliestPossible, FenceLatestPossible, false, &scratch)

	if len(code) != 1 || code[0] != 0xc3 {
		t.Fatalf("expected a bare ret for an empty hammer order, got %x", code)
	}
}

func TestResolveHammerOrderIsOneBased(t *testing.T) {
	virtAggs := []uintptr{0x1000, 0x2000, 0x3000}

	got := resolveHammerOrder([]int{1, 3, 2}, virtAggs)
	want := []uintptr{0x1000, 0x3000, 0x2000}

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("resolveHammerOrder(%v) = %v, want %v", []int{1, 3, 2}, got, want)
		}
	}
}

func TestResolveHammerOrderAcceptsMaxIndex(t *testing.T) {
	virtAggs := []uintptr{0x1000, 0x2000, 0x3000}

	got := resolveHammerOrder([]int{3}, virtAggs)
	if got[0] != 0x3000 {
		t.Fatalf("resolveHammerOrder with the max 1-based index should resolve the last aggressor, got 0x%x", got[0])
	}
}

func TestResolveHammerOrderSkipsOutOfRange(t *testing.T) {
	virtAggs := []uintptr{0x1000, 0x2000}

	got := resolveHammerOrder([]int{0, 3, 1}, virtAggs)
	if got[0] != 0 || got[1] != 0 {
		t.Fatalf("expected out-of-range hammer_order entries to resolve to zero, got %v", got)
	}
	if got[2] != 0x1000 {
		t.Fatalf("expected index 1 to resolve to the first aggressor, got 0x%x", got[2])
	}
}

func TestSplitSyncSectionsExcludesEdges(t *testing.T) {
	aggVirts := []uintptr{0x1, 0x2, 0x3, 0x4, 0x5, 0x6}

	sync, middle, trailingSync, ok := splitSyncSections(aggVirts, 2)
	if !ok {
		t.Fatalf("expected a valid split")
	}

	wantSync := []uintptr{0x1, 0x2}
	wantMiddle := []uintptr{0x3, 0x4}
	wantTrailing := []uintptr{0x5, 0x6}

	for i := range wantSync {
		if sync[i] != wantSync[i] {
			t.Fatalf("sync = %v, want %v", sync, wantSync)
		}
	}
	for i := range wantMiddle {
		if middle[i] != wantMiddle[i] {
			t.Fatalf("middle = %v, want %v", middle, wantMiddle)
		}
	}
	for i := range wantTrailing {
		if trailingSync[i] != wantTrailing[i] {
			t.Fatalf("trailingSync = %v, want %v", trailingSync, wantTrailing)
		}
	}
}

func TestSplitSyncSectionsRejectsOversizedSyncCount(t *testing.T) {
	aggVirts := []uintptr{0x1, 0x2, 0x3}

	if _, _, _, ok := splitSyncSections(aggVirts, 2); ok {
		t.Fatalf("expected ok=false when 2*num_aggs_for_sync >= len(aggVirts)")
	}

	if _, _, _, ok := splitSyncSections(aggVirts, -1); ok {
		t.Fatalf("expected ok=false for a negative num_aggs_for_sync")
	}
}

func TestBuildBlacksmithFuncRoundsToWholeRounds(t *testing.T) {
	aggVirts := []uintptr{0x1000, 0x2000, 0x3000}
	var scratch uint32

	code := buildBlacksmithFunc(aggVirts, 10, FlushEarliestPossible, FenceLatestPossible, false, &scratch)

	// 10 / 3 = 3 whole rounds
	if indexOfBytes(code, opMovabsRbx(3)) < 0 {
		t.Fatalf("expected num_rounds to be floor(total_num_activations / len(hammer_order)) = 3")
	}
}
