package hammer

import (
	"runtime"
	"unsafe"
)

// hammerBlacksmith runs the timed middle section of hammer_order
// repeatedly, JIT'd into a single function, until total_num_activations
// worth of rounds have completed. The first and last num_aggs_for_sync
// entries of hammer_order are reserved for refresh-window
// synchronization and never appear in the JIT'd hammer loop itself,
// matching bit_flipper.cpp's three-section structure (warmup/sync,
// timed hammer, trailing sync).
//
// The pre- and post-round refresh sync is plain Go, not JIT'd, and
// runs over the edge aggressors rather than the middle ones.
func (f *Flipper) hammerBlacksmith() error {
	cfg := f.cfg.Blacksmith

	if len(cfg.HammerOrder) == 0 {
		return nil
	}

	aggVirts := resolveHammerOrder(cfg.HammerOrder, f.addrs.VirtAggs)

	syncAggs, middleAggs, trailingSyncAggs, ok := splitSyncSections(aggVirts, cfg.NumAggsForSync)
	if !ok {
		return nil
	}

	if f.cfg.Threshold > 0 && len(syncAggs) > 0 {
		f.syncToRefresh(syncAggs)
	}

	useCLFLUSHOpt := hasCLFLUSHOpt()

	var activations uint32
	scratch := &activations

	code := buildBlacksmithFunc(middleAggs, cfg.TotalNumActivations, cfg.Flushing, cfg.Fencing, useCLFLUSHOpt, scratch)
	f.dumpJITCode("blacksmith", code)

	page, err := newJITPage(code)
	if err != nil {
		return err
	}
	defer page.close()

	page.call()
	runtime.KeepAlive(scratch)

	if f.cfg.Threshold > 0 && len(trailingSyncAggs) > 0 {
		f.syncToRefresh(trailingSyncAggs)
	}

	return nil
}

// resolveHammerOrder translates hammer_order's 1-based aggressor indices
// into the virtual addresses they name. An index outside [1, len(virtAggs)]
// is left as a zero entry rather than an error, matching the best-effort
// skip the original applies to out-of-range config values.
func resolveHammerOrder(hammerOrder []int, virtAggs []uintptr) []uintptr {
	aggVirts := make([]uintptr, len(hammerOrder))
	for i, idx := range hammerOrder {
		if idx < 1 || idx > len(virtAggs) {
			continue
		}
		aggVirts[i] = virtAggs[idx-1]
	}
	return aggVirts
}

// splitSyncSections carves the ordered aggressor list into the leading
// num_aggs_for_sync entries, the timed middle section that gets JIT'd
// and actually hammered, and the trailing num_aggs_for_sync entries -
// matching bit_flipper.cpp's ordered_aggs[NUM_TIMED_ACCESSES ..
// size()-NUM_TIMED_ACCESSES) split. ok is false if numSync leaves no
// middle section to hammer.
func splitSyncSections(aggVirts []uintptr, numSync int) (sync, middle, trailingSync []uintptr, ok bool) {
	if numSync < 0 || numSync*2 >= len(aggVirts) {
		return nil, nil, nil, false
	}

	sync = aggVirts[:numSync]
	middle = aggVirts[numSync : len(aggVirts)-numSync]
	trailingSync = aggVirts[len(aggVirts)-numSync:]
	return sync, middle, trailingSync, true
}

// buildBlacksmithFunc emits the timed hammer section (aggVirts already
// excludes the edge sync aggressors):
//
//	push rbp
//	mov  rbp, rsp
//	movabs rbx, num_rounds
//	xor  r12, r12
//	.loop:
//	  (access phase, immediate-flush per aggressor if flushing is earliest-possible)
//	  (separate flush phase over the same order, if flushing is latest-possible)
//	  mfence                      ; only if fencing is latest-possible
//	  add  r12, len(aggVirts)
//	  dec  rbx
//	  jnz  .loop
//	movabs rax, scratch_addr
//	mov  [rax], r12d
//	pop  rbp
//	ret
func buildBlacksmithFunc(aggVirts []uintptr, totalNumActivations uint64, flushing FlushPolicy, fencing FencePolicy, useCLFLUSHOpt bool, scratch *uint32) []byte {
	if len(aggVirts) == 0 {
		return opRet()
	}

	numRounds := totalNumActivations / uint64(len(aggVirts))

	loop := newEmitter()

	if flushing == FlushEarliestPossible {
		for _, virt := range aggVirts {
			emitAggressorAccess(loop, virt, 0, useCLFLUSHOpt)
		}
	} else {
		for _, virt := range aggVirts {
			emitAggressorRead(loop, virt)
		}
		for _, virt := range aggVirts {
			emitAggressorFlush(loop, virt, useCLFLUSHOpt)
		}
	}

	if fencing == FenceLatestPossible {
		loop.Bytes(opMfence())
	}

	loop.Bytes(opAddR12Imm32(int32(len(aggVirts))))
	loop.Bytes(opDecRbx())
	loopBody := loop.Build()

	jnz := opJnzRel32(-(int32(len(loopBody)) + int32(len(opJnzRel32(0)))))

	out := newEmitter()
	out.Bytes(opPushRbp())
	out.Bytes(opMovRbpRsp())
	out.Bytes(opMovabsRbx(numRounds))
	out.Bytes(opXorR12R12())
	out.Bytes(loopBody)
	out.Bytes(jnz)
	out.Bytes(opMovabsRax(uint64(uintptr(unsafe.Pointer(scratch)))))
	out.Bytes(opStoreR12dToRax())
	out.Bytes(opPopRbp())
	out.Bytes(opRet())

	return out.Build()
}
