package hammer

// hammerMachineCode assembles the hammer loop into a standalone
// function body and executes it directly, rather than looping in Go.
// This removes Go's own loop overhead and any runtime-inserted
// instrumentation from the hammering hot path, at the cost of needing
// to hand-build the function's machine code.
func (f *Flipper) hammerMachineCode() error {
	useCLFLUSHOpt := hasCLFLUSHOpt()

	code := buildMachineCodeFunc(f.addrs.VirtAggs, f.cfg.HammerCount, f.cfg.NOPCount, useCLFLUSHOpt)
	f.dumpJITCode("machinecode", code)

	page, err := newJITPage(code)
	if err != nil {
		return err
	}
	defer page.close()

	page.call()

	return nil
}

// buildMachineCodeFunc emits:
//
//	push rbp
//	mov  rbp, rsp
//	movabs rbx, hammer_count
//	.loop:
//	  ( movabs rax, agg_virt ; mov rcx, [rax] ; nop * nop_count ; clflush(opt) [rax] [; lfence] ) * len(aggVirts)
//	  mfence
//	  dec rbx
//	  jnz .loop
//	pop rbp
//	ret
func buildMachineCodeFunc(aggVirts []uintptr, hammerCount uint64, nopCount int, useCLFLUSHOpt bool) []byte {
	loop := newEmitter()
	for _, virt := range aggVirts {
		emitAggressorAccess(loop, virt, nopCount, useCLFLUSHOpt)
	}
	loop.Bytes(opMfence())
	loop.Bytes(opDecRbx())
	loopBody := loop.Build()

	jnz := opJnzRel32(-(int32(len(loopBody)) + int32(len(opJnzRel32(0)))))

	out := newEmitter()
	out.Bytes(opPushRbp())
	out.Bytes(opMovRbpRsp())
	out.Bytes(opMovabsRbx(hammerCount))
	out.Bytes(loopBody)
	out.Bytes(jnz)
	out.Bytes(opPopRbp())
	out.Bytes(opRet())

	return out.Build()
}
