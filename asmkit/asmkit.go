// Package asmkit wraps golang.org/x/arch/x86/x86asm to decode the
// byte sequences emitted by the machinecode and blacksmith hammer
// variants, for diagnostics and for the dasm command.
package asmkit

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

const (
	SkipSyntax  DisassemblySyntax = ""
	ATTSyntax   DisassemblySyntax = "att"
	GoSyntax    DisassemblySyntax = "go"
	IntelSyntax DisassemblySyntax = "intel"
)

type DisassemblySyntax string

type DisassemblerConfig struct {
	Syntax DisassemblySyntax
	Bits   int
}

func NewDisassembler(config DisassemblerConfig) (*Disassembler, error) {
	var disassemblyFn func(inst x86asm.Inst) string

	switch config.Syntax {
	case SkipSyntax:
		// Do nothing.
	case ATTSyntax:
		disassemblyFn = func(inst x86asm.Inst) string {
			return x86asm.GNUSyntax(inst, 0, nil)
		}
	case GoSyntax:
		disassemblyFn = func(inst x86asm.Inst) string {
			return x86asm.GoSyntax(inst, 0, nil)
		}
	case IntelSyntax:
		disassemblyFn = func(inst x86asm.Inst) string {
			return x86asm.IntelSyntax(inst, 0, nil)
		}
	default:
		return nil, fmt.Errorf("unsupported syntax type: %q", config.Syntax)
	}

	bits := config.Bits
	if bits == 0 {
		bits = 64
	}

	return &Disassembler{
		bits:          bits,
		disassemblyFn: disassemblyFn,
	}, nil
}

type Disassembler struct {
	bits          int
	disassemblyFn func(inst x86asm.Inst) string
}

func (o *Disassembler) decodeOne(remainingInsts []byte) (Inst, error) {
	x86Inst, err := x86asm.Decode(remainingInsts, o.bits)
	if err != nil {
		return Inst{}, err
	}

	var disassembly string
	if o.disassemblyFn != nil {
		disassembly = o.disassemblyFn(x86Inst)
	}

	return Inst{
		Bin:  copySlice(remainingInsts, x86Inst.Len),
		Len:  x86Inst.Len,
		Dis:  disassembly,
		Inst: x86Inst,
	}, nil
}

func (o *Disassembler) All(rawInstructions []byte, onDecodeFn func(Inst) error) error {
	index := 0

	for {
		if isDone(rawInstructions, index) {
			return nil
		}

		inst, err := o.decodeOne(rawInstructions[index:])
		if err != nil {
			return fmt.Errorf("failed to decode instruction %d - %w - remaining data: 0x%x",
				index, err, rawInstructions[index:])
		}

		inst.Index = index

		err = onDecodeFn(inst)
		if err != nil {
			return fmt.Errorf("on decode function failed for instruction %d (%q) - %w",
				index, inst.Dis, err)
		}

		index += inst.Len
	}
}

func (o *Disassembler) Next(rawInstructions []byte) (Inst, error) {
	return o.decodeOne(rawInstructions)
}

type Inst struct {
	Bin   []byte
	Len   int
	Index int
	Dis   string
	Inst  x86asm.Inst
}

func copySlice(src []byte, numBytes int) []byte {
	cp := make([]byte, numBytes)
	copy(cp, src[0:numBytes])
	return cp
}

func isDone(rawInstructions []byte, index int) bool {
	return index >= len(rawInstructions)-1
}
