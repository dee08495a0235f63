package asmkit_test

import (
	"encoding/hex"
	"fmt"
	"log"

	"github.com/fault-injection-lab/dramhammer/asmkit"
)

func ExampleDisassembler() {
	// xor eax, eax; inc eax; mov ebx, eax; int 0x80
	hexEncodedInsts := "31c04089c3cd80"

	insts, err := hex.DecodeString(hexEncodedInsts)
	if err != nil {
		log.Fatalf("failed to decode hex - %v", err)
	}

	disass, err := asmkit.NewDisassembler(asmkit.DisassemblerConfig{
		Syntax: asmkit.IntelSyntax,
		Bits:   32,
	})
	if err != nil {
		log.Fatalf("failed to create disassembler - %v", err)
	}

	err = disass.All(insts, func(inst asmkit.Inst) error {
		fmt.Println(inst.Dis)
		return nil
	})
	if err != nil {
		log.Fatalf("disassembler failed - %v", err)
	}

	// Output:
	// xor eax, eax
	// inc eax
	// mov ebx, eax
	// int 0x80
}
