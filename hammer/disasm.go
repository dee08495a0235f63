package hammer

import (
	"github.com/fault-injection-lab/dramhammer/asmkit"
	"github.com/fault-injection-lab/dramhammer/iokit"
)

// dumpJITCode hex-dumps and disassembles a JIT'd hammer kernel, gated
// by Config.DebugDump. Decode failures are logged, not returned - a
// bad dump must never stop an otherwise-working hammer cycle.
func (f *Flipper) dumpJITCode(label string, code []byte) {
	if !f.cfg.DebugDump {
		return
	}

	logger := f.cfg.logger()

	buf := iokit.Buffer{OptLoggerW: logger}
	if _, err := buf.Write(code); err != nil {
		logger.Printf("%s: failed to hex dump JIT'd code: %v", label, err)
	}

	disasm, err := asmkit.NewDisassembler(asmkit.DisassemblerConfig{
		Syntax: asmkit.IntelSyntax,
		Bits:   64,
	})
	if err != nil {
		logger.Printf("%s: failed to create disassembler: %v", label, err)
		return
	}

	logger.Printf("%s: disassembly of %d bytes of JIT'd code:", label, len(code))
	err = disasm.All(code, func(inst asmkit.Inst) error {
		logger.Printf("  %s", inst.Dis)
		return nil
	})
	if err != nil {
		logger.Printf("%s: failed to disassemble JIT'd code: %v", label, err)
	}
}
