package hammer

import (
	"encoding/binary"

	"github.com/fault-injection-lab/dramhammer/iokit"
)

func newEmitter() *iokit.PayloadBuilder {
	return iokit.NewPayloadBuilder()
}

// The functions below emit raw x86-64 opcode bytes for the small
// instruction set the JIT'd hammer loops need. Go has no inline
// assembler, so the loop body built by machinecode.go and
// blacksmith.go is assembled one instruction at a time and chained
// together with an iokit.PayloadBuilder.

func opPushRbp() []byte { return []byte{0x55} }
func opPopRbp() []byte  { return []byte{0x5d} }
func opRet() []byte     { return []byte{0xc3} }
func opNop() []byte     { return []byte{0x90} }

// opMovRbpRsp emits "mov rbp, rsp".
func opMovRbpRsp() []byte { return []byte{0x48, 0x89, 0xe5} }

// opMovabsRax emits "movabs rax, imm64".
func opMovabsRax(imm uint64) []byte {
	return opMovabs(0xb8, imm)
}

// opMovabsRbx emits "movabs rbx, imm64".
func opMovabsRbx(imm uint64) []byte {
	return opMovabs(0xbb, imm)
}

func opMovabs(opcode byte, imm uint64) []byte {
	b := make([]byte, 10)
	b[0] = 0x48
	b[1] = opcode
	binary.LittleEndian.PutUint64(b[2:], imm)
	return b
}

// opMovRcxFromRax emits "mov rcx, [rax]".
func opMovRcxFromRax() []byte { return []byte{0x48, 0x8b, 0x08} }

// opClflushRax emits "clflush [rax]".
func opClflushRax() []byte { return []byte{0x0f, 0xae, 0x38} }

// opClflushoptRax emits "clflushopt [rax]".
func opClflushoptRax() []byte { return []byte{0x66, 0x0f, 0xae, 0x38} }

func opLfence() []byte { return []byte{0x0f, 0xae, 0xe8} }
func opMfence() []byte { return []byte{0x0f, 0xae, 0xf0} }

// opDecRbx emits "dec rbx".
func opDecRbx() []byte { return []byte{0x48, 0xff, 0xcb} }

func opXorR12R12() []byte { return []byte{0x4d, 0x31, 0xe4} }

// opAddR12Imm32 emits "add r12, imm32".
func opAddR12Imm32(imm int32) []byte {
	b := make([]byte, 7)
	b[0] = 0x49
	b[1] = 0x81
	b[2] = 0xc4
	binary.LittleEndian.PutUint32(b[3:], uint32(imm))
	return b
}

// opStoreR12dToRax emits "mov [rax], r12d".
func opStoreR12dToRax() []byte { return []byte{0x44, 0x89, 0x20} }

// opJnzRel32 emits "jnz rel32" with rel relative to the byte
// immediately following this instruction.
func opJnzRel32(rel int32) []byte {
	b := make([]byte, 6)
	b[0] = 0x0f
	b[1] = 0x85
	binary.LittleEndian.PutUint32(b[2:], uint32(rel))
	return b
}

// emitAggressorRead emits a bare access with no accompanying flush,
// for the access phase of a flush-latest round.
func emitAggressorRead(b *iokit.PayloadBuilder, virt uintptr) {
	b.Bytes(opMovabsRax(uint64(virt)))
	b.Bytes(opMovRcxFromRax())
}

// emitAggressorFlush emits a bare flush with no accompanying access,
// for the flush phase of a flush-latest round.
func emitAggressorFlush(b *iokit.PayloadBuilder, virt uintptr, useCLFLUSHOpt bool) {
	b.Bytes(opMovabsRax(uint64(virt)))

	if useCLFLUSHOpt {
		b.Bytes(opClflushoptRax())
		return
	}

	b.Bytes(opClflushRax())
}

// emitAggressorAccess emits a single aggressor's access-and-flush
// sequence: movabs the aggressor's virtual address into rax, read it
// through rcx, pad with nop_count NOPs, then flush it with either
// CLFLUSH or CLFLUSHOPT. A legacy flush is followed by an lfence so
// the strongly-ordered CLFLUSH still serializes the same as its
// CLFLUSHOPT counterpart would via the loop's closing mfence.
func emitAggressorAccess(b *iokit.PayloadBuilder, virt uintptr, nopCount int, useCLFLUSHOpt bool) {
	b.Bytes(opMovabsRax(uint64(virt)))
	b.Bytes(opMovRcxFromRax())

	for i := 0; i < nopCount; i++ {
		b.Bytes(opNop())
	}

	if useCLFLUSHOpt {
		b.Bytes(opClflushoptRax())
		return
	}

	b.Bytes(opClflushRax())
	b.Bytes(opLfence())
}
