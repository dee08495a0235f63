package hammer

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// jitPage is a private anonymous RWX mapping holding one JIT'd
// function body. It is allocated per hammer invocation and released
// on completion, per the resource-lifetime contract for JIT'd code.
type jitPage struct {
	mem []byte
}

func newJITPage(code []byte) (*jitPage, error) {
	mem, err := unix.Mmap(-1, 0, len(code),
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap executable JIT page - %w", err)
	}

	copy(mem, code)

	return &jitPage{mem: mem}, nil
}

func (p *jitPage) close() error {
	return unix.Munmap(p.mem)
}

// call invokes the JIT'd function as a niladic, no-return-value Go
// function. This relies on the representation of a Go func value as
// a pointer to a funcval whose first word is the code entry point;
// it is only valid for code that follows the System V AMD64 calling
// convention closely enough to be entered and returned from as if it
// were such a function (no arguments, no return value, a plain RET).
func (p *jitPage) call() {
	entry := uintptr(unsafe.Pointer(&p.mem[0]))

	funcval := struct{ entry uintptr }{entry: entry}

	fn := *(*func())(unsafe.Pointer(&funcval))

	fn()
}
