package hammer

import "golang.org/x/sys/cpu"

func detectCLFLUSHOpt() bool {
	return cpu.X86.HasCLFLUSHOPT
}
