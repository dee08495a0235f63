// Package sysinfo reads host facts used to size allocations and to
// stamp persisted records: hostname, kernel version, and free/total
// memory.
package sysinfo

import (
	"bytes"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// MemInfo is a snapshot of system-wide memory usage.
type MemInfo struct {
	TotalBytes uint64
	FreeBytes  uint64
}

// ReadMemInfo calls the sysinfo(2) syscall, mirroring the original's
// read_sysinfo.
func ReadMemInfo() (MemInfo, error) {
	var raw unix.Sysinfo_t
	if err := unix.Sysinfo(&raw); err != nil {
		return MemInfo{}, fmt.Errorf("sysinfo syscall failed - %w", err)
	}

	unit := uint64(raw.Unit)
	if unit == 0 {
		unit = 1
	}

	return MemInfo{
		TotalBytes: uint64(raw.Totalram) * unit,
		FreeBytes:  uint64(raw.Freeram) * unit,
	}, nil
}

// Hostname returns the local hostname, or "" if it could not be read.
func Hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return ""
	}
	return h
}

// KernelVersion returns "sysname release machine", e.g.
// "Linux 6.1.0-x86_64 x86_64", or "" if uname(2) failed.
func KernelVersion() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return ""
	}

	return fmt.Sprintf("%s %s %s",
		charsToString(uts.Sysname[:]),
		charsToString(uts.Release[:]),
		charsToString(uts.Machine[:]))
}

func charsToString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// ResolveMemorySize returns allocatePercentage of the system's free
// memory when useFreeMemory is set, mirroring the config.memory_size
// override validator.cpp and tester.cpp both apply to their
// configuration before allocating the default (non-hugepage) region.
// It returns fallback, unchanged, if useFreeMemory is false or sysinfo
// could not be read.
func ResolveMemorySize(useFreeMemory bool, allocatePercentage float64, fallback uint64) (uint64, error) {
	if !useFreeMemory {
		return fallback, nil
	}

	mem, err := ReadMemInfo()
	if err != nil {
		return fallback, err
	}

	return uint64(float64(mem.FreeBytes) * allocatePercentage), nil
}
