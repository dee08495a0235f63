package sysinfo

import "testing"

func TestReadMemInfoReportsNonzeroTotal(t *testing.T) {
	mem, err := ReadMemInfo()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mem.TotalBytes == 0 {
		t.Fatalf("expected a nonzero total memory size")
	}
	if mem.FreeBytes > mem.TotalBytes {
		t.Fatalf("free memory (%d) exceeds total memory (%d)", mem.FreeBytes, mem.TotalBytes)
	}
}

func TestResolveMemorySizeReturnsFallbackWhenDisabled(t *testing.T) {
	got, err := ResolveMemorySize(false, 0.5, 1234)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1234 {
		t.Fatalf("expected fallback 1234, got %d", got)
	}
}

func TestResolveMemorySizeScalesFreeMemory(t *testing.T) {
	got, err := ResolveMemorySize(true, 0.5, 1234)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == 1234 {
		t.Fatalf("expected the free-memory-derived size to differ from the fallback")
	}
}

func TestCharsToStringTrimsTrailingNUL(t *testing.T) {
	got := charsToString([]byte{'L', 'i', 'n', 'u', 'x', 0, 0, 0})
	if got != "Linux" {
		t.Fatalf("expected %q, got %q", "Linux", got)
	}
}

func TestKernelVersionIsNonEmpty(t *testing.T) {
	if KernelVersion() == "" {
		t.Fatalf("expected a non-empty kernel version on a linux host")
	}
}
