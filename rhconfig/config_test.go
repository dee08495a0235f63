package rhconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.ini")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoadDefaultsValidate(t *testing.T) {
	path := writeTestConfig(t, "[hammer]\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AggressorRows != 24 {
		t.Fatalf("expected default aggressor_rows=24, got %d", cfg.AggressorRows)
	}
	if cfg.HammerPatternDesc != "va" {
		t.Fatalf("expected default hammer_pattern='va', got %q", cfg.HammerPatternDesc)
	}
}

func TestLoadOverridesHammerSection(t *testing.T) {
	path := writeTestConfig(t, `
[hammer]
aggressor_rows = 4
hammer_pattern = avax
random_pattern_area = 40
hammer_algorithm = trrespass
banks = 0,1,2
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AggressorRows != 4 {
		t.Fatalf("expected aggressor_rows=4, got %d", cfg.AggressorRows)
	}
	if len(cfg.Banks) != 3 {
		t.Fatalf("expected 3 banks, got %v", cfg.Banks)
	}
	if string(cfg.HammerAlgorithm) != "trrespass" {
		t.Fatalf("expected hammer_algorithm=trrespass, got %q", cfg.HammerAlgorithm)
	}
}

func TestLoadRejectsUnknownMemoryAllocator(t *testing.T) {
	path := writeTestConfig(t, "[hammer]\nmemory_allocator = nonsense\n")

	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for an unknown memory_allocator")
	}
}

func TestLoadRejectsMismatchedInitLengths(t *testing.T) {
	path := writeTestConfig(t, "[hammer]\nvictim_init = 0x00,0xff\naggressor_init = 0xff\n")

	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for mismatched victim_init/aggressor_init lengths")
	}
}

func TestLoadParsesDebugDump(t *testing.T) {
	path := writeTestConfig(t, "[hammer]\ndebug_dump = true\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.DebugDump {
		t.Fatalf("expected debug_dump=true")
	}
}

func TestLoadResolvesEmptyBanksToAll(t *testing.T) {
	path := writeTestConfig(t, "[hammer]\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantBanksCnt := 1 << len(cfg.DRAMLayout.HFns)
	if len(cfg.Banks) != wantBanksCnt {
		t.Fatalf("expected %d banks, got %d", wantBanksCnt, len(cfg.Banks))
	}
}

func TestLoadRejectsOutOfRangeBank(t *testing.T) {
	path := writeTestConfig(t, "[hammer]\nbanks = 999\n")

	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for an out-of-range bank")
	}
}

func TestParseHMSDuration(t *testing.T) {
	d, err := parseHMSDuration("1:30:05")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 1*3600 + 30*60 + 5
	if int(d.Seconds()) != want {
		t.Fatalf("expected %d seconds, got %v", want, d)
	}
}
