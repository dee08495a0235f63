package validator

import (
	"strings"
	"testing"

	"github.com/fault-injection-lab/dramhammer/hammer"
	"github.com/fault-injection-lab/dramhammer/rhconfig"
)

func testConfig() rhconfig.Config {
	return rhconfig.Default()
}

func TestParseAddrFileFloorsVictimToRowBoundary(t *testing.T) {
	in := "row-a,1000,3000,5ff8\n"

	sets, err := parseAddrFile(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sets) != 1 {
		t.Fatalf("expected 1 address set, got %d", len(sets))
	}

	got := sets[0]
	if got.Label != "row-a" {
		t.Fatalf("expected label %q, got %q", "row-a", got.Label)
	}
	if len(got.Addrs.Aggs) != 2 || got.Addrs.Aggs[0] != 0x1000 || got.Addrs.Aggs[1] != 0x3000 {
		t.Fatalf("unexpected aggressor addresses: %v", got.Addrs.Aggs)
	}
	if len(got.Addrs.Victims) != 1 || got.Addrs.Victims[0] != 0x4000 {
		t.Fatalf("expected victim 0x5ff8 floored to 0x4000, got 0x%x", got.Addrs.Victims[0])
	}
}

func TestParseAddrFileSkipsBlankLines(t *testing.T) {
	in := "a,1000,2000\n\nb,3000,4000\n"

	sets, err := parseAddrFile(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sets) != 2 {
		t.Fatalf("expected 2 address sets, got %d", len(sets))
	}
}

func TestParseAddrFileRejectsShortLine(t *testing.T) {
	if _, err := parseAddrFile(strings.NewReader("only-one-field\n")); err == nil {
		t.Fatalf("expected an error for a line without enough fields")
	}
}

func TestParseAddrFileRejectsBadHex(t *testing.T) {
	if _, err := parseAddrFile(strings.NewReader("a,zzzz,1000\n")); err == nil {
		t.Fatalf("expected an error for a malformed aggressor address")
	}
}

type fakeOwner struct {
	virt map[uint64]uintptr
}

func (o *fakeOwner) FindPage(physAddr uint64) (uintptr, bool) {
	v, ok := o.virt[physAddr]
	return v, ok
}

func TestReplayReportsNotFoundWhenPageIsMissing(t *testing.T) {
	sets := []AddrSet{{
		Label: "missing",
		Addrs: hammer.HammerAddrs{Aggs: []uint64{0x1000}, Victims: []uint64{0x2000}},
	}}

	results, err := Replay(testConfig(), &fakeOwner{virt: map[uint64]uintptr{}}, sets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Found {
		t.Fatalf("expected the set to be reported as not found")
	}
}
