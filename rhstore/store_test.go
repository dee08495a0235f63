package rhstore

import (
	"path/filepath"
	"testing"

	"github.com/fault-injection-lab/dramhammer/dram"
	"github.com/fault-injection-lab/dramhammer/hammer"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadOrInsertConfigIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	layout := dram.Layout{HFns: []uint64{0x1, 0x2}, RowMasks: []uint64{0x4}, ColMasks: []uint64{0x8}}

	if err := s.LoadOrInsertConfig("host-a", []string{"dimm0"}, map[string]string{"xmp": "off"}, layout); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := s.configID

	if err := s.LoadOrInsertConfig("host-a", []string{"dimm0"}, map[string]string{"xmp": "off"}, layout); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.configID != first {
		t.Fatalf("expected second call to reuse config id %d, got %d", first, s.configID)
	}
}

func TestInsertTestAndBitFlipWithinTransaction(t *testing.T) {
	s := newTestStore(t)
	layout := dram.Layout{HFns: []uint64{0x1}, RowMasks: []uint64{0x2}, ColMasks: []uint64{0x4}}

	if err := s.LoadOrInsertConfig("host-b", nil, nil, layout); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.StartExperiment(24, 1000000, 50, "smoke test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.BeginTransaction(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.InsertTest(hammer.TestRow{VictimInit: 0x00, AggressorInit: 0xff, NumFlips: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	flip := hammer.BitFlip{
		VictimPhys: 0x1000,
		VictimBank: 1,
		VictimRow:  2,
		VictimCol:  3,
		ByteOffset: 4,
		BitIndex:   5,
		Direction:  hammer.ZeroToOne,
	}
	if err := s.InsertBitFlip(flip); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.Commit(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM bitflips WHERE test_id = ?`, s.testID).Scan(&count); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 bitflip row, got %d", count)
	}
}

func TestEndExperimentStampsEndedAt(t *testing.T) {
	s := newTestStore(t)
	layout := dram.Layout{HFns: []uint64{0x1}, RowMasks: []uint64{0x2}, ColMasks: []uint64{0x4}}

	if err := s.LoadOrInsertConfig("host-c", nil, nil, layout); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.StartExperiment(24, 1000000, 50, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.EndExperiment(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var endedAt *string
	if err := s.db.QueryRow(`SELECT ended_at FROM experiments WHERE id = ?`, s.experimentID).Scan(&endedAt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if endedAt == nil {
		t.Fatalf("expected ended_at to be stamped")
	}
}
