package hammerpat

import (
	"math/rand"
	"testing"
)

func TestExpandVA(t *testing.T) {
	p, adjusted, err := Expand("va", 4, 0, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("Expand returned error: %v", err)
	}

	if adjusted != 4 {
		t.Fatalf("adjusted aggressor rows = %d, want 4", adjusted)
	}

	want := []bool{false, true, false, true, false, true, false, true, false}
	if len(p.Bits) != len(want) {
		t.Fatalf("len(Bits) = %d, want %d (%v)", len(p.Bits), len(want), p.Bits)
	}
	for i := range want {
		if p.Bits[i] != want[i] {
			t.Fatalf("Bits[%d] = %v, want %v (full: %v)", i, p.Bits[i], want[i], p.Bits)
		}
	}
}

func TestExpandAvaxRandomAreaBudget(t *testing.T) {
	p, adjusted, err := Expand("avax", 4, 40, rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatalf("Expand returned error: %v", err)
	}

	if adjusted%2 != 0 {
		t.Fatalf("adjusted aggressor rows %d is not a multiple of 2 aggressors per period", adjusted)
	}

	if got := p.NumAggressors(); got < 4 {
		t.Fatalf("NumAggressors() = %d, want at least 4", got)
	}

	// Every bit besides the literal v/a tokens and the possible
	// trailing appended victim came from an 'x' run, so the total
	// victim-bit count beyond the literal "v" bits equals the
	// random_pattern_area budget.
	numPeriods := adjusted / 2
	literalVictims := int(numPeriods) // one literal 'v' per period
	totalVictims := len(p.Bits) - p.NumAggressors()
	randomVictims := totalVictims - literalVictims

	if randomVictims != 40 {
		t.Fatalf("random victim bits contributed by 'x' = %d, want 40 (bits: %s)", randomVictims, p.String())
	}
}

func TestExpandZeroAggressorRows(t *testing.T) {
	p, adjusted, err := Expand("va", 0, 0, nil)
	if err != nil {
		t.Fatalf("Expand returned error: %v", err)
	}

	if adjusted != 0 {
		t.Fatalf("adjusted = %d, want 0", adjusted)
	}

	if len(p.Bits) != 0 {
		t.Fatalf("expected empty pattern, got %v", p.Bits)
	}
}

func TestExpandRejectsUnknownToken(t *testing.T) {
	_, _, err := Expand("vz", 2, 0, nil)
	if err == nil {
		t.Fatalf("expected error for unknown token")
	}
}

func TestExpandRejectsNoAggressors(t *testing.T) {
	_, _, err := Expand("vvv", 2, 0, nil)
	if err == nil {
		t.Fatalf("expected error for description with no aggressor tokens")
	}
}

func TestGenerateRandomFillUpSumsToTotal(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	fillUps := generateRandomFillUp(rng, 40, 4)
	if len(fillUps) != 4 {
		t.Fatalf("len(fillUps) = %d, want 4", len(fillUps))
	}

	var sum uint64
	for _, n := range fillUps {
		sum += n
	}
	if sum != 40 {
		t.Fatalf("sum(fillUps) = %d, want 40", sum)
	}
}
