// Package bspat converts a Blacksmith fuzzer pattern export into the
// hammer_order/num_aggs_for_sync/total_num_activations configuration
// keys the blacksmith hammer variant consumes.
package bspat

import (
	"encoding/json"
	"fmt"
	"io"
)

// Access is one aggressor's place in a Blacksmith pattern: it is
// accessed every Frequency base periods, starting at base period
// Phase, Amplitude times per access.
type Access struct {
	ID        int `json:"id"`
	Frequency int `json:"frequency"`
	Phase     int `json:"phase"`
	Amplitude int `json:"amplitude"`
}

// Pattern is a Blacksmith pattern export: a schedule of aggressor
// accesses repeated over BasePeriod rounds, plus the total activation
// budget the fuzzer determined triggers a flip.
type Pattern struct {
	Aggressors       []Access `json:"aggressors"`
	BasePeriod       int      `json:"base_period"`
	TotalActivations uint64   `json:"total_activations"`
	NumAggsForSync   int      `json:"num_aggs_for_sync"`
	VictimInit       []uint64 `json:"victim_init"`
	AggressorInit    []uint64 `json:"aggressor_init"`
}

// Decode reads a Pattern from its JSON export.
func Decode(r io.Reader) (Pattern, error) {
	var p Pattern
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return Pattern{}, fmt.Errorf("failed to decode blacksmith pattern - %w", err)
	}
	if p.BasePeriod <= 0 {
		return Pattern{}, fmt.Errorf("pattern has a non-positive base_period: %d", p.BasePeriod)
	}
	return p, nil
}

// Expand replays the frequency/phase/amplitude schedule across one
// base period and returns the resulting aggressor access order, the
// same shape hammer.BlacksmithConfig.HammerOrder expects: a sequence
// of indices into the aggressor row set, one entry per DRAM access.
func (p Pattern) Expand() []int {
	var order []int
	for round := 0; round < p.BasePeriod; round++ {
		for _, a := range p.Aggressors {
			if a.Frequency <= 0 {
				continue
			}
			if mod(round-a.Phase, a.Frequency) != 0 {
				continue
			}
			for rep := 0; rep < a.Amplitude; rep++ {
				order = append(order, a.ID)
			}
		}
	}
	return order
}

func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
