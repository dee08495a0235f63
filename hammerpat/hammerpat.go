// Package hammerpat expands a textual hammer-pattern description
// ("v"/"a"/"x" tokens) into a concrete bit sequence of victim and
// aggressor rows.
package hammerpat

import (
	"fmt"
	"math/rand"
)

// Pattern is an expanded hammer pattern: a dense sequence of bits
// (false = victim, true = aggressor) plus the description it was
// derived from.
type Pattern struct {
	Description string
	Bits        []bool
}

// NumAggressors counts the true bits in the pattern.
func (p Pattern) NumAggressors() int {
	n := 0
	for _, b := range p.Bits {
		if b {
			n++
		}
	}
	return n
}

// String renders the pattern as a sequence of '0'/'1' characters,
// matching the original tool's debug representation of a bool vector.
func (p Pattern) String() string {
	out := make([]byte, len(p.Bits))
	for i, b := range p.Bits {
		if b {
			out[i] = '1'
		} else {
			out[i] = '0'
		}
	}
	return string(out)
}

// ExpandOrExit is the OrExit counterpart of Expand.
func ExpandOrExit(description string, aggressorRows uint32, randomPatternArea uint64, rng *rand.Rand) (Pattern, uint32) {
	p, adjusted, err := Expand(description, aggressorRows, randomPatternArea, rng)
	if err != nil {
		defaultExitFn(fmt.Errorf("failed to expand hammer pattern %q - %w", description, err))
	}
	return p, adjusted
}

// Expand parses description's v/a/x tokens and repeats the resulting
// template until the number of aggressor ('a') bits reaches
// aggressorRows, rounded up to a multiple of the aggressor count in a
// single period. Each 'x' token becomes a run of victim bits; run
// lengths are drawn randomly so that, summed over every period, they
// total exactly randomPatternArea. If the expanded pattern ends in an
// aggressor bit, a trailing victim bit is appended.
//
// It returns the expanded pattern and the (possibly increased)
// aggressor row count actually achieved, mirroring the original
// mutate-the-caller's-count behavior via a return value instead of an
// out-parameter.
//
// aggressorRows == 0 is a distinguished case: Expand returns an empty
// pattern with zero aggressors, regardless of description, so that
// callers performing a subsequent hammer() see no memory traffic.
func Expand(description string, aggressorRows uint32, randomPatternArea uint64, rng *rand.Rand) (Pattern, uint32, error) {
	if err := validateDescription(description); err != nil {
		return Pattern{}, 0, err
	}

	if aggressorRows == 0 {
		return Pattern{Description: description}, 0, nil
	}

	aggsPerPeriod := countChar(description, 'a')
	if aggsPerPeriod == 0 {
		return Pattern{}, 0, fmt.Errorf("description %q contains no aggressor ('a') tokens", description)
	}

	periods := (int(aggressorRows) + aggsPerPeriod - 1) / aggsPerPeriod
	adjustedAggressorRows := uint32(periods * aggsPerPeriod)

	xPerPeriod := countChar(description, 'x')
	totalXSlots := periods * xPerPeriod

	var fillUps []uint64
	if totalXSlots > 0 {
		fillUps = generateRandomFillUp(rng, randomPatternArea, totalXSlots)
	}

	bits := make([]bool, 0, len(description)*periods)

	slot := 0
	for i := 0; i < periods; i++ {
		for _, c := range description {
			switch c {
			case 'v':
				bits = append(bits, false)
			case 'a':
				bits = append(bits, true)
			case 'x':
				n := uint64(0)
				if slot < len(fillUps) {
					n = fillUps[slot]
				}
				slot++
				for j := uint64(0); j < n; j++ {
					bits = append(bits, false)
				}
			}
		}
	}

	if len(bits) > 0 && bits[len(bits)-1] {
		bits = append(bits, false)
	}

	return Pattern{
		Description: description,
		Bits:        bits,
	}, adjustedAggressorRows, nil
}

func countChar(description string, target rune) int {
	n := 0
	for _, c := range description {
		if c == target {
			n++
		}
	}
	return n
}

func validateDescription(description string) error {
	if description == "" {
		return fmt.Errorf("description cannot be empty")
	}

	for _, c := range description {
		switch c {
		case 'v', 'a', 'x':
			// OK.
		default:
			return fmt.Errorf("description %q contains unsupported token %q", description, c)
		}
	}

	return nil
}

// generateRandomFillUp splits totalArea into count non-negative
// integers that sum to exactly totalArea, using random cut points - a
// stars-and-bars partition rather than an even split, so that
// repeated calls with the same inputs do not produce identical runs.
func generateRandomFillUp(rng *rand.Rand, totalArea uint64, count int) []uint64 {
	if count <= 0 {
		return nil
	}
	if count == 1 {
		return []uint64{totalArea}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	cuts := make([]uint64, count-1)
	for i := range cuts {
		cuts[i] = uint64(rng.Int63n(int64(totalArea) + 1))
	}

	sortUint64(cuts)

	out := make([]uint64, count)
	prev := uint64(0)
	for i, c := range cuts {
		out[i] = c - prev
		prev = c
	}
	out[count-1] = totalArea - prev

	return out
}

func sortUint64(s []uint64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
