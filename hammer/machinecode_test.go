package hammer

import "testing"

func TestBuildMachineCodeFuncLayout(t *testing.T) {
	aggVirts := []uintptr{0x1000, 0x2000}

	code := buildMachineCodeFunc(aggVirts, 1, 0, false)

	movRbxHammerCount := opMovabsRbx(1)

	idx := indexOfBytes(code, movRbxHammerCount)
	if idx < 0 {
		t.Fatalf("expected exactly one movabs rbx,1 in %x", code)
	}
	if indexOfBytes(code[idx+len(movRbxHammerCount):], movRbxHammerCount) >= 0 {
		t.Fatalf("expected exactly one movabs rbx,1, found a second")
	}

	block := append(append([]byte{}, opMovabsRax(0x1000)...), opMovRcxFromRax()...)
	block = append(block, opClflushRax()...)
	block = append(block, opLfence()...)

	if c := countOccurrences(code, block); c != 1 {
		t.Fatalf("expected exactly one access+flush block for 0x1000, found %d", c)
	}

	block2 := append(append([]byte{}, opMovabsRax(0x2000)...), opMovRcxFromRax()...)
	block2 = append(block2, opClflushRax()...)
	block2 = append(block2, opLfence()...)

	if c := countOccurrences(code, block2); c != 1 {
		t.Fatalf("expected exactly one access+flush block for 0x2000, found %d", c)
	}

	mfenceDecJnzPrefix := append(append([]byte{}, opMfence()...), opDecRbx()...)
	if c := countOccurrences(code, mfenceDecJnzPrefix); c != 1 {
		t.Fatalf("expected exactly one mfence;dec rbx sequence, found %d", c)
	}

	if c := countOccurrences(code, opRet()); c != 1 {
		t.Fatalf("expected exactly one ret, found %d", c)
	}
}

func TestBuildMachineCodeFuncNOPPadding(t *testing.T) {
	withoutNOP := buildMachineCodeFunc([]uintptr{0x1000}, 1, 0, false)
	withNOP := buildMachineCodeFunc([]uintptr{0x1000}, 1, 3, false)

	if len(withNOP) != len(withoutNOP)+3 {
		t.Fatalf("expected nop_count=3 to add 3 bytes, got %d vs %d", len(withNOP), len(withoutNOP))
	}
}

func indexOfBytes(haystack, needle []byte) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func countOccurrences(haystack, needle []byte) int {
	count := 0
	rest := haystack
	for {
		i := indexOfBytes(rest, needle)
		if i < 0 {
			return count
		}
		count++
		rest = rest[i+1:]
	}
}
