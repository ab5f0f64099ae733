package checksum

import "testing"

func TestSum_Deterministic(t *testing.T) {
	a := Sum([]byte("hello"))
	b := Sum([]byte("hello"))
	if a != b {
		t.Error("Sum not deterministic")
	}
	if len(a) != 64 {
		t.Errorf("len = %d, want 64 hex chars", len(a))
	}
}

func TestSumParts_BoundaryDistinct(t *testing.T) {
	if SumParts("ab", "c") == SumParts("a", "bc") {
		t.Error("field boundaries not preserved")
	}
	if SumParts("a", "b") == SumParts("a", "b", "") {
		t.Error("trailing empty field not distinguished")
	}
}

func TestSumParts_Deterministic(t *testing.T) {
	if SumParts("rev1", "att1") != SumParts("rev1", "att1") {
		t.Error("SumParts not deterministic")
	}
}
