package entropy

import "testing"

func TestSeededIsReproducible(t *testing.T) {
	a, b := NewSeeded(42), NewSeeded(42)
	for i := 0; i < 50; i++ {
		if a.Float64() != b.Float64() || a.Intn(10) != b.Intn(10) {
			t.Fatalf("sources with the same seed diverged at draw %d", i)
		}
	}
}

func TestZeroSeedUsesCrypto(t *testing.T) {
	if _, ok := NewSeeded(0).(Crypto); !ok {
		t.Fatalf("seed 0 should select the crypto source")
	}
}

func TestCryptoRanges(t *testing.T) {
	var c Crypto
	for i := 0; i < 200; i++ {
		if f := c.Float64(); f < 0 || f >= 1 {
			t.Fatalf("Float64 out of range: %v", f)
		}
		if n := c.Intn(5); n < 0 || n >= 5 {
			t.Fatalf("Intn out of range: %d", n)
		}
	}
	if c.Intn(0) != 0 {
		t.Fatalf("Intn(0) should be 0")
	}
}

func TestRangeAndPick(t *testing.T) {
	src := NewSeeded(7)
	for i := 0; i < 100; i++ {
		if v := Range(src, 10, 20); v < 10 || v >= 20 {
			t.Fatalf("Range out of bounds: %v", v)
		}
	}
	opts := []string{"a", "b", "c"}
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		seen[Pick(src, opts)] = true
	}
	if len(seen) != 3 {
		t.Fatalf("Pick never chose some options: %v", seen)
	}
}
