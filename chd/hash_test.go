package chd

import (
	"testing"

	"github.com/opencoff/go-archive/archtypes"
)

func TestSeaHashDeterministic(t *testing.T) {
	h1 := newSeaHash()
	h2 := newSeaHash()

	data := []byte("the quick brown fox jumps over the lazy dog")
	h1.Write(data)
	h2.Write(data)

	if h1.Sum64() != h2.Sum64() {
		t.Fatalf("seaHash is not deterministic for identical input")
	}
}

func TestSeaHashSensitiveToInput(t *testing.T) {
	a := newSeaHash()
	b := newSeaHash()
	a.Write([]byte("alpha"))
	b.Write([]byte("alphb"))

	if a.Sum64() == b.Sum64() {
		t.Fatalf("seaHash collided on trivially different input (could happen by chance, but not for these)")
	}
}

func TestSeaHashIncrementalMatchesSingleWrite(t *testing.T) {
	whole := newSeaHash()
	whole.Write([]byte("0123456789abcdef0123"))

	split := newSeaHash()
	split.Write([]byte("0123456789"))
	split.Write([]byte("abcdef0123"))

	if whole.Sum64() != split.Sum64() {
		t.Fatalf("seaHash must not depend on how Write calls are chunked")
	}
}

func TestH1WithinRange(t *testing.T) {
	kc := archtypes.StringCodec{}
	n := 37
	for _, s := range keyw {
		idx := h1[string](kc, s, n)
		if idx < 0 || idx >= n {
			t.Fatalf("h1(%q) = %d out of range [0,%d)", s, idx, n)
		}
	}
}

func TestH2WithinRangeAndVariesWithSeed(t *testing.T) {
	kc := archtypes.StringCodec{}
	n := 11
	key := "burlesques"

	a := h2[string](kc, 0x80000000, key, n)
	b := h2[string](kc, 0x80000001, key, n)
	if a < 0 || a >= n || b < 0 || b >= n {
		t.Fatalf("h2 out of range: a=%d b=%d n=%d", a, b, n)
	}
	if a == b {
		t.Fatalf("h2 did not vary with seed: both seeds gave %d", a)
	}
}
