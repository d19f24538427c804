package chd

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/opencoff/go-archive/archtypes"
	"github.com/opencoff/go-archive/serialize"
)

var keyw = []string{
	"expectoration",
	"mizzenmastman",
	"stockfather",
	"pictorialness",
	"villainous",
	"unquality",
	"sized",
	"Tarahumari",
	"endocrinotherapy",
	"quicksandy",
	"heretics",
	"pediment",
	"spleen's",
	"Shepard's",
	"paralyzed",
	"megahertzes",
	"Richardson's",
	"mechanics's",
	"Springfield",
	"burlesques",
}

// buildStringUint builds and opens a string->uint64 archive from items,
// returning the View and the raw archive bytes.
func buildStringUint(t *testing.T, items []KV[string, uint64]) (*View[string, uint64], []byte) {
	t.Helper()
	ser := serialize.NewBuf()
	kc, vc := archtypes.StringCodec{}, archtypes.Uint64Codec{}

	r, err := Build[string, uint64](items, kc, vc, ser)
	require.NoError(t, err)

	headerPos, err := WriteHeader(ser, r)
	require.NoError(t, err)

	archive := ser.Bytes()
	return Open[string, uint64](archive, headerPos, kc, vc), archive
}

func wordItems() []KV[string, uint64] {
	items := make([]KV[string, uint64], len(keyw))
	for i, s := range keyw {
		items[i] = KV[string, uint64]{Key: s, Val: uint64(i)}
	}
	return items
}

func TestCHDSimple(t *testing.T) {
	assert := newAsserter(t)

	items := wordItems()
	view, _ := buildStringUint(t, items)

	assert(view.Len() == len(items), "len mismatch: got %d want %d", view.Len(), len(items))

	seen := make(map[int]string)
	for i, want := range items {
		v, ok := view.Get(want.Key)
		assert(ok, "key %q not found", want.Key)
		assert(v == want.Val, "key %q: got %d want %d", want.Key, v, want.Val)

		slot, ok := view.slot(want.Key)
		assert(ok, "slot lookup failed for %q", want.Key)
		if other, dup := seen[slot]; dup {
			t.Fatalf("slot %d used by both %q and %q (item %d)", slot, other, want.Key, i)
		}
		seen[slot] = want.Key
	}
}

func TestCHDMissingKey(t *testing.T) {
	view, _ := buildStringUint(t, wordItems())

	_, ok := view.Get("this key was never inserted")
	require.False(t, ok)
	require.False(t, view.ContainsKey("this key was never inserted"))
}

func TestCHDDeterministic(t *testing.T) {
	items := wordItems()

	_, archive1 := buildStringUint(t, items)
	_, archive2 := buildStringUint(t, items)

	require.Equal(t, archive1, archive2, "Build must be deterministic for identical input")
}

func TestCHDIterCoversEveryEntry(t *testing.T) {
	items := wordItems()
	view, _ := buildStringUint(t, items)

	want := make(map[string]uint64, len(items))
	for _, it := range items {
		want[it.Key] = it.Val
	}

	got := make(map[string]uint64, len(items))
	it := view.Iter()
	count := 0
	for it.Next() {
		k, v := it.KeyValue()
		got[k] = v
		count++
	}

	require.Equal(t, len(items), count, "iterator must visit exactly n entries")
	require.Equal(t, want, got)
}

func TestCHDKeysValues(t *testing.T) {
	items := wordItems()
	view, _ := buildStringUint(t, items)

	keys := view.Keys()
	values := view.Values()
	require.Len(t, keys, len(items))
	require.Len(t, values, len(items))

	for i, k := range keys {
		v, ok := view.Get(k)
		require.True(t, ok)
		require.Equal(t, values[i], v)
	}
}

func TestCHDEmptyMap(t *testing.T) {
	view, _ := buildStringUint(t, nil)

	require.Equal(t, 0, view.Len())
	require.True(t, view.IsEmpty())
	_, ok := view.Get("anything")
	require.False(t, ok)

	it := view.Iter()
	require.False(t, it.Next())
}

func TestCHDSingleEntry(t *testing.T) {
	items := []KV[string, uint64]{{Key: "solo", Val: 42}}
	view, _ := buildStringUint(t, items)

	require.Equal(t, 1, view.Len())
	v, ok := view.Get("solo")
	require.True(t, ok)
	require.Equal(t, uint64(42), v)
}

// TestCHDDisplacementEncoding directly inspects the raw displacement words
// via view.displacement, rather than going through Get/ContainsKey, to
// pin down spec.md §8 property 6 ("every non-sentinel displacement has
// high bit set iff bucket size > 1; every direct index < n") and scenarios
// S2 (singleton: one direct-index displacement, value 0) and S3 (two keys
// forced to collide under h1: one seed, one sentinel).
func TestCHDDisplacementEncoding(t *testing.T) {
	kc := archtypes.StringCodec{}

	// S2: a singleton map has exactly one non-sentinel displacement,
	// high bit clear, value 0 (its only entry placed at slot 0).
	single := []KV[string, uint64]{{Key: "solo", Val: 42}}
	sview, _ := buildStringUint(t, single)

	nonSentinel := 0
	for d := 0; d < sview.len; d++ {
		disp := sview.displacement(d)
		if disp == sentinelDisplacement {
			continue
		}
		nonSentinel++
		require.Zero(t, disp&seedLowBit, "singleton bucket displacement must have high bit clear, got %#x", disp)
		require.Equal(t, uint32(0), disp, "singleton's sole entry must land at slot 0")
	}
	require.Equal(t, 1, nonSentinel, "singleton map must have exactly one non-sentinel displacement")

	// S3: find two keys among the test corpus that collide under h1 at
	// n=2, forcing a two-member bucket.
	var a, b string
	found := false
outer:
	for _, s1 := range keyw {
		for _, s2 := range keyw {
			if s1 == s2 {
				continue
			}
			if h1[string](kc, s1, 2) == h1[string](kc, s2, 2) {
				a, b = s1, s2
				found = true
				break outer
			}
		}
	}
	require.True(t, found, "no colliding pair found among test keys at n=2")

	pview, _ := buildStringUint(t, []KV[string, uint64]{{Key: a, Val: 10}, {Key: b, Val: 20}})

	var seedCount, sentinelCount int
	for d := 0; d < pview.len; d++ {
		disp := pview.displacement(d)
		switch {
		case disp == sentinelDisplacement:
			sentinelCount++
		case disp&seedLowBit != 0:
			seedCount++
		default:
			t.Fatalf("colliding pair must not produce a direct index, got %#x at bucket %d", disp, d)
		}
	}
	require.Equal(t, 1, seedCount, "colliding pair must produce exactly one seed displacement")
	require.Equal(t, 1, sentinelCount, "colliding pair must leave exactly one bucket a sentinel")

	va, ok := pview.Get(a)
	require.True(t, ok)
	require.Equal(t, uint64(10), va)
	vb, ok := pview.Get(b)
	require.True(t, ok)
	require.Equal(t, uint64(20), vb)

	// Property 6, checked generally: over the larger word list, every
	// direct index must be < n and every seed must have the high bit set
	// (the converse of both is checked by construction above).
	words := wordItems()
	wview, _ := buildStringUint(t, words)
	for d := 0; d < wview.len; d++ {
		disp := wview.displacement(d)
		if disp == sentinelDisplacement {
			continue
		}
		if disp&seedLowBit == 0 {
			require.Less(t, int(disp), wview.len, "direct index must be < n")
		}
	}
}

func TestCHDLargePermutation(t *testing.T) {
	n := 5000
	items := make([]KV[string, uint64], n)
	for i := 0; i < n; i++ {
		items[i] = KV[string, uint64]{Key: fmt.Sprintf("key-%06d", i), Val: uint64(i * 7)}
	}
	view, _ := buildStringUint(t, items)

	require.Equal(t, n, view.Len())
	for _, it := range items {
		v, ok := view.Get(it.Key)
		require.True(t, ok, "missing key %q", it.Key)
		require.Equal(t, it.Val, v)
	}
}

func TestCHDPinnedMutation(t *testing.T) {
	items := wordItems()
	ser := serialize.NewBuf()
	kc, vc := archtypes.StringCodec{}, archtypes.Uint64Codec{}

	r, err := Build[string, uint64](items, kc, vc, ser)
	require.NoError(t, err)
	headerPos, err := WriteHeader(ser, r)
	require.NoError(t, err)

	archive := ser.Bytes()
	fview := OpenFixed[string, uint64](archive, headerPos, kc, vc)

	target := items[3].Key
	p, ok := fview.Pin(target)
	require.True(t, ok)
	require.Equal(t, items[3].Val, p.Get())

	p.Set(999999)
	require.Equal(t, uint64(999999), p.Get())

	v, ok := fview.Get(target)
	require.True(t, ok)
	require.Equal(t, uint64(999999), v, "mutation through pin must be visible via plain Get")

	for i, it := range items {
		if i == 3 {
			continue
		}
		v, ok := fview.Get(it.Key)
		require.True(t, ok)
		require.Equal(t, it.Val, v, "mutating one entry must not disturb others")
	}
}

func TestCHDPinIterVisitsAll(t *testing.T) {
	items := wordItems()
	ser := serialize.NewBuf()
	kc, vc := archtypes.StringCodec{}, archtypes.Uint64Codec{}

	r, err := Build[string, uint64](items, kc, vc, ser)
	require.NoError(t, err)
	headerPos, err := WriteHeader(ser, r)
	require.NoError(t, err)

	archive := ser.Bytes()
	fview := OpenFixed[string, uint64](archive, headerPos, kc, vc)

	count := 0
	it := fview.PinIter()
	for it.Next() {
		p := it.Pinned()
		p.Set(p.Get() + 1)
		count++
	}
	require.Equal(t, len(items), count)

	for _, want := range items {
		v, ok := fview.Get(want.Key)
		require.True(t, ok)
		require.Equal(t, want.Val+1, v)
	}
}

// TestCHDEqualityUnderPermutation is spec.md §8 scenario S6: the same (k,v)
// multiset built from two different input orders. Build places each key by
// its hashes and bucket id alone, so input order does not change which slot
// a key lands on; the two archives must compare equal, and must carry the
// exact same (k,v) multiset compared without regard to slot order.
func TestCHDEqualityUnderPermutation(t *testing.T) {
	a := []KV[string, uint64]{{Key: "a", Val: 1}, {Key: "b", Val: 2}, {Key: "c", Val: 3}}
	b := []KV[string, uint64]{{Key: "c", Val: 3}, {Key: "a", Val: 1}, {Key: "b", Val: 2}}

	viewA, _ := buildStringUint(t, a)
	viewB, _ := buildStringUint(t, b)

	require.True(t, Equal(viewA, viewB), "archives of the same multiset in different input order must compare equal")

	diff := cmp.Diff(viewA.Keys(), viewB.Keys(), cmpopts.SortSlices(func(x, y string) bool { return x < y }))
	require.Empty(t, diff, "iteration must yield the same key multiset regardless of slot permutation (-a +b)")
}

func TestCHDEqualityRejectsDifferentValue(t *testing.T) {
	a := []KV[string, uint64]{{Key: "a", Val: 1}, {Key: "b", Val: 2}}
	b := []KV[string, uint64]{{Key: "a", Val: 1}, {Key: "b", Val: 999}}

	viewA, _ := buildStringUint(t, a)
	viewB, _ := buildStringUint(t, b)

	require.False(t, Equal(viewA, viewB))
}

func TestCHDMustGet(t *testing.T) {
	view, _ := buildStringUint(t, wordItems())

	v := view.MustGet(keyw[0])
	require.Equal(t, uint64(0), v)

	require.Panics(t, func() { view.MustGet("absent") })
}

func TestCHDSetValue(t *testing.T) {
	view, _ := buildStringUint(t, wordItems())

	err := view.SetValue(keyw[0], 999999)
	require.NoError(t, err)
	v, ok := view.Get(keyw[0])
	require.True(t, ok)
	require.Equal(t, uint64(999999), v)

	err = view.SetValue("absent", 1)
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestCHDSetValueRejectsNonFixedCodec(t *testing.T) {
	items := []KV[uint64, string]{{Key: 1, Val: "a"}, {Key: 2, Val: "b"}}
	ser := serialize.NewBuf()
	kc, vc := archtypes.Uint64Codec{}, archtypes.StringCodec{}

	r, err := Build[uint64, string](items, kc, vc, ser)
	require.NoError(t, err)
	headerPos, err := WriteHeader(ser, r)
	require.NoError(t, err)

	view := Open[uint64, string](ser.Bytes(), headerPos, kc, vc)
	require.ErrorIs(t, view.SetValue(1, "z"), ErrWouldRelocate)
}

func TestCHDGetProbe(t *testing.T) {
	items := wordItems()
	view, _ := buildStringUint(t, items)

	kc := archtypes.StringCodec{}
	v, ok := GetProbe[string, uint64, []byte](view, kc, []byte(keyw[0]))
	require.True(t, ok)
	require.Equal(t, uint64(0), v)

	_, ok = GetProbe[string, uint64, []byte](view, kc, []byte("nope, never inserted"))
	require.False(t, ok)
}
