package chd

import (
	"encoding/binary"
	"fmt"

	"github.com/opencoff/go-archive/relptr"
	"github.com/opencoff/go-archive/serialize"
)

// View is a read-only handle onto an archived map living inside an
// already-mapped byte buffer, rooted at headerPos. It never copies or
// decodes the archive eagerly — every operation walks the buffer directly,
// the way rkyv's ArchivedHashMap borrows straight out of its backing bytes
// (spec.md §4.4 "Lookup").
type View[K any, V any] struct {
	archive []byte
	header  int64
	kc      serialize.Codec[K]
	vc      serialize.Codec[V]

	len         int
	displacePos int64
	entriesPos  int64
	entrySize   int
}

// Open reads the 3-field header at headerPos and returns a View over it.
// archive must be the full backing buffer the archive was written into —
// every relative pointer in the map is resolved against it.
func Open[K any, V any](archive []byte, headerPos int64, kc serialize.Codec[K], vc serialize.Codec[V]) *View[K, V] {
	n := int(binary.LittleEndian.Uint32(archive[headerPos : headerPos+4]))

	var displacePos, entriesPos int64
	if n > 0 {
		displacePos = relptr.Resolve32(headerPos+4, archive[headerPos+4:headerPos+8])
		entriesPos = relptr.Resolve32(headerPos+8, archive[headerPos+8:headerPos+12])
	}

	return &View[K, V]{
		archive:     archive,
		header:      headerPos,
		kc:          kc,
		vc:          vc,
		len:         n,
		displacePos: displacePos,
		entriesPos:  entriesPos,
		entrySize:   kc.Size() + vc.Size(),
	}
}

// Len returns the number of entries in the map.
func (v *View[K, V]) Len() int { return v.len }

// IsEmpty reports whether the map has no entries.
func (v *View[K, V]) IsEmpty() bool { return v.len == 0 }

// displacement returns the raw displacement word for first-level bucket d.
func (v *View[K, V]) displacement(d int) uint32 {
	off := v.displacePos + int64(d)*4
	return binary.LittleEndian.Uint32(v.archive[off : off+4])
}

// slot resolves key to its candidate entry-table slot via the two-level
// CHD dispatch (spec.md §4.4): a cleared high bit in the bucket's
// displacement word means "this is the slot index directly"; a set high
// bit means "this is a seed — rehash with it".
func (v *View[K, V]) slot(key K) (int, bool) {
	if v.len == 0 {
		return 0, false
	}
	d := h1[K](v.kc, key, v.len)
	disp := v.displacement(d)
	if disp == sentinelDisplacement {
		return 0, false
	}
	if disp&seedLowBit == 0 {
		return int(disp), true
	}
	return h2[K](v.kc, disp, key, v.len), true
}

func (v *View[K, V]) entryPos(slot int) int64 {
	return v.entriesPos + int64(slot)*int64(v.entrySize)
}

// ContainsKey reports whether key is present in the map. Because CHD only
// guarantees a collision-free placement for keys that were present at
// build time, a key absent from the map can still land on an occupied
// slot; the candidate's archived key must be compared to confirm (spec.md
// §4.4, §7 "false-candidate check").
func (v *View[K, V]) ContainsKey(key K) bool {
	_, _, ok := v.GetKeyValue(key)
	return ok
}

// Get returns the archived value for key, if present.
func (v *View[K, V]) Get(key K) (V, bool) {
	_, val, ok := v.GetKeyValue(key)
	return val, ok
}

// GetKeyValue returns the archived key and value for a lookup key, if
// present. The returned key is the archive's own copy of key, decoded back
// out of the archive rather than handed straight back.
func (v *View[K, V]) GetKeyValue(key K) (K, V, bool) {
	var zeroK K
	var zeroV V
	slot, ok := v.slot(key)
	if !ok {
		return zeroK, zeroV, false
	}
	pos := v.entryPos(slot)
	if !v.kc.Equal(v.archive, pos, key) {
		return zeroK, zeroV, false
	}
	k := v.kc.Read(v.archive, pos)
	val := v.vc.Read(v.archive, pos+int64(v.kc.Size()))
	return k, val, true
}

// MustGet returns the archived value for key, panicking with a descriptive
// message if key is absent — the indexing-style counterpart to Get, for
// callers who have already established the key must be present and would
// rather fail loudly than thread an error around, mirroring rkyv's
// Index::index calling .unwrap() (spec.md §4.4 "index(k): may fail").
func (v *View[K, V]) MustGet(key K) V {
	val, ok := v.Get(key)
	if !ok {
		panic(fmt.Sprintf("chd: key not found: %v", key))
	}
	return val
}

// GetProbe looks up a value by a probe of type Q that borrows from K,
// without ever constructing a K, the way rkyv's `Index<&Q> where K:
// Borrow<Q>` dispatches on anything that hashes and compares the same as
// the stored key (spec.md §9 "Dispatch over key types"). kc must be the
// same codec v was opened with, reinterpreted as a BorrowCodec[K, Q]; it is
// passed explicitly rather than stored on View because Go has no way to add
// a type parameter to an existing method.
func GetProbe[K, V, Q any](v *View[K, V], kc serialize.BorrowCodec[K, Q], probe Q) (V, bool) {
	var zero V
	slot, ok := slotProbe[K, V, Q](v, kc, probe)
	if !ok {
		return zero, false
	}
	pos := v.entryPos(slot)
	if !kc.EqualProbe(v.archive, pos, probe) {
		return zero, false
	}
	return v.vc.Read(v.archive, pos+int64(v.kc.Size())), true
}

// slotProbe is slot's counterpart for a borrowed probe value of type Q. It
// is a free function, not a method, because Go methods cannot introduce
// type parameters beyond the receiver's.
func slotProbe[K, V, Q any](v *View[K, V], kc serialize.BorrowCodec[K, Q], probe Q) (int, bool) {
	if v.len == 0 {
		return 0, false
	}
	d := h1Probe[K, Q](kc, probe, v.len)
	disp := v.displacement(d)
	if disp == sentinelDisplacement {
		return 0, false
	}
	if disp&seedLowBit == 0 {
		return int(disp), true
	}
	return h2Probe[K, Q](kc, disp, probe, v.len), true
}

// SetValue overwrites the archived value for key in place, if the View's
// value codec supports it. It is the dynamic counterpart to
// FixedView.Pin/PinnedValue.Set for callers holding a plain View who don't
// statically know whether V's codec is a serialize.FixedCodec: it returns
// ErrWouldRelocate if not, rather than requiring the caller to re-open the
// archive through OpenFixed. OpenFixed's compile-time check is still the
// right choice whenever the codec's fixedness is known up front — SetValue
// only exists for the generic path where it isn't (spec.md §4.4, §9:
// mutation must never move a value or its out-of-line data).
func (v *View[K, V]) SetValue(key K, val V) error {
	fc, ok := v.vc.(serialize.FixedCodec[V])
	if !ok {
		return ErrWouldRelocate
	}
	slot, ok := v.slot(key)
	if !ok {
		return ErrKeyNotFound
	}
	pos := v.entryPos(slot)
	if !v.kc.Equal(v.archive, pos, key) {
		return ErrKeyNotFound
	}
	valPos := pos + int64(v.kc.Size())
	fc.WriteInPlace(v.archive[valPos:valPos+int64(fc.Size())], val)
	return nil
}

// FixedView is a View whose value codec supports in-place mutation. Pin
// resolves key to a PinnedValue that can overwrite the archived value's
// bytes without relocating it or any of its out-of-line data (spec.md §4.4
// "Pinned mutable access", §9).
type FixedView[K any, V any] struct {
	*View[K, V]
	fvc serialize.FixedCodec[V]
}

// OpenFixed is Open for maps whose value codec is a FixedCodec, enabling
// Pin.
func OpenFixed[K any, V any](archive []byte, headerPos int64, kc serialize.Codec[K], vc serialize.FixedCodec[V]) *FixedView[K, V] {
	return &FixedView[K, V]{
		View: Open[K, V](archive, headerPos, kc, vc),
		fvc:  vc,
	}
}

// PinnedValue is a handle onto one archived value's bytes, addressable for
// in-place mutation as long as the underlying archive buffer is writable.
type PinnedValue[V any] struct {
	archive []byte
	pos     int64
	vc      serialize.FixedCodec[V]
}

// Pin resolves key to a PinnedValue, if present.
func (v *FixedView[K, V]) Pin(key K) (PinnedValue[V], bool) {
	slot, ok := v.slot(key)
	if !ok {
		return PinnedValue[V]{}, false
	}
	pos := v.entryPos(slot)
	if !v.kc.Equal(v.archive, pos, key) {
		return PinnedValue[V]{}, false
	}
	return PinnedValue[V]{
		archive: v.archive,
		pos:     pos + int64(v.kc.Size()),
		vc:      v.fvc,
	}, true
}

// Get reads the pinned value's current archived bytes.
func (p PinnedValue[V]) Get() V {
	return p.vc.Read(p.archive, p.pos)
}

// Set overwrites the pinned value's archived bytes in place with val.
// val's serialized form must fit the value codec's fixed Size — true for
// any FixedCodec by construction, since WriteInPlace never allocates
// out-of-line data (spec.md §9 "mutation must never relocate").
func (p PinnedValue[V]) Set(val V) {
	p.vc.WriteInPlace(p.archive[p.pos:p.pos+int64(p.vc.Size())], val)
}
