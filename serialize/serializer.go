// Package serialize defines the append-only writer contract the CHD builder
// depends on, and the Codec capability set that stands in for the archive
// format's derivation machinery (out of scope for this module per spec.md
// §1 — see archtypes for minimal concrete implementations).
package serialize

import (
	"errors"
	"hash"
)

// ErrShortWrite is returned when the underlying writer accepts fewer bytes
// than requested without itself returning an error.
var ErrShortWrite = errors.New("serialize: short write")

// Serializer is an append-only, single-threaded-with-respect-to-itself
// writer that tracks its own byte position. It is the minimal contract
// spec.md §4.2 describes: Position, Write, and alignment.
type Serializer interface {
	// Position returns the byte index the next Write call will land at.
	Position() int64

	// Write appends raw bytes and advances the position. It returns
	// ErrShortWrite if the underlying sink accepted fewer bytes than
	// given without otherwise failing.
	Write(p []byte) (int, error)

	// AlignFor pads with zero bytes so the next write satisfies the
	// given alignment (a power of two), and returns the now-aligned
	// position.
	AlignFor(align int) (int64, error)
}

// Codec describes everything the CHD container needs to know about a key or
// value type T in order to hash it, compare it, and write it into an
// archive via two-phase resolve. It is the capability set spec.md §9 calls
// "Dispatch over key types": {Hash, Eq} plus the serialize/resolve pair that
// realizes rkyv's Archive/Serialize traits without code generation.
//
// A Codec's archived representation is always a FIXED number of bytes
// (Size()); variable-length data (e.g. string contents) is written
// out-of-line during Serialize and referenced via a relative pointer baked
// into those fixed bytes during Resolve.
type Codec[T any] interface {
	// Size is the fixed, archived byte width of T.
	Size() int

	// Align is the byte alignment required by T's archived
	// representation (1, 2, 4, or 8).
	Align() int

	// Hash writes the canonical bytes for v into h. Two values that
	// Equal considers equal must write the same bytes.
	Hash(v T, h hash.Hash64)

	// Equal reports whether the archived value whose fixed-width bytes
	// start at archive[pos:pos+Size()] equals v. archive is the full
	// backing buffer (not just the fixed-width slice) so codecs backed
	// by out-of-line data (e.g. strings, via a relative pointer in their
	// fixed bytes) can dereference into it.
	Equal(archive []byte, pos int64, v T) bool

	// Serialize writes any out-of-line data for v via ser and returns an
	// opaque resolver to be handed back to Resolve once the final
	// position of v's fixed-width slot is known.
	Serialize(v T, ser Serializer) (resolver any, err error)

	// Resolve writes the final, fixed-width archived bytes for v at
	// archive position pos into out (len(out) == Size()).
	Resolve(pos int64, v T, resolver any, out []byte)

	// Read decodes a T from its archived bytes, given the full backing
	// archive and the position of its fixed-width bytes within it.
	Read(archive []byte, pos int64) T
}

// BorrowCodec extends Codec[K] with the ability to hash and compare a probe
// value of a different type Q that borrows from K, the way rkyv's
// `Index<&Q> where K: Borrow<Q>` looks a key up by anything that hashes and
// compares the same as the stored K (spec.md §9 "Dispatch over key types").
// A lookup keyed on Q (e.g. []byte against an archived string) never has to
// materialize a K just to throw it away after one comparison.
type BorrowCodec[K, Q any] interface {
	Codec[K]

	// HashProbe writes the same canonical bytes Hash would write for the
	// K that probe borrows from. HashProbe(q, h) and Hash(k, h) must
	// agree whenever EqualProbe(archive, pos, q) would hold for the k
	// archived at pos.
	HashProbe(probe Q, h hash.Hash64)

	// EqualProbe reports whether the archived K at
	// archive[pos:pos+Size()] equals probe.
	EqualProbe(archive []byte, pos int64, probe Q) bool
}

// FixedCodec is implemented by Codecs whose archived representation can be
// rewritten in place without changing size or relocating any out-of-line
// data — the capability the pinned mutable value handle (spec.md §4.4, §9)
// requires. Codecs backed entirely by out-of-line storage (e.g. strings)
// need not implement it.
type FixedCodec[T any] interface {
	Codec[T]

	// WriteInPlace overwrites buf (exactly Size() bytes) with v's
	// archived representation, without performing any out-of-line
	// writes. It must not change what any relative pointer inside buf
	// points to.
	WriteInPlace(buf []byte, v T)
}

// ResolveAligned aligns the serializer for codec's width, then resolves v's
// fixed-width archived bytes at the aligned position, using resolver
// obtained from an earlier Serialize call. It mirrors rkyv's
// Serializer::resolve_aligned: align, then invoke the two-phase resolve.
func ResolveAligned[T any](ser Serializer, codec Codec[T], v T, resolver any) (int64, error) {
	pos, err := ser.AlignFor(codec.Align())
	if err != nil {
		return 0, err
	}

	buf := make([]byte, codec.Size())
	codec.Resolve(pos, v, resolver, buf)
	if _, err := ser.Write(buf); err != nil {
		return 0, err
	}
	return pos, nil
}
