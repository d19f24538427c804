package chd

import (
	"encoding/binary"
	"hash"

	"github.com/opencoff/go-archive/serialize"
)

// The four 64-bit seeds are part of the archive's on-wire contract
// (spec.md §6): any change invalidates every previously written archive, so
// they are compile-time constants, never configuration.
const (
	seedA uint64 = 0x08576fb6170b5f5f
	seedB uint64 = 0x587775eeb84a7e46
	seedC uint64 = 0xac701115428ee569
	seedD uint64 = 0x910feb91b92bb1cd
)

// seaHash is a from-scratch Go port of SeaHash, a fast seeded
// non-cryptographic hash built around a single diffusion step applied to a
// rolling 4-word state. Ported by hand rather than imported because spec.md
// §6 fixes the exact hash function and seed schedule as part of the wire
// format — the same reason the teacher (opencoff/go-chd's chd.go) hand-ported
// Zi Long Tan's superfast hash into rhash/mix instead of depending on a
// library for it.
type seaHash struct {
	a, b, c, d uint64
	buf        [8]byte
	nbuf       int
	length     uint64
}

var (
	_ hash.Hash64 = (*seaHash)(nil)
)

func newSeaHash() *seaHash {
	h := &seaHash{}
	h.Reset()
	return h
}

func (h *seaHash) Reset() {
	h.a, h.b, h.c, h.d = seedA, seedB, seedC, seedD
	h.nbuf = 0
	h.length = 0
}

// diffuse is SeaHash's single non-linear mixing step.
func diffuse(x uint64) uint64 {
	x *= 0x6eed0e9da4d94a4f
	a := x >> 32
	b := x >> 60
	x ^= a >> b
	x *= 0x6eed0e9da4d94a4f
	return x
}

func (h *seaHash) consume(x uint64) {
	a := diffuse(h.a ^ x)
	h.a, h.b, h.c, h.d = h.b, h.c, h.d, a
}

func (h *seaHash) Write(p []byte) (int, error) {
	n := len(p)
	h.length += uint64(n)

	if h.nbuf > 0 {
		k := copy(h.buf[h.nbuf:], p)
		h.nbuf += k
		p = p[k:]
		if h.nbuf == 8 {
			h.consume(binary.LittleEndian.Uint64(h.buf[:]))
			h.nbuf = 0
		}
	}

	for len(p) >= 8 {
		h.consume(binary.LittleEndian.Uint64(p[:8]))
		p = p[8:]
	}

	if len(p) > 0 {
		h.nbuf = copy(h.buf[:], p)
	}

	return n, nil
}

func (h *seaHash) Sum64() uint64 {
	a, b, c, d := h.a, h.b, h.c, h.d
	if h.nbuf > 0 {
		var tail [8]byte
		copy(tail[:], h.buf[:h.nbuf])
		x := binary.LittleEndian.Uint64(tail[:])
		na := diffuse(a ^ x)
		a, b, c, d = b, c, d, na
	}
	a ^= h.length
	return diffuse(a ^ b ^ c ^ d)
}

func (h *seaHash) Sum(b []byte) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], h.Sum64())
	return append(b, tmp[:]...)
}

func (h *seaHash) Size() int      { return 8 }
func (h *seaHash) BlockSize() int { return 8 }

// h1 computes the first-level bucket index for a key: hash(key) mod n.
func h1[K any](kc keyHasher[K], key K, n int) int {
	h := newSeaHash()
	kc.Hash(key, h)
	return int(h.Sum64() % uint64(n))
}

// h2 computes the second-level placement index for a key given a bucket
// seed: hash(seed || key) mod n.
func h2[K any](kc keyHasher[K], seed uint32, key K, n int) int {
	h := newSeaHash()
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], seed)
	h.Write(b[:])
	kc.Hash(key, h)
	return int(h.Sum64() % uint64(n))
}

// h1Probe is h1 for a borrowed probe value of a different type Q, used by
// GetProbe to dispatch without ever constructing a K.
func h1Probe[K, Q any](kc serialize.BorrowCodec[K, Q], probe Q, n int) int {
	h := newSeaHash()
	kc.HashProbe(probe, h)
	return int(h.Sum64() % uint64(n))
}

// h2Probe is h2 for a borrowed probe value of a different type Q.
func h2Probe[K, Q any](kc serialize.BorrowCodec[K, Q], seed uint32, probe Q, n int) int {
	h := newSeaHash()
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], seed)
	h.Write(b[:])
	kc.HashProbe(probe, h)
	return int(h.Sum64() % uint64(n))
}

// keyHasher is the subset of serialize.Codec the hashing routines need; kept
// narrow so hash.go has no dependency on the rest of the Codec surface.
type keyHasher[K any] interface {
	Hash(v K, h hash.Hash64)
}
