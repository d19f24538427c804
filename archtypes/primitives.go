// Package archtypes provides minimal, concrete serialize.Codec
// implementations for a handful of leaf types. These stand in for the
// "wrapper archivings of booleans, integers, options, bit-sequences, and
// other leaf types" that spec.md §1 explicitly places out of scope: the
// chd package only needs *some* Codec to exercise its lookup and iteration
// logic, not a general derive system.
package archtypes

import (
	"bytes"
	"encoding/binary"
	"hash"

	bin "github.com/gagliardetto/binary"

	"github.com/opencoff/go-archive/relptr"
	"github.com/opencoff/go-archive/serialize"
)

// Uint64Codec archives a uint64 as 8 fixed little-endian bytes with no
// out-of-line data: a true zero-copy leaf, readable by a single unaligned
// load from the archive.
type Uint64Codec struct{}

var (
	_ serialize.Codec[uint64]      = Uint64Codec{}
	_ serialize.FixedCodec[uint64] = Uint64Codec{}
)

func (Uint64Codec) Size() int  { return 8 }
func (Uint64Codec) Align() int { return 8 }

func (Uint64Codec) Hash(v uint64, h hash.Hash64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	h.Write(b[:])
}

func (Uint64Codec) Equal(archive []byte, pos int64, v uint64) bool {
	return Uint64Codec{}.Read(archive, pos) == v
}

func (Uint64Codec) Serialize(v uint64, ser serialize.Serializer) (any, error) {
	return nil, nil
}

func (Uint64Codec) Resolve(pos int64, v uint64, resolver any, out []byte) {
	enc := bin.NewBinEncoder(&sliceWriter{out: out})
	_ = enc.WriteUint64(v, binary.LittleEndian)
}

func (Uint64Codec) Read(archive []byte, pos int64) uint64 {
	dec := bin.NewBinDecoder(archive[pos : pos+8])
	v, _ := dec.ReadUint64(binary.LittleEndian)
	return v
}

func (Uint64Codec) WriteInPlace(buf []byte, v uint64) {
	binary.LittleEndian.PutUint64(buf, v)
}

// BoolCodec archives a bool as a single fixed byte.
type BoolCodec struct{}

var (
	_ serialize.Codec[bool]      = BoolCodec{}
	_ serialize.FixedCodec[bool] = BoolCodec{}
)

func (BoolCodec) Size() int  { return 1 }
func (BoolCodec) Align() int { return 1 }

func (BoolCodec) Hash(v bool, h hash.Hash64) {
	if v {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
}

func (BoolCodec) Equal(archive []byte, pos int64, v bool) bool {
	return (archive[pos] != 0) == v
}

func (BoolCodec) Serialize(v bool, ser serialize.Serializer) (any, error) {
	return nil, nil
}

func (BoolCodec) Resolve(pos int64, v bool, resolver any, out []byte) {
	if v {
		out[0] = 1
	} else {
		out[0] = 0
	}
}

func (BoolCodec) Read(archive []byte, pos int64) bool {
	return archive[pos] != 0
}

func (BoolCodec) WriteInPlace(buf []byte, v bool) {
	if v {
		buf[0] = 1
	} else {
		buf[0] = 0
	}
}

// stringResolver is the resolver StringCodec.Serialize hands back: the
// archive position the raw string bytes were written at, and their length.
type stringResolver struct {
	pos int64
	n   int
}

// StringCodec archives a string as a fixed 12-byte record — a 4-byte
// little-endian length and an 8-byte relative pointer to the raw UTF-8
// bytes, written out-of-line during Serialize. It is deliberately NOT a
// FixedCodec: mutating a string through a pinned handle would require
// relocating or resizing the out-of-line bytes, which the pinned-mutation
// contract (spec.md §4.4, §9) forbids.
type StringCodec struct{}

var (
	_ serialize.Codec[string]               = StringCodec{}
	_ serialize.BorrowCodec[string, []byte] = StringCodec{}
)

func (StringCodec) Size() int  { return 12 }
func (StringCodec) Align() int { return 4 }

func (StringCodec) Hash(v string, h hash.Hash64) {
	h.Write([]byte(v))
}

func (c StringCodec) Equal(archive []byte, pos int64, v string) bool {
	return c.Read(archive, pos) == v
}

// HashProbe lets a lookup key on raw bytes without allocating a string,
// realizing the borrowed-probe capability in serialize.BorrowCodec.
func (StringCodec) HashProbe(probe []byte, h hash.Hash64) {
	h.Write(probe)
}

// EqualProbe compares the archived string directly against probe's bytes,
// never constructing a string of its own.
func (StringCodec) EqualProbe(archive []byte, pos int64, probe []byte) bool {
	n := binary.LittleEndian.Uint32(archive[pos : pos+4])
	if int(n) != len(probe) {
		return false
	}
	target := relptr.Resolve64(pos+4, archive[pos+4:pos+12])
	return bytes.Equal(archive[target:target+int64(n)], probe)
}

func (StringCodec) Serialize(v string, ser serialize.Serializer) (any, error) {
	pos := ser.Position()
	n, err := ser.Write([]byte(v))
	if err != nil {
		return nil, err
	}
	return stringResolver{pos: pos, n: n}, nil
}

func (StringCodec) Resolve(pos int64, v string, resolver any, out []byte) {
	r := resolver.(stringResolver)
	binary.LittleEndian.PutUint32(out[0:4], uint32(r.n))
	// The relative pointer field lives at archive position pos+4 (right
	// after the length word); its own position is what the offset is
	// computed from, per spec.md §4.1.
	_ = relptr.Emplace64(pos+4, r.pos, out[4:12])
}

func (StringCodec) Read(archive []byte, pos int64) string {
	n := binary.LittleEndian.Uint32(archive[pos : pos+4])
	target := relptr.Resolve64(pos+4, archive[pos+4:pos+12])
	return string(archive[target : target+int64(n)])
}

// sliceWriter adapts a fixed-width, pre-sized archive field to io.Writer so
// bin.Encoder (which wants an io.Writer) can write directly into it without
// an intermediate allocation.
type sliceWriter struct {
	out []byte
	n   int
}

func (w *sliceWriter) Write(p []byte) (int, error) {
	n := copy(w.out[w.n:], p)
	w.n += n
	return n, nil
}
