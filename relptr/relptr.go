// Package relptr implements the archive's position-independent relative
// pointer: a signed offset field whose value is `target - self`. Because the
// archive is a plain []byte (possibly mmap'd, possibly relocated by copying),
// every pointer inside it is expressed relative to its own byte position
// rather than as an absolute address.
package relptr

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrOffsetOverflow is returned by Emplace32 when a relative offset does not
// fit in its 32-bit field. Emplace64 never returns it.
var ErrOffsetOverflow = errors.New("relptr: target offset overflows field width")

// Size32 and Size64 are the encoded width, in bytes, of the two supported
// field widths.
const (
	Size32 = 4
	Size64 = 8
)

// Emplace32 writes a 4-byte little-endian relative offset into out[:4] such
// that resolving it from selfPos recovers targetPos. selfPos is the byte
// position of the field itself (out's position within the archive), not the
// position of any enclosing struct.
func Emplace32(selfPos, targetPos int64, out []byte) error {
	off := targetPos - selfPos
	if off > math.MaxInt32 || off < math.MinInt32 {
		return ErrOffsetOverflow
	}
	binary.LittleEndian.PutUint32(out, uint32(int32(off)))
	return nil
}

// Resolve32 reads a 4-byte little-endian relative offset from field (the
// field's own bytes) and returns the absolute target position, given the
// field's own byte position within the archive.
func Resolve32(selfPos int64, field []byte) int64 {
	off := int32(binary.LittleEndian.Uint32(field))
	return selfPos + int64(off)
}

// Emplace64 is the 8-byte-wide analog of Emplace32, used when the archive is
// configured for 64-bit offsets (archives larger than 2GiB, or producers that
// always want headroom).
func Emplace64(selfPos, targetPos int64, out []byte) error {
	off := targetPos - selfPos
	binary.LittleEndian.PutUint64(out, uint64(off))
	return nil
}

// Resolve64 is the 8-byte-wide analog of Resolve32.
func Resolve64(selfPos int64, field []byte) int64 {
	off := int64(binary.LittleEndian.Uint64(field))
	return selfPos + off
}
