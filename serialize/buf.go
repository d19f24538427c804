package serialize

import "bytes"

// BufSerializer is an in-memory Serializer backed by a bytes.Buffer. It is
// the serializer chd's tests build archives with, the same way the
// teacher's chd_test.go builds a bytes.Buffer directly for
// Chd.MarshalBinary.
type BufSerializer struct {
	buf bytes.Buffer
}

// NewBuf returns a ready-to-use in-memory Serializer.
func NewBuf() *BufSerializer {
	return &BufSerializer{}
}

func (s *BufSerializer) Position() int64 {
	return int64(s.buf.Len())
}

func (s *BufSerializer) Write(p []byte) (int, error) {
	n, err := s.buf.Write(p)
	if err != nil {
		return n, err
	}
	if n != len(p) {
		return n, ErrShortWrite
	}
	return n, nil
}

func (s *BufSerializer) AlignFor(align int) (int64, error) {
	pos := s.buf.Len()
	pad := padding(pos, align)
	if pad > 0 {
		var z [8]byte
		for pad > 0 {
			n := pad
			if n > len(z) {
				n = len(z)
			}
			if _, err := s.buf.Write(z[:n]); err != nil {
				return 0, err
			}
			pad -= n
		}
	}
	return int64(s.buf.Len()), nil
}

// Bytes returns the accumulated archive bytes.
func (s *BufSerializer) Bytes() []byte {
	return s.buf.Bytes()
}

func padding(pos, align int) int {
	if align <= 1 {
		return 0
	}
	rem := pos % align
	if rem == 0 {
		return 0
	}
	return align - rem
}
