package serialize

import "os"

// FileSerializer is a Serializer backed by an *os.File, tracking its own
// running offset the same way the teacher's DBWriter tracks `off` in
// dbwriter.go rather than relying on repeated Seek/Tell round trips.
type FileSerializer struct {
	fd  *os.File
	off int64
}

// NewFile wraps fd as a Serializer whose Position starts at start. Writes go
// to fd's current offset, so start must equal that offset.
func NewFile(fd *os.File, start int64) *FileSerializer {
	return &FileSerializer{fd: fd, off: start}
}

func (s *FileSerializer) Position() int64 {
	return s.off
}

func (s *FileSerializer) Write(p []byte) (int, error) {
	n, err := s.fd.Write(p)
	if err != nil {
		return n, err
	}
	if n != len(p) {
		return n, ErrShortWrite
	}
	s.off += int64(n)
	return n, nil
}

func (s *FileSerializer) AlignFor(align int) (int64, error) {
	pad := padding(int(s.off), align)
	if pad > 0 {
		z := make([]byte, pad)
		if _, err := s.Write(z); err != nil {
			return 0, err
		}
	}
	return s.off, nil
}
