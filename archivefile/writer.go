package archivefile

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/dchest/siphash"

	"github.com/opencoff/go-archive/chd"
	"github.com/opencoff/go-archive/serialize"
)

// FileMagic identifies an archivefile container, written at offset 0.
const FileMagic = "ARCH"

// HeaderSize is the fixed byte size of the file header: magic(4) +
// flags(4) + salt(16) + nkeys(8) + toc_off(8), per SPEC_FULL.md §6.
const HeaderSize = 4 + 4 + 16 + 8 + 8

// tocEntrySize is the on-disk width of one table-of-contents record:
// name_hash(8) + body_start(8) + header_pos(8) + header_len(4) + cksum(8).
// This extends the three-field sketch in SPEC_FULL.md §6 with body_start
// and cksum so Verify can re-check each named archive's siphash
// independently, the way the teacher's per-record checksum in
// dbwriter.go/dbreader.go protects each value.
const tocEntrySize = 8 + 8 + 8 + 4 + 8

type tocEntry struct {
	nameHash  uint64
	bodyStart int64
	headerPos int64
	headerLen uint32
	cksum     uint64
}

// Writer accumulates one or more named archived maps into a single file,
// built the way the teacher's DBWriter accumulates key/value records: a
// tmpfile is written incrementally and only renamed into place on Freeze,
// so a crash or an aborted run never leaves a partial file at the final
// path.
type Writer struct {
	fd  *os.File
	ser *serialize.FileSerializer

	salt  []byte
	names map[uint64]bool
	toc   []tocEntry

	fntmp  string
	fn     string
	frozen bool
}

// Create prepares fn to hold one or more named archived maps. The file is
// written to a temporary sibling path and only renamed to fn on a
// successful Freeze, matching the teacher's NewDBWriter.
func Create(fn string) (*Writer, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("archivefile: generating salt: %w", err)
	}

	var suffix [8]byte
	if _, err := io.ReadFull(rand.Reader, suffix[:]); err != nil {
		return nil, fmt.Errorf("archivefile: generating tmpfile name: %w", err)
	}
	tmp := fmt.Sprintf("%s.tmp.%x", fn, suffix)

	fd, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		fd:    fd,
		salt:  salt,
		names: make(map[uint64]bool),
		fn:    fn,
		fntmp: tmp,
	}

	var z [HeaderSize]byte
	if _, err := writeAll(fd, z[:]); err != nil {
		fd.Close()
		os.Remove(tmp)
		return nil, err
	}
	w.ser = serialize.NewFile(fd, HeaderSize)
	return w, nil
}

// NumArchives returns the number of named archives written so far.
func (w *Writer) NumArchives() int { return len(w.toc) }

func hashName(salt []byte, name string) uint64 {
	h := siphash.New(salt)
	h.Write([]byte(name))
	return h.Sum64()
}

// Put builds an archived map from items via chd.Build and records it in
// the file's table of contents under name. name must be unique within one
// Writer; duplicates are rejected with ErrExists rather than silently
// overwritten, mirroring the teacher's duplicate-key rejection in
// DBWriter.addRecord.
func Put[K, V any](w *Writer, name string, items []chd.KV[K, V], kc serialize.Codec[K], vc serialize.Codec[V]) error {
	if w.frozen {
		return ErrFrozen
	}

	nameHash := hashName(w.salt, name)
	if w.names[nameHash] {
		return ErrExists
	}

	bodyStart := w.ser.Position()
	resolver, err := chd.Build(items, kc, vc, w.ser)
	if err != nil {
		return err
	}
	headerPos, err := chd.WriteHeader(w.ser, resolver)
	if err != nil {
		return err
	}
	end := headerPos + int64(chd.HeaderSize)

	cksum, err := w.checksumRange(bodyStart, end)
	if err != nil {
		return err
	}

	w.names[nameHash] = true
	w.toc = append(w.toc, tocEntry{
		nameHash:  nameHash,
		bodyStart: bodyStart,
		headerPos: headerPos,
		headerLen: uint32(chd.HeaderSize),
		cksum:     cksum,
	})
	return nil
}

// checksumRange re-reads [start, end) from the tmpfile and siphashes it
// under the writer's salt, the keyed-checksum idiom the teacher uses for
// each record in dbwriter.go's writeRecord, applied here to a whole
// archived map's bytes instead of one opaque value blob.
func (w *Writer) checksumRange(start, end int64) (uint64, error) {
	buf := make([]byte, end-start)
	if _, err := w.fd.ReadAt(buf, start); err != nil {
		return 0, err
	}
	h := siphash.New(w.salt)
	h.Write(buf)
	return h.Sum64(), nil
}

// Freeze writes the table of contents and the file header, then renames
// the tmpfile into place. After Freeze, the Writer is spent: further Put
// or Freeze calls return ErrFrozen.
func (w *Writer) Freeze() (err error) {
	defer func() {
		if err != nil {
			w.fd.Close()
			os.Remove(w.fntmp)
		}
	}()

	if w.frozen {
		return ErrFrozen
	}

	tocOff := w.ser.Position()
	nkeys := uint64(len(w.toc))

	hdr := w.buildHeader(nkeys, uint64(tocOff))

	h := sha512.New512_256()
	h.Write(hdr[:])
	tee := io.MultiWriter(w.fd, h)

	tocBuf := make([]byte, len(w.toc)*tocEntrySize)
	for i, e := range w.toc {
		b := tocBuf[i*tocEntrySize : (i+1)*tocEntrySize]
		binary.LittleEndian.PutUint64(b[0:8], e.nameHash)
		binary.LittleEndian.PutUint64(b[8:16], uint64(e.bodyStart))
		binary.LittleEndian.PutUint64(b[16:24], uint64(e.headerPos))
		binary.LittleEndian.PutUint32(b[24:28], e.headerLen)
		binary.LittleEndian.PutUint64(b[28:36], e.cksum)
	}
	if _, err = writeAll(tee, tocBuf); err != nil {
		return err
	}

	trailer := h.Sum(nil)
	if _, err = writeAll(w.fd, trailer); err != nil {
		return err
	}

	if _, err = w.fd.WriteAt(hdr[:], 0); err != nil {
		return err
	}

	w.frozen = true
	w.fd.Sync()
	w.fd.Close()
	return os.Rename(w.fntmp, w.fn)
}

func (w *Writer) buildHeader(nkeys, tocOff uint64) [HeaderSize]byte {
	var hdr [HeaderSize]byte
	copy(hdr[0:4], FileMagic)
	// flags (offset 4) stays zero: reserved, per SPEC_FULL.md §6.
	copy(hdr[8:24], w.salt)
	binary.LittleEndian.PutUint64(hdr[24:32], nkeys)
	binary.LittleEndian.PutUint64(hdr[32:40], tocOff)
	return hdr
}

// Abort discards the writer's tmpfile without freezing it.
func (w *Writer) Abort() {
	w.fd.Close()
	os.Remove(w.fntmp)
}

func writeAll(w io.Writer, buf []byte) (int, error) {
	n, err := w.Write(buf)
	if err != nil {
		return n, err
	}
	if n != len(buf) {
		return n, serialize.ErrShortWrite
	}
	return n, nil
}
