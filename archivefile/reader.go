package archivefile

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"io"
	"os"

	"github.com/dchest/siphash"
	"github.com/edsrzf/mmap-go"
	"github.com/hashicorp/golang-lru/v2/arc"

	"github.com/opencoff/go-archive/chd"
	"github.com/opencoff/go-archive/serialize"
)

// cacheKey identifies one decoded value in a Reader's shared ARC cache: the
// named archive it came from, plus a codec-supplied hash of the probe key.
// A single Reader can hold archives of many distinct K/V type pairs, so the
// cache (unlike the teacher's single-type DBReader.cache) is keyed on `any`
// decoded values rather than a concrete V.
type cacheKey struct {
	nameHash uint64
	keyHash  uint64
}

// Reader opens a file written by Writer.Freeze for read-only access. The
// body is mmap'd once via edsrzf/mmap-go (replacing the teacher's raw
// syscall.Mmap/Munmap pair in dbreader.go) so every View returned from it
// borrows directly into mapped memory — no copy, no parse.
type Reader struct {
	mm  mmap.MMap
	fd  *os.File
	fn  string
	toc map[uint64]tocEntry

	salt  []byte
	nkeys uint64

	cache *arc.ARCCache[cacheKey, any]
}

// Open reads and validates fn's header, checksum, and table of contents,
// then mmaps the whole file. cacheSize bounds the shared ARC decode cache
// (0 selects a small default), mirroring the teacher's NewDBReader(fn,
// cache) signature.
func Open(fn string, cacheSize int) (*Reader, error) {
	if cacheSize <= 0 {
		cacheSize = 128
	}

	fd, err := os.Open(fn)
	if err != nil {
		return nil, err
	}

	r := &Reader{fd: fd, fn: fn, toc: make(map[uint64]tocEntry)}

	st, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, fmt.Errorf("%s: can't stat: %w", fn, err)
	}
	if st.Size() < HeaderSize+32 {
		fd.Close()
		return nil, ErrCorrupt
	}

	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(fd, hdr[:]); err != nil {
		fd.Close()
		return nil, fmt.Errorf("%s: can't read header: %w", fn, err)
	}

	tocOff, err := r.decodeHeader(hdr[:], st.Size())
	if err != nil {
		fd.Close()
		return nil, err
	}

	if err := r.verifyChecksum(hdr[:], tocOff, st.Size()); err != nil {
		fd.Close()
		return nil, err
	}

	tocLen := st.Size() - int64(tocOff) - 32
	if tocLen < 0 || tocLen%tocEntrySize != 0 {
		fd.Close()
		return nil, ErrCorrupt
	}
	tocBuf := make([]byte, tocLen)
	if _, err := fd.ReadAt(tocBuf, int64(tocOff)); err != nil {
		fd.Close()
		return nil, fmt.Errorf("%s: can't read table of contents: %w", fn, err)
	}
	n := int(tocLen) / tocEntrySize
	if uint64(n) != r.nkeys {
		fd.Close()
		return nil, ErrCorrupt
	}
	for i := 0; i < n; i++ {
		b := tocBuf[i*tocEntrySize : (i+1)*tocEntrySize]
		e := tocEntry{
			nameHash:  binary.LittleEndian.Uint64(b[0:8]),
			bodyStart: int64(binary.LittleEndian.Uint64(b[8:16])),
			headerPos: int64(binary.LittleEndian.Uint64(b[16:24])),
			headerLen: binary.LittleEndian.Uint32(b[24:28]),
			cksum:     binary.LittleEndian.Uint64(b[28:36]),
		}
		r.toc[e.nameHash] = e
	}

	mm, err := mmap.Map(fd, mmap.RDONLY, 0)
	if err != nil {
		fd.Close()
		return nil, fmt.Errorf("%s: can't mmap: %w", fn, err)
	}
	r.mm = mm

	cache, err := arc.NewARC[cacheKey, any](cacheSize)
	if err != nil {
		mm.Unmap()
		fd.Close()
		return nil, err
	}
	r.cache = cache

	return r, nil
}

// Len returns the number of named archives in the file.
func (r *Reader) Len() int { return int(r.nkeys) }

// Close unmaps the file and releases its cache.
func (r *Reader) Close() error {
	r.cache.Purge()
	if err := r.mm.Unmap(); err != nil {
		r.fd.Close()
		return err
	}
	return r.fd.Close()
}

// View returns a read-only chd.View over the named archive. name must
// match exactly what was passed to Writer's Put.
func View[K, V any](r *Reader, name string, kc serialize.Codec[K], vc serialize.Codec[V]) (*chd.View[K, V], error) {
	e, ok := r.toc[hashName(r.salt, name)]
	if !ok {
		return nil, ErrNoKey
	}
	return chd.Open[K, V](r.mm, e.headerPos, kc, vc), nil
}

// Get looks up key in the named archive, decoding through r's shared ARC
// cache so repeated hot lookups skip Codec.Read, the way the teacher's
// DBReader.Find caches decoded values across calls.
func Get[K, V any](r *Reader, name string, key K, kc serialize.Codec[K], vc serialize.Codec[V]) (V, bool) {
	var zero V
	nameHash := hashName(r.salt, name)
	_, ok := r.toc[nameHash]
	if !ok {
		return zero, false
	}

	// The cache key only needs to disambiguate probe values within one
	// named archive; it is never written to disk, so a fast stdlib hash
	// (unlike chd's SeaHash, which is part of the wire format) is the
	// right tool here.
	h := fnv.New64a()
	kc.Hash(key, h)
	ck := cacheKey{nameHash: nameHash, keyHash: h.Sum64()}
	if v, ok := r.cache.Get(ck); ok {
		return v.(V), true
	}

	view, err := View[K, V](r, name, kc, vc)
	if err != nil {
		return zero, false
	}
	val, ok := view.Get(key)
	if !ok {
		return zero, false
	}
	r.cache.Add(ck, val)
	return val, true
}

// Verify re-checksums every named archive's bytes against the table of
// contents, the per-entry analog of the teacher's whole-metadata
// verifyChecksum in dbreader.go.
func (r *Reader) Verify() error {
	for _, e := range r.toc {
		end := e.headerPos + int64(e.headerLen)
		h := siphash.New(r.salt)
		h.Write(r.mm[e.bodyStart:end])
		if h.Sum64() != e.cksum {
			return fmt.Errorf("%s: checksum mismatch for archive at offset %d: %w", r.fn, e.bodyStart, ErrCorrupt)
		}
	}
	return nil
}

func (r *Reader) decodeHeader(b []byte, sz int64) (uint64, error) {
	if string(b[0:4]) != FileMagic {
		return 0, fmt.Errorf("%s: bad file magic: %w", r.fn, ErrCorrupt)
	}
	r.salt = append([]byte(nil), b[8:24]...)
	r.nkeys = binary.LittleEndian.Uint64(b[24:32])
	tocOff := binary.LittleEndian.Uint64(b[32:40])
	if int64(tocOff) < HeaderSize || int64(tocOff) >= sz-32 {
		return 0, fmt.Errorf("%s: corrupt header: %w", r.fn, ErrCorrupt)
	}
	return tocOff, nil
}

func (r *Reader) verifyChecksum(hdr []byte, tocOff uint64, sz int64) error {
	h := sha512.New512_256()
	h.Write(hdr)

	remsz := sz - int64(tocOff) - 32
	if _, err := r.fd.Seek(int64(tocOff), io.SeekStart); err != nil {
		return err
	}
	nw, err := io.CopyN(h, r.fd, remsz)
	if err != nil {
		return fmt.Errorf("%s: metadata i/o error: %w", r.fn, err)
	}
	if nw != remsz {
		return fmt.Errorf("%s: partial metadata read: %w", r.fn, ErrCorrupt)
	}

	var expsum [32]byte
	if _, err := r.fd.ReadAt(expsum[:], sz-32); err != nil {
		return fmt.Errorf("%s: trailer i/o error: %w", r.fn, err)
	}

	csum := h.Sum(nil)
	if subtle.ConstantTimeCompare(csum, expsum[:]) != 1 {
		return fmt.Errorf("%s: checksum failure: %w", r.fn, ErrCorrupt)
	}
	return nil
}
