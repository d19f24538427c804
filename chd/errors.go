package chd

import (
	"errors"
	"fmt"
)

// ErrTooManyEntries is returned when Build is asked to construct a map with
// n >= 2^31 entries — spec.md §6 reserves the high bit of each displacement
// word to distinguish direct indices from seeds, which requires n < 2^31.
var ErrTooManyEntries = errors.New("chd: too many entries (n must be < 2^31)")

// ErrWouldRelocate is returned by View.SetValue when the value's codec
// cannot rewrite its archived bytes in place (spec.md §4.4, §9: mutation
// must never move a value or its out-of-line data).
var ErrWouldRelocate = errors.New("chd: value codec cannot be mutated in place")

// ErrKeyNotFound is returned by View.SetValue when the key is absent. The
// lookups (Get, GetKeyValue, GetProbe) report absence with a false bool
// instead, and MustGet by panicking.
var ErrKeyNotFound = errors.New("chd: key not found")

// SeedExhaustedError is returned when the seed search for a multi-member
// bucket exhausts the entire seed range (spec.md §4.3, §7). It names the
// offending bucket for debuggability, per spec.md §7.
type SeedExhaustedError struct {
	Bucket int
	Size   int
}

func (e *SeedExhaustedError) Error() string {
	return fmt.Sprintf("chd: seed search exhausted for bucket %d (size %d)", e.Bucket, e.Size)
}
