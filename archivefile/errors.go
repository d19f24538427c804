// Package archivefile persists one or more named chd archived maps to a
// single file, in the teacher's (opencoff/go-chd) DBWriter/DBReader idiom:
// a fixed header, a siphash-protected body, a table of contents, and a
// SHA512-256 trailer over the metadata. Unlike the teacher's flat
// uint64 -> []byte table, each named entry here is a full chd.View[K, V]
// archive addressed by a relative pointer from the table of contents.
package archivefile

import "errors"

var (
	// ErrFrozen is returned when attempting to Put into an already-frozen
	// writer, or to Freeze a writer twice.
	ErrFrozen = errors.New("archivefile: already frozen")

	// ErrExists is returned by Put when name was already used in this
	// writer.
	ErrExists = errors.New("archivefile: name already exists")

	// ErrNoKey is returned when a named archive cannot be found in the
	// file.
	ErrNoKey = errors.New("archivefile: no such archive")

	// ErrCorrupt is returned when the file header, checksum, or table of
	// contents fails validation on Open.
	ErrCorrupt = errors.New("archivefile: corrupt file")
)
