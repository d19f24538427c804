// text.go -- read whitespace- or CSV-delimited key/value text into the
// in-memory records archivefile.Put archives. Adapted from the teacher's
// example/text.go: the same scan-and-split shape, but collecting
// chd.KV[string, string] pairs instead of calling a streaming DBWriter.Add,
// since chd.Build needs the whole slice up front (spec.md §4.3's iterator
// "of known length n").

package main

import (
	"bufio"
	"encoding/csv"
	"io"
	"strings"

	"github.com/opencoff/go-archive/chd"
)

// readStream reads fd where key and value are separated by one of the
// characters in delim. Empty lines and comment lines (leading '#') are
// skipped; a line with no delimiter is kept with an empty value.
func readStream(fd io.Reader, delim string) ([]chd.KV[string, string], error) {
	if len(delim) == 0 {
		delim = " \t"
	}

	var items []chd.KV[string, string]
	seen := make(map[string]bool)

	sc := bufio.NewScanner(bufio.NewReader(fd))
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if len(s) == 0 || s[0] == '#' {
			continue
		}

		var k, v string
		if i := strings.IndexAny(s, delim); i > 0 {
			k = s[:i]
			v = strings.TrimSpace(s[i+1:])
		} else {
			k = s
		}

		if seen[k] {
			continue
		}
		seen[k] = true
		items = append(items, chd.KV[string, string]{Key: k, Val: v})
	}
	return items, sc.Err()
}

// readCSV reads fd as CSV, taking field 0 as key and field 1 as value.
// Rows that don't have at least two fields, and rows with a duplicate key,
// are skipped.
func readCSV(fd io.Reader) ([]chd.KV[string, string], error) {
	cr := csv.NewReader(fd)
	cr.Comma = ','
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var items []chd.KV[string, string]
	seen := make(map[string]bool)

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < 2 {
			continue
		}
		if seen[rec[0]] {
			continue
		}
		seen[rec[0]] = true
		items = append(items, chd.KV[string, string]{Key: rec[0], Val: rec[1]})
	}
	return items, nil
}
