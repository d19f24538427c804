// archivegen builds an archivefile container from whitespace- or
// CSV-delimited key/value text, using a CHD-backed archived map as the
// payload format (see the chd and archivefile packages). It is the
// SPEC_FULL.md successor to the teacher's (opencoff/go-chd) mphdb example:
// same shape of CLI, rebuilt over the archived container instead of a flat
// uint64 -> []byte constant DB.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	flag "github.com/opencoff/pflag"
	"go.uber.org/zap"

	"github.com/opencoff/go-archive/archivefile"
	"github.com/opencoff/go-archive/archtypes"
	"github.com/opencoff/go-archive/chd"
)

func main() {
	var name string

	usage := fmt.Sprintf("%s [options] OUTPUT [INPUT ...]", os.Args[0])

	flag.StringVarP(&name, "name", "n", "default", "Store the built archive under `NAME`")
	flag.Usage = func() {
		fmt.Printf("archivegen - build a CHD-backed archive from txt or CSV files\nUsage: %s\n", usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	args := flag.Args()

	if len(args) < 1 {
		die("No output file name!\nUsage: %s\n", usage)
	}

	fn := args[0]
	args = args[1:]

	log, err := zap.NewProduction()
	if err != nil {
		die("can't start logger: %s", err)
	}
	defer log.Sync()
	sugar := log.Sugar()

	items, err := readAll(args, sugar)
	if err != nil {
		die("can't read input: %s", err)
	}

	sugar.Infow("building archive", "name", name, "records", len(items))

	start := time.Now()
	w, err := archivefile.Create(fn)
	if err != nil {
		die("can't create %s: %s", fn, err)
	}

	if err := archivefile.Put(w, name, items, archtypes.StringCodec{}, archtypes.StringCodec{}); err != nil {
		w.Abort()
		var se *chd.SeedExhaustedError
		if errors.As(err, &se) {
			die("CHD construction failed for bucket %d (size %d); this input shape is pathological", se.Bucket, se.Size)
		}
		die("can't build archive: %s", err)
	}

	if err := w.Freeze(); err != nil {
		die("can't write %s: %s", fn, err)
	}

	sugar.Infow("archive written", "file", fn, "records", len(items), "elapsed", time.Since(start))
}

func readAll(files []string, log *zap.SugaredLogger) ([]chd.KV[string, string], error) {
	var items []chd.KV[string, string]

	add := func(src string, n int) {
		log.Infow("loaded records", "source", src, "records", n)
	}

	if len(files) == 0 {
		kv, err := readStream(os.Stdin, " \t")
		if err != nil {
			return nil, err
		}
		add("<STDIN>", len(kv))
		return kv, nil
	}

	for _, f := range files {
		fd, err := os.Open(f)
		if err != nil {
			return nil, err
		}

		var kv []chd.KV[string, string]
		switch {
		case strings.HasSuffix(f, ".csv"):
			kv, err = readCSV(fd)
		default:
			kv, err = readStream(fd, " \t")
		}
		fd.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}

		add(f, len(kv))
		items = append(items, kv...)
	}

	return items, nil
}

// die prints a formatted error to stderr and exits. Kept free-standing
// (not a method) the way the teacher's example/mphdb.go die/warn helpers
// are package-level functions, not bound to any CLI state.
func die(f string, v ...interface{}) {
	warn(f, v...)
	os.Exit(1)
}

func warn(f string, v ...interface{}) {
	z := fmt.Sprintf("%s: %s", os.Args[0], f)
	s := fmt.Sprintf(z, v...)
	if n := len(s); n == 0 || s[n-1] != '\n' {
		s += "\n"
	}
	os.Stderr.WriteString(s)
	os.Stderr.Sync()
}
