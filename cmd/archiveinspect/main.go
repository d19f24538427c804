// archiveinspect opens an archivefile container and reports on it: record
// counts, checksum verification, and single-key lookups. It is the
// read-side counterpart to archivegen, in the same spirit as the teacher's
// mphdb "-verify" flag, split into its own binary since SPEC_FULL.md's
// archivefile exposes a real Reader API worth exercising directly rather
// than folding lookups into the builder CLI.
package main

import (
	"fmt"
	"os"

	flag "github.com/opencoff/pflag"

	"github.com/opencoff/go-archive/archivefile"
	"github.com/opencoff/go-archive/archtypes"
)

func main() {
	var name string
	var lookup string
	var cacheSize int

	usage := fmt.Sprintf("%s [options] FILE", os.Args[0])

	flag.StringVarP(&name, "name", "n", "default", "Inspect the archive stored under `NAME`")
	flag.StringVarP(&lookup, "get", "g", "", "Look up `KEY` and print its value")
	flag.IntVarP(&cacheSize, "cache", "c", 128, "Decoded-value ARC cache size")
	flag.Usage = func() {
		fmt.Printf("archiveinspect - inspect a CHD-backed archivefile container\nUsage: %s\n", usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	args := flag.Args()

	if len(args) != 1 {
		die("Expected exactly one FILE argument\nUsage: %s\n", usage)
	}

	fn := args[0]
	rd, err := archivefile.Open(fn, cacheSize)
	if err != nil {
		die("can't open %s: %s", fn, err)
	}
	defer rd.Close()

	fmt.Printf("%s: %d named archive(s)\n", fn, rd.Len())

	if err := rd.Verify(); err != nil {
		die("checksum verification failed: %s", err)
	}
	fmt.Println("checksums OK")

	view, err := archivefile.View[string, string](rd, name, archtypes.StringCodec{}, archtypes.StringCodec{})
	if err != nil {
		die("can't find archive %q: %s", name, err)
	}
	fmt.Printf("%q: %d records\n", name, view.Len())

	if lookup != "" {
		val, ok := archivefile.Get[string, string](rd, name, lookup, archtypes.StringCodec{}, archtypes.StringCodec{})
		if !ok {
			die("key %q not found in archive %q", lookup, name)
		}
		fmt.Printf("%s = %s\n", lookup, val)
	}
}

func die(f string, v ...interface{}) {
	z := fmt.Sprintf("%s: %s", os.Args[0], f)
	s := fmt.Sprintf(z, v...)
	if n := len(s); n == 0 || s[n-1] != '\n' {
		s += "\n"
	}
	os.Stderr.WriteString(s)
	os.Stderr.Sync()
	os.Exit(1)
}
