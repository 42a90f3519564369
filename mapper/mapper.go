// Program mapper reads CSV listing records and writes one intermediate
// record for each record with a valid price.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/creachadair/mrstats/csvfield"
	"github.com/creachadair/mrstats/internal/pipeline"
)

var (
	column  = flag.Int("column", csvfield.PriceColumn, "Column to extract (0-based)")
	doDedup = flag.Bool("dedup", false, "Skip records whose ID (first field) was already seen")
	doStats = flag.Bool("stats", false, "Log line counts to stderr at exit")
	verbose = flag.Bool("v", false, "Log a message for each line skipped")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: %[1]s [options] [<input-file>...]

Read CSV records from the given input files, or from stdin, and write an
intermediate record to stdout for each input record whose price column is a
valid finite number. Each output record has the form:

   stats <TAB> price <TAB> price² <TAB> 1

Records with too few fields or an invalid price are skipped silently, unless
-v is set. Files are read in the order given; "-" names stdin explicitly.

Options:
`, filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()
	if *column < 0 {
		log.Fatalf("Column must be non-negative: %d", *column)
	}
	m := &pipeline.Mapper{
		Extractor: csvfield.Extractor{Column: *column},
		Dedup:     *doDedup,
	}
	if *verbose {
		m.Logf = log.Printf
	}

	in, err := pipeline.OpenInputs(flag.Args())
	if err != nil {
		log.Fatalf("Input: %v", err)
	}
	defer in.Close()
	c, err := m.Map(in, os.Stdout)
	if err != nil {
		log.Fatalf("Map: %v", err)
	}
	if *doStats {
		log.Printf("Mapper: %v", c)
	}
}
