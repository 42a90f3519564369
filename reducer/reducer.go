// Program reducer folds intermediate records into the mean and variance of
// the values they represent.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/creachadair/mrstats/internal/pipeline"
	"github.com/creachadair/mrstats/moments"
)

var (
	doCombine = flag.Bool("combine", false, "Write the folded state as one record instead of the result")
	stateFile = flag.String("state", "", "Resume from and save the folded state to this file")
	doStats   = flag.Bool("stats", false, "Log line counts to stderr at exit")
	verbose   = flag.Bool("v", false, "Log a message for each line skipped")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: %[1]s [options] [<input-file>...]

Read intermediate records from the given input files, or from stdin, and
print the mean and population variance of the values they carry:

   mean <TAB> 134.500000
   variance <TAB> 3490.250000

Blank lines are skipped. Lines that are not valid records are dropped
silently, unless -v is set. If no values are read, nothing is printed.

With -combine, print the folded state as a single record instead, so that
the output can be the input of another reducer.

With -state, the state in the named file (if it exists) is used as the
starting point, and the final state is written back to the file.

Options:
`, filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()

	var logf pipeline.Logf
	if *verbose {
		logf = log.Printf
	}

	var s moments.State
	if *stateFile != "" {
		var err error
		s, err = moments.Load(*stateFile)
		if err != nil {
			log.Fatalf("Loading state: %v", err)
		}
	}

	in, err := pipeline.OpenInputs(flag.Args())
	if err != nil {
		log.Fatalf("Input: %v", err)
	}
	defer in.Close()
	c, err := pipeline.Reduce(in, &s, logf)
	if err != nil {
		log.Fatalf("Reduce: %v", err)
	}
	if *doStats {
		log.Printf("Reducer: %v", c)
	}

	if *doCombine {
		err = pipeline.WriteCombined(os.Stdout, s)
	} else {
		err = pipeline.WriteResult(os.Stdout, s)
	}
	if err != nil {
		log.Fatalf("Output: %v", err)
	}
	if *stateFile != "" {
		if err := s.Save(*stateFile); err != nil {
			log.Fatalf("Saving state: %v", err)
		}
	}
}
