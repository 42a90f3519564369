package pipeline

import (
	"fmt"
	"io"
	"strings"

	"github.com/creachadair/mrstats/moments"
	"github.com/creachadair/mrstats/record"
)

// Reduce reads intermediate records from r and folds them into s. Blank lines
// are skipped, and lines that do not decode are dropped. Reduce returns only
// when r is exhausted or on a read error; s reflects every record read up to
// that point.
func Reduce(r io.Reader, s *moments.State, logf Logf) (Counts, error) {
	var c Counts
	var ln int
	err := eachLine(r, func(line string) error {
		ln++
		c.Read++
		if line == "" {
			c.Blank++
			return nil
		}
		e, ok := record.Decode(line)
		if !ok {
			c.Dropped++
			logf.printf("line %d: invalid record: %q", ln, clip(line))
			return nil
		}
		s.Add(e)
		c.Accepted++
		return nil
	})
	return c, err
}

// ReduceLines is Reduce over a batch of lines, for callers that receive
// records in batches rather than as a stream.
func ReduceLines(lines []string, s *moments.State) Counts {
	var c Counts
	for _, line := range lines {
		// A batch element may carry its own line terminator.
		line = strings.TrimSuffix(line, "\n")
		c.Read++
		if line == "" {
			c.Blank++
			continue
		}
		e, ok := record.Decode(line)
		if !ok {
			c.Dropped++
			continue
		}
		s.Add(e)
		c.Accepted++
	}
	return c
}

// WriteResult writes the mean and variance of s to w, one per line, as a
// label and a fixed-point value with six decimal places separated by a tab.
// If s is empty, nothing is written.
func WriteResult(w io.Writer, s moments.State) error {
	if s.IsEmpty() {
		return nil
	}
	_, err := fmt.Fprintf(w, "mean\t%.6f\nvariance\t%.6f\n", s.Mean(), s.Variance())
	return err
}

// WriteCombined writes s to w as a single intermediate record, so that the
// output of one reducer can be the input of another.  If s is empty, nothing
// is written.
func WriteCombined(w io.Writer, s moments.State) error {
	if s.IsEmpty() {
		return nil
	}
	_, err := fmt.Fprintln(w, s.Emission())
	return err
}
