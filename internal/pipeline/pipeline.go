// Package pipeline implements the stream drivers for mappers, reducers, and
// local jobs that connect them.
package pipeline

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/creachadair/mds/mapset"
	"github.com/creachadair/mds/mstr"
	"github.com/creachadair/mrstats/csvfield"
)

// Counts records how many lines a driver processed. Every line read is
// counted in exactly one of the other fields.
type Counts struct {
	Read      int64 `json:"read"`
	Blank     int64 `json:"blank,omitempty"`     // skipped, empty
	Duplicate int64 `json:"duplicate,omitempty"` // skipped, repeated ID
	Dropped   int64 `json:"dropped,omitempty"`   // skipped, invalid
	Accepted  int64 `json:"accepted"`
}

// Add adds the counts in o to c.
func (c *Counts) Add(o Counts) {
	c.Read += o.Read
	c.Blank += o.Blank
	c.Duplicate += o.Duplicate
	c.Dropped += o.Dropped
	c.Accepted += o.Accepted
}

func (c Counts) String() string {
	return fmt.Sprintf("read %d, accepted %d, dropped %d, blank %d, duplicate %d",
		c.Read, c.Accepted, c.Dropped, c.Blank, c.Duplicate)
}

// Logf is the signature of a diagnostic log function.  A nil Logf discards
// all messages.
type Logf func(msg string, args ...any)

func (f Logf) printf(msg string, args ...any) {
	if f != nil {
		f(msg, args...)
	}
}

// maxLogLine is the longest prefix of an input line included in a log message.
const maxLogLine = 60

// clip shortens line for inclusion in a log message.
func clip(line string) string { return mstr.Trunc(line, maxLogLine) }

// eachLine calls f with each line of r, without its line terminator.  A final
// line without a newline is reported too.  If f reports an error, eachLine
// stops and returns that error.
func eachLine(r io.Reader, f func(line string) error) error {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			if ferr := f(strings.TrimSuffix(line, "\n")); ferr != nil {
				return ferr
			}
		}
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
	}
}

// Batches calls f with successive batches of up to n lines of r, split as by
// the mappers and reducers. The slice passed to f is reused between calls.
// Values of n < 1 mean 1. If f reports an error, Batches stops and returns
// that error.
func Batches(r io.Reader, n int, f func(lines []string) error) error {
	n = max(n, 1)
	batch := make([]string, 0, n)
	if err := eachLine(r, func(line string) error {
		batch = append(batch, line)
		if len(batch) < n {
			return nil
		}
		err := f(batch)
		batch = batch[:0]
		return err
	}); err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}
	return f(batch)
}

// idFilter reports whether a CSV line carries an ID not seen before.  The ID
// is the first field of the line.
type idFilter struct {
	seen mapset.Set[string]
}

func newIDFilter() *idFilter { return &idFilter{seen: mapset.New[string]()} }

// firstSeen reports whether the ID of line is new, and records it.
func (f *idFilter) firstSeen(line string) bool {
	if f == nil {
		return true
	}
	id, _, _ := strings.Cut(line, ",")
	if strings.Contains(id, `"`) {
		id = csvfield.Split(line)[0]
	}
	if f.seen.Has(id) {
		return false
	}
	f.seen.Add(id)
	return true
}
