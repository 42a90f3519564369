package pipeline

import (
	"bufio"
	"io"

	"github.com/creachadair/mrstats/csvfield"
	"github.com/creachadair/mrstats/record"
)

// A Mapper converts CSV lines into intermediate records.
type Mapper struct {
	// Extractor selects the column to extract.
	Extractor csvfield.Extractor

	// If Dedup is true, lines whose first field repeats the first field of an
	// earlier line are skipped.
	Dedup bool

	// If set, Logf receives a message for each line that is skipped.
	Logf Logf
}

// NewMapper returns a Mapper that extracts the price column.
func NewMapper() *Mapper { return &Mapper{Extractor: csvfield.Default} }

// Map reads CSV lines from r and writes one record to w for each line whose
// target column holds a valid number. Other lines are skipped.  Map returns
// only when r is exhausted or on a read or write error.
func (m *Mapper) Map(r io.Reader, w io.Writer) (Counts, error) {
	bw := bufio.NewWriter(w)
	var ids *idFilter
	if m.Dedup {
		ids = newIDFilter()
	}
	var c Counts
	var buf []byte
	var ln int
	if err := eachLine(r, func(line string) error {
		ln++
		c.Read++
		if !ids.firstSeen(line) {
			c.Duplicate++
			m.Logf.printf("line %d: duplicate ID: %q", ln, clip(line))
			return nil
		}
		var ok bool
		buf, ok = m.appendRecord(buf[:0], line)
		if !ok {
			c.Dropped++
			if m.Logf != nil {
				m.Logf("line %d: %s", ln, m.Extractor.Diagnose(line))
			}
			return nil
		}
		c.Accepted++
		_, err := bw.Write(buf)
		return err
	}); err != nil {
		return c, err
	}
	return c, bw.Flush()
}

// mapLines is Map for a partition of input delivered over a channel. It
// drains lines until the channel is closed or a write fails.
func (m *Mapper) mapLines(lines <-chan string, w io.Writer) (Counts, error) {
	bw := bufio.NewWriter(w)
	var c Counts
	var buf []byte
	for line := range lines {
		c.Read++
		var ok bool
		buf, ok = m.appendRecord(buf[:0], line)
		if !ok {
			c.Dropped++
			if m.Logf != nil {
				m.Logf("dropped: %s", m.Extractor.Diagnose(line))
			}
			continue
		}
		c.Accepted++
		if _, err := bw.Write(buf); err != nil {
			return c, err
		}
	}
	return c, bw.Flush()
}

// appendRecord appends the record line for a CSV line to buf, including a
// trailing newline, and reports whether the line had a valid value.
func (m *Mapper) appendRecord(buf []byte, line string) ([]byte, bool) {
	v, ok := m.Extractor.Extract(line)
	if !ok {
		return buf, false
	}
	buf = record.Append(buf, record.Of(v))
	return append(buf, '\n'), true
}
