// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package csvfield

import (
	"fmt"
	"strconv"
)

// A Span describes the raw extent of a field in an input line, including any
// quotation marks it contains.
type Span struct {
	Pos int // the start offset, 0-based
	End int // the end offset, 0-based (noninclusive)
}

func (s Span) String() string {
	if s.End <= s.Pos {
		return strconv.Itoa(s.Pos)
	}
	return fmt.Sprintf("%d..%d", s.Pos, s.End)
}

// Len reports the length of s in bytes.
func (s Span) Len() int { return s.End - s.Pos }

// Text returns the raw text of s in line. It panics if s is out of range for
// line.
func (s Span) Text(line string) string { return line[s.Pos:s.End] }
