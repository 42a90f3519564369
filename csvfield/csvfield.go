// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package csvfield splits comma-separated lines into fields and extracts a
// numeric column from them.
//
// The dialect is deliberately permissive and is not RFC 4180. A double quote
// outside a quoted section begins one, and may appear anywhere in a field, not
// only at its start.  Inside a quoted section a doubled quote ("") stands for
// one literal quote and a single quote ends the section. Commas inside a
// quoted section do not separate fields. Quote marks that open or close a
// section are not copied to the field. Quoted sections do not span lines, and
// an unterminated section runs to the end of the line.
//
// For example, the line
//
//	5803,"Lovely Room 1; Garden",ab"c,d"e,"say ""hi"""
//
// has the four fields
//
//	5803
//	Lovely Room 1; Garden
//	abc,de
//	say "hi"
package csvfield

import (
	"fmt"

	"github.com/creachadair/mrstats/number"
)

// PriceColumn is the 0-based index of the price field in a listing record.
const PriceColumn = 9

const (
	delim = ','
	quote = '"'
)

// Split splits line into fields. The result always has one more element than
// the number of unquoted commas in line; in particular an empty line has one
// empty field.
func Split(line string) []string {
	fields, _ := split(line, false)
	return fields
}

// SplitSpans splits line into fields like Split, and also reports the raw
// span of each field in line. The spans do not include the separating commas.
func SplitSpans(line string) ([]string, []Span) { return split(line, true) }

func split(line string, wantSpans bool) ([]string, []Span) {
	fields := make([]string, 0, 16)
	var spans []Span
	if wantSpans {
		spans = make([]Span, 0, 16)
	}

	var buf []byte
	var inQuotes bool
	start := 0
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if inQuotes {
			if ch != quote {
				buf = append(buf, ch)
			} else if i+1 < len(line) && line[i+1] == quote {
				buf = append(buf, quote) // escaped quote
				i++
			} else {
				inQuotes = false
			}
			continue
		}
		switch ch {
		case quote:
			inQuotes = true
		case delim:
			fields = append(fields, string(buf))
			if wantSpans {
				spans = append(spans, Span{Pos: start, End: i})
			}
			buf = buf[:0]
			start = i + 1
		default:
			buf = append(buf, ch)
		}
	}
	fields = append(fields, string(buf))
	if wantSpans {
		spans = append(spans, Span{Pos: start, End: len(line)})
	}
	return fields, spans
}

// Extract splits line and parses the field at the given 0-based column as a
// floating-point value using number.ParseFloat. It reports false if line has
// too few fields or the field is not a valid finite number.
func Extract(line string, column int) (float64, bool) {
	if column < 0 {
		return 0, false
	}
	fields := Split(line)
	if len(fields) <= column {
		return 0, false
	}
	return number.ParseFloat(fields[column])
}

// ExtractTargetField extracts the price column of line.
// It is shorthand for Extract(line, PriceColumn).
func ExtractTargetField(line string) (float64, bool) { return Extract(line, PriceColumn) }

// An Extractor extracts a fixed column from CSV lines.
// The zero value extracts column 0; use Default for the price column.
type Extractor struct {
	Column int // 0-based
}

// Default is an Extractor for PriceColumn.
var Default = Extractor{Column: PriceColumn}

// Extract extracts the value of e.Column from line. See Extract.
func (e Extractor) Extract(line string) (float64, bool) { return Extract(line, e.Column) }

// Diagnose explains why e.Extract fails for line, or returns "" if it
// succeeds. The message is meant for logs, not for programmatic use.
func (e Extractor) Diagnose(line string) string {
	fields, spans := SplitSpans(line)
	if e.Column < 0 || len(fields) <= e.Column {
		return fmt.Sprintf("want at least %d fields, got %d", e.Column+1, len(fields))
	}
	if spans[e.Column].Len() == 0 {
		return fmt.Sprintf("field %d at %v is empty", e.Column, spans[e.Column])
	}
	if _, ok := number.ParseFloat(fields[e.Column]); !ok {
		return fmt.Sprintf("field %d at %v is not a finite number: %q",
			e.Column, spans[e.Column], fields[e.Column])
	}
	return ""
}
