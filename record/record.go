// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package record encodes and decodes the intermediate records passed from
// mappers to reducers.
//
// A record is a single line of four tab-separated fields:
//
//	stats <TAB> value <TAB> squared <TAB> count
//
// The first field is a tag naming the metric. Decoding does not check it, so
// the format can carry other metrics without changing the reducer.  Value and
// squared are decimal floating-point numbers and count is a base-10 unsigned
// integer. A mapper emits one record (x, x², 1) per input value; a combiner
// emits one record (Σx, Σx², n) for a batch of values. Either kind of record
// may be folded by a reducer.
package record

import (
	"strconv"
	"strings"

	"github.com/creachadair/mrstats/number"
)

// Tag is the metric label written as the first field of every record.
const Tag = "stats"

// Delim separates the fields of a record.
const Delim = '\t'

// An Emission is the content of one record.
type Emission struct {
	Value   float64 // a value, or a sum of values
	Squared float64 // the square of Value, or a sum of squares
	Count   uint64  // the number of values represented
}

// Of returns the emission for the single value v.
func Of(v float64) Emission { return Emission{Value: v, Squared: v * v, Count: 1} }

// String encodes e as a record, without a trailing newline.
func (e Emission) String() string { return string(Append(nil, e)) }

// Encode encodes the given fields as a record, without a trailing newline.
//
// Floating-point values are written in the shortest form that parses back to
// the same value, so Decode(Encode(v, s, n)) recovers v, s, and n exactly.
func Encode(value, squared float64, count uint64) string {
	return Emission{Value: value, Squared: squared, Count: count}.String()
}

// Append appends the record encoding of e to dst and returns the extended
// slice. No newline is added.
func Append(dst []byte, e Emission) []byte {
	dst = append(dst, Tag...)
	dst = append(dst, Delim)
	dst = strconv.AppendFloat(dst, e.Value, 'g', -1, 64)
	dst = append(dst, Delim)
	dst = strconv.AppendFloat(dst, e.Squared, 'g', -1, 64)
	dst = append(dst, Delim)
	return strconv.AppendUint(dst, e.Count, 10)
}

// Decode decodes a record from line. It reports false if line is empty, has
// fewer than four fields, or if any of the value, squared, or count fields is
// invalid according to the rules of the number package.
//
// Everything after the third tab is the count field. Trailing whitespace is
// allowed there, as it is in the other fields, but a non-empty fifth field
// makes the count invalid.
func Decode(line string) (Emission, bool) {
	if line == "" {
		return Emission{}, false
	}
	_, rest, ok := strings.Cut(line, string(Delim)) // tag
	if !ok {
		return Emission{}, false
	}
	vs, rest, ok := strings.Cut(rest, string(Delim))
	if !ok {
		return Emission{}, false
	}
	ss, cs, ok := strings.Cut(rest, string(Delim))
	if !ok {
		return Emission{}, false
	}

	var e Emission
	if e.Value, ok = number.ParseFloat(vs); !ok {
		return Emission{}, false
	}
	if e.Squared, ok = number.ParseFloat(ss); !ok {
		return Emission{}, false
	}
	if e.Count, ok = number.ParseUint64(cs); !ok {
		return Emission{}, false
	}
	return e, true
}
