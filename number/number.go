// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package number implements strict parsing of numeric text tokens.
//
// A token is valid if it consists of optional leading whitespace, a numeric
// prefix, and optional trailing whitespace, and nothing else. Unlike the
// strconv package, surrounding whitespace is permitted, so that fields with
// line-ending artifacts still parse; unlike the C library, trailing garbage
// such as "10abc" is rejected rather than silently ignored.
package number

import (
	"math"
	"strconv"
)

// ParseFloat parses token as a finite decimal floating-point value.
// It reports false if token is empty, has no numeric prefix, has anything
// other than whitespace after the prefix, or denotes a non-finite value.
//
// The accepted prefix is
//
//	[+-]? (digits [. digits] | . digits) ([eE] [+-]? digits)?
//
// Spellings of infinity and NaN are never accepted.
func ParseFloat(token string) (float64, bool) {
	if token == "" {
		return 0, false
	}
	pos := skipSpace(token, 0)
	end := scanDecimal(token, pos)
	if end == pos || !onlySpace(token, end) {
		return 0, false
	}
	v, err := strconv.ParseFloat(token[pos:end], 64)
	if err != nil && !isRange(err) {
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ParseUint64 parses token as a base-10 unsigned integer.  The empty, prefix,
// and trailing-whitespace rules are the same as for ParseFloat.  A leading
// "+" is permitted; a leading "-" is not. Values that do not fit in a uint64
// are rejected.
func ParseUint64(token string) (uint64, bool) {
	if token == "" {
		return 0, false
	}
	pos := skipSpace(token, 0)
	if pos < len(token) && token[pos] == '+' {
		pos++
	}
	end := skipDigits(token, pos)
	if end == pos || !onlySpace(token, end) {
		return 0, false
	}
	v, err := strconv.ParseUint(token[pos:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// scanDecimal returns the offset just past the longest decimal number
// beginning at pos in s, or pos if there is none.
func scanDecimal(s string, pos int) int {
	i := pos
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	intEnd := skipDigits(s, i)
	nd := intEnd - i
	i = intEnd
	if i < len(s) && s[i] == '.' {
		fracEnd := skipDigits(s, i+1)
		nd += fracEnd - (i + 1)
		i = fracEnd
	}
	if nd == 0 {
		return pos // no mantissa digits, e.g., "-" or "."
	}

	// An exponent counts only if it has at least one digit. Otherwise the
	// prefix ends before the "e", and the caller sees trailing garbage.
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if k := skipDigits(s, j); k > j {
			i = k
		}
	}
	return i
}

// isRange reports whether err is a range error from strconv. Overflow is
// detected by the finiteness check; underflow to zero is accepted.
func isRange(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}

func skipDigits(s string, i int) int {
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return i
}

func skipSpace(s string, i int) int {
	for i < len(s) && IsSpace(s[i]) {
		i++
	}
	return i
}

func onlySpace(s string, i int) bool { return skipSpace(s, i) == len(s) }

func isDigit(ch byte) bool { return '0' <= ch && ch <= '9' }

// IsSpace reports whether ch is an ASCII whitespace character, using the same
// set as the C isspace function: space, tab, newline, vertical tab, form
// feed, and carriage return.
func IsSpace(ch byte) bool {
	switch ch {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}
