// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package moments accumulates the first two moments of a stream of values
// and derives their mean and population variance.
//
// A State holds the sum of values, the sum of their squares, and their count.
// Folding is ordinary addition, so states built from disjoint parts of a
// stream can be merged in any order and grouping to give the state of the
// whole stream, up to floating-point rounding.
package moments

import (
	"fmt"

	"github.com/creachadair/mrstats/record"
)

// NegativeTolerance is the largest magnitude of a negative variance that is
// treated as zero. The two-moment formula can go slightly negative through
// cancellation when the true variance is at or near zero. The bound is an
// empirical tolerance for that rounding error and does not scale with the
// magnitude of the data.
const NegativeTolerance = 1e-9

// State is the running state of an accumulation.
// The zero value is ready for use and represents an empty stream.
type State struct {
	Sum   float64 `json:"sum"`
	SumSq float64 `json:"sumsq"`
	Count uint64  `json:"count"`
}

// Fold adds a triple of (value, squared value, count) to s.
func (s *State) Fold(value, squared float64, count uint64) {
	s.Sum += value
	s.SumSq += squared
	s.Count += count // wraps on overflow, as a C unsigned counter would
}

// Add folds the emission e into s.
func (s *State) Add(e record.Emission) { s.Fold(e.Value, e.Squared, e.Count) }

// AddValue folds the single value v into s.
func (s *State) AddValue(v float64) { s.Fold(v, v*v, 1) }

// Merge adds the contents of o to s.
func (s *State) Merge(o State) { s.Fold(o.Sum, o.SumSq, o.Count) }

// IsEmpty reports whether s represents no values.
func (s State) IsEmpty() bool { return s.Count == 0 }

// Mean returns the mean of the values folded into s, or 0 if s is empty.
func (s State) Mean() float64 { return Mean(s.Sum, s.Count) }

// Variance returns the population variance of the values folded into s, or
// 0 if s is empty.
func (s State) Variance() float64 { return Variance(s.Sum, s.SumSq, s.Count) }

// Emission returns s as a record emission, suitable for forwarding a partial
// result from a combiner to a reducer.
func (s State) Emission() record.Emission {
	return record.Emission{Value: s.Sum, Squared: s.SumSq, Count: s.Count}
}

// Summary returns the derived statistics of s.
func (s State) Summary() Summary {
	return Summary{Count: s.Count, Mean: s.Mean(), Variance: s.Variance()}
}

func (s State) String() string {
	return fmt.Sprintf("n=%d sum=%g sumsq=%g", s.Count, s.Sum, s.SumSq)
}

// Summary records the statistics derived from a State.
type Summary struct {
	Count    uint64  `json:"count"`
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
}

// Mean returns sum/count, or 0 if count == 0.
func Mean(sum float64, count uint64) float64 {
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// Variance returns the population variance sumSq/count - mean², where mean is
// Mean(sum, count). It returns 0 if count == 0.
//
// Negative results smaller in magnitude than NegativeTolerance are reported
// as 0. Larger negative results mean the input was too ill-conditioned for
// the two-moment method, and are returned as computed.
func Variance(sum, sumSq float64, count uint64) float64 {
	if count == 0 {
		return 0
	}
	mean := Mean(sum, count)
	v := sumSq/float64(count) - mean*mean
	if v < 0 && -v < NegativeTolerance {
		return 0
	}
	return v
}
