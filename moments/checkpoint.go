// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package moments

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"

	"github.com/creachadair/atomicfile"
)

// Load reads a state saved by Save from the file at path. If the file does
// not exist, Load returns an empty state without error.
func Load(path string) (State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return State{}, nil
	} else if err != nil {
		return State{}, err
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("decode state %q: %w", path, err)
	}
	return s, nil
}

// Save writes s to the file at path as JSON. The file is replaced
// atomically, so a concurrent or interrupted save does not leave a partial
// state behind. A state whose sums have overflowed cannot be saved.
func (s State) Save(path string) error {
	if !isFinite(s.Sum) || !isFinite(s.SumSq) {
		return fmt.Errorf("save state %q: sums are not finite (%v)", path, s)
	}
	f, err := atomicfile.New(path, 0600)
	if err != nil {
		return err
	}
	defer f.Cancel()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return err
	}
	return f.Close()
}

func isFinite(v float64) bool { return !math.IsInf(v, 0) && !math.IsNaN(v) }
