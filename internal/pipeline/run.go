package pipeline

import (
	"context"
	"io"

	"github.com/creachadair/mrstats/moments"
	"github.com/creachadair/taskgroup"
)

// A Job runs a complete map/reduce computation in a single process.
//
// Input lines are dealt round-robin to Mappers concurrent mapper tasks. Each
// mapper writes its records through a pipe to its own combiner, which folds
// them into a partial state.  When the input is exhausted the partial states
// are merged. The result is the same as that of a single mapper and reducer,
// up to the order of floating-point addition.
type Job struct {
	Mapper  Mapper
	Mappers int // number of concurrent mappers; values < 1 mean 1
}

// Result is the outcome of a Job.
type Result struct {
	State   moments.State   // merged over all partitions
	Parts   []moments.State // per-partition partial states
	Input   Counts          // input lines, as seen by the mappers
	Records Counts          // records, as seen by the combiners
}

// Run reads CSV lines from r and runs j over them. If any task fails, Run
// cancels the others and reports the first error.
func (j Job) Run(ctx context.Context, r io.Reader) (*Result, error) {
	n := max(j.Mappers, 1)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g := taskgroup.New(taskgroup.Trigger(cancel))
	parts := make([]moments.State, n)
	mcount := make([]Counts, n)
	rcount := make([]Counts, n)
	feeds := make([]chan string, n)

	for i := range n {
		feed := make(chan string, 64)
		feeds[i] = feed
		pr, pw := io.Pipe()

		g.Go(func() error {
			c, err := j.Mapper.mapLines(feed, pw)
			mcount[i] = c
			pw.CloseWithError(err)
			return err
		})
		g.Go(func() error {
			c, err := Reduce(pr, &parts[i], j.Mapper.Logf)
			rcount[i] = c
			pr.CloseWithError(err)
			return err
		})
	}

	var ids *idFilter
	if j.Mapper.Dedup {
		ids = newIDFilter()
	}
	var input Counts
	g.Go(func() error {
		defer func() {
			for _, feed := range feeds {
				close(feed)
			}
		}()
		var next int
		return eachLine(r, func(line string) error {
			if !ids.firstSeen(line) {
				input.Read++
				input.Duplicate++
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case feeds[next] <- line:
				next = (next + 1) % n
				return nil
			}
		})
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	res := &Result{Parts: parts, Input: input}
	for i := range n {
		res.State.Merge(parts[i])
		res.Input.Add(mcount[i])
		res.Records.Add(rcount[i])
	}
	return res, nil
}
