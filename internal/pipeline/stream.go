package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creachadair/mds/shell"
	"github.com/creachadair/taskgroup"
)

// A Stream runs external mapper and reducer programs connected by pipes, in
// the manner of Hadoop streaming.  Input lines are dealt round-robin to the
// standard inputs of Mappers copies of the mapper program. Their outputs are
// merged line by line into the standard input of a single reducer program,
// whose standard output is the output of the stream.
type Stream struct {
	Mapper  string // mapper command line, split with shell quoting rules
	Reducer string // reducer command line, split with shell quoting rules
	Mappers int    // number of mapper processes; values < 1 mean 1

	// If set, the standard error of each program is copied here. Writes from
	// different programs are serialized.
	Stderr io.Writer
}

// parseCommand splits a command line into an argument list.
func parseCommand(label, cmd string) ([]string, error) {
	args, ok := shell.Split(cmd)
	if !ok {
		return nil, fmt.Errorf("%s command %q: unbalanced quotes", label, cmd)
	} else if len(args) == 0 {
		return nil, fmt.Errorf("%s command is empty", label)
	}
	return args, nil
}

// Run runs the stream over the lines of r, writing the reducer output to w.
// It returns when all the programs have exited. If any program fails, the
// rest are killed and the first error is reported.
func (s Stream) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	margs, err := parseCommand("mapper", s.Mapper)
	if err != nil {
		return err
	}
	rargs, err := parseCommand("reducer", s.Reducer)
	if err != nil {
		return err
	}
	n := max(s.Mappers, 1)
	stderr := s.Stderr
	if _, ok := stderr.(*os.File); !ok && stderr != nil {
		stderr = &syncWriter{w: stderr}
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	red := exec.CommandContext(ctx, rargs[0], rargs[1:]...)
	red.Stdout = w
	red.Stderr = stderr
	rin, err := red.StdinPipe()
	if err != nil {
		return err
	}
	if err := red.Start(); err != nil {
		return fmt.Errorf("start reducer: %w", err)
	}
	out := &lineWriter{w: rin}

	g := taskgroup.New(taskgroup.Trigger(cancel))
	var feeds []io.WriteCloser
	abort := func(err error) error {
		cancel()
		for _, f := range feeds {
			f.Close()
		}
		g.Wait()
		rin.Close()
		red.Wait()
		return err
	}
	for i := range n {
		m := exec.CommandContext(ctx, margs[0], margs[1:]...)
		m.Stderr = stderr
		stdin, err := m.StdinPipe()
		if err != nil {
			return abort(err)
		}
		stdout, err := m.StdoutPipe()
		if err != nil {
			return abort(err)
		}
		if err := m.Start(); err != nil {
			return abort(fmt.Errorf("start mapper %d: %w", i+1, err))
		}
		feeds = append(feeds, stdin)

		// The output must be fully consumed before Wait closes the pipe.
		g.Go(func() error {
			if err := out.copyLines(stdout); err != nil {
				return fmt.Errorf("mapper %d output: %w", i+1, err)
			}
			if err := m.Wait(); err != nil {
				return fmt.Errorf("mapper %d: %w", i+1, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		var next int
		var werr error
		rerr := eachLine(r, func(line string) error {
			if _, err := io.WriteString(feeds[next], line+"\n"); err != nil {
				werr = err
				return err
			}
			next = (next + 1) % n
			return nil
		})
		var cerr error
		for _, f := range feeds {
			cerr = errors.Join(cerr, f.Close())
		}
		if werr != nil {
			return fmt.Errorf("write mapper input: %w", werr)
		} else if rerr != nil {
			return fmt.Errorf("read input: %w", rerr)
		}
		return cerr
	})

	merr := g.Wait()
	if merr != nil {
		cancel()
	}
	rin.Close()
	if err := red.Wait(); err != nil && merr == nil {
		return fmt.Errorf("reducer: %w", err)
	}
	return merr
}

// syncWriter serializes writes to w from multiple goroutines.
type syncWriter struct {
	μ sync.Mutex
	w io.Writer
}

func (sw *syncWriter) Write(p []byte) (int, error) {
	sw.μ.Lock()
	defer sw.μ.Unlock()
	return sw.w.Write(p)
}

// lineWriter serializes whole lines from multiple sources onto one writer.
type lineWriter struct {
	μ sync.Mutex
	w io.Writer
}

func (lw *lineWriter) writeLine(line string) error {
	lw.μ.Lock()
	defer lw.μ.Unlock()
	_, err := io.WriteString(lw.w, line)
	return err
}

// copyLines copies lines from r to lw until r is exhausted. A final line
// without a newline has one added.
func (lw *lineWriter) copyLines(r io.Reader) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			if line[len(line)-1] != '\n' {
				line += "\n"
			}
			if werr := lw.writeLine(line); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
	}
}
