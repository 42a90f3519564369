package pipeline

import (
	"errors"
	"io"
	"os"
)

// OpenInputs opens the named files for reading as a single stream of lines.
// The name "-" denotes standard input, which is also used if there are no
// names.  If a file does not end with a newline, one is supplied, so that the
// last line of one file is not joined to the first line of the next.
//
// The caller must close the returned reader, which closes any files not
// already closed. Standard input is never closed.
func OpenInputs(paths []string) (io.ReadCloser, error) {
	if len(paths) == 0 {
		paths = []string{"-"}
	}
	in := new(inputs)
	for _, path := range paths {
		if path == "-" {
			in.rs = append(in.rs, io.NopCloser(os.Stdin))
			continue
		}
		f, err := os.Open(path)
		if err != nil {
			in.Close()
			return nil, err
		}
		in.rs = append(in.rs, f)
	}
	return in, nil
}

type inputs struct {
	rs      []io.ReadCloser
	partial bool // the current input has an unterminated line
	addNL   bool // a newline is owed before the next input
}

func (in *inputs) Read(p []byte) (int, error) {
	for len(p) != 0 {
		if in.addNL {
			in.addNL = false
			p[0] = '\n'
			return 1, nil
		}
		if len(in.rs) == 0 {
			return 0, io.EOF
		}
		nr, err := in.rs[0].Read(p)
		if nr > 0 {
			in.partial = p[nr-1] != '\n'
		}
		if err == io.EOF {
			err = in.rs[0].Close()
			in.rs = in.rs[1:]
			in.addNL = in.partial
			in.partial = false
		}
		if nr > 0 || err != nil {
			return nr, err
		}
	}
	return 0, nil
}

func (in *inputs) Close() error {
	var err error
	for _, r := range in.rs {
		err = errors.Join(err, r.Close())
	}
	in.rs = nil
	return err
}
