// Program stats computes the mean and variance of a column of CSV values,
// using a mapper that emits intermediate records and a reducer that folds them.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/mrstats/csvfield"
	"github.com/creachadair/mrstats/internal/pipeline"
	"github.com/creachadair/mrstats/internal/service"
	"github.com/creachadair/mrstats/moments"
)

var mapFlags = struct {
	Column  int  `flag:"column,Column to extract (0-based)"`
	Dedup   bool `flag:"dedup,Skip rows whose first field repeats an earlier row"`
	Verbose bool `flag:"v,Log skipped lines"`
}{Column: csvfield.PriceColumn}

var reduceFlags struct {
	Combine bool   `flag:"combine,Print a combined record instead of the result"`
	State   string `flag:"state,Resume from and save state to this file"`
	Verbose bool   `flag:"v,Log skipped lines"`
}

var mergeFlags struct {
	Combine bool   `flag:"combine,Print a combined record instead of the result"`
	Output  string `flag:"out,Save the merged state to this file"`
}

var runFlags = struct {
	Mappers int  `flag:"mappers,Number of concurrent mappers"`
	Column  int  `flag:"column,Column to extract (0-based)"`
	Dedup   bool `flag:"dedup,Skip rows whose first field repeats an earlier row"`
	Combine bool `flag:"combine,Print a combined record instead of the result"`
	Verbose bool `flag:"v,Log skipped lines"`
}{Mappers: runtime.NumCPU(), Column: csvfield.PriceColumn}

var streamFlags = struct {
	Mapper  string `flag:"mapper,Mapper command line (required)"`
	Reducer string `flag:"reducer,Reducer command line (required)"`
	Mappers int    `flag:"mappers,Number of mapper processes"`
}{Mappers: runtime.NumCPU()}

var pushFlags = struct {
	Server string `flag:"server,Service address (required)"`
	CSV    bool   `flag:"csv,Input is CSV; map and combine it locally before pushing"`
	Column int    `flag:"column,Column to extract with -csv (0-based)"`
	Batch  int    `flag:"batch,Number of records per Fold call"`
}{Column: csvfield.PriceColumn, Batch: 500}

var queryFlags struct {
	Server string `flag:"server,Service address (required)"`
	JSON   bool   `flag:"json,Print the full reply as JSON"`
	Reset  bool   `flag:"reset,Clear the service state after reading it"`
}

func main() {
	root := &command.C{
		Name:  command.ProgramName(),
		Usage: "<command> [arguments]\nhelp [<command>]",
		Help: `Compute the mean and variance of a column of CSV values.

The computation is split into a map phase, which extracts the target column
of each CSV line and emits an intermediate record, and a reduce phase, which
folds the records and reports the population mean and variance. The phases
may be run as separate processes connected by a pipe, in a single process
with concurrent mappers, or against a long-running reducer service.

Input files are read in the order given; with no files, or the name "-",
input is read from stdin.`,

		Commands: []*command.C{
			{
				Name:     "map",
				Usage:    "[input-file ...]",
				Help:     "Convert CSV lines into intermediate records.",
				SetFlags: command.Flags(flax.MustBind, &mapFlags),
				Run:      command.Adapt(runMap),
			},
			{
				Name:  "reduce",
				Usage: "[input-file ...]",
				Help: `Fold intermediate records and print the mean and variance.

With -combine, print the folded state as a single intermediate record, so
that the output can be fed to another reducer.`,
				SetFlags: command.Flags(flax.MustBind, &reduceFlags),
				Run:      command.Adapt(runReduce),
			},
			{
				Name:     "merge",
				Usage:    "<state-file> ...",
				Help:     "Merge saved reducer states and print the result.",
				SetFlags: command.Flags(flax.MustBind, &mergeFlags),
				Run:      command.Adapt(runMerge),
			},
			{
				Name:  "run",
				Usage: "[input-file ...]",
				Help: `Run the map and reduce phases in this process.

Input lines are dealt round-robin to -mappers concurrent mappers, each with
its own combiner. The partial states are merged at the end.`,
				SetFlags: command.Flags(flax.MustBind, &runFlags),
				Run:      command.Adapt(runRun),
			},
			{
				Name:  "stream",
				Usage: "-mapper <cmd> -reducer <cmd> [input-file ...]",
				Help: `Run external mapper and reducer programs connected by pipes.

Input lines are dealt round-robin to -mappers copies of the mapper command.
Their output is merged line by line into a single copy of the reducer
command, whose output is copied to stdout. Commands are split using shell
quoting rules, but are not otherwise interpreted by a shell.`,
				SetFlags: command.Flags(flax.MustBind, &streamFlags),
				Run:      command.Adapt(runStream),
			},
			{
				Name:  "push",
				Usage: "-server <addr> [input-file ...]",
				Help: `Send intermediate records to a reducer service.

By default the input must be intermediate records, which are sent in batches
of -batch lines. With -csv, the input is CSV, which is mapped and combined
locally and sent as a single partial state.`,
				SetFlags: command.Flags(flax.MustBind, &pushFlags),
				Run:      command.Adapt(runPush),
			},
			{
				Name:     "query",
				Usage:    "-server <addr>",
				Help:     "Print the current result of a reducer service.",
				SetFlags: command.Flags(flax.MustBind, &queryFlags),
				Run:      command.Adapt(runQuery),
			},
			command.HelpCommand(nil),
			command.VersionCommand(),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}

func runMap(env *command.Env, files ...string) error {
	if mapFlags.Column < 0 {
		return env.Usagef("invalid -column %d", mapFlags.Column)
	}
	in, err := pipeline.OpenInputs(files)
	if err != nil {
		return err
	}
	defer in.Close()

	m := &pipeline.Mapper{
		Extractor: csvfield.Extractor{Column: mapFlags.Column},
		Dedup:     mapFlags.Dedup,
		Logf:      vlogf(mapFlags.Verbose),
	}
	c, err := m.Map(in, os.Stdout)
	if mapFlags.Verbose {
		log.Printf("Map: %v", c)
	}
	return err
}

func runReduce(env *command.Env, files ...string) error {
	var st moments.State
	if reduceFlags.State != "" {
		var err error
		st, err = moments.Load(reduceFlags.State)
		if err != nil {
			return fmt.Errorf("load state: %w", err)
		}
	}
	in, err := pipeline.OpenInputs(files)
	if err != nil {
		return err
	}
	defer in.Close()

	c, err := pipeline.Reduce(in, &st, vlogf(reduceFlags.Verbose))
	if reduceFlags.Verbose {
		log.Printf("Reduce: %v", c)
	}
	if err != nil {
		return err
	}
	if err := writeState(os.Stdout, st, reduceFlags.Combine); err != nil {
		return err
	}
	if reduceFlags.State != "" {
		if err := st.Save(reduceFlags.State); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
	}
	return nil
}

func runMerge(env *command.Env, files ...string) error {
	if len(files) == 0 {
		return env.Usagef("no state files specified")
	}
	var st moments.State
	for _, path := range files {
		if _, err := os.Stat(path); err != nil {
			return err
		}
		part, err := moments.Load(path)
		if err != nil {
			return err
		}
		st.Merge(part)
	}
	if mergeFlags.Output != "" {
		if err := st.Save(mergeFlags.Output); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
	}
	return writeState(os.Stdout, st, mergeFlags.Combine)
}

func runRun(env *command.Env, files ...string) error {
	if runFlags.Column < 0 {
		return env.Usagef("invalid -column %d", runFlags.Column)
	}
	in, err := pipeline.OpenInputs(files)
	if err != nil {
		return err
	}
	defer in.Close()

	job := pipeline.Job{
		Mapper: pipeline.Mapper{
			Extractor: csvfield.Extractor{Column: runFlags.Column},
			Dedup:     runFlags.Dedup,
			Logf:      vlogf(runFlags.Verbose),
		},
		Mappers: runFlags.Mappers,
	}
	res, err := job.Run(env.Context(), in)
	if err != nil {
		return err
	}
	if runFlags.Verbose {
		log.Printf("Input: %v", res.Input)
		for i, p := range res.Parts {
			log.Printf("Partition %d: %v", i, p)
		}
	}
	return writeState(os.Stdout, res.State, runFlags.Combine)
}

func runStream(env *command.Env, files ...string) error {
	if streamFlags.Mapper == "" || streamFlags.Reducer == "" {
		return env.Usagef("you must provide both -mapper and -reducer")
	}
	in, err := pipeline.OpenInputs(files)
	if err != nil {
		return err
	}
	defer in.Close()

	return pipeline.Stream{
		Mapper:  streamFlags.Mapper,
		Reducer: streamFlags.Reducer,
		Mappers: streamFlags.Mappers,
		Stderr:  os.Stderr,
	}.Run(env.Context(), in, os.Stdout)
}

func runPush(env *command.Env, files ...string) error {
	if pushFlags.Server == "" {
		return env.Usagef("you must provide a -server address")
	} else if pushFlags.Batch < 1 {
		return env.Usagef("invalid -batch %d", pushFlags.Batch)
	}
	in, err := pipeline.OpenInputs(files)
	if err != nil {
		return err
	}
	defer in.Close()

	cli, err := service.Dial(env.Context(), pushFlags.Server)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer cli.Close()

	if pushFlags.CSV {
		job := pipeline.Job{Mapper: pipeline.Mapper{
			Extractor: csvfield.Extractor{Column: pushFlags.Column},
		}}
		res, err := job.Run(env.Context(), in)
		if err != nil {
			return err
		}
		st, err := cli.Merge(env.Context(), res.State)
		if err != nil {
			return fmt.Errorf("merge: %w", err)
		}
		log.Printf("Pushed %d values (%v); service now has %d", res.State.Count, res.Input, st.Count)
		return nil
	}

	var total pipeline.Counts
	if err := pipeline.Batches(in, pushFlags.Batch, func(batch []string) error {
		rsp, err := cli.Fold(env.Context(), batch)
		if err != nil {
			return fmt.Errorf("fold: %w", err)
		}
		total.Add(pipeline.Counts{
			Read:     int64(len(batch)),
			Blank:    rsp.Blank,
			Dropped:  rsp.Dropped,
			Accepted: rsp.Accepted,
		})
		return nil
	}); err != nil {
		return err
	}
	log.Printf("Pushed records: %v", total)
	return nil
}

func runQuery(env *command.Env) error {
	if queryFlags.Server == "" {
		return env.Usagef("you must provide a -server address")
	}
	cli, err := service.Dial(env.Context(), queryFlags.Server)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer cli.Close()

	rsp, err := cli.Result(env.Context())
	if err != nil {
		return fmt.Errorf("result: %w", err)
	}
	if queryFlags.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rsp); err != nil {
			return err
		}
	} else if rsp.Count == 0 {
		log.Print("No values have been folded")
	} else {
		fmt.Printf("count\t%d\nmean\t%.6f\nvariance\t%.6f\n", rsp.Count, rsp.Mean, rsp.Variance)
	}
	if queryFlags.Reset {
		old, err := cli.Reset(env.Context())
		if err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		log.Printf("Reset service state (was %v)", old)
	}
	return nil
}

func writeState(w io.Writer, st moments.State, combine bool) error {
	if combine {
		return pipeline.WriteCombined(w, st)
	}
	return pipeline.WriteResult(w, st)
}

func vlogf(verbose bool) pipeline.Logf {
	if verbose {
		return log.Printf
	}
	return nil
}
