package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os/exec"
	"strings"
	"sync"
	"testing"

	"github.com/creachadair/mrstats/csvfield"
	"github.com/creachadair/mrstats/moments"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/kr/pretty"
)

const sampleInput = `2539,Clean & quiet apt home by the park,2787,John,Brooklyn,Kensington,40.64749,-73.97237,Private room,149,1,9,2018-10-19,0.21,6,365
2595,Skylit Midtown Castle,2845,Jennifer,Manhattan,Midtown,40.75362,-73.98377,Entire home/apt,225,1,45,2019-05-21,0.38,2,355
5803,"Lovely Room 1; Garden; Best Area; Legal rental",9744,Laurie,Brooklyn,South Slope,40.66829,-73.98779,Private room,89,4,167,2019-06-24,1.34,3,314
8490,"MAISON DES SIRENES1;bohemian apartment",25183,Nathalie,Brooklyn,Bedford-Stuyvesant,40.68371,-73.94028,Entire home/apt,120,2,88,2019-06-19,0.73,2,233
9518,"SPACIOUS; LOVELY FURNISHED MANHATTAN BEDROOM",31374,Shon,Manhattan,Inwood,40.86482,-73.92106,Private room,44,3,108,2019-06-15,1.11,3,311
9657,Modern 1 BR / NYC / EAST VILLAGE,21904,Dana,Manhattan,East Village,40.7292,-73.98542,Entire home/apt,180,14,29,2019-04-19,0.24,1,67
`

const sampleRecords = "stats\t149\t22201\t1\n" +
	"stats\t225\t50625\t1\n" +
	"stats\t89\t7921\t1\n" +
	"stats\t120\t14400\t1\n" +
	"stats\t44\t1936\t1\n" +
	"stats\t180\t32400\t1\n"

const (
	badPrice   = "1004,Invalid price example,2004,Dana,Bronx,Melrose,40.40000,-73.40000,Shared room,abc,1,1,2019-01-04,0.10,1,400\n"
	shortLine  = "1005,Too,short\n"
	sampleMean = 134.5
	sampleVar  = 3490.25
)

func TestEachLine(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"\n", []string{""}},
		{"a", []string{"a"}},
		{"a\nb", []string{"a", "b"}},
		{"a\n\nb\n", []string{"a", "", "b"}},
		{"a\r\nb\r\n", []string{"a\r", "b\r"}},
	}
	for _, test := range tests {
		var got []string
		if err := eachLine(strings.NewReader(test.input), func(line string) error {
			got = append(got, line)
			return nil
		}); err != nil {
			t.Errorf("eachLine(%q): unexpected error: %v", test.input, err)
		}
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("eachLine(%q): (-want, +got)\n%s", test.input, diff)
		}
	}
}

func TestBatches(t *testing.T) {
	tests := []struct {
		input string
		n     int
		want  [][]string
	}{
		{"", 3, nil},
		{"a\nb\nc\n", 0, [][]string{{"a"}, {"b"}, {"c"}}},
		{"a\nb\nc\n", 2, [][]string{{"a", "b"}, {"c"}}},
		{"a\nb\nc", 3, [][]string{{"a", "b", "c"}}},
		{"a\r\n\r\n\nb", 10, [][]string{{"a\r", "\r", "", "b"}}},
	}
	for _, test := range tests {
		var got [][]string
		if err := Batches(strings.NewReader(test.input), test.n, func(lines []string) error {
			got = append(got, append([]string(nil), lines...))
			return nil
		}); err != nil {
			t.Errorf("Batches(%q, %d): unexpected error: %v", test.input, test.n, err)
		}
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("Batches(%q, %d): (-want, +got)\n%s", test.input, test.n, diff)
		}
	}

	// Carriage returns are records to be dropped, not blank lines.
	var s moments.State
	var c Counts
	if err := Batches(strings.NewReader("\r\n\nstats\t2\t4\t1\r\n"), 2, func(lines []string) error {
		c.Add(ReduceLines(lines, &s))
		return nil
	}); err != nil {
		t.Fatalf("Batches: unexpected error: %v", err)
	}
	if want := (Counts{Read: 3, Blank: 1, Dropped: 1, Accepted: 1}); c != want {
		t.Errorf("Batch counts: got %+v, want %+v", c, want)
	}

	stop := fmt.Errorf("stop")
	var calls int
	err := Batches(strings.NewReader("a\nb\nc\n"), 1, func([]string) error { calls++; return stop })
	if err != stop || calls != 1 {
		t.Errorf("Batches: got (%v, %d calls), want (%v, 1 call)", err, calls, stop)
	}
}

func TestMap(t *testing.T) {
	var logs []string
	m := NewMapper()
	m.Logf = func(msg string, args ...any) { logs = append(logs, fmt.Sprintf(msg, args...)) }

	input := sampleInput + badPrice + shortLine + "\n"
	var out bytes.Buffer
	c, err := m.Map(strings.NewReader(input), &out)
	if err != nil {
		t.Fatalf("Map: unexpected error: %v", err)
	}
	if got := out.String(); got != sampleRecords {
		t.Errorf("Map output: got\n%s\nwant\n%s", got, sampleRecords)
	}
	want := Counts{Read: 9, Dropped: 3, Accepted: 6}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("Map counts: (-want, +got)\n%s", diff)
	}
	if len(logs) != 3 {
		t.Errorf("Map logged %d messages, want 3:\n%s", len(logs), strings.Join(logs, "\n"))
	} else if !strings.HasPrefix(logs[0], "line 7: ") {
		t.Errorf("Map log: got %q, want line 7", logs[0])
	}
}

func TestMapColumn(t *testing.T) {
	m := &Mapper{Extractor: csvfield.Extractor{Column: 0}}
	var out bytes.Buffer
	if _, err := m.Map(strings.NewReader("3,x\n4,y\n"), &out); err != nil {
		t.Fatalf("Map: unexpected error: %v", err)
	}
	if got, want := out.String(), "stats\t3\t9\t1\nstats\t4\t16\t1\n"; got != want {
		t.Errorf("Map column 0: got %q, want %q", got, want)
	}
}

func TestMapDedup(t *testing.T) {
	lines := strings.SplitAfter(sampleInput, "\n")
	input := sampleInput + lines[0] + lines[2] // two re-delivered rows

	var out bytes.Buffer
	m := NewMapper()
	m.Dedup = true
	c, err := m.Map(strings.NewReader(input), &out)
	if err != nil {
		t.Fatalf("Map: unexpected error: %v", err)
	}
	if got := out.String(); got != sampleRecords {
		t.Errorf("Map output: got\n%s\nwant\n%s", got, sampleRecords)
	}
	if c.Duplicate != 2 || c.Accepted != 6 {
		t.Errorf("Map counts: got %+v, want 2 duplicates and 6 accepted", c)
	}
}

func TestIDFilter(t *testing.T) {
	f := newIDFilter()
	for _, tc := range []struct {
		line string
		want bool
	}{
		{"1,a", true},
		{"2,a", true},
		{"1,b", false},
		{`"1",c`, false}, // quoting does not change the ID
		{`"3,4",d`, true},
		{"3,e", true},
		{`"3,4",f`, false},
	} {
		if got := f.firstSeen(tc.line); got != tc.want {
			t.Errorf("firstSeen(%q): got %v, want %v", tc.line, got, tc.want)
		}
	}
	var none *idFilter
	if !none.firstSeen("1,a") || !none.firstSeen("1,a") {
		t.Error("nil filter rejected a line")
	}
}

func TestReduce(t *testing.T) {
	var logs []string
	logf := func(msg string, args ...any) { logs = append(logs, fmt.Sprintf(msg, args...)) }

	input := sampleRecords + "\n" + "stats\tNaN\t25\t1\n" + "stats\t10\t25\tbad\n" + "garbage\n"
	var s moments.State
	c, err := Reduce(strings.NewReader(input), &s, logf)
	if err != nil {
		t.Fatalf("Reduce: unexpected error: %v", err)
	}
	want := Counts{Read: 10, Blank: 1, Dropped: 3, Accepted: 6}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("Reduce counts: (-want, +got)\n%s", diff)
	}
	if len(logs) != 3 {
		t.Errorf("Reduce logged %d messages, want 3", len(logs))
	}
	if s.Count != 6 || s.Mean() != sampleMean || math.Abs(s.Variance()-sampleVar) > 1e-6 {
		t.Errorf("Reduce state: got %# v", pretty.Formatter(s.Summary()))
	}
}

func TestReduceLines(t *testing.T) {
	var s moments.State
	c := ReduceLines([]string{"stats\t10\t100\t2\n", "", "stats\t1\t1", "stats\t5\t25\t1"}, &s)
	if want := (Counts{Read: 4, Blank: 1, Dropped: 1, Accepted: 2}); c != want {
		t.Errorf("ReduceLines counts: got %+v, want %+v", c, want)
	}
	if want := (moments.State{Sum: 15, SumSq: 125, Count: 3}); s != want {
		t.Errorf("ReduceLines state: got %v, want %v", s, want)
	}
}

func TestWriteResult(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResult(&buf, moments.State{}); err != nil {
		t.Fatalf("WriteResult: %v", err)
	} else if buf.Len() != 0 {
		t.Errorf("WriteResult empty: got %q, want no output", buf.String())
	}

	var s moments.State
	for _, v := range []float64{149, 225, 89, 120, 44, 180} {
		s.AddValue(v)
	}
	if err := WriteResult(&buf, s); err != nil {
		t.Fatalf("WriteResult: %v", err)
	}
	if got, want := buf.String(), "mean\t134.500000\nvariance\t3490.250000\n"; got != want {
		t.Errorf("WriteResult: got %q, want %q", got, want)
	}
}

func TestWriteCombined(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCombined(&buf, moments.State{}); err != nil || buf.Len() != 0 {
		t.Errorf("WriteCombined empty: got %q, %v; want no output", buf.String(), err)
	}
	if err := WriteCombined(&buf, moments.State{Sum: 807, SumSq: 129483, Count: 6}); err != nil {
		t.Fatalf("WriteCombined: %v", err)
	}
	if got, want := buf.String(), "stats\t807\t129483\t6\n"; got != want {
		t.Errorf("WriteCombined: got %q, want %q", got, want)
	}

	// A combined record reduces to the same result as its inputs.
	var s moments.State
	if _, err := Reduce(&buf, &s, nil); err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if s.Mean() != sampleMean || math.Abs(s.Variance()-sampleVar) > 1e-6 {
		t.Errorf("Reduce combined: got %v", s)
	}
}

func TestMapThenReduce(t *testing.T) {
	var records bytes.Buffer
	if _, err := NewMapper().Map(strings.NewReader(sampleInput+badPrice), &records); err != nil {
		t.Fatalf("Map: %v", err)
	}
	var s moments.State
	if _, err := Reduce(&records, &s, nil); err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	var out bytes.Buffer
	if err := WriteResult(&out, s); err != nil {
		t.Fatalf("WriteResult: %v", err)
	}
	if got, want := out.String(), "mean\t134.500000\nvariance\t3490.250000\n"; got != want {
		t.Errorf("Result: got %q, want %q", got, want)
	}
}

func TestJob(t *testing.T) {
	// Build an input large enough that every partition sees some lines.
	var input strings.Builder
	var want moments.State
	for i := 0; i < 500; i++ {
		price := float64(i%97) + 0.25*float64(i%4)
		want.AddValue(price)
		fmt.Fprintf(&input, "%d,\"name, %d\",h,n,b,nb,40.1,-73.2,Private room,%v,1,1,2019-01-01,0.1,1,1\n",
			i, i, price)
		if i%50 == 0 {
			input.WriteString(badPrice)
		}
	}

	for _, n := range []int{0, 1, 2, 3, 8} {
		t.Run(fmt.Sprint("mappers=", n), func(t *testing.T) {
			job := Job{Mapper: *NewMapper(), Mappers: n}
			res, err := job.Run(context.Background(), strings.NewReader(input.String()))
			if err != nil {
				t.Fatalf("Run: unexpected error: %v", err)
			}
			if got := len(res.Parts); got != max(n, 1) {
				t.Errorf("Got %d partitions, want %d", got, max(n, 1))
			}
			if res.State.Count != want.Count {
				t.Errorf("Count: got %d, want %d", res.State.Count, want.Count)
			}
			if math.Abs(res.State.Mean()-want.Mean()) > 1e-9 ||
				math.Abs(res.State.Variance()-want.Variance()) > 1e-6 {
				t.Errorf("Result: got %# v, want %# v",
					pretty.Formatter(res.State.Summary()), pretty.Formatter(want.Summary()))
			}
			if want := (Counts{Read: 510, Dropped: 10, Accepted: 500}); res.Input != want {
				t.Errorf("Input counts: got %+v, want %+v", res.Input, want)
			}
			if res.Records.Accepted != 500 || res.Records.Dropped != 0 {
				t.Errorf("Record counts: got %+v", res.Records)
			}
		})
	}
}

func TestJobDiagnose(t *testing.T) {
	var μ sync.Mutex
	var logs []string
	m := NewMapper()
	m.Logf = func(msg string, args ...any) {
		μ.Lock()
		defer μ.Unlock()
		logs = append(logs, fmt.Sprintf(msg, args...))
	}
	job := Job{Mapper: *m, Mappers: 2}
	if _, err := job.Run(context.Background(), strings.NewReader(sampleInput+badPrice+shortLine)); err != nil {
		t.Fatalf("Run: unexpected error: %v", err)
	}
	want := []string{
		"dropped: " + csvfield.Default.Diagnose(strings.TrimSuffix(badPrice, "\n")),
		"dropped: " + csvfield.Default.Diagnose(strings.TrimSuffix(shortLine, "\n")),
	}
	if diff := cmp.Diff(want, logs, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Errorf("Job logs: (-want, +got)\n%s", diff)
	}
}

func TestJobDedup(t *testing.T) {
	lines := strings.SplitAfter(sampleInput, "\n")
	input := sampleInput + lines[1] + lines[4] + lines[1]
	job := Job{Mapper: Mapper{Extractor: csvfield.Default, Dedup: true}, Mappers: 3}
	res, err := job.Run(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Run: unexpected error: %v", err)
	}
	if res.Input.Duplicate != 3 || res.State.Count != 6 {
		t.Errorf("Run: got counts %+v and state %v", res.Input, res.State)
	}
}

func TestJobCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	job := Job{Mapper: *NewMapper(), Mappers: 2}
	// A cancelled job must not hang; it either finishes or reports the
	// cancellation, depending on whether the feeder won the race.
	res, err := job.Run(ctx, strings.NewReader(strings.Repeat(sampleInput, 100)))
	if err == nil && res.State.Count != 600 {
		t.Errorf("Run: got count %d without error", res.State.Count)
	}
}

func TestStream(t *testing.T) {
	for _, prog := range []string{"cat", "sort"} {
		if _, err := exec.LookPath(prog); err != nil {
			t.Skipf("Program %q not found: %v", prog, err)
		}
	}

	var out, errs bytes.Buffer
	s := Stream{Mapper: "cat", Reducer: "sort", Mappers: 3, Stderr: &errs}
	input := "c\na\ne\nb\nd\nf"
	if err := s.Run(context.Background(), strings.NewReader(input), &out); err != nil {
		t.Fatalf("Stream: unexpected error: %v\n%s", err, errs.String())
	}
	if got, want := out.String(), "a\nb\nc\nd\ne\nf\n"; got != want {
		t.Errorf("Stream output: got %q, want %q", got, want)
	}
}

func TestStreamStderr(t *testing.T) {
	for _, prog := range []string{"sh", "cat"} {
		if _, err := exec.LookPath(prog); err != nil {
			t.Skipf("Program %q not found: %v", prog, err)
		}
	}

	// Every program writes to the shared stderr concurrently with the others.
	const prog = `sh -c "cat; echo done >&2"`
	var out, errs bytes.Buffer
	s := Stream{Mapper: prog, Reducer: prog, Mappers: 4, Stderr: &errs}
	if err := s.Run(context.Background(), strings.NewReader(sampleInput), &out); err != nil {
		t.Fatalf("Stream: unexpected error: %v\n%s", err, errs.String())
	}
	if got, want := errs.String(), strings.Repeat("done\n", 5); got != want {
		t.Errorf("Stream stderr: got %q, want %q", got, want)
	}
	if got := strings.Count(out.String(), "\n"); got != 6 {
		t.Errorf("Stream output: got %d lines, want 6:\n%s", got, out.String())
	}
}

func TestStreamErrors(t *testing.T) {
	tests := []Stream{
		{Mapper: "", Reducer: "cat"},
		{Mapper: "cat", Reducer: ""},
		{Mapper: `cat "unbalanced`, Reducer: "cat"},
		{Mapper: "cat", Reducer: "no-such-program-exists-here"},
		{Mapper: "no-such-program-exists-here", Reducer: "cat"},
	}
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skipf("Program cat not found: %v", err)
	}
	for _, s := range tests {
		var out bytes.Buffer
		if err := s.Run(context.Background(), strings.NewReader("x\n"), &out); err == nil {
			t.Errorf("Stream %+v: got nil error, want failure", s)
		}
	}
}
