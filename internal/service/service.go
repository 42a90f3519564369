// Package service implements a reducer as a JSON-RPC service.
//
// The service holds a single accumulator. Clients fold intermediate record
// lines into it, merge partial states computed elsewhere, and read back the
// current summary. Because folding is associative and commutative, clients
// may call in any order and from any number of connections.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/mrstats/internal/pipeline"
	"github.com/creachadair/mrstats/moments"
)

// Service is a reducer that accepts input over JSON-RPC.
type Service struct {
	μ     sync.Mutex
	state moments.State
	lines pipeline.Counts
	saves string // checkpoint path, or ""
}

// New constructs a Service whose state starts at init. If path != "", the
// state is written to that file after every change.
func New(init moments.State, path string) *Service {
	return &Service{state: init, saves: path}
}

// Methods returns the method assigner for s.
func (s *Service) Methods() handler.Map {
	return handler.Map{
		"Fold":   handler.New(s.Fold),
		"Merge":  handler.New(s.Merge),
		"Result": handler.New(s.Result),
		"State":  handler.New(s.State),
		"Reset":  handler.New(s.Reset),
	}
}

// FoldRequest is the parameter to the Fold method.
type FoldRequest struct {
	Lines []string `json:"lines"`
}

// FoldReply is the result of the Fold method.
type FoldReply struct {
	Accepted int64 `json:"accepted"`
	Dropped  int64 `json:"dropped"`
	Blank    int64 `json:"blank,omitempty"`
}

// Fold decodes the given record lines and folds them into the state. Lines
// that do not decode are counted and dropped, as a reducer does.
func (s *Service) Fold(ctx context.Context, req *FoldRequest) (*FoldReply, error) {
	if len(req.Lines) == 0 {
		return nil, jrpc2.Errorf(jrpc2.InvalidParams, "no lines to fold")
	}
	s.μ.Lock()
	defer s.μ.Unlock()

	next := s.state
	c := pipeline.ReduceLines(req.Lines, &next)
	if err := s.commitLocked(next); err != nil {
		return nil, err
	}
	s.lines.Add(c)
	return &FoldReply{Accepted: c.Accepted, Dropped: c.Dropped, Blank: c.Blank}, nil
}

// Merge adds a partial state to the state, and returns the updated state.
func (s *Service) Merge(ctx context.Context, part *moments.State) (moments.State, error) {
	s.μ.Lock()
	defer s.μ.Unlock()

	next := s.state
	next.Merge(*part)
	if err := s.commitLocked(next); err != nil {
		return moments.State{}, err
	}
	return next, nil
}

// ResultReply is the result of the Result method.
type ResultReply struct {
	moments.Summary
	Lines pipeline.Counts `json:"lines"`
}

// Result reports the summary statistics of the state, and the number of lines
// folded so far by this server.
func (s *Service) Result(ctx context.Context) (*ResultReply, error) {
	s.μ.Lock()
	defer s.μ.Unlock()
	return &ResultReply{Summary: s.state.Summary(), Lines: s.lines}, nil
}

// State reports the raw state of the service, which can be merged into
// another reducer.
func (s *Service) State(ctx context.Context) (moments.State, error) {
	s.μ.Lock()
	defer s.μ.Unlock()
	return s.state, nil
}

// Reset discards the state and returns the state prior to the reset.
func (s *Service) Reset(ctx context.Context) (moments.State, error) {
	s.μ.Lock()
	defer s.μ.Unlock()
	old := s.state
	if err := s.commitLocked(moments.State{}); err != nil {
		return moments.State{}, err
	}
	s.lines = pipeline.Counts{}
	return old, nil
}

// commitLocked replaces the state with next, saving a checkpoint if one is
// configured.  If the save fails, the state is not changed.
func (s *Service) commitLocked(next moments.State) error {
	if s.saves != "" {
		if err := next.Save(s.saves); err != nil {
			return fmt.Errorf("saving checkpoint: %w", err)
		}
	}
	s.state = next
	return nil
}
