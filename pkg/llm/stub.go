package llm

import (
	"context"
	"fmt"
	"sync"
)

// StubOracle replays a scripted sequence of turns. Each Plan/StreamPlan call
// consumes the next entry. Used by orchestrator tests.
type StubOracle struct {
	mu    sync.Mutex
	turns []*Turn
	errs  []error
	calls int

	// Requests records every PlanRequest received, for assertions.
	Requests []PlanRequest
}

// NewStubOracle scripts the given turns in order.
func NewStubOracle(turns ...*Turn) *StubOracle {
	return &StubOracle{turns: turns}
}

// PushTurn appends another scripted turn.
func (s *StubOracle) PushTurn(t *Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
}

// PushError appends a scripted failure consumed before any remaining turns.
func (s *StubOracle) PushError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

// Calls returns how many planning steps ran.
func (s *StubOracle) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *StubOracle) next(req PlanRequest) (*Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.Requests = append(s.Requests, req)

	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	if len(s.turns) == 0 {
		return nil, fmt.Errorf("stub oracle: no scripted turn for call %d", s.calls)
	}
	t := s.turns[0]
	s.turns = s.turns[1:]
	return t, nil
}

// Plan implements Oracle.
func (s *StubOracle) Plan(ctx context.Context, req PlanRequest) (*Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.next(req)
}

// StreamPlan implements Oracle. The scripted text is delivered as a single
// chunk before the turn is returned.
func (s *StubOracle) StreamPlan(ctx context.Context, req PlanRequest, onDelta StreamFunc) (*Turn, error) {
	t, err := s.next(req)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if onDelta != nil && t.Text != "" {
		onDelta(t.Text)
	}
	return t, nil
}
