package worker

import (
	"context"
	"fmt"
	"sync"
)

// SimSwitch is an in-memory plug bank for demos and tests.
type SimSwitch struct {
	mu       sync.Mutex
	state    map[string]bool
	failures map[string]error
	onChange func(name string, on bool)
}

func NewSimSwitch() *SimSwitch {
	return &SimSwitch{
		state:    make(map[string]bool),
		failures: make(map[string]error),
	}
}

// OnChange registers a callback invoked after every successful Set.
func (s *SimSwitch) OnChange(fn func(name string, on bool)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Fail makes every Set on name return err until cleared with a nil err.
func (s *SimSwitch) Fail(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, name)
		return
	}
	s.failures[name] = err
}

func (s *SimSwitch) IsOn(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state[name]
}

func (s *SimSwitch) Set(ctx context.Context, name string, on bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if err := s.failures[name]; err != nil {
		s.mu.Unlock()
		return fmt.Errorf("sim plug %s: %w", name, err)
	}
	s.state[name] = on
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(name, on)
	}
	return nil
}
