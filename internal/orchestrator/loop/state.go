package loop

import "sync"

// DefaultState implements the State interface with thread-safe state management.
type DefaultState struct {
	mu sync.RWMutex

	iteration     int
	maxIterations int
}

// NewDefaultState creates a new DefaultState. Limits below one become one.
func NewDefaultState(maxIterations int) *DefaultState {
	if maxIterations < 1 {
		maxIterations = 1
	}
	return &DefaultState{maxIterations: maxIterations}
}

// Iteration returns the current iteration count
func (s *DefaultState) Iteration() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.iteration
}

// Increment advances the iteration counter and returns the new count
func (s *DefaultState) Increment() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iteration++
	return s.iteration
}

// MaxIterations returns the maximum number of iterations allowed
func (s *DefaultState) MaxIterations() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxIterations
}

// HasReachedLimit returns true if the maximum iteration limit has been reached
func (s *DefaultState) HasReachedLimit() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.iteration >= s.maxIterations
}

var _ State = (*DefaultState)(nil)
