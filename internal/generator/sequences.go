package generator

import "sync"

// Sequences hands out monotonically increasing numbers per name.
type Sequences struct {
	mu       sync.Mutex
	counters map[string]int
}

func NewSequences() *Sequences {
	return &Sequences{counters: make(map[string]int)}
}

// Next returns start on the first call for name and increments afterwards.
func (s *Sequences) Next(name string, start int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.counters[name]
	if !ok {
		current = start
	}
	s.counters[name] = current + 1
	return current
}

// Reset forgets one sequence, or all of them when name is empty.
func (s *Sequences) Reset(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == "" {
		s.counters = make(map[string]int)
		return
	}
	delete(s.counters, name)
}
