package profiler

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// Stats accumulates named counters. Batches add to it while rendering and the frame loop reads
// and resets it once per frame. It is safe for concurrent use.
type Stats struct {
	mu     *sync.Mutex
	values map[string]int
}

// EngineStats is the accumulator batches report to unless they are given another one.
var EngineStats = NewStats()

// NewStats creates an empty accumulator.
func NewStats() *Stats {
	return &Stats{
		mu:     &sync.Mutex{},
		values: make(map[string]int),
	}
}

// Extra adds n to the counter name.
//
// Parameters:
//   - name: the counter
//   - n: the amount to add
func (s *Stats) Extra(name string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] += n
}

// Get returns the counter name, zero if it was never added to.
func (s *Stats) Get(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[name]
}

// Reset zeroes every counter.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.values)
}

// Snapshot returns a copy of every counter.
func (s *Stats) Snapshot() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.values)
}

// String formats the counters sorted by name.
func (s *Stats) String() string {
	snap := s.Snapshot()
	names := slices.Sorted(maps.Keys(snap))
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %d", name, snap[name]))
	}
	return strings.Join(parts, " | ")
}
