package profiler

import "time"

// ProfilerBuilderOption is a functional option used to configure a Profiler during construction.
type ProfilerBuilderOption func(*Profiler)

// WithInterval sets how often Tick logs.
//
// Parameters:
//   - d: the log interval, one second by default
//
// Returns:
//   - ProfilerBuilderOption: a function that sets the interval
func WithInterval(d time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.updateInterval = d
	}
}

// WithStats sets the accumulator whose per-frame counters are averaged into the log line.
func WithStats(s *Stats) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.stats = s
	}
}

// WithMemoryStats toggles the heap and GC part of the log line.
func WithMemoryStats(enabled bool) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.memory = enabled
	}
}
