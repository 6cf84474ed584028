// Package profiler tracks frame rate, memory use and the render counters reported by batches.
package profiler

import (
	"fmt"
	"log"
	"maps"
	"runtime"
	"slices"
	"strings"
	"time"
)

// Report is what one profiler interval measured.
type Report struct {
	Frames int
	FPS    float64

	// Counters holds the per-frame average of every Stats counter over the interval.
	Counters map[string]float64

	HeapMB      float64
	AllocRateMB float64
	SysMB       float64
	GCCount     uint32
	LastPauseUs uint64
	MaxPauseUs  uint64
}

// String formats the report as a single log line.
func (r Report) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "FPS: %.2f", r.FPS)
	for _, name := range slices.Sorted(maps.Keys(r.Counters)) {
		fmt.Fprintf(&sb, " | %s: %.1f", name, r.Counters[name])
	}
	if r.SysMB > 0 {
		fmt.Fprintf(&sb, " | Heap: %.2f MB | Alloc Rate: %.2f MB/s | GC: %d (last: %d µs, max: %d µs) | Sys: %.2f MB",
			r.HeapMB, r.AllocRateMB, r.GCCount, r.LastPauseUs, r.MaxPauseUs, r.SysMB)
	}
	return sb.String()
}

// Profiler tracks frame rate, memory statistics and per-frame render counters.
// Outputs a Report to the log at a configurable interval.
type Profiler struct {
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memory         bool
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	stats  *Stats
	totals map[string]int
	last   Report
	now    func() time.Time
}

// NewProfiler creates a new Profiler. The interval defaults to 1 second and memory statistics
// are on.
//
// Parameters:
//   - options: functional options to configure the profiler
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		updateInterval: time.Second,
		memory:         true,
		totals:         make(map[string]int),
		now:            time.Now,
	}
	for _, opt := range options {
		opt(p)
	}
	p.lastTime = p.now()
	return p
}

// Tick should be called once per frame, after the frame's batches flushed. It moves the frame's
// counters out of the Stats accumulator and logs a Report when the interval has elapsed.
//
// Returns:
//   - bool: true if a report was logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.frameCount++
	if p.stats != nil {
		for name, v := range p.stats.Snapshot() {
			p.totals[name] += v
		}
		p.stats.Reset()
	}

	currentTime := p.now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	r := Report{
		Frames:   p.frameCount,
		FPS:      float64(p.frameCount) / elapsed.Seconds(),
		Counters: make(map[string]float64, len(p.totals)),
	}
	for name, total := range p.totals {
		r.Counters[name] = float64(total) / float64(p.frameCount)
	}
	if p.memory {
		p.readMemory(&r, elapsed)
	}
	log.Printf("[Profiler] %s", r)

	p.last = r
	p.frameCount = 0
	p.lastTime = currentTime
	clear(p.totals)
	return true
}

// Last returns the most recently logged report.
func (p *Profiler) Last() Report {
	return p.last
}

func (p *Profiler) readMemory(r *Report, elapsed time.Duration) {
	runtime.ReadMemStats(&p.memStats)
	// Alloc is live heap, TotalAlloc grows forever and tracks churn, Sys is the process footprint
	r.HeapMB = float64(p.memStats.Alloc) / 1024 / 1024
	r.SysMB = float64(p.memStats.Sys) / 1024 / 1024
	r.AllocRateMB = float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024 / elapsed.Seconds()

	gcCount := p.memStats.NumGC
	r.GCCount = gcCount
	if gcCount > 0 {
		// PauseNs is a circular buffer of the last 256 GC pauses
		r.LastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000
		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			r.MaxPauseUs = max(r.MaxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
}
