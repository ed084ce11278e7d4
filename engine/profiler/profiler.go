package profiler

import (
	"runtime"
	"time"

	"github.com/bioglaze/aether3d-sub000/common"
	"github.com/bioglaze/aether3d-sub000/engine/renderer"
)

// Report is one interval's summary, logged by Tick and kept for Last.
type Report struct {
	FPS          float64
	FrameTime    time.Duration
	HeapMB       float64
	AllocRateMB  float64
	GCCount      uint32
	LastPauseUs  uint64
	MaxPauseUs   uint64
	SysMB        float64
	MaxDraws     int
	MaxBarriers  int
	MaxRingSlots int
	// Stats is the renderer snapshot of the tick that closed the interval.
	Stats renderer.Stats
}

// Profiler tracks frame rate, memory and renderer statistics for performance monitoring.
// Outputs a report to the engine logger at a configurable interval.
type Profiler struct {
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	maxDraws     int
	maxBarriers  int
	maxRingSlots int

	last Report
}

// ProfilerOption is a functional option for configuring a Profiler.
type ProfilerOption func(*Profiler)

// WithInterval sets how often Tick logs a report. Values <= 0 log on every tick.
//
// Parameters:
//   - interval: the reporting interval
//
// Returns:
//   - ProfilerOption: option function to apply
func WithInterval(interval time.Duration) ProfilerOption {
	return func(p *Profiler) {
		p.updateInterval = max(interval, 0)
	}
}

// NewProfiler creates a new Profiler. The update interval defaults to 1 second.
//
// Parameters:
//   - options: functional options
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerOption) *Profiler {
	p := &Profiler{
		lastTime:       time.Now(),
		updateInterval: time.Second,
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// Tick should be called once per presented frame with that frame's renderer statistics.
// Per-frame counters are tracked as interval maxima; when the update interval has elapsed a report
// with FPS, heap usage, allocation rate, GC pauses and the renderer counters is logged at info level.
//
// Parameters:
//   - stats: the renderer statistics of the frame just presented
//
// Returns:
//   - bool: true if a report was logged this tick, false otherwise
func (p *Profiler) Tick(stats renderer.Stats) bool {
	p.frameCount++
	p.maxDraws = max(p.maxDraws, stats.Draws)
	p.maxBarriers = max(p.maxBarriers, stats.Barriers)
	p.maxRingSlots = max(p.maxRingSlots, stats.RingSlots)

	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	runtime.ReadMemStats(&p.memStats)
	r := Report{
		HeapMB:       float64(p.memStats.Alloc) / 1024 / 1024,
		SysMB:        float64(p.memStats.Sys) / 1024 / 1024,
		GCCount:      p.memStats.NumGC,
		MaxDraws:     p.maxDraws,
		MaxBarriers:  p.maxBarriers,
		MaxRingSlots: p.maxRingSlots,
		Stats:        stats,
	}
	if seconds := elapsed.Seconds(); seconds > 0 {
		r.FPS = float64(p.frameCount) / seconds
		r.AllocRateMB = float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024 / seconds
	}
	r.FrameTime = elapsed / time.Duration(p.frameCount)

	// PauseNs is a circular buffer of the last 256 GC pauses.
	if gcCount := r.GCCount; gcCount > 0 {
		r.LastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000
		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			r.MaxPauseUs = max(r.MaxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	common.Logger().Info("profiler",
		"fps", r.FPS,
		"frame_time", r.FrameTime,
		"heap_mb", r.HeapMB,
		"alloc_rate_mb", r.AllocRateMB,
		"gc", r.GCCount,
		"gc_last_us", r.LastPauseUs,
		"gc_max_us", r.MaxPauseUs,
		"sys_mb", r.SysMB,
		"draws", r.MaxDraws,
		"barriers", r.MaxBarriers,
		"ring_slots", r.MaxRingSlots,
		"pipelines", stats.Pipelines,
		"pipeline_builds", stats.PipelineBuilds,
		"point_lights", stats.PointLights,
		"spot_lights", stats.SpotLights,
		"dropped_lights", stats.DroppedLights,
		"light_assignments", stats.LightAssignments,
		"gpu_culling", stats.CulledOnGPU,
		"fence", stats.FenceValue,
	)

	p.frameCount = 0
	p.lastTime = currentTime
	p.lastGCCount = r.GCCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	p.maxDraws, p.maxBarriers, p.maxRingSlots = 0, 0, 0
	p.last = r
	return true
}

// Last returns the most recent report, the zero Report before the first one.
func (p *Profiler) Last() Report {
	return p.last
}
