package profiler

import (
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// Profiler tracks tick rate, shader compile and pipeline build statistics, and memory usage.
// Outputs stats to the log at a configurable interval.
type Profiler struct {
	logger         *slog.Logger
	updateInterval time.Duration

	tickCount      int
	lastTime       time.Time
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	mu       sync.Mutex
	compiles buildStats
	builds   buildStats
}

// buildStats accumulates attempts over one update interval.
type buildStats struct {
	count   int
	failed  int
	elapsed time.Duration
	slowest time.Duration
	slowID  string
}

func (s *buildStats) observe(id string, elapsed time.Duration, err error) {
	s.count++
	if err != nil {
		s.failed++
	}
	s.elapsed += elapsed
	if elapsed > s.slowest {
		s.slowest = elapsed
		s.slowID = id
	}
}

func (s buildStats) average() time.Duration {
	if s.count == 0 {
		return 0
	}
	return s.elapsed / time.Duration(s.count)
}

// Snapshot is the statistics of one update interval.
type Snapshot struct {
	TicksPerSecond  float64
	Compiles        int
	CompileFailures int
	AvgCompile      time.Duration
	SlowestShader   string
	Builds          int
	BuildFailures   int
	AvgBuild        time.Duration
	SlowestPipeline string
	HeapMB          float64
	AllocRateMB     float64
	GCCount         uint32
	MaxPauseUs      uint64
}

// NewProfiler creates a new Profiler with default settings.
// Update interval defaults to 1 second.
//
// Parameters:
//   - logger: the structured logger, nil for slog.Default()
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(logger *slog.Logger) *Profiler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Profiler{
		logger:         logger,
		updateInterval: time.Second,
		lastTime:       time.Now(),
	}
}

// SetInterval changes how often Tick logs. Values <= 0 are ignored.
func (p *Profiler) SetInterval(d time.Duration) {
	if d > 0 {
		p.updateInterval = d
	}
}

// ObserveCompile records one shader compile. Its signature matches shader.CompileObserver.
func (p *Profiler) ObserveCompile(id string, elapsed time.Duration, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.compiles.observe(id, elapsed, err)
}

// ObserveBuild records one pipeline build. Its signature matches pipeline.BuildObserver.
func (p *Profiler) ObserveBuild(id string, elapsed time.Duration, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.builds.observe(id, elapsed, err)
}

// Tick should be called once per engine tick.
// Logs statistics when the update interval has elapsed: tick rate, compile and build counts
// and timings, heap usage, allocation rate and GC pauses.
//
// Returns:
//   - *Snapshot: the logged statistics, or nil if the interval has not elapsed
func (p *Profiler) Tick() *Snapshot {
	p.tickCount++
	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return nil
	}

	runtime.ReadMemStats(&p.memStats)
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc

	// PauseNs is a circular buffer of the last 256 GC pauses.
	gcCount := p.memStats.NumGC
	var maxPauseUs uint64
	startIdx := p.lastGCCount
	if gcCount-startIdx > 256 {
		startIdx = gcCount - 256
	}
	for i := startIdx; i < gcCount; i++ {
		maxPauseUs = max(maxPauseUs, p.memStats.PauseNs[i%256]/1000)
	}

	p.mu.Lock()
	compiles, builds := p.compiles, p.builds
	p.compiles, p.builds = buildStats{}, buildStats{}
	p.mu.Unlock()

	s := &Snapshot{
		TicksPerSecond:  float64(p.tickCount) / elapsed.Seconds(),
		Compiles:        compiles.count,
		CompileFailures: compiles.failed,
		AvgCompile:      compiles.average(),
		SlowestShader:   compiles.slowID,
		Builds:          builds.count,
		BuildFailures:   builds.failed,
		AvgBuild:        builds.average(),
		SlowestPipeline: builds.slowID,
		HeapMB:          float64(p.memStats.Alloc) / 1024 / 1024,
		AllocRateMB:     float64(allocDelta) / 1024 / 1024 / elapsed.Seconds(),
		GCCount:         gcCount,
		MaxPauseUs:      maxPauseUs,
	}

	attrs := []any{
		"tps", s.TicksPerSecond,
		"heap_mb", s.HeapMB,
		"alloc_rate_mb", s.AllocRateMB,
		"gc", s.GCCount,
		"max_pause_us", s.MaxPauseUs,
	}
	if s.Compiles > 0 {
		attrs = append(attrs, "compiles", s.Compiles, "compile_failures", s.CompileFailures,
			"avg_compile", s.AvgCompile, "slowest_shader", s.SlowestShader)
	}
	if s.Builds > 0 {
		attrs = append(attrs, "builds", s.Builds, "build_failures", s.BuildFailures,
			"avg_build", s.AvgBuild, "slowest_pipeline", s.SlowestPipeline)
	}
	p.logger.Info("profiler", attrs...)

	p.tickCount = 0
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return s
}
