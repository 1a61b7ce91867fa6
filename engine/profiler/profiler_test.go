package profiler

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfilerTickAggregatesObservations(t *testing.T) {
	var buf bytes.Buffer
	p := NewProfiler(slog.New(slog.NewTextHandler(&buf, nil)))
	p.SetInterval(time.Millisecond)
	p.lastTime = time.Now().Add(-time.Second)

	p.ObserveCompile("PS_Main", 3*time.Millisecond, nil)
	p.ObserveCompile("VS_Main", 9*time.Millisecond, errors.New("diagnostic"))
	p.ObserveBuild("PSO_Main", 2*time.Millisecond, nil)

	s := p.Tick()
	require.NotNil(t, s)
	assert.Equal(t, 2, s.Compiles)
	assert.Equal(t, 1, s.CompileFailures)
	assert.Equal(t, 6*time.Millisecond, s.AvgCompile)
	assert.Equal(t, "VS_Main", s.SlowestShader)
	assert.Equal(t, 1, s.Builds)
	assert.Equal(t, "PSO_Main", s.SlowestPipeline)
	assert.Greater(t, s.TicksPerSecond, 0.0)
	assert.Contains(t, buf.String(), "slowest_shader=VS_Main")

	buf.Reset()
	p.lastTime = time.Now().Add(-time.Second)
	s = p.Tick()
	require.NotNil(t, s)
	assert.Zero(t, s.Compiles, "counters reset every interval")
	assert.NotContains(t, buf.String(), "compiles=")
}

func TestProfilerTickWaitsForInterval(t *testing.T) {
	p := NewProfiler(nil)
	p.SetInterval(time.Hour)
	assert.Nil(t, p.Tick())
	assert.Nil(t, p.Tick())
	assert.Equal(t, 2, p.tickCount)
}
