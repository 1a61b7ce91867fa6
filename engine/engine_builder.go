package engine

import (
	"log/slog"
	"time"

	"github.com/Carmen-Shannon/adria-go/engine/config"
	"github.com/Carmen-Shannon/adria-go/engine/renderer/device"
	"github.com/Carmen-Shannon/adria-go/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/adria-go/engine/renderer/shader"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithConfig sets the engine configuration. The tick rate and profiling settings of cfg are
// applied too; later WithTickRate or WithProfiling options override them.
//
// Parameters:
//   - cfg: the configuration, usually from config.Load
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithConfig(cfg config.Config) EngineBuilderOption {
	return func(e *engine) {
		e.cfg = cfg
		e.profilingEnabled = cfg.Profiling
		WithTickRate(cfg.TickRate)(e)
	}
}

// WithLogger sets the structured logger shared by every engine subsystem.
func WithLogger(l *slog.Logger) EngineBuilderOption {
	return func(e *engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithShaderTable sets the shader identity table instead of loading the configured manifest.
func WithShaderTable(t *shader.Table) EngineBuilderOption {
	return func(e *engine) {
		e.table = t
	}
}

// WithCompiler sets the compiler backend instead of the configured one.
func WithCompiler(c shader.Compiler) EngineBuilderOption {
	return func(e *engine) {
		e.compiler = c
	}
}

// WithDevice sets the device pipelines and textures are created on.
//
// Parameters:
//   - d: a device owned by the caller
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithDevice(d device.Device) EngineBuilderOption {
	return func(e *engine) {
		e.device = d
	}
}

// WithPipeline registers a pipeline during engine construction.
// Pipelines are built in registration order during Init, after those of the pipeline manifest.
//
// Parameters:
//   - id: the unique pipeline id
//   - desc: the pipeline descriptor
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithPipeline(id string, desc pipeline.Descriptor) EngineBuilderOption {
	return func(e *engine) {
		e.pipelines = append(e.pipelines, pipeline.Entry{ID: id, Descriptor: desc})
	}
}

// WithAsyncRecompile queues recompiles caused by file changes on the worker pool instead of
// compiling them inline. Results are applied by the next tick.
func WithAsyncRecompile(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.asyncReload = enabled
	}
}

// WithProfiling enables or disables performance profiling output.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithTickRate sets the engine tick rate in ticks per second.
// Values <= 0 will be treated as the default (60Hz).
//
// Parameters:
//   - fps: target ticks per second (default 60)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			fps = 60.0
		}
		e.engineTickRate = time.Duration(float64(time.Second) / fps)
	}
}
