package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Carmen-Shannon/adria-go/common"
	"github.com/Carmen-Shannon/adria-go/engine/config"
	"github.com/Carmen-Shannon/adria-go/engine/profiler"
	"github.com/Carmen-Shannon/adria-go/engine/renderer/device"
	"github.com/Carmen-Shannon/adria-go/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/adria-go/engine/renderer/shader"
	"github.com/Carmen-Shannon/adria-go/engine/renderer/texture"
	"github.com/Carmen-Shannon/adria-go/engine/watcher"
	"github.com/gogpu/wgpu/hal/noop"
)

// engine implements the Engine interface.
// Owns the shader cache, the pipeline manager, the texture manager and the file watcher, and
// runs the hot-reload tick.
type engine struct {
	cfg    config.Config
	logger *slog.Logger

	table     *shader.Table
	compiler  shader.Compiler
	device    device.Device
	pipelines []pipeline.Entry

	cache    shader.Cache
	manager  pipeline.Manager
	textures texture.Manager
	watcher  watcher.Watcher

	// ctx is handed to compiles started from watcher events; Quit cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	initialized  bool
	asyncReload  bool
	lastPoll     time.Time
	fileModified common.SubscriptionID

	tickRateChannel chan time.Duration
	quitChannel     chan struct{}
	quitOnce        sync.Once
	running         bool

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
}

// Engine owns the shader and pipeline build pipeline and keeps it in sync with the files on disk.
type Engine interface {
	// Init compiles every shader, builds every pipeline and starts watching the shader root.
	// A failed initial pipeline build is returned with the pipeline id, shader id and diagnostic.
	//
	// Parameters:
	//   - ctx: cancels shader compiles during Init
	//
	// Returns:
	//   - error: error if initialization fails
	Init(ctx context.Context) error

	// RegisterPipeline adds a pipeline before Init.
	//
	// Parameters:
	//   - id: the unique pipeline id
	//   - desc: the pipeline descriptor
	//
	// Returns:
	//   - error: an error if the engine is initialized or the id is taken
	RegisterPipeline(id string, desc pipeline.Descriptor) error

	// CompileAllShaders recompiles every shader. Pipelines depending on a shader that compiled
	// are rebuilt.
	//
	// Returns:
	//   - error: an aggregate of the failed compiles
	CompileAllShaders(ctx context.Context) error

	// RecompileShader recompiles one shader and rebuilds the pipelines that use it.
	RecompileShader(ctx context.Context, id string) error

	// CheckIfShadersHaveChanged polls the watched files and recompiles every shader that
	// depends on a changed file. In async mode the recompiles are queued and applied by a
	// later tick.
	//
	// Returns:
	//   - []string: the changed files
	CheckIfShadersHaveChanged() []string

	// Tick runs one hot-reload step: poll when the poll interval has elapsed, apply finished
	// async compiles, then run the tick callback.
	//
	// Parameters:
	//   - dt: seconds since the previous tick
	Tick(dt float32)

	// GetShader returns the live bytecode of a compiled shader. It panics if id never compiled.
	GetShader(id string) shader.CompiledShader

	// GetPipelineState returns the live pipeline, or nil.
	GetPipelineState(id string) *device.PipelineState

	// GetRootSignature returns the live root signature for a pipeline or root signature id, or nil.
	GetRootSignature(id string) *device.RootSignature

	// LoadTexture loads an image file once and returns its handle.
	LoadTexture(path string) (texture.Handle, error)

	// Shaders returns the shader cache. Nil before Init.
	Shaders() shader.Cache

	// Pipelines returns the pipeline manager. Nil before Init.
	Pipelines() pipeline.Manager

	// Textures returns the texture manager. Nil before Init.
	Textures() texture.Manager

	// Device returns the device objects are created on.
	Device() device.Device

	// EnableProfiler enables periodic build statistics in the log.
	EnableProfiler()

	// DisableProfiler disables periodic build statistics.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in ticks per second.
	//
	// Parameters:
	//   - fps: target ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers a function called after every hot-reload step.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// Run runs the tick loop on the calling goroutine until Quit.
	Run()

	// Quit stops Run and cancels running compiles. Safe to call multiple times.
	Quit()

	// Destroy releases every device object and stops the watcher and the worker pool.
	Destroy()
}

// NewEngine creates a new Engine instance with the provided options.
// Options are applied directly to the engine struct via the option-builder pattern.
//
// Parameters:
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &engine{
		cfg:             config.Default(),
		logger:          slog.Default(),
		ctx:             ctx,
		cancel:          cancel,
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		engineTickRate:  time.Second / 60,
	}

	for _, opt := range options {
		opt(e)
	}

	e.profiler = profiler.NewProfiler(e.logger)
	return e
}

func (e *engine) Init(ctx context.Context) error {
	if e.initialized {
		return errors.New("engine: already initialized")
	}
	if err := e.resolveCollaborators(); err != nil {
		return err
	}

	flags, err := e.cfg.CompileFlags()
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	e.cache = shader.NewCache(e.table, e.compiler,
		shader.WithLogger(e.logger),
		shader.WithWorkers(e.cfg.Workers),
		shader.WithShaderRoot(e.cfg.ShaderRoot),
		shader.WithIncludeDirs(e.cfg.IncludeDirs...),
		shader.WithFlags(flags),
		shader.WithCompileObserver(e.profiler.ObserveCompile),
	)
	e.manager = pipeline.NewManager(e.cache, e.device,
		pipeline.WithLogger(e.logger),
		pipeline.WithBuildObserver(e.profiler.ObserveBuild),
		pipeline.WithBuilderOptions(pipeline.WithRootSignatureConsistencyCheck(e.cfg.Compiler.RootSignatureConsistency)),
	)
	e.textures = texture.NewManager(e.device, texture.WithLogger(e.logger), texture.WithMaxSize(e.cfg.Textures.MaxSize))

	for _, p := range e.pipelines {
		if err := e.manager.Register(p.ID, p.Descriptor); err != nil {
			e.teardown()
			return fmt.Errorf("engine: %w", err)
		}
	}
	if err := e.manager.Initialize(ctx); err != nil {
		e.teardown()
		return fmt.Errorf("engine: %w", err)
	}

	if e.cfg.Watch.Enabled {
		if err := e.startWatching(); err != nil {
			e.teardown()
			return err
		}
	}
	e.initialized = true
	return nil
}

// resolveCollaborators fills in the table, compiler, device and pipelines not injected
// through options from the configuration.
func (e *engine) resolveCollaborators() error {
	var err error
	if e.table == nil {
		if e.cfg.Manifest == "" {
			return errors.New("engine: no shader table and no manifest configured")
		}
		if e.table, err = shader.LoadManifest(e.cfg.Manifest); err != nil {
			return fmt.Errorf("engine: %w", err)
		}
	}
	if e.compiler == nil {
		if e.compiler, err = e.cfg.NewCompiler(); err != nil {
			return fmt.Errorf("engine: %w", err)
		}
	}
	if e.device == nil {
		switch e.cfg.Device {
		case config.DeviceNoop:
			e.device = device.NewHALDevice(&noop.Device{}, &noop.Queue{}, device.WithLogger(e.logger))
		default:
			e.device = device.NewNullDevice(device.WithLogger(e.logger))
		}
	}
	if e.cfg.Pipelines != "" {
		entries, err := pipeline.LoadManifest(e.cfg.Pipelines)
		if err != nil {
			return fmt.Errorf("engine: %w", err)
		}
		e.pipelines = append(e.pipelines, entries...)
	}
	return nil
}

func (e *engine) startWatching() error {
	w, err := watcher.NewWatcher(watcher.WithLogger(e.logger), watcher.WithNotify(e.cfg.Watch.Notify))
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	roots := append([]string{e.cfg.ShaderRoot}, e.cfg.IncludeDirs...)
	for _, root := range roots {
		if err := w.AddPathToWatch(root, e.cfg.Watch.Recursive); err != nil {
			w.Close()
			return fmt.Errorf("engine: failed to watch %s: %w", root, err)
		}
	}
	e.fileModified = w.FileModified().Subscribe(e.onFileModified)
	e.watcher = w
	e.lastPoll = time.Now()
	e.logger.Info("watching shader sources", "roots", roots, "files", len(w.WatchedFiles()))
	return nil
}

func (e *engine) onFileModified(path string) {
	if !e.asyncReload {
		e.cache.OnFileChanged(e.ctx, path)
		return
	}
	for _, id := range e.cache.Dependents(path) {
		if err := e.cache.SubmitRecompile(e.ctx, id); err != nil {
			e.logger.Error("failed to queue shader recompile", "shader", id, "error", err)
		}
	}
}

// teardown releases whatever Init created before it failed.
func (e *engine) teardown() {
	if e.watcher != nil {
		e.watcher.FileModified().Unsubscribe(e.fileModified)
		if err := e.watcher.Close(); err != nil {
			e.logger.Error("failed to close watcher", "error", err)
		}
		e.watcher = nil
	}
	if e.textures != nil {
		e.textures.Destroy()
		e.textures = nil
	}
	if e.manager != nil {
		e.manager.Destroy()
		e.manager = nil
	}
	if e.cache != nil {
		e.cache.Destroy()
		e.cache = nil
	}
}

func (e *engine) RegisterPipeline(id string, desc pipeline.Descriptor) error {
	if e.initialized {
		return fmt.Errorf("engine: cannot register pipeline %s after Init", id)
	}
	for _, p := range e.pipelines {
		if p.ID == id {
			return fmt.Errorf("engine: duplicate pipeline id %q", id)
		}
	}
	e.pipelines = append(e.pipelines, pipeline.Entry{ID: id, Descriptor: desc})
	return nil
}

func (e *engine) CompileAllShaders(ctx context.Context) error {
	if e.cache == nil {
		return errors.New("engine: not initialized")
	}
	return e.cache.CompileAll(ctx)
}

func (e *engine) RecompileShader(ctx context.Context, id string) error {
	if e.cache == nil {
		return errors.New("engine: not initialized")
	}
	return e.cache.RecompileShader(ctx, id)
}

func (e *engine) CheckIfShadersHaveChanged() []string {
	if e.watcher == nil {
		return nil
	}
	e.lastPoll = time.Now()
	return e.watcher.CheckWatchedFiles()
}

func (e *engine) Tick(dt float32) {
	if e.watcher != nil && time.Since(e.lastPoll) >= e.cfg.PollInterval() {
		e.CheckIfShadersHaveChanged()
	}
	if e.cache != nil {
		e.cache.DrainCompleted()
	}
	if e.tickCallback != nil {
		e.tickCallback(dt)
	}
	if e.profilingEnabled {
		e.profiler.Tick()
	}
}

func (e *engine) GetShader(id string) shader.CompiledShader {
	return e.cache.GetShader(id)
}

func (e *engine) GetPipelineState(id string) *device.PipelineState {
	if e.manager == nil {
		return nil
	}
	return e.manager.Get(id)
}

func (e *engine) GetRootSignature(id string) *device.RootSignature {
	if e.manager == nil {
		return nil
	}
	return e.manager.RootSignature(id)
}

func (e *engine) LoadTexture(path string) (texture.Handle, error) {
	if e.textures == nil {
		return texture.InvalidHandle, errors.New("engine: not initialized")
	}
	return e.textures.LoadTexture(path)
}

func (e *engine) Shaders() shader.Cache {
	return e.cache
}

func (e *engine) Pipelines() pipeline.Manager {
	return e.manager
}

func (e *engine) Textures() texture.Manager {
	return e.textures
}

func (e *engine) Device() device.Device {
	return e.device
}

// EnableProfiler enables periodic build statistics in the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

// DisableProfiler disables periodic build statistics.
func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

// SetTickRate sets the engine tick rate in ticks per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if !e.running {
		e.engineTickRate = newRate
		return
	}
	// Non-blocking send; a pending update is replaced.
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

// SetTickCallback registers the function called each engine tick.
func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

// Run runs the fixed-rate tick loop until Quit. Every tick polls the watcher, applies
// finished compiles and fires the tick callback, so all map mutation stays on this goroutine.
func (e *engine) Run() {
	e.running = true
	defer func() { e.running = false }()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()
	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now
			e.Tick(dt)
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// Quit signals Run to return. Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.quitOnce.Do(func() {
		e.cancel()
		close(e.quitChannel)
	})
}

func (e *engine) Destroy() {
	e.Quit()
	e.teardown()
	e.initialized = false
	if e.device != nil && e.device.LiveObjects() > 0 {
		e.logger.Warn("device objects still live after destroy", "count", e.device.LiveObjects())
	}
}
