package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Carmen-Shannon/adria-go/common"
	"github.com/Carmen-Shannon/adria-go/engine/renderer/device"
	"github.com/Carmen-Shannon/adria-go/engine/renderer/shader"
)

// State is the build state of one pipeline id.
type State int

const (
	// StateUnbuilt means the pipeline has no live object.
	StateUnbuilt State = iota

	// StateBuilt means the live object reflects the last successful build.
	StateBuilt

	// StateRebuilding means a rebuild is in progress. The previous object stays live.
	StateRebuilding
)

func (s State) String() string {
	switch s {
	case StateUnbuilt:
		return "unbuilt"
	case StateBuilt:
		return "built"
	case StateRebuilding:
		return "rebuilding"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ShaderCache is the part of shader.Cache the Manager depends on.
type ShaderCache interface {
	ShaderSource
	CompileAll(ctx context.Context) error
	ShaderRecompiled() *common.Event[string]
}

// Stats counts pipeline builds since the manager was created.
type Stats struct {
	Registered     int
	Live           int
	Builds         int
	Rebuilds       int
	FailedRebuilds int
}

// Manager owns every pipeline and root signature, keyed by pipeline id. Lookups are safe
// from any goroutine; rebuilds run on the goroutine that broadcasts ShaderRecompiled.
type Manager interface {
	// Register stores a descriptor. Pipelines are built in registration order.
	//
	// Parameters:
	//   - id: the unique pipeline id
	//   - desc: the descriptor, copied
	//
	// Returns:
	//   - error: an error if id is empty or taken, desc is invalid, or the manager is initialized
	Register(id string, desc Descriptor) error

	// Initialize compiles every shader, builds every registered pipeline and subscribes to
	// shader recompiles. Any build failure is fatal: objects built so far are released and
	// the error names the pipeline, the shader and the diagnostic.
	//
	// Parameters:
	//   - ctx: passed to the shader compile
	//
	// Returns:
	//   - error: nil, or a *BuildError wrapped with the pipeline id
	Initialize(ctx context.Context) error

	// Get returns the live pipeline, or nil if id is not built.
	Get(id string) *device.PipelineState

	// MustGet returns the live pipeline and panics if there is none.
	MustGet(id string) *device.PipelineState

	// RootSignature returns the live root signature for a pipeline id or a root signature id.
	// A root signature id shared by several pipelines resolves to the first one registered.
	RootSignature(id string) *device.RootSignature

	// State returns the build state of id. Unknown ids report StateUnbuilt.
	State(id string) State

	// Descriptor returns a copy of the stored descriptor.
	Descriptor(id string) (Descriptor, bool)

	// Dependencies returns the dependency record of id.
	Dependencies(id string) (DependencyRecord, bool)

	// Rebuild rebuilds every built pipeline whose record contains shaderID, in registration
	// order. A failed rebuild is logged and counted, and the previous object stays live.
	//
	// Parameters:
	//   - shaderID: the recompiled shader
	//
	// Returns:
	//   - []string: the pipeline ids that were rebuilt successfully
	Rebuild(shaderID string) []string

	// IDs returns the registered pipeline ids in registration order.
	IDs() []string

	// Stats returns the build counters.
	Stats() Stats

	// PipelineRebuilt fires with the pipeline id after each successful rebuild.
	PipelineRebuilt() *common.Event[string]

	// Destroy unsubscribes from the cache and releases every device object.
	Destroy()
}

// BuildObserver is notified after every pipeline build attempt.
type BuildObserver func(id string, elapsed time.Duration, err error)

type manager struct {
	cache       ShaderCache
	device      device.Device
	builder     Builder
	logger      *slog.Logger
	observers   []BuildObserver
	builderOpts []BuilderOption

	mu          sync.RWMutex
	order       []string
	descs       map[string]Descriptor
	live        map[string]*device.PipelineState
	states      map[string]State
	stats       Stats
	initialized bool
	sub         common.SubscriptionID

	pipelineRebuilt common.Event[string]
}

var _ Manager = &manager{}

// NewManager creates a Manager that builds pipelines on dev from the bytecode in cache.
//
// Parameters:
//   - cache: the shader cache
//   - dev: the device
//   - opts: optional configuration
//
// Returns:
//   - Manager: the pipeline manager
func NewManager(cache ShaderCache, dev device.Device, opts ...ManagerBuilderOption) Manager {
	m := &manager{
		cache:  cache,
		device: dev,
		logger: slog.Default(),
		descs:  make(map[string]Descriptor),
		live:   make(map[string]*device.PipelineState),
		states: make(map[string]State),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.builder = NewBuilder(dev, cache, append([]BuilderOption{WithBuilderLogger(m.logger)}, m.builderOpts...)...)
	return m
}

func (m *manager) Register(id string, desc Descriptor) error {
	if id == "" {
		return errors.New("pipeline: empty pipeline id")
	}
	if err := desc.Validate(); err != nil {
		return fmt.Errorf("pipeline: %s: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		return fmt.Errorf("pipeline: cannot register %s after Initialize", id)
	}
	if _, dup := m.descs[id]; dup {
		return fmt.Errorf("pipeline: duplicate pipeline id %q", id)
	}
	m.descs[id] = desc.clone()
	m.order = append(m.order, id)
	m.states[id] = StateUnbuilt
	m.stats.Registered++
	return nil
}

func (m *manager) Initialize(ctx context.Context) error {
	m.mu.RLock()
	initialized := m.initialized
	order := append([]string(nil), m.order...)
	m.mu.RUnlock()
	if initialized {
		return errors.New("pipeline: manager already initialized")
	}

	compileErr := m.cache.CompileAll(ctx)
	if compileErr != nil {
		m.logger.Error("shader compilation reported failures", "error", compileErr)
	}

	m.logger.Info("Building pipelines...", "pipelines", len(order))
	for _, id := range order {
		pso, err := m.build(id)
		if err != nil {
			attachCompileFailure(err, compileErr)
			m.releaseAll()
			return fmt.Errorf("pipeline: initial build of %s failed: %w", id, err)
		}
		m.mu.Lock()
		m.live[id] = pso
		m.states[id] = StateBuilt
		m.stats.Builds++
		m.mu.Unlock()
	}

	m.mu.Lock()
	m.initialized = true
	m.sub = m.cache.ShaderRecompiled().Subscribe(func(shaderID string) {
		m.Rebuild(shaderID)
	})
	m.mu.Unlock()
	m.logger.Info("pipelines built", "pipelines", len(order), "live_objects", m.device.LiveObjects())
	return nil
}

// attachCompileFailure adds the compile failure of a missing shader to a not-compiled build
// error, so the startup error carries the diagnostic.
func attachCompileFailure(err, compileErr error) {
	var buildErr *BuildError
	if compileErr == nil || !errors.As(err, &buildErr) || !errors.Is(buildErr.Err, ErrShaderNotCompiled) {
		return
	}
	joined, ok := compileErr.(interface{ Unwrap() []error })
	if !ok {
		return
	}
	for _, e := range joined.Unwrap() {
		var failure *shader.CompileFailure
		if errors.As(e, &failure) && failure.ID == buildErr.Shader {
			buildErr.Err = fmt.Errorf("%w: %w", ErrShaderNotCompiled, failure)
			return
		}
	}
}

func (m *manager) build(id string) (*device.PipelineState, error) {
	m.mu.RLock()
	desc := m.descs[id]
	m.mu.RUnlock()

	start := time.Now()
	pso, err := m.builder.BuildPSO(id, desc)
	elapsed := time.Since(start)
	for _, observe := range m.observers {
		observe(id, elapsed, err)
	}
	return pso, err
}

func (m *manager) Get(id string) *device.PipelineState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.live[id]
}

func (m *manager) MustGet(id string) *device.PipelineState {
	pso := m.Get(id)
	if pso == nil {
		panic(fmt.Sprintf("pipeline: %q is not built", id))
	}
	return pso
}

func (m *manager) RootSignature(id string) *device.RootSignature {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if pso, ok := m.live[id]; ok {
		return pso.RootSignature
	}
	for _, psoID := range m.order {
		if m.descs[psoID].RootSignatureID != id {
			continue
		}
		if pso, ok := m.live[psoID]; ok {
			return pso.RootSignature
		}
	}
	return nil
}

func (m *manager) State(id string) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[id]
}

func (m *manager) Descriptor(id string) (Descriptor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	desc, ok := m.descs[id]
	if !ok {
		return Descriptor{}, false
	}
	return desc.clone(), true
}

func (m *manager) Dependencies(id string) (DependencyRecord, bool) {
	return m.builder.Dependencies(id)
}

func (m *manager) Rebuild(shaderID string) []string {
	var targets []string
	m.mu.Lock()
	for _, id := range m.order {
		if m.states[id] != StateBuilt {
			continue
		}
		if rec, ok := m.builder.Dependencies(id); ok && rec.Contains(shaderID) {
			m.states[id] = StateRebuilding
			targets = append(targets, id)
		}
	}
	m.mu.Unlock()

	var rebuilt []string
	for _, id := range targets {
		if m.rebuild(id, shaderID) {
			rebuilt = append(rebuilt, id)
		}
	}
	return rebuilt
}

func (m *manager) rebuild(id, shaderID string) bool {
	pso, err := m.build(id)
	if err != nil {
		m.mu.Lock()
		m.states[id] = StateBuilt
		m.stats.FailedRebuilds++
		m.mu.Unlock()
		m.logger.Error("failed to rebuild pipeline, keeping previous object", "pso", id, "shader", shaderID, "error", err)
		return false
	}

	m.mu.Lock()
	old := m.live[id]
	m.live[id] = pso
	m.states[id] = StateBuilt
	m.stats.Rebuilds++
	m.mu.Unlock()

	m.release(old)
	m.logger.Info("rebuilt pipeline", "pso", id, "shader", shaderID)
	m.pipelineRebuilt.Broadcast(id)
	return true
}

func (m *manager) release(pso *device.PipelineState) {
	if pso == nil {
		return
	}
	rs := pso.RootSignature
	m.device.Release(pso)
	if rs != nil {
		m.device.Release(rs)
	}
}

func (m *manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

func (m *manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.stats
	s.Live = len(m.live)
	return s
}

func (m *manager) PipelineRebuilt() *common.Event[string] {
	return &m.pipelineRebuilt
}

func (m *manager) Destroy() {
	m.mu.Lock()
	if m.initialized {
		m.cache.ShaderRecompiled().Unsubscribe(m.sub)
		m.initialized = false
	}
	m.mu.Unlock()
	m.releaseAll()
}

func (m *manager) releaseAll() {
	m.mu.Lock()
	live := m.live
	m.live = make(map[string]*device.PipelineState)
	for id := range m.states {
		m.states[id] = StateUnbuilt
	}
	order := append([]string(nil), m.order...)
	m.mu.Unlock()

	for _, id := range order {
		m.release(live[id])
	}
}
