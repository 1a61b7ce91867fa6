// Package config loads the engine's shader pipeline settings from TOML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Carmen-Shannon/adria-go/engine/renderer/shader"
	"github.com/mattn/go-shellwords"
	"github.com/pelletier/go-toml/v2"
)

// Compiler backends.
const (
	BackendDXC         = "dxc"
	BackendNaga        = "naga"
	BackendPrecompiled = "precompiled"
)

// Devices the CLI and engine can create without a window.
const (
	DeviceNull = "null"
	DeviceNoop = "noop"
)

// Duration is a time.Duration written as a Go duration string, e.g. "250ms".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config is the top-level configuration.
type Config struct {
	// ShaderRoot is the directory identity sources are relative to.
	ShaderRoot  string   `toml:"shader_root"`
	IncludeDirs []string `toml:"include_dirs"`

	// CompiledDir holds <id>.cso blobs for the precompiled backend.
	CompiledDir string `toml:"compiled_dir"`

	// Manifest is the shader identity manifest. Pipelines is the optional PSO manifest.
	Manifest  string `toml:"manifest"`
	Pipelines string `toml:"pipelines"`

	Compiler Compiler `toml:"compiler"`
	Watch    Watch    `toml:"watch"`
	Textures Textures `toml:"textures"`

	Device    string  `toml:"device"`
	Workers   int     `toml:"workers"`
	TickRate  float64 `toml:"tick_rate"`
	Profiling bool    `toml:"profiling"`
}

// Compiler selects and configures the shader compiler backend.
type Compiler struct {
	Backend             string `toml:"backend"`
	DXCPath             string `toml:"dxc_path"`
	ExtraArgs           string `toml:"extra_args"`
	Debug               bool   `toml:"debug"`
	DisableOptimization bool   `toml:"disable_optimization"`

	// RootSignatureConsistency requires every stage of a pipeline to embed the same root signature.
	RootSignatureConsistency bool `toml:"root_signature_consistency"`
}

// Watch configures hot reload.
type Watch struct {
	Enabled      bool     `toml:"enabled"`
	Recursive    bool     `toml:"recursive"`
	Notify       bool     `toml:"notify"`
	PollInterval Duration `toml:"poll_interval"`
}

// Textures configures texture loading.
type Textures struct {
	MaxSize int `toml:"max_size"`
}

// Default returns the default configuration.
//
// Returns:
//   - Config: a fresh default configuration
func Default() Config {
	return Config{
		ShaderRoot: "shaders",
		Compiler: Compiler{
			Backend: BackendDXC,
			DXCPath: "dxc",
		},
		Watch: Watch{
			Enabled:      true,
			Recursive:    true,
			PollInterval: Duration(250 * time.Millisecond),
		},
		Device:   DeviceNull,
		TickRate: 60,
	}
}

// Parse decodes data over the defaults and validates the result. Unknown keys are rejected.
//
// Parameters:
//   - data: the TOML contents
//
// Returns:
//   - Config: the decoded configuration
//   - error: a decode or validation error
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, fmt.Errorf("config: %s", strict.String())
		}
		return Config{}, fmt.Errorf("config: failed to decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads path and decodes it over the defaults. Relative paths in the file are resolved
// against the file's directory.
//
// Parameters:
//   - path: the configuration file
//
// Returns:
//   - Config: the decoded configuration
//   - error: a read, decode or validation error
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: failed to read %q: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	cfg.resolve(filepath.Dir(path))
	return cfg, nil
}

func (c *Config) resolve(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.ShaderRoot = abs(c.ShaderRoot)
	c.CompiledDir = abs(c.CompiledDir)
	c.Manifest = abs(c.Manifest)
	c.Pipelines = abs(c.Pipelines)
	for i, dir := range c.IncludeDirs {
		c.IncludeDirs[i] = abs(dir)
	}
}

// Validate checks the configuration for values the engine cannot use.
func (c Config) Validate() error {
	var errs []error
	if c.ShaderRoot == "" {
		errs = append(errs, errors.New("shader_root must be set"))
	}
	switch c.Compiler.Backend {
	case BackendDXC:
		if c.Compiler.DXCPath == "" {
			errs = append(errs, errors.New("compiler.dxc_path must be set for the dxc backend"))
		}
	case BackendNaga:
	case BackendPrecompiled:
		if c.CompiledDir == "" {
			errs = append(errs, errors.New("compiled_dir must be set for the precompiled backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown compiler.backend %q", c.Compiler.Backend))
	}
	if _, err := c.CompileFlags(); err != nil {
		errs = append(errs, err)
	}
	switch c.Device {
	case DeviceNull, DeviceNoop:
	default:
		errs = append(errs, fmt.Errorf("unknown device %q", c.Device))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if c.TickRate <= 0 {
		errs = append(errs, fmt.Errorf("tick_rate must be positive, got %g", c.TickRate))
	}
	if c.Watch.PollInterval < 0 {
		errs = append(errs, errors.New("watch.poll_interval must not be negative"))
	}
	if c.Textures.MaxSize < 0 {
		errs = append(errs, errors.New("textures.max_size must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// CompileFlags returns the shader compile flags, with extra_args split using shell quoting rules.
//
// Returns:
//   - shader.CompileFlags: the flags
//   - error: an error if extra_args cannot be split
func (c Config) CompileFlags() (shader.CompileFlags, error) {
	args, err := shellwords.Parse(c.Compiler.ExtraArgs)
	if err != nil {
		return shader.CompileFlags{}, fmt.Errorf("compiler.extra_args %q: %w", c.Compiler.ExtraArgs, err)
	}
	return shader.CompileFlags{
		Debug:               c.Compiler.Debug,
		DisableOptimization: c.Compiler.DisableOptimization,
		ExtraArgs:           args,
	}, nil
}

// NewCompiler creates the configured compiler backend.
//
// Returns:
//   - shader.Compiler: the compiler
//   - error: an error if the backend cannot be created
func (c Config) NewCompiler() (shader.Compiler, error) {
	switch c.Compiler.Backend {
	case BackendDXC:
		return shader.NewDXCCompiler(shader.WithDXCPath(c.Compiler.DXCPath))
	case BackendNaga:
		return shader.NewNagaCompiler(), nil
	case BackendPrecompiled:
		return shader.NewPrecompiledCompiler(c.CompiledDir), nil
	}
	return nil, fmt.Errorf("config: unknown compiler backend %q", c.Compiler.Backend)
}

// PollInterval returns the watcher poll interval.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Watch.PollInterval)
}
