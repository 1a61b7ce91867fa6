// Command adria-shaders compiles every shader of a project, builds every pipeline and
// optionally keeps rebuilding them as the sources change.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Carmen-Shannon/adria-go/engine"
	"github.com/Carmen-Shannon/adria-go/engine/config"
	"github.com/spf13/cobra"
)

type options struct {
	configPath string
	shaders    string
	psos       string
	shaderRoot string
	device     string
	watch      bool
	watchSet   bool
	verbose    bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "adria-shaders",
		Short:         "Compile shaders and build pipeline state objects",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger(opts.verbose)
			opts.watchSet = cmd.Flags().Changed("watch")
			if err := run(cmd.Context(), opts, logger); err != nil {
				logger.Error("build failed", "error", err)
				return err
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "project configuration file (TOML)")
	f.StringVar(&opts.shaders, "shaders", "", "shader manifest, overrides the configured one")
	f.StringVar(&opts.psos, "psos", "", "pipeline manifest, overrides the configured one")
	f.StringVar(&opts.shaderRoot, "root", "", "shader root, overrides the configured one")
	f.StringVar(&opts.device, "device", "", "device backend: null or noop")
	f.BoolVarP(&opts.watch, "watch", "w", false, "keep running and rebuild on source changes, overrides watch.enabled")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output")
	return cmd
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads the configuration file if one is given and applies the flag overrides.
// Override paths are relative to the working directory. Without a configuration file the
// command does not watch unless --watch is passed.
func loadConfig(opts *options) (config.Config, error) {
	cfg := config.Default()
	cfg.Watch.Enabled = false
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return config.Config{}, err
		}
	}
	abs := func(p string) string {
		if a, err := filepath.Abs(p); err == nil {
			return a
		}
		return p
	}
	if opts.shaders != "" {
		cfg.Manifest = abs(opts.shaders)
	}
	if opts.psos != "" {
		cfg.Pipelines = abs(opts.psos)
	}
	if opts.shaderRoot != "" {
		cfg.ShaderRoot = abs(opts.shaderRoot)
	}
	if opts.device != "" {
		cfg.Device = opts.device
	}
	if opts.watchSet {
		cfg.Watch.Enabled = opts.watch
	}
	if cfg.Manifest == "" {
		return config.Config{}, errors.New("no shader manifest: pass --shaders or set manifest in the config")
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, opts *options, logger *slog.Logger) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	eng := engine.NewEngine(engine.WithConfig(cfg), engine.WithLogger(logger))
	defer eng.Destroy()

	if err := eng.Init(ctx); err != nil {
		return err
	}
	stats := eng.Pipelines().Stats()
	logger.Info("build complete", "shaders", eng.Shaders().Table().Len(), "pipelines", stats.Live)

	if !cfg.Watch.Enabled {
		return nil
	}

	eng.Pipelines().PipelineRebuilt().Subscribe(func(id string) {
		logger.Info("pipeline rebuilt", "pipeline", id)
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		<-sig
		eng.Quit()
	}()

	logger.Info(fmt.Sprintf("watching %s, press Ctrl+C to stop", cfg.ShaderRoot))
	eng.Run()
	return nil
}
