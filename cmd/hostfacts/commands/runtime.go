package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openfroyo/hostfacts/pkg/collectors"
	"github.com/openfroyo/hostfacts/pkg/config"
	"github.com/openfroyo/hostfacts/pkg/engine"
	"github.com/openfroyo/hostfacts/pkg/telemetry"
)

// runtime is one engine plus the telemetry it reports through.
type runtime struct {
	sys     *engine.System
	cfg     *config.Config
	tracer  *telemetry.Tracer
	metrics *telemetry.Metrics
	logger  zerolog.Logger
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if len(pluginPaths) > 0 {
		cfg.PluginPath = append([]string(nil), pluginPaths...)
	}
	if len(disabledPlugins) > 0 {
		cfg.DisabledPlugins = append(cfg.DisabledPlugins, disabledPlugins...)
	}
	if len(hintPaths) > 0 {
		cfg.HintPath = append([]string(nil), hintPaths...)
	}
	if pluginLanguage != "" {
		cfg.PluginLanguage = pluginLanguage
	}
	if noBuiltins {
		cfg.BuiltinCollectors = false
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newRuntime() (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := telemetry.NewLogger(cfg.Telemetry.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	metrics, err := telemetry.NewMetrics(cfg.Telemetry.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	tracer, err := telemetry.NewTracer(cfg.Telemetry.Tracing, cfg.Telemetry.ServiceName, cfg.Telemetry.ServiceVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithMetrics(metrics),
		engine.WithTracer(tracer),
	}
	if cfg.BuiltinCollectors {
		opts = append(opts, engine.WithBuiltins(collectors.Plugins("/")...))
	}

	sys, err := engine.NewSystem(cfg, opts...)
	if err != nil {
		return nil, err
	}

	return &runtime{
		sys:     sys,
		cfg:     cfg,
		tracer:  tracer,
		metrics: metrics,
		logger:  telemetry.ComponentLogger(logger, "cli"),
	}, nil
}

// Close flushes pending spans.
func (r *runtime) Close(ctx context.Context) {
	if err := r.tracer.Shutdown(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to shut down tracer")
	}
}

// printAll writes the whole tree to w.
func (r *runtime) printAll(w io.Writer) error {
	out, err := r.sys.SerializeAll(!compactOutput)
	if err != nil {
		return err
	}
	return writeOutput(w, out)
}

// printPaths writes each attribute to w on its own, in argument order.
func (r *runtime) printPaths(w io.Writer, paths []string) error {
	for _, path := range paths {
		out, err := r.sys.SerializeSubtree(path, !compactOutput)
		if err != nil {
			return err
		}
		if err := writeOutput(w, out); err != nil {
			return err
		}
	}
	return nil
}

func writeOutput(w io.Writer, out []byte) error {
	if len(out) == 0 || out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	_, err := w.Write(out)
	return err
}

// withRuntime builds a runtime for cmd and tears it down afterwards.
func withRuntime(cmd *cobra.Command, fn func(ctx context.Context, r *runtime) error) error {
	r, err := newRuntime()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	defer r.Close(context.WithoutCancel(ctx))
	return fn(ctx, r)
}
