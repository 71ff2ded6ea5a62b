package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfroyo/hostfacts/pkg/catalog"
	"github.com/openfroyo/hostfacts/pkg/config"
	"github.com/openfroyo/hostfacts/pkg/facts"
	"github.com/openfroyo/hostfacts/pkg/hints"
	"github.com/openfroyo/hostfacts/pkg/plugin"
	"github.com/openfroyo/hostfacts/pkg/telemetry"
)

// System owns one fact tree and the plugins that fill it.
type System struct {
	cfg *config.Config

	catalog  Catalog
	hints    HintStore
	builtins []plugin.Plugin

	tree       *facts.Tree
	provenance *facts.Provenance

	index  *ProvidesIndex
	runner *ModernRunner
	legacy *LegacyResolver

	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	logger  zerolog.Logger
}

// Option customizes a System.
type Option func(*System)

// WithCatalog sets the plugin catalog. The default follows the configured
// plugin language.
func WithCatalog(c Catalog) Option {
	return func(s *System) { s.catalog = c }
}

// WithHints sets the hint store. The default reads JSON files from the
// configured hint paths.
func WithHints(h HintStore) Option {
	return func(s *System) { s.hints = h }
}

// WithLogger sets the base logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *System) { s.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *System) { s.metrics = m }
}

// WithBuiltins adds plugins that are not backed by files. They are registered
// after every plugin root has been searched, so a file plugin with the same
// identifier takes precedence.
func WithBuiltins(plugins ...plugin.Plugin) Option {
	return func(s *System) { s.builtins = append(s.builtins, plugins...) }
}

// WithTracer sets the tracer.
func WithTracer(t *telemetry.Tracer) Option {
	return func(s *System) { s.tracer = t }
}

// NewSystem creates a System with an empty tree. cfg is copied, so later
// changes to it have no effect.
func NewSystem(cfg *config.Config, opts ...Option) (*System, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &System{
		cfg:        cfg.Clone(),
		tree:       facts.NewTree(),
		provenance: facts.NewProvenance(),
		index:      NewProvidesIndex(),
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.catalog == nil {
		catalogLogger := telemetry.ComponentLogger(s.logger, "catalog")
		if s.cfg.PluginLanguage == config.LanguageLua {
			s.catalog = catalog.NewLua(catalogLogger)
		} else {
			s.catalog = catalog.NewStarlark(catalogLogger)
		}
	}
	if s.hints == nil {
		s.hints = hints.NewStore(s.cfg.HintPath, telemetry.ComponentLogger(s.logger, "hints"))
	}
	if s.metrics == nil {
		s.metrics = &telemetry.Metrics{}
	}
	if s.tracer == nil {
		s.tracer = telemetry.NoopTracer()
	}

	disabled := make(map[string]bool, len(s.cfg.DisabledPlugins))
	for _, name := range s.cfg.DisabledPlugins {
		disabled[name] = true
	}

	s.runner = newModernRunner(s.index, s, disabled, telemetry.ComponentLogger(s.logger, "runner"))
	builtins := make(map[string]plugin.Plugin, len(s.builtins))
	for _, p := range s.builtins {
		if _, exists := builtins[p.Name()]; !exists {
			builtins[p.Name()] = p
		}
	}

	s.legacy = newLegacyResolver(
		s.cfg.PluginPath,
		disabled,
		s.catalog,
		builtins,
		s.runner,
		s,
		s.metrics,
		telemetry.ComponentLogger(s.logger, "resolver"),
	)
	s.logger = telemetry.ComponentLogger(s.logger, "system")

	if err := s.hints.Refresh(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load hints")
	}

	return s, nil
}

// LoadPlugins discovers plugins under every configured root. Legacy plugins
// are registered by identifier and modern plugins indexed by the attributes
// they provide; in both cases the first plugin seen for an identifier wins.
func (s *System) LoadPlugins(ctx context.Context) error {
	for _, root := range s.cfg.PluginPath {
		plugins, err := s.catalog.Discover(ctx, root)
		if err != nil {
			if isInterrupt(err) {
				return err
			}
			s.logger.Warn().Err(err).Str("root", root).Msg("Failed to discover plugins")
			continue
		}

		for _, p := range plugins {
			s.adopt(p)
		}
	}
	for _, p := range s.builtins {
		s.adopt(p)
	}

	s.metrics.SetPluginsDiscovered(string(plugin.GenerationLegacy), len(s.legacy.Plugins()))
	s.metrics.SetPluginsDiscovered(string(plugin.GenerationModern), len(s.index.All()))
	return nil
}

// adopt registers a discovered legacy plugin or indexes a modern one. The
// first plugin seen for an identifier wins.
func (s *System) adopt(p plugin.Plugin) {
	switch p := p.(type) {
	case *plugin.Legacy:
		s.legacy.Register(p.Name(), p)
	case *plugin.Modern:
		if !s.index.Add(p) {
			if existing, _ := s.index.Lookup(p.Name()); existing != p {
				s.logger.Debug().
					Str("plugin", p.Name()).
					Str("source", p.Source()).
					Msg("Plugin is already loaded")
			}
		}
	}
}

// CollectAll discovers plugins and runs all of them: legacy plugins first,
// each isolated from the others' failures, then modern plugins in
// dependency order. With force, every plugin starts a new epoch as pending.
//
// The returned error is a dependency cycle, a missing attribute, or an
// interrupt; individual plugin failures are absorbed.
func (s *System) CollectAll(ctx context.Context, force bool) (err error) {
	runID := uuid.New().String()
	logger := s.logger.With().Str("run_id", runID).Logger()

	ctx, span := s.tracer.StartCollectionSpan(ctx, runID)
	defer span.End()

	timer := telemetry.NewTimer()
	defer func() {
		status := "success"
		if err != nil {
			status = "failed"
			if kind := kindOf(err); kind != "" {
				s.metrics.RecordError(string(kind))
			}
			telemetry.RecordError(span, err)
			logger.Error().Err(err).Dur("duration", timer.Duration()).Msg("Fact collection failed")
		} else {
			telemetry.RecordSuccess(span)
			logger.Info().Dur("duration", timer.Duration()).Msg("Fact collection completed")
		}
		s.metrics.RecordCollection(status, timer.Duration())
		if werr := s.metrics.WriteTextfile(); werr != nil {
			logger.Warn().Err(werr).Msg("Failed to write metrics")
		}
	}()

	logger.Info().Strs("plugin_path", s.cfg.PluginPath).Bool("force", force).Msg("Collecting facts")

	if err := s.LoadPlugins(ctx); err != nil {
		return err
	}

	if force {
		for _, p := range s.Plugins() {
			p.SetState(plugin.StatePending)
		}
	}

	for _, p := range s.legacy.Plugins() {
		if _, ok := p.(*plugin.Legacy); !ok {
			continue
		}
		if _, err := s.legacy.Run(ctx, p.Name(), false); err != nil {
			return err
		}
	}

	return s.runner.RunAll(ctx, false)
}

// RequestPlugin runs a single plugin by identifier, discovering it under the
// plugin roots if it is not yet known. It reports whether the plugin ran.
func (s *System) RequestPlugin(ctx context.Context, name string, force bool) (bool, error) {
	return s.legacy.Run(ctx, name, force)
}

// Refresh re-runs the plugins that contributed data at, beneath or above
// path. Hints are reloaded first because they can change what a plugin
// produces. Plugins outside the subtree keep their state and data.
func (s *System) Refresh(ctx context.Context, path string) error {
	if err := s.hints.Refresh(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to reload hints")
	}

	names := s.provenance.Contributors(path)
	s.logger.Debug().Str("path", facts.CleanPath(path)).Strs("plugins", names).Msg("Refreshing plugins")

	for _, name := range names {
		if p, ok := s.legacy.Lookup(name); ok {
			p.SetState(plugin.StatePending)
		}
	}
	for _, name := range names {
		if _, err := s.RequestPlugin(ctx, name, false); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the value at path. It reports false when any segment is
// missing.
func (s *System) Get(path string) (any, bool) {
	return s.tree.Lookup(path)
}

// Tree returns the fact tree.
func (s *System) Tree() *facts.Tree {
	return s.tree
}

// Plugins returns every known plugin: registered ones in registration order,
// then indexed modern plugins not registered by name.
func (s *System) Plugins() []plugin.Plugin {
	out := s.legacy.Plugins()
	seen := make(map[plugin.Plugin]bool, len(out))
	for _, p := range out {
		seen[p] = true
	}
	for _, p := range s.index.All() {
		if !seen[p] {
			out = append(out, p)
		}
	}
	return out
}

// Contributors returns the identifiers of plugins that wrote at, beneath or
// above path.
func (s *System) Contributors(path string) []string {
	return s.provenance.Contributors(path)
}
