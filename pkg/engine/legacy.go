package engine

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/openfroyo/hostfacts/pkg/plugin"
	"github.com/openfroyo/hostfacts/pkg/telemetry"
)

// LegacyResolver runs plugins by identifier. It owns the name registry,
// discovers unknown names on demand, and bridges modern plugins to the
// ModernRunner.
type LegacyResolver struct {
	// registry maps identifiers to plugins; the first registration wins
	registry map[string]plugin.Plugin
	order    []string

	roots    []string
	disabled map[string]bool

	catalog Catalog
	// builtins are consulted when no plugin root holds a name
	builtins map[string]plugin.Plugin
	runner   *ModernRunner
	exec     executor

	// resolving holds identifiers whose by-name resolution is in progress
	resolving map[string]bool
	stack     []string

	metrics *telemetry.Metrics
	logger  zerolog.Logger
}

func newLegacyResolver(
	roots []string,
	disabled map[string]bool,
	catalog Catalog,
	builtins map[string]plugin.Plugin,
	runner *ModernRunner,
	exec executor,
	metrics *telemetry.Metrics,
	logger zerolog.Logger,
) *LegacyResolver {
	return &LegacyResolver{
		registry:  make(map[string]plugin.Plugin),
		order:     make([]string, 0),
		roots:     roots,
		disabled:  disabled,
		catalog:   catalog,
		builtins:  builtins,
		runner:    runner,
		exec:      exec,
		resolving: make(map[string]bool),
		stack:     make([]string, 0),
		metrics:   metrics,
		logger:    logger,
	}
}

// Register adds p under name unless the name is taken. It reports whether
// the plugin was added.
func (r *LegacyResolver) Register(name string, p plugin.Plugin) bool {
	if existing, exists := r.registry[name]; exists {
		if existing != p {
			r.logger.Debug().
				Str("plugin", name).
				Str("source", p.Source()).
				Str("loaded_from", existing.Source()).
				Msg("Plugin is already loaded")
		}
		return false
	}
	r.registry[name] = p
	r.order = append(r.order, name)
	return true
}

// Lookup returns a known plugin by identifier: a registered one, or a modern
// plugin indexed at discovery.
func (r *LegacyResolver) Lookup(name string) (plugin.Plugin, bool) {
	if p, ok := r.registry[name]; ok {
		return p, true
	}
	if p, ok := r.runner.index.Lookup(name); ok {
		return p, true
	}
	return nil, false
}

// Plugins returns registered plugins in registration order.
func (r *LegacyResolver) Plugins() []plugin.Plugin {
	out := make([]plugin.Plugin, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.registry[name])
	}
	return out
}

// Run executes the named plugin unless it already ran in this epoch.
// It reports whether the plugin has run successfully. A non-nil error is
// always fatal (dependency cycle, missing attribute) or an interrupt.
func (r *LegacyResolver) Run(ctx context.Context, name string, force bool) (bool, error) {
	if !force {
		if p, ok := r.Lookup(name); ok {
			switch p.State() {
			case plugin.StateRan:
				return true, nil
			case plugin.StateFailed:
				return false, nil
			}
		}
	}

	if r.disabled[name] {
		r.logger.Debug().Str("plugin", name).Msg("Skipping disabled plugin")
		return false, nil
	}

	if r.resolving[name] {
		err := NewDependencyCycleError(cyclePath(r.stack, name))
		r.logger.Error().Err(err).Msg("Encountered error while running plugins")
		return false, err
	}

	p, ok := r.Lookup(name)
	if !ok {
		var err error
		p, err = r.discover(ctx, name)
		if err != nil {
			return false, err
		}
		if p == nil {
			miss := NewDiscoveryMissError(name, r.roots)
			r.metrics.RecordError(string(KindDiscoveryMiss))
			r.logger.Debug().Err(miss).Str("plugin", name).Msg("Plugin not found")
			return false, nil
		}
	}

	r.resolving[name] = true
	r.stack = append(r.stack, name)
	defer func() {
		delete(r.resolving, name)
		r.stack = r.stack[:len(r.stack)-1]
	}()

	var err error
	switch p := p.(type) {
	case *plugin.Modern:
		err = r.runner.RunPlugin(ctx, p, force)
	case *plugin.Legacy:
		err = r.exec.execute(ctx, p)
	}
	if err != nil {
		if IsFatal(err) {
			r.logger.Error().Err(err).Str("plugin", name).Msg("Encountered error while running plugins")
		}
		return false, err
	}

	return p.State() == plugin.StateRan, nil
}

// discover probes each plugin root in order for the file matching name. The
// first hit is loaded and registered; later hits are logged and ignored.
// With no file anywhere, a built-in plugin of that name is used. A nil
// plugin with a nil error means nothing matched.
func (r *LegacyResolver) discover(ctx context.Context, name string) (plugin.Plugin, error) {
	rel := plugin.Denameify(name, r.catalog.Extension())

	var found plugin.Plugin
	var foundRoot string
	for _, root := range r.roots {
		if !r.catalog.Exists(root, rel) {
			continue
		}
		if found != nil {
			r.logger.Debug().
				Str("plugin", name).
				Str("used", filepath.Join(foundRoot, rel)).
				Str("ignored", filepath.Join(root, rel)).
				Msg("Plugin found under more than one root")
			continue
		}

		p, err := r.catalog.Load(ctx, root, rel)
		if err != nil {
			if isInterrupt(err) {
				return nil, err
			}
			r.logger.Warn().Err(err).Str("plugin", name).Str("root", root).Msg("Failed to load plugin")
			return nil, nil
		}
		found, foundRoot = p, root
	}

	if found == nil {
		builtin, ok := r.builtins[name]
		if !ok {
			return nil, nil
		}
		found = builtin
	}

	r.Register(name, found)
	if m, ok := found.(*plugin.Modern); ok {
		r.runner.index.Add(m)
	}
	return found, nil
}
