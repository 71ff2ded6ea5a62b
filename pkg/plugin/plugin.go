// Package plugin defines the two generations of fact plugins and the
// environment their bodies execute against.
//
// A Plugin is either a *Legacy or a *Modern value. The generation is fixed
// when the plugin is compiled, so callers switch on the concrete type once
// instead of testing a flag at every call site.
package plugin

import (
	"context"
	"path/filepath"
	"strings"
)

// Generation identifies the authoring model of a plugin.
type Generation string

const (
	// GenerationLegacy plugins are addressed by name and run best-effort.
	GenerationLegacy Generation = "legacy"

	// GenerationModern plugins declare attribute provisions and dependencies
	// and run in dependency order.
	GenerationModern Generation = "modern"
)

// RunState is the memoized outcome of a plugin within a collection epoch.
type RunState string

const (
	StatePending RunState = "pending"
	StateRan     RunState = "ran"
	StateFailed  RunState = "failed"
)

// NamespaceSeparator joins the directory components of an identifier.
const NamespaceSeparator = "::"

// Env is what a plugin body sees of the engine.
type Env interface {
	// Get reads an attribute from the fact tree.
	Get(path string) (any, bool)

	// Set writes an attribute and records the writing plugin.
	Set(path string, value any) error

	// Hint returns operator-supplied hint data by name.
	Hint(name string) (map[string]any, bool)
}

// LegacyEnv extends Env with by-name resolution of other plugins.
type LegacyEnv interface {
	Env

	// RequirePlugin runs the named plugin if it has not run yet.
	RequirePlugin(ctx context.Context, name string) (bool, error)
}

// LegacyBody is the executable part of a legacy plugin.
type LegacyBody func(ctx context.Context, env LegacyEnv) error

// ModernBody is the executable part of a modern plugin.
type ModernBody func(ctx context.Context, env Env) error

// Plugin is the capability surface shared by both generations.
type Plugin interface {
	Name() string
	Source() string
	Generation() Generation
	State() RunState
	SetState(state RunState)

	sealed()
}

type base struct {
	name   string
	source string
	state  RunState
}

func (b *base) Name() string            { return b.name }
func (b *base) Source() string          { return b.source }
func (b *base) State() RunState         { return b.state }
func (b *base) SetState(state RunState) { b.state = state }
func (b *base) sealed()                 {}

// Legacy is a name-addressed plugin executed under soft-catch.
type Legacy struct {
	base
	body LegacyBody
}

// NewLegacy creates a pending legacy plugin.
func NewLegacy(name, source string, body LegacyBody) *Legacy {
	return &Legacy{
		base: base{name: name, source: source, state: StatePending},
		body: body,
	}
}

// Generation implements Plugin.
func (p *Legacy) Generation() Generation { return GenerationLegacy }

// Execute runs the plugin body.
func (p *Legacy) Execute(ctx context.Context, env LegacyEnv) error {
	if p.body == nil {
		return nil
	}
	return p.body(ctx, env)
}

// Modern is an attribute-graph plugin executed in dependency order.
type Modern struct {
	base
	provides []string
	depends  []string
	body     ModernBody
}

// NewModern creates a pending modern plugin.
func NewModern(name, source string, provides, depends []string, body ModernBody) *Modern {
	return &Modern{
		base:     base{name: name, source: source, state: StatePending},
		provides: cleanAll(provides),
		depends:  cleanAll(depends),
		body:     body,
	}
}

// Generation implements Plugin.
func (p *Modern) Generation() Generation { return GenerationModern }

// Provides returns the attribute paths the plugin declares it writes.
func (p *Modern) Provides() []string { return append([]string(nil), p.provides...) }

// Depends returns the attribute paths the plugin needs before it runs.
func (p *Modern) Depends() []string { return append([]string(nil), p.depends...) }

// Execute runs the plugin body.
func (p *Modern) Execute(ctx context.Context, env Env) error {
	if p.body == nil {
		return nil
	}
	return p.body(ctx, env)
}

// Nameify derives a plugin identifier from a file path relative to its
// plugin root: the extension is stripped and path separators become "::".
func Nameify(relPath string) string {
	rel := filepath.ToSlash(filepath.Clean(relPath))
	rel = strings.TrimPrefix(rel, "./")
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return strings.ReplaceAll(rel, "/", NamespaceSeparator)
}

// Denameify maps an identifier back to a relative file path with the given
// extension, e.g. ("linux::cpu", ".star") -> "linux/cpu.star".
func Denameify(name, ext string) string {
	return filepath.FromSlash(strings.ReplaceAll(name, NamespaceSeparator, "/")) + ext
}

func cleanAll(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		parts := strings.FieldsFunc(p, func(r rune) bool { return r == '/' })
		if len(parts) > 0 {
			out = append(out, strings.Join(parts, "/"))
		}
	}
	return out
}
