package engine

import (
	"github.com/openfroyo/hostfacts/pkg/facts"
	"github.com/openfroyo/hostfacts/pkg/plugin"
)

// ProvidesIndex maps attribute paths to the modern plugins declaring them.
type ProvidesIndex struct {
	// attrs keeps declared paths in first-declaration order
	attrs []string

	producers map[string][]*plugin.Modern
	plugins   []*plugin.Modern
	byName    map[string]*plugin.Modern
}

// NewProvidesIndex creates an empty index.
func NewProvidesIndex() *ProvidesIndex {
	return &ProvidesIndex{
		attrs:     make([]string, 0),
		producers: make(map[string][]*plugin.Modern),
		plugins:   make([]*plugin.Modern, 0),
		byName:    make(map[string]*plugin.Modern),
	}
}

// Add indexes p under each attribute it provides. It reports false, and
// changes nothing, when a plugin with the same identifier is already known.
func (i *ProvidesIndex) Add(p *plugin.Modern) bool {
	if _, exists := i.byName[p.Name()]; exists {
		return false
	}
	i.byName[p.Name()] = p
	i.plugins = append(i.plugins, p)

	for _, attr := range p.Provides() {
		if _, exists := i.producers[attr]; !exists {
			i.attrs = append(i.attrs, attr)
		}
		i.producers[attr] = append(i.producers[attr], p)
	}
	return true
}

// All returns every indexed plugin in registration order.
func (i *ProvidesIndex) All() []*plugin.Modern {
	return append([]*plugin.Modern(nil), i.plugins...)
}

// Lookup returns the indexed plugin with the given identifier.
func (i *ProvidesIndex) Lookup(name string) (*plugin.Modern, bool) {
	p, ok := i.byName[name]
	return p, ok
}

// Providers returns the plugins that produce attr. Producers of attr itself
// and of anything beneath it come first; failing that, the producers of the
// closest ancestor. It reports false when nobody produces any of these.
func (i *ProvidesIndex) Providers(attr string) ([]*plugin.Modern, bool) {
	attr = facts.CleanPath(attr)
	seen := make(map[*plugin.Modern]bool)
	out := make([]*plugin.Modern, 0)

	for _, declared := range i.attrs {
		if declared != attr && !isBeneath(declared, attr) {
			continue
		}
		for _, p := range i.producers[declared] {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	if len(out) > 0 {
		return out, true
	}

	parts := facts.SplitPath(attr)
	for n := len(parts) - 1; n > 0; n-- {
		if ps, ok := i.producers[facts.JoinPath(parts[:n])]; ok {
			return append([]*plugin.Modern(nil), ps...), true
		}
	}
	return nil, false
}

// isBeneath reports whether path lies strictly beneath prefix.
func isBeneath(path, prefix string) bool {
	return len(path) > len(prefix) && path[:len(prefix)] == prefix && path[len(prefix)] == '/'
}
