package engine

import (
	"context"

	"github.com/openfroyo/hostfacts/pkg/plugin"
)

// Catalog compiles plugin source files into plugins.
// Implementations must return the same Plugin value every time the same file
// is requested, so run-state is shared between discovery and on-demand loads.
type Catalog interface {
	// Extension returns the source file extension, including the dot.
	Extension() string

	// Discover compiles every plugin file beneath root, in walk order.
	Discover(ctx context.Context, root string) ([]plugin.Plugin, error)

	// Exists reports whether relPath names a plugin file beneath root.
	Exists(root, relPath string) bool

	// Load compiles the single plugin file root/relPath.
	Load(ctx context.Context, root, relPath string) (plugin.Plugin, error)
}

// HintStore supplies operator hints to plugin bodies.
type HintStore interface {
	// Refresh re-reads hint sources.
	Refresh() error

	// Hint returns the named hint, if present.
	Hint(name string) (map[string]any, bool)
}

// executor runs one plugin body and applies the failure-isolation policy.
// The returned error is nil for success and soft failures; otherwise it is a
// fatal engine error or an interrupt, to be propagated as is.
type executor interface {
	execute(ctx context.Context, p plugin.Plugin) error
}
