// Package catalog compiles plugin files into plugins. Plugins are written in
// Starlark (.star) or Lua (.lua); both share the same builtins.
//
// Starlark
//
// A file that calls provides() at top level is a modern plugin. It may also
// call depends() and must define a collect() function, which is the body:
//
//	provides("kernel")
//	depends("os")
//
//	def collect():
//	    set("kernel/name", "Linux")
//
// Any other file is a legacy plugin whose body is the whole top level,
// executed again on each run:
//
//	require_plugin("os")
//	set("platform", get("os") + "-generic")
//
// Starlark allows no if/for/while statements at top level, so logic in a
// legacy file lives inside a def that the top level calls.
//
// Lua
//
// The same rules apply; a modern plugin defines a global collect function:
//
//	provides("kernel")
//	function collect()
//	    set("kernel/name", "Linux")
//	end
//
// Lua tables with keys 1..n are stored as sequences; any other table becomes
// a mapping with sorted keys.
//
// Builtins
//
// Available to bodies in both languages:
//
//   - get(path, default=None) reads the fact tree
//   - set(path, value) writes it
//   - hint(name) returns hint data or None
//   - require_plugin(name) runs a plugin by identifier (legacy only)
//   - struct builds a record that is stored as a mapping (Starlark only)
package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openfroyo/hostfacts/pkg/plugin"
)

// Plugin source file extensions.
const (
	StarlarkExtension = ".star"
	LuaExtension      = ".lua"
)

// runState is the state of one call into plugin code.
type runState struct {
	ctx    context.Context
	env    plugin.Env
	legacy plugin.LegacyEnv

	// decl is set only while a modern file's top level runs.
	decl *declaration

	// propagate holds an engine error raised through require_plugin. It is
	// returned in place of the interpreter error that wraps it.
	propagate error
}

type declaration struct {
	provides []string
	depends  []string
}

type compileFunc func(ctx context.Context, logger zerolog.Logger, name, path string, src []byte) (plugin.Plugin, error)

// Catalog discovers and compiles plugin files of one language. Each file is
// compiled at most once; later requests for the same file return the same
// Plugin.
type Catalog struct {
	ext     string
	compile compileFunc
	logger  zerolog.Logger
	cache   map[string]plugin.Plugin
	mu      sync.Mutex
}

// NewStarlark creates a catalog of .star plugins.
func NewStarlark(logger zerolog.Logger) *Catalog {
	return newCatalog(StarlarkExtension, compileStarlark, logger)
}

// NewLua creates a catalog of .lua plugins.
func NewLua(logger zerolog.Logger) *Catalog {
	return newCatalog(LuaExtension, compileLua, logger)
}

func newCatalog(ext string, compile compileFunc, logger zerolog.Logger) *Catalog {
	return &Catalog{
		ext:     ext,
		compile: compile,
		logger:  logger,
		cache:   make(map[string]plugin.Plugin),
	}
}

// Extension returns the plugin file extension, including the dot.
func (c *Catalog) Extension() string {
	return c.ext
}

// Discover compiles every plugin file beneath root in lexical order. Files
// that fail to compile are logged and skipped.
func (c *Catalog) Discover(ctx context.Context, root string) ([]plugin.Plugin, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat plugin root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("plugin root %s is not a directory", root)
	}

	var plugins []plugin.Plugin
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != c.ext {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		p, err := c.Load(ctx, root, rel)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			c.logger.Warn().Err(err).Str("path", path).Msg("Failed to load plugin file")
			return nil
		}

		plugins = append(plugins, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk plugin root: %w", err)
	}

	c.logger.Debug().Str("root", root).Int("plugins", len(plugins)).Msg("Plugins discovered")
	return plugins, nil
}

// Exists reports whether root/relPath is a regular file.
func (c *Catalog) Exists(root, relPath string) bool {
	info, err := os.Stat(filepath.Join(root, relPath))
	return err == nil && info.Mode().IsRegular()
}

// Load compiles root/relPath. The plugin identifier is derived from relPath.
func (c *Catalog) Load(ctx context.Context, root, relPath string) (plugin.Plugin, error) {
	path, err := filepath.Abs(filepath.Join(root, relPath))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve plugin path: %w", err)
	}

	c.mu.Lock()
	cached, exists := c.cache[path]
	c.mu.Unlock()
	if exists {
		return cached, nil
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin file: %w", err)
	}

	name := plugin.Nameify(relPath)
	p, err := c.compile(ctx, c.logger, name, path, src)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[path] = p
	c.mu.Unlock()

	c.logger.Debug().
		Str("plugin", name).
		Str("generation", string(p.Generation())).
		Str("source", path).
		Msg("Plugin compiled")
	return p, nil
}
