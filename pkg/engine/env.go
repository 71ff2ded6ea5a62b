package engine

import (
	"context"

	"github.com/openfroyo/hostfacts/pkg/plugin"
)

// pluginEnv is the view of the System handed to one plugin body. Writes go
// through it so the provenance index always names the writer.
type pluginEnv struct {
	sys    *System
	plugin plugin.Plugin
}

func (e *pluginEnv) Get(path string) (any, bool) {
	return e.sys.tree.Lookup(path)
}

func (e *pluginEnv) Set(path string, value any) error {
	if err := e.sys.tree.Set(path, value); err != nil {
		return err
	}
	e.sys.provenance.Record(path, e.plugin.Name())
	return nil
}

func (e *pluginEnv) Hint(name string) (map[string]any, bool) {
	return e.sys.hints.Hint(name)
}

func (e *pluginEnv) RequirePlugin(ctx context.Context, name string) (bool, error) {
	return e.sys.RequestPlugin(ctx, name, false)
}
