package catalog

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/openfroyo/hostfacts/pkg/plugin"
)

const stateKey = "hostfacts.state"

func stateOf(thread *starlark.Thread) *runState {
	rs, _ := thread.Local(stateKey).(*runState)
	return rs
}

func compileStarlark(ctx context.Context, logger zerolog.Logger, name, path string, src []byte) (plugin.Plugin, error) {
	f, err := syntax.Parse(path, src, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to parse plugin: %w", err)
	}

	if callsProvides(f) {
		return compileStarlarkModern(ctx, logger, name, path, f)
	}
	return compileStarlarkLegacy(logger, name, path, f)
}

// callsProvides reports whether the file calls provides() at top level.
func callsProvides(f *syntax.File) bool {
	for _, stmt := range f.Stmts {
		expr, ok := stmt.(*syntax.ExprStmt)
		if !ok {
			continue
		}
		call, ok := expr.X.(*syntax.CallExpr)
		if !ok {
			continue
		}
		if id, ok := call.Fn.(*syntax.Ident); ok && id.Name == "provides" {
			return true
		}
	}
	return false
}

func compileStarlarkLegacy(logger zerolog.Logger, name, path string, f *syntax.File) (plugin.Plugin, error) {
	prog, err := starlark.FileProgram(f, legacyPredeclared.Has)
	if err != nil {
		return nil, fmt.Errorf("failed to compile plugin: %w", err)
	}

	logger = logger.With().Str("plugin", name).Logger()
	body := func(ctx context.Context, env plugin.LegacyEnv) error {
		rs := &runState{ctx: ctx, env: env, legacy: env}
		return run(ctx, newThread(name, rs, logger), rs, func(thread *starlark.Thread) error {
			_, err := prog.Init(thread, legacyPredeclared)
			return err
		})
	}
	return plugin.NewLegacy(name, path, body), nil
}

func compileStarlarkModern(ctx context.Context, logger zerolog.Logger, name, path string, f *syntax.File) (plugin.Plugin, error) {
	prog, err := starlark.FileProgram(f, modernPredeclared.Has)
	if err != nil {
		return nil, fmt.Errorf("failed to compile plugin: %w", err)
	}

	logger = logger.With().Str("plugin", name).Logger()

	decl := &declaration{}
	rs := &runState{ctx: ctx, decl: decl}
	var globals starlark.StringDict
	err = run(ctx, newThread(name, rs, logger), rs, func(thread *starlark.Thread) error {
		var err error
		globals, err = prog.Init(thread, modernPredeclared)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load plugin: %w", err)
	}
	globals.Freeze()

	if len(decl.provides) == 0 {
		return nil, fmt.Errorf("plugin %s provides no attributes", name)
	}
	collect, ok := globals["collect"].(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("plugin %s declares provides() but defines no collect()", name)
	}

	body := func(ctx context.Context, env plugin.Env) error {
		rs := &runState{ctx: ctx, env: env}
		return run(ctx, newThread(name, rs, logger), rs, func(thread *starlark.Thread) error {
			_, err := starlark.Call(thread, collect, nil, nil)
			return err
		})
	}
	return plugin.NewModern(name, path, decl.provides, decl.depends, body), nil
}

func newThread(name string, rs *runState, logger zerolog.Logger) *starlark.Thread {
	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			logger.Debug().Str("output", msg).Msg("Plugin print")
		},
	}
	thread.SetLocal(stateKey, rs)
	return thread
}

// run executes fn on thread, cancelling the thread when ctx is done.
func run(ctx context.Context, thread *starlark.Thread, rs *runState, fn func(*starlark.Thread) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(ctx.Err().Error())
	})
	defer stop()

	err := fn(thread)
	if rs.propagate != nil {
		return rs.propagate
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
