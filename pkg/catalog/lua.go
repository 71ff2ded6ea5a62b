package catalog

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/ast"
	"github.com/yuin/gopher-lua/parse"

	"github.com/openfroyo/hostfacts/pkg/plugin"
)

// luaVM is a Lua state with the plugin builtins installed. Builtins act on the
// run state of the call in progress.
type luaVM struct {
	L      *lua.LState
	logger zerolog.Logger
	rs     *runState
	mu     sync.Mutex
}

func compileLua(ctx context.Context, logger zerolog.Logger, name, path string, src []byte) (plugin.Plugin, error) {
	chunk, err := parse.Parse(bytes.NewReader(src), path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse plugin: %w", err)
	}
	proto, err := lua.Compile(chunk, path)
	if err != nil {
		return nil, fmt.Errorf("failed to compile plugin: %w", err)
	}

	logger = logger.With().Str("plugin", name).Logger()
	if chunkCallsProvides(chunk) {
		return compileLuaModern(ctx, logger, name, path, proto)
	}
	return compileLuaLegacy(logger, name, path, proto), nil
}

// chunkCallsProvides reports whether the chunk calls provides() at top level.
func chunkCallsProvides(chunk []ast.Stmt) bool {
	for _, stmt := range chunk {
		call, ok := stmt.(*ast.FuncCallStmt)
		if !ok {
			continue
		}
		expr, ok := call.Expr.(*ast.FuncCallExpr)
		if !ok || expr.Receiver != nil {
			continue
		}
		if id, ok := expr.Func.(*ast.IdentExpr); ok && id.Value == "provides" {
			return true
		}
	}
	return false
}

// Legacy bodies get a fresh state per run so globals never leak between runs.
func compileLuaLegacy(logger zerolog.Logger, name, path string, proto *lua.FunctionProto) plugin.Plugin {
	body := func(ctx context.Context, env plugin.LegacyEnv) error {
		vm := newLuaVM(logger)
		defer vm.L.Close()

		rs := &runState{ctx: ctx, env: env, legacy: env}
		return vm.call(ctx, rs, vm.L.NewFunctionFromProto(proto))
	}
	return plugin.NewLegacy(name, path, body)
}

func compileLuaModern(ctx context.Context, logger zerolog.Logger, name, path string, proto *lua.FunctionProto) (plugin.Plugin, error) {
	vm := newLuaVM(logger)

	decl := &declaration{}
	if err := vm.call(ctx, &runState{ctx: ctx, decl: decl}, vm.L.NewFunctionFromProto(proto)); err != nil {
		vm.L.Close()
		return nil, fmt.Errorf("failed to load plugin: %w", err)
	}

	if len(decl.provides) == 0 {
		vm.L.Close()
		return nil, fmt.Errorf("plugin %s provides no attributes", name)
	}
	collect, ok := vm.L.GetGlobal("collect").(*lua.LFunction)
	if !ok {
		vm.L.Close()
		return nil, fmt.Errorf("plugin %s declares provides() but defines no collect()", name)
	}

	body := func(ctx context.Context, env plugin.Env) error {
		return vm.call(ctx, &runState{ctx: ctx, env: env}, collect)
	}
	return plugin.NewModern(name, path, decl.provides, decl.depends, body), nil
}

func newLuaVM(logger zerolog.Logger) *luaVM {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	// io, os, debug and package stay closed.
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}

	vm := &luaVM{L: L, logger: logger}
	builtins := map[string]lua.LGFunction{
		"print":          vm.print,
		"get":            vm.get,
		"set":            vm.set,
		"hint":           vm.hint,
		"require_plugin": vm.requirePlugin,
		"provides":       vm.provides,
		"depends":        vm.depends,
	}
	for name, fn := range builtins {
		L.SetGlobal(name, L.NewFunction(fn))
	}
	return vm
}

// call runs fn with rs as the current run state. The state is interrupted
// when ctx is done.
func (vm *luaVM) call(ctx context.Context, rs *runState, fn *lua.LFunction) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()

	vm.rs = rs
	vm.L.SetContext(ctx)
	defer func() {
		vm.rs = nil
		vm.L.RemoveContext()
	}()

	// pcall can swallow a raised error, so the run state and context are
	// checked even when the call succeeds.
	err := vm.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true})
	if rs.propagate != nil {
		return rs.propagate
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func (vm *luaVM) bodyState(fn string) (*runState, error) {
	if vm.rs == nil || vm.rs.env == nil {
		return nil, fmt.Errorf("%s: only available while collecting", fn)
	}
	return vm.rs, nil
}

func (vm *luaVM) print(L *lua.LState) int {
	parts := make([]string, L.GetTop())
	for i := range parts {
		parts[i] = L.Get(i + 1).String()
	}
	vm.logger.Debug().Str("output", strings.Join(parts, "\t")).Msg("Plugin print")
	return 0
}

func (vm *luaVM) get(L *lua.LState) int {
	path := L.CheckString(1)
	def := L.Get(2)

	rs, err := vm.bodyState("get")
	if err != nil {
		L.RaiseError("%s", err)
		return 0
	}

	v, ok := rs.env.Get(path)
	if !ok {
		L.Push(def)
		return 1
	}
	lv, err := toLua(L, v)
	if err != nil {
		L.RaiseError("get: %s", err)
		return 0
	}
	L.Push(lv)
	return 1
}

func (vm *luaVM) set(L *lua.LState) int {
	path := L.CheckString(1)
	value := L.CheckAny(2)

	rs, err := vm.bodyState("set")
	if err != nil {
		L.RaiseError("%s", err)
		return 0
	}

	v, err := fromLua(value)
	if err != nil {
		L.RaiseError("set: %s", err)
		return 0
	}
	if err := rs.env.Set(path, v); err != nil {
		L.RaiseError("set: %s", err)
	}
	return 0
}

func (vm *luaVM) hint(L *lua.LState) int {
	name := L.CheckString(1)

	rs, err := vm.bodyState("hint")
	if err != nil {
		L.RaiseError("%s", err)
		return 0
	}

	data, ok := rs.env.Hint(name)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	lv, err := toLua(L, data)
	if err != nil {
		L.RaiseError("hint: %s", err)
		return 0
	}
	L.Push(lv)
	return 1
}

func (vm *luaVM) requirePlugin(L *lua.LState) int {
	name := L.CheckString(1)

	rs, err := vm.bodyState("require_plugin")
	if err != nil {
		L.RaiseError("%s", err)
		return 0
	}
	if rs.legacy == nil {
		L.RaiseError("require_plugin: not available to modern plugins")
		return 0
	}

	ran, err := rs.legacy.RequirePlugin(rs.ctx, name)
	if err != nil {
		rs.propagate = err
		L.RaiseError("%s", err)
		return 0
	}
	L.Push(lua.LBool(ran))
	return 1
}

func (vm *luaVM) provides(L *lua.LState) int {
	decl, attrs := vm.declaration(L, "provides")
	decl.provides = append(decl.provides, attrs...)
	return 0
}

func (vm *luaVM) depends(L *lua.LState) int {
	decl, attrs := vm.declaration(L, "depends")
	decl.depends = append(decl.depends, attrs...)
	return 0
}

// declaration returns the declaration being built and the string arguments
// of the call. Tables of strings are flattened.
func (vm *luaVM) declaration(L *lua.LState, fn string) (*declaration, []string) {
	if vm.rs == nil || vm.rs.decl == nil {
		L.RaiseError("%s: may only be called at top level", fn)
	}

	var out []string
	for i := 1; i <= L.GetTop(); i++ {
		switch v := L.Get(i).(type) {
		case lua.LString:
			out = append(out, string(v))
		case *lua.LTable:
			for j := 1; j <= v.Len(); j++ {
				s, ok := v.RawGetInt(j).(lua.LString)
				if !ok {
					L.ArgError(i, "want table of strings")
				}
				out = append(out, string(s))
			}
		default:
			L.ArgError(i, fmt.Sprintf("want string or table, got %s", v.Type()))
		}
	}
	return vm.rs.decl, out
}
