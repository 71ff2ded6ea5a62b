package catalog

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

var (
	legacyPredeclared = starlark.StringDict{
		"get":            starlark.NewBuiltin("get", builtinGet),
		"set":            starlark.NewBuiltin("set", builtinSet),
		"hint":           starlark.NewBuiltin("hint", builtinHint),
		"require_plugin": starlark.NewBuiltin("require_plugin", builtinRequirePlugin),
		"struct":         starlarkstruct.Default,
	}

	modernPredeclared = starlark.StringDict{
		"get":      starlark.NewBuiltin("get", builtinGet),
		"set":      starlark.NewBuiltin("set", builtinSet),
		"hint":     starlark.NewBuiltin("hint", builtinHint),
		"provides": starlark.NewBuiltin("provides", builtinProvides),
		"depends":  starlark.NewBuiltin("depends", builtinDepends),
		"struct":   starlarkstruct.Default,
	}
)

// bodyState returns the run state of a thread executing a plugin body.
func bodyState(thread *starlark.Thread, b *starlark.Builtin) (*runState, error) {
	rs := stateOf(thread)
	if rs == nil || rs.env == nil {
		return nil, fmt.Errorf("%s: only available while collecting", b.Name())
	}
	return rs, nil
}

func builtinGet(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string
	var def starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &path, "default?", &def); err != nil {
		return nil, err
	}

	rs, err := bodyState(thread, b)
	if err != nil {
		return nil, err
	}

	v, ok := rs.env.Get(path)
	if !ok {
		return def, nil
	}
	out, err := toStarlark(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return out, nil
}

func builtinSet(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string
	var value starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &path, "value", &value); err != nil {
		return nil, err
	}

	rs, err := bodyState(thread, b)
	if err != nil {
		return nil, err
	}

	v, err := fromStarlark(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	if err := rs.env.Set(path, v); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.None, nil
}

func builtinHint(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name); err != nil {
		return nil, err
	}

	rs, err := bodyState(thread, b)
	if err != nil {
		return nil, err
	}

	data, ok := rs.env.Hint(name)
	if !ok {
		return starlark.None, nil
	}
	out, err := toStarlark(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return out, nil
}

func builtinRequirePlugin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name); err != nil {
		return nil, err
	}

	rs, err := bodyState(thread, b)
	if err != nil {
		return nil, err
	}
	if rs.legacy == nil {
		return nil, fmt.Errorf("%s: not available to modern plugins", b.Name())
	}

	ran, err := rs.legacy.RequirePlugin(rs.ctx, name)
	if err != nil {
		rs.propagate = err
		return nil, err
	}
	return starlark.Bool(ran), nil
}

func builtinProvides(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	decl, err := declarationOf(thread, b, kwargs)
	if err != nil {
		return nil, err
	}
	attrs, err := attributeArgs(b, args)
	if err != nil {
		return nil, err
	}
	decl.provides = append(decl.provides, attrs...)
	return starlark.None, nil
}

func builtinDepends(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	decl, err := declarationOf(thread, b, kwargs)
	if err != nil {
		return nil, err
	}
	attrs, err := attributeArgs(b, args)
	if err != nil {
		return nil, err
	}
	decl.depends = append(decl.depends, attrs...)
	return starlark.None, nil
}

func declarationOf(thread *starlark.Thread, b *starlark.Builtin, kwargs []starlark.Tuple) (*declaration, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
	}
	rs := stateOf(thread)
	if rs == nil || rs.decl == nil {
		return nil, fmt.Errorf("%s: may only be called at top level", b.Name())
	}
	return rs.decl, nil
}

// attributeArgs accepts strings and lists of strings.
func attributeArgs(b *starlark.Builtin, args starlark.Tuple) ([]string, error) {
	var out []string
	for i, arg := range args {
		switch v := arg.(type) {
		case starlark.String:
			out = append(out, string(v))
		case *starlark.List, starlark.Tuple:
			iter := starlark.Iterate(v)
			var item starlark.Value
			for iter.Next(&item) {
				s, ok := item.(starlark.String)
				if !ok {
					iter.Done()
					return nil, fmt.Errorf("%s: argument %d: want string, got %s", b.Name(), i+1, item.Type())
				}
				out = append(out, string(s))
			}
			iter.Done()
		default:
			return nil, fmt.Errorf("%s: argument %d: want string or list, got %s", b.Name(), i+1, arg.Type())
		}
	}
	return out, nil
}
