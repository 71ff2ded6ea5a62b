package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	lua "github.com/yuin/gopher-lua"

	"github.com/openfroyo/hostfacts/pkg/facts"
)

var errSelfReference = errors.New("table contains itself")

// toLua converts a fact or hint value to a Lua value.
func toLua(L *lua.LState, v any) (lua.LValue, error) {
	switch val := v.(type) {
	case nil:
		return lua.LNil, nil
	case bool:
		return lua.LBool(val), nil
	case int:
		return lua.LNumber(val), nil
	case int64:
		return lua.LNumber(val), nil
	case float64:
		return lua.LNumber(val), nil
	case string:
		return lua.LString(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", val)
		}
		return lua.LNumber(f), nil
	case []any:
		t := L.CreateTable(len(val), 0)
		for i, item := range val {
			lv, err := toLua(L, item)
			if err != nil {
				return nil, err
			}
			t.RawSetInt(i+1, lv)
		}
		return t, nil
	case *facts.Mash:
		t := L.CreateTable(0, val.Len())
		for _, k := range val.Keys() {
			item, _ := val.Get(k)
			lv, err := toLua(L, item)
			if err != nil {
				return nil, err
			}
			t.RawSetString(k, lv)
		}
		return t, nil
	case map[string]any:
		t := L.CreateTable(0, len(val))
		for k, item := range val {
			lv, err := toLua(L, item)
			if err != nil {
				return nil, err
			}
			t.RawSetString(k, lv)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromLua converts a Lua value to a fact value. Integral numbers become
// int64. A table whose keys are exactly 1..n becomes a slice; any other table
// becomes a Mash with sorted keys.
func fromLua(lv lua.LValue) (any, error) {
	return fromLuaVisited(lv, make(map[*lua.LTable]bool))
}

func fromLuaVisited(lv lua.LValue, visited map[*lua.LTable]bool) (any, error) {
	switch v := lv.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(v), nil
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f), nil
		}
		return f, nil
	case lua.LString:
		return string(v), nil
	case *lua.LTable:
		if visited[v] {
			return nil, errSelfReference
		}
		visited[v] = true
		defer delete(visited, v)
		return tableFromLua(v, visited)
	default:
		return nil, fmt.Errorf("unsupported lua type: %s", lv.Type())
	}
}

func tableFromLua(t *lua.LTable, visited map[*lua.LTable]bool) (any, error) {
	type entry struct {
		key   lua.LValue
		value lua.LValue
	}

	var entries []entry
	maxN := 0
	isArray := true
	t.ForEach(func(k, v lua.LValue) {
		entries = append(entries, entry{k, v})
		if kn, ok := k.(lua.LNumber); ok {
			n := int(kn)
			if float64(n) == float64(kn) && n > 0 {
				maxN = max(maxN, n)
				return
			}
		}
		isArray = false
	})

	if isArray && maxN > 0 && maxN == len(entries) {
		out := make([]any, maxN)
		for i := 1; i <= maxN; i++ {
			item, err := fromLuaVisited(t.RawGetInt(i), visited)
			if err != nil {
				return nil, err
			}
			out[i-1] = item
		}
		return out, nil
	}

	values := make(map[string]lua.LValue, len(entries))
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		var key string
		switch k := e.key.(type) {
		case lua.LString:
			key = string(k)
		case lua.LNumber:
			key = strconv.FormatFloat(float64(k), 'f', -1, 64)
		default:
			return nil, fmt.Errorf("table key must be string or number, got %s", e.key.Type())
		}
		if _, dup := values[key]; !dup {
			keys = append(keys, key)
		}
		values[key] = e.value
	}
	sort.Strings(keys)

	m := facts.NewMash()
	for _, k := range keys {
		item, err := fromLuaVisited(values[k], visited)
		if err != nil {
			return nil, err
		}
		m.Set(k, item)
	}
	return m, nil
}
