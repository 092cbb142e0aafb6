package scripting

import (
	"fmt"
	"math"
	"reflect"
	"sort"

	lua "github.com/yuin/gopher-lua"
)

// toLua converts a Go value into a Lua value. Maps and slices become tables;
// func(string) bool, func(string) string and func() string become callable
// Lua functions.
func toLua(L *lua.LState, v any) lua.LValue {
	switch t := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return t
	case bool:
		return lua.LBool(t)
	case string:
		return lua.LString(t)
	case int:
		return lua.LNumber(t)
	case int64:
		return lua.LNumber(t)
	case float64:
		return lua.LNumber(t)
	case fmt.Stringer:
		return lua.LString(t.String())
	case func(string) bool:
		return L.NewFunction(func(L *lua.LState) int {
			L.Push(lua.LBool(t(L.CheckString(1))))
			return 1
		})
	case func(string) string:
		return L.NewFunction(func(L *lua.LState) int {
			L.Push(lua.LString(t(L.CheckString(1))))
			return 1
		})
	case func() string:
		return L.NewFunction(func(L *lua.LState) int {
			L.Push(lua.LString(t()))
			return 1
		})
	case map[string]any:
		tbl := L.NewTable()
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			tbl.RawSetString(k, toLua(L, t[k]))
		}
		return tbl
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		tbl := L.NewTable()
		for i := 0; i < rv.Len(); i++ {
			tbl.Append(toLua(L, rv.Index(i).Interface()))
		}
		return tbl
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return lua.LNumber(rv.Convert(reflect.TypeOf(float64(0))).Float())
	case reflect.Float32:
		return lua.LNumber(rv.Float())
	default:
		return lua.LString(fmt.Sprint(v))
	}
}

// fromLua converts a Lua value into Go. Integral numbers become int64, other
// numbers float64; tables with a sequence part become []any, others
// map[string]any.
func fromLua(v lua.LValue) any {
	switch t := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(t)
	case lua.LString:
		return string(t)
	case lua.LNumber:
		f := float64(t)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f)
		}
		return f
	case *lua.LTable:
		if n := t.MaxN(); n > 0 {
			out := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				out = append(out, fromLua(t.RawGetInt(i)))
			}
			return out
		}
		out := make(map[string]any)
		t.ForEach(func(k, val lua.LValue) {
			out[k.String()] = fromLua(val)
		})
		return out
	default:
		return v.String()
	}
}
