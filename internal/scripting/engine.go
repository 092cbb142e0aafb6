package scripting

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// ErrInstructionLimit is returned when a script runs more opcodes than the
// engine allows.
var ErrInstructionLimit = errors.New("script exceeded instruction limit")

// Engine owns one sandboxed LState. Library files loaded with LoadDir define
// functions every later evaluation can call.
//
// Engine is safe for concurrent use; evaluations are serialized.
type Engine struct {
	mu     sync.Mutex
	state  *lua.LState
	limit  int
	logger *zap.Logger
}

// NewEngine creates an engine.
//
// Precondition: logger must be non-nil; limit <= 0 uses DefaultInstructionLimit.
// Postcondition: Returns an engine with an empty sandboxed state.
func NewEngine(limit int, logger *zap.Logger) *Engine {
	if limit <= 0 {
		limit = DefaultInstructionLimit
	}
	return &Engine{state: NewSandboxedState(), limit: limit, logger: logger}
}

// Close releases the Lua state.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Close()
}

// LoadDir executes every *.lua file in dir in lexicographic order. A missing
// directory is not an error.
//
// Postcondition: Returns the first load error, naming the file.
func (e *Engine) LoadDir(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("scripting: reading script dir %q: %w", dir, err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".lua" {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, path := range files {
		fn, err := e.state.LoadFile(path)
		if err != nil {
			return fmt.Errorf("scripting: loading %q: %w", path, err)
		}
		if _, err := e.call(ctx, fn, 0); err != nil {
			return fmt.Errorf("scripting: running %q: %w", path, err)
		}
	}
	e.logger.Debug("loaded script library", zap.String("dir", dir), zap.Int("files", len(files)))
	return nil
}

// Eval runs script with bindings exposed as globals and returns its result
// converted to Go. A script that is a single expression is evaluated as
// such; otherwise its return value is used.
//
// Postcondition: Bindings are removed from the state before Eval returns.
func (e *Engine) Eval(ctx context.Context, script string, bindings map[string]any) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn, err := e.state.LoadString("return " + script)
	if err != nil {
		fn, err = e.state.LoadString(script)
		if err != nil {
			return nil, fmt.Errorf("scripting: compiling script: %w", err)
		}
	}

	for name, v := range bindings {
		e.state.SetGlobal(name, toLua(e.state, v))
	}
	defer func() {
		for name := range bindings {
			e.state.SetGlobal(name, lua.LNil)
		}
	}()

	ret, err := e.call(ctx, fn, 1)
	if err != nil {
		return nil, err
	}
	return fromLua(ret), nil
}

// EvalString evaluates script and formats the result as text. nil becomes
// the empty string and integral numbers print without a fraction.
func (e *Engine) EvalString(ctx context.Context, script string, bindings map[string]any) (string, error) {
	v, err := e.Eval(ctx, script, bindings)
	if err != nil {
		return "", err
	}
	return Format(v), nil
}

// EvalBool evaluates script with Lua truthiness: only nil and false are false.
func (e *Engine) EvalBool(ctx context.Context, script string, bindings map[string]any) (bool, error) {
	v, err := e.Eval(ctx, script, bindings)
	if err != nil {
		return false, err
	}
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return v != nil, nil
}

// CallHook calls the global function name with args. Returns (nil, nil) when
// the function is not defined.
func (e *Engine) CallHook(ctx context.Context, name string, args ...any) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn, ok := e.state.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return nil, nil
	}
	luaArgs := make([]lua.LValue, len(args))
	for i, a := range args {
		luaArgs[i] = toLua(e.state, a)
	}
	ret, err := e.call(ctx, fn, 1, luaArgs...)
	if err != nil {
		e.logger.Warn("scripting: Lua runtime error",
			zap.String("hook", name),
			zap.Error(err),
		)
		return nil, err
	}
	return fromLua(ret), nil
}

// call runs fn under a fresh instruction budget.
func (e *Engine) call(ctx context.Context, fn *lua.LFunction, nret int, args ...lua.LValue) (lua.LValue, error) {
	cc, cancel := newCountingContext(ctx, e.limit)
	defer cancel()
	e.state.SetContext(cc)
	defer e.state.RemoveContext()

	e.state.Push(fn)
	for _, a := range args {
		e.state.Push(a)
	}
	if err := e.state.PCall(len(args), nret, nil); err != nil {
		if cc.exhausted() && ctx.Err() == nil {
			return lua.LNil, fmt.Errorf("%w (%d)", ErrInstructionLimit, e.limit)
		}
		return lua.LNil, fmt.Errorf("scripting: %w", err)
	}
	if nret == 0 {
		return lua.LNil, nil
	}
	ret := e.state.Get(-1)
	e.state.Pop(1)
	return ret, nil
}

// Format renders a value returned by Eval as text.
func Format(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(v)
	}
}
