package scripting_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/foundation/internal/scripting"
)

func TestNewSandboxedState_UnsafeLibsNil(t *testing.T) {
	L := scripting.NewSandboxedState()
	require.NotNil(t, L)
	defer L.Close()
	for _, name := range []string{"os", "io", "debug"} {
		assert.Equal(t, lua.LNil, L.GetGlobal(name), "expected %s to be nil", name)
	}
}

func TestNewSandboxedState_DangerousGlobalsNil(t *testing.T) {
	L := scripting.NewSandboxedState()
	require.NotNil(t, L)
	defer L.Close()
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "collectgarbage", "require"} {
		assert.Equal(t, lua.LNil, L.GetGlobal(name), "expected %s to be nil", name)
	}
}

func TestNewSandboxedState_SafeLibsAvailable(t *testing.T) {
	L := scripting.NewSandboxedState()
	require.NotNil(t, L)
	defer L.Close()
	err := L.DoString(`
		local x = math.sqrt(4)
		assert(x == 2.0, "math.sqrt failed")
		local s = string.upper("hello")
		assert(s == "HELLO", "string.upper failed")
	`)
	assert.NoError(t, err)
}

func TestEngine_InstructionLimitExceeded(t *testing.T) {
	e := scripting.NewEngine(10, zaptest.NewLogger(t))
	defer e.Close()
	_, err := e.Eval(context.Background(), `while true do end`, nil)
	assert.ErrorIs(t, err, scripting.ErrInstructionLimit)
}

func TestEngine_StateUsableAfterLimit(t *testing.T) {
	e := scripting.NewEngine(50, zaptest.NewLogger(t))
	defer e.Close()
	_, err := e.Eval(context.Background(), `while true do end`, nil)
	require.Error(t, err)

	v, err := e.Eval(context.Background(), `1 + 1`, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestEngine_CancelledContext(t *testing.T) {
	e := scripting.NewEngine(0, zaptest.NewLogger(t))
	defer e.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Eval(ctx, `while true do end`, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, scripting.ErrInstructionLimit)
}

func TestProperty_InstructionLimitAlwaysErrors(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 50).Draw(t, "limit")
		e := scripting.NewEngine(limit, zap.NewNop())
		defer e.Close()
		_, err := e.Eval(context.Background(), `while true do end`, nil)
		if err == nil {
			t.Fatalf("expected error with limit=%d but got nil", limit)
		}
	})
}
