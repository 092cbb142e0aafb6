package lang

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDefault_HasFrameworkMessages(t *testing.T) {
	m := Default()
	assert.Equal(t, DefaultLocale, m.Locale())
	for _, key := range []string{
		"commands.no_permission",
		"commands.cooldown_wait",
		"commands.invalid_argument",
		"commands.error",
		"commands.cannot_use_while",
		"player.not_online",
	} {
		assert.True(t, m.Has(key), key)
	}
}

func TestOf_ReplacesPlaceholders(t *testing.T) {
	m, err := Parse("en", []byte("greet: \"Hi {player}, you have {n} mail\"\nlines:\n  - one\n  - two\n"), zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, "Hi Alex, you have 3 mail", m.Of("greet", "player", "Alex", "n", 3))
	assert.Equal(t, "one\ntwo", m.Of("lines"))
	assert.Equal(t, "missing.key", m.Of("missing.key"))
	assert.Equal(t, 2, m.Len())
}

func TestLoad_WritesFileAndKeepsUserEdits(t *testing.T) {
	dir := t.TempDir()
	fsys := fstest.MapFS{
		"localization/messages_en.yml": {Data: []byte("a: default a\nb: default b\n")},
	}
	path := filepath.Join(dir, Dir, "messages_en.yml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("a: custom a\n"), 0o644))

	m, err := Load(fsys, dir, "en", zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "custom a", m.Of("a"))
	assert.Equal(t, "default b", m.Of("b"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "b: default b")
}

func TestLoad_UnknownLocaleFallsBackToEnglishDefaults(t *testing.T) {
	dir := t.TempDir()
	fsys := fstest.MapFS{
		"localization/messages_en.yml": {Data: []byte("a: default a\n")},
	}
	m, err := Load(fsys, dir, "cs", zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, "cs", m.Locale())
	assert.Equal(t, "default a", m.Of("a"))
	assert.FileExists(t, filepath.Join(dir, Dir, "messages_cs.yml"))
}

func TestStore_Swap(t *testing.T) {
	first, err := Parse("en", []byte("k: one\n"), zaptest.NewLogger(t))
	require.NoError(t, err)
	second, err := Parse("en", []byte("k: two\n"), zaptest.NewLogger(t))
	require.NoError(t, err)

	s := NewStore(first)
	assert.Equal(t, "one", s.Get().Of("k"))
	s.Set(second)
	assert.Equal(t, "two", s.Get().Of("k"))
}
