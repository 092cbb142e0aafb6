package settings

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/foundation/internal/chat"
	"github.com/cory-johannsen/foundation/internal/yamlconfig"
)

func TestLoad_BuiltinDefaults(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(Resources(), dir, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, 1, s.Version)
	assert.Equal(t, "en", s.Locale)
	assert.Equal(t, []string{"foundation", "fd"}, s.CommandAliases)
	assert.Equal(t, "foundation", s.MainLabel())
	assert.Equal(t, 100*time.Millisecond, s.LagThreshold)
	assert.Equal(t, 12, s.Help.PageSize)
	assert.Equal(t, []string{"help", "?"}, s.Help.Triggers)
	assert.True(t, s.Messenger.Enabled)
	assert.Equal(t, chat.DefaultPrefixes[chat.LevelError], s.Messenger.Prefixes[chat.LevelError])
	assert.True(t, s.Variables.ReplaceScript)
	assert.FileExists(t, filepath.Join(dir, FileName))
}

func TestLoad_UserValuesAndNewKeys(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("locale: cs\nlog_lag_over_millis: -1\ndebug:\n  - commands\n"), 0o644))

	s, err := Load(Resources(), dir, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, "cs", s.Locale)
	assert.Negative(t, int64(s.LagThreshold))
	assert.True(t, s.IsDebug("commands"))
	assert.False(t, s.IsDebug("variables"))

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "timestamp_format:")
	assert.Contains(t, string(data), "locale: cs")
}

func TestLoad_ExtraSectionsRunInOrder(t *testing.T) {
	fsys := fstest.MapFS{FileName: {Data: []byte("version: 1\nlocale: en\nhelp:\n  page_size: 5\nshop:\n  currency: coins\n  items:\n    apple: 3\n")}}

	var order []string
	shop := Section{
		Name:        "shop",
		Prefix:      "shop",
		Uncommented: []string{"shop.items"},
		Bind: func(cfg *yamlconfig.Config, s *Settings) error {
			order = append(order, "shop")
			s.SetExtension("currency", cfg.GetString("currency"))
			s.SetExtension("items", cfg.GetMap("items"))
			return nil
		},
	}
	after := Section{Name: "after", Bind: func(cfg *yamlconfig.Config, s *Settings) error {
		order = append(order, "after")
		assert.Equal(t, "", cfg.PathPrefix())
		return nil
	}}

	s, err := Load(fsys, t.TempDir(), zaptest.NewLogger(t), shop, after)
	require.NoError(t, err)

	assert.Equal(t, []string{"shop", "after"}, order)
	currency, ok := Extension[string](s, "currency")
	require.True(t, ok)
	assert.Equal(t, "coins", currency)
	items, ok := Extension[map[string]any](s, "items")
	require.True(t, ok)
	assert.Equal(t, 3, items["apple"])
	_, ok = Extension[int](s, "currency")
	assert.False(t, ok)
}

func TestLoad_InvalidPageSize(t *testing.T) {
	fsys := fstest.MapFS{FileName: {Data: []byte("help:\n  page_size: 0\n")}}
	_, err := Load(fsys, t.TempDir(), zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "help.page_size")
}

func TestLoad_ConversionErrorFails(t *testing.T) {
	fsys := fstest.MapFS{FileName: {Data: []byte("version:\n  nested: true\nhelp:\n  page_size: 3\n")}}
	_, err := Load(fsys, t.TempDir(), zaptest.NewLogger(t))
	assert.ErrorIs(t, err, yamlconfig.ErrConversion)
}

func TestStore_ReloadKeepsOldSnapshotOnError(t *testing.T) {
	calls := 0
	store, err := NewStore(func() (*Settings, error) {
		calls++
		if calls == 2 {
			return nil, assert.AnError
		}
		return &Settings{Version: calls}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Get().Version)

	assert.ErrorIs(t, store.Reload(), assert.AnError)
	assert.Equal(t, 1, store.Get().Version)

	require.NoError(t, store.Reload())
	assert.Equal(t, 3, store.Get().Version)
}

func TestStore_ConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	n := 0
	store, err := NewStore(func() (*Settings, error) {
		n++
		return &Settings{Version: n, Locale: "v" + string(rune('0'+n%10))}, nil
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s := store.Get()
				assert.Equal(t, "v"+string(rune('0'+s.Version%10)), s.Locale)
			}
		}()
	}
	for i := 0; i < 50; i++ {
		require.NoError(t, store.Reload())
	}
	wg.Wait()
}
