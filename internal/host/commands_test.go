package host

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/foundation/internal/command"
	"github.com/cory-johannsen/foundation/internal/lang"
	"github.com/cory-johannsen/foundation/internal/plugin"
)

func startPlugin(t *testing.T, extra ...*command.Command) *plugin.Plugin {
	t.Helper()
	return startPluginIn(t, t.TempDir(), extra...)
}

func startPluginIn(t *testing.T, dataDir string, extra ...*command.Command) *plugin.Plugin {
	t.Helper()
	p := plugin.New(plugin.Options{
		Description: plugin.Description{Name: "Shop", Version: "1.0.0"},
		DataDir:     dataDir,
		Hooks: plugin.Hooks{OnStart: func(ctx context.Context, p *plugin.Plugin) error {
			for _, cmd := range append(Commands(p), extra...) {
				if err := p.Registry().Register(cmd); err != nil {
					return err
				}
			}
			return nil
		}},
	}, zaptest.NewLogger(t))
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Stop(context.Background()) })
	return p
}

func dispatch(t *testing.T, p *plugin.Plugin, sender command.Sender, line string) {
	t.Helper()
	require.NoError(t, p.Registry().Dispatch(context.Background(), sender, line))
}

func TestList_HidesVanished(t *testing.T) {
	p := startPlugin(t)
	alex, alexBox := join(t, p, "alex")
	_, _ = join(t, p, "sam")
	jo, _ := join(t, p, "jo", "*")

	dispatch(t, p, alex, "list")
	assert.Contains(t, alexBox.text(), "Online (3): alex, jo, sam")

	dispatch(t, p, jo, "vanish")
	dispatch(t, p, alex, "who")
	assert.Contains(t, alexBox.text(), "Online (2): alex, sam")
}

func TestSay_Broadcasts(t *testing.T) {
	p := startPlugin(t)
	op, _ := join(t, p, "alex", "shop.command.say")
	_, samBox := join(t, p, "sam")

	dispatch(t, p, op, "say hello there")
	assert.Contains(t, samBox.text(), "[alex] hello there")
}

func TestSay_RequiresPermission(t *testing.T) {
	p := startPlugin(t)
	alex, _ := join(t, p, "alex")
	_, samBox := join(t, p, "sam")

	dispatch(t, p, alex, "say hello")
	assert.NotContains(t, samBox.text(), "hello")
}

func TestTell_Whispers(t *testing.T) {
	p := startPlugin(t)
	alex, alexBox := join(t, p, "alex")
	_, samBox := join(t, p, "sam")

	dispatch(t, p, alex, "msg SAM see you soon")
	assert.Contains(t, samBox.text(), "alex whispers: see you soon")
	assert.Contains(t, alexBox.text(), "You whisper to sam: see you soon")

	dispatch(t, p, alex, "tell nobody hi")
	assert.Contains(t, alexBox.text(), "Player nobody is not online on this server.")
}

func TestTell_VanishedLooksOffline(t *testing.T) {
	p := startPlugin(t)
	alex, alexBox := join(t, p, "alex")
	_, samBox := join(t, p, "sam")
	p.Players().SetVanished("sam", true)

	dispatch(t, p, alex, "tell sam hi")
	assert.Contains(t, alexBox.text(), "is not online")
	assert.Empty(t, samBox.text())
}

func TestVanish_Toggles(t *testing.T) {
	p := startPlugin(t)
	jo, box := join(t, p, "jo", "shop.command.vanish")

	dispatch(t, p, jo, "v")
	assert.True(t, p.Players().IsVanished("jo"))
	assert.Contains(t, box.text(), "You are now hidden.")

	dispatch(t, p, jo, "vanish")
	assert.False(t, p.Players().IsVanished("jo"))
	assert.Contains(t, box.text(), "You are visible again.")
}

func TestSeen(t *testing.T) {
	store := newFakeStore()
	sched := startScheduler(t)
	p := startPlugin(t)
	require.NoError(t, p.Registry().Register(SeenCommand(p, store, sched)))

	_, err := store.RecordJoin(context.Background(), uuid.New(), "Robin")
	require.NoError(t, err)

	alex, box := join(t, p, "alex", "*")
	_, _ = join(t, p, "sam")

	run := func(line string) {
		require.NoError(t, sched.Await(context.Background(), func() error {
			return p.Registry().Dispatch(context.Background(), alex, line)
		}))
	}

	run("seen sam")
	assert.Contains(t, box.text(), "sam is online now.")

	run("seen robin")
	require.Eventually(t, func() bool {
		return strings.Contains(box.text(), "Robin was last seen")
	}, 2*time.Second, 10*time.Millisecond)

	run("seen ghost")
	require.Eventually(t, func() bool {
		return strings.Contains(box.text(), "ghost has never played here.")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReplies_UseLocalizedMessages(t *testing.T) {
	defaults := lang.Default()
	for _, key := range []string{
		"host.list_empty", "host.list", "host.list_separator", "host.say", "host.say_sent",
		"host.whisper_received", "host.whisper_sent", "host.vanish_on", "host.vanish_off",
		"host.seen_online", "host.seen_never", "host.seen_failed", "host.seen_last",
	} {
		assert.True(t, defaults.Has(key), key)
	}

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, lang.Dir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, lang.Dir, lang.FileName("en")),
		[]byte("host:\n  list: \"{count} here: {players}\"\n  list_separator: \" / \"\n"), 0o644))

	p := startPluginIn(t, dir)
	alex, box := join(t, p, "alex", "shop.command.vanish")
	_, _ = join(t, p, "sam")

	dispatch(t, p, alex, "list")
	assert.Contains(t, box.text(), "2 here: alex / sam")

	dispatch(t, p, alex, "vanish")
	assert.Contains(t, box.text(), "You are now hidden.")
}
