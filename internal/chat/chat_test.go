package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.minekube.com/common/minecraft/color"
	"go.minekube.com/common/minecraft/component"
	"pgregory.net/rapid"
)

type recorder struct {
	got []component.Component
}

func (r *recorder) SendMessage(msg component.Component) error {
	r.got = append(r.got, msg)
	return nil
}

func (r *recorder) plain() []string {
	out := make([]string, len(r.got))
	for i, c := range r.got {
		out[i] = Plain(c)
	}
	return out
}

func TestParse_StripsColorCodes(t *testing.T) {
	assert.Equal(t, "Hello World", Plain(Parse("&cHello &lWorld")))
	assert.Equal(t, "no codes", StripColors("no codes"))
}

func TestReplace(t *testing.T) {
	assert.Equal(t, "Wait 5 seconds, Alex", Replace("Wait {time}, {player}", "time", "5 seconds", "player", "Alex"))
	assert.Equal(t, "x=3", Replace("x={x}", "x", 3))
	assert.Equal(t, "{a}", Replace("{a}", "a"))
	assert.Equal(t, "Hi {missing}", Replace("Hi {missing}", "other", "v"))
}

func TestPlain_Translation(t *testing.T) {
	c := &component.Text{Extra: []component.Component{
		&component.Text{Content: "a "},
		&component.Translation{Key: "chat.key"},
	}}
	assert.Equal(t, "a {chat.key}", Plain(c))
}

func TestANSI_ColorsAndInheritance(t *testing.T) {
	c := &component.Text{
		Content: "red ",
		S:       component.Style{Color: color.Red, Bold: component.True},
		Extra:   []component.Component{&component.Text{Content: "child"}},
	}
	out := ANSI(c)

	assert.Contains(t, out, BrightRed+Bold+"red ")
	assert.Contains(t, out, BrightRed+Bold+"child")
	assert.Equal(t, "red child", StripANSI(out))
}

func TestANSI_UnstyledHasNoEscapes(t *testing.T) {
	assert.Equal(t, "plain", ANSI(&component.Text{Content: "plain"}))
}

func TestColorize(t *testing.T) {
	assert.Equal(t, "\033[31mdanger\033[0m", Colorize(Red, "danger"))
}

func TestStripANSI(t *testing.T) {
	input := "\033[31mred\033[0m normal \033[1m\033[32mbold green\033[0m"
	assert.Equal(t, "red normal bold green", StripANSI(input))
}

func TestPropertyANSIPreservesText(t *testing.T) {
	colors := []color.Color{color.Red, color.Green, color.Gold, color.Aqua, color.White}
	rapid.Check(t, func(rt *rapid.T) {
		text := rapid.StringMatching(`[a-zA-Z0-9 ]{0,40}`).Draw(rt, "text")
		idx := rapid.IntRange(0, len(colors)-1).Draw(rt, "color")
		c := Colored(text, colors[idx])
		assert.Equal(rt, text, StripANSI(ANSI(c)))
	})
}

func TestMessenger_Prefixes(t *testing.T) {
	m := NewMessenger()
	r := &recorder{}
	require.NoError(t, m.Error(r, "broken"))
	require.NoError(t, m.Success(r, "done"))

	assert.Equal(t, []string{"[✕] broken", "[✔] done"}, r.plain())
}

func TestMessenger_Disabled(t *testing.T) {
	m := NewMessenger()
	m.Enabled = false
	r := &recorder{}
	require.NoError(t, m.Warn(r, "&ccareful"))

	assert.Equal(t, []string{"careful"}, r.plain())
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "announce", LevelAnnounce.String())
	assert.Len(t, Levels(), len(DefaultPrefixes))
}

func TestPaginator(t *testing.T) {
	var lines []component.Component
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		lines = append(lines, &component.Text{Content: s})
	}
	p := NewPaginator(2, lines)
	p.Header = []component.Component{&component.Text{Content: "--"}}

	assert.Equal(t, 3, p.Pages())

	r := &recorder{}
	require.NoError(t, p.Send(r, 3))
	assert.Equal(t, []string{"--", "e"}, r.plain())

	_, err := p.Page(4)
	assert.ErrorIs(t, err, ErrNoSuchPage)
	_, err = p.Page(0)
	assert.ErrorIs(t, err, ErrNoSuchPage)
}

func TestPaginator_Empty(t *testing.T) {
	p := NewPaginator(12, nil)
	assert.Equal(t, 1, p.Pages())
	page, err := p.Page(1)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestPropertyPaginatorCoversAllLines(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 60).Draw(rt, "lines")
		size := rapid.IntRange(1, 15).Draw(rt, "size")
		lines := make([]component.Component, n)
		for i := range lines {
			lines[i] = &component.Text{Content: "x"}
		}
		p := NewPaginator(size, lines)
		total := 0
		for i := 1; i <= p.Pages(); i++ {
			page, err := p.Page(i)
			require.NoError(rt, err)
			assert.LessOrEqual(rt, len(page), size)
			total += len(page)
		}
		assert.Equal(rt, n, total)
	})
}
