package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestParse_Empty(t *testing.T) {
	result := Parse("")
	assert.Equal(t, "", result.Label)
	assert.Nil(t, result.Args)
}

func TestParse_SingleWord(t *testing.T) {
	result := Parse("shop")
	assert.Equal(t, "shop", result.Label)
	assert.Nil(t, result.Args)
	assert.Equal(t, "", result.RawArgs)
}

func TestParse_LeadingSlash(t *testing.T) {
	result := Parse("/Shop buy apple")
	assert.Equal(t, "shop", result.Label)
	assert.Equal(t, []string{"buy", "apple"}, result.Args)
}

func TestParse_ExtraWhitespace(t *testing.T) {
	result := Parse("  msg   Alex   hi there  ")
	assert.Equal(t, "msg", result.Label)
	assert.Equal(t, []string{"Alex", "hi", "there"}, result.Args)
	assert.Equal(t, "Alex   hi there", result.RawArgs)
}

func TestParsePartial_TrailingSpaceStartsArgument(t *testing.T) {
	assert.Nil(t, ParsePartial("sho").Args)
	assert.Equal(t, []string{""}, ParsePartial("shop ").Args)
	assert.Equal(t, []string{"buy", ""}, ParsePartial("shop buy ").Args)
	assert.Equal(t, []string{"buy", "ap"}, ParsePartial("shop buy ap").Args)
}

func TestPropertyParseAlwaysLowercasesLabel(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		word := rapid.StringMatching(`/?[A-Za-z]{1,20}`).Draw(t, "word")
		result := Parse(word)
		for _, c := range result.Label {
			if c >= 'A' && c <= 'Z' || c == '/' {
				t.Fatalf("label %q of input %q is not normalized", result.Label, word)
			}
		}
	})
}

func TestPropertyParseKeepsArgumentCount(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		args := rapid.SliceOfN(rapid.StringMatching(`[a-z0-9]{1,8}`), 0, 6).Draw(t, "args")
		line := "cmd"
		for _, a := range args {
			line += " " + a
		}
		result := Parse(line)
		if len(result.Args) != len(args) {
			t.Fatalf("parsed %d args from %q, want %d", len(result.Args), line, len(args))
		}
	})
}
