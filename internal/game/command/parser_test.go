package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestParse_Empty(t *testing.T) {
	result := Parse("")
	assert.Equal(t, "", result.Command)
	assert.Nil(t, result.Args)
}

func TestParse_SingleWord(t *testing.T) {
	result := Parse("tracker")
	assert.Equal(t, "tracker", result.Command)
	assert.Nil(t, result.Args)
	assert.Equal(t, "", result.RawArgs)
}

func TestParse_Lowercase(t *testing.T) {
	result := Parse("ROUND")
	assert.Equal(t, "round", result.Command)
}

func TestParse_WithArgs(t *testing.T) {
	result := Parse("use aria fire-bolt")
	assert.Equal(t, "use", result.Command)
	assert.Equal(t, []string{"aria", "fire-bolt"}, result.Args)
	assert.Equal(t, "aria fire-bolt", result.RawArgs)
}

func TestParse_ArgsKeepCase(t *testing.T) {
	result := Parse("target TOK-Goblin on")
	assert.Equal(t, []string{"TOK-Goblin", "on"}, result.Args)
}

func TestParse_ExtraWhitespace(t *testing.T) {
	result := Parse("  attack\tbrom   longsword  19 ")
	assert.Equal(t, "attack", result.Command)
	assert.Equal(t, []string{"brom", "longsword", "19"}, result.Args)
	assert.Equal(t, "brom   longsword  19", result.RawArgs)
}

func TestParse_Comments(t *testing.T) {
	assert.Equal(t, ParseResult{}, Parse("# opening round"))
	result := Parse("duration 45 # shorter rounds")
	assert.Equal(t, "duration", result.Command)
	assert.Equal(t, []string{"45"}, result.Args)
}

func TestParseToggle(t *testing.T) {
	for arg, want := range map[string]bool{"on": true, "ON": true, "yes": true, "true": true, "off": false, "no": false, "false": false} {
		got, ok := ParseToggle(arg)
		assert.True(t, ok, arg)
		assert.Equal(t, want, got, arg)
	}
	_, ok := ParseToggle("maybe")
	assert.False(t, ok)
}

func TestPropertyParseAlwaysLowercasesCommand(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		word := rapid.StringMatching(`[A-Za-z]{1,20}`).Draw(t, "word")
		result := Parse(word)
		for _, c := range result.Command {
			if c >= 'A' && c <= 'Z' {
				t.Fatalf("command %q contains uppercase char in Parse result %q", word, result.Command)
			}
		}
	})
}

func TestPropertyParseNonEmptyInputHasCommand(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		word := rapid.StringMatching(`[a-z]{1,10}`).Draw(t, "word")
		result := Parse(word)
		if result.Command == "" {
			t.Fatalf("non-empty input %q produced empty command", word)
		}
	})
}
