package command

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.NotNil(t, r)
	assert.Len(t, r.Commands(), len(BuiltinCommands()))
}

func TestResolve_CanonicalName(t *testing.T) {
	r := DefaultRegistry()

	cmd, ok := r.Resolve("round")
	assert.True(t, ok)
	assert.Equal(t, "round", cmd.Name)
	assert.Equal(t, HandlerRound, cmd.Handler)
}

func TestResolve_Alias(t *testing.T) {
	r := DefaultRegistry()

	cmd, ok := r.Resolve("next")
	assert.True(t, ok)
	assert.Equal(t, "round", cmd.Name)
}

func TestResolve_IgnoresCase(t *testing.T) {
	r := DefaultRegistry()

	cmd, ok := r.Resolve("PAUSE")
	require.True(t, ok)
	assert.Equal(t, "pause", cmd.Name)
}

func TestResolve_NotFound(t *testing.T) {
	r := DefaultRegistry()

	_, ok := r.Resolve("teleport")
	assert.False(t, ok)
}

func TestResolve_AllCommands(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		input   string
		handler string
	}{
		{"round", HandlerRound},
		{"tracker", HandlerTracker},
		{"t", HandlerTracker},
		{"start", HandlerStart},
		{"pause", HandlerPause},
		{"unpause", HandlerResume},
		{"reset", HandlerReset},
		{"dur", HandlerDuration},
		{"use", HandlerUse},
		{"att", HandlerAttack},
		{"tg", HandlerTarget},
		{"hover", HandlerHover},
		{"who", HandlerWho},
		{"?", HandlerHelp},
		{"exit", HandlerQuit},
	}

	for _, tt := range tests {
		cmd, ok := r.Resolve(tt.input)
		require.True(t, ok, "input %q not found", tt.input)
		assert.Equal(t, tt.handler, cmd.Handler, "input %q wrong handler", tt.input)
	}
}

func TestStart_IsControllerOnly(t *testing.T) {
	r := DefaultRegistry()
	cmd, ok := r.Resolve("start")
	require.True(t, ok)
	assert.True(t, cmd.ControllerOnly)
}

func TestNewRegistry_DuplicateName(t *testing.T) {
	cmds := []Command{
		{Name: "test", Handler: "a"},
		{Name: "test", Handler: "b"},
	}
	_, err := NewRegistry(cmds)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate command name")
}

func TestNewRegistry_DuplicateAlias(t *testing.T) {
	cmds := []Command{
		{Name: "test1", Aliases: []string{"t"}, Handler: "a"},
		{Name: "test2", Aliases: []string{"t"}, Handler: "b"},
	}
	_, err := NewRegistry(cmds)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate alias")
}

func TestNewRegistry_AliasShadowsName(t *testing.T) {
	cmds := []Command{
		{Name: "start", Handler: "a"},
		{Name: "begin", Aliases: []string{"start"}, Handler: "b"},
	}
	_, err := NewRegistry(cmds)
	assert.Error(t, err)
}

func TestNewRegistry_NameShadowsAlias(t *testing.T) {
	cmds := []Command{
		{Name: "begin", Aliases: []string{"start"}, Handler: "a"},
		{Name: "start", Handler: "b"},
	}
	_, err := NewRegistry(cmds)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already an alias")
}

func TestCommands_ReturnsCopy(t *testing.T) {
	r := DefaultRegistry()
	cmds := r.Commands()
	cmds[0] = nil
	assert.NotNil(t, r.Commands()[0])
}

func TestCommandsByCategory(t *testing.T) {
	r := DefaultRegistry()
	cats := r.CommandsByCategory()

	for _, c := range Categories() {
		assert.Contains(t, cats, c)
	}
	assert.Len(t, cats[CategoryTimer], 5)
	assert.Equal(t, "attack", cats[CategoryAction][0].Name)
}

func TestHelp_ListsEveryCommandInCategoryOrder(t *testing.T) {
	r := DefaultRegistry()
	help := r.Help()
	for _, cmd := range BuiltinCommands() {
		assert.Contains(t, help, cmd.Usage)
	}
	assert.Less(t, strings.Index(help, "Round:"), strings.Index(help, "Timer:"))
	assert.Less(t, strings.Index(help, "Scene:"), strings.Index(help, "System:"))
}

func TestPropertyAllAliasesResolveToCanonical(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := DefaultRegistry()
		cmds := r.Commands()
		idx := rapid.IntRange(0, len(cmds)-1).Draw(t, "cmd_idx")
		cmd := cmds[idx]

		resolved, ok := r.Resolve(cmd.Name)
		if !ok {
			t.Fatalf("canonical name %q did not resolve", cmd.Name)
		}
		if resolved.Name != cmd.Name {
			t.Fatalf("canonical name %q resolved to %q", cmd.Name, resolved.Name)
		}

		for _, alias := range cmd.Aliases {
			aliasResolved, ok := r.Resolve(alias)
			if !ok {
				t.Fatalf("alias %q did not resolve", alias)
			}
			if aliasResolved.Name != cmd.Name {
				t.Fatalf("alias %q resolved to %q, expected %q", alias, aliasResolved.Name, cmd.Name)
			}
		}
	})
}
