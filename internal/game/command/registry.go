package command

import (
	"fmt"
	"slices"
	"strings"
)

// Registry resolves console words to commands. Names and aliases share one
// namespace and are matched case-insensitively.
type Registry struct {
	byWord map[string]*Command
	sorted []*Command
}

// NewRegistry indexes cmds by name and alias.
//
// Postcondition: Returns an error naming the first word claimed twice.
func NewRegistry(cmds []Command) (*Registry, error) {
	r := &Registry{byWord: make(map[string]*Command)}
	for i := range cmds {
		cmd := &cmds[i]
		if owner, taken := r.byWord[strings.ToLower(cmd.Name)]; taken {
			if owner.Name == cmd.Name {
				return nil, fmt.Errorf("duplicate command name %q", cmd.Name)
			}
			return nil, fmt.Errorf("command name %q is already an alias of %q", cmd.Name, owner.Name)
		}
		r.byWord[strings.ToLower(cmd.Name)] = cmd
		for _, alias := range cmd.Aliases {
			if owner, taken := r.byWord[strings.ToLower(alias)]; taken {
				return nil, fmt.Errorf("duplicate alias %q: claimed by %q and %q", alias, owner.Name, cmd.Name)
			}
			r.byWord[strings.ToLower(alias)] = cmd
		}
		r.sorted = append(r.sorted, cmd)
	}
	slices.SortFunc(r.sorted, func(a, b *Command) int { return strings.Compare(a.Name, b.Name) })
	return r, nil
}

// DefaultRegistry indexes BuiltinCommands. It panics if the builtins collide.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(BuiltinCommands())
	if err != nil {
		panic("command: builtin registry: " + err.Error())
	}
	return r
}

// Resolve looks word up as a name or alias.
func (r *Registry) Resolve(word string) (*Command, bool) {
	cmd, ok := r.byWord[strings.ToLower(word)]
	return cmd, ok
}

// Commands returns every command sorted by name.
func (r *Registry) Commands() []*Command {
	return slices.Clone(r.sorted)
}

// CommandsByCategory groups Commands by category, preserving name order.
func (r *Registry) CommandsByCategory() map[string][]*Command {
	out := make(map[string][]*Command)
	for _, cmd := range r.sorted {
		out[cmd.Category] = append(out[cmd.Category], cmd)
	}
	return out
}

// Help lists each category in Categories order followed by its commands'
// usage and help text. Commands outside the known categories are not listed.
func (r *Registry) Help() string {
	var b strings.Builder
	groups := r.CommandsByCategory()
	for _, cat := range Categories() {
		if len(groups[cat]) == 0 {
			continue
		}
		b.WriteString(strings.ToUpper(cat[:1]) + cat[1:] + ":\n")
		for _, cmd := range groups[cat] {
			fmt.Fprintf(&b, "  %-52s %s\n", cmd.Usage, cmd.Help)
		}
	}
	return b.String()
}
