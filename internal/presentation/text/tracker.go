package text

import (
	"fmt"
	"strings"

	"github.com/cory-johannsen/action-initiative/internal/game/combat"
	"github.com/cory-johannsen/action-initiative/internal/game/initiative"
)

// GroupColor returns the tracker color of a category group: declared actions
// green, ranged blue, melee red.
func GroupColor(c initiative.Category) string {
	switch c {
	case initiative.Declared:
		return Green
	case initiative.Ranged:
		return Blue
	case initiative.Melee:
		return Red
	}
	return ""
}

// Options controls tracker rendering.
type Options struct {
	// Color enables ANSI group colors.
	Color bool
}

// RenderTracker formats the ordered turns with the round and timer header.
//
// Postcondition: One line per turn, in the given order; combatants that have
// not acted show "--" in place of the magnitude.
func RenderTracker(round int, timer string, turns []combat.Turn, opts Options) string {
	var b strings.Builder
	header := fmt.Sprintf("Round %d  [%s]", round, timer)
	if opts.Color {
		header = Colorize(Bold, header)
	}
	b.WriteString(header)
	b.WriteString("\n")
	if len(turns) == 0 {
		b.WriteString("  (no combatants)\n")
		return b.String()
	}
	for _, t := range turns {
		value := "--"
		if t.Initiative != nil {
			value = t.Initiative.Display()
		}
		group := t.Group()
		cell := fmt.Sprintf("%4s", value)
		if opts.Color {
			cell = Colorize(GroupColor(group), cell)
		}
		fmt.Fprintf(&b, "%s  %-24s %s\n", cell, t.Name, group)
	}
	return b.String()
}
