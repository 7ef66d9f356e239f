// Package command provides the operator console command registry, parser, and
// built-in command definitions.
package command

// Categories for organizing commands.
const (
	CategoryRound  = "round"
	CategoryTimer  = "timer"
	CategoryAction = "action"
	CategoryScene  = "scene"
	CategorySystem = "system"
)

// Handler identifiers mapping commands to console handlers.
const (
	HandlerRound    = "round"
	HandlerClear    = "clear"
	HandlerEnd      = "end"
	HandlerStart    = "start"
	HandlerPause    = "pause"
	HandlerResume   = "resume"
	HandlerReset    = "reset"
	HandlerDuration = "duration"
	HandlerUse      = "use"
	HandlerAttack   = "attack"
	HandlerTarget   = "target"
	HandlerHover    = "hover"
	HandlerTracker  = "tracker"
	HandlerWho      = "who"
	HandlerHelp     = "help"
	HandlerQuit     = "quit"
)

// Command defines an operator-invocable command.
type Command struct {
	// Name is the canonical command name.
	Name string
	// Aliases are alternate names for this command.
	Aliases []string
	// Usage shows the argument syntax, e.g. "use <actor> <action>".
	Usage string
	// Help is the short help text displayed to the operator.
	Help string
	// Category groups the command (round, timer, action, scene, system).
	Category string
	// Handler maps to the console handler.
	Handler string
	// ControllerOnly marks commands that mutate shared round or timer state.
	ControllerOnly bool
}

// BuiltinCommands returns all built-in console commands.
func BuiltinCommands() []Command {
	return []Command{
		// Round commands
		{Name: "round", Aliases: []string{"next"}, Usage: "round", Help: "Advance to the next round and reset initiative", Category: CategoryRound, Handler: HandlerRound},
		{Name: "clear", Aliases: nil, Usage: "clear <actor>", Help: "Clear one actor's initiative", Category: CategoryRound, Handler: HandlerClear, ControllerOnly: true},
		{Name: "end", Aliases: nil, Usage: "end", Help: "End the encounter and clear every target", Category: CategoryRound, Handler: HandlerEnd, ControllerOnly: true},
		{Name: "tracker", Aliases: []string{"t", "order"}, Usage: "tracker", Help: "Show the turn order and timer", Category: CategoryRound, Handler: HandlerTracker},

		// Timer commands
		{Name: "start", Aliases: nil, Usage: "start", Help: "Start the round timer", Category: CategoryTimer, Handler: HandlerStart, ControllerOnly: true},
		{Name: "pause", Aliases: nil, Usage: "pause", Help: "Pause the session and freeze the timer", Category: CategoryTimer, Handler: HandlerPause},
		{Name: "resume", Aliases: []string{"unpause"}, Usage: "resume", Help: "Unpause the session and continue the timer", Category: CategoryTimer, Handler: HandlerResume},
		{Name: "reset", Aliases: nil, Usage: "reset", Help: "Stop the timer and clear the clock", Category: CategoryTimer, Handler: HandlerReset},
		{Name: "duration", Aliases: []string{"dur"}, Usage: "duration [seconds]", Help: "Show or set the round duration", Category: CategoryTimer, Handler: HandlerDuration},

		// Action commands
		{Name: "use", Aliases: []string{"u"}, Usage: "use <actor> <action>", Help: "Use a non-attack action and roll initiative", Category: CategoryAction, Handler: HandlerUse},
		{Name: "attack", Aliases: []string{"att", "a"}, Usage: "attack <actor> <action> <total> [affirm|decline|cancel]", Help: "Make an attack roll that may set initiative", Category: CategoryAction, Handler: HandlerAttack},

		// Scene commands
		{Name: "target", Aliases: []string{"tg"}, Usage: "target <token> on|off", Help: "Toggle a target for every token you control", Category: CategoryScene, Handler: HandlerTarget},
		{Name: "hover", Aliases: nil, Usage: "hover <token> on|off", Help: "Highlight a token's additional targets", Category: CategoryScene, Handler: HandlerHover},

		// System commands
		{Name: "who", Aliases: nil, Usage: "who", Help: "Show the timer controller and session state", Category: CategorySystem, Handler: HandlerWho},
		{Name: "help", Aliases: []string{"?"}, Usage: "help", Help: "Show available commands", Category: CategorySystem, Handler: HandlerHelp},
		{Name: "quit", Aliases: []string{"exit"}, Usage: "quit", Help: "Leave the session", Category: CategorySystem, Handler: HandlerQuit},
	}
}

// Categories returns the command categories in display order.
func Categories() []string {
	return []string{CategoryRound, CategoryTimer, CategoryAction, CategoryScene, CategorySystem}
}
