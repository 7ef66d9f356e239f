// Package console is the operator's line-oriented control surface over a
// running initiative session.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/action-initiative/internal/game/action"
	"github.com/cory-johannsen/action-initiative/internal/game/combat"
	"github.com/cory-johannsen/action-initiative/internal/game/command"
	"github.com/cory-johannsen/action-initiative/internal/game/round"
	"github.com/cory-johannsen/action-initiative/internal/game/session"
	"github.com/cory-johannsen/action-initiative/internal/game/targeting"
	"github.com/cory-johannsen/action-initiative/internal/presentation/text"
	"github.com/cory-johannsen/action-initiative/internal/settings"
	"github.com/cory-johannsen/action-initiative/internal/timersync"
)

// ErrQuit is returned by Exec when the operator leaves the session.
var ErrQuit = errors.New("quit")

// Encounters resolves the encounter the console acts on.
type Encounters interface {
	Active() (*combat.Encounter, bool)
	End(id string)
}

// Timer is the part of the timer synchronizer the console drives.
type Timer interface {
	Start(ctx context.Context) error
	RequestPause(ctx context.Context, paused bool) error
	Reset(ctx context.Context) error
	Display() string
}

// Deps carries everything the console handlers need.
type Deps struct {
	// Participant is the local participant id.
	Participant string
	Encounters  Encounters
	// Sessions holds this process's copy of the host-wide pause flag.
	Sessions   *session.Manager
	Timer      Timer
	Round      *round.Controller
	Classifier *action.Classifier
	Targets    *targeting.Tracker
	Store      *settings.Store
	// Actions are the actions available to "use" and "attack", keyed by id.
	Actions map[string]action.Action
	// IsController is queried fresh on every controller-only command.
	IsController func() bool
	// Color enables ANSI colors in tracker output.
	Color bool
}

// Console dispatches operator commands.
// It is not safe for concurrent use.
type Console struct {
	deps     Deps
	registry *command.Registry
	logger   *zap.Logger
}

type handlerFunc func(ctx context.Context, c *Console, parsed command.ParseResult) (string, error)

// handlers is the single source of truth for console dispatch.
// A new command needs a Handler constant in the command package and an entry here.
var handlers = map[string]handlerFunc{
	command.HandlerRound:    handleRound,
	command.HandlerClear:    handleClear,
	command.HandlerEnd:      handleEnd,
	command.HandlerStart:    handleStart,
	command.HandlerPause:    handlePause,
	command.HandlerResume:   handleResume,
	command.HandlerReset:    handleReset,
	command.HandlerDuration: handleDuration,
	command.HandlerUse:      handleUse,
	command.HandlerAttack:   handleAttack,
	command.HandlerTarget:   handleTarget,
	command.HandlerHover:    handleHover,
	command.HandlerTracker:  handleTracker,
	command.HandlerWho:      handleWho,
	command.HandlerHelp:     handleHelp,
	command.HandlerQuit:     handleQuit,
}

// New creates a Console over deps.
//
// Precondition: every Deps field except Actions and Color must be set.
func New(deps Deps, logger *zap.Logger) *Console {
	if deps.Actions == nil {
		deps.Actions = map[string]action.Action{}
	}
	return &Console{deps: deps, registry: command.DefaultRegistry(), logger: logger}
}

// Exec runs one console line.
//
// Postcondition: Returns the text to show the operator. Operator mistakes
// (unknown commands, bad arguments, rejected operations) are returned as
// errors; ErrQuit ends the session.
func (c *Console) Exec(ctx context.Context, line string) (string, error) {
	parsed := command.Parse(line)
	if parsed.Command == "" {
		return "", nil
	}
	cmd, ok := c.registry.Resolve(parsed.Command)
	if !ok {
		return "", fmt.Errorf("unknown command %q; type help", parsed.Command)
	}
	if cmd.ControllerOnly && !c.deps.IsController() {
		return "", timersync.ErrNotController
	}
	h, ok := handlers[cmd.Handler]
	if !ok {
		return "", fmt.Errorf("command %q has no handler", cmd.Name)
	}
	c.logger.Debug("console command", zap.String("command", cmd.Name), zap.Strings("args", parsed.Args))
	return h(ctx, c, parsed)
}

// Run reads lines from in until EOF, quit, or ctx cancellation, writing
// results and errors to out.
//
// Postcondition: Returns nil on EOF or quit, ctx.Err() on cancellation.
func (c *Console) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	prompt := fmt.Sprintf("[%s]> ", c.deps.Participant)
	if c.deps.Color {
		prompt = text.Colorize(text.Cyan, prompt)
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := io.WriteString(out, prompt); err != nil {
			return fmt.Errorf("writing prompt: %w", err)
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("reading input: %w", err)
			}
			return nil
		}
		result, err := c.Exec(ctx, scanner.Text())
		switch {
		case errors.Is(err, ErrQuit):
			fmt.Fprintln(out, result)
			return nil
		case err != nil:
			msg := "error: " + err.Error()
			if c.deps.Color {
				msg = text.Colorize(text.Red, msg)
			}
			fmt.Fprintln(out, msg)
		case result != "":
			fmt.Fprintln(out, strings.TrimRight(result, "\n"))
		}
	}
}

func (c *Console) encounter() (*combat.Encounter, error) {
	enc, ok := c.deps.Encounters.Active()
	if !ok {
		return nil, errors.New("no active encounter")
	}
	return enc, nil
}

func (c *Console) lookupAction(id string) (action.Action, error) {
	act, ok := c.deps.Actions[id]
	if !ok {
		return action.Action{}, fmt.Errorf("unknown action %q", id)
	}
	return act, nil
}

func usage(parsed command.ParseResult, c *Console) error {
	cmd, _ := c.registry.Resolve(parsed.Command)
	return fmt.Errorf("usage: %s", cmd.Usage)
}

func handleRound(ctx context.Context, c *Console, _ command.ParseResult) (string, error) {
	enc, err := c.encounter()
	if err != nil {
		return "", err
	}
	n := enc.NextRound()
	res, err := c.deps.Round.OnRoundStart(ctx, enc)
	if err != nil {
		return "", fmt.Errorf("starting round %d: %w", n, err)
	}
	if !res.Controller {
		return fmt.Sprintf("Round %d.", n), nil
	}
	return fmt.Sprintf("Round %d: %d target set(s) cleared, %d initiative(s) reset, timer started: %t.",
		n, len(res.ClearedTargets), res.ResetCombatants, res.TimerStarted), nil
}

func handleClear(_ context.Context, c *Console, parsed command.ParseResult) (string, error) {
	if len(parsed.Args) != 1 {
		return "", usage(parsed, c)
	}
	enc, err := c.encounter()
	if err != nil {
		return "", err
	}
	turn, err := enc.CombatantForActor(parsed.Args[0])
	if err != nil {
		return "", err
	}
	if err := enc.ClearInitiative(turn.CombatantID); err != nil {
		return "", err
	}
	return "Initiative cleared for " + turn.Name + ".", nil
}

// handleEnd ends the active encounter. The timer is left to the operator.
func handleEnd(_ context.Context, c *Console, _ command.ParseResult) (string, error) {
	enc, err := c.encounter()
	if err != nil {
		return "", err
	}
	c.deps.Encounters.End(enc.ID)
	c.deps.Round.Forget(enc.ID)
	cleared := c.deps.Targets.ClearAll()
	c.logger.Info("encounter ended", zap.String("encounter", enc.ID), zap.Int("rounds", enc.Round()))
	return fmt.Sprintf("Encounter ended after %d round(s); %d target set(s) cleared.", enc.Round(), len(cleared)), nil
}

func handleStart(ctx context.Context, c *Console, _ command.ParseResult) (string, error) {
	if err := c.deps.Timer.Start(ctx); err != nil {
		return "", err
	}
	return "Timer started.", nil
}

func handlePause(ctx context.Context, c *Console, _ command.ParseResult) (string, error) {
	if c.deps.Sessions.Paused() {
		return "Already paused.", nil
	}
	if err := c.deps.Timer.RequestPause(ctx, true); err != nil {
		return "", err
	}
	return "Paused at " + c.deps.Timer.Display() + ".", nil
}

func handleResume(ctx context.Context, c *Console, _ command.ParseResult) (string, error) {
	if !c.deps.Sessions.Paused() {
		return "Not paused.", nil
	}
	if err := c.deps.Timer.RequestPause(ctx, false); err != nil {
		return "", err
	}
	return "Resumed.", nil
}

func handleReset(ctx context.Context, c *Console, _ command.ParseResult) (string, error) {
	if err := c.deps.Timer.Reset(ctx); err != nil {
		return "", err
	}
	return "Timer reset.", nil
}

func handleDuration(ctx context.Context, c *Console, parsed command.ParseResult) (string, error) {
	if len(parsed.Args) == 0 {
		d, err := c.deps.Store.TimerDuration(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Round duration: %ds.", d), nil
	}
	if len(parsed.Args) != 1 {
		return "", usage(parsed, c)
	}
	seconds, err := strconv.ParseInt(parsed.Args[0], 10, 64)
	if err != nil {
		return "", usage(parsed, c)
	}
	if err := c.deps.Store.SetTimerDuration(ctx, seconds); err != nil {
		return "", err
	}
	return fmt.Sprintf("Round duration set to %ds.", seconds), nil
}

func handleUse(ctx context.Context, c *Console, parsed command.ParseResult) (string, error) {
	if len(parsed.Args) != 2 {
		return "", usage(parsed, c)
	}
	enc, err := c.encounter()
	if err != nil {
		return "", err
	}
	act, err := c.lookupAction(parsed.Args[1])
	if err != nil {
		return "", err
	}
	out, err := c.deps.Classifier.Use(ctx, enc, parsed.Args[0], act)
	if err != nil {
		return "", err
	}
	return describe(out), nil
}

func handleAttack(ctx context.Context, c *Console, parsed command.ParseResult) (string, error) {
	if len(parsed.Args) < 3 || len(parsed.Args) > 4 {
		return "", usage(parsed, c)
	}
	enc, err := c.encounter()
	if err != nil {
		return "", err
	}
	actorID := parsed.Args[0]
	act, err := c.lookupAction(parsed.Args[1])
	if err != nil {
		return "", err
	}
	total, err := strconv.Atoi(parsed.Args[2])
	if err != nil {
		return "", usage(parsed, c)
	}
	answer := action.Affirm
	if len(parsed.Args) == 4 {
		switch strings.ToLower(parsed.Args[3]) {
		case "affirm", "yes":
			answer = action.Affirm
		case "decline", "no":
			answer = action.Decline
		case "cancel":
			answer = action.Cancel
		default:
			return "", usage(parsed, c)
		}
	}
	prompt := action.PrompterFunc(func(context.Context, action.Action) (action.Answer, error) {
		return answer, nil
	})
	if err := c.deps.Classifier.ConfirmAttack(ctx, enc, actorID, act, prompt); err != nil {
		if errors.Is(err, action.ErrCancelled) {
			return "Attack cancelled.", nil
		}
		return "", err
	}
	out, err := c.deps.Classifier.AttackRolled(ctx, enc, actorID, act, action.AttackRoll{Total: total})
	if err != nil {
		return "", err
	}
	return describe(out), nil
}

func handleTarget(_ context.Context, c *Console, parsed command.ParseResult) (string, error) {
	if len(parsed.Args) != 2 {
		return "", usage(parsed, c)
	}
	on, ok := command.ParseToggle(parsed.Args[1])
	if !ok {
		return "", usage(parsed, c)
	}
	changed := c.deps.Targets.OnTargetToggled(c.deps.Participant, parsed.Args[0], on)
	return fmt.Sprintf("%d token(s) updated.", len(changed)), nil
}

func handleHover(_ context.Context, c *Console, parsed command.ParseResult) (string, error) {
	if len(parsed.Args) != 2 {
		return "", usage(parsed, c)
	}
	on, ok := command.ParseToggle(parsed.Args[1])
	if !ok {
		return "", usage(parsed, c)
	}
	n := c.deps.Targets.OnHover(parsed.Args[0], on)
	return fmt.Sprintf("%d additional target(s).", n), nil
}

func handleTracker(_ context.Context, c *Console, _ command.ParseResult) (string, error) {
	enc, err := c.encounter()
	if err != nil {
		return "", err
	}
	return text.RenderTracker(enc.Round(), c.deps.Timer.Display(), enc.Turns(), text.Options{Color: c.deps.Color}), nil
}

func handleWho(_ context.Context, c *Console, _ command.ParseResult) (string, error) {
	role := "participant"
	if c.deps.IsController() {
		role = "controller"
	}
	state := "running"
	if c.deps.Sessions.Paused() {
		state = "paused"
	}
	return fmt.Sprintf("%s (%s), session %s, %d active locally.",
		c.deps.Participant, role, state, c.deps.Sessions.ActiveCount()), nil
}

func handleHelp(_ context.Context, c *Console, _ command.ParseResult) (string, error) {
	return c.registry.Help(), nil
}

func handleQuit(context.Context, *Console, command.ParseResult) (string, error) {
	return "Goodbye.", ErrQuit
}

func describe(out action.Outcome) string {
	if !out.Committed() {
		return "No initiative change (" + string(out.Skipped) + ")."
	}
	return fmt.Sprintf("%s initiative %s (%s).", out.CombatantID, out.Score.Display(), out.Score.Category)
}
