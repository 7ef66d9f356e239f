// Package replay drives an encounter script through the initiative components
// with in-memory backends and a manual clock.
package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/action-initiative/internal/chatlog"
	"github.com/cory-johannsen/action-initiative/internal/game/action"
	"github.com/cory-johannsen/action-initiative/internal/game/combat"
	"github.com/cory-johannsen/action-initiative/internal/game/content"
	"github.com/cory-johannsen/action-initiative/internal/game/dice"
	"github.com/cory-johannsen/action-initiative/internal/game/round"
	"github.com/cory-johannsen/action-initiative/internal/game/session"
	"github.com/cory-johannsen/action-initiative/internal/game/targeting"
	"github.com/cory-johannsen/action-initiative/internal/render"
	"github.com/cory-johannsen/action-initiative/internal/settings"
	"github.com/cory-johannsen/action-initiative/internal/timersync"
	"github.com/cory-johannsen/action-initiative/internal/transport/bus"
)

// Epoch is the manual clock start used by every replay.
var Epoch = time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)

// Options tunes a replay.
type Options struct {
	// AutoStart restarts the round timer at every round start.
	AutoStart bool
	// SettleDelay and ResumeDelay are advanced on the manual clock.
	SettleDelay time.Duration
	ResumeDelay time.Duration
	// Sink additionally receives every render trigger; may be nil.
	Sink render.Sink
}

// DefaultOptions mirrors the service defaults.
func DefaultOptions() Options {
	def := timersync.DefaultOptions()
	return Options{AutoStart: true, SettleDelay: def.SettleDelay, ResumeDelay: def.ResumeDelay}
}

// Frame is the observable state after one step.
type Frame struct {
	Index int
	Step  content.Step
	Round int
	// Turns is the ordered tracker.
	Turns []combat.Turn
	// Timers holds each joined participant's timer text.
	Timers map[string]string
	// Controller is the elected participant, empty when none.
	Controller string
	Paused     bool
	// Note describes what the step did, e.g. a skip reason.
	Note string
}

type view struct {
	id         string
	sync       *timersync.Sync
	round      *round.Controller
	unregister func()
}

// Runner replays one script. It is not safe for concurrent use.
type Runner struct {
	script *content.Script
	opts   Options
	logger *zap.Logger

	clock      *timersync.ManualClock
	store      *settings.Store
	sessions   *session.Manager
	bus        *bus.Bus
	chat       *chatlog.Memory
	enc        *combat.Encounter
	classifier *action.Classifier
	targets    *targeting.Tracker
	sink       render.Sink

	views map[string]*view
	order []string
}

// New builds a Runner for script.
//
// Precondition: script must be validated.
// Postcondition: No participant has joined yet.
func New(script *content.Script, opts Options, logger *zap.Logger) (*Runner, error) {
	sc, enc, err := script.Build()
	if err != nil {
		return nil, fmt.Errorf("building encounter: %w", err)
	}
	var src dice.Source = dice.NewCryptoSource()
	if len(script.Dice) > 0 {
		src = dice.NewFixedSource(script.Dice...)
	}
	sink := render.Sink(render.Nop{})
	if opts.Sink != nil {
		sink = opts.Sink
	}
	duration := script.TimerDuration
	if duration == 0 {
		duration = settings.DefaultTimerDuration
	}

	r := &Runner{
		script:   script,
		opts:     opts,
		logger:   logger,
		clock:    timersync.NewManualClock(Epoch),
		store:    settings.NewStore(settings.NewMemory(), logger, duration),
		sessions: session.NewManager(),
		bus:      bus.New(logger),
		chat:     chatlog.NewMemory(),
		enc:      enc,
		sink:     sink,
		views:    make(map[string]*view),
	}
	r.classifier = action.NewClassifier(
		dice.NewLoggedRoller(src, logger), r.chat, sink, action.NewGate(), script.DexTiebreaker, logger,
	)
	r.targets = targeting.NewTracker(sc, r.sessions.IsOwner, sink, logger)
	return r, nil
}

// Encounter returns the encounter being replayed.
func (r *Runner) Encounter() *combat.Encounter { return r.enc }

// Messages returns the chat entries published so far.
func (r *Runner) Messages() []chatlog.Message { return r.chat.All() }

// Run executes every step in order.
//
// Postcondition: Returns one frame per executed step; stops at the first error.
func (r *Runner) Run(ctx context.Context) ([]Frame, error) {
	defer r.Close()
	frames := make([]Frame, 0, len(r.script.Steps))
	for i, st := range r.script.Steps {
		f, err := r.Step(ctx, i, st)
		if err != nil {
			return frames, fmt.Errorf("step %d (%s): %w", i+1, st.Op, err)
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// Step executes st and returns the resulting frame.
func (r *Runner) Step(ctx context.Context, index int, st content.Step) (Frame, error) {
	note, err := r.apply(ctx, st)
	if err != nil {
		return Frame{}, err
	}
	if err := r.tickAll(ctx); err != nil {
		return Frame{}, err
	}
	return r.frame(index, st, note), nil
}

// Close stops every participant's timer.
func (r *Runner) Close() {
	for _, id := range r.order {
		if v, ok := r.views[id]; ok {
			v.sync.Close()
			v.unregister()
		}
	}
}

func (r *Runner) apply(ctx context.Context, st content.Step) (string, error) {
	switch st.Op {
	case content.OpJoin:
		return r.join(ctx, st.Participant)
	case content.OpLeave:
		return r.leave(st.Participant)
	case content.OpRound:
		return r.startRound(ctx)
	case content.OpStart:
		ctl, ok := r.controllerView()
		if !ok {
			return "no controller", nil
		}
		if err := ctl.sync.Start(ctx); err != nil {
			if errors.Is(err, timersync.ErrPaused) {
				return err.Error(), nil
			}
			return "", err
		}
		return "timer started", nil
	case content.OpUse:
		out, err := r.classifier.Use(ctx, r.enc, st.Actor, r.script.Actions[st.Action])
		if err != nil {
			return "", err
		}
		return describe(out), nil
	case content.OpConfirmAttack:
		answer := st.Answer
		p := action.PrompterFunc(func(context.Context, action.Action) (action.Answer, error) {
			return answer, nil
		})
		err := r.classifier.ConfirmAttack(ctx, r.enc, st.Actor, r.script.Actions[st.Action], p)
		if errors.Is(err, action.ErrCancelled) {
			return "attack cancelled", nil
		}
		return "", err
	case content.OpAttackRolled:
		out, err := r.classifier.AttackRolled(ctx, r.enc, st.Actor, r.script.Actions[st.Action], action.AttackRoll{Total: st.Total})
		if err != nil {
			return "", err
		}
		return describe(out), nil
	case content.OpTarget:
		changed := r.targets.OnTargetToggled(st.Participant, st.Target, st.On)
		return fmt.Sprintf("%d token(s) changed", len(changed)), nil
	case content.OpHover:
		n := r.targets.OnHover(st.Token, st.On)
		return fmt.Sprintf("%d additional target(s) highlighted", n), nil
	case content.OpAdvance:
		r.clock.Advance(st.Advance)
		return "", nil
	case content.OpPause:
		return "", r.bus.BroadcastPause(ctx, true)
	case content.OpResume:
		return "", r.bus.BroadcastPause(ctx, false)
	case content.OpSetDuration:
		return "", r.store.SetTimerDuration(ctx, st.Duration)
	}
	return "", fmt.Errorf("unknown op %q", st.Op)
}

func (r *Runner) join(ctx context.Context, id string) (string, error) {
	var p content.Participant
	for _, sp := range r.script.Participants {
		if sp.ID == id {
			p = sp
		}
	}
	if _, err := r.sessions.Join(p.ID, p.Name, p.Owner); err != nil {
		return "", err
	}
	opts := timersync.Options{
		// Ticks are driven by the runner after every step.
		TickInterval: time.Hour,
		SettleDelay:  r.opts.SettleDelay,
		ResumeDelay:  r.opts.ResumeDelay,
	}
	isController := r.sessions.ControllerFunc(id)
	s := timersync.New(r.store, r.bus, isController, r.sessions.Paused, r.sink, r.clock, opts, r.logger.With(zap.String("participant", id)))
	v := &view{
		id:         id,
		sync:       s,
		round:      round.NewController(isController, s, r.sink, r.opts.AutoStart, r.logger),
		unregister: r.bus.Register(id, s.Signals(r.sessions)),
	}
	r.views[id] = v
	r.order = append(r.order, id)
	if err := s.Resync(ctx); err != nil {
		return "", err
	}
	return "joined", nil
}

func (r *Runner) leave(id string) (string, error) {
	if err := r.sessions.Leave(id); err != nil {
		return "", err
	}
	if v, ok := r.views[id]; ok {
		v.sync.Close()
		v.unregister()
		delete(r.views, id)
	}
	return "left", nil
}

func (r *Runner) startRound(ctx context.Context) (string, error) {
	n := r.enc.NextRound()
	// Every participant observes the round change; only the controller acts.
	var note string
	err := r.eachView(func(v *view) error {
		res, err := v.round.OnRoundStart(ctx, r.enc)
		if err != nil {
			return err
		}
		if res.Controller && !res.Duplicate {
			note = fmt.Sprintf("round %d: %d target set(s) cleared, %d initiative(s) reset, timer started=%t",
				n, len(res.ClearedTargets), res.ResetCombatants, res.TimerStarted)
		}
		return nil
	})
	return note, err
}

func (r *Runner) controllerView() (*view, bool) {
	id, ok := r.sessions.Controller()
	if !ok {
		return nil, false
	}
	v, ok := r.views[id]
	return v, ok
}

func (r *Runner) eachView(fn func(v *view) error) error {
	for _, id := range r.order {
		v, ok := r.views[id]
		if !ok {
			continue
		}
		if err := fn(v); err != nil {
			return fmt.Errorf("participant %s: %w", id, err)
		}
	}
	return nil
}

func (r *Runner) tickAll(ctx context.Context) error {
	return r.eachView(func(v *view) error {
		if !v.sync.Running() {
			return nil
		}
		_, err := v.sync.Tick(ctx)
		return err
	})
}

func (r *Runner) frame(index int, st content.Step, note string) Frame {
	f := Frame{
		Index:  index,
		Step:   st,
		Round:  r.enc.Round(),
		Turns:  r.enc.Turns(),
		Timers: make(map[string]string, len(r.views)),
		Paused: r.sessions.Paused(),
		Note:   note,
	}
	f.Controller, _ = r.sessions.Controller()
	for id, v := range r.views {
		f.Timers[id] = v.sync.Display()
	}
	return f
}

func describe(out action.Outcome) string {
	if !out.Committed() {
		return "skipped: " + string(out.Skipped)
	}
	return fmt.Sprintf("%s -> %s (%s)", out.CombatantID, out.Score.Display(), out.Score.Category)
}
