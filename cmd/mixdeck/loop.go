package main

import (
	"context"
	"log/slog"
	"time"
)

// ============================================================================
// Control Loop
// ============================================================================
//
// One goroutine owns the mixer state and runs an unbounded cooperative cycle:
//
//	mute buttons -> sliders -> route switch -> pending IPC events -> cycle delay
//
// Every poll result goes through the reducer; its commands are executed here
// in order and may feed events back (forced reports). Settle delays block the
// whole loop, polling included.
//
// ============================================================================

// loopOptions wires the control loop to its collaborators.
type loopOptions struct {
	Mixer     MixerConfig
	SwitchPin int

	Board   Board
	Sampler *Sampler
	Sender  Sender
	Clock   Clock

	CycleDelay time.Duration

	// Events from IPC/WS. May be nil.
	Events <-chan Event
	// Broadcasts for the state stream. May be nil; sends never block.
	Broadcasts chan<- StateBroadcast

	Logger *slog.Logger
}

type controlLoop struct {
	opts    loopOptions
	logger  *slog.Logger
	state   *MixerState
	buttons *Debouncer
	sw      *Debouncer
	deps    effectDeps

	eventQueue []Event
	cmdQueue   []Command
}

func newControlLoop(opts loopOptions) *controlLoop {
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = discardLogger()
	}
	return &controlLoop{
		opts:    opts,
		logger:  logger,
		state:   NewMixerState(opts.Mixer),
		buttons: NewDebouncer(len(opts.Mixer.Targets)),
		sw:      NewDebouncer(1),
		deps: effectDeps{
			sender:  opts.Sender,
			board:   opts.Board,
			clock:   opts.Clock,
			sampler: opts.Sampler,
		},
	}
}

// run boots the surface and polls until ctx is canceled.
func (l *controlLoop) run(ctx context.Context) error {
	l.boot(ctx)

	for {
		if ctx.Err() != nil {
			l.logger.Info("control loop stopping (context canceled)")
			return nil
		}
		l.pass(ctx)
		if err := l.opts.Clock.Sleep(ctx, l.opts.CycleDelay); err != nil && ctx.Err() != nil {
			l.logger.Info("control loop stopping (context canceled)")
			return nil
		}
	}
}

// boot emits LED setup, "set <initial route>", the boot delay and one forced
// full slider report. Pins are configured by the caller before the link wait.
func (l *controlLoop) boot(ctx context.Context) {
	l.dispatch(ctx, Boot{})
}

// pass performs one polling cycle without the trailing delay.
func (l *controlLoop) pass(ctx context.Context) {
	board := l.opts.Board

	for i, t := range l.opts.Mixer.Targets {
		active := board.DigitalRead(t.ButtonPin) == LOW
		if l.buttons.Poll(i, active) == Pressed {
			l.logger.Debug("button pressed", "target", i, "pin", t.ButtonPin)
			l.dispatch(ctx, ButtonPressed{Target: i})
		}
	}

	if levels, changed := l.opts.Sampler.Sample(false); changed {
		l.dispatch(ctx, SliderLevels{Levels: levels})
	}

	active := board.DigitalRead(l.opts.SwitchPin) == LOW
	if l.sw.Poll(0, active) == Pressed {
		l.logger.Debug("switch pressed", "pin", l.opts.SwitchPin)
		l.dispatch(ctx, SwitchPressed{})
	}

	l.drainEvents(ctx)
}

// drainEvents handles queued remote events without blocking.
func (l *controlLoop) drainEvents(ctx context.Context) {
	if l.opts.Events == nil {
		return
	}
	for {
		select {
		case ev, ok := <-l.opts.Events:
			if !ok {
				l.opts.Events = nil
				return
			}
			l.handleRemote(ctx, ev)
		default:
			return
		}
	}
}

// simInput is implemented by boards whose inputs can be driven remotely.
type simInput interface {
	SetAnalog(pin, raw int)
	SetContact(pin int, active bool)
}

func (l *controlLoop) handleRemote(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case SimAnalog:
		if sim, ok := l.opts.Board.(simInput); ok {
			sim.SetAnalog(e.Pin, e.Value)
		} else {
			l.logger.Warn("sim_analog ignored: board is not simulated", "pin", e.Pin)
		}
	case SimDigital:
		if sim, ok := l.opts.Board.(simInput); ok {
			sim.SetContact(e.Pin, e.Active)
		} else {
			l.logger.Warn("sim_digital ignored: board is not simulated", "pin", e.Pin)
		}
	default:
		l.dispatch(ctx, ev)
	}
}

// dispatch reduces ev and runs every resulting command, including those
// triggered by follow-up events, before returning.
func (l *controlLoop) dispatch(ctx context.Context, ev Event) {
	l.eventQueue = append(l.eventQueue, ev)
	l.flushEvents()
	l.flushCommands(ctx)
}

// flushEvents reduces all queued events, enqueuing resulting commands.
func (l *controlLoop) flushEvents() {
	for len(l.eventQueue) > 0 {
		ev := l.eventQueue[0]
		l.eventQueue = l.eventQueue[1:]

		rr := Reduce(l.state, ev, l.opts.Mixer)
		if rr.State != nil {
			l.state = rr.State
		}
		l.cmdQueue = append(l.cmdQueue, rr.Commands...)
		l.publish(rr.Broadcasts)
	}
}

// flushCommands executes queued commands in order. Observations are reduced
// right away so their commands run before the rest of the queue. Once ctx is
// done the rest of the queue is dropped.
func (l *controlLoop) flushCommands(ctx context.Context) {
	for len(l.cmdQueue) > 0 {
		if err := ctx.Err(); err != nil {
			l.logger.Debug("command queue dropped", "pending", len(l.cmdQueue), "error", err)
			l.cmdQueue = nil
			return
		}
		cmd := l.cmdQueue[0]
		l.cmdQueue = l.cmdQueue[1:]

		var follow []Event
		runEffect(ctx, l.deps, cmd, l.logger, func(obs Event) {
			follow = append(follow, obs)
		})
		if len(follow) == 0 {
			continue
		}

		// Follow-up commands go ahead of what is still queued.
		rest := l.cmdQueue
		l.cmdQueue = nil
		l.eventQueue = append(l.eventQueue, follow...)
		l.flushEvents()
		l.cmdQueue = append(l.cmdQueue, rest...)
	}
}

func (l *controlLoop) publish(bs []StateBroadcast) {
	if l.opts.Broadcasts == nil {
		return
	}
	for _, b := range bs {
		select {
		case l.opts.Broadcasts <- b:
		default:
			l.logger.Debug("state broadcast dropped (queue full)")
		}
	}
}

// snapshot returns the current state. Only valid on the loop goroutine or
// after run has returned.
func (l *controlLoop) snapshot() StateSnapshot {
	return l.state.Snapshot(l.opts.Mixer)
}
