package main

import (
	"context"
	"log/slog"
	"time"

	"mixdeck"
)

// Sender ships one protocol message. Implemented by Messenger.
type Sender interface {
	Send(m mixdeck.Message) error
}

// effectDeps are the external systems commands act on.
type effectDeps struct {
	sender  Sender
	board   Board
	clock   Clock
	sampler *Sampler
}

// runEffect executes a single reducer-emitted Command and reports follow-up
// events via onEvent.
//
// Rules:
//   - This function is allowed to perform I/O and to block (settle delays).
//   - It never calls Reduce; the loop sequences Reduce -> Commands -> runEffect -> Events.
//   - Send failures are logged and dropped; the reducer is told via CommandFailed.
func runEffect(
	ctx context.Context,
	deps effectDeps,
	cmd Command,
	logger *slog.Logger,
	onEvent func(Event),
) {
	if onEvent == nil {
		onEvent = func(Event) {}
	}

	now := deps.clock.Now()

	switch c := cmd.(type) {
	case CmdSend:
		if deps.sender == nil {
			onEvent(CommandFailed{Command: cmd, Err: errNoSender{}, At: now})
			return
		}
		if err := deps.sender.Send(c.Message); err != nil {
			logger.Warn("send failed", "message", c.Message.String(), "error", err)
			onEvent(CommandFailed{Command: cmd, Err: err, At: now})
		}

	case CmdSetLED:
		if deps.board == nil {
			onEvent(CommandFailed{Command: cmd, Err: errNoBoard{}, At: now})
			return
		}
		if err := deps.board.DigitalWrite(c.Pin, c.High); err != nil {
			logger.Warn("led write failed", "pin", c.Pin, "high", c.High, "error", err)
			onEvent(CommandFailed{Command: cmd, Err: err, At: now})
			return
		}
		logger.Debug("led", "pin", c.Pin, "high", c.High)

	case CmdSettle:
		if err := deps.clock.Sleep(ctx, c.Duration); err != nil {
			logger.Info("settle interrupted", "duration", c.Duration, "error", err)
		}

	case CmdForceReport:
		if deps.sampler == nil {
			onEvent(CommandFailed{Command: cmd, Err: errNoBoard{}, At: now})
			return
		}
		levels, _ := deps.sampler.Sample(true)
		onEvent(SliderLevels{Levels: levels, Forced: true})

	case CmdPublishStateSnapshot:
		if c.Reply == nil {
			logger.Warn("state snapshot requested with nil reply channel")
			return
		}
		// Never block the loop on a slow requester.
		select {
		case c.Reply <- c.Snapshot:
		default:
			logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}

	default:
		logger.Warn("unknown command type", "command", cmd.String())
		onEvent(CommandFailed{Command: cmd, Err: errUnknownCommand{cmd: cmd}, At: now})
	}
}

// errNoSender indicates a send was requested before the link was up.
type errNoSender struct{}

func (errNoSender) Error() string { return "no messenger" }

// errNoBoard indicates a board operation without a board.
type errNoBoard struct{}

func (errNoBoard) Error() string { return "no board" }

type errUnknownCommand struct {
	cmd Command
}

func (e errUnknownCommand) Error() string { return "unknown command: " + e.cmd.String() }

// Clock abstracts time for the control loop so delays can be faked in tests.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
