package main

import (
	"fmt"
	"time"

	"mixdeck"
)

// ==============================
// Commands (side effects)
// ==============================

// Command represents a side effect to be executed by the control loop:
// a datagram, an LED write, a blocking delay or a forced sample.
type Command interface {
	commandMarker()
	String() string
}

// CmdSend ships one protocol message to the destination.
type CmdSend struct {
	Message mixdeck.Message
}

func (CmdSend) commandMarker() {}
func (c CmdSend) String() string {
	return fmt.Sprintf("CmdSend(%q)", c.Message.String())
}

// CmdSetLED drives an LED pin.
type CmdSetLED struct {
	Pin  int
	High bool
}

func (CmdSetLED) commandMarker() {}
func (c CmdSetLED) String() string {
	return fmt.Sprintf("CmdSetLED(pin=%d, high=%v)", c.Pin, c.High)
}

// CmdSettle blocks the loop for Duration.
type CmdSettle struct {
	Duration time.Duration
}

func (CmdSettle) commandMarker()   {}
func (c CmdSettle) String() string { return fmt.Sprintf("CmdSettle(%s)", c.Duration) }

// CmdForceReport samples every slider regardless of threshold and rate limit
// and feeds the result back as a forced SliderLevels event.
type CmdForceReport struct{}

func (CmdForceReport) commandMarker() {}
func (CmdForceReport) String() string { return "CmdForceReport()" }

// CmdPublishStateSnapshot delivers a reducer-produced snapshot to a requester.
type CmdPublishStateSnapshot struct {
	Reply    chan<- StateSnapshot
	Snapshot StateSnapshot
}

func (CmdPublishStateSnapshot) commandMarker() {}
func (CmdPublishStateSnapshot) String() string { return "CmdPublishStateSnapshot()" }
