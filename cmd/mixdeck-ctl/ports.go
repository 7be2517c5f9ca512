package main

import (
	"fmt"
	"io"

	gomidi "gitlab.com/gomidi/midi/v2"
	"go.bug.st/serial"
)

// listPorts prints the names board.serial.port and board.midi.*_port accept.
func listPorts(w io.Writer) error {
	ports, err := serial.GetPortsList()
	if err != nil {
		return fmt.Errorf("list serial ports: %w", err)
	}

	fmt.Fprintln(w, "serial:")
	if len(ports) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, p := range ports {
		fmt.Fprintf(w, "  %s\n", p)
	}

	// Without a registered driver (cgo disabled) both lists are empty.
	fmt.Fprintln(w, "midi in:")
	ins := gomidi.GetInPorts()
	if len(ins) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, in := range ins {
		fmt.Fprintf(w, "  %d: %s\n", in.Number(), in.String())
	}

	fmt.Fprintln(w, "midi out:")
	outs := gomidi.GetOutPorts()
	if len(outs) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, out := range outs {
		fmt.Fprintf(w, "  %d: %s\n", out.Number(), out.String())
	}
	return nil
}
