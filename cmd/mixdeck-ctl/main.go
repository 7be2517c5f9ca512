package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
)

// ============================================================================
// mixdeck-ctl - Command-line IPC Client
// ============================================================================
// Sends events to the mixdeck daemon over its Unix socket and lists the
// serial and MIDI ports a board driver can use.
//
// Usage:
//   mixdeck-ctl press 0
//   mixdeck-ctl mute 0
//   mixdeck-ctl route headphones
//   mixdeck-ctl sim-analog 34 512
//   mixdeck-ctl ports
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/mixdeck.sock)
// ============================================================================

// Event payloads (duplicated from the daemon for a standalone binary)
type pressButton struct {
	Target int `json:"target"`
}

type setMute struct {
	Target int  `json:"target"`
	Muted  bool `json:"muted"`
}

type selectRoute struct {
	Route string `json:"route"`
}

type simAnalog struct {
	Pin   int `json:"pin"`
	Value int `json:"value"`
}

type simDigital struct {
	Pin    int  `json:"pin"`
	Active bool `json:"active"`
}

// eventEnvelope wraps events for JSON
type eventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ipcResponse represents the daemon's response
type ipcResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func main() {
	socketPath := "/tmp/mixdeck.sock"

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	var (
		typ  string
		data any
	)

	switch args[0] {
	case "press", "press-button":
		typ, data = "press_button", pressButton{Target: optionalInt(args, 1, 0)}

	case "switch", "press-switch":
		typ = "press_switch"

	case "force-report", "report":
		typ = "force_report"

	case "mute", "unmute":
		typ, data = "set_mute", setMute{Target: optionalInt(args, 1, 0), Muted: args[0] == "mute"}

	case "route", "select-route":
		if len(args) < 2 {
			fail("route requires a name (e.g. speakers, headphones, primary, secondary)")
		}
		typ, data = "select_route", selectRoute{Route: args[1]}

	case "sim-analog":
		if len(args) < 3 {
			fail("sim-analog requires <pin> <value>")
		}
		typ, data = "sim_analog", simAnalog{Pin: requireInt(args[1], "pin"), Value: requireInt(args[2], "value")}

	case "sim-digital":
		if len(args) < 3 {
			fail("sim-digital requires <pin> <0|1>")
		}
		typ, data = "sim_digital", simDigital{Pin: requireInt(args[1], "pin"), Active: requireInt(args[2], "state") != 0}

	case "ports":
		if err := listPorts(os.Stdout); err != nil {
			fail(err.Error())
		}
		return

	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "error: unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}

	if err := sendEvent(socketPath, typ, data); err != nil {
		fail(err.Error())
	}

	fmt.Println("ok")
}

func fail(msg string) {
	fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	os.Exit(1)
}

func optionalInt(args []string, i, def int) int {
	if len(args) <= i {
		return def
	}
	return requireInt(args[i], "target")
}

func requireInt(s, what string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		fail(fmt.Sprintf("invalid %s: %q", what, s))
	}
	return v
}

// marshalEvent builds one line of the IPC protocol.
func marshalEvent(typ string, data any) ([]byte, error) {
	env := eventEnvelope{Type: typ}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", typ, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

func sendEvent(socketPath, typ string, data any) error {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	line, err := marshalEvent(typ, data)
	if err != nil {
		return err
	}

	// Line-delimited JSON
	if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
		return fmt.Errorf("send event: %w", err)
	}

	var response ipcResponse
	if err := json.NewDecoder(conn).Decode(&response); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if response.Status == "error" {
		return fmt.Errorf("daemon error: %s", response.Error)
	}
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `mixdeck-ctl - Control the mixdeck daemon via IPC

Usage:
  mixdeck-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: /tmp/mixdeck.sock)

Commands:
  press [target]              Virtual mute-button press (default target 0)
  switch                      Virtual route-switch press
  force-report                Send a full slider report now
  mute [target]               Mute a target
  unmute [target]             Unmute a target
  route <name>                Select an output route by name or primary/secondary
  sim-analog <pin> <value>    Set a raw analog reading (sim board)
  sim-digital <pin> <0|1>     Close (1) or open (0) a contact (sim board)
  ports                       List serial and MIDI ports for board config
  help, -h, --help            Show this help message

Examples:
  mixdeck-ctl mute
  mixdeck-ctl route headphones
  mixdeck-ctl -socket /run/mixdeck.sock sim-analog 34 1023
`)
}
