package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startIPC runs the server on a temp socket and waits until it accepts.
func startIPC(t *testing.T, events chan Event) string {
	t.Helper()

	// Unix socket paths are length-limited; keep it short.
	dir, err := os.MkdirTemp("", "mixdeck")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	socketPath := filepath.Join(dir, "ipc.sock")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runIPCServer(ctx, socketPath, events, discardLogger()) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Error("IPC server did not stop")
		}
	})

	waitUntil(t, time.Second, func() bool {
		conn, err := net.Dial("unix", socketPath)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, "IPC server not listening")
	return socketPath
}

func TestIPC_QueuesEvents(t *testing.T) {
	events := make(chan Event, 4)
	socketPath := startIPC(t, events)

	require.NoError(t, SendIPCEvent(socketPath, SetMute{Target: 0, Muted: true}))
	require.NoError(t, SendIPCEvent(socketPath, SelectRoute{Route: "headphones"}))

	assert.Equal(t, SetMute{Target: 0, Muted: true}, <-events)
	assert.Equal(t, SelectRoute{Route: "headphones"}, <-events)
}

func TestIPC_ErrorResponses(t *testing.T) {
	events := make(chan Event, 1)
	socketPath := startIPC(t, events)

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()
	r := bufio.NewReader(conn)

	roundTrip := func(line string) IPCResponse {
		t.Helper()
		_, err := fmt.Fprintln(conn, line)
		require.NoError(t, err)
		raw, err := r.ReadBytes('\n')
		require.NoError(t, err)
		var resp IPCResponse
		require.NoError(t, json.Unmarshal(raw, &resp))
		return resp
	}

	resp := roundTrip(`{"type":"warp"}`)
	assert.Equal(t, "error", resp.Status)
	assert.Contains(t, resp.Error, "unknown event type")

	assert.Equal(t, "ok", roundTrip(`{"type":"press_switch"}`).Status)

	// Nobody drains the single-slot queue.
	resp = roundTrip(`{"type":"force_report"}`)
	assert.Equal(t, IPCResponse{Status: "error", Error: "event queue full"}, resp)
}
