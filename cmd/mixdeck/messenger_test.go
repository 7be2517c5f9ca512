package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mixdeck"
)

func listenUDP(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readDatagram(t *testing.T, conn *net.UDPConn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 512)
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestMessenger_SendsToControlPort(t *testing.T) {
	control := listenUDP(t)

	m, err := DialMessenger(context.Background(), DestinationConfig{
		Host:         "127.0.0.1",
		ControlPort:  control.LocalAddr().(*net.UDPAddr).Port,
		SliderPrefix: mixdeck.DefaultSliderPrefix,
	}, nil)
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Send(mixdeck.Set("speakers")))
	require.NoError(t, m.Send(mixdeck.Sliders([]int{50, 0})))

	assert.Equal(t, "set speakers", readDatagram(t, control))
	assert.Equal(t, "sliders 50|0", readDatagram(t, control))
}

func TestMessenger_SplitsSliderPort(t *testing.T) {
	control := listenUDP(t)
	sliders := listenUDP(t)

	m, err := DialMessenger(context.Background(), DestinationConfig{
		Host:         "127.0.0.1",
		ControlPort:  control.LocalAddr().(*net.UDPAddr).Port,
		SliderPort:   sliders.LocalAddr().(*net.UDPAddr).Port,
		SliderPrefix: "",
	}, nil)
	require.NoError(t, err)

	require.NoError(t, m.Send(mixdeck.Sliders([]int{1023, 7})))
	require.NoError(t, m.Send(mixdeck.Mute("master")))

	assert.Equal(t, "1023|7", readDatagram(t, sliders))
	assert.Equal(t, "mute master", readDatagram(t, control))

	require.NoError(t, m.Close())
	assert.Error(t, m.Send(mixdeck.Switch()))
}
