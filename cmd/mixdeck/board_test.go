package main

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomidi "gitlab.com/gomidi/midi/v2"
)

func TestMemBoard(t *testing.T) {
	b := NewMemBoard()
	require.NoError(t, b.Configure(PinSetup{Inputs: []int{14}, Outputs: []int{12}}))

	assert.Equal(t, HIGH, b.DigitalRead(14), "pull-up input reads HIGH while open")
	high, ok := b.Output(12)
	assert.True(t, ok)
	assert.Equal(t, LOW, high)

	b.SetContact(14, true)
	assert.Equal(t, LOW, b.DigitalRead(14))

	b.SetAnalog(34, 700)
	assert.Equal(t, 700, b.AnalogRead(34))
	assert.Equal(t, 0, b.AnalogRead(35))

	require.NoError(t, b.DigitalWrite(12, HIGH))
	high, _ = b.Output(12)
	assert.Equal(t, HIGH, high)
	assert.Equal(t, []int{12}, b.Configured().Outputs)
}

func TestOpenBoard_SimAndUnknown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Board.Driver = BoardSim
	b, err := openBoard(&cfg, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &MemBoard{}, b)

	cfg.Board.Driver = "gpio"
	_, err = openBoard(&cfg, discardLogger())
	assert.Error(t, err)
}

func TestSerialBoard_FramesAndLEDs(t *testing.T) {
	host, device := net.Pipe()
	b := newSerialBoard(host, discardLogger())

	lines := make(chan string, 4)
	go func() {
		sc := bufio.NewScanner(device)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	_, err := device.Write([]byte("esp32 boot\r\nA34=512 A35=0 D14=0 D5=1\r\n"))
	require.NoError(t, err)

	waitUntil(t, time.Second, func() bool { return b.Frames() == 1 }, "frame not parsed")
	assert.Equal(t, 512, b.AnalogRead(34))
	assert.Equal(t, 0, b.AnalogRead(35))
	assert.Equal(t, LOW, b.DigitalRead(14))
	assert.Equal(t, HIGH, b.DigitalRead(5))
	assert.Equal(t, HIGH, b.DigitalRead(99), "unseen input reads open")

	require.NoError(t, b.DigitalWrite(12, LOW))
	select {
	case line := <-lines:
		assert.Equal(t, "L12=0", line)
	case <-time.After(time.Second):
		t.Fatal("no LED line written")
	}

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.Error(t, b.DigitalWrite(12, HIGH))
	device.Close()
}

func TestMIDIBoard_MapsMessages(t *testing.T) {
	var sent []gomidi.Message
	cfg := DefaultConfig().Board.MIDI
	b := newMIDIBoard(cfg, 1023, func(m gomidi.Message) error {
		sent = append(sent, m)
		return nil
	}, nil)

	b.handleMessage(gomidi.ControlChange(0, 1, 127))
	assert.Equal(t, 1023, b.AnalogRead(34))
	b.handleMessage(gomidi.ControlChange(0, 2, 64))
	assert.Equal(t, 64*1023/127, b.AnalogRead(35))

	// Other channels are ignored.
	b.handleMessage(gomidi.ControlChange(3, 1, 0))
	assert.Equal(t, 1023, b.AnalogRead(34))

	b.handleMessage(gomidi.NoteOn(0, 36, 100))
	assert.Equal(t, LOW, b.DigitalRead(14))
	b.handleMessage(gomidi.NoteOff(0, 36))
	assert.Equal(t, HIGH, b.DigitalRead(14))

	b.handleMessage(gomidi.NoteOn(0, 37, 90))
	assert.Equal(t, LOW, b.DigitalRead(5))
	b.handleMessage(gomidi.NoteOn(0, 37, 0))
	assert.Equal(t, HIGH, b.DigitalRead(5))

	require.NoError(t, b.DigitalWrite(12, HIGH))
	require.NoError(t, b.DigitalWrite(19, LOW))
	require.NoError(t, b.DigitalWrite(40, HIGH)) // no note bound
	assert.Equal(t, []gomidi.Message{
		gomidi.NoteOn(0, 36, 127),
		gomidi.NoteOn(0, 39, 0),
	}, sent)

	require.NoError(t, b.Close())
}

func TestEvdevBoard_MapsInputEvents(t *testing.T) {
	b := newEvdevBoard(DefaultConfig().Board.Evdev, 1023, nil)

	b.handleEvent(inputEvent{Type: EV_KEY, Code: KEY_MUTE, Value: evValuePress})
	assert.Equal(t, LOW, b.DigitalRead(14))
	b.handleEvent(inputEvent{Type: EV_KEY, Code: KEY_MUTE, Value: evValueRepeat})
	assert.Equal(t, LOW, b.DigitalRead(14))
	b.handleEvent(inputEvent{Type: EV_KEY, Code: KEY_MUTE, Value: evValueRelease})
	assert.Equal(t, HIGH, b.DigitalRead(14))

	b.handleEvent(inputEvent{Type: EV_ABS, Code: ABS_X, Value: 255})
	assert.Equal(t, 1023, b.AnalogRead(34))
	b.handleEvent(inputEvent{Type: EV_ABS, Code: ABS_Y, Value: 128})
	assert.Equal(t, 128*1023/255, b.AnalogRead(35))
	b.handleEvent(inputEvent{Type: EV_ABS, Code: ABS_Y, Value: -4})
	assert.Equal(t, 0, b.AnalogRead(35))

	// Unmapped codes leave pins alone.
	b.handleEvent(inputEvent{Type: EV_KEY, Code: 1, Value: evValuePress})
	b.handleEvent(inputEvent{Type: EV_ABS, Code: 9, Value: 10})
	assert.Equal(t, HIGH, b.DigitalRead(5))

	require.NoError(t, b.DigitalWrite(12, HIGH))
	require.NoError(t, b.Close())
}
