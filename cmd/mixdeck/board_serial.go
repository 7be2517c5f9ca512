package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"mixdeck"
)

// SerialBoard talks to the control-surface firmware over a serial port.
//
// The firmware streams one frame of raw pin readings per sampling tick; a
// reader goroutine keeps the latest value of every pin. LED writes are sent
// as single command lines.
type SerialBoard struct {
	port   io.ReadWriteCloser
	pins   *pinCache
	logger *slog.Logger

	writeMu sync.Mutex
	closed  atomic.Bool
	done    chan struct{}

	frames  atomic.Int64
	badLine atomic.Int64
}

// maxFrameLen bounds a single line; longer input is discarded as noise.
const maxFrameLen = 256

// OpenSerialBoard opens the serial port and starts reading frames.
func OpenSerialBoard(cfg SerialBoardConfig, logger *slog.Logger) (*SerialBoard, error) {
	port, err := serial.Open(cfg.Port, &serial.Mode{
		BaudRate: cfg.BaudRate,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Port, err)
	}
	// A read timeout lets the reader notice Close without relying on the
	// driver to unblock a pending read.
	if err := port.SetReadTimeout(time.Duration(cfg.ReadTimeoutMS) * time.Millisecond); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set serial read timeout: %w", err)
	}
	logger.Info("serial board open", "port", cfg.Port, "baud", cfg.BaudRate)
	return newSerialBoard(port, logger), nil
}

func newSerialBoard(port io.ReadWriteCloser, logger *slog.Logger) *SerialBoard {
	if logger == nil {
		logger = discardLogger()
	}
	b := &SerialBoard{
		port:   port,
		pins:   newPinCache(),
		logger: logger,
		done:   make(chan struct{}),
	}
	go b.readLoop()
	return b
}

func (b *SerialBoard) readLoop() {
	defer close(b.done)

	buf := make([]byte, 128)
	line := make([]byte, 0, maxFrameLen)
	for {
		n, err := b.port.Read(buf)
		for _, c := range buf[:n] {
			switch c {
			case '\n':
				b.handleLine(string(line))
				line = line[:0]
			case '\r':
			default:
				if len(line) < maxFrameLen {
					line = append(line, c)
				} else {
					line = line[:0]
				}
			}
		}
		if err != nil {
			if !b.closed.Load() && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && !errors.Is(err, os.ErrClosed) {
				b.logger.Error("serial read failed", "error", err)
			}
			return
		}
		if b.closed.Load() {
			return
		}
	}
}

func (b *SerialBoard) handleLine(line string) {
	if line == "" {
		return
	}
	readings, err := mixdeck.ParseFrame(line)
	if err != nil {
		// Firmware debug prints share the UART; they are not frames.
		b.badLine.Add(1)
		b.logger.Debug("serial line ignored", "line", line, "error", err)
		return
	}
	for _, r := range readings {
		switch r.Kind {
		case mixdeck.PinAnalog:
			b.pins.setAnalog(r.Pin, r.Value)
		case mixdeck.PinDigital:
			b.pins.setDigital(r.Pin, r.Value != 0)
		}
	}
	b.frames.Add(1)
}

// Configure only records the setup; the firmware owns its pin modes.
func (b *SerialBoard) Configure(setup PinSetup) error {
	b.logger.Debug("serial board pins", "analog", setup.Analog, "inputs", setup.Inputs, "outputs", setup.Outputs)
	return nil
}

func (b *SerialBoard) AnalogRead(pin int) int   { return b.pins.analogValue(pin) }
func (b *SerialBoard) DigitalRead(pin int) bool { return b.pins.digitalValue(pin) }

// DigitalWrite sends an LED command line to the firmware.
func (b *SerialBoard) DigitalWrite(pin int, high bool) error {
	if b.closed.Load() {
		return errors.New("serial board closed")
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if _, err := b.port.Write(mixdeck.AppendLED(nil, pin, high)); err != nil {
		return fmt.Errorf("write led command: %w", err)
	}
	b.pins.setOutput(pin, high)
	return nil
}

// Frames returns how many valid frames were received.
func (b *SerialBoard) Frames() int64 { return b.frames.Load() }

// Close stops the reader and closes the port.
func (b *SerialBoard) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	err := b.port.Close()
	<-b.done
	b.logger.Debug("serial board closed", "frames", b.frames.Load(), "ignored_lines", b.badLine.Load())
	return err
}
