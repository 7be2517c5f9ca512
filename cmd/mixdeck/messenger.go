package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"mixdeck"
)

// Messenger ships protocol messages to the host mixer as UDP datagrams.
//
// Control messages (mute/unmute/set/switch) go to the control port. Slider
// reports go to the slider port when one is configured, else to the control
// port. Sends are fire-and-forget: there is no acknowledgement and no retry.
type Messenger struct {
	mu      sync.Mutex
	control net.Conn
	sliders net.Conn // same as control when no slider port is configured
	prefix  string
	logger  *slog.Logger
}

// DialMessenger resolves the destination and opens the UDP sockets.
func DialMessenger(ctx context.Context, cfg DestinationConfig, logger *slog.Logger) (*Messenger, error) {
	var d net.Dialer

	controlAddr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.ControlPort))
	control, err := d.DialContext(ctx, "udp", controlAddr)
	if err != nil {
		return nil, fmt.Errorf("dial control %s: %w", controlAddr, err)
	}

	sliders := control
	if cfg.SliderPort != 0 && cfg.SliderPort != cfg.ControlPort {
		sliderAddr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.SliderPort))
		sliders, err = d.DialContext(ctx, "udp", sliderAddr)
		if err != nil {
			_ = control.Close()
			return nil, fmt.Errorf("dial sliders %s: %w", sliderAddr, err)
		}
	}

	if logger == nil {
		logger = discardLogger()
	}
	return &Messenger{
		control: control,
		sliders: sliders,
		prefix:  cfg.SliderPrefix,
		logger:  logger,
	}, nil
}

// Send writes m as one datagram.
func (m *Messenger) Send(msg mixdeck.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn := m.control
	if msg.IsSliderReport() {
		conn = m.sliders
	}
	if conn == nil {
		return errors.New("messenger closed")
	}

	text := msg.Format(m.prefix)
	if _, err := conn.Write([]byte(text)); err != nil {
		return fmt.Errorf("write %s: %w", conn.RemoteAddr(), err)
	}
	m.logger.Info("sent", "message", text, "to", conn.RemoteAddr().String())
	return nil
}

// Close releases both sockets.
func (m *Messenger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if m.sliders != nil && m.sliders != m.control {
		errs = append(errs, m.sliders.Close())
	}
	if m.control != nil {
		errs = append(errs, m.control.Close())
	}
	m.control, m.sliders = nil, nil
	return errors.Join(errs...)
}
