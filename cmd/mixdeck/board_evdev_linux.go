//go:build linux

package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"
)

// epollTimeoutMS bounds each wait so the reader notices Close.
const epollTimeoutMS = 250

// OpenEvdevBoard opens the configured input devices and starts one epoll
// reader for all of them.
func OpenEvdevBoard(cfg EvdevBoardConfig, adcMax int, logger *slog.Logger) (*EvdevBoard, error) {
	if len(cfg.Devices) == 0 {
		return nil, errors.New("evdev board needs at least one device")
	}

	files := make([]*os.File, 0, len(cfg.Devices))
	closeAll := func() error {
		var errs []error
		for _, f := range files {
			errs = append(errs, f.Close())
		}
		return errors.Join(errs...)
	}
	for _, dev := range cfg.Devices {
		f, err := os.Open(ExpandPath(dev))
		if err != nil {
			_ = closeAll()
			return nil, fmt.Errorf("open input device %s: %w", dev, err)
		}
		files = append(files, f)
	}

	b := newEvdevBoard(cfg, adcMax, logger)

	var stop atomic.Bool
	done := make(chan struct{})
	b.close = func() error {
		stop.Store(true)
		<-done
		return closeAll()
	}

	events := make(chan inputEvent, 64)
	readErr := make(chan error, 1)
	go func() {
		defer close(done)
		readInputEventsEpoll(files, &stop, events, readErr)
		close(events)
	}()
	go func() {
		for ev := range events {
			b.handleEvent(ev)
		}
	}()
	go func() {
		if err := <-readErr; err != nil {
			logger.Error("evdev reader stopped", "error", err)
		}
	}()

	logger.Info("evdev board open", "devices", cfg.Devices,
		"keys", sortedKeys(cfg.Keys), "axes", sortedKeys(cfg.Axes))
	return b, nil
}

// readInputEventsEpoll reads from multiple input devices with a single epoll
// instance until stop is set or a device fails.
func readInputEventsEpoll(files []*os.File, stop *atomic.Bool, events chan<- inputEvent, readErr chan<- error) {
	defer close(readErr)

	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		readErr <- fmt.Errorf("epoll_create1: %w", err)
		return
	}
	defer unix.Close(epfd)

	fdToFile := make(map[int]*os.File)
	for _, f := range files {
		fd := int(f.Fd())
		fdToFile[fd] = f

		event := unix.EpollEvent{
			Events: unix.EPOLLIN,
			Fd:     int32(fd),
		}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
			readErr <- fmt.Errorf("epoll_ctl_add fd=%d: %w", fd, err)
			return
		}
	}

	const maxEvents = 32
	epollEvents := make([]unix.EpollEvent, maxEvents)
	buf := make([]byte, binary.Size(inputEvent{}))
	reader := bytes.NewReader(buf)

	for !stop.Load() {
		n, err := unix.EpollWait(epfd, epollEvents, epollTimeoutMS)
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			readErr <- fmt.Errorf("epoll_wait: %w", err)
			return
		}

		for i := 0; i < n; i++ {
			fd := int(epollEvents[i].Fd)
			f := fdToFile[fd]

			if epollEvents[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				readErr <- fmt.Errorf("device error/hangup: %s (fd=%d)", f.Name(), fd)
				return
			}

			if _, err := f.Read(buf); err != nil {
				readErr <- fmt.Errorf("read from %s: %w", f.Name(), err)
				return
			}

			reader.Reset(buf)
			var ev inputEvent
			if err := binary.Read(reader, binary.LittleEndian, &ev); err != nil {
				// Skip malformed events
				continue
			}
			events <- ev
		}
	}
}
