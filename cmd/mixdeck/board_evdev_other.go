//go:build !linux

package main

import (
	"errors"
	"log/slog"
)

func OpenEvdevBoard(cfg EvdevBoardConfig, adcMax int, logger *slog.Logger) (*EvdevBoard, error) {
	return nil, errors.New("evdev board is only supported on linux")
}
