package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// dialFunc opens the outbound messenger once the network is usable.
type dialFunc func(ctx context.Context) (*Messenger, error)

// establishLink dials the destination with a fixed delay between attempts.
// It gives up after cfg.RetryAttempts failures; the caller then restarts the
// process rather than running without a destination.
func establishLink(ctx context.Context, cfg LinkConfig, dial dialFunc, clock Clock, logger *slog.Logger) (*Messenger, error) {
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := time.Duration(cfg.RetryDelayMS) * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		m, err := dial(ctx)
		if err == nil {
			logger.Info("link ready", "attempt", attempt+1)
			return m, nil
		}
		lastErr = err
		logger.Warn("link failed; retrying...", "error", err, "attempt", attempt+1)

		if attempt+1 < attempts {
			if err := clock.Sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("link failed after %d attempts: %w", attempts, lastErr)
}

// restartAfterLinkFailure waits out the restart delay and re-executes the
// daemon. It only returns if the restart itself failed.
func restartAfterLinkFailure(ctx context.Context, cfg LinkConfig, clock Clock, logger *slog.Logger) error {
	delay := time.Duration(cfg.RestartDelayMS) * time.Millisecond
	logger.Error("connection failed, restarting", "delay", delay)
	if err := clock.Sleep(ctx, delay); err != nil {
		return err
	}
	return restartSelf()
}
