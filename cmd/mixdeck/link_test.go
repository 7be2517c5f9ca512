package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstablishLink_RetriesWithFixedDelay(t *testing.T) {
	clock := newFakeClock()
	calls := 0
	dial := func(ctx context.Context) (*Messenger, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("no route to host")
		}
		return &Messenger{}, nil
	}

	m, err := establishLink(context.Background(), LinkConfig{RetryAttempts: 10, RetryDelayMS: 500}, dial, clock, discardLogger())
	require.NoError(t, err)
	assert.NotNil(t, m)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, clock.slept())
}

func TestEstablishLink_GivesUp(t *testing.T) {
	clock := newFakeClock()
	calls := 0
	dialErr := errors.New("network down")
	dial := func(ctx context.Context) (*Messenger, error) {
		calls++
		return nil, dialErr
	}

	_, err := establishLink(context.Background(), LinkConfig{RetryAttempts: 4, RetryDelayMS: 500}, dial, clock, discardLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, dialErr)
	assert.Equal(t, 4, calls)
	assert.Len(t, clock.slept(), 3, "no delay after the last attempt")
}

func TestEstablishLink_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	dial := func(ctx context.Context) (*Messenger, error) {
		calls++
		return nil, errors.New("down")
	}
	_, err := establishLink(ctx, LinkConfig{RetryAttempts: 10, RetryDelayMS: 500}, dial, newFakeClock(), discardLogger())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
