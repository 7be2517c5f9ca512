package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mixdeck"
)

func TestReceiverSliders(t *testing.T) {
	rx := newReceiver(mixdeck.DefaultRouteNames())

	assert.Equal(t, []string{"volume 0 -> 50%", "volume 1 -> 0%"}, rx.apply(mixdeck.Sliders([]int{50, 0})))
	assert.Empty(t, rx.apply(mixdeck.Sliders([]int{50, 0})))
	assert.Equal(t, []string{"volume 1 -> 7%"}, rx.apply(mixdeck.Sliders([]int{50, 7})))
}

func TestReceiverRoute(t *testing.T) {
	rx := newReceiver(mixdeck.DefaultRouteNames())

	assert.Equal(t, []string{"output -> headphones"}, rx.apply(mixdeck.Switch()))
	assert.Equal(t, []string{"output -> speakers"}, rx.apply(mixdeck.Switch()))
	assert.Empty(t, rx.apply(mixdeck.Set("speakers")))
	assert.Equal(t, []string{"output -> headphones"}, rx.apply(mixdeck.Set("headphones")))
	assert.Equal(t, []string{"set: unknown device hdmi"}, rx.apply(mixdeck.Set("hdmi")))
}

func TestReceiverMute(t *testing.T) {
	rx := newReceiver(mixdeck.DefaultRouteNames())

	assert.Equal(t, []string{"master muted"}, rx.apply(mixdeck.Mute("master")))
	assert.Empty(t, rx.apply(mixdeck.Mute("master")))
	assert.Equal(t, []string{"speakers muted"}, rx.apply(mixdeck.Mute("speakers")))
	assert.Equal(t, "output=speakers levels=[] muted=[master speakers]", rx.summary())

	assert.Equal(t, []string{"master unmuted"}, rx.apply(mixdeck.Unmute("master")))
}

func TestReceiverParsedDatagrams(t *testing.T) {
	rx := newReceiver(mixdeck.DefaultRouteNames())

	for _, text := range []string{"sliders 100|25", "mute headphones", "switch"} {
		msg, err := mixdeck.ParseMessage(text, mixdeck.DefaultSliderPrefix)
		require.NoError(t, err, text)
		rx.apply(msg)
	}
	assert.Equal(t, "output=headphones levels=[100 25] muted=[headphones]", rx.summary())
}

func TestFormatEnvelope(t *testing.T) {
	line, err := formatEnvelope([]byte(`{"type":"route_changed","ts":1,"data":{"route":"headphones"}}`))
	require.NoError(t, err)
	assert.Equal(t, `[route_changed] {"route":"headphones"}`, line)

	line, err = formatEnvelope([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.Equal(t, "[ping]", line)

	_, err = formatEnvelope([]byte(`{"data":{}}`))
	assert.Error(t, err)
	_, err = formatEnvelope([]byte(`nope`))
	assert.Error(t, err)
}
