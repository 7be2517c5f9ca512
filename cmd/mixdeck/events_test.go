package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalEvent(t *testing.T) {
	cases := []struct {
		in   string
		want Event
	}{
		{`{"type":"press_button","data":{"target":1}}`, ButtonPressed{Target: 1}},
		{`{"type":"press_button"}`, ButtonPressed{Target: 0}},
		{`{"type":"press_switch"}`, SwitchPressed{}},
		{`{"type":"force_report"}`, ForceReport{}},
		{`{"type":"set_mute","data":{"target":0,"muted":true}}`, SetMute{Target: 0, Muted: true}},
		{`{"type":"select_route","data":{"route":"headphones"}}`, SelectRoute{Route: "headphones"}},
		{`{"type":"sim_analog","data":{"pin":34,"value":512}}`, SimAnalog{Pin: 34, Value: 512}},
		{`{"type":"sim_digital","data":{"pin":14,"active":true}}`, SimDigital{Pin: 14, Active: true}},
	}
	for _, tc := range cases {
		got, err := UnmarshalEvent([]byte(tc.in))
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestUnmarshalEvent_Errors(t *testing.T) {
	for _, in := range []string{
		`not json`,
		`{"type":"reboot"}`,
		`{"type":"select_route","data":{}}`,
		`{"type":"sim_analog","data":{"pin":"x"}}`,
	} {
		_, err := UnmarshalEvent([]byte(in))
		assert.Error(t, err, in)
	}
}

func TestMarshalEvent_RoundTripsClientEvents(t *testing.T) {
	for _, ev := range []Event{
		ButtonPressed{Target: 2},
		SwitchPressed{},
		SetMute{Target: 1, Muted: true},
		SimDigital{Pin: 5, Active: true},
	} {
		b, err := MarshalEvent(ev)
		require.NoError(t, err)
		got, err := UnmarshalEvent(b)
		require.NoError(t, err)
		assert.Equal(t, ev, got)
	}

	_, err := MarshalEvent(Boot{})
	assert.Error(t, err, "internal events are not encodable")
}
