package main

import "mixdeck"

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_KEY = 0x01
	EV_ABS = 0x03

	KEY_MUTE            = 113
	KEY_SWITCHVIDEOMODE = 227

	ABS_X = 0x00
	ABS_Y = 0x01
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// Pin levels. Inputs are wired with pull-ups, so LOW means pressed.
const (
	LOW  = false
	HIGH = true
)

// Control surface defaults. Pin numbers follow the ESP32 board layout the
// firmware ships with.
const (
	defaultControlPort     = mixdeck.DefaultControlPort
	defaultSliderPrefix    = mixdeck.DefaultSliderPrefix
	defaultADCMax          = 1023 // 10-bit ADC
	defaultChangeThreshold = 1.0  // percent of full scale
	defaultMuteThreshold   = 3    // report-scale units
	defaultSampleInterval  = 50   // ms between slider samples
	defaultCycleDelayMS    = 10
	defaultSettleDelayMS   = 1500 // after a route switch, before the forced report
	defaultBootDelayMS     = 1000 // after "set <route>", before the first report

	defaultLinkRetryAttempts = 10
	defaultLinkRetryDelayMS  = 500
	defaultRestartDelayMS    = 5000

	defaultSerialReadTimeoutMS = 200
	defaultEvdevAbsMax         = 255
	defaultMIDIChannel         = 0

	defaultIPCSocketPath = "/tmp/mixdeck.sock"
	defaultHTTPPort      = 3002

	// Sized so a burst from mixdeck-ctl does not fill up while the loop sits
	// in a settle delay.
	defaultEventBuffer = 64
)

// Default pin map of the reference board.
const (
	defaultSliderPin0    = 34
	defaultSliderPin1    = 35
	defaultMuteButtonPin = 14
	defaultMuteLEDPin    = 12
	defaultSwitchPin     = 5
	defaultPrimaryLED    = 18
	defaultSecondaryLED  = 19
)
