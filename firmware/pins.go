//go:build tinygo

package main

import "machine"

const (
	// Sampling configuration
	SAMPLE_INTERVAL_MS = 10 // Frame interval; the daemon rate-limits reports on its side
	NUM_SAMPLES        = 4  // ADC reads averaged per analog field

	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // Hardware resolution; readings are reported in 10 bits
	ADC_REPORT_SHIFT = 6    // machine.ADC.Get is 16-bit, >>6 gives 0-1023

	// Serial configuration
	// Longest frame: "A34=1023 A35=1023 D14=1 D5=1\n" = 29 bytes
	// 100 frames/sec * 29 bytes = 2,900 bytes/sec, 115200 baud carries 11,520
	UART_BAUD_RATE = 115200
)

// Slider wipers
var analogPins = [...]machine.Pin{34, 35}

// Mute buttons and the route switch, active low with pull-ups
var inputPins = [...]machine.Pin{14, 5}

// Mute LED and the two route LEDs
var ledPins = [...]machine.Pin{12, 18, 19}
