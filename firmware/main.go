//go:build tinygo

//go:generate tinygo flash -target=esp32-coreboard-v2

package main

import (
	"machine"
	"time"

	"mixdeck"
)

var (
	adcs [len(analogPins)]machine.ADC
	uart = machine.UART0

	// Reused every tick to avoid allocating in the loop
	readings [len(analogPins) + len(inputPins)]mixdeck.Reading
	frame    []byte

	// Serial buffer for LED command lines
	serialBuffer [16]byte
	serialPos    int
)

func main() {
	for _, p := range ledPins {
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
		p.Low()
	}
	for _, p := range inputPins {
		p.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	}

	machine.InitADC()
	adcConfig := machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	}
	for i, p := range analogPins {
		p.Configure(machine.PinConfig{Mode: machine.PinInput})
		adcs[i] = machine.ADC{Pin: p}
		adcs[i].Configure(adcConfig)
	}

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	frame = make([]byte, 0, 64)
	lastFrame := time.Now()

	for {
		processSerial()

		if now := time.Now(); now.Sub(lastFrame) >= SAMPLE_INTERVAL_MS*time.Millisecond {
			sendFrame()
			lastFrame = now
		}

		time.Sleep(500 * time.Microsecond)
	}
}

func sendFrame() {
	n := 0
	for i, adc := range adcs {
		var sum uint32
		for range NUM_SAMPLES {
			sum += uint32(adc.Get())
		}
		readings[n] = mixdeck.Reading{
			Kind:  mixdeck.PinAnalog,
			Pin:   int(analogPins[i]),
			Value: int(sum/NUM_SAMPLES) >> ADC_REPORT_SHIFT,
		}
		n++
	}
	for _, p := range inputPins {
		v := 0
		if p.Get() {
			v = 1
		}
		readings[n] = mixdeck.Reading{Kind: mixdeck.PinDigital, Pin: int(p), Value: v}
		n++
	}

	frame = mixdeck.AppendFrame(frame[:0], readings[:n])
	uart.Write(frame)
}

func processSerial() {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		if data == '\n' || data == '\r' {
			if serialPos > 0 {
				applyLED(string(serialBuffer[:serialPos]))
			}
			serialPos = 0
			continue
		}

		if serialPos < len(serialBuffer) {
			serialBuffer[serialPos] = data
			serialPos++
		} else {
			// Overlong line, drop it
			serialPos = 0
		}
	}
}

// applyLED drives an output pin from an "L<pin>=<0|1>" line. Pins that are
// not LEDs are ignored.
func applyLED(line string) {
	pin, high, err := mixdeck.ParseLED(line)
	if err != nil {
		println("bad led command:", line)
		return
	}
	for _, p := range ledPins {
		if int(p) == pin {
			p.Set(high)
			return
		}
	}
}
