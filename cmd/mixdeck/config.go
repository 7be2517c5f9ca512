package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"mixdeck"
)

// Config is the top-level YAML configuration for the mixdeck daemon.
//
// Defaults and validation live here so the rest of the code can assume a
// well-formed config. The config file is the primary surface; flags only
// override a handful of fields.
type Config struct {
	// Hardware access
	Board BoardConfig `yaml:"board"`

	// Where outbound datagrams go
	Destination DestinationConfig `yaml:"destination"`

	// Boot-time link establishment
	Link LinkConfig `yaml:"link"`

	Sliders SlidersConfig `yaml:"sliders"`
	Mute    MuteConfig    `yaml:"mute"`
	Route   RouteConfig   `yaml:"route"`
	Timing  TimingConfig  `yaml:"timing"`

	// Local control and observation surfaces
	IPC  IPCConfig  `yaml:"ipc"`
	HTTP HTTPConfig `yaml:"http"`

	Logging LoggingConfig `yaml:"logging"`
}

// Board drivers.
const (
	BoardSerial = "serial"
	BoardMIDI   = "midi"
	BoardEvdev  = "evdev"
	BoardSim    = "sim"
)

type BoardConfig struct {
	Driver string            `yaml:"driver"`
	Serial SerialBoardConfig `yaml:"serial"`
	MIDI   MIDIBoardConfig   `yaml:"midi"`
	Evdev  EvdevBoardConfig  `yaml:"evdev"`
}

type SerialBoardConfig struct {
	Port          string `yaml:"port"`
	BaudRate      int    `yaml:"baud_rate"`
	ReadTimeoutMS int    `yaml:"read_timeout_ms"`
}

// MIDIBoardConfig maps a MIDI control surface onto board pins.
type MIDIBoardConfig struct {
	InPort  string `yaml:"in_port"`  // substring of the input port name
	OutPort string `yaml:"out_port"` // substring of the output port name; empty disables LEDs
	Channel int    `yaml:"channel"`  // 0-based

	Faders map[int]int `yaml:"faders"` // controller number -> analog pin
	Keys   map[int]int `yaml:"keys"`   // note -> digital input pin
	LEDs   map[int]int `yaml:"leds"`   // digital output pin -> note
}

// EvdevBoardConfig maps Linux input devices onto board pins.
type EvdevBoardConfig struct {
	Devices []string    `yaml:"devices"`
	AbsMax  int         `yaml:"abs_max"` // full-scale value of the absolute axes
	Keys    map[int]int `yaml:"keys"`    // key code -> digital input pin
	Axes    map[int]int `yaml:"axes"`    // abs code -> analog pin
}

type DestinationConfig struct {
	Host         string `yaml:"host"`
	ControlPort  int    `yaml:"control_port"`
	SliderPort   int    `yaml:"slider_port,omitempty"` // 0 = use control_port
	SliderPrefix string `yaml:"slider_prefix"`
}

type LinkConfig struct {
	RetryAttempts    int  `yaml:"retry_attempts"`
	RetryDelayMS     int  `yaml:"retry_delay_ms"`
	RestartOnFailure bool `yaml:"restart_on_failure"`
	RestartDelayMS   int  `yaml:"restart_delay_ms"`
}

// Slider report scales.
const (
	ScalePercent = "percent"
	ScaleRaw     = "raw"
)

type SlidersConfig struct {
	Pins             []int   `yaml:"pins"`
	Scale            string  `yaml:"scale"`
	ADCMax           int     `yaml:"adc_max"`
	ChangeThreshold  float64 `yaml:"change_threshold"` // percent of full scale
	SampleIntervalMS int     `yaml:"sample_interval_ms"`
}

type MuteConfig struct {
	Targets  []MuteTargetConfig `yaml:"targets"`
	AutoMute AutoMuteConfig     `yaml:"auto_mute"`
}

type MuteTargetConfig struct {
	Name       string `yaml:"name,omitempty"`
	ButtonPin  int    `yaml:"button_pin"`
	LEDPin     int    `yaml:"led_pin"`
	RouteAware bool   `yaml:"route_aware,omitempty"` // report the active route's name instead of Name
}

// AutoMuteConfig binds one slider channel to one mute target for the
// "pull down to mute" gesture.
type AutoMuteConfig struct {
	Enabled   bool `yaml:"enabled"`
	Channel   int  `yaml:"channel"`
	Target    int  `yaml:"target"`
	Threshold int  `yaml:"threshold"` // report-scale units; mute when level < threshold
}

type RouteConfig struct {
	SwitchPin int               `yaml:"switch_pin"`
	Primary   RouteOutputConfig `yaml:"primary"`
	Secondary RouteOutputConfig `yaml:"secondary"`
	Initial   string            `yaml:"initial"`
}

type RouteOutputConfig struct {
	Name   string `yaml:"name"`
	LEDPin int    `yaml:"led_pin"`
}

type TimingConfig struct {
	CycleDelayMS  int `yaml:"cycle_delay_ms"`
	SettleDelayMS int `yaml:"settle_delay_ms"`
	BootDelayMS   int `yaml:"boot_delay_ms"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"` // empty disables the IPC server
}

type HTTPConfig struct {
	Port int `yaml:"port"` // 0 disables the state stream
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config matching the reference board.
func DefaultConfig() Config {
	return Config{
		Board: BoardConfig{
			Driver: BoardSerial,
			Serial: SerialBoardConfig{
				Port:          "/dev/ttyUSB0",
				BaudRate:      mixdeck.DefaultBaudRate,
				ReadTimeoutMS: defaultSerialReadTimeoutMS,
			},
			MIDI: MIDIBoardConfig{
				Channel: defaultMIDIChannel,
				Faders:  map[int]int{1: defaultSliderPin0, 2: defaultSliderPin1},
				Keys:    map[int]int{36: defaultMuteButtonPin, 37: defaultSwitchPin},
				LEDs:    map[int]int{defaultMuteLEDPin: 36, defaultPrimaryLED: 38, defaultSecondaryLED: 39},
			},
			Evdev: EvdevBoardConfig{
				AbsMax: defaultEvdevAbsMax,
				Keys:   map[int]int{KEY_MUTE: defaultMuteButtonPin, KEY_SWITCHVIDEOMODE: defaultSwitchPin},
				Axes:   map[int]int{ABS_X: defaultSliderPin0, ABS_Y: defaultSliderPin1},
			},
		},
		Destination: DestinationConfig{
			Host:         "127.0.0.1",
			ControlPort:  defaultControlPort,
			SliderPrefix: defaultSliderPrefix,
		},
		Link: LinkConfig{
			RetryAttempts:    defaultLinkRetryAttempts,
			RetryDelayMS:     defaultLinkRetryDelayMS,
			RestartOnFailure: true,
			RestartDelayMS:   defaultRestartDelayMS,
		},
		Sliders: SlidersConfig{
			Pins:             []int{defaultSliderPin0, defaultSliderPin1},
			Scale:            ScalePercent,
			ADCMax:           defaultADCMax,
			ChangeThreshold:  defaultChangeThreshold,
			SampleIntervalMS: defaultSampleInterval,
		},
		Mute: MuteConfig{
			Targets: []MuteTargetConfig{
				{Name: "master", ButtonPin: defaultMuteButtonPin, LEDPin: defaultMuteLEDPin},
			},
			AutoMute: AutoMuteConfig{
				Enabled:   true,
				Channel:   0,
				Target:    0,
				Threshold: defaultMuteThreshold,
			},
		},
		Route: RouteConfig{
			SwitchPin: defaultSwitchPin,
			Primary:   RouteOutputConfig{Name: mixdeck.DefaultPrimaryName, LEDPin: defaultPrimaryLED},
			Secondary: RouteOutputConfig{Name: mixdeck.DefaultSecondaryName, LEDPin: defaultSecondaryLED},
			Initial:   mixdeck.DefaultPrimaryName,
		},
		Timing: TimingConfig{
			CycleDelayMS:  defaultCycleDelayMS,
			SettleDelayMS: defaultSettleDelayMS,
			BootDelayMS:   defaultBootDelayMS,
		},
		IPC: IPCConfig{
			SocketPath: defaultIPCSocketPath,
		},
		HTTP: HTTPConfig{
			Port: defaultHTTPPort,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of the defaults.
//
// Unknown fields are rejected to catch typos. Maps and lists in the file
// replace the default ones wholesale.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	// yaml.v3 merges into existing maps; start pin maps empty when the file sets them.
	var probe struct {
		Board struct {
			MIDI  map[string]any `yaml:"midi"`
			Evdev map[string]any `yaml:"evdev"`
		} `yaml:"board"`
	}
	if err := yaml.Unmarshal(b, &probe); err == nil {
		clearIfSet(probe.Board.MIDI, "faders", &cfg.Board.MIDI.Faders)
		clearIfSet(probe.Board.MIDI, "keys", &cfg.Board.MIDI.Keys)
		clearIfSet(probe.Board.MIDI, "leds", &cfg.Board.MIDI.LEDs)
		clearIfSet(probe.Board.Evdev, "keys", &cfg.Board.Evdev.Keys)
		clearIfSet(probe.Board.Evdev, "axes", &cfg.Board.Evdev.Axes)
	}

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

func clearIfSet(section map[string]any, key string, m *map[int]int) {
	if _, ok := section[key]; ok {
		*m = map[int]int{}
	}
}

// FlagOverrides carries flag values that win over the config file.
// A nil pointer means the flag was not set.
type FlagOverrides struct {
	BoardDriver *string
	SerialPort  *string

	DestHost    *string
	ControlPort *int
	SliderPort  *int

	IPCSocketPath *string
	HTTPPort      *int

	LogLevel *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.BoardDriver != nil {
		cfg.Board.Driver = *o.BoardDriver
	}
	if o.SerialPort != nil {
		cfg.Board.Serial.Port = *o.SerialPort
	}
	if o.DestHost != nil {
		cfg.Destination.Host = *o.DestHost
	}
	if o.ControlPort != nil {
		cfg.Destination.ControlPort = *o.ControlPort
	}
	if o.SliderPort != nil {
		cfg.Destination.SliderPort = *o.SliderPort
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.HTTPPort != nil {
		cfg.HTTP.Port = *o.HTTPPort
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults, file and overrides are applied.
func (c *Config) Validate() error {
	// Board
	switch c.Board.Driver {
	case BoardSerial:
		if c.Board.Serial.Port == "" {
			return errors.New("board.serial.port must not be empty")
		}
		if c.Board.Serial.BaudRate <= 0 {
			return errors.New("board.serial.baud_rate must be > 0")
		}
		if c.Board.Serial.ReadTimeoutMS <= 0 {
			return errors.New("board.serial.read_timeout_ms must be > 0")
		}
	case BoardMIDI:
		if c.Board.MIDI.InPort == "" {
			return errors.New("board.midi.in_port must not be empty")
		}
		if c.Board.MIDI.Channel < 0 || c.Board.MIDI.Channel > 15 {
			return errors.New("board.midi.channel must be between 0 and 15")
		}
	case BoardEvdev:
		if len(c.Board.Evdev.Devices) == 0 {
			return errors.New("board.evdev.devices must not be empty")
		}
		for i, dev := range c.Board.Evdev.Devices {
			if dev == "" {
				return fmt.Errorf("board.evdev.devices[%d] is empty", i)
			}
		}
		if c.Board.Evdev.AbsMax <= 0 {
			return errors.New("board.evdev.abs_max must be > 0")
		}
	case BoardSim:
	default:
		return fmt.Errorf("board.driver must be one of %q, %q, %q, %q", BoardSerial, BoardMIDI, BoardEvdev, BoardSim)
	}

	// Destination
	if c.Destination.Host == "" {
		return errors.New("destination.host must not be empty")
	}
	if c.Destination.ControlPort <= 0 || c.Destination.ControlPort > 65535 {
		return errors.New("destination.control_port must be between 1 and 65535")
	}
	if c.Destination.SliderPort < 0 || c.Destination.SliderPort > 65535 {
		return errors.New("destination.slider_port must be between 0 and 65535")
	}

	// Link
	if c.Link.RetryAttempts < 1 {
		return errors.New("link.retry_attempts must be >= 1")
	}
	if c.Link.RetryDelayMS < 0 {
		return errors.New("link.retry_delay_ms must be >= 0")
	}
	if c.Link.RestartDelayMS < 0 {
		return errors.New("link.restart_delay_ms must be >= 0")
	}

	// Sliders
	if len(c.Sliders.Pins) == 0 {
		return errors.New("sliders.pins must not be empty")
	}
	if c.Sliders.Scale != ScalePercent && c.Sliders.Scale != ScaleRaw {
		return fmt.Errorf("sliders.scale must be %q or %q", ScalePercent, ScaleRaw)
	}
	if c.Sliders.ADCMax <= 0 {
		return errors.New("sliders.adc_max must be > 0")
	}
	if c.Sliders.ChangeThreshold < 0 || c.Sliders.ChangeThreshold > 100 {
		return errors.New("sliders.change_threshold must be between 0 and 100")
	}
	if c.Sliders.SampleIntervalMS < 0 {
		return errors.New("sliders.sample_interval_ms must be >= 0")
	}

	// Mute
	for i, t := range c.Mute.Targets {
		if t.Name == "" && !t.RouteAware {
			return fmt.Errorf("mute.targets[%d].name must not be empty unless route_aware is set", i)
		}
	}
	if am := c.Mute.AutoMute; am.Enabled {
		if am.Channel < 0 || am.Channel >= len(c.Sliders.Pins) {
			return fmt.Errorf("mute.auto_mute.channel must be between 0 and %d", len(c.Sliders.Pins)-1)
		}
		if am.Target < 0 || am.Target >= len(c.Mute.Targets) {
			return errors.New("mute.auto_mute.target must index mute.targets")
		}
		if am.Threshold < 0 {
			return errors.New("mute.auto_mute.threshold must be >= 0")
		}
	}

	// Route
	if c.Route.Primary.Name == "" || c.Route.Secondary.Name == "" {
		return errors.New("route.primary.name and route.secondary.name must not be empty")
	}
	if c.Route.Primary.Name == c.Route.Secondary.Name {
		return errors.New("route.primary.name and route.secondary.name must differ")
	}
	if _, err := c.routeNames().Lookup(c.Route.Initial); err != nil {
		return fmt.Errorf("route.initial %q must name route.primary or route.secondary", c.Route.Initial)
	}

	// Timing
	if c.Timing.CycleDelayMS < 0 || c.Timing.SettleDelayMS < 0 || c.Timing.BootDelayMS < 0 {
		return errors.New("timing delays must be >= 0")
	}

	// HTTP
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return errors.New("http.port must be between 0 and 65535")
	}

	// Logging
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

func (c *Config) routeNames() mixdeck.RouteNames {
	return mixdeck.RouteNames{c.Route.Primary.Name, c.Route.Secondary.Name}
}

// aliasedButtonPins returns button pins shared by more than one mute target.
// Such targets all toggle on the same physical press.
func (c *Config) aliasedButtonPins() []int {
	seen := make(map[int]int)
	var out []int
	for _, t := range c.Mute.Targets {
		seen[t.ButtonPin]++
		if seen[t.ButtonPin] == 2 {
			out = append(out, t.ButtonPin)
		}
	}
	return out
}

// ToMixerConfig converts file config into the reducer's view.
func (c *Config) ToMixerConfig() MixerConfig {
	initial, _ := c.routeNames().Lookup(c.Route.Initial)

	targets := make([]TargetConfig, len(c.Mute.Targets))
	for i, t := range c.Mute.Targets {
		targets[i] = TargetConfig{
			Name:       t.Name,
			ButtonPin:  t.ButtonPin,
			LEDPin:     t.LEDPin,
			RouteAware: t.RouteAware,
		}
	}

	cfg := MixerConfig{
		Targets:      targets,
		RouteNames:   c.routeNames(),
		RouteLEDs:    [2]int{c.Route.Primary.LEDPin, c.Route.Secondary.LEDPin},
		InitialRoute: initial,
		SettleDelay:  time.Duration(c.Timing.SettleDelayMS) * time.Millisecond,
		BootDelay:    time.Duration(c.Timing.BootDelayMS) * time.Millisecond,
		AutoMute:     AutoMuteRule{Channel: -1},
	}
	if am := c.Mute.AutoMute; am.Enabled {
		cfg.AutoMute = AutoMuteRule{
			Channel:   am.Channel,
			Target:    am.Target,
			Threshold: am.Threshold,
		}
	}
	return cfg
}

// ToSamplerConfig converts file config into the sampler's view.
func (c *Config) ToSamplerConfig() SamplerConfig {
	return SamplerConfig{
		Pins:            append([]int(nil), c.Sliders.Pins...),
		Raw:             c.Sliders.Scale == ScaleRaw,
		ADCMax:          c.Sliders.ADCMax,
		ChangeThreshold: c.Sliders.ChangeThreshold,
		Interval:        time.Duration(c.Sliders.SampleIntervalMS) * time.Millisecond,
	}
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
