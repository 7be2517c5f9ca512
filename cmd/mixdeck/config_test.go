package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mixdeck"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "mixdeck.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 16991, cfg.Destination.ControlPort)
	assert.Equal(t, "sliders ", cfg.Destination.SliderPrefix)
	assert.Empty(t, cfg.aliasedButtonPins())
}

func TestLoadConfigFile_OverlaysDefaults(t *testing.T) {
	p := writeConfig(t, `
board:
  driver: midi
  midi:
    in_port: nanoKONTROL
    faders:
      7: 34
destination:
  host: 192.168.1.20
  slider_port: 16992
mute:
  targets:
    - name: master
      button_pin: 14
      led_pin: 12
    - route_aware: true
      button_pin: 15
      led_pin: 13
route:
  initial: headphones
`)

	cfg, err := LoadConfigFile(p)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, BoardMIDI, cfg.Board.Driver)
	assert.Equal(t, map[int]int{7: 34}, cfg.Board.MIDI.Faders, "file maps replace defaults")
	assert.Equal(t, map[int]int{36: 14, 37: 5}, cfg.Board.MIDI.Keys, "unset maps keep defaults")
	assert.Equal(t, "192.168.1.20", cfg.Destination.Host)
	assert.Equal(t, 16991, cfg.Destination.ControlPort)
	assert.Equal(t, 16992, cfg.Destination.SliderPort)
	require.Len(t, cfg.Mute.Targets, 2)
	assert.True(t, cfg.Mute.Targets[1].RouteAware)

	mc := cfg.ToMixerConfig()
	assert.Equal(t, mixdeck.RouteSecondary, mc.InitialRoute)
	assert.Equal(t, "headphones", mc.TargetName(1, mc.InitialRoute))
	assert.Equal(t, [2]int{18, 19}, mc.RouteLEDs)
	assert.Equal(t, 1500*time.Millisecond, mc.SettleDelay)
	assert.Equal(t, AutoMuteRule{Channel: 0, Target: 0, Threshold: 3}, mc.AutoMute)
}

func TestLoadConfigFile_RejectsUnknownFieldsAndTrailingDocs(t *testing.T) {
	_, err := LoadConfigFile(writeConfig(t, "destination:\n  hots: x\n"))
	require.Error(t, err)

	_, err = LoadConfigFile(writeConfig(t, "logging:\n  level: debug\n---\nlogging:\n  level: info\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trailing document")

	_, err = LoadConfigFile("")
	require.Error(t, err)
}

func TestValidate_NamesTheKey(t *testing.T) {
	cases := []struct {
		mutate func(*Config)
		key    string
	}{
		{func(c *Config) { c.Board.Driver = "gpio" }, "board.driver"},
		{func(c *Config) { c.Board.Serial.Port = "" }, "board.serial.port"},
		{func(c *Config) { c.Board.Driver = BoardMIDI }, "board.midi.in_port"},
		{func(c *Config) { c.Board.Driver = BoardEvdev }, "board.evdev.devices"},
		{func(c *Config) { c.Destination.ControlPort = 70000 }, "destination.control_port"},
		{func(c *Config) { c.Link.RetryAttempts = 0 }, "link.retry_attempts"},
		{func(c *Config) { c.Sliders.Pins = nil }, "sliders.pins"},
		{func(c *Config) { c.Sliders.Scale = "db" }, "sliders.scale"},
		{func(c *Config) { c.Mute.AutoMute.Channel = 2 }, "mute.auto_mute.channel"},
		{func(c *Config) { c.Mute.AutoMute.Target = 1 }, "mute.auto_mute.target"},
		{func(c *Config) { c.Mute.Targets[0].Name = "" }, "mute.targets[0].name"},
		{func(c *Config) { c.Route.Secondary.Name = "speakers" }, "must differ"},
		{func(c *Config) { c.Route.Initial = "tv" }, "route.initial"},
		{func(c *Config) { c.Timing.SettleDelayMS = -1 }, "timing"},
		{func(c *Config) { c.HTTP.Port = -1 }, "http.port"},
		{func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(&cfg)
		err := cfg.Validate()
		if assert.Error(t, err, tc.key) {
			assert.Contains(t, err.Error(), tc.key)
		}
	}
}

func TestValidate_AutoMuteDisabledSkipsBinding(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mute.AutoMute = AutoMuteConfig{Enabled: false, Channel: 9, Target: 9}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, -1, cfg.ToMixerConfig().AutoMute.Channel)
}

func TestFlagOverrides_OnlySetFieldsApply(t *testing.T) {
	cfg := DefaultConfig()
	driver := BoardSim
	port := 9000
	FlagOverrides{BoardDriver: &driver, ControlPort: &port}.Apply(&cfg)

	assert.Equal(t, BoardSim, cfg.Board.Driver)
	assert.Equal(t, 9000, cfg.Destination.ControlPort)
	assert.Equal(t, "127.0.0.1", cfg.Destination.Host)
	assert.Equal(t, defaultIPCSocketPath, cfg.IPC.SocketPath)

	FlagOverrides{}.Apply(nil)
}

func TestAliasedButtonPins(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mute.Targets = append(cfg.Mute.Targets,
		MuteTargetConfig{Name: "mic", ButtonPin: 14, LEDPin: 13},
		MuteTargetConfig{Name: "system", ButtonPin: 14, LEDPin: 15},
	)
	assert.Equal(t, []int{14}, cfg.aliasedButtonPins())
}

func TestPinSetupFor(t *testing.T) {
	cfg := DefaultConfig()
	ps := pinSetupFor(&cfg)
	assert.Equal(t, []int{34, 35}, ps.Analog)
	assert.Equal(t, []int{14, 5}, ps.Inputs)
	assert.Equal(t, []int{12, 18, 19}, ps.Outputs)
}

func TestToSamplerConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sliders.Scale = ScaleRaw
	sc := cfg.ToSamplerConfig()
	assert.True(t, sc.Raw)
	assert.Equal(t, 50*time.Millisecond, sc.Interval)
	assert.Equal(t, []int{34, 35}, sc.Pins)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "mixdeck.yaml"), ExpandPath("~/mixdeck.yaml"))
	assert.Equal(t, "/etc/mixdeck.yaml", ExpandPath("/etc/mixdeck.yaml"))
	assert.Equal(t, "", ExpandPath(""))
}

func TestParseLogLevel(t *testing.T) {
	lvl, err := parseLogLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", lvl.String())

	_, err = parseLogLevel("verbose")
	assert.Error(t, err)
}
