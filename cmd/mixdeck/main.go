package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("mixdeck v%s\n", version)
	fmt.Println("Hardware control surface for a host audio mixer")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  mixdeck [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Polls slider, mute-button and route-switch inputs from a board driver")
	fmt.Println("  (serial firmware, MIDI surface, Linux input device or simulator) and")
	fmt.Println("  reports level, mute and route changes to the host mixer as UDP text.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        YAML config file (defaults are used when omitted)")
	fmt.Println()
	fmt.Println("  -board string")
	fmt.Println("        Board driver: serial|midi|evdev|sim (default \"serial\")")
	fmt.Println()
	fmt.Println("  -serial-port string")
	fmt.Println("        Serial port of the firmware (default \"/dev/ttyUSB0\")")
	fmt.Println()
	fmt.Println("  -host string")
	fmt.Println("        Host mixer address (default \"127.0.0.1\")")
	fmt.Println()
	fmt.Println("  -control-port int")
	fmt.Printf("        UDP port for control messages (default %d)\n", defaultControlPort)
	fmt.Println()
	fmt.Println("  -slider-port int")
	fmt.Println("        UDP port for slider reports (default 0 = control port)")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q, empty disables)\n", defaultIPCSocketPath)
	fmt.Println()
	fmt.Println("  -http-port int")
	fmt.Printf("        State WebSocket port (default %d, 0 disables)\n", defaultHTTPPort)
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Firmware on a USB serial adapter, mixer on another machine")
	fmt.Println("  mixdeck -serial-port /dev/ttyUSB1 -host 192.168.1.20")
	fmt.Println()
	fmt.Println("  # Simulated board driven by mixdeck-ctl")
	fmt.Println("  mixdeck -board sim -log-level debug")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Flags override the config file")
	fmt.Println("  - When the destination cannot be reached at startup the daemon")
	fmt.Println("    waits link.restart_delay_ms and restarts itself")
	fmt.Println()
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath  = flag.String("config", "", "YAML config file")
		boardDriver = flag.String("board", BoardSerial, "Board driver: serial|midi|evdev|sim")
		serialPort  = flag.String("serial-port", "/dev/ttyUSB0", "Serial port of the firmware")
		destHost    = flag.String("host", "127.0.0.1", "Host mixer address")
		controlPort = flag.Int("control-port", defaultControlPort, "UDP port for control messages")
		sliderPort  = flag.Int("slider-port", 0, "UDP port for slider reports (0 = control port)")
		ipcSocket   = flag.String("ipc-socket", defaultIPCSocketPath, "Unix domain socket path for IPC")
		httpPort    = flag.Int("http-port", defaultHTTPPort, "State WebSocket port (0 disables)")
		logLevelStr = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		showVersion = flag.Bool("version", false, "Print version and exit")
		showHelp    = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(ExpandPath(*configPath))
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Only flags given on the command line override the file.
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	var o FlagOverrides
	if set["board"] {
		o.BoardDriver = boardDriver
	}
	if set["serial-port"] {
		o.SerialPort = serialPort
	}
	if set["host"] {
		o.DestHost = destHost
	}
	if set["control-port"] {
		o.ControlPort = controlPort
	}
	if set["slider-port"] {
		o.SliderPort = sliderPort
	}
	if set["ipc-socket"] {
		o.IPCSocketPath = ipcSocket
	}
	if set["http-port"] {
		o.HTTPPort = httpPort
	}
	if set["log-level"] {
		o.LogLevel = logLevelStr
	}
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, _ := parseLogLevel(cfg.Logging.Level)
	logger := setupLogger(logLevel, os.Stdout)

	if err := run(cfg, logger); err != nil {
		logger.Error("mixdeck stopped", "error", err)
		os.Exit(1)
	}
}

// run wires the board, link, control loop and local servers, and blocks until
// a signal arrives or a component fails.
func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Debug("starting mixdeck", "version", version)
	for _, pin := range cfg.aliasedButtonPins() {
		logger.Warn("mute targets share a button pin; one press toggles all of them", "pin", pin)
	}

	board, err := openBoard(&cfg, logger)
	if err != nil {
		return fmt.Errorf("open board: %w", err)
	}
	defer board.Close()

	if err := board.Configure(pinSetupFor(&cfg)); err != nil {
		return fmt.Errorf("configure board: %w", err)
	}

	clock := realClock{}
	messenger, err := establishLink(ctx, cfg.Link, func(ctx context.Context) (*Messenger, error) {
		return DialMessenger(ctx, cfg.Destination, logger)
	}, clock, logger)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		if !cfg.Link.RestartOnFailure {
			return err
		}
		// Exec does not run deferred calls.
		_ = board.Close()
		return restartAfterLinkFailure(ctx, cfg.Link, clock, logger)
	}
	defer messenger.Close()

	events := make(chan Event, defaultEventBuffer)

	var broadcasts chan StateBroadcast
	if cfg.HTTP.Port != 0 {
		broadcasts = make(chan StateBroadcast, 128)
	}

	loop := newControlLoop(loopOptions{
		Mixer:      cfg.ToMixerConfig(),
		SwitchPin:  cfg.Route.SwitchPin,
		Board:      board,
		Sampler:    NewSampler(cfg.ToSamplerConfig(), board, clock.Now),
		Sender:     messenger,
		Clock:      clock,
		CycleDelay: time.Duration(cfg.Timing.CycleDelayMS) * time.Millisecond,
		Events:     events,
		Broadcasts: broadcasts,
		Logger:     logger,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return loop.run(gctx)
	})

	if cfg.IPC.SocketPath != "" {
		socketPath := ExpandPath(cfg.IPC.SocketPath)
		g.Go(func() error {
			return runIPCServer(gctx, socketPath, events, logger)
		})
	}

	if cfg.HTTP.Port != 0 {
		srv := NewServer(logger, events, HubConfig{})
		mux := http.NewServeMux()
		srv.Register(mux, "/ws/state")

		g.Go(func() error {
			srv.Hub().Run(gctx)
			return nil
		})
		g.Go(func() error {
			RunBroadcaster(gctx, srv.Hub(), broadcasts, logger)
			return nil
		})
		g.Go(func() error {
			return runHTTPServer(gctx, cfg.HTTP.Port, mux, logger)
		})
	}

	logger.Info("listening",
		"board", cfg.Board.Driver,
		"destination", cfg.Destination.Host,
		"control_port", cfg.Destination.ControlPort,
		"ipc", cfg.IPC.SocketPath,
		"http_port", cfg.HTTP.Port)

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("shutting down")
	return err
}
