package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("rotencd v%s\n", version)
	fmt.Println("Rotary encoder decoder daemon for GPIO-attached quadrature encoders")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  rotencd [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Daemon that decodes a rotary quadrature encoder (pins A/B) plus an")
	fmt.Println("  optional push button attached to sysfs GPIO, and publishes the decoded")
	fmt.Println("  rotation/button events on a Unix domain socket. Optionally forwards")
	fmt.Println("  detents as volume steps to CamillaDSP over WebSocket.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (flags override file values)")
	fmt.Println()
	fmt.Println("  -pin-a int")
	fmt.Printf("        GPIO for encoder pin A, BCM numbering (default %d)\n", defaultPinA)
	fmt.Println()
	fmt.Println("  -pin-b int")
	fmt.Printf("        GPIO for encoder pin B, BCM numbering (default %d)\n", defaultPinB)
	fmt.Println()
	fmt.Println("  -mode string")
	fmt.Printf("        Decode mode: single-edge|lookup-table|half-step|full-step (default %q)\n", string(defaultDecodeMode))
	fmt.Println("        full-step and half-step absorb contact bounce in the decode tables;")
	fmt.Println("        single-edge relies on -sensitivity-ms instead")
	fmt.Println()
	fmt.Println("  -sensitivity-ms int")
	fmt.Printf("        Re-trigger filter for single-edge mode in ms (default %d)\n", defaultSensitivityMS)
	fmt.Println()
	fmt.Println("  -button-pin int")
	fmt.Println("        GPIO for the push button, -1 for no button (default -1)")
	fmt.Println()
	fmt.Println("  -button-debounce-ms int")
	fmt.Printf("        Button debounce delay in ms (default %d)\n", defaultButtonDebounceMS)
	fmt.Println()
	fmt.Println("  -update-hz int")
	fmt.Printf("        Encoder poll frequency in Hz (default %d)\n", defaultUpdateHz)
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for the event feed (default %q)\n", defaultIPCSocketPath)
	fmt.Println()
	fmt.Println("  -camilladsp")
	fmt.Println("        Enable the CamillaDSP volume sink")
	fmt.Println()
	fmt.Println("  -camilladsp-ws-url string")
	fmt.Printf("        CamillaDSP websocket URL (default %q)\n", defaultWsURL)
	fmt.Println()
	fmt.Println("  -camilladsp-ws-timeout-ms int")
	fmt.Printf("        Timeout for websocket responses in ms (default %d)\n", defaultReadTimeoutMS)
	fmt.Println()
	fmt.Println("  -camilladsp-min-db float")
	fmt.Printf("        Minimum volume clamp in dB (default %.1f)\n", defaultMinDB)
	fmt.Println()
	fmt.Println("  -camilladsp-max-db float")
	fmt.Printf("        Maximum volume clamp in dB (default %.1f)\n", defaultMaxDB)
	fmt.Println()
	fmt.Println("  -db-per-step float")
	fmt.Printf("        Volume change per detent in dB (default %.1f)\n", defaultDbPerStep)
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
	fmt.Println("  # Decode an encoder on GPIO 23/24, full-step mode")
	fmt.Println("  rotencd -pin-a 23 -pin-b 24")
	fmt.Println()
	fmt.Println("  # Encoder with push button, act as a CamillaDSP volume knob")
	fmt.Println("  rotencd -pin-a 23 -pin-b 24 -button-pin 25 -camilladsp")
	fmt.Println()
	fmt.Println("  # Watch the decoded event stream")
	fmt.Println("  rotenc-ctl watch")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires write access to /sys/class/gpio (run as root or add the user")
	fmt.Println("    to the 'gpio' group)")
	fmt.Println("  - full-step emits one event per detent; half-step also emits at the")
	fmt.Println("    half-way position; lookup-table and single-edge are coarser filters")
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
		configPath = flag.String("config", "", "Path to YAML config file")

		pinA          = flag.Int("pin-a", defaultPinA, "GPIO for encoder pin A (BCM numbering)")
		pinB          = flag.Int("pin-b", defaultPinB, "GPIO for encoder pin B (BCM numbering)")
		mode          = flag.String("mode", string(defaultDecodeMode), "Decode mode: single-edge|lookup-table|half-step|full-step")
		sensitivityMs = flag.Int("sensitivity-ms", defaultSensitivityMS, "Single-edge re-trigger filter in milliseconds")

		buttonPin        = flag.Int("button-pin", PinNone, "GPIO for the push button, -1 for none")
		buttonDebounceMs = flag.Int("button-debounce-ms", defaultButtonDebounceMS, "Button debounce delay in milliseconds")

		updateHz      = flag.Int("update-hz", defaultUpdateHz, "Encoder poll frequency in Hz")
		ipcSocketPath = flag.String("ipc-socket", defaultIPCSocketPath, "Unix domain socket path for the event feed")

		camillaEnabled   = flag.Bool("camilladsp", false, "Enable the CamillaDSP volume sink")
		camillaWsUrl     = flag.String("camilladsp-ws-url", defaultWsURL, "CamillaDSP websocket URL")
		camillaWsTimeout = flag.Int("camilladsp-ws-timeout-ms", defaultReadTimeoutMS, "Timeout in milliseconds for websocket responses")
		camillaMinDb     = flag.Float64("camilladsp-min-db", defaultMinDB, "Minimum volume clamp in dB")
		camillaMaxDb     = flag.Float64("camilladsp-max-db", defaultMaxDB, "Maximum volume clamp in dB")
		dbPerStep        = flag.Float64("db-per-step", defaultDbPerStep, "Volume change per detent in dB")

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

	// Config file first, then flag overrides on top. Only flags the user
	// actually set override the file.
	cfg := DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	}

	var overrides FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "pin-a":
			overrides.PinA = pinA
		case "pin-b":
			overrides.PinB = pinB
		case "mode":
			overrides.Mode = mode
		case "sensitivity-ms":
			overrides.SensitivityMS = sensitivityMs
		case "button-pin":
			overrides.ButtonPin = buttonPin
		case "button-debounce-ms":
			overrides.ButtonDebounceMS = buttonDebounceMs
		case "update-hz":
			overrides.UpdateHz = updateHz
		case "ipc-socket":
			overrides.IPCSocketPath = ipcSocketPath
		case "camilladsp":
			overrides.CamillaEnabled = camillaEnabled
		case "camilladsp-ws-url":
			overrides.CamillaWsURL = camillaWsUrl
		case "camilladsp-ws-timeout-ms":
			overrides.CamillaTimeoutMS = camillaWsTimeout
		case "camilladsp-min-db":
			overrides.CamillaMinDB = camillaMinDb
		case "camilladsp-max-db":
			overrides.CamillaMaxDB = camillaMaxDb
		case "db-per-step":
			overrides.DbPerStep = dbPerStep
		case "log-level":
			overrides.LogLevel = logLevelStr
		}
	})
	overrides.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := setupLogger(logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// GPIO sample source and encoder session.
	source, err := newGpioSource(logger)
	if err != nil {
		logger.Error("failed to set up GPIO", "error", err)
		os.Exit(1)
	}
	defer source.Close()

	enc, err := NewEncoder(cfg.ToEncoderOptions(), source)
	if err != nil {
		logger.Error("failed to set up encoder", "error", err,
			"pin_a", cfg.Encoder.PinA, "pin_b", cfg.Encoder.PinB, "mode", cfg.Encoder.Mode)
		os.Exit(1)
	}
	defer enc.Close()

	// Optional CamillaDSP volume sink.
	var sink volumeSink
	if cfg.CamillaDSP.Enabled {
		client, err := NewCamillaDSPClient(cfg.CamillaDSP.WsURL, cfg.CamillaDSP.MinDB, cfg.CamillaDSP.MaxDB, cfg.CamillaDSP.TimeoutMS, logger)
		if err != nil {
			logger.Error("failed to connect to CamillaDSP", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		sink = client
	}

	hub := newEventHub()
	status := func() IPCStatus {
		return IPCStatus{
			Version:       version,
			Mode:          DecodeMode(cfg.Encoder.Mode),
			PinA:          cfg.Encoder.PinA,
			PinB:          cfg.Encoder.PinB,
			ButtonPin:     cfg.Button.Pin,
			ButtonPressed: enc.ReadButton(),
		}
	}

	logger.Debug("configuration",
		"pin_a", cfg.Encoder.PinA,
		"pin_b", cfg.Encoder.PinB,
		"mode", cfg.Encoder.Mode,
		"sensitivity_ms", cfg.Encoder.SensitivityMS,
		"button_pin", cfg.Button.Pin,
		"button_debounce_ms", cfg.Button.DebounceMS,
		"update_hz", cfg.Daemon.UpdateHz,
		"ipc_socket", cfg.IPC.SocketPath,
		"camilladsp_enabled", cfg.CamillaDSP.Enabled)

	listenInfo := []any{"pin_a", cfg.Encoder.PinA, "pin_b", cfg.Encoder.PinB, "mode", cfg.Encoder.Mode, "ipc", cfg.IPC.SocketPath}
	if cfg.CamillaDSP.Enabled {
		listenInfo = append(listenInfo, "camilladsp_ws", cfg.CamillaDSP.WsURL)
	}
	logger.Info("listening", listenInfo...)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runIPCServer(ctx, cfg.IPC.SocketPath, hub, status, logger)
	})
	g.Go(func() error {
		runDaemon(ctx, enc, hub, sink, cfg.ToSinkTuning(), cfg.Daemon.UpdateHz, logger)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("daemon exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
