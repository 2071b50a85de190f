// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/hartmanng/camdelegate/lib/clientapp"
	"github.com/hartmanng/camdelegate/lib/config"
	"github.com/hartmanng/camdelegate/lib/eventloop"
	"github.com/hartmanng/camdelegate/lib/logging"
	"github.com/hartmanng/camdelegate/lib/process"
	"github.com/hartmanng/camdelegate/lib/protocol"
	"github.com/hartmanng/camdelegate/lib/tui"
	"github.com/hartmanng/camdelegate/lib/version"
)

// panelLogLines is how many log lines the panel keeps.
const panelLogLines = 500

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath    string
		logLevel      string
		socketPath    string
		platformLevel int
		steps         string
	)

	flagSet := pflag.NewFlagSet("camdelegate-client", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "config file (default: $CAMDELEGATE_CONFIG, then built-in defaults)")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flagSet.StringVar(&socketPath, "socket", "", "capability service socket (overrides client.capability_socket)")
	flagSet.IntVar(&platformLevel, "platform-level", 0, "platform level for permission negotiation (overrides client.platform_level)")
	flagSet.StringVar(&steps, "steps", "", "run these comma-separated steps without the panel, then exit (e.g. bind,permissions,camera)")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("camdelegate-client")
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return err
	}

	cfg, err := config.Resolve(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if socketPath != "" {
		cfg.Client.CapabilitySocket = socketPath
	}
	if platformLevel != 0 {
		cfg.Client.PlatformLevel = platformLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	interactive := steps == "" && term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
	if steps == "" && !interactive {
		steps = defaultSteps
	}
	var plan []step
	if !interactive {
		if plan, err = parseSteps(steps); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The panel owns the terminal, so its logs go to a buffer it
	// renders instead of stderr.
	var logs *tui.LogBuffer
	var logger *slog.Logger
	if interactive {
		logs = tui.NewLogBuffer(panelLogLines)
		logger = logging.NewForWriter(logs, true, level)
	} else {
		logger = logging.New(level)
	}

	loop := eventloop.New()
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.Run(ctx)
	}()

	app := clientapp.New(ctx, clientapp.Config{
		CapabilitySocket: cfg.Client.CapabilitySocket,
		CallbackSocket:   cfg.Client.CallbackSocket,
		SurfaceSocket:    cfg.Client.SurfaceSocket,
		PlatformLevel:    cfg.Client.PlatformLevel,
		CallTimeout:      cfg.Client.CallTimeout.Std(),
		Launch:           protocol.LaunchOptions{AllowBackgroundStart: cfg.Client.AllowBackgroundStart},
		Poster:           loop,
		Logger:           logger,
	})

	serveCtx, cancelServe := context.WithCancel(ctx)
	serveDone := make(chan error, 1)
	go func() { serveDone <- app.Serve(serveCtx) }()
	select {
	case <-app.Ready():
	case err := <-serveDone:
		cancelServe()
		return fmt.Errorf("completion-signal socket: %w", err)
	}

	logger.Info("camdelegate-client starting",
		"version", version.Info(),
		"capability_socket", cfg.Client.CapabilitySocket,
		"callback_socket", cfg.Client.CallbackSocket,
		"platform_level", cfg.Client.PlatformLevel,
	)

	if interactive {
		err = runPanel(ctx, app, loop, logs, cfg.Client.CallTimeout.Std())
	} else {
		err = runSteps(ctx, app, loop, plan, logger)
	}

	cancelServe()
	if serveErr := <-serveDone; serveErr != nil && err == nil {
		err = serveErr
	}
	stop()
	<-loopDone
	return err
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `camdelegate-client delegates camera access to camdelegate-server.

On a terminal it opens a control panel; each key mirrors one button of
the client app (bind, request permissions, delegate camera, ...).
Otherwise, or with --steps, it runs steps in order and exits.

Steps:
  bind          connect to the capability service
  permissions   request every permission the platform level needs
  notifications request the notification permission only
  camera-permission request the camera permission only
  status        wait for open prompts to close, then print the permission
                state the server reports
  foreground    ask the service to start in the foreground
  camera        create the surface, delegate the camera, wait for frames
  unbind        release the connection

Usage:
  camdelegate-client [flags]

Examples:
  # Interactive panel
  camdelegate-client

  # Scripted run against a server answering from a policy file
  camdelegate-client --steps bind,permissions,status,camera

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
