// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/hartmanng/camdelegate/lib/capability"
	"github.com/hartmanng/camdelegate/lib/capture"
	"github.com/hartmanng/camdelegate/lib/clock"
	"github.com/hartmanng/camdelegate/lib/config"
	"github.com/hartmanng/camdelegate/lib/grants"
	"github.com/hartmanng/camdelegate/lib/logging"
	"github.com/hartmanng/camdelegate/lib/process"
	"github.com/hartmanng/camdelegate/lib/prompt"
	"github.com/hartmanng/camdelegate/lib/protocol"
	completion "github.com/hartmanng/camdelegate/lib/signal"
	"github.com/hartmanng/camdelegate/lib/surface"
	"github.com/hartmanng/camdelegate/lib/version"
)

// requesterName is the app the consent dialog says is asking.
const requesterName = "camdelegate-client"

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
		policyPath    string
		compression   string
		fps           int
		promptOnStart bool
		preview       bool
	)

	flagSet := pflag.NewFlagSet("camdelegate-server", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "config file (default: $CAMDELEGATE_CONFIG, then built-in defaults)")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flagSet.StringVar(&socketPath, "socket", "", "capability service socket (overrides server.socket_path)")
	flagSet.StringVar(&policyPath, "policy", "", "answer prompts from this JSONC policy file instead of the terminal")
	flagSet.StringVar(&compression, "compression", "", "frame compression: none, lz4, zstd (overrides server.compression)")
	flagSet.IntVar(&fps, "fps", 0, "capture frame rate (overrides server.fps)")
	flagSet.BoolVar(&promptOnStart, "prompt-on-start", false, "ask for the camera permission at launch")
	flagSet.BoolVar(&preview, "preview", false, "stream the camera to a local preview surface at launch")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("camdelegate-server")
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
	logger := logging.New(level)

	cfg, err := config.Resolve(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if socketPath != "" {
		cfg.Server.SocketPath = socketPath
	}
	if policyPath != "" {
		cfg.Server.PolicyFile = policyPath
	}
	if compression != "" {
		cfg.Server.Compression = compression
	}
	if fps != 0 {
		cfg.Server.FPS = fps
	}
	cfg.Server.PromptOnStart = cfg.Server.PromptOnStart || promptOnStart
	cfg.Server.Preview = cfg.Server.Preview || preview
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg.Server, logger)
}

func serve(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) error {
	clk := clock.Real()

	store, err := grants.Open(cfg.GrantsFile, clk)
	if err != nil {
		return fmt.Errorf("opening grants: %w", err)
	}

	prompter, err := choosePrompter(cfg.PolicyFile, os.Stdin, os.Stdout, logger)
	if err != nil {
		return err
	}

	frameCompression, err := capture.ParseCompression(cfg.Compression)
	if err != nil {
		return err
	}
	camera := capture.NewCamera(capture.Config{
		Source: capture.NewTestPattern(
			capture.Device{ID: "0", Width: 320, Height: 240},
			capture.Device{ID: "1", Width: 160, Height: 120},
		),
		Gate:        store,
		Clock:       clk,
		FPS:         cfg.FPS,
		Compression: frameCompression,
		MaxFrames:   cfg.MaxFrames,
		Logger:      logger.With("component", "camera"),
	})
	defer camera.Close()

	launcher := prompt.NewLauncher(prompt.NewHandler(prompt.HandlerConfig{
		Prompter:  prompter,
		Grants:    store,
		Deliverer: completion.SocketDeliverer{},
		Logger:    logger.With("component", "prompt"),
	}))

	server := capability.NewServer(capability.ServerConfig{
		SocketPath:    cfg.SocketPath,
		PlatformLevel: cfg.PlatformLevel,
		HandleTTL:     cfg.HandleTTL.Std(),
		Grants:        store,
		Launcher:      launcher,
		Camera:        camera,
		Clock:         clk,
		Logger:        logger.With("component", "capability"),
	})

	logger.Info("camdelegate-server starting",
		"version", version.Info(),
		"socket", cfg.SocketPath,
		"grants", cfg.GrantsFile,
		"platform_level", cfg.PlatformLevel,
	)

	if cfg.PromptOnStart {
		launcher.Launch(ctx, prompt.Request{Permission: protocol.PermissionCamera})
	}
	if cfg.Preview {
		go runPreview(ctx, cfg.PreviewSocket, launcher, camera, logger.With("component", "preview"))
	}

	err = server.Serve(ctx)
	launcher.Wait()
	logger.Info("camdelegate-server stopped")
	return err
}

// choosePrompter answers prompts from the policy file when one is
// configured, on the terminal when stdin is one, and dismisses them
// otherwise.
func choosePrompter(policyPath string, stdin *os.File, stdout io.Writer, logger *slog.Logger) (prompt.Prompter, error) {
	if policyPath != "" {
		prompter, err := prompt.ReadPolicyFile(policyPath)
		if err != nil {
			return nil, err
		}
		logger.Info("answering prompts from policy", "path", policyPath)
		return prompter, nil
	}
	if term.IsTerminal(int(stdin.Fd())) {
		return prompt.NewTerminalPrompter(requesterName, stdin, stdout), nil
	}
	logger.Warn("no terminal and no --policy; prompts will be dismissed")
	return prompt.NewFixedPrompter(prompt.Dismissed), nil
}

// runPreview streams the camera into a local surface once any prompt
// queued at launch has finished, and logs what arrived when it ends.
func runPreview(ctx context.Context, socketPath string, launcher *prompt.Launcher, camera *capture.Camera, logger *slog.Logger) {
	var first sync.Once
	preview := surface.New(socketPath, func(frame capture.Frame, _ []byte) {
		first.Do(func() {
			logger.Info("preview receiving frames", "device", frame.Device, "width", frame.Width, "height", frame.Height)
		})
	}, logger)
	if err := preview.Create(ctx); err != nil {
		logger.Error("creating preview surface", "error", err)
		return
	}
	defer preview.Destroy()

	launcher.Wait()
	target, err := preview.Target()
	if err != nil {
		logger.Error("preview target", "error", err)
		return
	}
	session, err := camera.Attach(ctx, target)
	if err != nil {
		logger.Warn("preview not started", "error", err)
		return
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-session.Done():
			stats := preview.Stats()
			logger.Info("preview ended", "frames", stats.Frames, "corrupt", stats.Corrupt, "error", session.Err())
			return
		case <-ticker.C:
			stats := preview.Stats()
			logger.Debug("preview", "frames", stats.Frames, "bytes", stats.Bytes, "last_size", stats.LastFrameSize)
		}
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `camdelegate-server hosts the camera capability service.

Clients bind to its socket, ask it to prompt for permissions on their
behalf, and hand it render targets to stream the camera into.

Usage:
  camdelegate-server [flags]

Examples:
  # Prompt on this terminal
  camdelegate-server

  # Answer prompts from a policy file, preview the camera locally
  camdelegate-server --policy policy.jsonc --preview

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
