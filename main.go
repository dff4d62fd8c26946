package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync/atomic"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"screenagent/input"
	"screenagent/internal/capture"
	"screenagent/internal/clock"
	"screenagent/internal/config"
	in "screenagent/internal/input"
	"screenagent/internal/server"
	"screenagent/internal/session"
	"screenagent/internal/socketio"
	"screenagent/internal/supervisor"
)

// errNoMachineKey ends the process quietly; there is nothing to connect as.
var errNoMachineKey = errors.New("no machine key provided")

type options struct {
	cfg        config.Config
	machineKey string
	once       bool
}

// parseArgs resolves the configuration: defaults, then the config file, then
// the environment, then flags.
func parseArgs(args []string, stderr io.Writer) (options, error) {
	fs := pflag.NewFlagSet("screenagent", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: screenagent [flags] <machineKey>")
		fs.PrintDefaults()
	}
	configPath := fs.String("config", "", "path to a YAML config file")
	serverURL := fs.String("server-url", "", "Socket.IO server URL")
	logLevel := fs.String("log-level", "", "log level (error, warn, info, debug)")
	statusAddr := fs.String("status-addr", "", "listen address for /healthz and /status (empty disables)")
	display := fs.Int("display", -1, "display index to capture (-1 for primary)")
	once := fs.Bool("once", false, "run a single session without restarting")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts := options{cfg: config.Default(), machineKey: fs.Arg(0), once: *once}
	if opts.machineKey == "" {
		return opts, errNoMachineKey
	}
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return opts, err
		}
		opts.cfg = cfg
	}
	if err := opts.cfg.ApplyEnv(); err != nil {
		return opts, err
	}
	if fs.Changed("server-url") {
		opts.cfg.ServerURL = *serverURL
	}
	if fs.Changed("log-level") {
		opts.cfg.Logging.Level = *logLevel
	}
	if fs.Changed("status-addr") {
		opts.cfg.StatusAddr = *statusAddr
	}
	if fs.Changed("display") {
		opts.cfg.Capture.Display = *display
	}
	if err := opts.cfg.Validate(); err != nil {
		return opts, err
	}
	if _, err := parseLogLevel(opts.cfg.Logging.Level); err != nil {
		return opts, err
	}
	return opts, nil
}

func main() {
	opts, err := parseArgs(os.Args[1:], os.Stderr)
	switch {
	case errors.Is(err, errNoMachineKey):
		fmt.Println("No machine key provided")
		return
	case errors.Is(err, pflag.ErrHelp):
		return
	case err != nil:
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}

	level, _ := parseLogLevel(opts.cfg.Logging.Level)
	logger := setupLogger(os.Stdout, level)

	if runtime.GOOS == "linux" && os.Getenv("DISPLAY") == "" {
		os.Setenv("DISPLAY", ":0")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("agent exited", "error", err)
		os.Exit(1)
	}
	logger.Info("agent stopped")
}

func run(ctx context.Context, opts options, logger *slog.Logger) error {
	dev, err := input.New()
	if err != nil {
		return fmt.Errorf("input device: %w", err)
	}
	cfg := opts.cfg
	logger.Info("starting agent",
		"platform", input.PlatformName(),
		"server", cfg.ServerURL,
		"display", cfg.Capture.Display)

	dispatcher := in.NewDispatcher(dev, logger.With("component", "dispatcher"))
	dispatcher.Settle = cfg.SettleDelay()

	pipeline := &capture.Pipeline{
		Grabber: capture.ScreenGrabber{Display: cfg.Capture.Display},
		Options: capture.Options{
			MaxWidth:  cfg.Capture.MaxWidth,
			MaxHeight: cfg.Capture.MaxHeight,
			Quality:   cfg.Capture.Quality,
		},
		Platform: input.PlatformName(),
		Clock:    clock.Real(),
		Logger:   logger.With("component", "capture"),
	}
	if cfg.Capture.DrawCursor {
		pipeline.Pointer = dev.MousePos
	}

	var current atomic.Pointer[session.Controller]
	runSession := func(ctx context.Context) error {
		client := &socketio.Client{
			URL:     cfg.ServerURL,
			Header:  http.Header{"machine-key": []string{opts.machineKey}},
			Timeout: cfg.ConnectTimeout(),
			Logger:  logger.With("component", "socketio"),
		}
		ctl := session.New(opts.machineKey, client, dispatcher, pipeline,
			session.WithLogger(logger.With("component", "session")))
		current.Store(ctl)
		return ctl.Run(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Once the session loop is done, the status server goes with it.
		defer cancel()
		if opts.once {
			return runSession(ctx)
		}
		return supervisor.Run(ctx, supervisor.Options{
			RestartDelay: cfg.RestartDelay(),
			Logger:       logger.With("component", "supervisor"),
		}, runSession)
	})
	if cfg.StatusAddr != "" {
		srv := &server.Server{
			Addr:   cfg.StatusAddr,
			Logger: logger.With("component", "status"),
			Status: func() any {
				if ctl := current.Load(); ctl != nil {
					return ctl.Status()
				}
				return session.Status{State: session.Disconnected}
			},
		}
		g.Go(func() error { return srv.Run(ctx) })
	}
	return g.Wait()
}
