// Package main runs callbridge: it connects to a remote brokerage endpoint and
// issues synchronous, correlated calls over the asynchronous connection. With
// -remote it plays a simulated remote instead.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/c360/callbridge/config"
	"github.com/c360/callbridge/connection"
	errs "github.com/c360/callbridge/errors"
	"github.com/c360/callbridge/ib"
	"github.com/c360/callbridge/metric"
	"github.com/c360/callbridge/session"
	"github.com/c360/callbridge/task"
	"github.com/c360/callbridge/wire"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "callbridge"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		slog.Error("Application failed", "error", err, "class", errs.Classify(err).String(), "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	cliCfg, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		return nil
	}

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		logger.Info("Configuration is valid", "config", cfg.String())
		return nil
	}

	logger.Info("Starting callbridge",
		"version", Version,
		"build_time", BuildTime,
		"transport", cfg.Connection.Transport,
		"codec", cfg.Connection.Codec,
		"remote", cliCfg.Remote)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := metric.NewMetricsRegistry()
	if cfg.Metrics.Enabled {
		srv := metric.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, registry)
		if err := srv.Start(); err != nil {
			return err
		}
		logger.Info("Metrics server started", "address", srv.Address())
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				logger.Warn("Metrics server shutdown failed", "error", err)
			}
		}()
	}

	codec, err := wire.CodecFor(cfg.Connection.Codec)
	if err != nil {
		return err
	}

	if cliCfg.Remote {
		return serveRemote(ctx, cfg, codec, registry, logger)
	}
	return runClient(ctx, cfg, cliCfg, codec, registry, logger)
}

// loadConfig reads the config file, or defaults plus environment when none is
// given, and applies command-line overrides.
func loadConfig(cliCfg *CLIConfig) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cliCfg.ConfigPath != "" {
		cfg, err = config.Load(cliCfg.ConfigPath)
	} else {
		l := config.NewLoader()
		l.EnableValidation(true)
		cfg, err = l.Load()
	}
	if err != nil {
		return nil, err
	}

	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}
	if cliCfg.Simulate {
		cfg.Connection.Transport = config.TransportMemory
	}
	if cliCfg.Timeout > 0 {
		cfg.Command.DefaultTimeout = config.Duration(cliCfg.Timeout)
	}
	return cfg, nil
}

func runClient(
	ctx context.Context,
	cfg *config.Config,
	cliCfg *CLIConfig,
	codec wire.Codec,
	registry *metric.MetricsRegistry,
	logger *slog.Logger,
) error {
	l, err := dial(ctx, cfg, codec, registry, logger)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer l.close()

	sess := session.New(l.conn, ib.Decoder(),
		session.WithCodec(codec),
		session.WithLogger(logger),
		session.WithMetricsRegistry(registry),
		session.WithDefaultTimeout(cfg.Command.DefaultTimeout.Std()),
		session.WithJournal(l.journal),
		session.WithReadBuffer(cfg.Dispatch.ReadBuffer),
		session.WithConnectionOptions(
			connection.WithIDBase(cfg.Connection.IDBase),
			connection.WithBroadcastWorkers(cfg.Dispatch.BroadcastWorkers),
			connection.WithBroadcastQueue(cfg.Dispatch.BroadcastQueue),
		),
	)
	defer sess.Close()

	// Connection-level notices arrive as broadcast errors.
	cancel := sess.Subscribe(ib.KindError, func(_ context.Context, ev task.EventTask) {
		logger.Warn("Remote notice", "event", task.Describe(ev))
	})
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if l.background != nil {
		g.Go(func() error { return l.background(gctx) })
	}
	g.Go(func() error { return sess.Run(gctx) })
	g.Go(func() error {
		d := &demo{
			sess:    sess,
			symbol:  cliCfg.Symbol,
			timeout: cfg.Command.DefaultTimeout.Std(),
			retry:   cfg.Retry(),
			logger:  logger,
		}
		err := d.run(gctx)
		// The demo is the only work; ending the session stops the group.
		_ = sess.Close()
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("callbridge stopped")
	return nil
}
