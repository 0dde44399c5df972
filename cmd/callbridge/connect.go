package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/c360/callbridge/config"
	"github.com/c360/callbridge/ib"
	"github.com/c360/callbridge/metric"
	"github.com/c360/callbridge/natsclient"
	"github.com/c360/callbridge/session"
	"github.com/c360/callbridge/transport"
	"github.com/c360/callbridge/transport/memconn"
	"github.com/c360/callbridge/transport/natsconn"
	"github.com/c360/callbridge/transport/wsconn"
	"github.com/c360/callbridge/wire"
)

// link is the client end of a connection plus whatever must be torn down with it.
type link struct {
	conn    transport.Conn
	journal session.Journal
	// background runs next to the session, e.g. the in-process simulator.
	background func(ctx context.Context) error
	cleanup    []func()
}

func (l *link) close() {
	for i := len(l.cleanup) - 1; i >= 0; i-- {
		l.cleanup[i]()
	}
}

// dial opens the client end of the configured transport.
func dial(ctx context.Context, cfg *config.Config, codec wire.Codec, registry *metric.MetricsRegistry, logger *slog.Logger) (*link, error) {
	l := &link{}

	switch cfg.Connection.Transport {
	case config.TransportMemory:
		local, remote := memconn.Pipe(cfg.Dispatch.ReadBuffer)
		sim := &ib.Simulator{Conn: remote, Codec: codec, Logger: logger.With("role", "simulator")}
		l.conn = local
		l.background = sim.Run
		l.cleanup = append(l.cleanup, func() { _ = remote.Close() })

	case config.TransportNATS:
		client, err := connectNATS(ctx, cfg.Connection.NATS, registry, logger)
		if err != nil {
			return nil, err
		}
		l.cleanup = append(l.cleanup, func() { closeNATS(client) })

		nc := cfg.Connection.NATS
		conn, err := natsconn.Dial(ctx, client, nc.Prefix, nc.ConnectionID, natsconn.WithLogger(logger))
		if err != nil {
			l.close()
			return nil, err
		}
		l.conn = conn
		if nc.Journal {
			j, err := natsconn.NewJournal(ctx, client, nc.Prefix, nc.ConnectionID)
			if err != nil {
				_ = conn.Close()
				l.close()
				return nil, fmt.Errorf("journal: %w", err)
			}
			l.journal = j
		}

	case config.TransportWebSocket:
		conn, err := wsconn.Dial(ctx, cfg.Connection.WebSocket.URL, nil, logger)
		if err != nil {
			return nil, err
		}
		l.conn = conn

	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Connection.Transport)
	}

	if cfg.Pacing.Enabled {
		l.conn = transport.Paced(l.conn, cfg.Pacing.Rate, cfg.Pacing.Burst)
	}
	return l, nil
}

func connectNATS(ctx context.Context, nc config.NATSConfig, registry *metric.MetricsRegistry, logger *slog.Logger) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithName(appName),
		natsclient.WithLogger(logger),
		natsclient.WithMaxReconnects(nc.MaxReconnects),
		natsclient.WithDisconnectCallback(func(err error) {
			logger.Warn("NATS disconnected, pending calls keep waiting", "error", err)
		}),
		natsclient.WithReconnectCallback(func() {
			logger.Info("NATS reconnected")
		}),
	}
	if nc.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(nc.ReconnectWait.Std()))
	}
	if nc.PingInterval > 0 {
		opts = append(opts, natsclient.WithPingInterval(nc.PingInterval.Std()))
	}
	if nc.DrainTimeout > 0 {
		opts = append(opts, natsclient.WithDrainTimeout(nc.DrainTimeout.Std()))
	}
	if nc.CircuitThreshold > 0 {
		opts = append(opts, natsclient.WithCircuitBreakerThreshold(nc.CircuitThreshold))
	}
	if nc.MaxBackoff > 0 {
		opts = append(opts, natsclient.WithMaxBackoff(nc.MaxBackoff.Std()))
	}
	if registry != nil {
		opts = append(opts, natsclient.WithMetrics(registry.CoreMetrics()))
	}
	switch {
	case nc.Token != "":
		opts = append(opts, natsclient.WithToken(nc.Token))
	case nc.Username != "":
		opts = append(opts, natsclient.WithCredentials(nc.Username, nc.Password))
	}

	client, err := natsclient.NewClient(strings.Join(nc.URLs, ","), opts...)
	if err != nil {
		return nil, err
	}

	slog.Info("Connecting to NATS", "urls", nc.URLs)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		closeNATS(client)
		return nil, fmt.Errorf("NATS connection timeout: %w", err)
	}
	return client, nil
}

func closeNATS(client *natsclient.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Close(ctx); err != nil {
		slog.Warn("NATS close failed", "error", err)
	}
}

// serveRemote plays the simulated remote on the configured transport until ctx
// ends.
func serveRemote(ctx context.Context, cfg *config.Config, codec wire.Codec, registry *metric.MetricsRegistry, logger *slog.Logger) error {
	logger = logger.With("role", "simulator")

	switch cfg.Connection.Transport {
	case config.TransportNATS:
		client, err := connectNATS(ctx, cfg.Connection.NATS, registry, logger)
		if err != nil {
			return err
		}
		defer closeNATS(client)

		nc := cfg.Connection.NATS
		conn, err := natsconn.Accept(ctx, client, nc.Prefix, nc.ConnectionID, natsconn.WithLogger(logger))
		if err != nil {
			return err
		}
		defer conn.Close()

		logger.Info("Simulated remote listening on NATS", "prefix", nc.Prefix, "connection_id", nc.ConnectionID)
		sim := &ib.Simulator{Conn: conn, Codec: codec, Logger: logger}
		return sim.Run(ctx)

	case config.TransportWebSocket:
		u, err := url.Parse(cfg.Connection.WebSocket.URL)
		if err != nil {
			return fmt.Errorf("websocket url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = "/"
		}

		up := &wsconn.Upgrader{Logger: logger}
		mux := http.NewServeMux()
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			conn, err := up.Accept(w, r)
			if err != nil {
				logger.Warn("websocket upgrade failed", "error", err)
				return
			}
			defer conn.Close()
			sim := &ib.Simulator{Conn: conn, Codec: codec, Logger: logger}
			if err := sim.Run(ctx); err != nil {
				logger.Warn("simulated remote stopped", "error", err)
			}
		})

		srv := &http.Server{Addr: u.Host, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()
		logger.Info("Simulated remote listening on WebSocket", "addr", u.Host, "path", path)

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil

	default:
		return fmt.Errorf("-remote needs the nats or websocket transport, not %q", cfg.Connection.Transport)
	}
}
