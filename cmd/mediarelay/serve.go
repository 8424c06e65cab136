package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/media-relay/mediarelay/internal/artwork"
	"github.com/media-relay/mediarelay/internal/config"
	"github.com/media-relay/mediarelay/internal/control"
	"github.com/media-relay/mediarelay/internal/health"
	"github.com/media-relay/mediarelay/internal/ipc"
	"github.com/media-relay/mediarelay/internal/logging"
	"github.com/media-relay/mediarelay/internal/mock"
	"github.com/media-relay/mediarelay/internal/monitor"
	"github.com/media-relay/mediarelay/internal/mpris"
	"github.com/media-relay/mediarelay/internal/session"
	"github.com/media-relay/mediarelay/internal/ws"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay daemon",
	Long:  `Watch the host's media sessions and serve the relay endpoint over TCP and the local socket.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			cfg.Server.Port = port
		}
		if mockMode, _ := cmd.Flags().GetBool("mock"); mockMode {
			cfg.UseMock()
		}
		if backend, _ := cmd.Flags().GetString("control"); backend != "" {
			cfg.Control.Backend = backend
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServer(ctx, cfg, logger)
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "Override server port")
	serveCmd.Flags().Bool("mock", false, "Use simulated media players")
	serveCmd.Flags().String("control", "", "Override control backend (mpris, uinput, mock)")
}

func runServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	recorder := health.NewRecorder()
	registry := session.NewRegistry()
	transport := ws.NewTransport(recorder, logger)

	loader, err := artwork.NewLoader(artwork.Options{
		Timeout:   cfg.Artwork.Timeout,
		RetryMax:  cfg.Artwork.RetryMax,
		CacheSize: cfg.Artwork.CacheSize,
		MaxBytes:  cfg.Artwork.MaxBytes,
	}, logger)
	if err != nil {
		return fmt.Errorf("artwork loader: %w", err)
	}
	defer loader.Close()
	listener := monitor.NewListener(transport, loader, recorder, logger)

	var (
		src      monitor.Source
		mprisSrc *mpris.Source
		mockSrc  *mock.Source
	)
	if cfg.Monitor.Source == "mock" {
		logger.Info("starting with simulated players")
		mockSrc = mock.NewSource(mock.Options{Tick: cfg.Monitor.MockTick}, logger)
		src = mockSrc
	} else {
		mprisSrc, err = mpris.Connect(logger)
		if err != nil {
			return fmt.Errorf("connect to media players: %w", err)
		}
		defer mprisSrc.Close()
		src = mprisSrc
	}

	sink, closeSink, err := openKeySink(cfg, mprisSrc, mockSrc, registry, logger)
	if err != nil {
		return err
	}
	defer closeSink()
	dispatcher := control.NewDispatcher(sink, recorder, logger)

	mon := monitor.New(src, registry, listener, recorder, logger, monitor.Options{
		EmitInitialState: cfg.Monitor.EmitInitialState,
		InboxSize:        cfg.Monitor.InboxSize,
	})

	server := ws.NewServer(transport, dispatcher, registry, mon.Status, recorder, logger, ws.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AuthToken:      cfg.Server.AuthToken,
		WriteTimeout:   cfg.Server.WriteTimeout,
	})
	handler := server.Handler()

	tcp, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr(), err)
	}
	tcp = netutil.LimitListener(tcp, cfg.Server.MaxConnections)

	servers := []*http.Server{}
	serveErr := make(chan error, 2)
	serve := func(l net.Listener, name string) {
		srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
		servers = append(servers, srv)
		logger.Info("relay listening", zap.String("addr", name))
		go func() {
			if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("serve %s: %w", name, err)
			}
		}()
	}
	serve(tcp, cfg.Addr())

	if cfg.Server.Socket != "-" {
		path := cfg.Server.Socket
		if path == "" {
			path = ipc.DefaultPath()
		}
		local, err := ipc.Listen(path)
		if err != nil {
			logger.Warn("local socket unavailable", zap.String("path", path), zap.Error(err))
		} else {
			defer func() {
				if err := ipc.Destroy(path); err != nil {
					logger.Debug("local socket cleanup", zap.String("path", path), zap.Error(err))
				}
			}()
			serve(local, path)
		}
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	if mockSrc != nil {
		go mockSrc.Run(runCtx)
	}

	monErr := make(chan error, 1)
	go func() { monErr <- mon.Run(runCtx) }()

	var runErr error
	monitorDone := false
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-monErr:
		monitorDone = true
	case runErr = <-serveErr:
	}

	cancelRun()
	if !monitorDone {
		if err := <-monErr; err != nil && runErr == nil {
			runErr = err
		}
	}

	transport.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}
	return runErr
}

// openKeySink builds the key sink selected by control.backend and the
// function that releases it.
func openKeySink(cfg *config.Config, mprisSrc *mpris.Source, mockSrc *mock.Source, registry *session.Registry, logger *zap.Logger) (control.KeySink, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Control.Backend {
	case "uinput":
		sink, err := control.OpenUinput(cfg.Control.UinputPath)
		if err != nil {
			return nil, nil, fmt.Errorf("control backend: %w", err)
		}
		return sink, sink.Close, nil
	case "mock":
		mockSrc.SetFocus(registry.Focused)
		return mockSrc, noop, nil
	default:
		return mpris.NewKeySink(mprisSrc, registry.Focused, logger), noop, nil
	}
}
