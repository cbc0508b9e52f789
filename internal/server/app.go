package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/gochat/internal/chat"
)

// Run listens on the configured addresses and serves chat until ctx is
// cancelled.
func Run(ctx context.Context, cfg Config, log *slog.Logger) error {
	httpLn, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}

	var tcpLn net.Listener
	if cfg.TCPEnabled() {
		tcpLn, err = net.Listen("tcp", cfg.TCPAddr())
		if err != nil {
			closeListeners(httpLn)
			return fmt.Errorf("listen tcp: %w", err)
		}
	}

	return Serve(ctx, cfg, log, httpLn, tcpLn)
}

// Serve runs one chat room over the HTTP listener and, when tcpLn is not nil,
// the raw TCP listener. Both transports share the same engine. When ctx is
// cancelled the listeners are closed, every participant is disconnected
// without departure notices and Serve waits up to cfg.ShutdownTimeout for
// sessions to finish.
func Serve(ctx context.Context, cfg Config, log *slog.Logger, httpLn, tcpLn net.Listener) error {
	if err := cfg.Validate(); err != nil {
		closeListeners(httpLn, tcpLn)
		return err
	}

	engine := chat.NewEngine(
		chat.NewRegistry(),
		chat.NewHistory(cfg.HistorySize),
		chat.WithLogger(log.With("component", "engine")),
	)

	// Sessions outlive ctx so the engine can disconnect them silently first.
	sessionCtx, cancelSessions := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelSessions()

	handlers := NewHandlers(engine, cfg, log)
	httpServer := CreateServer(httpLn.Addr().String(), SetupRoutes(handlers), sessionCtx)

	var tcpServer *TCPServer
	if tcpLn != nil {
		tcpServer = NewTCPServer(engine, cfg, log)
	}

	eg, gctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return StartServer(httpServer, httpLn, log)
	})

	if tcpServer != nil {
		eg.Go(func() error {
			return tcpServer.Serve(sessionCtx, tcpLn)
		})
	}

	eg.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", "participants", engine.Registry().Count())

		var errs []error
		if err := ShutdownServer(httpServer, cfg.ShutdownTimeout, log); err != nil {
			errs = append(errs, err)
		}
		if tcpLn != nil {
			if err := tcpLn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				errs = append(errs, fmt.Errorf("close tcp listener: %w", err))
			}
		}

		closed := engine.Shutdown()
		cancelSessions()

		if err := handlers.Wait(cfg.ShutdownTimeout); err != nil {
			errs = append(errs, fmt.Errorf("waiting for websocket sessions: %w", err))
		}
		if tcpServer != nil {
			if err := tcpServer.Wait(cfg.ShutdownTimeout); err != nil {
				errs = append(errs, fmt.Errorf("waiting for tcp sessions: %w", err))
			}
		}

		log.Info("shutdown complete", "disconnected", closed)
		return errors.Join(errs...)
	})

	return eg.Wait()
}

func closeListeners(lns ...net.Listener) {
	for _, ln := range lns {
		if ln != nil {
			_ = ln.Close()
		}
	}
}
