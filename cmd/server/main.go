package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/gochat/internal/server"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gochat: %v\n", err)
	}
	os.Exit(code)
}

// run loads configuration, serves chat until SIGINT or SIGTERM and reports
// the exit code.
func run() (int, error) {
	cfg, err := server.LoadConfig()
	if err != nil {
		return exitConfig, err
	}

	log := server.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	log.Info("starting GoChat server",
		"addr", cfg.Addr(),
		"tcp_enabled", cfg.TCPEnabled(),
		"tcp_addr", cfg.TCPAddr(),
		"history_size", cfg.HistorySize,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg, log); err != nil {
		return exitRuntime, err
	}

	log.Info("server stopped")
	return exitOK, nil
}
