package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/gochat/internal/chat"
)

// sessionOptions applies the configured handshake timeout and rate limit to
// every session regardless of transport.
func sessionOptions(cfg Config, log *slog.Logger) []chat.SessionOption {
	return []chat.SessionOption{
		chat.WithSessionLogger(log),
		chat.WithHandshakeTimeout(cfg.HandshakeTimeout),
		chat.WithLimiter(newRateLimiter(cfg.RateLimit)),
	}
}

// waitTimeout waits for wg, giving up with context.DeadlineExceeded after timeout.
func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return context.DeadlineExceeded
	}
}
