// Package server provides configuration loading, defaults and validation for
// the GoChat service.
package server

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `env:"BURST" envDefault:"5" validate:"gte=1"`
	RefillInterval time.Duration `env:"REFILL_INTERVAL" envDefault:"1s" validate:"gt=0"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Host             string          `env:"SERVER_HOST" envDefault:"localhost"`
	Port             int             `env:"SERVER_PORT" envDefault:"8080" validate:"gte=0,lte=65535"`
	TCPPort          int             `env:"TCP_PORT" envDefault:"8888" validate:"gte=0,lte=65535"`
	HistorySize      int             `env:"HISTORY_SIZE" envDefault:"50" validate:"gte=1"`
	AllowedOrigins   []string        `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:8080" envSeparator:","`
	MaxMessageSize   int64           `env:"MAX_MESSAGE_SIZE" envDefault:"512" validate:"gte=1"`
	RateLimit        RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	HandshakeTimeout time.Duration   `env:"HANDSHAKE_TIMEOUT" envDefault:"10s" validate:"gt=0"`
	SendBufferSize   int             `env:"SEND_BUFFER_SIZE" envDefault:"256" validate:"gte=1"`
	ShutdownTimeout  time.Duration   `env:"SHUTDOWN_TIMEOUT" envDefault:"10s" validate:"gt=0"`
	LogLevel         string          `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	LogFormat        string          `env:"LOG_FORMAT" envDefault:"text" validate:"oneof=text json"`
}

// joinBurst is what a joiner is sent before it can drain its queue: the
// welcome notice, the replay window and its own join announcement.
func joinBurst(historySize int) int {
	return historySize + 2
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateSendBuffer, Config{})
	return v
}

// validateSendBuffer rejects send buffers too small to hold a joiner's
// initial burst, which would fail every join with a full queue.
func validateSendBuffer(sl validator.StructLevel) {
	cfg, ok := sl.Current().Interface().(Config)
	if !ok {
		return
	}
	if cfg.SendBufferSize < joinBurst(cfg.HistorySize) {
		sl.ReportError(cfg.SendBufferSize, "SendBufferSize", "SendBufferSize", "joinburst", "")
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() Config {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Environment: map[string]string{}})
	if err != nil {
		panic(fmt.Sprintf("server: invalid config defaults: %v", err))
	}
	return cfg
}

// LoadConfig reads the configuration from the environment, after loading an
// optional .env file from the working directory, and validates it.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Addr returns the HTTP/WebSocket listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// TCPAddr returns the raw TCP listen address.
func (c Config) TCPAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.TCPPort))
}

// TCPEnabled reports whether the raw TCP transport is configured.
func (c Config) TCPEnabled() bool {
	return c.TCPPort > 0
}
