package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/devghori1264/aerophoenix/craftd/internal/logging"
	natsclient "github.com/devghori1264/aerophoenix/craftd/internal/nats"
)

const (
	DefaultHTTPAddr    = "127.0.0.1:3000"
	DefaultMetricsAddr = "127.0.0.1:9090"
	LogLevelEnv        = "LOG_LEVEL"
)

var (
	ErrInvalid = errors.New("invalid config")
)

// Config holds everything cmd/server needs to wire the process.
// Empty MetricsAddr, GRPCAddr or NATSURL disable that surface.
type Config struct {
	HTTPAddr        string
	MetricsAddr     string
	GRPCAddr        string
	NATSURL         string
	Subject         string
	Trace           bool
	LogLevel        string
	ShutdownTimeout time.Duration
}

// Default returns the stock configuration. LogLevel honours LOG_LEVEL.
func Default() Config {
	level := os.Getenv(LogLevelEnv)
	if level == "" {
		level = "info"
	}
	return Config{
		HTTPAddr:        DefaultHTTPAddr,
		MetricsAddr:     DefaultMetricsAddr,
		Subject:         natsclient.DefaultSubject,
		LogLevel:        level,
		ShutdownTimeout: 5 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("%w: http address required", ErrInvalid)
	}
	for name, addr := range map[string]string{
		"http":    c.HTTPAddr,
		"metrics": c.MetricsAddr,
		"grpc":    c.GRPCAddr,
	} {
		if addr == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("%w: %s address %q: %v", ErrInvalid, name, addr, err)
		}
	}
	if c.NATSURL != "" && c.Subject == "" {
		return fmt.Errorf("%w: subject required when nats is enabled", ErrInvalid)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: shutdown timeout must be positive", ErrInvalid)
	}
	return nil
}
