package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config carries the listen address from the positional HOST PORT arguments
// plus the optional environment-driven settings.
type Config struct {
	Host        string
	Port        string
	MetricsAddr string
	LogLevel    slog.Level
	EventBuffer int
}

// Load parses the positional arguments and the environment. A .env file is
// honored when present. HOST and PORT are required; everything else has a
// default.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	if len(args) != 2 {
		return nil, fmt.Errorf("expected HOST PORT arguments, got %d", len(args))
	}

	host, port := args[0], args[1]
	if host == "" {
		return nil, fmt.Errorf("host must not be empty")
	}
	if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		return nil, fmt.Errorf("invalid port %q", port)
	}

	cfg := &Config{
		Host:        host,
		Port:        port,
		MetricsAddr: getEnv("CHAT_METRICS_ADDR", ":9090"),
		EventBuffer: 128,
	}

	if v := getEnv("CHAT_EVENT_BUFFER", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid CHAT_EVENT_BUFFER %q", v)
		}
		cfg.EventBuffer = n
	}

	switch getEnv("CHAT_LOG_LEVEL", "info") {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "info":
		cfg.LogLevel = slog.LevelInfo
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid CHAT_LOG_LEVEL %q", os.Getenv("CHAT_LOG_LEVEL"))
	}

	return cfg, nil
}

// ListenAddr joins host and port for net.Listen.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
