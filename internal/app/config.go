package app

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// ServerConfig defines how the relay backend should run. Values come from
// the environment (optionally seeded from a .env file).
type ServerConfig struct {
	Addr         string `env:"RELAY_ADDR,default=:3001"`
	WSPath       string `env:"RELAY_WS_PATH,default=/ws"`
	ClientOrigin string `env:"CLIENT_URL"`

	RedisAddr     string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB,default=0"`

	HistoryTTL       time.Duration `env:"HISTORY_TTL,default=6h"`
	TypingQuiescence time.Duration `env:"TYPING_QUIESCENCE,default=2s"`
	StoreTimeout     time.Duration `env:"STORE_TIMEOUT,default=3s"`

	RateLimitBurst  int           `env:"RATE_LIMIT_BURST,default=20"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW,default=3s"`

	LogLevel string `env:"LOG_LEVEL,default=info"`
}

// ClientConfig defines the parameters the TUI client needs.
type ClientConfig struct {
	ServerURL string
	Room      string
	UserName  string
}

// LoadServerConfig reads a .env file when present and unmarshals the server
// configuration from the environment.
func LoadServerConfig() (ServerConfig, error) {
	_ = godotenv.Load()
	var cfg ServerConfig
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("config error: %w", err)
	}
	cfg.WSPath = NormalizeWSPath(cfg.WSPath)
	return cfg, nil
}

// NormalizeWSPath guarantees the websocket path starts with '/' and falls
// back to /ws when empty.
func NormalizeWSPath(path string) string {
	if path == "" {
		return "/ws"
	}
	if path[0] != '/' {
		return "/" + path
	}
	return path
}

// NewLogger builds the process logger at the configured level.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
