package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds server configuration.
type Config struct {
	Port        string
	LogLevel    string
	DatabaseURL string // empty selects lite mode (SQLite under DataDir)
	DataDir     string
	RedisURL    string

	OTelEnabled  bool
	OTelEndpoint string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string

	AdminAddress    string
	VerifierAddress string
	PolicyFile      string
	ArchiveURL      string

	RateLimitRPS   float64
	RateLimitBurst int

	// Production refuses to generate signing material on first boot.
	Production bool
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:               getenv("PORT", "8080"),
		LogLevel:           getenv("LOG_LEVEL", "INFO"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		DataDir:            getenv("DATA_DIR", "data"),
		RedisURL:           os.Getenv("REDIS_URL"),
		OTelEnabled:        os.Getenv("OTEL_ENABLED") == "true",
		OTelEndpoint:       getenv("OTEL_ENDPOINT", "localhost:4317"),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURI:  getenv("GOOGLE_REDIRECT_URI", "postmessage"),
		AdminAddress:       os.Getenv("ADMIN_ADDRESS"),
		VerifierAddress:    os.Getenv("VERIFIER_ADDRESS"),
		PolicyFile:         os.Getenv("POLICY_FILE"),
		ArchiveURL:         os.Getenv("ARCHIVE_URL"),
		RateLimitRPS:       getfloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:     getint("RATE_LIMIT_BURST", 20),
		Production:         os.Getenv("PAKT_PRODUCTION") == "1",
	}
}

// LiteMode reports whether no external database is configured.
func (c *Config) LiteMode() bool { return c.DatabaseURL == "" }

// SlogLevel maps LogLevel onto slog levels, defaulting to Info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Malformed numbers fall back to the default.
func getfloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func getint(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
