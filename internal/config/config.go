package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingSecret is returned when no JWT secret is configured.
var ErrMissingSecret = errors.New("JWT_SECRET environment variable is required")

// Config holds relay server configuration.
type Config struct {
	// Addr is the listen address for the HTTP server.
	Addr         string
	DatabasePath string
	JWTSecret    string
	Debug        bool
	LogLevel     string
	LogFormat    string
	// AllowedOrigins feeds both the gin CORS middleware and the Socket.IO
	// handshake CORS policy.
	AllowedOrigins []string
	// RedisURL enables the presence mirror when non-empty.
	RedisURL string

	PingInterval time.Duration
	PingTimeout  time.Duration
}

// Overrides optionally overrides values from environment variables.
//
// A nil pointer means "use the environment/default value".
type Overrides struct {
	Addr         *string
	DatabasePath *string
	JWTSecret    *string
	Debug        *bool
	RedisURL     *string
	// EnvFile is loaded with godotenv before reading the environment. Missing
	// files are ignored. Empty means ".env".
	EnvFile string
}

// Load loads server configuration from environment variables (and an optional
// dotenv file) and applies any explicit overrides.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	port := 5000
	if portStr := os.Getenv("PORT"); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", portStr, err)
		}
		port = p
	}
	addr := fmt.Sprintf(":%d", port)
	if overrides.Addr != nil {
		addr = *overrides.Addr
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/hkchat.db"
	}
	if overrides.DatabasePath != nil {
		dbPath = *overrides.DatabasePath
	}

	secret := os.Getenv("JWT_SECRET")
	if overrides.JWTSecret != nil {
		secret = *overrides.JWTSecret
	}
	if secret == "" {
		return nil, ErrMissingSecret
	}

	debug := false
	if debugStr := os.Getenv("DEBUG"); debugStr == "true" || debugStr == "1" {
		debug = true
	}
	if overrides.Debug != nil {
		debug = *overrides.Debug
	}

	redisURL := os.Getenv("REDIS_URL")
	if overrides.RedisURL != nil {
		redisURL = *overrides.RedisURL
	}

	pingInterval, err := durationEnv("SOCKET_PING_INTERVAL", 25*time.Second)
	if err != nil {
		return nil, err
	}
	pingTimeout, err := durationEnv("SOCKET_PING_TIMEOUT", 20*time.Second)
	if err != nil {
		return nil, err
	}

	return &Config{
		Addr:           addr,
		DatabasePath:   dbPath,
		JWTSecret:      secret,
		Debug:          debug,
		LogLevel:       os.Getenv("LOG_LEVEL"),
		LogFormat:      os.Getenv("LOG_FORMAT"),
		AllowedOrigins: splitOrigins(os.Getenv("CORS_ORIGINS")),
		RedisURL:       redisURL,
		PingInterval:   pingInterval,
		PingTimeout:    pingTimeout,
	}, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
