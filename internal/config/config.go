package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the client.
type Config struct {
	App     AppConfig
	Client  ClientConfig
	Session SessionConfig
	Logger  LoggerConfig
	Stub    StubConfig
}

// AppConfig controls application level behavior.
type AppConfig struct {
	Name    string
	Env     string
	Version string
}

// ClientConfig holds backend connection values.
type ClientConfig struct {
	BaseURL               string
	WSURL                 string
	RequestTimeoutSeconds int
	PollIntervalSeconds   int
}

// SessionConfig controls durable session storage.
type SessionConfig struct {
	FilePath string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// StubConfig configures the in-memory stub backend used by tests and the
// stubd binary.
type StubConfig struct {
	Host                   string
	Port                   string
	WSPort                 string
	JWTSecret              string
	AccessTokenTTLMinutes  int
	RefreshTokenTTLMinutes int
	BcryptCost             int
}

// Load reads configuration from environment variables, applying defaults
// where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	sessionPath := os.Getenv("DESK_SESSION_FILE")
	if sessionPath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve session file path: %w", err)
		}
		sessionPath = filepath.Join(dir, "service-desk", "session.json")
	}

	cfg := &Config{
		App: AppConfig{
			Name:    getEnv("APP_NAME", "service-desk"),
			Env:     getEnv("APP_ENV", "development"),
			Version: getEnv("APP_VERSION", "dev"),
		},
		Client: ClientConfig{
			BaseURL:               getEnv("DESK_API_URL", "http://127.0.0.1:8000/api/"),
			WSURL:                 getEnv("DESK_WS_URL", "ws://127.0.0.1:8000/ws/notifications/"),
			RequestTimeoutSeconds: getEnvAsInt("DESK_REQUEST_TIMEOUT_SECONDS", 30),
			PollIntervalSeconds:   getEnvAsInt("DESK_POLL_INTERVAL_SECONDS", 30),
		},
		Session: SessionConfig{
			FilePath: sessionPath,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Stub: StubConfig{
			Host:                   getEnv("STUB_HOST", "127.0.0.1"),
			Port:                   getEnv("STUB_PORT", "8000"),
			WSPort:                 getEnv("STUB_WS_PORT", "8001"),
			JWTSecret:              getEnv("STUB_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes:  getEnvAsInt("STUB_ACCESS_TOKEN_TTL_MINUTES", 60),
			RefreshTokenTTLMinutes: getEnvAsInt("STUB_REFRESH_TOKEN_TTL_MINUTES", 1440),
			BcryptCost:             getEnvAsInt("STUB_BCRYPT_COST", 10),
		},
	}

	return cfg, nil
}

// RequestTimeout returns the configured request timeout duration.
func (c ClientConfig) RequestTimeout() time.Duration {
	if c.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// PollInterval returns the dashboard refresh cadence.
func (c ClientConfig) PollInterval() time.Duration {
	if c.PollIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Addr returns the stub REST bind address.
func (s StubConfig) Addr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

// WSAddr returns the stub notification hub bind address.
func (s StubConfig) WSAddr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.WSPort)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}
