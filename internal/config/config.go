package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// State backends.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds all configuration for the application.
type Config struct {
	// BlueskyHandle and BlueskyPassword are the account identifier and App
	// Password. Bluesky is disabled when either is empty.
	BlueskyHandle   string
	BlueskyPassword string
	BlueskyPDS      string

	// XAccessToken is the OAuth 2.0 user-context token. X is disabled when
	// it is empty. The refresh token and client credentials are optional.
	XAccessToken  string
	XRefreshToken string
	XClientID     string
	XClientSecret string
	XAPIURL       string

	StateBackend string
	StatePath    string
	DatabaseURL  string

	WebhookURL  string
	TargetsFile string

	Retention         time.Duration
	PendingMaxRetries int
	PendingBackoff    time.Duration

	JetstreamURL string
	Port         int
	HTTPTimeout  time.Duration
	LogLevel     string
}

// BlueskyEnabled reports whether Bluesky credentials are configured.
func (c *Config) BlueskyEnabled() bool {
	return c.BlueskyHandle != "" && c.BlueskyPassword != ""
}

// XEnabled reports whether X credentials are configured.
func (c *Config) XEnabled() bool {
	return c.XAccessToken != ""
}

// LoadDotEnv loads variables from path into the environment without
// overriding ones already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	var err error
	cfg := &Config{
		BlueskyHandle:   os.Getenv("BSKY_HANDLE"),
		BlueskyPassword: os.Getenv("BSKY_APP_PASSWORD"),
		BlueskyPDS:      getEnv("BSKY_PDS", "https://bsky.social"),
		XAccessToken:    os.Getenv("X_ACCESS_TOKEN"),
		XRefreshToken:   os.Getenv("X_REFRESH_TOKEN"),
		XClientID:       os.Getenv("X_CLIENT_ID"),
		XClientSecret:   os.Getenv("X_CLIENT_SECRET"),
		XAPIURL:         getEnv("X_API_URL", "https://api.x.com"),
		StateBackend:    strings.ToLower(getEnv("STATE_BACKEND", BackendFile)),
		StatePath:       getEnv("STATE_PATH", ".engage-state.json"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		WebhookURL:      getEnv("WEBHOOK_URL", os.Getenv("SLACK_WEBHOOK_URL")),
		TargetsFile:     os.Getenv("TARGETS_FILE"),
		JetstreamURL:    getEnv("JETSTREAM_URL", "wss://jetstream2.us-east.bsky.network/subscribe"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}

	if cfg.Retention, err = getDuration("RETENTION", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.PendingMaxRetries, err = getInt("PENDING_MAX_RETRIES", 5); err != nil {
		return nil, err
	}
	if cfg.PendingBackoff, err = getDuration("PENDING_BACKOFF", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Port, err = getInt("PORT", 3000); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getDuration("HTTP_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	switch cfg.StateBackend {
	case BackendFile, BackendSQLite:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for STATE_BACKEND=postgres")
		}
	default:
		return nil, fmt.Errorf("invalid STATE_BACKEND %q: must be one of file, sqlite, postgres", cfg.StateBackend)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
