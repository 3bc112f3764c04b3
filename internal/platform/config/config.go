package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// Settings is the relay's runtime configuration.
type Settings struct {
	Port            string
	MuxTokenID      string
	MuxTokenSecret  string
	MuxAPIURL       string
	ProviderTimeout time.Duration
	WebhookUser     string
	WebhookPassword string
	StateFile       string
	StaticDir       string
	LogLevel        string
	LogFormat       string
}

// FromEnv builds Settings from the environment, applying defaults.
// Token id and secret have no default; their absence surfaces when the
// live stream is first created.
func FromEnv() Settings {
	return Settings{
		Port:            GetEnv("PORT", "3000"),
		MuxTokenID:      os.Getenv("MUX_TOKEN_ID"),
		MuxTokenSecret:  os.Getenv("MUX_TOKEN_SECRET"),
		MuxAPIURL:       GetEnv("MUX_API_URL", "https://api.mux.com"),
		ProviderTimeout: GetEnvDuration("PROVIDER_TIMEOUT", 10*time.Second),
		WebhookUser:     GetEnv("WEBHOOK_USER", "muxer"),
		WebhookPassword: GetEnv("WEBHOOK_PASSWORD", "muxology"),
		StateFile:       GetEnv("STATE_FILE", "./.data/stream"),
		StaticDir:       GetEnv("STATIC_DIR", "./public"),
		LogLevel:        GetEnv("LOG_LEVEL", "info"),
		LogFormat:       GetEnv("LOG_FORMAT", "json"),
	}
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvDuration parses key as a time.Duration ("10s", "1m"). A bare integer
// is read as seconds. Unset, invalid, or non-positive values yield fallback.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	if n := GetEnvInt(key, 0); n > 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}
