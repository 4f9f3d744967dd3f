package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// AppConfig holds all configuration for the application.
type AppConfig struct {
	DatabaseDriver string
	DatabaseURL    string
	SQLitePath     string

	MonitorsFile        string
	InboxFeedFile       string
	PollCronSpec        string
	CycleTimeout        time.Duration
	MaxConcurrentCycles int
	FetchLookback       time.Duration
	ResponderRatePerSec float64

	// Telegram is optional; without a token the notifier and admin commands are off.
	TelegramToken   string
	AdminTelegramID int64
	NotifyChatID    int64

	// Without an API key replies come from each monitor's template.
	OpenAIAPIKey string
	OpenAIModel  string

	LogLevel    string
	Environment string
}

// TelegramEnabled reports whether a bot token was configured.
func (c *AppConfig) TelegramEnabled() bool { return c.TelegramToken != "" }

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.DatabaseDriver = strings.ToLower(envOr("DATABASE_DRIVER", DriverPostgres))
	switch cfg.DatabaseDriver {
	case DriverPostgres:
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is not set")
		}
	case DriverSQLite, DriverMemory:
	default:
		return nil, fmt.Errorf("invalid DATABASE_DRIVER %q: want postgres, sqlite or memory", cfg.DatabaseDriver)
	}
	cfg.SQLitePath = envOr("SQLITE_PATH", "data/monitor.db")

	cfg.MonitorsFile = envOr("MONITORS_FILE", "monitors.yaml")
	cfg.InboxFeedFile = strings.TrimSpace(os.Getenv("INBOX_FEED_FILE"))
	cfg.PollCronSpec = envOr("POLL_CRON_SPEC", "* * * * *")

	if cfg.CycleTimeout, err = durationEnv("CYCLE_TIMEOUT", 45*time.Second); err != nil {
		return nil, err
	}
	if cfg.FetchLookback, err = durationEnv("FETCH_LOOKBACK", 24*time.Hour); err != nil {
		return nil, err
	}

	cfg.MaxConcurrentCycles = 8
	if v := os.Getenv("MAX_CONCURRENT_CYCLES"); v != "" {
		cfg.MaxConcurrentCycles, err = strconv.Atoi(v)
		if err != nil || cfg.MaxConcurrentCycles <= 0 {
			return nil, fmt.Errorf("invalid MAX_CONCURRENT_CYCLES %q: must be a positive integer", v)
		}
	}

	cfg.ResponderRatePerSec = 5
	if v := os.Getenv("RESPONDER_RATE_PER_SEC"); v != "" {
		cfg.ResponderRatePerSec, err = strconv.ParseFloat(v, 64)
		if err != nil || cfg.ResponderRatePerSec <= 0 {
			return nil, fmt.Errorf("invalid RESPONDER_RATE_PER_SEC %q: must be a positive number", v)
		}
	}

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramEnabled() {
		adminIDStr := os.Getenv("ADMIN_TELEGRAM_ID")
		if adminIDStr == "" {
			return nil, fmt.Errorf("ADMIN_TELEGRAM_ID is not set")
		}
		cfg.AdminTelegramID, err = strconv.ParseInt(adminIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
		}
		cfg.NotifyChatID = cfg.AdminTelegramID
		if v := os.Getenv("NOTIFY_CHAT_ID"); v != "" {
			cfg.NotifyChatID, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid NOTIFY_CHAT_ID: %w", err)
			}
		}
	}

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIModel = envOr("OPENAI_MODEL", "gpt-4o-mini")

	cfg.LogLevel = strings.ToLower(envOr("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(envOr("ENVIRONMENT", "development"))

	return cfg, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive duration", key, v)
	}
	return d, nil
}
