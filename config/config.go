package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"signal_report_backend/models"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	DBDriver   string // postgres | sqlite
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	SQLitePath string

	LedgerBackend  string // sql | mongo
	MongoURI       string
	MongoDatabase  string
	JWTSecret      string
	ReportTimezone string

	ReportLabel       string
	WeeklyReportLabel string
	ExcludeUnresolved bool
	SettingsCacheTTL  time.Duration
	SendTimeout       time.Duration
	JobsFile          string

	// Channels is the static, ordered list of channels a report fans out to
	Channels          []string
	TelegramBotToken  string
	TelegramChannel   string
	WhatsAppAPIURL    string
	WhatsAppToken     string
	WhatsAppRecipient string
	RedisAddr         string
	RedisChannel      string

	ChannelRatePerMin  int
	OperatorRatePerMin int
}

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		DBDriver:   strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "khulafx"),
		DBSSLMode:  getEnv("DB_SSLMODE", "require"),
		SQLitePath: getEnv("SQLITE_PATH", "data/reports.db"),

		LedgerBackend:  strings.ToLower(getEnv("LEDGER_BACKEND", "sql")),
		MongoURI:       getEnv("MONGODB_URI", ""),
		MongoDatabase:  getEnv("MONGODB_DATABASE", "khulafx"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		ReportTimezone: getEnv("REPORT_TIMEZONE", "Africa/Johannesburg"),

		ReportLabel:       getEnv("REPORT_LABEL", "VIP signal report"),
		WeeklyReportLabel: getEnv("WEEKLY_REPORT_LABEL", "Weekly VIP signal report"),
		JobsFile:          getEnv("JOBS_FILE", "config/jobs.yaml"),

		Channels:          getEnvAsList("CHANNELS", []string{"Telegram", "WhatsApp"}),
		TelegramBotToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChannel:   getEnv("TELEGRAM_CHANNEL", ""),
		WhatsAppAPIURL:    getEnv("WHATSAPP_API_URL", ""),
		WhatsAppToken:     getEnv("WHATSAPP_TOKEN", ""),
		WhatsAppRecipient: getEnv("WHATSAPP_RECIPIENT", ""),
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RedisChannel:      getEnv("REDIS_CHANNEL", "reports"),
	}

	var errs []string
	var err error

	if cfg.ExcludeUnresolved, err = getEnvAsBool("EXCLUDE_UNRESOLVED", false); err != nil {
		errs = append(errs, err.Error())
	}
	if cfg.SettingsCacheTTL, err = getEnvAsDuration("SETTINGS_CACHE_TTL", 30*time.Second); err != nil {
		errs = append(errs, err.Error())
	}
	if cfg.SendTimeout, err = getEnvAsDuration("SEND_TIMEOUT", 15*time.Second); err != nil {
		errs = append(errs, err.Error())
	}
	if cfg.ChannelRatePerMin, err = getEnvAsInt("CHANNEL_RATE_PER_MIN", 20); err != nil {
		errs = append(errs, err.Error())
	}
	if cfg.OperatorRatePerMin, err = getEnvAsInt("OPERATOR_RATE_PER_MIN", 30); err != nil {
		errs = append(errs, err.Error())
	}

	if cfg.DBDriver != "postgres" && cfg.DBDriver != "sqlite" {
		errs = append(errs, fmt.Sprintf("DB_DRIVER must be postgres or sqlite, got %q", cfg.DBDriver))
	}
	if cfg.LedgerBackend != "sql" && cfg.LedgerBackend != "mongo" {
		errs = append(errs, fmt.Sprintf("LEDGER_BACKEND must be sql or mongo, got %q", cfg.LedgerBackend))
	}
	if cfg.LedgerBackend == "mongo" && cfg.MongoURI == "" {
		errs = append(errs, "MONGODB_URI must be set when LEDGER_BACKEND=mongo")
	}
	if _, err := time.LoadLocation(cfg.ReportTimezone); err != nil {
		errs = append(errs, fmt.Sprintf("invalid REPORT_TIMEZONE %q: %v", cfg.ReportTimezone, err))
	}
	for _, name := range cfg.Channels {
		if !isKnownChannel(name) {
			errs = append(errs, fmt.Sprintf("CHANNELS: unknown channel %q (known: %s)", name, strings.Join(models.KnownChannels, ", ")))
		}
	}
	if cfg.SettingsCacheTTL <= 0 {
		errs = append(errs, "SETTINGS_CACHE_TTL must be positive")
	}
	if cfg.SendTimeout <= 0 {
		errs = append(errs, "SEND_TIMEOUT must be positive")
	}

	if len(errs) > 0 {
		return cfg, fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// Location returns the reporting timezone. LoadConfig has already validated it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func isKnownChannel(name string) bool {
	for _, known := range models.KnownChannels {
		if name == known {
			return true
		}
	}
	return false
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s: %v", key, err)
	}
	return n, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s: %v", key, err)
	}
	return b, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s: %v", key, err)
	}
	return d, nil
}

// getEnvAsList splits a comma separated variable, dropping empty items
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
