// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ProfilesFile string
	LedgerDriver string
	LedgerPath   string
	DatabaseURL  string

	TemplateLang string
	APIBaseURL   string
	APIVersion   string
	ProxyURL     string
	SendTimeout  time.Duration
	SubmitDelay  time.Duration
	Workers      int

	LogLevel     string
	AMQPURL      string
	OutcomeQueue string
	HTTPAddr     string
}

// Load reads .env (if present) and then the process environment.
// The returned bool reports whether a .env file was found.
func Load(envFiles ...string) (Config, bool, error) {
	foundEnv := godotenv.Load(envFiles...) == nil

	cfg := Config{
		ProfilesFile: getenv("PROFILES_FILE", "bms.json"),
		LedgerDriver: strings.ToLower(getenv("LEDGER_DRIVER", "file")),
		LedgerPath:   getenv("LEDGER_PATH", "sent_log.csv"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		TemplateLang: getenv("TEMPLATE_LANG", "pt_BR"),
		APIBaseURL:   strings.TrimRight(getenv("API_BASE_URL", "https://graph.facebook.com"), "/"),
		APIVersion:   getenv("API_VERSION", "v23.0"),
		ProxyURL:     os.Getenv("PROXY_URL"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		AMQPURL:      os.Getenv("AMQP_URL"),
		OutcomeQueue: getenv("OUTCOME_QUEUE", "dispatch_outcomes"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
	}
	if cfg.DatabaseURL == "" && cfg.LedgerDriver == "postgres" {
		cfg.DatabaseURL = postgresDSNFromEnv()
	}

	var err error
	if cfg.SendTimeout, err = durationEnv("SEND_TIMEOUT", 30*time.Second); err != nil {
		return cfg, foundEnv, err
	}
	if cfg.SubmitDelay, err = durationEnv("SUBMIT_DELAY", 10*time.Millisecond); err != nil {
		return cfg, foundEnv, err
	}
	if cfg.Workers, err = intEnv("WORKERS", 1); err != nil {
		return cfg, foundEnv, err
	}
	if cfg.Workers < 1 {
		return cfg, foundEnv, fmt.Errorf("WORKERS must be >= 1, got %d", cfg.Workers)
	}

	switch cfg.LedgerDriver {
	case "file", "postgres", "sqlite", "memory":
	default:
		return cfg, foundEnv, fmt.Errorf("unknown LEDGER_DRIVER %q", cfg.LedgerDriver)
	}
	return cfg, foundEnv, nil
}

func postgresDSNFromEnv() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		os.Getenv("DB_USER"), os.Getenv("DB_PASSWORD"), getenv("DB_HOST", "localhost"),
		getenv("DB_PORT", "5432"), os.Getenv("DB_NAME"),
	)
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
