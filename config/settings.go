package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var ErrMissingAPIKey = errors.New("SERPAPI_API_KEY not configured")

type Settings struct {
	Port        string
	DatabaseURL string
	DBDriver    string

	// TrustedProxies lists proxy IPs or CIDRs whose forwarding headers are
	// believed. Empty trusts none.
	TrustedProxies []string

	APIKey          string
	APIRatePerSec   float64
	TargetsFile     string
	Interval        time.Duration
	ScanConcurrency int

	SendGridAPIKey  string
	AlertEmail      string
	SlackWebhookURL string
	AlertDedupe     time.Duration

	Features Features
}

// Load reads Settings from the environment. It only fails on values that
// are present but malformed; a missing API key is reported by Validate so
// that commands which never scan can still run.
func Load() (Settings, error) {
	s := Settings{
		Port:            getenv("PORT", "8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		DBDriver:        os.Getenv("DB_DRIVER"),
		APIKey:          os.Getenv("SERPAPI_API_KEY"),
		TargetsFile:     os.Getenv("TARGETS_FILE"),
		SendGridAPIKey:  os.Getenv("SENDGRID_API_KEY"),
		AlertEmail:      os.Getenv("ALERT_EMAIL"),
		SlackWebhookURL: os.Getenv("SLACK_WEBHOOK_URL"),
		Features:        LoadFeatures(),
		TrustedProxies:  splitList(os.Getenv("TRUSTED_PROXIES")),
	}

	hours, err := intEnv("MONITORING_INTERVAL_HOURS", 1)
	if err != nil {
		return s, err
	}
	if hours < 1 {
		hours = 1
	}
	s.Interval = time.Duration(hours) * time.Hour

	if s.ScanConcurrency, err = intEnv("SCAN_CONCURRENCY", 1); err != nil {
		return s, err
	}
	if s.ScanConcurrency < 1 {
		s.ScanConcurrency = 1
	}

	dedupe, err := intEnv("ALERT_DEDUPE_MINUTES", 60)
	if err != nil {
		return s, err
	}
	s.AlertDedupe = time.Duration(dedupe) * time.Minute

	s.APIRatePerSec = 5
	if v := os.Getenv("SERPAPI_RATE_PER_SEC"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return s, fmt.Errorf("SERPAPI_RATE_PER_SEC: invalid value %q", v)
		}
		s.APIRatePerSec = f
	}

	if s.DBDriver == "" {
		s.DBDriver = DriverFromURL(s.DatabaseURL)
	}
	if s.DBDriver != "postgres" && s.DBDriver != "sqlite" {
		return s, fmt.Errorf("DB_DRIVER: unsupported driver %q", s.DBDriver)
	}
	if s.DatabaseURL == "" && s.DBDriver == "sqlite" {
		s.DatabaseURL = "serpmonitor.db"
	}

	return s, nil
}

// Validate reports configuration that makes scanning impossible.
func (s Settings) Validate() error {
	if s.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// DriverFromURL picks the sql driver for a DATABASE_URL.
func DriverFromURL(url string) string {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return "postgres"
	}
	return "sqlite"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
