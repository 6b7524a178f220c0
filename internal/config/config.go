/*
Package config reads process configuration from the environment once at
startup. The resulting value is passed explicitly into every component;
nothing below the CLI reads the environment directly.
*/
package config

import (
	"os"
	"strconv"
	"strings"
)

// Default permanence patterns: an extraction error message containing any of
// these marks the filing as terminally failed. Anything else (timeouts,
// connection resets) is treated as transient and retried on a later run.
var defaultPermanentErrorPatterns = []string{
	"corrupted",
	"invalid format",
	"unsupported",
	"malformed",
	"no transactions found",
	"file not found",
	"access denied",
	"invalid pdf",
	"permission denied",
}

// Config holds every tunable the monitor reads from the environment.
type Config struct {
	DataDir        string
	MaxFilesPerRun int

	// Discovery.
	BaseURL     string
	FilingYear  int // 0 means the current year
	MinInterval int // hours between scrapes before throttling kicks in

	// Bark push notifications.
	BarkAPIKey  string
	BarkBaseURL string
	BarkIcon    string

	// Email reports.
	SMTPServer string
	SMTPPort   int
	SMTPUser   string
	SMTPPass   string
	ToEmail    string
	FromEmail  string

	// Gemini analysis.
	GeminiAPIKey string
	GeminiModel  string

	PermanentErrorPatterns []string
}

// FromEnv builds a Config from environment variables, applying defaults for
// anything unset.
func FromEnv() Config {
	cfg := Config{
		DataDir:                envOr("DATA_DIR", "./data"),
		MaxFilesPerRun:         envInt("MAX_FILES_PER_RUN", 5),
		BaseURL:                envOr("DISCLOSURES_BASE_URL", "https://disclosures-clerk.house.gov"),
		FilingYear:             envInt("FILING_YEAR", 0),
		MinInterval:            envInt("SCRAPE_MIN_INTERVAL_HOURS", 12),
		BarkAPIKey:             os.Getenv("BARK_API_KEY"),
		BarkBaseURL:            envOr("BARK_BASE_URL", "https://api.day.app"),
		BarkIcon:               os.Getenv("NOTIFICATION_ICON"),
		SMTPServer:             envOr("SMTP_SERVER", "smtp.gmail.com"),
		SMTPPort:               envInt("SMTP_PORT", 587),
		SMTPUser:               os.Getenv("SMTP_USER"),
		SMTPPass:               os.Getenv("SMTP_PASS"),
		ToEmail:                os.Getenv("TO_EMAIL"),
		FromEmail:              os.Getenv("FROM_EMAIL"),
		GeminiAPIKey:           os.Getenv("GEMINI_API_KEY"),
		GeminiModel:            envOr("GEMINI_MODEL", "gemini-2.0-flash"),
		PermanentErrorPatterns: envList("PERMANENT_ERROR_PATTERNS", defaultPermanentErrorPatterns),
	}

	if cfg.FromEmail == "" {
		cfg.FromEmail = cfg.SMTPUser
	}

	return cfg
}

// EmailEnabled reports whether the SMTP settings are complete enough to send.
func (c Config) EmailEnabled() bool {
	return c.SMTPServer != "" && c.SMTPUser != "" && c.SMTPPass != "" && c.ToEmail != ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		trimmed := strings.ToLower(strings.TrimSpace(part))
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
