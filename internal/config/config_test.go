package config

import (
	"testing"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"DATA_DIR", "MAX_FILES_PER_RUN", "DISCLOSURES_BASE_URL",
		"SCRAPE_MIN_INTERVAL_HOURS", "PERMANENT_ERROR_PATTERNS",
		"SMTP_USER", "FROM_EMAIL",
	} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()

	if cfg.DataDir != "./data" {
		t.Errorf("DataDir = %q, want ./data", cfg.DataDir)
	}
	if cfg.MaxFilesPerRun != 5 {
		t.Errorf("MaxFilesPerRun = %d, want 5", cfg.MaxFilesPerRun)
	}
	if cfg.BaseURL != "https://disclosures-clerk.house.gov" {
		t.Errorf("BaseURL = %q, want clerk site", cfg.BaseURL)
	}
	if cfg.MinInterval != 12 {
		t.Errorf("MinInterval = %d, want 12", cfg.MinInterval)
	}
	if len(cfg.PermanentErrorPatterns) != len(defaultPermanentErrorPatterns) {
		t.Errorf("patterns = %v, want defaults", cfg.PermanentErrorPatterns)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("MAX_FILES_PER_RUN", "10")
	t.Setenv("PERMANENT_ERROR_PATTERNS", "Corrupted, Broken Beyond Repair ,")
	t.Setenv("SMTP_USER", "watcher@example.com")
	t.Setenv("FROM_EMAIL", "")

	cfg := FromEnv()

	if cfg.MaxFilesPerRun != 10 {
		t.Errorf("MaxFilesPerRun = %d, want 10", cfg.MaxFilesPerRun)
	}
	want := []string{"corrupted", "broken beyond repair"}
	if len(cfg.PermanentErrorPatterns) != len(want) {
		t.Fatalf("patterns = %v, want %v", cfg.PermanentErrorPatterns, want)
	}
	for i, p := range want {
		if cfg.PermanentErrorPatterns[i] != p {
			t.Errorf("pattern[%d] = %q, want %q", i, cfg.PermanentErrorPatterns[i], p)
		}
	}
	if cfg.FromEmail != "watcher@example.com" {
		t.Errorf("FromEmail = %q, want SMTP user fallback", cfg.FromEmail)
	}
}

func TestFromEnvBadInt(t *testing.T) {
	t.Setenv("MAX_FILES_PER_RUN", "lots")

	if cfg := FromEnv(); cfg.MaxFilesPerRun != 5 {
		t.Errorf("MaxFilesPerRun = %d, want default on unparsable value", cfg.MaxFilesPerRun)
	}
}

func TestEmailEnabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{
			name: "complete",
			cfg:  Config{SMTPServer: "smtp.example.com", SMTPUser: "u", SMTPPass: "p", ToEmail: "to@example.com"},
			want: true,
		},
		{
			name: "missing recipient",
			cfg:  Config{SMTPServer: "smtp.example.com", SMTPUser: "u", SMTPPass: "p"},
			want: false,
		},
		{
			name: "empty",
			cfg:  Config{},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.EmailEnabled(); got != tt.want {
				t.Errorf("EmailEnabled = %v, want %v", got, tt.want)
			}
		})
	}
}
