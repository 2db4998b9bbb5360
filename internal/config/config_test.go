package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

const validJSON = `{
  "telegram": {"token": "123:abc"},
  "logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}},
  "scheduler": {"poll_interval": "5s", "min_send_interval": "24h"},
  "catalog": {"path": "./catalog.json"},
  "state": {"driver": "file", "path": "./data"}
}`

func TestParseValidJSON(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", validJSON))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	sc := cfg.SchedulerSettings()
	if sc.PollInterval != 5*time.Second || sc.MinSendInterval != 24*time.Hour {
		t.Fatalf("scheduler settings = %+v", sc)
	}
}

func TestParseValidYAML(t *testing.T) {
	t.Parallel()
	body := strings.Join([]string{
		"telegram:",
		"  token: 123:abc",
		"logging:",
		"  level: debug",
		"  console: true",
		"  file:",
		"    enabled: false",
		"    path: \"\"",
		"scheduler:",
		"  min_send_interval: 24h",
		"  exhaust_policy: never",
		"catalog:",
		"  path: ./catalog.json",
		"state:",
		"  path: ./data",
		"",
	}, "\n")
	m := NewManager(writeConfig(t, "config.yaml", body))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Logging.Level != "debug" || cfg.Scheduler.ExhaustPolicy != "never" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	body := strings.Replace(validJSON, `"catalog"`, `"catalogg"`, 1)
	m := NewManager(writeConfig(t, "config.json", body))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected unknown-field error")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", validJSON+`{"extra": 1}`))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected trailing-data error")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad duration", func(c *Config) { c.Scheduler.PollInterval = "fast" }},
		{"negative duration", func(c *Config) { c.Scheduler.MinSendInterval = "-1h" }},
		{"bad first contact", func(c *Config) { c.Scheduler.FirstContact = "25:00" }},
		{"bad exhaust policy", func(c *Config) { c.Scheduler.ExhaustPolicy = "retry" }},
		{"missing catalog path", func(c *Config) { c.Catalog.Path = "" }},
		{"missing state path", func(c *Config) { c.State.Path = "" }},
		{"report without time", func(c *Config) { c.Report.Enabled = true }},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := Config{
				Catalog: CatalogConfig{Path: "./catalog.json"},
				State:   StateConfig{Path: "./data"},
			}
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", "  90s "); err != nil || d != 90*time.Second {
		t.Fatalf("got (%v, %v)", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty: got (%v, %v)", d, err)
	}
	if _, err := ParseDurationField("x", "nope"); err == nil {
		t.Fatal("expected error for garbage duration")
	}
	if d, err := ParseDurationOrDefault("x", "", 5*time.Second); err != nil || d != 5*time.Second {
		t.Fatalf("default: got (%v, %v)", d, err)
	}
}

func TestResolveTokenPrecedence(t *testing.T) {
	tokenPath := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(tokenPath, []byte("from-file\nsecond line ignored\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("TELEGRAM_TOKEN", "from-env")

	cfg := Config{Telegram: TelegramConfig{Token: "inline", TokenFile: tokenPath}}
	if tok, err := cfg.ResolveToken(); err != nil || tok != "from-file" {
		t.Fatalf("got (%q, %v), want token file to win", tok, err)
	}

	cfg.Telegram.TokenFile = ""
	if tok, err := cfg.ResolveToken(); err != nil || tok != "from-env" {
		t.Fatalf("got (%q, %v), want env to win over inline", tok, err)
	}

	t.Setenv("TELEGRAM_TOKEN", "")
	if tok, err := cfg.ResolveToken(); err != nil || tok != "inline" {
		t.Fatalf("got (%q, %v), want inline token", tok, err)
	}

	cfg.Telegram.Token = ""
	if _, err := cfg.ResolveToken(); err == nil {
		t.Fatal("expected error with no token configured")
	}
}
