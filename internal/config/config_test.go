//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadConfig_DefaultsAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
bot:
  token: from-yaml
x:
  credentials:
    - id: dy
      token: yaml-dy
`)
	t.Setenv("TELEGRAM_TOKEN", "from-env")
	t.Setenv("DX_TWITTER_BEARER_TOKEN", "env-dx")
	t.Setenv("TWITTER_POLL_INTERVAL", "90")
	t.Setenv("SUPER_ADMIN_ID", "777")

	cfg, err := LoadConfig(path, true)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Bot.Token != "from-env" {
		t.Errorf("env should override token, got %q", cfg.Bot.Token)
	}
	if cfg.Bot.SuperAdminID != 777 {
		t.Errorf("SuperAdminID = %d", cfg.Bot.SuperAdminID)
	}
	if cfg.Monitor.PollInterval != 90*time.Second {
		t.Errorf("PollInterval = %s", cfg.Monitor.PollInterval)
	}
	if len(cfg.X.Credentials) != 2 || cfg.X.Credentials[0].ID != "dy" || cfg.X.Credentials[1].ID != "dx" {
		t.Errorf("credentials not merged in priority order: %+v", cfg.X.Credentials)
	}
	if cfg.Monitor.PauseMin != 5*time.Minute || cfg.Monitor.PauseMax != time.Hour || cfg.Monitor.PauseDefault != 15*time.Minute {
		t.Errorf("unexpected pause bounds: %+v", cfg.Monitor)
	}
	if cfg.Monitor.WarnThreshold != 10 {
		t.Errorf("WarnThreshold = %d", cfg.Monitor.WarnThreshold)
	}
	if cfg.Monitor.Location().String() != "America/New_York" {
		t.Errorf("Location = %s", cfg.Monitor.Location())
	}
	if cfg.Database.URL == "" && !strings.HasSuffix(cfg.Database.SQLitePath, ".twitter-monitor.db") {
		t.Errorf("expected sqlite default path, got %q", cfg.Database.SQLitePath)
	}
	if !cfg.Runtime.Dev {
		t.Error("expected dev runtime flag")
	}
}

func TestLoadConfig_ValidationFailures(t *testing.T) {
	cases := map[string]string{
		"missing token": `
x:
  credentials: [{id: dy, token: t}]
`,
		"no credentials": `
bot: {token: t}
`,
		"bad timezone": `
bot: {token: t}
x:
  credentials: [{id: dy, token: t}]
monitor: {timezone: Mars/Olympus}
`,
		"pause default above max": `
bot: {token: t}
x:
  credentials: [{id: dy, token: t}]
monitor: {pause_max: 10m, pause_default: 20m}
`,
		"duplicate credential": `
bot: {token: t}
x:
  credentials: [{id: dy, token: a}, {id: dy, token: b}]
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("TELEGRAM_TOKEN", "")
			t.Setenv("DY_TWITTER_BEARER_TOKEN", "")
			t.Setenv("DX_TWITTER_BEARER_TOKEN", "")
			if _, err := LoadConfig(writeConfig(t, body), false); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadConfig_MissingFileUsesEnv(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "tok")
	t.Setenv("DY_TWITTER_BEARER_TOKEN", "dy")
	t.Setenv("DX_TWITTER_BEARER_TOKEN", "")
	t.Setenv("TWITTER_POLL_INTERVAL", "")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), false)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.X.BaseURL != "https://api.twitter.com/2" {
		t.Errorf("BaseURL = %q", cfg.X.BaseURL)
	}
}

func TestLoadConfig_BadPollInterval(t *testing.T) {
	t.Setenv("TWITTER_POLL_INTERVAL", "soon")
	if _, err := LoadConfig("", false); err == nil {
		t.Fatal("expected error for non-numeric poll interval")
	}
}
