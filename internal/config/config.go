// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token        string  `yaml:"token" validate:"required"`
	APIEndpoint  string  `yaml:"api_endpoint"`             // Bot API URL pattern, token then method
	Workers      int     `yaml:"workers" validate:"gte=1"` // polling workers
	SuperAdminID int64   `yaml:"super_admin_id" validate:"gte=0"`
	SendPerSec   float64 `yaml:"send_per_sec" validate:"gt=0"` // outbound message budget
	// Per-user command budget enforced through Redis; zero disables it.
	CommandsPerMinute int `yaml:"commands_per_minute" validate:"gte=0"`
}

type LogConfig struct {
	Level    string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format   string `yaml:"format" validate:"oneof=json console"`
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

// AdminConfig is the HTTP listener for the webhook, health, metrics and admin API.
type AdminConfig struct {
	Port int `yaml:"port" validate:"gte=0,lte=65535"`
}

// DatabaseConfig selects the store: Postgres when URL is set, SQLite at SQLitePath otherwise.
type DatabaseConfig struct {
	URL        string `yaml:"url"`
	SQLitePath string `yaml:"sqlite_path"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type CredentialConfig struct {
	ID    string `yaml:"id" validate:"required"`
	Token string `yaml:"token" validate:"required"`
}

type XConfig struct {
	BaseURL       string             `yaml:"base_url" validate:"required,url"`
	Credentials   []CredentialConfig `yaml:"credentials" validate:"min=1,dive"`
	WebhookSecret string             `yaml:"webhook_secret"`
	Timeout       time.Duration      `yaml:"timeout" validate:"gte=1s"`
	// Consecutive transient failures before the client fails fast.
	BreakerFailures uint32        `yaml:"breaker_failures" validate:"gte=1"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown" validate:"gte=1s"`
}

type MonitorConfig struct {
	PollInterval        time.Duration `yaml:"poll_interval" validate:"gte=1s"`
	WarnThreshold       int           `yaml:"warn_threshold" validate:"gte=0"`
	PageSize            int           `yaml:"page_size" validate:"gte=5,lte=100"`
	InitPageSize        int           `yaml:"init_page_size" validate:"gte=5,lte=100"`
	PauseMin            time.Duration `yaml:"pause_min" validate:"gte=1s"`
	PauseMax            time.Duration `yaml:"pause_max" validate:"gtefield=PauseMin"`
	PauseDefault        time.Duration `yaml:"pause_default" validate:"gtefield=PauseMin,ltefield=PauseMax"`
	PauseBuffer         time.Duration `yaml:"pause_buffer" validate:"gte=0"`
	Timezone            string        `yaml:"timezone" validate:"required"`
	DeliveryConcurrency int           `yaml:"delivery_concurrency" validate:"gte=1"`
	DeliveryRetries     uint          `yaml:"delivery_retries" validate:"gte=1"`
	Autostart           bool          `yaml:"autostart"`

	location *time.Location
}

// Location is the zone used to render post timestamps.
func (m MonitorConfig) Location() *time.Location {
	if m.location == nil {
		return time.UTC
	}
	return m.location
}

type SchedulerConfig struct {
	// Cron spec for the status report to super admins; empty disables it.
	StatusReportCron string `yaml:"status_report_cron"`
}

type SecurityConfig struct {
	AdminJWTSecret string        `yaml:"admin_jwt_secret"`
	AdminTokenTTL  time.Duration `yaml:"admin_token_ttl"`
}

type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	Log       LogConfig       `yaml:"log"`
	Admin     AdminConfig     `yaml:"admin"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	X         XConfig         `yaml:"x"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Security  SecurityConfig  `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path (optional), then .env and environment
// overrides, applies defaults and validates.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case errors.Is(err, fs.ErrNotExist):
			// env-only deployments
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

// Validate checks struct tags and resolves the monitor time zone.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	loc, err := time.LoadLocation(cfg.Monitor.Timezone)
	if err != nil {
		return fmt.Errorf("invalid config: monitor.timezone: %w", err)
	}
	cfg.Monitor.location = loc

	seen := map[string]bool{}
	for _, c := range cfg.X.Credentials {
		if seen[c.ID] {
			return fmt.Errorf("invalid config: duplicate x credential id %q", c.ID)
		}
		seen[c.ID] = true
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv("TELEGRAM_TOKEN"); v != "" {
		cfg.Bot.Token = v
	}
	if v := getenv("SUPER_ADMIN_ID"); v != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("SUPER_ADMIN_ID: %w", err)
		}
		cfg.Bot.SuperAdminID = id
	}
	if v := getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := getenv("TWITTER_WEBHOOK_SECRET"); v != "" {
		cfg.X.WebhookSecret = v
	}
	if v := getenv("ADMIN_JWT_SECRET"); v != "" {
		cfg.Security.AdminJWTSecret = v
	}
	if v := getenv("TWITTER_POLL_INTERVAL"); v != "" {
		secs, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("TWITTER_POLL_INTERVAL: %w", err)
		}
		cfg.Monitor.PollInterval = time.Duration(secs) * time.Second
	}
	for _, id := range []string{"dy", "dx"} {
		tok := getenv(strings.ToUpper(id) + "_TWITTER_BEARER_TOKEN")
		if tok == "" {
			continue
		}
		setCredential(cfg, id, tok)
	}
	return nil
}

func setCredential(cfg *Config, id, token string) {
	for i := range cfg.X.Credentials {
		if cfg.X.Credentials[i].ID == id {
			cfg.X.Credentials[i].Token = token
			return
		}
	}
	cfg.X.Credentials = append(cfg.X.Credentials, CredentialConfig{ID: id, Token: token})
}

func applyDefaults(cfg *Config) {
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 4
	}
	if cfg.Bot.SendPerSec <= 0 {
		cfg.Bot.SendPerSec = 25
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Admin.Port == 0 {
		cfg.Admin.Port = 8080
	}
	if cfg.Database.URL == "" && cfg.Database.SQLitePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		cfg.Database.SQLitePath = filepath.Join(home, ".twitter-monitor.db")
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.X.BaseURL == "" {
		cfg.X.BaseURL = "https://api.twitter.com/2"
	}
	if cfg.X.Timeout <= 0 {
		cfg.X.Timeout = 15 * time.Second
	}
	if cfg.X.BreakerFailures == 0 {
		cfg.X.BreakerFailures = 5
	}
	if cfg.X.BreakerCooldown <= 0 {
		cfg.X.BreakerCooldown = 30 * time.Second
	}

	m := &cfg.Monitor
	if m.PollInterval <= 0 {
		m.PollInterval = 60 * time.Second
	}
	if m.WarnThreshold == 0 {
		m.WarnThreshold = 10
	}
	if m.PageSize == 0 {
		m.PageSize = 10
	}
	if m.InitPageSize == 0 {
		m.InitPageSize = 5
	}
	if m.PauseMin <= 0 {
		m.PauseMin = 5 * time.Minute
	}
	if m.PauseMax <= 0 {
		m.PauseMax = 60 * time.Minute
	}
	if m.PauseDefault <= 0 {
		m.PauseDefault = 15 * time.Minute
	}
	if m.PauseBuffer == 0 {
		m.PauseBuffer = 5 * time.Second
	}
	if m.Timezone == "" {
		m.Timezone = "America/New_York"
	}
	if m.DeliveryConcurrency <= 0 {
		m.DeliveryConcurrency = 4
	}
	if m.DeliveryRetries == 0 {
		m.DeliveryRetries = 3
	}

	if cfg.Security.AdminTokenTTL <= 0 {
		cfg.Security.AdminTokenTTL = 24 * time.Hour
	}
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
