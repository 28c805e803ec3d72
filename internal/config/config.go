package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration.
type Config struct {
	Version   string          `yaml:"version"`
	Log       LogConfig       `yaml:"log"`
	Paths     PathsConfig     `yaml:"paths"`
	OAuth     OAuthConfig     `yaml:"oauth"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	API       APIConfig       `yaml:"api"`
	Telegram  TelegramConfig  `yaml:"telegram"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level string `yaml:"level"`
}

// PathsConfig locates the on-disk artifacts the daemon and CLI share.
// An empty BackupFile means "next to the credentials file"; the store
// derives it.
type PathsConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	BackupFile      string `yaml:"backup_file"`
	StatusFile      string `yaml:"status_file"`
	HistoryDB       string `yaml:"history_db"`
}

// OAuthConfig contains provider endpoints and the retry policy for all
// outbound calls.
type OAuthConfig struct {
	TokenURL        string        `yaml:"token_url"`
	LicenseURL      string        `yaml:"license_url"`
	QuotaURL        string        `yaml:"quota_url"`
	Timeout         time.Duration `yaml:"timeout"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
	BrowserProfile  bool          `yaml:"browser_profile"`
	RotateUserAgent bool          `yaml:"rotate_user_agent"`
}

// SchedulerConfig contains worker-pool sizing and per-job settings.
type SchedulerConfig struct {
	Workers      int           `yaml:"workers"`
	MisfireGrace time.Duration `yaml:"misfire_grace"`
	MaxHistory   int           `yaml:"max_history"`
	StaleAfter   time.Duration `yaml:"stale_after"`
	TokenRefresh JobConfig     `yaml:"token_refresh"`
	QuotaCheck   JobConfig     `yaml:"quota_check"`
	HealthCheck  JobConfig     `yaml:"health_check"`
}

// JobConfig enables one recurring job and sets its cadence.
type JobConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Cron     string        `yaml:"cron,omitempty"`
}

// APIConfig contains the read-only status HTTP server configuration.
type APIConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelegramConfig contains Telegram notification configuration.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

// Validate validates the configuration and applies defaults.
func (c *Config) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := c.Paths.Validate(); err != nil {
		return fmt.Errorf("paths: %w", err)
	}
	if err := c.OAuth.Validate(); err != nil {
		return fmt.Errorf("oauth: %w", err)
	}
	if err := c.Scheduler.Validate(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if err := c.Telegram.Validate(); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}

// Validate validates logging configuration.
func (l *LogConfig) Validate() error {
	if l.Level == "" {
		l.Level = "info"
	}
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("level must be one of: debug, info, warn, error")
	}
	return nil
}

// Validate validates path configuration and applies defaults.
func (p *PathsConfig) Validate() error {
	if p.CredentialsFile == "" {
		p.CredentialsFile = "credentials.json"
	}
	if p.StatusFile == "" {
		p.StatusFile = "daemon_status.json"
	}
	if p.HistoryDB == "" {
		p.HistoryDB = "job_history.db"
	}
	return nil
}

// Validate validates OAuth configuration and applies defaults.
func (o *OAuthConfig) Validate() error {
	if o.TokenURL == "" {
		return fmt.Errorf("token_url is required")
	}
	if o.LicenseURL == "" {
		return fmt.Errorf("license_url is required")
	}
	if o.QuotaURL == "" {
		return fmt.Errorf("quota_url is required")
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = time.Second
	}
	return nil
}

// Validate validates scheduler configuration and applies defaults.
func (s *SchedulerConfig) Validate() error {
	if s.Workers == 0 {
		s.Workers = 3
	}
	if s.Workers < 2 || s.Workers > 4 {
		return fmt.Errorf("workers must be between 2 and 4")
	}
	if s.MisfireGrace <= 0 {
		s.MisfireGrace = 5 * time.Minute
	}
	if s.MaxHistory <= 0 {
		s.MaxHistory = 100
	}
	if s.StaleAfter <= 0 {
		s.StaleAfter = 5 * time.Minute
	}
	if s.TokenRefresh.Interval <= 0 {
		s.TokenRefresh.Interval = 30 * time.Minute
	}
	if s.QuotaCheck.Interval <= 0 {
		s.QuotaCheck.Interval = 2 * time.Hour
	}
	if s.HealthCheck.Interval <= 0 {
		s.HealthCheck.Interval = 5 * time.Minute
	}
	return nil
}

// Validate validates API configuration and applies defaults.
func (a *APIConfig) Validate() error {
	if !a.Enabled {
		return nil
	}
	if a.Host == "" {
		a.Host = "127.0.0.1"
	}
	if a.Port == 0 {
		a.Port = 8640
	}
	if a.Port < 0 || a.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if a.ShutdownTimeout <= 0 {
		a.ShutdownTimeout = 10 * time.Second
	}
	return nil
}

// Validate validates Telegram configuration.
func (t *TelegramConfig) Validate() error {
	if !t.Enabled {
		return nil
	}
	if t.BotToken == "" {
		return fmt.Errorf("bot_token is required when telegram is enabled")
	}
	if t.ChatID == 0 {
		return fmt.Errorf("chat_id is required when telegram is enabled")
	}
	return nil
}

// Default returns a configuration with every default applied, usable
// without a config file when the provider endpoints come from env.
func Default() *Config {
	c := &Config{
		OAuth: OAuthConfig{
			TokenURL:   "https://oauth.account.jetbrains.com/oauth2/token",
			LicenseURL: "https://api.jetbrains.ai/auth/jwt/license",
			QuotaURL:   "https://api.jetbrains.ai/user/v5/quota/get",
		},
		Scheduler: SchedulerConfig{
			TokenRefresh: JobConfig{Enabled: true},
			QuotaCheck:   JobConfig{Enabled: true},
			HealthCheck:  JobConfig{Enabled: true},
		},
	}
	// Cannot fail: endpoints are set above.
	_ = c.Validate()
	return c
}
