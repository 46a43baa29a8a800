package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	General   GeneralConfig   `toml:"general"`
	API       APIConfig       `toml:"api"`
	Intake    IntakeConfig    `toml:"intake"`
	Engine    EngineConfig    `toml:"engine"`
	Rules     RulesConfig     `toml:"rules"`
	Retention RetentionConfig `toml:"retention"`
	Dispatch  DispatchConfig  `toml:"dispatch"`
	Webhook   WebhookConfig   `toml:"webhook"`
	Email     EmailConfig     `toml:"email"`
	Security  SecurityConfig  `toml:"security"`
	Logging   LoggingConfig   `toml:"logging"`
}

type GeneralConfig struct {
	DataDir  string `toml:"data_dir"`
	Hostname string `toml:"hostname"`
}

type APIConfig struct {
	ListenAddr string `toml:"listen_addr"`
	EnableCORS bool   `toml:"enable_cors"`
}

type IntakeConfig struct {
	// RatePerSubject is the sustained ingest rate allowed per subject,
	// events per second. Burst is the bucket size.
	RatePerSubject float64 `toml:"rate_per_subject"`
	Burst          int     `toml:"burst"`
	// FutureTolerance rejects events stamped further than this into the future.
	FutureTolerance  string        `toml:"future_tolerance"`
	FutureToleranceD time.Duration `toml:"-"`
}

type EngineConfig struct {
	EvalInterval  string        `toml:"eval_interval"`
	EvalIntervalD time.Duration `toml:"-"`
	// AnomalyThreshold is bound to the `threshold` identifier in trigger
	// expressions so rules can share one tunable confidence cutoff.
	AnomalyThreshold float64 `toml:"anomaly_threshold"`
	DefaultCooldown  string        `toml:"default_cooldown"`
	DefaultCooldownD time.Duration `toml:"-"`
}

type RulesConfig struct {
	Directory string `toml:"directory"`
}

type RetentionConfig struct {
	Days int `toml:"days"`
	// Schedule is a cron expression for the purge job.
	Schedule string `toml:"schedule"`
}

type DispatchConfig struct {
	QueueSize   int    `toml:"queue_size"`
	Workers     int    `toml:"workers"`
	MaxAttempts int    `toml:"max_attempts"`
	RetryDelay  string `toml:"retry_delay"`
	RetryDelayD time.Duration `toml:"-"`
}

type WebhookConfig struct {
	URL      string            `toml:"url"`
	Headers  map[string]string `toml:"headers"`
	Timeout  string            `toml:"timeout"`
	TimeoutD time.Duration     `toml:"-"`
}

type EmailConfig struct {
	Host          string   `toml:"host"`
	Port          int      `toml:"port"`
	Username      string   `toml:"username"`
	Password      string   `toml:"password"`
	From          string   `toml:"from"`
	To            []string `toml:"to"`
	UseTLS        bool     `toml:"use_tls"`
	TLSSkipVerify bool     `toml:"tls_skip_verify"`
	SubjectPrefix string   `toml:"subject_prefix"`
}

type SecurityConfig struct {
	APIKey          string `toml:"api_key"`
	RateLimitPerMin int    `toml:"rate_limit_per_min"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".behaviorlens")

	return &Config{
		General: GeneralConfig{
			DataDir:  dataDir,
			Hostname: "",
		},
		API: APIConfig{
			ListenAddr: "127.0.0.1:8080",
			EnableCORS: false,
		},
		Intake: IntakeConfig{
			RatePerSubject:  50,
			Burst:           100,
			FutureTolerance: "30s",
		},
		Engine: EngineConfig{
			EvalInterval:     "10s",
			AnomalyThreshold: 0.9,
			DefaultCooldown:  "10s",
		},
		Rules: RulesConfig{
			Directory: filepath.Join(dataDir, "rules"),
		},
		Retention: RetentionConfig{
			Days:     30,
			Schedule: "0 0 3 * * *",
		},
		Dispatch: DispatchConfig{
			QueueSize:   256,
			Workers:     4,
			MaxAttempts: 3,
			RetryDelay:  "2s",
		},
		Webhook: WebhookConfig{
			Timeout: "5s",
		},
		Email: EmailConfig{
			Port:          587,
			SubjectPrefix: "[BehaviorLens]",
		},
		Security: SecurityConfig{
			APIKey:          "",
			RateLimitPerMin: 600,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func LoadFromFile(path string) (*Config, error) {
	expandedPath, err := expandPath(path)
	if err != nil {
		return nil, fmt.Errorf("expand path: %w", err)
	}

	data, err := os.ReadFile(expandedPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("decode TOML: %w", err)
	}

	return cfg, nil
}

func (c *Config) postProcess() error {
	var err error

	if c.Intake.FutureToleranceD, err = time.ParseDuration(c.Intake.FutureTolerance); err != nil {
		return fmt.Errorf("parse intake.future_tolerance: %w", err)
	}

	if c.Engine.EvalIntervalD, err = time.ParseDuration(c.Engine.EvalInterval); err != nil {
		return fmt.Errorf("parse engine.eval_interval: %w", err)
	}

	if c.Engine.DefaultCooldownD, err = time.ParseDuration(c.Engine.DefaultCooldown); err != nil {
		return fmt.Errorf("parse engine.default_cooldown: %w", err)
	}

	if c.Dispatch.RetryDelayD, err = time.ParseDuration(c.Dispatch.RetryDelay); err != nil {
		return fmt.Errorf("parse dispatch.retry_delay: %w", err)
	}

	if c.Webhook.TimeoutD, err = time.ParseDuration(c.Webhook.Timeout); err != nil {
		return fmt.Errorf("parse webhook.timeout: %w", err)
	}

	c.General.DataDir, err = expandPath(c.General.DataDir)
	if err != nil {
		return fmt.Errorf("expand general.data_dir: %w", err)
	}

	c.Rules.Directory, err = expandPath(c.Rules.Directory)
	if err != nil {
		return fmt.Errorf("expand rules.directory: %w", err)
	}

	return nil
}

func (c *Config) Validate() error {
	if c.Intake.RatePerSubject <= 0 {
		return fmt.Errorf("intake.rate_per_subject must be positive, got %.2f", c.Intake.RatePerSubject)
	}

	if c.Intake.Burst < 1 {
		return fmt.Errorf("intake.burst must be at least 1, got %d", c.Intake.Burst)
	}

	if c.Engine.AnomalyThreshold < 0 || c.Engine.AnomalyThreshold > 1 {
		return fmt.Errorf("engine.anomaly_threshold must be between 0 and 1, got %.2f", c.Engine.AnomalyThreshold)
	}

	if c.Engine.EvalIntervalD < time.Second {
		return fmt.Errorf("engine.eval_interval must be at least 1s, got %s", c.Engine.EvalInterval)
	}

	if c.Retention.Days < 1 {
		return fmt.Errorf("retention.days must be at least 1, got %d", c.Retention.Days)
	}

	if c.Dispatch.Workers < 1 {
		return fmt.Errorf("dispatch.workers must be at least 1, got %d", c.Dispatch.Workers)
	}

	if c.Dispatch.MaxAttempts < 1 {
		return fmt.Errorf("dispatch.max_attempts must be at least 1, got %d", c.Dispatch.MaxAttempts)
	}

	if c.Security.RateLimitPerMin < 0 {
		return fmt.Errorf("rate_limit_per_min cannot be negative, got %d", c.Security.RateLimitPerMin)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid logging level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid logging format: %s (valid: json, text)", c.Logging.Format)
	}

	return nil
}

// ApplyEnvOverrides applies environment variables on top of the loaded file.
// The APP_/SMTP_/MONITORING_/ANOMALY_/RETENTION_ names are the deployment
// surface; BL_* names override service-internal settings.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("APP_PORT"); v != "" {
		host := "127.0.0.1"
		if i := strings.LastIndex(cfg.API.ListenAddr, ":"); i >= 0 {
			host = cfg.API.ListenAddr[:i]
		}
		cfg.API.ListenAddr = host + ":" + v
	}
	if v := os.Getenv("MONITORING_INTERVAL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.Engine.EvalInterval = fmt.Sprintf("%ds", secs)
		}
	}
	if v := os.Getenv("ANOMALY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Engine.AnomalyThreshold = f
		}
	}
	if v := os.Getenv("RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			cfg.Retention.Days = days
		}
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Email.Port = port
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Email.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.Email.Password = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.Email.From = v
	}
	if v := os.Getenv("SMTP_TO"); v != "" {
		cfg.Email.To = splitAndTrim(v)
	}

	if v := os.Getenv("BL_DATA_DIR"); v != "" {
		cfg.General.DataDir = v
	}
	if v := os.Getenv("BL_HOSTNAME"); v != "" {
		cfg.General.Hostname = v
	}
	if v := os.Getenv("BL_API_LISTEN"); v != "" {
		cfg.API.ListenAddr = v
	}
	if v := os.Getenv("BL_API_KEY"); v != "" {
		cfg.Security.APIKey = v
	}
	if v := os.Getenv("BL_RULES_DIR"); v != "" {
		cfg.Rules.Directory = v
	}
	if v := os.Getenv("BL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BL_WEBHOOK_URL"); v != "" {
		cfg.Webhook.URL = v
	}
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get user home directory: %w", err)
		}
		return filepath.Join(homeDir, path[2:]), nil
	}

	return path, nil
}

func Load(configPath string) (*Config, error) {
	var cfg *Config
	var err error

	if configPath != "" {
		cfg, err = LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", configPath, err)
		}
	} else {
		cfg = Default()
	}

	ApplyEnvOverrides(cfg)

	if err := cfg.postProcess(); err != nil {
		return nil, fmt.Errorf("post process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}
