package config

import (
	"os"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.General.DataDir == "" {
		t.Error("General.DataDir should not be empty")
	}
	if cfg.API.ListenAddr != "127.0.0.1:8080" {
		t.Errorf("API.ListenAddr = %q, want %q", cfg.API.ListenAddr, "127.0.0.1:8080")
	}
	if cfg.Engine.AnomalyThreshold != 0.9 {
		t.Errorf("Engine.AnomalyThreshold = %v, want 0.9", cfg.Engine.AnomalyThreshold)
	}
	if cfg.Retention.Days != 30 {
		t.Errorf("Retention.Days = %d, want 30", cfg.Retention.Days)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `
[general]
data_dir = "/custom/data"

[api]
listen_addr = "0.0.0.0:8080"

[engine]
eval_interval = "5s"
anomaly_threshold = 0.95
`

	tmpFile, err := os.CreateTemp("", "config-*.toml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	_ = tmpFile.Close()

	cfg, err := LoadFromFile(tmpFile.Name())
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.General.DataDir != "/custom/data" {
		t.Errorf("General.DataDir = %q, want %q", cfg.General.DataDir, "/custom/data")
	}
	if cfg.API.ListenAddr != "0.0.0.0:8080" {
		t.Errorf("API.ListenAddr = %q, want %q", cfg.API.ListenAddr, "0.0.0.0:8080")
	}
	if cfg.Engine.AnomalyThreshold != 0.95 {
		t.Errorf("Engine.AnomalyThreshold = %v, want 0.95", cfg.Engine.AnomalyThreshold)
	}
}

func TestLoadFromFile_NotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/config.toml")
	if err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad_PostProcessDurations(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Engine.EvalIntervalD != 10*time.Second {
		t.Errorf("EvalIntervalD = %s, want 10s", cfg.Engine.EvalIntervalD)
	}
	if cfg.Engine.DefaultCooldownD != 10*time.Second {
		t.Errorf("DefaultCooldownD = %s, want 10s", cfg.Engine.DefaultCooldownD)
	}
	if cfg.Webhook.TimeoutD != 5*time.Second {
		t.Errorf("Webhook.TimeoutD = %s, want 5s", cfg.Webhook.TimeoutD)
	}
}

func TestValidate_BadThreshold(t *testing.T) {
	cfg := Default()
	_ = cfg.postProcess()
	cfg.Engine.AnomalyThreshold = 1.5

	if err := cfg.Validate(); err == nil {
		t.Error("expected error for anomaly_threshold > 1")
	}
}

func TestValidate_BadLogLevel(t *testing.T) {
	cfg := Default()
	_ = cfg.postProcess()
	cfg.Logging.Level = "verbose"

	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid logging level")
	}
}

func TestValidate_BadRetention(t *testing.T) {
	cfg := Default()
	_ = cfg.postProcess()
	cfg.Retention.Days = 0

	if err := cfg.Validate(); err == nil {
		t.Error("expected error for retention.days = 0")
	}
}

func TestApplyEnvOverrides_AppPort(t *testing.T) {
	t.Setenv("APP_PORT", "9999")

	cfg := Default()
	ApplyEnvOverrides(cfg)

	if cfg.API.ListenAddr != "127.0.0.1:9999" {
		t.Errorf("API.ListenAddr = %q, want %q", cfg.API.ListenAddr, "127.0.0.1:9999")
	}
}

func TestApplyEnvOverrides_MonitoringInterval(t *testing.T) {
	t.Setenv("MONITORING_INTERVAL_SECONDS", "30")

	cfg := Default()
	ApplyEnvOverrides(cfg)

	if cfg.Engine.EvalInterval != "30s" {
		t.Errorf("Engine.EvalInterval = %q, want %q", cfg.Engine.EvalInterval, "30s")
	}
}

func TestApplyEnvOverrides_AnomalyThreshold(t *testing.T) {
	t.Setenv("ANOMALY_THRESHOLD", "0.75")

	cfg := Default()
	ApplyEnvOverrides(cfg)

	if cfg.Engine.AnomalyThreshold != 0.75 {
		t.Errorf("Engine.AnomalyThreshold = %v, want 0.75", cfg.Engine.AnomalyThreshold)
	}
}

func TestApplyEnvOverrides_RetentionDays(t *testing.T) {
	t.Setenv("RETENTION_DAYS", "7")

	cfg := Default()
	ApplyEnvOverrides(cfg)

	if cfg.Retention.Days != 7 {
		t.Errorf("Retention.Days = %d, want 7", cfg.Retention.Days)
	}
}

func TestApplyEnvOverrides_SMTP(t *testing.T) {
	t.Setenv("SMTP_HOST", "mail.example.com")
	t.Setenv("SMTP_PORT", "465")
	t.Setenv("SMTP_USER", "alerts")
	t.Setenv("SMTP_PASSWORD", "secret")
	t.Setenv("SMTP_FROM", "alerts@example.com")
	t.Setenv("SMTP_TO", "ops@example.com, oncall@example.com")

	cfg := Default()
	ApplyEnvOverrides(cfg)

	if cfg.Email.Host != "mail.example.com" {
		t.Errorf("Email.Host = %q", cfg.Email.Host)
	}
	if cfg.Email.Port != 465 {
		t.Errorf("Email.Port = %d, want 465", cfg.Email.Port)
	}
	if len(cfg.Email.To) != 2 {
		t.Fatalf("Email.To = %v, want 2 recipients", cfg.Email.To)
	}
	if cfg.Email.To[1] != "oncall@example.com" {
		t.Errorf("Email.To[1] = %q", cfg.Email.To[1])
	}
}

func TestApplyEnvOverrides_InvalidNumbersIgnored(t *testing.T) {
	t.Setenv("MONITORING_INTERVAL_SECONDS", "not-a-number")
	t.Setenv("RETENTION_DAYS", "-4")

	cfg := Default()
	ApplyEnvOverrides(cfg)

	if cfg.Engine.EvalInterval != "10s" {
		t.Errorf("Engine.EvalInterval = %q, want default 10s", cfg.Engine.EvalInterval)
	}
	if cfg.Retention.Days != 30 {
		t.Errorf("Retention.Days = %d, want default 30", cfg.Retention.Days)
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(" a@x.com ,, b@y.com")
	if len(got) != 2 || got[0] != "a@x.com" || got[1] != "b@y.com" {
		t.Errorf("splitAndTrim = %v", got)
	}
}
