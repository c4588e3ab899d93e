package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setMinimalValidConfigEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("TIMEZONE", "UTC")
}

func TestLoadFromEnvWithDefaults(t *testing.T) {
	setMinimalValidConfigEnv(t)
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing-config.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LLMProvider != "openai" {
		t.Fatalf("unexpected provider: %q", cfg.LLMProvider)
	}
	if cfg.DBPath != "./tokasu.db" {
		t.Fatalf("unexpected db path default: %q", cfg.DBPath)
	}
	if cfg.ReportOutputDir != "./reports" {
		t.Fatalf("unexpected report output dir default: %q", cfg.ReportOutputDir)
	}
	if cfg.ExternalHTTPTimeoutSeconds != int(defaultExternalHTTPTimeout/time.Second) {
		t.Fatalf("unexpected external HTTP timeout default: %d", cfg.ExternalHTTPTimeoutSeconds)
	}
	if cfg.MonthlyAILimit != DefaultMonthlyAILimit {
		t.Fatalf("unexpected monthly limit default: %d", cfg.MonthlyAILimit)
	}
	if cfg.ClassifierTimeout() != 60*time.Second {
		t.Fatalf("unexpected classifier timeout: %s", cfg.ClassifierTimeout())
	}
	if cfg.SlackAlertThreshold != 60 {
		t.Fatalf("unexpected slack threshold default: %d", cfg.SlackAlertThreshold)
	}
	if cfg.Location == nil || cfg.Location.String() != "UTC" {
		t.Fatalf("unexpected location: %v", cfg.Location)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("expected 2 CORS origins, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
llm_provider: "anthropic"
anthropic_api_key: "yaml-anthropic"
timezone: "Asia/Tokyo"
db_path: "/tmp/yaml.db"
monthly_ai_limit: 50
external_http_timeout_seconds: 75
slack_bot_token: "xoxb-yaml"
slack_alert_channel_id: "C123"
housekeeping_schedule: "0 4 1 * *"
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("DB_PATH", "/tmp/env.db")
	t.Setenv("MONTHLY_AI_LIMIT", "120")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LLMProvider != "anthropic" || cfg.AnthropicAPIKey != "yaml-anthropic" {
		t.Fatalf("unexpected llm settings: %q %q", cfg.LLMProvider, cfg.AnthropicAPIKey)
	}
	if cfg.DBPath != "/tmp/env.db" {
		t.Fatalf("expected env DB_PATH override, got %q", cfg.DBPath)
	}
	if cfg.MonthlyAILimit != 120 {
		t.Fatalf("expected env MONTHLY_AI_LIMIT override, got %d", cfg.MonthlyAILimit)
	}
	if cfg.ExternalHTTPTimeoutSeconds != 75 {
		t.Fatalf("expected yaml timeout, got %d", cfg.ExternalHTTPTimeoutSeconds)
	}
	if cfg.Location.String() != "Asia/Tokyo" {
		t.Fatalf("unexpected location: %v", cfg.Location)
	}
	if !cfg.SlackConfigured() {
		t.Fatal("expected slack to be configured")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing anthropic key",
			env:     map[string]string{"LLM_PROVIDER": "anthropic", "ANTHROPIC_API_KEY": ""},
			wantErr: "anthropic_api_key",
		},
		{
			name:    "unknown provider",
			env:     map[string]string{"LLM_PROVIDER": "bard"},
			wantErr: "llm_provider",
		},
		{
			name:    "bad int",
			env:     map[string]string{"LLM_PROVIDER": "offline", "MONTHLY_AI_LIMIT": "lots"},
			wantErr: "MONTHLY_AI_LIMIT",
		},
		{
			name:    "negative limit",
			env:     map[string]string{"LLM_PROVIDER": "offline", "MONTHLY_AI_LIMIT": "-1"},
			wantErr: "monthly_ai_limit",
		},
		{
			name:    "bad timezone",
			env:     map[string]string{"LLM_PROVIDER": "offline", "TIMEZONE": "Mars/Olympus"},
			wantErr: "timezone",
		},
		{
			name:    "bad cron",
			env:     map[string]string{"LLM_PROVIDER": "offline", "HOUSEKEEPING_SCHEDULE": "every day"},
			wantErr: "housekeeping_schedule",
		},
		{
			name:    "channel without token",
			env:     map[string]string{"LLM_PROVIDER": "offline", "SLACK_ALERT_CHANNEL_ID": "C1"},
			wantErr: "slack_bot_token",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("llm_provider: [unterminated"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(cfgPath); err == nil {
		t.Fatal("expected parse error")
	}
}
