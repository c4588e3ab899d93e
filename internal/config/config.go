package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

// DefaultMonthlyAILimit is the per-user ceiling of classifications per calendar month.
const DefaultMonthlyAILimit = 100

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOffline   = "offline"
)

type Config struct {
	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	LLMBaseURL      string `yaml:"llm_base_url"`
	LLMMaxTokens    int    `yaml:"llm_max_tokens"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`

	ClassifierTimeoutSeconds   int `yaml:"classifier_timeout_seconds"`
	ExternalHTTPTimeoutSeconds int `yaml:"external_http_timeout_seconds"`
	MonthlyAILimit             int `yaml:"monthly_ai_limit"`

	DBPath          string `yaml:"db_path"`
	ReportOutputDir string `yaml:"report_output_dir"`
	ChromePath      string `yaml:"chrome_path"`
	Organization    string `yaml:"organization"` // printed on reports

	ListenAddr         string   `yaml:"listen_addr"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	JWTSecret          string   `yaml:"jwt_secret"`

	SlackBotToken       string `yaml:"slack_bot_token"`
	SlackAlertChannelID string `yaml:"slack_alert_channel_id"`
	SlackAlertThreshold int    `yaml:"slack_alert_threshold"`

	// Slack user IDs or names mentioned on high-severity alerts.
	SlackAlertMentions []string `yaml:"slack_alert_mentions"`

	HousekeepingSchedule string `yaml:"housekeeping_schedule"`
	QuotaRetentionMonths int    `yaml:"quota_retention_months"`
	Timezone             string `yaml:"timezone"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

// LoadConfig loads configuration and exits the process when it is invalid.
func LoadConfig() Config {
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

// Load reads path (if it exists), applies env overrides and defaults, and
// validates the result.
func Load(configPath string) (Config, error) {
	var cfg Config

	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	} else if !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("reading %s: %w", configPath, err)
	}

	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.LLMBaseURL, "LLM_BASE_URL")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.ReportOutputDir, "REPORT_OUTPUT_DIR")
	envOverride(&cfg.ChromePath, "CHROME_PATH")
	envOverride(&cfg.Organization, "ORGANIZATION")
	envOverride(&cfg.ListenAddr, "LISTEN_ADDR")
	envOverride(&cfg.JWTSecret, "JWT_SECRET")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverrideAllowEmpty(&cfg.SlackAlertChannelID, "SLACK_ALERT_CHANNEL_ID")
	envOverrideAllowEmpty(&cfg.HousekeepingSchedule, "HOUSEKEEPING_SCHEDULE")
	envOverride(&cfg.Timezone, "TIMEZONE")
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.CORSAllowedOrigins = splitList(origins)
	}
	if mentions := os.Getenv("SLACK_ALERT_MENTIONS"); mentions != "" {
		cfg.SlackAlertMentions = splitList(mentions)
	}

	intOverrides := []struct {
		field  *int
		envKey string
	}{
		{&cfg.LLMMaxTokens, "LLM_MAX_TOKENS"},
		{&cfg.ClassifierTimeoutSeconds, "CLASSIFIER_TIMEOUT_SECONDS"},
		{&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"},
		{&cfg.MonthlyAILimit, "MONTHLY_AI_LIMIT"},
		{&cfg.SlackAlertThreshold, "SLACK_ALERT_THRESHOLD"},
		{&cfg.QuotaRetentionMonths, "QUOTA_RETENTION_MONTHS"},
	}
	for _, o := range intOverrides {
		if err := envOverrideInt(o.field, o.envKey); err != nil {
			return Config{}, err
		}
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = ProviderAnthropic
	}
	if cfg.LLMMaxTokens == 0 {
		cfg.LLMMaxTokens = 1000
	}
	if cfg.ClassifierTimeoutSeconds == 0 {
		cfg.ClassifierTimeoutSeconds = 60
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.MonthlyAILimit == 0 {
		cfg.MonthlyAILimit = DefaultMonthlyAILimit
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./tokasu.db"
	}
	if cfg.ReportOutputDir == "" {
		cfg.ReportOutputDir = "./reports"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.SlackAlertThreshold == 0 {
		cfg.SlackAlertThreshold = 60
	}
	if cfg.QuotaRetentionMonths == 0 {
		cfg.QuotaRetentionMonths = 12
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
}

func validate(cfg *Config) error {
	switch cfg.LLMProvider {
	case ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return fmt.Errorf("anthropic_api_key is required when llm_provider=anthropic")
		}
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return fmt.Errorf("openai_api_key is required when llm_provider=openai")
		}
	case ProviderOffline:
		log.Printf("WARNING: llm_provider=offline, every classification uses the local fallback")
	default:
		return fmt.Errorf("llm_provider must be 'anthropic', 'openai' or 'offline', got '%s'", cfg.LLMProvider)
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone '%s': %w", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	if cfg.MonthlyAILimit < 1 {
		return fmt.Errorf("invalid monthly_ai_limit '%d': must be >= 1", cfg.MonthlyAILimit)
	}
	if cfg.ExternalHTTPTimeoutSeconds < 5 {
		return fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", cfg.ExternalHTTPTimeoutSeconds)
	}
	if cfg.ClassifierTimeoutSeconds < 1 {
		return fmt.Errorf("invalid classifier_timeout_seconds '%d': must be >= 1", cfg.ClassifierTimeoutSeconds)
	}
	if cfg.LLMMaxTokens < 64 {
		return fmt.Errorf("invalid llm_max_tokens '%d': must be >= 64", cfg.LLMMaxTokens)
	}
	if cfg.SlackAlertThreshold < 0 || cfg.SlackAlertThreshold > 100 {
		return fmt.Errorf("invalid slack_alert_threshold '%d': must be between 0 and 100", cfg.SlackAlertThreshold)
	}
	if cfg.QuotaRetentionMonths < 1 {
		return fmt.Errorf("invalid quota_retention_months '%d': must be >= 1", cfg.QuotaRetentionMonths)
	}
	if cfg.SlackAlertChannelID != "" && cfg.SlackBotToken == "" {
		return fmt.Errorf("slack_alert_channel_id is set but slack_bot_token is not")
	}
	if s := strings.TrimSpace(cfg.HousekeepingSchedule); s != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(s); err != nil {
			return fmt.Errorf("invalid housekeeping_schedule '%s': %w", s, err)
		}
	}
	return nil
}

// ClassifierTimeout bounds a single external classification call.
func (c Config) ClassifierTimeout() time.Duration {
	return time.Duration(c.ClassifierTimeoutSeconds) * time.Second
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackAlertChannelID != ""
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
