package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Session modes for the NLU conversation.
const (
	SessionShared  = "shared"
	SessionPerChat = "per_chat"
)

// Dedup backends.
const (
	DedupBolt   = "bolt"
	DedupRedis  = "redis"
	DedupMemory = "memory"
)

type Config struct {
	AppID             string `validate:"required"`
	AppSecret         string `validate:"required"`
	VerificationToken string `validate:"required"`

	FeishuBaseURL     string        `validate:"required,url"`
	FeishuTokenCache  bool
	FeishuSendTimeout time.Duration `validate:"min=1s"`
	FeishuSendRPS     float64       `validate:"gt=0"`
	FeishuSendBurst   int           `validate:"min=1"`

	DialogflowProjectID string `validate:"required"`
	DialogflowSessionID string `validate:"required"`
	DialogflowLanguage  string `validate:"required"`
	DialogflowBaseURL   string `validate:"required,url"`

	NLUSessionMode string        `validate:"oneof=shared per_chat"`
	NLUTimeout     time.Duration `validate:"min=1s"`
	NLUErrorText   string
	FallbackText   string `validate:"required"`

	Port        string `validate:"required,numeric"`
	WebhookPath string `validate:"required,startswith=/"`

	DedupBackend       string        `validate:"oneof=bolt redis memory"`
	DedupTTL           time.Duration `validate:"min=1s"`
	DedupPurgeInterval time.Duration `validate:"min=1s"`
	DataDir            string        `validate:"required"`
	RedisAddr          string        `validate:"required_if=DedupBackend redis"`
	RedisPassword      string
	RedisDB            int `validate:"min=0"`

	DispatchWorkers int `validate:"min=1,max=1024"`
	DispatchQueue   int `validate:"min=1"`

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogPretty bool
}

var defaults = map[string]any{
	"dialogflow_language_code": "en",
	"dialogflow_base_url":      "https://dialogflow.googleapis.com",
	"nlu_session_mode":         SessionPerChat,
	"nlu_timeout":              "15s",
	"fallback_text":            "Sorry, I don't understand.",
	"feishu_base_url":          "https://open.feishu.cn",
	"feishu_token_cache":       true,
	"feishu_send_timeout":      "10s",
	"feishu_send_rps":          10.0,
	"feishu_send_burst":        10,
	"port":                     "8000",
	"webhook_path":             "/webhook",
	"dedup_backend":            DedupBolt,
	"dedup_ttl":                "12h",
	"dedup_purge_interval":     "30m",
	"data_dir":                 ".",
	"redis_addr":               "127.0.0.1:6379",
	"redis_db":                 0,
	"dispatch_workers":         8,
	"dispatch_queue":           256,
	"log_level":                "info",
	"log_pretty":               false,
}

// Load reads the process configuration. envFile names a dotenv file to load
// first; when empty, ./.env is loaded if it exists.
func Load(envFile string) (*Config, error) {
	v, err := newViper(envFile)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AppID:             v.GetString("app_id"),
		AppSecret:         v.GetString("app_secret"),
		VerificationToken: v.GetString("app_verification_token"),

		FeishuBaseURL:     strings.TrimRight(v.GetString("feishu_base_url"), "/"),
		FeishuTokenCache:  v.GetBool("feishu_token_cache"),
		FeishuSendTimeout: v.GetDuration("feishu_send_timeout"),
		FeishuSendRPS:     v.GetFloat64("feishu_send_rps"),
		FeishuSendBurst:   v.GetInt("feishu_send_burst"),

		DialogflowProjectID: v.GetString("dialogflow_project_id"),
		DialogflowSessionID: v.GetString("dialogflow_session_id"),
		DialogflowLanguage:  v.GetString("dialogflow_language_code"),
		DialogflowBaseURL:   strings.TrimRight(v.GetString("dialogflow_base_url"), "/"),

		NLUSessionMode: strings.ToLower(v.GetString("nlu_session_mode")),
		NLUTimeout:     v.GetDuration("nlu_timeout"),
		NLUErrorText:   v.GetString("nlu_error_text"),
		FallbackText:   v.GetString("fallback_text"),

		Port:        v.GetString("port"),
		WebhookPath: v.GetString("webhook_path"),

		DedupBackend:       strings.ToLower(v.GetString("dedup_backend")),
		DedupTTL:           v.GetDuration("dedup_ttl"),
		DedupPurgeInterval: v.GetDuration("dedup_purge_interval"),
		DataDir:            v.GetString("data_dir"),
		RedisAddr:          v.GetString("redis_addr"),
		RedisPassword:      v.GetString("redis_password"),
		RedisDB:            v.GetInt("redis_db"),

		DispatchWorkers: v.GetInt("dispatch_workers"),
		DispatchQueue:   v.GetInt("dispatch_queue"),

		LogLevel:  strings.ToLower(v.GetString("log_level")),
		LogPretty: v.GetBool("log_pretty"),
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}

	for _, req := range []struct {
		name, val string
	}{
		{"APP_ID", cfg.AppID},
		{"APP_SECRET", cfg.AppSecret},
		{"APP_VERIFICATION_TOKEN", cfg.VerificationToken},
		{"DIALOGFLOW_PROJECT_ID", cfg.DialogflowProjectID},
		{"DIALOGFLOW_SESSION_ID", cfg.DialogflowSessionID},
	} {
		if req.val == "" {
			return nil, fmt.Errorf("required env var %s is not set", req.name)
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadNLU loads only what the nlu subcommands need, so they can run
// without Feishu credentials.
func LoadNLU(envFile string) (*Config, error) {
	v, err := newViper(envFile)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DialogflowProjectID: v.GetString("dialogflow_project_id"),
		DialogflowSessionID: v.GetString("dialogflow_session_id"),
		DialogflowLanguage:  v.GetString("dialogflow_language_code"),
		DialogflowBaseURL:   strings.TrimRight(v.GetString("dialogflow_base_url"), "/"),
		NLUSessionMode:      strings.ToLower(v.GetString("nlu_session_mode")),
		NLUTimeout:          v.GetDuration("nlu_timeout"),
		LogLevel:            strings.ToLower(v.GetString("log_level")),
		LogPretty:           v.GetBool("log_pretty"),
	}
	if cfg.DialogflowProjectID == "" || cfg.DialogflowSessionID == "" {
		return nil, fmt.Errorf("DIALOGFLOW_PROJECT_ID and DIALOGFLOW_SESSION_ID must be set")
	}
	if cfg.NLUSessionMode != SessionShared && cfg.NLUSessionMode != SessionPerChat {
		return nil, fmt.Errorf("NLU_SESSION_MODE must be %q or %q", SessionShared, SessionPerChat)
	}
	return cfg, nil
}

func newViper(envFile string) (*viper.Viper, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	} else {
		// .env is optional, env vars may already be set (e.g. in production)
		_ = godotenv.Load()
	}

	v := viper.New()
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	return v, nil
}

// DedupPath is the bolt file used by the bolt dedup backend.
func (c *Config) DedupPath() string {
	return filepath.Join(c.DataDir, "feishubot.db")
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}
