package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ID", "cli_a")
	t.Setenv("APP_SECRET", "secret")
	t.Setenv("APP_VERIFICATION_TOKEN", "T")
	t.Setenv("DIALOGFLOW_PROJECT_ID", "proj")
	t.Setenv("DIALOGFLOW_SESSION_ID", "sess")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8000" || cfg.Addr() != ":8000" {
		t.Errorf("port = %q addr = %q", cfg.Port, cfg.Addr())
	}
	if cfg.DedupTTL != 12*time.Hour {
		t.Errorf("DedupTTL = %v, want 12h", cfg.DedupTTL)
	}
	if cfg.DedupBackend != DedupBolt {
		t.Errorf("DedupBackend = %q", cfg.DedupBackend)
	}
	if cfg.NLUSessionMode != SessionPerChat {
		t.Errorf("NLUSessionMode = %q", cfg.NLUSessionMode)
	}
	if !cfg.FeishuTokenCache {
		t.Error("token cache should default to on")
	}
	if cfg.FallbackText == "" {
		t.Error("fallback text should have a default")
	}
	if cfg.NLUErrorText != "" {
		t.Errorf("NLUErrorText = %q, want empty", cfg.NLUErrorText)
	}
	if cfg.DialogflowLanguage != "en" {
		t.Errorf("language = %q", cfg.DialogflowLanguage)
	}
	if got, want := cfg.DedupPath(), filepath.Join(".", "feishubot.db"); got != want {
		t.Errorf("DedupPath = %q, want %q", got, want)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	for _, name := range []string{"APP_ID", "APP_SECRET", "APP_VERIFICATION_TOKEN", "DIALOGFLOW_PROJECT_ID", "DIALOGFLOW_SESSION_ID"} {
		t.Run(name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(name, "")

			_, err := Load("")
			if err == nil {
				t.Fatalf("expected error when %s is empty", name)
			}
			if !strings.Contains(err.Error(), name) {
				t.Errorf("error %q does not name %s", err, name)
			}
		})
	}
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("DEDUP_BACKEND", "REDIS")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("DEDUP_TTL", "90m")
	t.Setenv("DISPATCH_WORKERS", "3")
	t.Setenv("NLU_SESSION_MODE", "shared")
	t.Setenv("FEISHU_BASE_URL", "https://open.larksuite.com/")
	t.Setenv("LOG_LEVEL", "WARNING")
	t.Setenv("FEISHU_TOKEN_CACHE", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DedupBackend != DedupRedis || cfg.RedisAddr != "redis:6379" {
		t.Errorf("dedup = %q %q", cfg.DedupBackend, cfg.RedisAddr)
	}
	if cfg.DedupTTL != 90*time.Minute {
		t.Errorf("DedupTTL = %v", cfg.DedupTTL)
	}
	if cfg.DispatchWorkers != 3 {
		t.Errorf("DispatchWorkers = %d", cfg.DispatchWorkers)
	}
	if cfg.NLUSessionMode != SessionShared {
		t.Errorf("NLUSessionMode = %q", cfg.NLUSessionMode)
	}
	if cfg.FeishuBaseURL != "https://open.larksuite.com" {
		t.Errorf("FeishuBaseURL = %q", cfg.FeishuBaseURL)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.FeishuTokenCache {
		t.Error("FEISHU_TOKEN_CACHE=false ignored")
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"DEDUP_BACKEND":    "etcd",
		"NLU_SESSION_MODE": "per_user",
		"LOG_LEVEL":        "trace",
		"DISPATCH_WORKERS": "0",
		"WEBHOOK_PATH":     "webhook",
		"PORT":             "http",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, val)
			if _, err := Load(""); err == nil {
				t.Fatalf("expected validation error for %s=%s", key, val)
			}
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	body := "APP_ID=file_app\nAPP_SECRET=s\nAPP_VERIFICATION_TOKEN=v\nDIALOGFLOW_PROJECT_ID=p\nDIALOGFLOW_SESSION_ID=s1\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"APP_ID", "APP_SECRET", "APP_VERIFICATION_TOKEN", "DIALOGFLOW_PROJECT_ID", "DIALOGFLOW_SESSION_ID"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AppID != "file_app" {
		t.Errorf("AppID = %q", cfg.AppID)
	}

	if _, err := Load(filepath.Join(dir, "missing.env")); err == nil {
		t.Error("expected error for missing env file")
	}
}

func TestLoadNLU_NoFeishuCredentials(t *testing.T) {
	t.Setenv("APP_ID", "")
	t.Setenv("DIALOGFLOW_PROJECT_ID", "proj")
	t.Setenv("DIALOGFLOW_SESSION_ID", "sess")

	cfg, err := LoadNLU("")
	if err != nil {
		t.Fatalf("LoadNLU: %v", err)
	}
	if cfg.DialogflowProjectID != "proj" || cfg.NLUTimeout != 15*time.Second {
		t.Errorf("unexpected cfg: %+v", cfg)
	}

	t.Setenv("DIALOGFLOW_SESSION_ID", "")
	if _, err := LoadNLU(""); err == nil {
		t.Error("expected error without session id")
	}
}
