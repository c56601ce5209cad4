package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pferrors "github.com/otherjamesbrown/emlsync/pkg/errors"
	"github.com/otherjamesbrown/emlsync/pkg/logging"
)

// isolate points every lookup at a temp dir and clears the variables
// LoadConfig reads. godotenv.Load never overrides a set variable, so values
// loaded from a .env file are removed again by t.Setenv's cleanup.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(EnvConfigDir, dir)
	for _, key := range []string{
		EnvCRMBaseURL, EnvCRMAPIKey, EnvLLMBaseURL, EnvLLMAPIKey, EnvLLMModel,
		EnvPersistenceDBPath, EnvLedgerDriver, EnvLedgerDSN, EnvInternalDomains,
		EnvInternalAddresses, EnvEnrichmentProviders, EnvLogLevel,
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.CRM.Timeout != 10*time.Second {
		t.Errorf("CRM.Timeout = %v, want 10s", cfg.CRM.Timeout)
	}
	if cfg.CRM.UploadTimeout != 30*time.Second {
		t.Errorf("CRM.UploadTimeout = %v, want 30s", cfg.CRM.UploadTimeout)
	}
	if cfg.LLM.Model != "qwen/qwen3-4b-2507" {
		t.Errorf("LLM.Model = %q", cfg.LLM.Model)
	}
	if cfg.Ledger.Path != "./eml_processing.db" {
		t.Errorf("Ledger.Path = %q, want ./eml_processing.db", cfg.Ledger.Path)
	}
	if cfg.LogLevel != logging.LevelInfo {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("from environment", func(t *testing.T) {
		t.Setenv(EnvConfigDir, "/custom/config")
		dir, err := ConfigDir()
		if err != nil {
			t.Fatalf("ConfigDir: %v", err)
		}
		if dir != "/custom/config" {
			t.Errorf("ConfigDir = %q, want /custom/config", dir)
		}
	})

	t.Run("home fallback", func(t *testing.T) {
		t.Setenv(EnvConfigDir, "")
		home, err := os.UserHomeDir()
		if err != nil {
			t.Skip("no home directory")
		}
		dir, err := ConfigDir()
		if err != nil {
			t.Fatalf("ConfigDir: %v", err)
		}
		if want := filepath.Join(home, DefaultConfigDir); dir != want {
			t.Errorf("ConfigDir = %q, want %q", dir, want)
		}
	})
}

func TestLoadConfig_FileEnvFlagPrecedence(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, DefaultConfigFile), `
crm:
  base_url: https://file.crm.test
  timeout: 5s
llm:
  model: file-model
ledger:
  path: /var/lib/emlsync/file.db
internal_domains: [acme.test]
`)

	cfg, err := LoadConfig(LoadOptions{DotEnvPath: filepath.Join(dir, "missing.env")})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.CRM.BaseURL != "https://file.crm.test" {
		t.Errorf("BaseURL from file = %q", cfg.CRM.BaseURL)
	}
	if cfg.CRM.Timeout != 5*time.Second {
		t.Errorf("Timeout from file = %v", cfg.CRM.Timeout)
	}
	if cfg.CRM.UploadTimeout != 30*time.Second {
		t.Errorf("UploadTimeout should keep default, got %v", cfg.CRM.UploadTimeout)
	}
	if len(cfg.InternalDomains) != 1 || cfg.InternalDomains[0] != "acme.test" {
		t.Errorf("InternalDomains = %v", cfg.InternalDomains)
	}

	t.Setenv(EnvCRMBaseURL, "https://env.crm.test")
	t.Setenv(EnvLLMModel, "env-model")
	t.Setenv(EnvInternalDomains, "acme.test, acme.io")

	cfg, err = LoadConfig(LoadOptions{
		DotEnvPath: filepath.Join(dir, "missing.env"),
		Flags:      Overrides{LLMModel: "flag-model", DBPath: "/tmp/flag.db"},
	})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.CRM.BaseURL != "https://env.crm.test" {
		t.Errorf("env should override file, got %q", cfg.CRM.BaseURL)
	}
	if cfg.LLM.Model != "flag-model" {
		t.Errorf("flag should override env, got %q", cfg.LLM.Model)
	}
	if cfg.Ledger.Path != "/tmp/flag.db" {
		t.Errorf("Ledger.Path = %q, want flag value", cfg.Ledger.Path)
	}
	if got := strings.Join(cfg.InternalDomains, ","); got != "acme.test,acme.io" {
		t.Errorf("InternalDomains = %q", got)
	}
}

func TestLoadConfig_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := isolate(t)
	dotenv := filepath.Join(dir, ".env")
	writeFile(t, dotenv, "CRM_API_KEY=dotenv-key\nCRM_API_BASE_URL=https://dotenv.crm.test\n")

	t.Setenv(EnvCRMAPIKey, "shell-key")

	cfg, err := LoadConfig(LoadOptions{DotEnvPath: dotenv})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.CRM.APIKey != "shell-key" {
		t.Errorf("APIKey = %q, want shell-key", cfg.CRM.APIKey)
	}
	if cfg.CRM.BaseURL != "https://dotenv.crm.test" {
		t.Errorf("BaseURL = %q, want .env value", cfg.CRM.BaseURL)
	}
	if len(cfg.Sources) != 1 || cfg.Sources[0] != dotenv {
		t.Errorf("Sources = %v", cfg.Sources)
	}
}

func TestLoadConfig_EnvFileOverridesEnvironment(t *testing.T) {
	dir := isolate(t)
	envFile := filepath.Join(dir, "prod.env")
	writeFile(t, envFile, "CRM_API_KEY=file-key\nLEDGER_DRIVER=Redis\nLEDGER_DSN=redis://localhost:6379/0\n")

	t.Setenv(EnvCRMAPIKey, "shell-key")
	t.Setenv(EnvLedgerDriver, "")
	t.Setenv(EnvLedgerDSN, "")

	cfg, err := LoadConfig(LoadOptions{DotEnvPath: filepath.Join(dir, "missing.env"), EnvFile: envFile})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.CRM.APIKey != "file-key" {
		t.Errorf("APIKey = %q, want file-key", cfg.CRM.APIKey)
	}
	if cfg.Ledger.Driver != "redis" {
		t.Errorf("Ledger.Driver = %q, want redis", cfg.Ledger.Driver)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := isolate(t)

	if _, err := LoadConfig(LoadOptions{ConfigPath: filepath.Join(dir, "nope.yaml")}); err == nil {
		t.Error("expected error for a missing explicit config file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	writeFile(t, bad, "crm: [not a map")
	if _, err := LoadConfig(LoadOptions{ConfigPath: bad}); err == nil {
		t.Error("expected error for invalid YAML")
	}

	if _, err := LoadConfig(LoadOptions{
		DotEnvPath: filepath.Join(dir, "missing.env"),
		EnvFile:    filepath.Join(dir, "missing-explicit.env"),
	}); err == nil {
		t.Error("expected error for a missing --env-file")
	}
}

func TestLoadConfig_VerboseAndLogLevel(t *testing.T) {
	dir := isolate(t)
	t.Setenv(EnvLogLevel, "warning")

	cfg, err := LoadConfig(LoadOptions{DotEnvPath: filepath.Join(dir, "missing.env")})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LogLevel != logging.LevelWarn {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}

	cfg, err = LoadConfig(LoadOptions{DotEnvPath: filepath.Join(dir, "missing.env"), Flags: Overrides{Verbose: true}})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LogLevel != logging.LevelDebug {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestFillKeys(t *testing.T) {
	stored := map[string]string{"crm-api-key": "kr-crm", "llm-api-key": "kr-llm"}
	lookup := func(account string) string { return stored[account] }

	cfg := DefaultConfig()
	cfg.CRM.APIKey = "from-env"

	filled := cfg.FillKeys(lookup, "crm-api-key", "llm-api-key")
	if cfg.CRM.APIKey != "from-env" {
		t.Errorf("CRM key was overwritten: %q", cfg.CRM.APIKey)
	}
	if cfg.LLM.APIKey != "kr-llm" {
		t.Errorf("LLM key = %q, want kr-llm", cfg.LLM.APIKey)
	}
	if len(filled) != 1 || filled[0] != "llm-api-key" {
		t.Errorf("filled = %v", filled)
	}

	if got := cfg.FillKeys(nil, "a", "b"); got != nil {
		t.Errorf("nil lookup filled %v", got)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.CRM.BaseURL = "https://crm.test"
		cfg.CRM.APIKey = "key"
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing base url", func(c *Config) { c.CRM.BaseURL = "" }, "base_url"},
		{"missing api key", func(c *Config) { c.CRM.APIKey = " " }, "api key"},
		{"zero timeout", func(c *Config) { c.CRM.Timeout = 0 }, "crm.timeout"},
		{"zero upload timeout", func(c *Config) { c.CRM.UploadTimeout = 0 }, "upload_timeout"},
		{"bad ledger", func(c *Config) { c.Ledger.Driver = "mongo" }, "mongo"},
		{"postgres without dsn", func(c *Config) { c.Ledger.Driver = "postgres" }, "dsn"},
		{"unknown provider", func(c *Config) { c.Enrichment.Providers = []string{"bing"} }, "bing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, pferrors.ErrValidation) {
				t.Errorf("error %v does not wrap ErrValidation", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestRedactedAndYAML(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CRM.APIKey = "secret-crm"
	cfg.LLM.APIKey = "secret-llm"

	shown := cfg.Redacted(func(s string) string {
		if s == "" {
			return ""
		}
		return "****"
	})
	if cfg.CRM.APIKey != "secret-crm" {
		t.Error("Redacted modified the original")
	}

	data, err := shown.YAML()
	if err != nil {
		t.Fatalf("YAML: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "secret") {
		t.Errorf("redacted YAML leaks a key:\n%s", out)
	}
	if !strings.Contains(out, "crm_api_key: '****'") && !strings.Contains(out, `crm_api_key: "****"`) {
		t.Errorf("redacted YAML should show the masked CRM key:\n%s", out)
	}
	if !strings.Contains(out, "upload_timeout: 30s") {
		t.Errorf("durations should render as strings:\n%s", out)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "nested", DefaultConfigFile)

	cfg := DefaultConfig()
	cfg.CRM.BaseURL = "https://crm.test"
	cfg.CRM.APIKey = "never-written"
	cfg.LLM.APIKey = "never-written-either"
	cfg.InternalAddresses = []string{"ceo@acme.test"}

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading saved config: %v", err)
	}
	if strings.Contains(string(data), "never-written") {
		t.Errorf("saved config contains an API key:\n%s", data)
	}
	if cfg.LLM.APIKey != "never-written-either" {
		t.Error("SaveConfig modified the caller's config")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 600", perm)
	}

	loaded, err := LoadConfig(LoadOptions{ConfigPath: path, DotEnvPath: filepath.Join(dir, "missing.env")})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.CRM.BaseURL != "https://crm.test" {
		t.Errorf("BaseURL = %q", loaded.CRM.BaseURL)
	}
	if len(loaded.InternalAddresses) != 1 || loaded.InternalAddresses[0] != "ceo@acme.test" {
		t.Errorf("InternalAddresses = %v", loaded.InternalAddresses)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a.test, b.test;c.test\n\n")
	if strings.Join(got, "|") != "a.test|b.test|c.test" {
		t.Errorf("splitList = %v", got)
	}
}
