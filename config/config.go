// Package config provides configuration management for the emlsync command-line tool.
// It supports loading configuration from YAML files, .env files, environment
// variables, and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/emlsync/pkg/crm"
	"github.com/otherjamesbrown/emlsync/pkg/enrichment"
	pferrors "github.com/otherjamesbrown/emlsync/pkg/errors"
	"github.com/otherjamesbrown/emlsync/pkg/intelligence"
	"github.com/otherjamesbrown/emlsync/pkg/ledger"
	"github.com/otherjamesbrown/emlsync/pkg/logging"
	"github.com/otherjamesbrown/emlsync/pkg/pipeline"
)

// Default file locations.
const (
	DefaultConfigDir  = ".emlsync"
	DefaultConfigFile = "config.yaml"
	DefaultDotEnvFile = ".env"
)

// Environment variables read by LoadConfig.
const (
	EnvConfigDir           = "EMLSYNC_CONFIG_DIR"
	EnvCRMBaseURL          = "CRM_API_BASE_URL"
	EnvCRMAPIKey           = "CRM_API_KEY"
	EnvLLMBaseURL          = "LLM_BASE_URL"
	EnvLLMAPIKey           = "LLM_API_KEY"
	EnvLLMModel            = "LLM_MODEL"
	EnvPersistenceDBPath   = "PERSISTENCE_DB_PATH"
	EnvLedgerDriver        = "LEDGER_DRIVER"
	EnvLedgerDSN           = "LEDGER_DSN"
	EnvInternalDomains     = "INTERNAL_DOMAINS"
	EnvInternalAddresses   = "INTERNAL_ADDRESSES"
	EnvEnrichmentProviders = "ENRICHMENT_PROVIDERS"
	EnvLogLevel            = "EMLSYNC_LOG_LEVEL"
)

// Config is the full emlsync configuration.
type Config struct {
	CRM        crm.Config          `yaml:"crm"`
	LLM        intelligence.Config `yaml:"llm"`
	Enrichment enrichment.Config   `yaml:"enrichment"`
	Ledger     ledger.Config       `yaml:"ledger"`

	// InternalDomains and InternalAddresses identify the operator's own
	// organization.
	InternalDomains   []string `yaml:"internal_domains,omitempty"`
	InternalAddresses []string `yaml:"internal_addresses,omitempty"`

	LogLevel logging.Level `yaml:"log_level"`
	LogJSON  bool          `yaml:"log_json,omitempty"`

	// Sources records where values came from, in load order. Not persisted.
	Sources []string `yaml:"-"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		CRM:        crm.DefaultConfig(),
		LLM:        intelligence.DefaultConfig(),
		Enrichment: enrichment.DefaultConfig(),
		Ledger:     ledger.DefaultConfig(),
		LogLevel:   logging.LevelInfo,
	}
}

// Pipeline returns the pipeline settings.
func (c *Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		InternalDomains:   c.InternalDomains,
		InternalAddresses: c.InternalAddresses,
	}
}

// Overrides are command-line flag values. Empty fields leave the loaded
// value alone.
type Overrides struct {
	APIKey   string
	BaseURL  string
	DBPath   string
	LLMURL   string
	LLMModel string
	Verbose  bool
	LogJSON  bool
}

// LoadOptions controls LoadConfig.
type LoadOptions struct {
	// ConfigPath is an explicit config file. It must exist when set.
	ConfigPath string
	// DotEnvPath is the implicit .env file; missing is fine. Defaults to
	// ".env" in the working directory.
	DotEnvPath string
	// EnvFile is an explicit .env file whose values override the environment.
	EnvFile string
	Flags   Overrides
}

// ConfigDir returns the configuration directory path.
// Uses $EMLSYNC_CONFIG_DIR if set, otherwise ~/.emlsync
func ConfigDir() (string, error) {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig loads the configuration. Later sources override earlier ones:
// 1. Default values
// 2. Config file (--config, or ~/.emlsync/config.yaml)
// 3. .env in the working directory (never overrides the environment)
// 4. --env-file (overrides the environment)
// 5. Environment variables
// 6. Command-line flags
//
// LoadConfig does not validate; call Validate before processing.
func LoadConfig(opts LoadOptions) (*Config, error) {
	cfg := DefaultConfig()

	path := opts.ConfigPath
	explicit := path != ""
	if !explicit {
		var err error
		if path, err = ConfigPath(); err != nil {
			return nil, fmt.Errorf("getting config path: %w", err)
		}
	}
	if _, err := os.Stat(path); err == nil {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		cfg.Sources = append(cfg.Sources, path)
	} else if explicit {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	dotenv := opts.DotEnvPath
	if dotenv == "" {
		dotenv = DefaultDotEnvFile
	}
	if err := godotenv.Load(dotenv); err == nil {
		cfg.Sources = append(cfg.Sources, dotenv)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", dotenv, err)
	}

	if opts.EnvFile != "" {
		if err := godotenv.Overload(opts.EnvFile); err != nil {
			return nil, fmt.Errorf("reading env file %s: %w", opts.EnvFile, err)
		}
		cfg.Sources = append(cfg.Sources, opts.EnvFile)
	}

	loadFromEnv(cfg)
	applyOverrides(cfg, opts.Flags)

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file. Sections missing from
// the file keep their defaults.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// loadFromEnv overlays environment variables onto the configuration.
func loadFromEnv(cfg *Config) {
	if v := os.Getenv(EnvCRMBaseURL); v != "" {
		cfg.CRM.BaseURL = v
	}
	if v := os.Getenv(EnvCRMAPIKey); v != "" {
		cfg.CRM.APIKey = v
	}

	if v := os.Getenv(EnvLLMBaseURL); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv(EnvLLMAPIKey); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv(EnvLLMModel); v != "" {
		cfg.LLM.Model = v
	}

	if v := os.Getenv(EnvPersistenceDBPath); v != "" {
		cfg.Ledger.Path = v
	}
	if v := os.Getenv(EnvLedgerDriver); v != "" {
		cfg.Ledger.Driver = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv(EnvLedgerDSN); v != "" {
		cfg.Ledger.DSN = v
	}

	if v := os.Getenv(EnvInternalDomains); v != "" {
		cfg.InternalDomains = splitList(v)
	}
	if v := os.Getenv(EnvInternalAddresses); v != "" {
		cfg.InternalAddresses = splitList(v)
	}
	if v := os.Getenv(EnvEnrichmentProviders); v != "" {
		cfg.Enrichment.Providers = splitList(v)
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = logging.ParseLevel(v)
	}
}

func applyOverrides(cfg *Config, o Overrides) {
	if o.APIKey != "" {
		cfg.CRM.APIKey = o.APIKey
	}
	if o.BaseURL != "" {
		cfg.CRM.BaseURL = o.BaseURL
	}
	if o.DBPath != "" {
		cfg.Ledger.Path = o.DBPath
	}
	if o.LLMURL != "" {
		cfg.LLM.BaseURL = o.LLMURL
	}
	if o.LLMModel != "" {
		cfg.LLM.Model = o.LLMModel
	}
	if o.Verbose {
		cfg.LogLevel = logging.LevelDebug
	}
	if o.LogJSON {
		cfg.LogJSON = true
	}
}

// splitList splits a comma or whitespace separated list, dropping empty items.
func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == ';'
	})
}

// KeyLookup returns a stored secret for an account, or "".
type KeyLookup func(account string) string

// FillKeys fills an empty CRM or LLM key from lookup. It reports which keys
// were filled.
func (c *Config) FillKeys(lookup KeyLookup, crmAccount, llmAccount string) []string {
	if lookup == nil {
		return nil
	}
	var filled []string
	if c.CRM.APIKey == "" {
		if key := lookup(crmAccount); key != "" {
			c.CRM.APIKey = key
			filled = append(filled, crmAccount)
		}
	}
	if c.LLM.APIKey == "" {
		if key := lookup(llmAccount); key != "" {
			c.LLM.APIKey = key
			filled = append(filled, llmAccount)
		}
	}
	return filled
}

// Validate checks that the configuration can process messages.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.CRM.BaseURL) == "" {
		problems = append(problems, "crm.base_url is required (CRM_API_BASE_URL or --base-url)")
	}
	if strings.TrimSpace(c.CRM.APIKey) == "" {
		problems = append(problems, "crm api key is required (CRM_API_KEY, --api-key or emlsync auth set-key)")
	}
	if c.CRM.Timeout <= 0 {
		problems = append(problems, "crm.timeout must be positive")
	}
	if c.CRM.UploadTimeout <= 0 {
		problems = append(problems, "crm.upload_timeout must be positive")
	}
	if err := c.Ledger.Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	for _, p := range c.Enrichment.Providers {
		switch p {
		case enrichment.ProviderDuckDuckGo, enrichment.ProviderWebsite:
		default:
			problems = append(problems, fmt.Sprintf("unknown enrichment provider %q", p))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", pferrors.ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

// Redacted returns a copy safe for display: API keys are masked.
func (c *Config) Redacted(mask func(string) string) *Config {
	cp := *c
	cp.CRM.APIKey = mask(c.CRM.APIKey)
	cp.LLM.APIKey = mask(c.LLM.APIKey)
	return &cp
}

// YAML renders the configuration as YAML, including the CRM key which the
// file format otherwise omits.
func (c *Config) YAML() ([]byte, error) {
	type shown struct {
		Config    `yaml:",inline"`
		CRMAPIKey string `yaml:"crm_api_key,omitempty"`
	}
	data, err := yaml.Marshal(shown{Config: *c, CRMAPIKey: c.CRM.APIKey})
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return data, nil
}

// SaveConfig writes cfg to path, or to ConfigPath when path is empty. API
// keys are never written.
func SaveConfig(cfg *Config, path string) error {
	if path == "" {
		var err error
		if path, err = ConfigPath(); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	cp := *cfg
	cp.LLM.APIKey = ""
	data, err := yaml.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
