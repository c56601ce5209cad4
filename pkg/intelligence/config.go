package intelligence

import "time"

// DefaultModel is used when no model is configured.
const DefaultModel = "qwen/qwen3-4b-2507"

// DefaultMaxChars bounds the cleaned text sent to the model.
const DefaultMaxChars = 12000

// Config configures the gateway.
type Config struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	MaxChars    int           `yaml:"max_chars"`
	Temperature float64       `yaml:"temperature"`

	// LinkTimeout bounds each redirect-resolution HEAD request. Zero disables
	// network link resolution; wrapper URLs are still unwrapped offline.
	LinkTimeout time.Duration `yaml:"link_timeout"`
}

// DefaultConfig returns the default gateway configuration.
func DefaultConfig() Config {
	return Config{
		Model:       DefaultModel,
		Timeout:     60 * time.Second,
		MaxRetries:  1,
		MaxChars:    DefaultMaxChars,
		Temperature: 0.1,
		LinkTimeout: 2 * time.Second,
	}
}

// applyDefaults fills zero values from DefaultConfig. BaseURL and APIKey are
// left alone.
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxChars <= 0 {
		c.MaxChars = d.MaxChars
	}
	if c.Temperature <= 0 {
		c.Temperature = d.Temperature
	}
}
