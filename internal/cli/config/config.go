package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	APIToken  string `yaml:"api_token,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty"`
	BatchSize int    `yaml:"batch_size,omitempty"`
	// Timeout bounds JSON requests; streams are bounded by the job itself.
	Timeout string `yaml:"timeout,omitempty"`
}

const (
	DefaultBaseURL   = "http://localhost:8080"
	DefaultBatchSize = 5
	DefaultTimeout   = time.Minute

	EnvAPIToken = "SC_API_TOKEN"
	EnvBaseURL  = "SC_BASE_URL"
)

func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "sc"), nil
}

func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func Load() (*Config, error) {
	cfg := &Config{
		BaseURL:   DefaultBaseURL,
		BatchSize: DefaultBatchSize,
	}

	path, err := Path()
	if err == nil {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		case !os.IsNotExist(err):
			return nil, err
		}
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	// Environment variables take precedence over config file
	if token := os.Getenv(EnvAPIToken); token != "" {
		cfg.APIToken = token
	}
	if envURL := os.Getenv(EnvBaseURL); envURL != "" {
		cfg.BaseURL = envURL
	}

	return cfg, nil
}

func (c *Config) Save() error {
	dir, err := Dir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	path, err := Path()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func (c *Config) HasToken() bool {
	return c.APIToken != ""
}

// RequestTimeout returns the configured timeout, or the default when unset or invalid.
func (c *Config) RequestTimeout() time.Duration {
	if c.Timeout == "" {
		return DefaultTimeout
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return DefaultTimeout
	}
	return d
}
