package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefault(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvAPIToken, "")
	t.Setenv(EnvBaseURL, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %s, want %s", cfg.BaseURL, DefaultBaseURL)
	}
	if cfg.BatchSize != DefaultBatchSize {
		t.Errorf("BatchSize = %d, want %d", cfg.BatchSize, DefaultBatchSize)
	}
	if cfg.HasToken() {
		t.Error("HasToken() = true, want false")
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv(EnvAPIToken, "")
	t.Setenv(EnvBaseURL, "")

	cfg := &Config{
		APIToken:  "tok_test123",
		BaseURL:   "https://scenes.example.com",
		BatchSize: 8,
	}

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	configPath := filepath.Join(tmpDir, ".config", "sc", "config.yaml")
	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("config file was not created: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.APIToken != cfg.APIToken {
		t.Errorf("APIToken = %s, want %s", loaded.APIToken, cfg.APIToken)
	}
	if loaded.BaseURL != cfg.BaseURL {
		t.Errorf("BaseURL = %s, want %s", loaded.BaseURL, cfg.BaseURL)
	}
	if loaded.BatchSize != 8 {
		t.Errorf("BatchSize = %d, want 8", loaded.BatchSize)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvAPIToken, "env-token")
	t.Setenv(EnvBaseURL, "https://env.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIToken != "env-token" {
		t.Errorf("APIToken = %s, want env-token", cfg.APIToken)
	}
	if cfg.BaseURL != "https://env.example.com" {
		t.Errorf("BaseURL = %s, want https://env.example.com", cfg.BaseURL)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	dir := filepath.Join(tmpDir, ".config", "sc")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("base_url: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(); err == nil {
		t.Error("Load() error = nil, want parse error")
	}
}

func TestRequestTimeout(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", DefaultTimeout},
		{"30s", 30 * time.Second},
		{"nonsense", DefaultTimeout},
		{"-5s", DefaultTimeout},
	}
	for _, tt := range tests {
		c := &Config{Timeout: tt.value}
		if got := c.RequestTimeout(); got != tt.want {
			t.Errorf("RequestTimeout(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
