package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigOptionalEmptyPath(t *testing.T) {
	c, err := LoadConfigOptional("")
	if err != nil {
		t.Fatalf("LoadConfigOptional: %v", err)
	}
	if c.Port != 8080 {
		t.Fatalf("port = %d, want 8080", c.Port)
	}
	if c.Workers != 2 {
		t.Fatalf("workers = %d, want 2", c.Workers)
	}
	if c.QueueCapacity != 128 {
		t.Fatalf("queue capacity = %d, want 128", c.QueueCapacity)
	}
	if c.StageTimeoutSeconds != 120 {
		t.Fatalf("stage timeout = %d, want 120", c.StageTimeoutSeconds)
	}
	if c.PersistenceProvider != "memory" {
		t.Fatalf("provider = %q, want memory", c.PersistenceProvider)
	}
	if c.Analyzer.Mode != "stub" {
		t.Fatalf("analyzer mode = %q, want stub", c.Analyzer.Mode)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
port: 9090
persistenceProvider: redis
redisAddr: redis:6379
workers: 4
queueCapacity: 16
analyzer:
  baseUrl: https://api.openai.com
  apiKey: sk-test
  model: gpt-4o
rateLimit:
  submit:
    requestsPerMinute: 60
    burstSize: 10
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.Port != 9090 || c.Workers != 4 || c.QueueCapacity != 16 {
		t.Fatalf("config = %+v", c)
	}
	if c.PersistenceProvider != "redis" || c.RedisAddr != "redis:6379" {
		t.Fatalf("persistence = %q/%q", c.PersistenceProvider, c.RedisAddr)
	}
	if c.Analyzer.Mode != "openai" {
		t.Fatalf("analyzer mode = %q, want openai (inferred from baseUrl)", c.Analyzer.Mode)
	}
	if c.RateLimit.Submit.RequestsPerMinute != 60 {
		t.Fatalf("rate limit = %+v", c.RateLimit.Submit)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("WORKERS", "8")
	t.Setenv("ANALYZER_MODE", "stub")
	t.Setenv("DATA_DIR", "/srv/diagrams")

	c, err := LoadConfigOptional("")
	if err != nil {
		t.Fatalf("LoadConfigOptional: %v", err)
	}
	if c.Port != 7070 || c.Workers != 8 {
		t.Fatalf("env overrides not applied: %+v", c)
	}
	if c.DataDir != "/srv/diagrams" {
		t.Fatalf("data dir = %q", c.DataDir)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.PersistenceProvider = "dynamo" }},
		{"unknown analyzer mode", func(c *Config) { c.Analyzer.Mode = "llama-local" }},
		{"openai without base url", func(c *Config) {
			c.Analyzer.Mode = "openai"
			c.Analyzer.BaseURL = ""
		}},
		{"memory outside dev", func(c *Config) { c.Env = "prod" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := LoadConfigOptional("")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := LoadConfig(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
