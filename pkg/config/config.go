package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type RateLimitBucketConfig struct {
	RequestsPerMinute int `yaml:"requestsPerMinute"`
	BurstSize         int `yaml:"burstSize"`
}

type RateLimitConfig struct {
	Submit RateLimitBucketConfig `yaml:"submit"`
}

type AnalyzerConfig struct {
	// Mode selects the analysis backend: "openai" talks to an OpenAI-compatible
	// endpoint, "stub" runs the deterministic built-in analyzer.
	Mode               string `yaml:"mode"`
	BaseURL            string `yaml:"baseUrl"`
	APIKey             string `yaml:"apiKey"`
	Model              string `yaml:"model"`
	MaxRetries         int    `yaml:"maxRetries"`
	BackoffPolicy      string `yaml:"backoffPolicy"`
	BackoffBaseSeconds int    `yaml:"backoffBaseSeconds"`
	BackoffMaxSeconds  int    `yaml:"backoffMaxSeconds"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"serviceName"`
	OTLPEndpoint string  `yaml:"otlpEndpoint"`
	OTLPInsecure bool    `yaml:"otlpInsecure"`
	SampleRatio  float64 `yaml:"sampleRatio"`
}

type Config struct {
	Port                int    `yaml:"port"`
	PersistenceProvider string `yaml:"persistenceProvider"`
	RedisAddr           string `yaml:"redisAddr"`
	RedisPassword       string `yaml:"redisPassword"`
	DataDir             string `yaml:"dataDir"`

	Workers             int   `yaml:"workers"`
	QueueCapacity       int   `yaml:"queueCapacity"`
	StageTimeoutSeconds int   `yaml:"stageTimeoutSeconds"`
	MaxUploadBytes      int64 `yaml:"maxUploadBytes"`

	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
	Env       string `yaml:"env"`

	Analyzer  AnalyzerConfig  `yaml:"analyzer"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// LoadConfigOptional loads configuration from filePath when given, otherwise
// starts from defaults. Environment variables override either way.
func LoadConfigOptional(filePath string) (*Config, error) {
	var c Config
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, err
		}
	}
	applyEnv(&c)
	applyDefaults(&c)
	return &c, nil
}

// LoadConfig loads configuration from a required file.
func LoadConfig(filePath string) (*Config, error) {
	if filePath == "" {
		return nil, fmt.Errorf("config path is empty")
	}
	return LoadConfigOptional(filePath)
}

func applyEnv(c *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("PERSISTENCE_PROVIDER"); v != "" {
		c.PersistenceProvider = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Workers = n
		}
	}
	if v := os.Getenv("QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.QueueCapacity = n
		}
	}
	if v := os.Getenv("STAGE_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.StageTimeoutSeconds = n
		}
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("ANALYZER_MODE"); v != "" {
		c.Analyzer.Mode = v
	}
	if v := os.Getenv("ANALYZER_BASE_URL"); v != "" {
		c.Analyzer.BaseURL = v
	}
	if v := os.Getenv("ANALYZER_API_KEY"); v != "" {
		c.Analyzer.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.Analyzer.APIKey == "" {
		c.Analyzer.APIKey = v
	}
	if v := os.Getenv("ANALYZER_MODEL"); v != "" {
		c.Analyzer.Model = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("ENV"); v != "" {
		c.Env = v
	}
}

func applyDefaults(c *Config) {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.PersistenceProvider == "" {
		c.PersistenceProvider = "memory"
	}
	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	if c.DataDir == "" {
		c.DataDir = "/tmp/diagramq-data"
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 128
	}
	if c.StageTimeoutSeconds <= 0 {
		c.StageTimeoutSeconds = 120
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 10 << 20
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.Analyzer.Mode == "" {
		if c.Analyzer.BaseURL != "" {
			c.Analyzer.Mode = "openai"
		} else {
			c.Analyzer.Mode = "stub"
		}
	}
	if c.Analyzer.Model == "" {
		c.Analyzer.Model = "gpt-4o"
	}
	if c.Analyzer.MaxRetries <= 0 {
		c.Analyzer.MaxRetries = 3
	}
	if c.Analyzer.BackoffPolicy == "" {
		c.Analyzer.BackoffPolicy = "exp_full_jitter"
	}
	if c.Analyzer.BackoffBaseSeconds <= 0 {
		c.Analyzer.BackoffBaseSeconds = 1
	}
	if c.Analyzer.BackoffMaxSeconds <= 0 {
		c.Analyzer.BackoffMaxSeconds = 30
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "diagramq"
	}
	if c.Tracing.SampleRatio <= 0 || c.Tracing.SampleRatio > 1 {
		c.Tracing.SampleRatio = 1
	}
}

func (c *Config) Validate() error {
	var errs []string
	env := strings.ToLower(strings.TrimSpace(c.Env))
	dev := env == "dev"

	switch c.PersistenceProvider {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("unknown persistenceProvider %q", c.PersistenceProvider))
	}
	if c.PersistenceProvider == "redis" && strings.TrimSpace(c.RedisAddr) == "" {
		errs = append(errs, "redisAddr is required with the redis provider")
	}

	switch c.Analyzer.Mode {
	case "stub":
	case "openai":
		if strings.TrimSpace(c.Analyzer.BaseURL) == "" {
			errs = append(errs, "analyzer.baseUrl is required in openai mode")
		}
		if strings.TrimSpace(c.Analyzer.APIKey) == "" && !dev {
			errs = append(errs, "analyzer.apiKey is required in openai mode outside dev")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown analyzer.mode %q", c.Analyzer.Mode))
	}

	if c.PersistenceProvider == "memory" && !dev {
		errs = append(errs, "the memory provider loses tasks on restart; use redis outside dev")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
