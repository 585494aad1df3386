package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/abdul-hamid-achik/scene.cheap/internal/retry"
)

const (
	ProviderGemini = "gemini"
	ProviderFake   = "fake"

	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	Port        int
	MetricsPort int
	Environment string
	LogLevel    string

	Provider            string
	GeminiAPIKey        string
	GeminiModel         string
	ProviderCallTimeout time.Duration

	RetryMaxAttempts  int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
	RetryMultiplier   float64
	RetryExtraErrors  []string

	BreakerThreshold int
	BreakerTimeout   time.Duration

	JobTTL           time.Duration
	CacheBackend     string
	DefaultBatchSize int
	MaxSceneCount    int

	DatabaseURL string
	RedisURL    string
	NATSURL     string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
	MinIORegion    string

	JWTSecret string
	RateLimit int
	RateBurst int

	WorkerConcurrency int
	JobTimeout        time.Duration

	WebhookSecret string

	OTelEnabled  bool
	OTelEndpoint string
	OTelService  string
	OTelSampling float64
}

// Load reads the environment, after applying a .env file in the working directory
// when one exists. Variables already set win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	var err error

	cfg.Port = getEnvInt("PORT", 8080)
	cfg.MetricsPort = getEnvInt("METRICS_PORT", 9091)
	cfg.Environment = getEnvString("ENVIRONMENT", "development")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	cfg.Provider = strings.ToLower(getEnvString("PROVIDER", ProviderGemini))
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	if cfg.GeminiAPIKey == "" && cfg.Provider == ProviderGemini {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	cfg.GeminiModel = getEnvString("GEMINI_MODEL", "gemini-2.5-flash")
	if cfg.ProviderCallTimeout, err = getEnvDuration("PROVIDER_CALL_TIMEOUT", "120s"); err != nil {
		return nil, fmt.Errorf("invalid PROVIDER_CALL_TIMEOUT: %w", err)
	}

	cfg.RetryMaxAttempts = getEnvInt("RETRY_MAX_ATTEMPTS", 3)
	if cfg.RetryInitialDelay, err = getEnvDuration("RETRY_INITIAL_DELAY", "2s"); err != nil {
		return nil, fmt.Errorf("invalid RETRY_INITIAL_DELAY: %w", err)
	}
	if cfg.RetryMaxDelay, err = getEnvDuration("RETRY_MAX_DELAY", "30s"); err != nil {
		return nil, fmt.Errorf("invalid RETRY_MAX_DELAY: %w", err)
	}
	cfg.RetryMultiplier = getEnvFloat("RETRY_MULTIPLIER", 2)
	cfg.RetryExtraErrors = getEnvList("RETRY_EXTRA_ERRORS")

	cfg.BreakerThreshold = getEnvInt("BREAKER_THRESHOLD", 5)
	if cfg.BreakerTimeout, err = getEnvDuration("BREAKER_TIMEOUT", "30s"); err != nil {
		return nil, fmt.Errorf("invalid BREAKER_TIMEOUT: %w", err)
	}

	if cfg.JobTTL, err = getEnvDuration("JOB_TTL", "168h"); err != nil {
		return nil, fmt.Errorf("invalid JOB_TTL: %w", err)
	}
	cfg.CacheBackend = strings.ToLower(getEnvString("CACHE_BACKEND", BackendMemory))
	cfg.DefaultBatchSize = getEnvInt("DEFAULT_BATCH_SIZE", 5)
	cfg.MaxSceneCount = getEnvInt("MAX_SCENE_COUNT", 200)

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")

	cfg.MinIOEndpoint = os.Getenv("MINIO_ENDPOINT")
	cfg.MinIOAccessKey = os.Getenv("MINIO_ACCESS_KEY")
	cfg.MinIOSecretKey = os.Getenv("MINIO_SECRET_KEY")
	cfg.MinIOBucket = getEnvString("MINIO_BUCKET", "scenes")
	cfg.MinIOUseSSL = getEnvBool("MINIO_USE_SSL", false)
	cfg.MinIORegion = getEnvString("MINIO_REGION", "us-east-1")

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.RateLimit = getEnvInt("RATE_LIMIT", 60)
	cfg.RateBurst = getEnvInt("RATE_BURST", 10)

	cfg.WorkerConcurrency = getEnvInt("WORKER_CONCURRENCY", 2)
	if cfg.JobTimeout, err = getEnvDuration("JOB_TIMEOUT", "60m"); err != nil {
		return nil, fmt.Errorf("invalid JOB_TIMEOUT: %w", err)
	}

	cfg.WebhookSecret = os.Getenv("WEBHOOK_SECRET")

	cfg.OTelEnabled = getEnvBool("OTEL_ENABLED", false)
	cfg.OTelEndpoint = getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	cfg.OTelService = getEnvString("OTEL_SERVICE_NAME", "scene.cheap")
	cfg.OTelSampling = getEnvFloat("OTEL_SAMPLING_RATE", 1)

	return cfg, nil
}

// RetryPolicy is the provider retry policy built from the RETRY_* variables.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:     c.RetryMaxAttempts,
		InitialDelay:    c.RetryInitialDelay,
		MaxDelay:        c.RetryMaxDelay,
		Multiplier:      c.RetryMultiplier,
		RetryableErrors: c.RetryExtraErrors,
	}
}

func (c *Config) MinIOConfigured() bool {
	return c.MinIOEndpoint != "" && c.MinIOAccessKey != "" && c.MinIOSecretKey != ""
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key, defaultValue string) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	return time.ParseDuration(value)
}

// getEnvList splits a comma-separated variable, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.MetricsPort < 1 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.MetricsPort)
	}
	switch c.Provider {
	case ProviderGemini, ProviderFake:
	default:
		return fmt.Errorf("invalid PROVIDER: %q", c.Provider)
	}
	switch c.CacheBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis cache backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres cache backend")
		}
	default:
		return fmt.Errorf("invalid CACHE_BACKEND: %q", c.CacheBackend)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("invalid retry max attempts: %d", c.RetryMaxAttempts)
	}
	if c.RetryMultiplier < 1 {
		return fmt.Errorf("invalid retry multiplier: %v", c.RetryMultiplier)
	}
	if c.DefaultBatchSize < 1 || c.MaxSceneCount < 1 {
		return fmt.Errorf("invalid scene limits: batch %d, max %d", c.DefaultBatchSize, c.MaxSceneCount)
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("invalid worker concurrency: %d", c.WorkerConcurrency)
	}
	if c.JobTTL <= 0 {
		return fmt.Errorf("invalid JOB_TTL: %v", c.JobTTL)
	}
	return nil
}
