package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	CacheDriverSQLite   = "sqlite"
	CacheDriverPostgres = "postgres"
	CacheDriverMemory   = "memory"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	CacheDriver    string `envconfig:"CACHE_DRIVER" default:"sqlite"`
	CacheDSN       string `envconfig:"CACHE_DSN" default:"translation-cache.db"`
	CacheSizeLimit int64  `envconfig:"CACHE_SIZE_LIMIT" default:"1073741824"`
	CacheMaxConns  int32  `envconfig:"CACHE_MAX_CONNS" default:"8"`

	LanguageTable     string `envconfig:"LANGUAGE_TABLE" default:""`
	LangDetectEnabled bool   `envconfig:"LANGDETECT_ENABLED" default:"false"`

	QueueSize        int             `envconfig:"QUEUE_SIZE" default:"20"`
	QueueIdleTimeout time.Duration   `envconfig:"QUEUE_IDLE_TIMEOUT" default:"1s"`
	DrainTimeout     time.Duration   `envconfig:"DRAIN_TIMEOUT" default:"30s"`
	RetryDelays      []time.Duration `envconfig:"RETRY_DELAYS" default:"50ms,1s,3s,10s"`
	BreakerFailures  uint32          `envconfig:"BREAKER_FAILURES" default:"5"`
	BreakerCooldown  time.Duration   `envconfig:"BREAKER_COOLDOWN" default:"30s"`
	ProviderTimeout  time.Duration   `envconfig:"PROVIDER_TIMEOUT" default:"60s"`

	BingAPIKey   string `envconfig:"BING_API_KEY" default:""`
	BingRegion   string `envconfig:"BING_REGION" default:"westeurope"`
	BingEndpoint string `envconfig:"BING_ENDPOINT" default:"https://api.cognitive.microsofttranslator.com"`

	DeepLAPIKey   string `envconfig:"DEEPL_API_KEY" default:""`
	DeepLEndpoint string `envconfig:"DEEPL_ENDPOINT" default:"https://api.deepl.com/v2/translate"`

	BingLimitConcurrentRequest int `envconfig:"BING_LIMIT_CONCURRENT_REQUEST" default:"4"`
	BingLimitTextsPerRequest   int `envconfig:"BING_LIMIT_TEXTS_PER_REQUEST" default:"100"`
	BingLimitCharsPerRequest   int `envconfig:"BING_LIMIT_CHARS_PER_REQUEST" default:"10000"`
	BingLimitCharsPerText      int `envconfig:"BING_LIMIT_CHARS_PER_TEXT" default:"10000"`

	DeepLLimitConcurrentRequest int `envconfig:"DEEPL_LIMIT_CONCURRENT_REQUEST" default:"4"`
	DeepLLimitTextsPerRequest   int `envconfig:"DEEPL_LIMIT_TEXTS_PER_REQUEST" default:"50"`
	DeepLLimitCharsPerRequest   int `envconfig:"DEEPL_LIMIT_CHARS_PER_REQUEST" default:"30000"`
	DeepLLimitCharsPerText      int `envconfig:"DEEPL_LIMIT_CHARS_PER_TEXT" default:"30000"`

	FakeLimitConcurrentRequest int     `envconfig:"FAKE_LIMIT_CONCURRENT_REQUEST" default:"4"`
	FakeLimitTextsPerRequest   int     `envconfig:"FAKE_LIMIT_TEXTS_PER_REQUEST" default:"50"`
	FakeLimitCharsPerRequest   int     `envconfig:"FAKE_LIMIT_CHARS_PER_REQUEST" default:"10000"`
	FakeLimitCharsPerText      int     `envconfig:"FAKE_LIMIT_CHARS_PER_TEXT" default:"10000"`
	FakeTransientFailureRate   float64 `envconfig:"FAKE_TRANSIENT_FAILURE_RATE" default:"0"`
	FakeFailureRate            float64 `envconfig:"FAKE_FAILURE_RATE" default:"0"`
}

// ProviderLimits are the request-shaping limits of one provider.
type ProviderLimits struct {
	ConcurrentRequests int
	TextsPerRequest    int
	CharsPerRequest    int
	CharsPerText       int
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.CacheDriver)) {
	case CacheDriverSQLite, CacheDriverPostgres:
		if strings.TrimSpace(c.CacheDSN) == "" {
			return fmt.Errorf("CACHE_DSN is required for CACHE_DRIVER=%s", c.CacheDriver)
		}
	case CacheDriverMemory:
	default:
		return fmt.Errorf("CACHE_DRIVER must be one of sqlite, postgres, memory (got %q)", c.CacheDriver)
	}
	if c.CacheSizeLimit < 1 {
		return fmt.Errorf("CACHE_SIZE_LIMIT must be >= 1")
	}
	if c.CacheMaxConns < 1 {
		return fmt.Errorf("CACHE_MAX_CONNS must be >= 1")
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("QUEUE_SIZE must be >= 1")
	}
	if c.QueueIdleTimeout <= 0 {
		return fmt.Errorf("QUEUE_IDLE_TIMEOUT must be > 0")
	}
	if c.DrainTimeout < 0 {
		return fmt.Errorf("DRAIN_TIMEOUT must be >= 0")
	}
	for i, delay := range c.RetryDelays {
		if delay < 0 {
			return fmt.Errorf("RETRY_DELAYS[%d] must be >= 0", i)
		}
	}
	if c.BreakerFailures < 1 {
		return fmt.Errorf("BREAKER_FAILURES must be >= 1")
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be > 0")
	}
	if c.FakeTransientFailureRate < 0 || c.FakeTransientFailureRate > 1 {
		return fmt.Errorf("FAKE_TRANSIENT_FAILURE_RATE must be within [0, 1]")
	}
	if c.FakeFailureRate < 0 || c.FakeFailureRate > 1 {
		return fmt.Errorf("FAKE_FAILURE_RATE must be within [0, 1]")
	}

	for _, name := range []string{"bing", "deepl", "fake"} {
		if err := validateLimits(strings.ToUpper(name), c.Limits(name)); err != nil {
			return err
		}
	}
	return nil
}

func validateLimits(prefix string, limits ProviderLimits) error {
	if limits.ConcurrentRequests < 1 {
		return fmt.Errorf("%s_LIMIT_CONCURRENT_REQUEST must be >= 1", prefix)
	}
	if limits.TextsPerRequest < 1 {
		return fmt.Errorf("%s_LIMIT_TEXTS_PER_REQUEST must be >= 1", prefix)
	}
	if limits.CharsPerRequest < 1 {
		return fmt.Errorf("%s_LIMIT_CHARS_PER_REQUEST must be >= 1", prefix)
	}
	if limits.CharsPerText < 1 {
		return fmt.Errorf("%s_LIMIT_CHARS_PER_TEXT must be >= 1", prefix)
	}
	if limits.CharsPerText > limits.CharsPerRequest {
		return fmt.Errorf(
			"%s_LIMIT_CHARS_PER_TEXT (%d) cannot exceed %s_LIMIT_CHARS_PER_REQUEST (%d)",
			prefix, limits.CharsPerText, prefix, limits.CharsPerRequest,
		)
	}
	return nil
}

// Limits returns the configured limits for a provider name. Unknown names get
// the zero value.
func (c *Config) Limits(provider string) ProviderLimits {
	if c == nil {
		return ProviderLimits{}
	}
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "bing":
		return ProviderLimits{
			ConcurrentRequests: c.BingLimitConcurrentRequest,
			TextsPerRequest:    c.BingLimitTextsPerRequest,
			CharsPerRequest:    c.BingLimitCharsPerRequest,
			CharsPerText:       c.BingLimitCharsPerText,
		}
	case "deepl":
		return ProviderLimits{
			ConcurrentRequests: c.DeepLLimitConcurrentRequest,
			TextsPerRequest:    c.DeepLLimitTextsPerRequest,
			CharsPerRequest:    c.DeepLLimitCharsPerRequest,
			CharsPerText:       c.DeepLLimitCharsPerText,
		}
	case "fake":
		return ProviderLimits{
			ConcurrentRequests: c.FakeLimitConcurrentRequest,
			TextsPerRequest:    c.FakeLimitTextsPerRequest,
			CharsPerRequest:    c.FakeLimitCharsPerRequest,
			CharsPerText:       c.FakeLimitCharsPerText,
		}
	default:
		return ProviderLimits{}
	}
}

func (c *Config) NormalizedCacheDriver() string {
	if c == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(c.CacheDriver))
}
