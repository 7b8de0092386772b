package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/translationtower/internal/batch"
	"horse.fit/translationtower/internal/cache"
	"horse.fit/translationtower/internal/cli"
	"horse.fit/translationtower/internal/config"
	"horse.fit/translationtower/internal/db"
	"horse.fit/translationtower/internal/language"
	"horse.fit/translationtower/internal/logging"
	"horse.fit/translationtower/internal/model"
	"horse.fit/translationtower/internal/provider"
	"horse.fit/translationtower/internal/translation"
)

// runtime is the process-wide translation stack. Close tears it down.
type runtime struct {
	cfg        *config.Config
	logger     zerolog.Logger
	languages  *language.Table
	pool       *db.Pool
	gateway    *provider.Gateway
	queue      *batch.Manager
	translator *translation.Manager
}

// loadConfig loads the .env file, then the environment config and logger.
func loadConfig(envLoader *cli.EnvLoader) (*config.Config, zerolog.Logger, error) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

func loadLanguageTable(cfg *config.Config) (*language.Table, error) {
	if path := strings.TrimSpace(cfg.LanguageTable); path != "" {
		return language.LoadTable(path)
	}
	return language.DefaultTable()
}

func newRuntime(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*runtime, error) {
	table, err := loadLanguageTable(cfg)
	if err != nil {
		return nil, fmt.Errorf("load language table: %w", err)
	}

	rt := &runtime{cfg: cfg, logger: logger, languages: table}

	var store cache.Store
	if cfg.NormalizedCacheDriver() == config.CacheDriverMemory {
		store = cache.NewMemoryStore(cfg.CacheSizeLimit)
	} else {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open translation cache: %w", err)
		}
		rt.pool = pool
		store = pool
	}
	translationCache := cache.New(store, logger)

	retrier := provider.NewRetrier(cfg.RetryDelays, logger)
	httpClient := &http.Client{Timeout: cfg.ProviderTimeout}

	registry := provider.NewRegistry()
	providers := []provider.Provider{
		provider.NewBing(provider.BingOptions{
			APIKey:   cfg.BingAPIKey,
			Region:   cfg.BingRegion,
			Endpoint: cfg.BingEndpoint,
			Client:   httpClient,
			Retrier:  retrier,
		}),
		provider.NewDeepL(provider.DeepLOptions{
			APIKey:   cfg.DeepLAPIKey,
			Endpoint: cfg.DeepLEndpoint,
			Client:   httpClient,
			Retrier:  retrier,
		}),
		provider.NewFake(provider.FakeOptions{
			TransientFailureRate: cfg.FakeTransientFailureRate,
			FailureRate:          cfg.FakeFailureRate,
			Retrier:              retrier,
		}),
	}
	for _, p := range providers {
		if err := registry.Register(p); err != nil {
			_ = rt.closeStore()
			return nil, fmt.Errorf("register provider: %w", err)
		}
	}

	gateway, err := provider.NewGateway(provider.GatewayOptions{
		Registry:        registry,
		Languages:       table,
		BreakerFailures: cfg.BreakerFailures,
		BreakerCooldown: cfg.BreakerCooldown,
		Logger:          logger,
	})
	if err != nil {
		_ = rt.closeStore()
		return nil, fmt.Errorf("build provider gateway: %w", err)
	}
	rt.gateway = gateway

	limits := make(map[string]batch.Limits, len(model.ProviderNames))
	concurrency := make(map[string]int, len(model.ProviderNames))
	charsPerText := make(map[string]int, len(model.ProviderNames))
	for _, name := range model.ProviderNames {
		l := cfg.Limits(name)
		limits[name] = batch.Limits{TextsPerRequest: l.TextsPerRequest, CharsPerRequest: l.CharsPerRequest}
		concurrency[name] = l.ConcurrentRequests
		charsPerText[name] = l.CharsPerText
	}

	queue, err := batch.NewManager(batch.Options{
		Translator:  gateway,
		Cache:       translationCache,
		Limits:      limits,
		Concurrency: concurrency,
		QueueSize:   cfg.QueueSize,
		IdleTimeout: cfg.QueueIdleTimeout,
		Logger:      logger,
	})
	if err != nil {
		_ = rt.closeStore()
		return nil, fmt.Errorf("build batch manager: %w", err)
	}
	rt.queue = queue

	coordinator, err := translation.NewManager(translation.Options{
		Languages:      table,
		Queue:          queue,
		Cache:          translationCache,
		CharsPerText:   charsPerText,
		DetectLanguage: cfg.LangDetectEnabled,
		Logger:         logger,
	})
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("build translation manager: %w", err)
	}
	rt.translator = coordinator

	logger.Info().
		Str("cache_driver", cfg.NormalizedCacheDriver()).
		Strs("providers", registry.ProviderNames()).
		Int("languages", len(table.Codes(""))).
		Msg("translation runtime ready")
	return rt, nil
}

// Close drains the batch queues within DRAIN_TIMEOUT, then closes the cache.
func (rt *runtime) Close() error {
	if rt == nil {
		return nil
	}
	var errs []error
	if rt.queue != nil {
		timeout := rt.cfg.DrainTimeout
		if timeout <= 0 {
			timeout = time.Millisecond
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := rt.queue.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain batch queues: %w", err))
		}
		cancel()
	}
	if err := rt.closeStore(); err != nil {
		errs = append(errs, fmt.Errorf("close translation cache: %w", err))
	}
	return errors.Join(errs...)
}

func (rt *runtime) closeStore() error {
	if rt.pool == nil {
		return nil
	}
	pool := rt.pool
	rt.pool = nil
	return pool.Close()
}
