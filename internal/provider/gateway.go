package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"horse.fit/translationtower/internal/model"
)

// LanguageMapper converts canonical language codes to provider codes.
type LanguageMapper interface {
	ProviderCode(code, provider string) (string, error)
}

type GatewayOptions struct {
	Registry  *Registry
	Languages LanguageMapper
	// BreakerFailures consecutive failed batches open a provider's breaker.
	BreakerFailures uint32
	BreakerCooldown time.Duration
	Logger          zerolog.Logger
}

// Gateway resolves a translator descriptor to a provider, maps language codes,
// and guards each provider with a circuit breaker.
type Gateway struct {
	registry  *Registry
	languages LanguageMapper
	logger    zerolog.Logger
	breakers  map[string]*gobreaker.CircuitBreaker
}

func NewGateway(opts GatewayOptions) (*Gateway, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("provider registry is required")
	}
	if opts.Languages == nil {
		return nil, fmt.Errorf("language mapper is required")
	}
	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	cooldown := opts.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	g := &Gateway{
		registry:  opts.Registry,
		languages: opts.Languages,
		logger:    opts.Logger.With().Str("component", "provider_gateway").Logger(),
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
	}
	for _, name := range opts.Registry.ProviderNames() {
		g.breakers[name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				g.logger.Warn().
					Str("provider", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("circuit breaker state changed")
			},
		})
	}
	return g, nil
}

// Translate sends one batch. Source and target are canonical codes; fake
// descriptors keep them, real providers get their own notation.
func (g *Gateway) Translate(ctx context.Context, tr model.Translator, texts []string, source, target string, batchID int64) ([]string, error) {
	name := tr.Name
	if tr.FakeMode {
		name = model.ProviderFake
	}

	p, err := g.registry.Provider(name)
	if err != nil {
		return nil, &ProviderError{Provider: name, Err: err}
	}

	req := Request{
		Texts:      texts,
		SourceLang: source,
		TargetLang: target,
		HTMLMode:   tr.HTMLMode,
		BatchID:    batchID,
	}
	if name != model.ProviderFake {
		if req.SourceLang, err = g.languages.ProviderCode(source, name); err != nil {
			return nil, &ProviderError{Provider: name, Err: err}
		}
		if req.TargetLang, err = g.languages.ProviderCode(target, name); err != nil {
			return nil, &ProviderError{Provider: name, Err: err}
		}
	}

	call := func() (interface{}, error) {
		return p.Translate(ctx, req)
	}

	var out interface{}
	if breaker, ok := g.breakers[name]; ok {
		out, err = breaker.Execute(call)
	} else {
		out, err = call()
	}
	if err != nil {
		return nil, asProviderError(name, err)
	}

	translations, _ := out.([]string)
	if err := checkLength(name, len(texts), len(translations)); err != nil {
		return nil, err
	}
	return translations, nil
}

// BreakerState reports a provider breaker's state, "" for unknown providers.
func (g *Gateway) BreakerState(name string) string {
	breaker, ok := g.breakers[normalizeProviderName(name)]
	if !ok {
		return ""
	}
	return breaker.State().String()
}

func asProviderError(name string, err error) error {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &ProviderError{Provider: name, StatusCode: 503, Err: fmt.Errorf("circuit open: %w", err)}
	}
	return &ProviderError{Provider: name, Err: err}
}
