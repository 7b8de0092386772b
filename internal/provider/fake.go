package provider

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"horse.fit/translationtower/internal/model"
)

type FakeOptions struct {
	// TransientFailureRate is the chance that an attempt fails as if rate limited.
	TransientFailureRate float64
	// FailureRate is the chance that a call fails for good.
	FailureRate float64
	// Rand returns values in [0, 1). Defaults to math/rand/v2.
	Rand    func() float64
	Retrier *Retrier
}

// Fake tags each text with its language pair instead of translating it.
type Fake struct {
	transientRate float64
	failureRate   float64
	rand          func() float64
	retrier       *Retrier
}

func NewFake(opts FakeOptions) *Fake {
	rnd := opts.Rand
	if rnd == nil {
		rnd = rand.Float64
	}
	return &Fake{
		transientRate: opts.TransientFailureRate,
		failureRate:   opts.FailureRate,
		rand:          rnd,
		retrier:       opts.Retrier,
	}
}

func (f *Fake) Name() string {
	return model.ProviderFake
}

// FakePrefix is what the fake provider puts in front of every text.
func FakePrefix(source, target string) string {
	return fmt.Sprintf("[Fake %s->%s] ", source, target)
}

func (f *Fake) Translate(ctx context.Context, req Request) ([]string, error) {
	if f.failureRate > 0 && f.rand() < f.failureRate {
		return nil, &ProviderError{Provider: f.Name(), Err: errors.New("simulated failure")}
	}

	err := f.retrier.Do(ctx, f.Name(), req.BatchID, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return &ProviderError{Provider: f.Name(), Err: err}
		}
		if f.transientRate > 0 && f.rand() < f.transientRate {
			return &ProviderError{
				Provider:   f.Name(),
				StatusCode: 429,
				Err:        errors.New("simulated rate limit"),
				retryable:  true,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	prefix := FakePrefix(req.SourceLang, req.TargetLang)
	translations := make([]string, len(req.Texts))
	for i, text := range req.Texts {
		translations[i] = prefix + text
	}
	return translations, nil
}
