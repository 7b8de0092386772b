package provider

import (
	"context"
	"errors"
	"fmt"
)

// Provider translates an ordered batch of texts in one call. The result has
// the same length and order as Request.Texts.
type Provider interface {
	Name() string
	Translate(ctx context.Context, req Request) ([]string, error)
}

// Request is one provider call. Language codes are already in the provider's
// own notation.
type Request struct {
	Texts      []string
	SourceLang string
	TargetLang string
	HTMLMode   bool
	BatchID    int64
}

// ProviderError is any failed provider call. StatusCode is 0 when no HTTP
// response was received.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error

	retryable bool
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Retryable reports whether err is a rate limit, server error, or transport failure.
func Retryable(err error) bool {
	var perr *ProviderError
	if !errors.As(err, &perr) {
		return false
	}
	return perr.retryable
}

func retryableStatus(status int) bool {
	return status == 429 || status >= 500
}

func checkLength(provider string, want, got int) error {
	if want != got {
		return &ProviderError{
			Provider: provider,
			Err:      fmt.Errorf("expected %d translations, got %d", want, got),
		}
	}
	return nil
}
