package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultRetryDelays allows five attempts in total.
var DefaultRetryDelays = []time.Duration{
	50 * time.Millisecond,
	time.Second,
	3 * time.Second,
	10 * time.Second,
}

const maxResponseBytes = 16 << 20

// Retrier reruns retryable provider calls on a fixed delay schedule.
type Retrier struct {
	delays []time.Duration
	logger zerolog.Logger
}

func NewRetrier(delays []time.Duration, logger zerolog.Logger) *Retrier {
	if delays == nil {
		delays = DefaultRetryDelays
	}
	return &Retrier{
		delays: append([]time.Duration(nil), delays...),
		logger: logger,
	}
}

// Attempts is the maximum number of calls Do makes.
func (r *Retrier) Attempts() int {
	if r == nil {
		return 1
	}
	return len(r.delays) + 1
}

// Do calls attempt until it succeeds, fails with a non-retryable error, or the
// delay schedule runs out.
func (r *Retrier) Do(ctx context.Context, provider string, batchID int64, attempt func(context.Context) error) error {
	var delays []time.Duration
	if r != nil {
		delays = r.delays
	}

	for try := 0; ; try++ {
		err := attempt(ctx)
		if err == nil {
			return nil
		}
		if !Retryable(err) || try >= len(delays) {
			return err
		}

		wait := delays[try]
		if r != nil {
			r.logger.Warn().
				Err(err).
				Str("provider", provider).
				Int64("batch_id", batchID).
				Int("attempt", try+1).
				Dur("wait", wait).
				Msg("provider call failed, retrying")
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &ProviderError{Provider: provider, Err: fmt.Errorf("retry aborted: %w", ctx.Err())}
		case <-timer.C:
		}
	}
}

// httpCaller posts one request per attempt and returns the 2xx body.
type httpCaller struct {
	client  *http.Client
	retrier *Retrier
}

func (c *httpCaller) call(ctx context.Context, provider string, batchID int64, build func(context.Context) (*http.Request, error)) ([]byte, error) {
	var body []byte
	err := c.retrier.Do(ctx, provider, batchID, func(ctx context.Context) error {
		req, err := build(ctx)
		if err != nil {
			return &ProviderError{Provider: provider, Err: fmt.Errorf("build request: %w", err)}
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return &ProviderError{
				Provider:  provider,
				Err:       fmt.Errorf("send request: %w", err),
				retryable: ctx.Err() == nil,
			}
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return &ProviderError{
				Provider:   provider,
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("read response: %w", err),
				retryable:  ctx.Err() == nil,
			}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &ProviderError{
				Provider:   provider,
				StatusCode: resp.StatusCode,
				Err:        errors.New(truncate(strings.TrimSpace(string(raw)), 500)),
				retryable:  retryableStatus(resp.StatusCode),
			}
		}

		body = raw
		return nil
	})
	return body, err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
