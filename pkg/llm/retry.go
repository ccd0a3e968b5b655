package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/stride-agent/stride/pkg/types"
)

// Retrier wraps a Provider with exponential-backoff retries on
// transient failures. Fatal and context-overflow errors pass through
// unretried so the loop can handle them.
type Retrier struct {
	inner    Provider
	attempts uint
	maxDelay time.Duration
	log      *slog.Logger
}

// NewRetrier wraps the provider. attempts is the total number of tries,
// including the first.
func NewRetrier(inner Provider, attempts uint, maxDelay time.Duration, log *slog.Logger) *Retrier {
	if log == nil {
		log = slog.Default()
	}
	return &Retrier{
		inner:    inner,
		attempts: attempts,
		maxDelay: maxDelay,
		log:      log,
	}
}

// Complete calls the inner provider, retrying transient errors with
// exponential backoff.
func (r *Retrier) Complete(ctx context.Context, req Request) (*types.ChatResponse, error) {
	return retry.DoWithData(
		func() (*types.ChatResponse, error) {
			resp, err := r.inner.Complete(ctx, req)
			if err != nil {
				if IsTransient(err) && !IsContextOverflow(err) {
					return nil, err
				}
				return nil, retry.Unrecoverable(err)
			}
			return resp, nil
		},
		retry.Context(ctx),
		retry.Attempts(r.attempts),
		retry.MaxDelay(r.maxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			r.log.Warn("retrying model call",
				"attempt", n+1,
				"model", r.inner.GetModel(),
				"error", err)
		}),
	)
}

// SupportsBreakpoints delegates to the wrapped provider.
func (r *Retrier) SupportsBreakpoints() bool {
	return r.inner.SupportsBreakpoints()
}

// GetModel returns the wrapped provider's model name.
func (r *Retrier) GetModel() string {
	return r.inner.GetModel()
}

// SetModel changes the wrapped provider's model.
func (r *Retrier) SetModel(model string) {
	r.inner.SetModel(model)
}
