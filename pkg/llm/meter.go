package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/stride-agent/stride/pkg/types"
)

// Meter wraps a Provider with task-wide usage and cost accounting.
// Every model call in a run goes through one Meter instance, so
// summarization and verification calls count against the same budget as
// loop calls. When the accumulated cost crosses the limit the Meter
// returns a FatalError, and keeps doing so for later calls.
type Meter struct {
	inner    Provider
	limitUSD float64

	mu    sync.Mutex
	usage types.TokenUsage
	cost  float64
}

// NewMeter wraps the provider. limitUSD of zero means unlimited.
func NewMeter(inner Provider, limitUSD float64) *Meter {
	return &Meter{inner: inner, limitUSD: limitUSD}
}

// Complete records the call's usage and enforces the cost limit.
func (m *Meter) Complete(ctx context.Context, req Request) (*types.ChatResponse, error) {
	if err := m.overLimit(); err != nil {
		return nil, err
	}
	resp, err := m.inner.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.usage.Add(resp.Usage)
	m.cost += CostUSD(m.inner.GetModel(), resp.Usage)
	m.mu.Unlock()
	if err := m.overLimit(); err != nil {
		return nil, err
	}
	return resp, nil
}

func (m *Meter) overLimit() error {
	if m.limitUSD <= 0 {
		return nil
	}
	m.mu.Lock()
	cost := m.cost
	m.mu.Unlock()
	if cost > m.limitUSD {
		return &FatalError{
			Reason: fmt.Sprintf("cost limit exceeded ($%.4f of $%.2f)", cost, m.limitUSD),
		}
	}
	return nil
}

// Usage returns the accumulated token usage.
func (m *Meter) Usage() types.TokenUsage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage
}

// Cost returns the accumulated estimated cost in USD.
func (m *Meter) Cost() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cost
}

// SupportsBreakpoints delegates to the wrapped provider.
func (m *Meter) SupportsBreakpoints() bool {
	return m.inner.SupportsBreakpoints()
}

// GetModel returns the wrapped provider's model name.
func (m *Meter) GetModel() string {
	return m.inner.GetModel()
}

// SetModel changes the wrapped provider's model.
func (m *Meter) SetModel(model string) {
	m.inner.SetModel(model)
}
