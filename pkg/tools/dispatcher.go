package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stride-agent/stride/pkg/types"
	"github.com/stride-agent/stride/pkg/util"
)

// Dispatcher executes tool calls exactly once per call ID. Outcomes are
// memoized so a replayed call (after a retry or a compaction re-ask)
// returns the recorded result instead of re-running the side effect.
type Dispatcher struct {
	registry  *ToolRegistry
	timeout   time.Duration
	outputMax int
	log       *slog.Logger

	mu       sync.Mutex
	outcomes map[string]types.ToolOutcome
}

// NewDispatcher creates a dispatcher over the registry. timeout bounds
// each invocation; outputMax caps result text fed back to the model.
func NewDispatcher(registry *ToolRegistry, timeout time.Duration, outputMax int, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		registry:  registry,
		timeout:   timeout,
		outputMax: outputMax,
		log:       log,
		outcomes:  make(map[string]types.ToolOutcome),
	}
}

// Invoke runs one tool call and returns its outcome. A call ID that was
// already dispatched returns the memoized outcome without re-executing.
func (d *Dispatcher) Invoke(ctx context.Context, call types.ToolCall) types.ToolOutcome {
	d.mu.Lock()
	if prev, ok := d.outcomes[call.ID]; ok {
		d.mu.Unlock()
		return prev
	}
	d.mu.Unlock()

	outcome := d.run(ctx, call)

	d.mu.Lock()
	d.outcomes[call.ID] = outcome
	d.mu.Unlock()
	return outcome
}

func (d *Dispatcher) run(ctx context.Context, call types.ToolCall) types.ToolOutcome {
	start := time.Now()
	outcome := types.ToolOutcome{Call: call, Status: types.ToolStatusError, ExitStatus: 1}

	tool, ok := d.registry.Get(call.Name)
	if !ok {
		known := d.registry.List()
		sort.Strings(known)
		outcome.Result = fmt.Sprintf("unknown tool %q. Available tools: %s", call.Name, strings.Join(known, ", "))
		outcome.Duration = time.Since(start)
		return outcome
	}

	var args map[string]interface{}
	if strings.TrimSpace(call.Arguments) != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			outcome.Result = fmt.Sprintf("malformed arguments for %s: %v", call.Name, err)
			outcome.Duration = time.Since(start)
			return outcome
		}
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	if err := ValidateArgs(tool.Parameters(), args); err != nil {
		outcome.Result = fmt.Sprintf("argument validation failed for %s: %v", call.Name, err)
		outcome.Duration = time.Since(start)
		return outcome
	}

	callCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	d.log.Debug("dispatching tool", "tool", call.Name, "call_id", call.ID)
	result := tool.Execute(callCtx, args)
	outcome.Duration = time.Since(start)

	text := result.ForLLM
	truncated := false
	if d.outputMax > 0 && len(text) > d.outputMax {
		text = util.TruncateTail(text, d.outputMax)
		truncated = true
	}
	outcome.Result = text
	outcome.Truncated = truncated
	outcome.ExitStatus = result.ExitStatus

	switch {
	case result.TimedOut || (callCtx.Err() == context.DeadlineExceeded && result.IsError):
		outcome.Status = types.ToolStatusTimeout
	case result.IsError:
		outcome.Status = types.ToolStatusError
	default:
		outcome.Status = types.ToolStatusOK
	}
	d.log.Debug("tool finished",
		"tool", call.Name,
		"call_id", call.ID,
		"status", outcome.Status,
		"duration", outcome.Duration)
	return outcome
}

// Outcome returns the memoized outcome for a call ID, if any.
func (d *Dispatcher) Outcome(callID string) (types.ToolOutcome, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.outcomes[callID]
	return o, ok
}
