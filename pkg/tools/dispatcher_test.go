package tools

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stride-agent/stride/pkg/types"
)

// countingTool records how many times it executed.
type countingTool struct {
	name  string
	runs  atomic.Int64
	sleep time.Duration
	res   *types.ToolResult
}

func (c *countingTool) Name() string        { return c.name }
func (c *countingTool) Description() string { return "test tool" }
func (c *countingTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"value": map[string]interface{}{"type": "string"},
		},
		"required": []string{"value"},
	}
}

func (c *countingTool) Execute(ctx context.Context, args map[string]interface{}) *types.ToolResult {
	c.runs.Add(1)
	if c.sleep > 0 {
		select {
		case <-time.After(c.sleep):
		case <-ctx.Done():
			return types.TimeoutResult("partial output before timeout")
		}
	}
	if c.res != nil {
		return c.res
	}
	return types.NewToolResult("executed with " + args["value"].(string))
}

func newTestDispatcher(t *testing.T, tool types.Tool, timeout time.Duration, outputMax int) *Dispatcher {
	t.Helper()
	reg := NewToolRegistry()
	reg.Register(tool)
	return NewDispatcher(reg, timeout, outputMax, nil)
}

func TestDispatcherInvoke(t *testing.T) {
	tool := &countingTool{name: "echo"}
	d := newTestDispatcher(t, tool, time.Second, 0)

	out := d.Invoke(context.Background(), types.ToolCall{
		ID: "c1", Name: "echo", Arguments: `{"value":"hi"}`,
	})
	if out.Status != types.ToolStatusOK {
		t.Fatalf("status = %q, want ok: %s", out.Status, out.Result)
	}
	if out.Result != "executed with hi" {
		t.Errorf("result = %q", out.Result)
	}
	if out.ExitStatus != 0 {
		t.Errorf("exit status = %d", out.ExitStatus)
	}
}

func TestDispatcherAtMostOnce(t *testing.T) {
	tool := &countingTool{name: "echo"}
	d := newTestDispatcher(t, tool, time.Second, 0)
	call := types.ToolCall{ID: "c1", Name: "echo", Arguments: `{"value":"hi"}`}

	first := d.Invoke(context.Background(), call)
	second := d.Invoke(context.Background(), call)

	if tool.runs.Load() != 1 {
		t.Errorf("tool ran %d times, want 1", tool.runs.Load())
	}
	if first.Result != second.Result || first.Status != second.Status {
		t.Error("memoized outcome differs from original")
	}
	if _, ok := d.Outcome("c1"); !ok {
		t.Error("outcome not recorded")
	}
}

func TestDispatcherUnknownTool(t *testing.T) {
	d := newTestDispatcher(t, &countingTool{name: "echo"}, time.Second, 0)
	out := d.Invoke(context.Background(), types.ToolCall{ID: "c2", Name: "nope", Arguments: "{}"})

	if out.Status != types.ToolStatusError {
		t.Fatalf("status = %q, want error", out.Status)
	}
	if !strings.Contains(out.Result, "unknown tool") || !strings.Contains(out.Result, "echo") {
		t.Errorf("result should name available tools, got: %s", out.Result)
	}
}

func TestDispatcherMalformedArguments(t *testing.T) {
	tool := &countingTool{name: "echo"}
	d := newTestDispatcher(t, tool, time.Second, 0)
	out := d.Invoke(context.Background(), types.ToolCall{ID: "c3", Name: "echo", Arguments: `{"value":`})

	if out.Status != types.ToolStatusError {
		t.Fatalf("status = %q, want error", out.Status)
	}
	if tool.runs.Load() != 0 {
		t.Error("tool executed despite malformed arguments")
	}
}

func TestDispatcherValidationFailure(t *testing.T) {
	tool := &countingTool{name: "echo"}
	d := newTestDispatcher(t, tool, time.Second, 0)
	out := d.Invoke(context.Background(), types.ToolCall{ID: "c4", Name: "echo", Arguments: `{}`})

	if out.Status != types.ToolStatusError {
		t.Fatalf("status = %q, want error", out.Status)
	}
	if !strings.Contains(out.Result, "value") {
		t.Errorf("expected missing-field message, got: %s", out.Result)
	}
	if tool.runs.Load() != 0 {
		t.Error("tool executed despite validation failure")
	}
}

func TestDispatcherTimeout(t *testing.T) {
	tool := &countingTool{name: "slow", sleep: time.Second}
	d := newTestDispatcher(t, tool, 20*time.Millisecond, 0)

	out := d.Invoke(context.Background(), types.ToolCall{ID: "c5", Name: "slow", Arguments: `{"value":"x"}`})
	if out.Status != types.ToolStatusTimeout {
		t.Fatalf("status = %q, want timeout", out.Status)
	}
	if !strings.Contains(out.Result, "partial output") {
		t.Errorf("partial output not preserved: %s", out.Result)
	}
}

func TestDispatcherTruncatesOutput(t *testing.T) {
	tool := &countingTool{name: "big", res: types.NewToolResult(strings.Repeat("z", 500))}
	d := newTestDispatcher(t, tool, time.Second, 100)

	out := d.Invoke(context.Background(), types.ToolCall{ID: "c6", Name: "big", Arguments: `{"value":"x"}`})
	if !out.Truncated {
		t.Error("Truncated flag not set")
	}
	if !strings.Contains(out.Result, "output truncated") {
		t.Errorf("missing truncation marker: %s", out.Result)
	}
	if !strings.HasSuffix(out.Result, strings.Repeat("z", 100)) {
		t.Error("tail of output not preserved")
	}
}

func TestDispatcherEmptyArguments(t *testing.T) {
	tool := &countingTool{name: "echo"}
	d := newTestDispatcher(t, tool, time.Second, 0)

	out := d.Invoke(context.Background(), types.ToolCall{ID: "c7", Name: "echo", Arguments: ""})
	// "value" is required, so empty args fail validation rather than crash.
	if out.Status != types.ToolStatusError {
		t.Fatalf("status = %q, want error", out.Status)
	}
}
