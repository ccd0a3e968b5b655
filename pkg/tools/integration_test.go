package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stride-agent/stride/pkg/ops"
	"github.com/stride-agent/stride/pkg/types"
)

// invoke routes a call through the dispatcher the way the loop does,
// with a unique call ID so memoization never short-circuits a step.
func invoke(d *Dispatcher, seq *int, name, args string) types.ToolOutcome {
	*seq++
	return d.Invoke(context.Background(), types.ToolCall{
		ID:        fmt.Sprintf("call-%d", *seq),
		Name:      name,
		Arguments: args,
	})
}

func TestFileToolWorkflow(t *testing.T) {
	dir, _ := filepath.EvalSymlinks(t.TempDir())
	fileOps := &ops.RealFileOps{}

	reg := NewToolRegistry()
	reg.Register(NewReadTool(dir, fileOps))
	reg.Register(NewWriteTool(dir, fileOps))
	reg.Register(NewEditTool(dir, fileOps))
	dispatcher := NewDispatcher(reg, time.Minute, 10000, nil)
	seq := 0

	t.Run("write a new file", func(t *testing.T) {
		out := invoke(dispatcher, &seq, "write",
			`{"path":"notes/test.txt","content":"Hello World\nLine 2\nLine 3"}`)
		if out.Status != types.ToolStatusOK {
			t.Fatalf("write failed: %s", out.Result)
		}
		if !strings.Contains(out.Result, "created") {
			t.Errorf("first write should report a created file: %s", out.Result)
		}
	})

	t.Run("read it back by relative path", func(t *testing.T) {
		out := invoke(dispatcher, &seq, "read", `{"path":"notes/test.txt"}`)
		if out.Status != types.ToolStatusOK {
			t.Fatalf("read failed: %s", out.Result)
		}
		if !strings.Contains(out.Result, "Hello World") {
			t.Errorf("read output missing content: %s", out.Result)
		}
	})

	t.Run("edit in place", func(t *testing.T) {
		out := invoke(dispatcher, &seq, "edit",
			`{"path":"notes/test.txt","old_string":"Hello World","new_string":"Hello Go"}`)
		if out.Status != types.ToolStatusOK {
			t.Fatalf("edit failed: %s", out.Result)
		}
		content, err := os.ReadFile(filepath.Join(dir, "notes/test.txt"))
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(content), "Hello Go") {
			t.Errorf("edit not applied: %s", string(content))
		}
	})

	t.Run("overwrite reports an update", func(t *testing.T) {
		out := invoke(dispatcher, &seq, "write",
			`{"path":"notes/test.txt","content":"rewritten"}`)
		if out.Status != types.ToolStatusOK {
			t.Fatalf("write failed: %s", out.Result)
		}
		if !strings.Contains(out.Result, "updated") {
			t.Errorf("overwrite should report an updated file: %s", out.Result)
		}
	})

	t.Run("escape attempt is rejected", func(t *testing.T) {
		out := invoke(dispatcher, &seq, "write",
			`{"path":"../outside.txt","content":"x"}`)
		if out.Status != types.ToolStatusError {
			t.Errorf("write outside the work dir should fail: %s", out.Result)
		}
	})
}

func TestBashThroughDispatcher(t *testing.T) {
	dir, _ := filepath.EvalSymlinks(t.TempDir())
	reg := NewToolRegistry()
	reg.Register(NewBashTool(dir, &ops.RealExecOps{}))
	dispatcher := NewDispatcher(reg, time.Minute, 10000, nil)
	seq := 0

	t.Run("commands run in the work dir", func(t *testing.T) {
		out := invoke(dispatcher, &seq, "bash", `{"command":"pwd"}`)
		if out.Status != types.ToolStatusOK {
			t.Fatalf("bash failed: %s", out.Result)
		}
		if !strings.Contains(out.Result, dir) {
			t.Errorf("pwd = %s, want %s", out.Result, dir)
		}
	})

	t.Run("pipelines work", func(t *testing.T) {
		out := invoke(dispatcher, &seq, "bash", `{"command":"echo 'test' | cat"}`)
		if out.Status != types.ToolStatusOK {
			t.Fatalf("bash failed: %s", out.Result)
		}
		if !strings.Contains(out.Result, "test") {
			t.Errorf("expected piped output: %s", out.Result)
		}
	})
}
