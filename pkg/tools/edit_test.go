package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stride-agent/stride/pkg/ops"
)

func newEditFixture(t *testing.T) (*EditTool, string) {
	t.Helper()
	dir, _ := filepath.EvalSymlinks(t.TempDir())
	return NewEditTool(dir, &ops.RealFileOps{}), dir
}

func seedFile(t *testing.T, dir, name, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		t.Fatal(err)
	}
	return path
}

func mustContent(t *testing.T, path, want string) {
	t.Helper()
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != want {
		t.Errorf("file content = %q, want %q", string(got), want)
	}
}

func TestEditStringReplacement(t *testing.T) {
	tool, dir := newEditFixture(t)

	t.Run("unique occurrence", func(t *testing.T) {
		path := seedFile(t, dir, "a.txt", "hello world", 0644)
		result := tool.Execute(context.Background(), map[string]interface{}{
			"path":       path,
			"old_string": "world",
			"new_string": "gopher",
		})
		if result.IsError {
			t.Fatalf("edit failed: %s", result.ForLLM)
		}
		mustContent(t, path, "hello gopher")
	})

	t.Run("relative path resolves against work dir", func(t *testing.T) {
		path := seedFile(t, dir, "rel.txt", "alpha beta", 0644)
		result := tool.Execute(context.Background(), map[string]interface{}{
			"path":       "rel.txt",
			"old_string": "beta",
			"new_string": "gamma",
		})
		if result.IsError {
			t.Fatalf("edit failed: %s", result.ForLLM)
		}
		mustContent(t, path, "alpha gamma")
	})

	t.Run("absent old_string rejected", func(t *testing.T) {
		path := seedFile(t, dir, "b.txt", "hello world", 0644)
		result := tool.Execute(context.Background(), map[string]interface{}{
			"path":       path,
			"old_string": "nowhere",
			"new_string": "x",
		})
		if !result.IsError {
			t.Error("expected error when old_string is absent")
		}
	})

	t.Run("ambiguous old_string rejected", func(t *testing.T) {
		path := seedFile(t, dir, "c.txt", "foo bar foo baz foo", 0644)
		result := tool.Execute(context.Background(), map[string]interface{}{
			"path":       path,
			"old_string": "foo",
			"new_string": "qux",
		})
		if !result.IsError {
			t.Error("expected error for ambiguous old_string without all=true")
		}
		if !strings.Contains(result.ForLLM, "3 times") {
			t.Errorf("error should report the occurrence count: %s", result.ForLLM)
		}
	})

	t.Run("all flag replaces every occurrence", func(t *testing.T) {
		path := seedFile(t, dir, "d.txt", "foo bar foo baz foo", 0644)
		result := tool.Execute(context.Background(), map[string]interface{}{
			"path":       path,
			"old_string": "foo",
			"new_string": "qux",
			"all":        true,
		})
		if result.IsError {
			t.Fatalf("edit failed: %s", result.ForLLM)
		}
		if !strings.Contains(result.ForLLM, "3 replacements") {
			t.Errorf("result should report the replacement count: %s", result.ForLLM)
		}
		mustContent(t, path, "qux bar qux baz qux")
	})

	t.Run("permissions preserved", func(t *testing.T) {
		path := seedFile(t, dir, "perm.txt", "secret data", 0600)
		result := tool.Execute(context.Background(), map[string]interface{}{
			"path":       path,
			"old_string": "secret",
			"new_string": "public",
		})
		if result.IsError {
			t.Fatalf("edit failed: %s", result.ForLLM)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("permissions = %04o, want 0600", info.Mode().Perm())
		}
		mustContent(t, path, "public data")
	})
}

func TestEditLineRange(t *testing.T) {
	tool, dir := newEditFixture(t)

	t.Run("middle lines", func(t *testing.T) {
		path := seedFile(t, dir, "lr1.txt", "line1\nline2\nline3\nline4\nline5", 0644)
		result := tool.Execute(context.Background(), map[string]interface{}{
			"path":       path,
			"start_line": float64(2),
			"end_line":   float64(3),
			"new_string": "replaced2\nreplaced3",
		})
		if result.IsError {
			t.Fatalf("edit failed: %s", result.ForLLM)
		}
		mustContent(t, path, "line1\nreplaced2\nreplaced3\nline4\nline5")
	})

	t.Run("first line", func(t *testing.T) {
		path := seedFile(t, dir, "lr2.txt", "line1\nline2\nline3", 0644)
		result := tool.Execute(context.Background(), map[string]interface{}{
			"path":       path,
			"start_line": float64(1),
			"end_line":   float64(1),
			"new_string": "newline1",
		})
		if result.IsError {
			t.Fatalf("edit failed: %s", result.ForLLM)
		}
		mustContent(t, path, "newline1\nline2\nline3")
	})

	t.Run("last line", func(t *testing.T) {
		path := seedFile(t, dir, "lr3.txt", "line1\nline2\nline3", 0644)
		result := tool.Execute(context.Background(), map[string]interface{}{
			"path":       path,
			"start_line": float64(3),
			"end_line":   float64(3),
			"new_string": "newline3",
		})
		if result.IsError {
			t.Fatalf("edit failed: %s", result.ForLLM)
		}
		mustContent(t, path, "line1\nline2\nnewline3")
	})

	t.Run("empty replacement deletes the range", func(t *testing.T) {
		path := seedFile(t, dir, "lr4.txt", "line1\nline2\nline3\nline4", 0644)
		result := tool.Execute(context.Background(), map[string]interface{}{
			"path":       path,
			"start_line": float64(2),
			"end_line":   float64(3),
			"new_string": "",
		})
		if result.IsError {
			t.Fatalf("edit failed: %s", result.ForLLM)
		}
		mustContent(t, path, "line1\nline4")
	})

	t.Run("start below one rejected", func(t *testing.T) {
		path := seedFile(t, dir, "lr5.txt", "line1\nline2", 0644)
		result := tool.Execute(context.Background(), map[string]interface{}{
			"path":       path,
			"start_line": float64(0),
			"end_line":   float64(1),
			"new_string": "x",
		})
		if !result.IsError {
			t.Error("expected error for start_line 0")
		}
	})

	t.Run("inverted range rejected", func(t *testing.T) {
		path := seedFile(t, dir, "lr6.txt", "line1\nline2", 0644)
		result := tool.Execute(context.Background(), map[string]interface{}{
			"path":       path,
			"start_line": float64(2),
			"end_line":   float64(1),
			"new_string": "x",
		})
		if !result.IsError {
			t.Error("expected error when end_line precedes start_line")
		}
	})

	t.Run("range past end of file rejected", func(t *testing.T) {
		path := seedFile(t, dir, "lr7.txt", "line1\nline2", 0644)
		result := tool.Execute(context.Background(), map[string]interface{}{
			"path":       path,
			"start_line": float64(1),
			"end_line":   float64(5),
			"new_string": "x",
		})
		if !result.IsError {
			t.Error("expected error for end_line past the file")
		}
	})
}

func TestEditArgumentErrors(t *testing.T) {
	tool, dir := newEditFixture(t)

	t.Run("nonexistent file", func(t *testing.T) {
		result := tool.Execute(context.Background(), map[string]interface{}{
			"path":       filepath.Join(dir, "missing.txt"),
			"old_string": "a",
			"new_string": "b",
		})
		if !result.IsError {
			t.Error("expected error for missing file")
		}
	})

	t.Run("neither mode selected", func(t *testing.T) {
		path := seedFile(t, dir, "nomode.txt", "content", 0644)
		result := tool.Execute(context.Background(), map[string]interface{}{
			"path":       path,
			"new_string": "x",
		})
		if !result.IsError {
			t.Error("expected error when neither old_string nor a line range is given")
		}
	})

	t.Run("missing new_string", func(t *testing.T) {
		path := seedFile(t, dir, "nonew.txt", "content", 0644)
		result := tool.Execute(context.Background(), map[string]interface{}{
			"path":       path,
			"old_string": "content",
		})
		if !result.IsError {
			t.Error("expected error for missing new_string")
		}
	})

	t.Run("path outside work dir", func(t *testing.T) {
		result := tool.Execute(context.Background(), map[string]interface{}{
			"path":       "/etc/hosts",
			"old_string": "localhost",
			"new_string": "elsewhere",
		})
		if !result.IsError {
			t.Error("expected error for path outside the working directory")
		}
		if !strings.Contains(result.ForLLM, "outside") {
			t.Errorf("expected boundary error, got: %s", result.ForLLM)
		}
	})
}
