package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stride-agent/stride/pkg/ops"
	"github.com/stride-agent/stride/pkg/util"
)

func newGrepFixture(t *testing.T) (*GrepTool, string) {
	t.Helper()
	dir, _ := filepath.EvalSymlinks(t.TempDir())
	return NewGrepTool(dir, &ops.RealFileOps{}, &ops.RealExecOps{}), dir
}

func seedTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestGrepSearch(t *testing.T) {
	tool, dir := newGrepFixture(t)
	seedTree(t, dir, map[string]string{
		"one.go":     "package main\n\nfunc Hello() string {\n\treturn \"hello\"\n}\n",
		"two.go":     "package main\n\nfunc World() string {\n\treturn \"world\"\n}\n",
		"readme.txt": "plain prose\nno code here\n",
	})

	t.Run("matches across files", func(t *testing.T) {
		result := tool.Execute(context.Background(), map[string]interface{}{
			"pattern": `func.*\(\)`,
			"path":    dir,
		})
		if result.IsError {
			t.Fatalf("grep failed: %s", result.ForLLM)
		}
		for _, want := range []string{"Hello", "World"} {
			if !strings.Contains(result.ForLLM, want) {
				t.Errorf("output missing %s: %s", want, result.ForLLM)
			}
		}
	})

	t.Run("relative path resolves against work dir", func(t *testing.T) {
		result := tool.Execute(context.Background(), map[string]interface{}{
			"pattern": "Hello",
			"path":    "one.go",
		})
		if result.IsError {
			t.Fatalf("grep failed: %s", result.ForLLM)
		}
		if !strings.Contains(result.ForLLM, "Hello") {
			t.Errorf("expected a match in one.go: %s", result.ForLLM)
		}
	})

	t.Run("include filter narrows files", func(t *testing.T) {
		result := tool.Execute(context.Background(), map[string]interface{}{
			"pattern": "o",
			"path":    dir,
			"include": "*.go",
		})
		if result.IsError {
			t.Fatalf("grep failed: %s", result.ForLLM)
		}
		if strings.Contains(result.ForLLM, "readme.txt") {
			t.Errorf("readme.txt should be excluded by *.go: %s", result.ForLLM)
		}
	})

	t.Run("no matches", func(t *testing.T) {
		result := tool.Execute(context.Background(), map[string]interface{}{
			"pattern": "zzz_absent",
			"path":    dir,
		})
		if result.IsError {
			t.Fatalf("grep failed: %s", result.ForLLM)
		}
		if !strings.Contains(result.ForLLM, "No matches") {
			t.Errorf("expected a no-matches message: %s", result.ForLLM)
		}
	})

	t.Run("missing pattern rejected", func(t *testing.T) {
		result := tool.Execute(context.Background(), map[string]interface{}{})
		if !result.IsError {
			t.Error("expected error for missing pattern")
		}
	})

	t.Run("path outside work dir rejected", func(t *testing.T) {
		result := tool.Execute(context.Background(), map[string]interface{}{
			"pattern": "root",
			"path":    "/etc",
		})
		if !result.IsError {
			t.Error("expected error for a path outside the working directory")
		}
	})

	t.Run("nonexistent path rejected", func(t *testing.T) {
		result := tool.Execute(context.Background(), map[string]interface{}{
			"pattern": "x",
			"path":    filepath.Join(dir, "no-such-dir"),
		})
		if !result.IsError {
			t.Error("expected error for nonexistent path")
		}
	})
}

func TestGrepSkipsHiddenDirs(t *testing.T) {
	tool, dir := newGrepFixture(t)
	seedTree(t, dir, map[string]string{
		"visible.txt":        "hello\n",
		".hidden/secret.txt": "hello\n",
	})

	result := tool.Execute(context.Background(), map[string]interface{}{
		"pattern": "hello",
		"path":    dir,
	})
	if result.IsError {
		t.Fatalf("grep failed: %s", result.ForLLM)
	}
	if strings.Contains(result.ForLLM, "secret") {
		t.Errorf("hidden directories should be skipped: %s", result.ForLLM)
	}
	if !strings.Contains(result.ForLLM, "visible") {
		t.Errorf("expected a match in visible.txt: %s", result.ForLLM)
	}
}

func TestGrepLongLineTruncated(t *testing.T) {
	tool, dir := newGrepFixture(t)
	long := strings.Repeat("x", 600) + "NEEDLE" + strings.Repeat("y", 100)
	seedTree(t, dir, map[string]string{"long.txt": long + "\n"})

	result := tool.Execute(context.Background(), map[string]interface{}{
		"pattern": "NEEDLE",
		"path":    dir,
	})
	if result.IsError {
		t.Fatalf("grep failed: %s", result.ForLLM)
	}
	for _, line := range strings.Split(result.ForLLM, "\n") {
		if len(line) > grepMaxLine+100 {
			t.Errorf("line not truncated, %d chars", len(line))
		}
	}
}

func TestParseRgStream(t *testing.T) {
	tool, _ := newGrepFixture(t)

	t.Run("matches rendered with relative paths", func(t *testing.T) {
		events := []string{
			`{"type":"begin","data":{"path":{"text":"/tmp/ws/foo.go"}}}`,
			`{"type":"match","data":{"path":{"text":"/tmp/ws/foo.go"},"lines":{"text":"func Hello() string {\n"},"line_number":3}}`,
			`{"type":"match","data":{"path":{"text":"/tmp/ws/bar.go"},"lines":{"text":"func World() string {\n"},"line_number":5}}`,
			`{"type":"end","data":{"path":{"text":"/tmp/ws/bar.go"}}}`,
		}
		result, limitHit := tool.parseRgStream(strings.NewReader(strings.Join(events, "\n")), "/tmp/ws")
		if limitHit {
			t.Error("no limit should be hit")
		}
		if !strings.Contains(result.ForLLM, "2 matches") {
			t.Errorf("expected 2 matches: %s", result.ForLLM)
		}
		if !strings.Contains(result.ForLLM, "foo.go:3:") || !strings.Contains(result.ForLLM, "bar.go:5:") {
			t.Errorf("expected relative path:line prefixes: %s", result.ForLLM)
		}
	})

	t.Run("empty stream reports no matches", func(t *testing.T) {
		result, limitHit := tool.parseRgStream(strings.NewReader(`{"type":"summary","data":{}}`), "/tmp/ws")
		if limitHit {
			t.Error("no limit should be hit")
		}
		if !strings.Contains(result.ForLLM, "No matches") {
			t.Errorf("expected no-matches message: %s", result.ForLLM)
		}
	})

	t.Run("match limit cuts the stream", func(t *testing.T) {
		var events []string
		for i := 0; i < grepMaxMatches+5; i++ {
			events = append(events, fmt.Sprintf(
				`{"type":"match","data":{"path":{"text":"/tmp/ws/f.go"},"lines":{"text":"line %d\n"},"line_number":%d}}`, i, i+1))
		}
		result, limitHit := tool.parseRgStream(strings.NewReader(strings.Join(events, "\n")), "/tmp/ws")
		if !limitHit {
			t.Error("expected the match limit to cut the stream")
		}
		if !strings.Contains(result.ForLLM, "matches truncated") {
			t.Errorf("expected a truncation notice: %s", result.ForLLM)
		}
	})

	t.Run("context lines use a distinct separator", func(t *testing.T) {
		events := []string{
			`{"type":"context","data":{"path":{"text":"/tmp/ws/foo.go"},"lines":{"text":"// before\n"},"line_number":2}}`,
			`{"type":"match","data":{"path":{"text":"/tmp/ws/foo.go"},"lines":{"text":"func Hello() {\n"},"line_number":3}}`,
			`{"type":"context","data":{"path":{"text":"/tmp/ws/foo.go"},"lines":{"text":"// after\n"},"line_number":4}}`,
		}
		result, _ := tool.parseRgStream(strings.NewReader(strings.Join(events, "\n")), "/tmp/ws")
		if !strings.Contains(result.ForLLM, "foo.go:2  ") {
			t.Errorf("context lines should use a double-space separator: %s", result.ForLLM)
		}
		if !strings.Contains(result.ForLLM, "foo.go:3: ") {
			t.Errorf("match lines should use a colon separator: %s", result.ForLLM)
		}
	})
}

func TestRelativizePath(t *testing.T) {
	tests := []struct {
		path, base, want string
	}{
		{"/home/user/project/foo.go", "/home/user/project", "foo.go"},
		{"/home/user/project/sub/bar.go", "/home/user/project", "sub/bar.go"},
	}
	for _, tt := range tests {
		if got := util.RelativizePath(tt.path, tt.base); got != tt.want {
			t.Errorf("RelativizePath(%q, %q) = %q, want %q", tt.path, tt.base, got, tt.want)
		}
	}
}

func TestIsBinaryExtension(t *testing.T) {
	for _, name := range []string{"tool.exe", "lib.so", "image.png", "archive.zip", "mod.pyc"} {
		if !util.IsBinaryExtension(name) {
			t.Errorf("%q should be treated as binary", name)
		}
	}
	for _, name := range []string{"main.go", "readme.md", "config.json", "style.css"} {
		if util.IsBinaryExtension(name) {
			t.Errorf("%q should not be treated as binary", name)
		}
	}
}
