package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/stride-agent/stride/pkg/ops"
	"github.com/stride-agent/stride/pkg/types"
	"github.com/stride-agent/stride/pkg/util"
)

// GrepTool searches file contents for a regex. It shells out to ripgrep
// when available and falls back to a WalkDir scan otherwise. Hidden
// directories and files with binary extensions are skipped either way.
type GrepTool struct {
	workDir string
	fileOps ops.FileOps
	execOps ops.ExecOps
}

// NewGrepTool creates a grep tool rooted at workDir. An empty workDir
// disables the boundary check and relative-path resolution.
func NewGrepTool(workDir string, fileOps ops.FileOps, execOps ops.ExecOps) *GrepTool {
	return &GrepTool{workDir: workDir, fileOps: fileOps, execOps: execOps}
}

func (t *GrepTool) Name() string {
	return "grep"
}

func (t *GrepTool) Description() string {
	return "Search file contents for a regex pattern. Returns matching lines as path:line: text, with paths relative to the searched directory."
}

func (t *GrepTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern": map[string]interface{}{
				"type":        "string",
				"description": "Regex pattern to search for",
			},
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory or file to search, absolute or relative to the working directory (default: the working directory)",
			},
			"include": map[string]interface{}{
				"type":        "string",
				"description": "Glob pattern restricting which files are searched (e.g. '*.go')",
			},
			"context_lines": map[string]interface{}{
				"type":        "integer",
				"description": "Lines of context around each match (default: 0)",
			},
		},
		"required": []string{"pattern"},
	}
}

func (t *GrepTool) Execute(ctx context.Context, args map[string]interface{}) *types.ToolResult {
	pattern, err := util.ExtractString(args, "pattern")
	if err != nil {
		return types.ErrorResult(err.Error())
	}
	searchPath := util.ExtractOptionalString(args, "path", ".")
	include := util.ExtractOptionalString(args, "include", "")
	contextLines := util.ExtractInt(args, "context_lines", 0)

	resolved, err := workspacePath(searchPath, t.workDir)
	if err != nil {
		return types.ErrorResult(err.Error())
	}
	shown := displayPath(resolved, t.workDir)

	if _, err := t.fileOps.Stat(resolved); err != nil {
		if os.IsNotExist(err) {
			return types.ErrorResult(fmt.Sprintf("path not found: %s", shown))
		}
		return types.ErrorResult(fmt.Sprintf("cannot access %s: %v", shown, err))
	}

	if rgPath, err := t.execOps.LookPath("rg"); err == nil {
		return t.searchWithRg(ctx, rgPath, pattern, resolved, include, contextLines)
	}
	return t.searchNative(pattern, resolved, include, contextLines)
}

type rgEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type rgLine struct {
	Path struct {
		Text string `json:"text"`
	} `json:"path"`
	Lines struct {
		Text string `json:"text"`
	} `json:"lines"`
	LineNumber int `json:"line_number"`
}

func (t *GrepTool) searchWithRg(ctx context.Context, rgPath, pattern, searchPath, include string, contextLines int) *types.ToolResult {
	args := []string{"--json"}
	if contextLines > 0 {
		args = append(args, "-C", fmt.Sprintf("%d", contextLines))
	}
	if include != "" {
		args = append(args, "--glob", include)
	}
	args = append(args, pattern, searchPath)

	stdout, stderr, exitCode, err := t.execOps.Run(ctx, rgPath, args, t.workDir, nil)
	if err != nil {
		return types.ErrorResult(fmt.Sprintf("grep error: %v", err))
	}
	switch {
	case exitCode == 1:
		return types.NewToolResult("No matches found.")
	case exitCode > 1 && stderr != "":
		return types.ErrorResult(fmt.Sprintf("grep error: %s", stderr))
	case exitCode > 1:
		return types.ErrorResult(fmt.Sprintf("grep error: exit code %d", exitCode))
	}

	result, _ := t.parseRgStream(strings.NewReader(stdout), searchPath)
	return result
}

// parseRgStream renders ripgrep's JSON event stream as path:line
// output. The boolean reports whether an output limit cut the stream
// short.
func (t *GrepTool) parseRgStream(r io.Reader, basePath string) (*types.ToolResult, bool) {
	var result strings.Builder
	matches := 0
	limitHit := false
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		if result.Len() >= grepMaxBytes {
			result.WriteString(fmt.Sprintf("\n[output truncated at %dKB]", grepMaxBytes/1024))
			limitHit = true
			break
		}

		var event rgEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue
		}
		if event.Type != "match" && event.Type != "context" {
			continue
		}
		var data rgLine
		if err := json.Unmarshal(event.Data, &data); err != nil {
			continue
		}

		if event.Type == "match" {
			matches++
			if matches > grepMaxMatches {
				result.WriteString(fmt.Sprintf("\n[matches truncated at %d]", grepMaxMatches))
				limitHit = true
				break
			}
		}

		line := strings.TrimRight(data.Lines.Text, "\n\r")
		if len(line) > grepMaxLine {
			line = line[:grepMaxLine] + "..."
		}
		relPath := util.RelativizePath(data.Path.Text, basePath)
		// Context lines get a double-space separator instead of a colon
		// so matches stay grep-parseable.
		if event.Type == "match" {
			fmt.Fprintf(&result, "%s:%d: %s\n", relPath, data.LineNumber, line)
		} else {
			fmt.Fprintf(&result, "%s:%d  %s\n", relPath, data.LineNumber, line)
		}
	}

	if matches == 0 {
		return types.NewToolResult("No matches found."), limitHit
	}
	return types.NewToolResult(fmt.Sprintf("%d matches:\n%s", matches, result.String())), limitHit
}

func (t *GrepTool) searchNative(pattern, searchPath, include string, contextLines int) *types.ToolResult {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return types.ErrorResult(fmt.Sprintf("invalid regex pattern: %v", err))
	}

	var result strings.Builder
	matches := 0

	walkErr := t.fileOps.WalkDir(searchPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skipDir(d.Name()) && path != searchPath {
				return filepath.SkipDir
			}
			return nil
		}
		if include != "" {
			if matched, _ := filepath.Match(include, d.Name()); !matched {
				return nil
			}
		}
		if util.IsBinaryExtension(d.Name()) {
			return nil
		}
		if result.Len() >= grepMaxBytes {
			return fmt.Errorf("output limit reached")
		}
		if matches >= grepMaxMatches {
			return fmt.Errorf("match limit reached")
		}

		content, err := t.fileOps.ReadFile(path)
		if err != nil {
			return nil
		}
		lines := strings.Split(string(content), "\n")
		matchSet := make(map[int]bool)
		for i, line := range lines {
			if re.MatchString(line) {
				matchSet[i] = true
			}
		}
		if len(matchSet) == 0 {
			return nil
		}
		relPath := util.RelativizePath(path, searchPath)

		for i, line := range lines {
			isMatch := matchSet[i]
			if !isMatch && !inContext(matchSet, i, contextLines) {
				continue
			}
			if isMatch {
				matches++
				if matches > grepMaxMatches {
					result.WriteString(fmt.Sprintf("\n[matches truncated at %d]", grepMaxMatches))
					return fmt.Errorf("match limit reached")
				}
			}
			if len(line) > grepMaxLine {
				line = line[:grepMaxLine] + "..."
			}
			if isMatch {
				fmt.Fprintf(&result, "%s:%d: %s\n", relPath, i+1, line)
			} else {
				fmt.Fprintf(&result, "%s:%d  %s\n", relPath, i+1, line)
			}
			if result.Len() >= grepMaxBytes {
				result.WriteString(fmt.Sprintf("\n[output truncated at %dKB]", grepMaxBytes/1024))
				return fmt.Errorf("output limit reached")
			}
		}
		return nil
	})
	_ = walkErr

	if matches == 0 {
		return types.NewToolResult("No matches found.")
	}
	return types.NewToolResult(fmt.Sprintf("%d matches:\n%s", matches, result.String()))
}

// inContext reports whether line i falls within n lines of any match.
func inContext(matchSet map[int]bool, i, n int) bool {
	for d := 1; d <= n; d++ {
		if matchSet[i-d] || matchSet[i+d] {
			return true
		}
	}
	return false
}
