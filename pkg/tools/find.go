package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/stride-agent/stride/pkg/ops"
	"github.com/stride-agent/stride/pkg/types"
	"github.com/stride-agent/stride/pkg/util"
)

// FindTool locates files and directories by glob pattern. It shells out
// to fd when available and falls back to a WalkDir scan otherwise.
type FindTool struct {
	workDir string
	fileOps ops.FileOps
	execOps ops.ExecOps
}

// NewFindTool creates a find tool rooted at workDir. An empty workDir
// disables the boundary check and relative-path resolution.
func NewFindTool(workDir string, fileOps ops.FileOps, execOps ops.ExecOps) *FindTool {
	return &FindTool{workDir: workDir, fileOps: fileOps, execOps: execOps}
}

func (t *FindTool) Name() string {
	return "find"
}

func (t *FindTool) Description() string {
	return "Find files and directories whose names match a glob pattern. Returns paths relative to the searched directory, one per line."
}

func (t *FindTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern": map[string]interface{}{
				"type":        "string",
				"description": "Glob pattern to match against entry names (e.g. '*.go', 'test_*')",
			},
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory to search, absolute or relative to the working directory (default: the working directory)",
			},
			"type": map[string]interface{}{
				"type":        "string",
				"description": "Restrict matches to 'file', 'directory', or 'both' (default: 'both')",
			},
		},
		"required": []string{"pattern"},
	}
}

func (t *FindTool) Execute(ctx context.Context, args map[string]interface{}) *types.ToolResult {
	pattern, err := util.ExtractString(args, "pattern")
	if err != nil {
		return types.ErrorResult(err.Error())
	}
	searchPath := util.ExtractOptionalString(args, "path", ".")
	typeFilter := util.ExtractOptionalString(args, "type", "both")

	switch typeFilter {
	case "file", "directory", "both":
	default:
		return types.ErrorResult(fmt.Sprintf("invalid type filter %q, use 'file', 'directory', or 'both'", typeFilter))
	}

	resolved, err := workspacePath(searchPath, t.workDir)
	if err != nil {
		return types.ErrorResult(err.Error())
	}
	shown := displayPath(resolved, t.workDir)

	info, err := t.fileOps.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return types.ErrorResult(fmt.Sprintf("path not found: %s", shown))
		}
		return types.ErrorResult(fmt.Sprintf("cannot access %s: %v", shown, err))
	}
	if !info.IsDir() {
		return types.ErrorResult(fmt.Sprintf("%s is not a directory", shown))
	}

	if fdPath, err := t.fdBinary(); err == nil {
		return t.searchWithFd(ctx, fdPath, pattern, resolved, typeFilter)
	}
	return t.searchNative(pattern, resolved, typeFilter)
}

// fdBinary locates fd, which Debian installs as fdfind.
func (t *FindTool) fdBinary() (string, error) {
	if p, err := t.execOps.LookPath("fd"); err == nil {
		return p, nil
	}
	return t.execOps.LookPath("fdfind")
}

func (t *FindTool) searchWithFd(ctx context.Context, fdPath, pattern, searchPath, typeFilter string) *types.ToolResult {
	args := []string{"--glob", "--max-results", fmt.Sprintf("%d", findMaxResults)}
	switch typeFilter {
	case "file":
		args = append(args, "--type", "f")
	case "directory":
		args = append(args, "--type", "d")
	}
	args = append(args, pattern, searchPath)

	stdout, stderr, exitCode, err := t.execOps.Run(ctx, fdPath, args, t.workDir, nil)
	if err != nil {
		return types.ErrorResult(fmt.Sprintf("find error: %v", err))
	}
	switch {
	case exitCode == 1:
		return types.NewToolResult("No files found.")
	case exitCode > 1 && stderr != "":
		return types.ErrorResult(fmt.Sprintf("find error: %s", stderr))
	case exitCode > 1:
		return types.ErrorResult(fmt.Sprintf("find error: exit code %d", exitCode))
	case stdout == "":
		return types.NewToolResult("No files found.")
	}
	return t.formatResults(stdout, searchPath)
}

func (t *FindTool) searchNative(pattern, searchPath, typeFilter string) *types.ToolResult {
	var result strings.Builder
	count := 0

	err := t.fileOps.WalkDir(searchPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && skipDir(d.Name()) && path != searchPath {
			return filepath.SkipDir
		}
		if typeFilter == "file" && d.IsDir() || typeFilter == "directory" && !d.IsDir() {
			return nil
		}

		matched, err := filepath.Match(pattern, d.Name())
		if err != nil {
			return fmt.Errorf("invalid glob pattern: %v", err)
		}
		if !matched {
			return nil
		}

		count++
		if count > findMaxResults {
			result.WriteString(fmt.Sprintf("\n[results truncated at %d]", findMaxResults))
			return fmt.Errorf("result limit reached")
		}
		line := util.RelativizePath(path, searchPath) + "\n"
		if result.Len()+len(line) > findMaxBytes {
			result.WriteString(fmt.Sprintf("\n[output truncated at %dKB]", findMaxBytes/1024))
			return fmt.Errorf("output limit reached")
		}
		result.WriteString(line)
		return nil
	})

	if count == 0 {
		if err != nil {
			return types.ErrorResult(fmt.Sprintf("find error: %v", err))
		}
		return types.NewToolResult("No files found.")
	}
	return types.NewToolResult(fmt.Sprintf("%d results:\n%s", count, result.String()))
}

// skipDir filters directories nobody wants search hits from.
func skipDir(name string) bool {
	if name != "." && strings.HasPrefix(name, ".") {
		return true
	}
	return name == "node_modules" || name == "vendor"
}

func (t *FindTool) formatResults(output, basePath string) *types.ToolResult {
	var result strings.Builder
	count := 0
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if line == "" {
			continue
		}
		count++
		entry := util.RelativizePath(strings.TrimSpace(line), basePath) + "\n"
		if result.Len()+len(entry) > findMaxBytes {
			result.WriteString(fmt.Sprintf("\n[output truncated at %dKB]", findMaxBytes/1024))
			break
		}
		result.WriteString(entry)
	}
	if count == 0 {
		return types.NewToolResult("No files found.")
	}
	return types.NewToolResult(fmt.Sprintf("%d results:\n%s", count, result.String()))
}
