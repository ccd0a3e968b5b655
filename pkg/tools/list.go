package tools

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/stride-agent/stride/pkg/ops"
	"github.com/stride-agent/stride/pkg/types"
	"github.com/stride-agent/stride/pkg/util"
)

// ListTool lists a directory's entries with type indicators.
type ListTool struct {
	workDir string
	fileOps ops.FileOps
}

// NewListTool creates a list tool rooted at workDir. An empty workDir
// disables the boundary check and relative-path resolution.
func NewListTool(workDir string, fileOps ops.FileOps) *ListTool {
	return &ListTool{workDir: workDir, fileOps: fileOps}
}

func (t *ListTool) Name() string {
	return "list"
}

func (t *ListTool) Description() string {
	return "List a directory's entries, one per line with a file/dir/link indicator. Paths may be absolute or relative to the working directory."
}

func (t *ListTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory to list (default: the working directory)",
			},
			"all": map[string]interface{}{
				"type":        "boolean",
				"description": "Include hidden entries starting with '.' (default: false)",
			},
		},
	}
}

func (t *ListTool) Execute(ctx context.Context, args map[string]interface{}) *types.ToolResult {
	path := util.ExtractOptionalString(args, "path", "")
	if path == "" {
		if t.workDir != "" {
			path = t.workDir
		} else {
			path = "."
		}
	}
	showAll := util.ExtractBool(args, "all", false)

	resolved, err := workspacePath(path, t.workDir)
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

	entries, err := t.fileOps.ReadDir(resolved)
	if err != nil {
		return types.ErrorResult(fmt.Sprintf("cannot read directory %s: %v", shown, err))
	}

	var lines []string
	truncated := false
	for _, entry := range entries {
		name := entry.Name()
		if !showAll && strings.HasPrefix(name, ".") {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %s", typeIndicator(entry), name))
		if len(lines) >= listMaxEntries {
			truncated = true
			break
		}
	}
	sort.Strings(lines)

	if len(lines) == 0 {
		return types.NewToolResult("(empty directory)")
	}
	if truncated {
		lines = append(lines, fmt.Sprintf("... (truncated, %d+ entries)", listMaxEntries))
	}
	return types.NewToolResult(fmt.Sprintf("Directory: %s\n%s", shown, strings.Join(lines, "\n")))
}

func typeIndicator(entry os.DirEntry) string {
	if entry.Type()&os.ModeSymlink != 0 {
		return "[link]"
	}
	if entry.IsDir() {
		return "[dir] "
	}
	return "[file]"
}
