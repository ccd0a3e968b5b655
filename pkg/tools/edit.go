package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/stride-agent/stride/pkg/ops"
	"github.com/stride-agent/stride/pkg/types"
	"github.com/stride-agent/stride/pkg/util"
)

// EditTool modifies a file in place, either by exact string replacement
// or by replacing a 1-indexed line range. Exactly one mode applies per
// call: old_string selects string mode, start_line/end_line line mode.
type EditTool struct {
	workDir string
	fileOps ops.FileOps
}

// NewEditTool creates an edit tool rooted at workDir. An empty workDir
// disables the boundary check and relative-path resolution.
func NewEditTool(workDir string, fileOps ops.FileOps) *EditTool {
	return &EditTool{workDir: workDir, fileOps: fileOps}
}

func (t *EditTool) Name() string {
	return "edit"
}

func (t *EditTool) Description() string {
	return "Edit a file in place. Either replace old_string with new_string (old_string must match the file exactly; set all=true to replace every occurrence), or replace lines start_line through end_line with new_string. Paths may be absolute or relative to the working directory."
}

func (t *EditTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "File to edit, absolute or relative to the working directory",
			},
			"old_string": map[string]interface{}{
				"type":        "string",
				"description": "Exact text to replace. Omit when using start_line/end_line",
			},
			"new_string": map[string]interface{}{
				"type":        "string",
				"description": "Replacement text",
			},
			"all": map[string]interface{}{
				"type":        "boolean",
				"description": "Replace every occurrence of old_string (default: false)",
			},
			"start_line": map[string]interface{}{
				"type":        "integer",
				"description": "First line of the range to replace, 1-indexed",
			},
			"end_line": map[string]interface{}{
				"type":        "integer",
				"description": "Last line of the range to replace, inclusive",
			},
		},
		"required": []string{"path", "new_string"},
	}
}

func (t *EditTool) Execute(ctx context.Context, args map[string]interface{}) *types.ToolResult {
	path, err := util.ExtractString(args, "path")
	if err != nil {
		return types.ErrorResult(err.Error())
	}
	newString, err := util.ExtractString(args, "new_string")
	if err != nil {
		return types.ErrorResult(err.Error())
	}

	resolved, err := workspacePath(path, t.workDir)
	if err != nil {
		return types.ErrorResult(err.Error())
	}
	shown := displayPath(resolved, t.workDir)

	info, err := t.fileOps.Stat(resolved)
	if os.IsNotExist(err) {
		return types.ErrorResult(fmt.Sprintf("file not found: %s", shown))
	}
	if err != nil {
		return types.ErrorResult(fmt.Sprintf("cannot stat %s: %v", shown, err))
	}
	content, err := t.fileOps.ReadFile(resolved)
	if err != nil {
		return types.ErrorResult(fmt.Sprintf("cannot read %s: %v", shown, err))
	}

	var edited string
	var summary string
	if oldString, ok := args["old_string"].(string); ok {
		replaceAll := util.ExtractBool(args, "all", false)
		edited, summary, err = replaceString(string(content), oldString, newString, replaceAll)
	} else if _, ok := args["start_line"]; ok {
		start := util.ExtractInt(args, "start_line", 0)
		end := util.ExtractInt(args, "end_line", start)
		edited, summary, err = replaceLines(string(content), start, end, newString)
	} else {
		return types.ErrorResult("provide either old_string or start_line/end_line")
	}
	if err != nil {
		return types.ErrorResult(err.Error())
	}

	if err := t.fileOps.WriteFile(resolved, []byte(edited), info.Mode()); err != nil {
		return types.ErrorResult(fmt.Sprintf("cannot write %s: %v", shown, err))
	}
	return types.SilentResult(fmt.Sprintf("File edited: %s (%s)", shown, summary))
}

// replaceString swaps oldString for newString. A non-unique oldString
// is rejected unless replaceAll is set, so the model cannot silently
// change the wrong occurrence.
func replaceString(content, oldString, newString string, replaceAll bool) (string, string, error) {
	count := strings.Count(content, oldString)
	switch {
	case count == 0:
		return "", "", fmt.Errorf("old_string not found in file, it must match the file contents exactly")
	case count > 1 && !replaceAll:
		return "", "", fmt.Errorf("old_string occurs %d times, set all=true or include more surrounding context", count)
	case replaceAll:
		return strings.ReplaceAll(content, oldString, newString), fmt.Sprintf("%d replacements", count), nil
	default:
		return strings.Replace(content, oldString, newString, 1), "1 replacement", nil
	}
}

// replaceLines substitutes the inclusive 1-indexed range [start, end]
// with newString. An empty newString deletes the range.
func replaceLines(content string, start, end int, newString string) (string, string, error) {
	if start < 1 {
		return "", "", fmt.Errorf("start_line must be at least 1")
	}
	if end < start {
		return "", "", fmt.Errorf("end_line %d is before start_line %d", end, start)
	}
	lines := strings.Split(content, "\n")
	if end > len(lines) {
		return "", "", fmt.Errorf("end_line %d is past the end of the file (%d lines)", end, len(lines))
	}

	var out []string
	out = append(out, lines[:start-1]...)
	if newString != "" {
		out = append(out, strings.Split(newString, "\n")...)
	}
	out = append(out, lines[end:]...)
	return strings.Join(out, "\n"), fmt.Sprintf("lines %d-%d", start, end), nil
}
