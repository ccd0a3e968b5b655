package tools

import (
	"context"
	"fmt"
	"os"

	"github.com/stride-agent/stride/pkg/ops"
	"github.com/stride-agent/stride/pkg/types"
	"github.com/stride-agent/stride/pkg/util"
)

// ReadTool returns file contents numbered like cat -n, windowed by
// offset and limit so the model can page through large files.
type ReadTool struct {
	workDir string
	fileOps ops.FileOps
}

// NewReadTool creates a read tool rooted at workDir. An empty workDir
// disables the boundary check and relative-path resolution.
func NewReadTool(workDir string, fileOps ops.FileOps) *ReadTool {
	return &ReadTool{workDir: workDir, fileOps: fileOps}
}

func (t *ReadTool) Name() string {
	return "read"
}

func (t *ReadTool) Description() string {
	return "Read a file and return its contents with line numbers. Paths may be absolute or relative to the working directory. Use offset and limit to page through large files."
}

func (t *ReadTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "File to read, absolute or relative to the working directory",
			},
			"offset": map[string]interface{}{
				"type":        "integer",
				"description": "First line to return, 1-indexed (default: 1)",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Number of lines to return (default: all)",
			},
		},
		"required": []string{"path"},
	}
}

func (t *ReadTool) Execute(ctx context.Context, args map[string]interface{}) *types.ToolResult {
	path, err := util.ExtractString(args, "path")
	if err != nil {
		return types.ErrorResult(err.Error())
	}

	resolved, err := workspacePath(path, t.workDir)
	if err != nil {
		return types.ErrorResult(err.Error())
	}
	shown := displayPath(resolved, t.workDir)

	info, err := t.fileOps.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return types.ErrorResult(fmt.Sprintf("file not found: %s", shown))
		}
		return types.ErrorResult(fmt.Sprintf("cannot stat %s: %v", shown, err))
	}
	if info.IsDir() {
		return types.ErrorResult(fmt.Sprintf("%s is a directory, use the list tool instead", shown))
	}
	if info.Size() > maxReadFileSize {
		return types.ErrorResult(fmt.Sprintf("%s is %d bytes, over the %d byte read limit. Read a window with offset and limit", shown, info.Size(), maxReadFileSize))
	}

	content, err := t.fileOps.ReadFile(resolved)
	if err != nil {
		return types.ErrorResult(fmt.Sprintf("cannot read %s: %v", shown, err))
	}
	if len(content) == 0 {
		return types.NewToolResult("(empty file)")
	}

	offset := util.ExtractInt(args, "offset", 1)
	limit := util.ExtractInt(args, "limit", 0)
	return types.NewToolResult(util.FormatWithLineNumbers(string(content), offset, limit))
}
