package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stride-agent/stride/pkg/ops"
	"github.com/stride-agent/stride/pkg/types"
	"github.com/stride-agent/stride/pkg/util"
)

// WriteTool creates or overwrites a file, making parent directories as
// needed. Overwrites keep the file's existing permission bits.
type WriteTool struct {
	workDir string
	fileOps ops.FileOps
}

// NewWriteTool creates a write tool rooted at workDir. An empty workDir
// disables the boundary check and relative-path resolution.
func NewWriteTool(workDir string, fileOps ops.FileOps) *WriteTool {
	return &WriteTool{workDir: workDir, fileOps: fileOps}
}

func (t *WriteTool) Name() string {
	return "write"
}

func (t *WriteTool) Description() string {
	return "Write content to a file, creating it and any parent directories if needed. Overwrites the file if it exists. Paths may be absolute or relative to the working directory."
}

func (t *WriteTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "File to write, absolute or relative to the working directory",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Full content of the file",
			},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteTool) Execute(ctx context.Context, args map[string]interface{}) *types.ToolResult {
	path, err := util.ExtractString(args, "path")
	if err != nil {
		return types.ErrorResult(err.Error())
	}
	content, err := util.ExtractString(args, "content")
	if err != nil {
		return types.ErrorResult(err.Error())
	}

	resolved, err := workspacePath(path, t.workDir)
	if err != nil {
		return types.ErrorResult(err.Error())
	}
	shown := displayPath(resolved, t.workDir)

	existed := false
	perm := os.FileMode(0644)
	if info, err := t.fileOps.Stat(resolved); err == nil {
		if info.IsDir() {
			return types.ErrorResult(fmt.Sprintf("%s is a directory", shown))
		}
		existed = true
		perm = info.Mode().Perm()
	}

	if err := t.fileOps.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return types.ErrorResult(fmt.Sprintf("cannot create parent directory for %s: %v", shown, err))
	}
	if err := t.fileOps.WriteFile(resolved, []byte(content), perm); err != nil {
		return types.ErrorResult(fmt.Sprintf("cannot write %s: %v", shown, err))
	}

	verb := "created"
	if existed {
		verb = "updated"
	}
	return types.SilentResult(fmt.Sprintf("File %s: %s (%d bytes)", verb, shown, len(content)))
}
