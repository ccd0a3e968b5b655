package tools

import (
	"fmt"
	"path/filepath"

	"github.com/stride-agent/stride/pkg/util"
)

// workspacePath resolves a model-supplied path for a tool rooted at
// workDir. Relative paths are joined to workDir, so the model can name
// files the way they appear in listings. The resolved path must stay
// inside workDir when one is set.
func workspacePath(path, workDir string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	if !filepath.IsAbs(path) && workDir != "" {
		path = filepath.Join(workDir, path)
	}
	return util.ValidatePath(path, workDir)
}

// displayPath renders a resolved path relative to workDir for result
// messages, falling back to the resolved path itself.
func displayPath(resolved, workDir string) string {
	if workDir == "" {
		return resolved
	}
	return util.RelativizePath(resolved, workDir)
}
