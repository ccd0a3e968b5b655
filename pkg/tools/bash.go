package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/stride-agent/stride/pkg/ops"
	"github.com/stride-agent/stride/pkg/types"
	"github.com/stride-agent/stride/pkg/util"
)

// BashTool executes shell commands in the task's working directory.
type BashTool struct {
	workDir string
	execOps ops.ExecOps
}

// NewBashTool creates a new BashTool. Commands run in workDir when non-empty.
func NewBashTool(workDir string, execOps ops.ExecOps) *BashTool {
	return &BashTool{workDir: workDir, execOps: execOps}
}

func (t *BashTool) Name() string {
	return "bash"
}

func (t *BashTool) Description() string {
	return "Execute a shell command and return its output. Use with caution."
}

func (t *BashTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "The shell command to execute",
			},
			"timeout": map[string]interface{}{
				"type":        "integer",
				"description": "Timeout in seconds (default: 120)",
			},
		},
		"required": []string{"command"},
	}
}

func (t *BashTool) Execute(ctx context.Context, args map[string]interface{}) *types.ToolResult {
	command, err := util.ExtractString(args, "command")
	if err != nil {
		return types.ErrorResult(err.Error())
	}

	timeout := util.ExtractInt(args, "timeout", bashDefaultTimeout)
	if timeout <= 0 {
		return types.ErrorResult("timeout must be a positive number")
	}

	cmdCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	stdout, stderr, exitCode, runErr := t.execOps.Run(cmdCtx, "/bin/bash", []string{"-c", command}, t.workDir, util.SanitizeEnv())

	output := stdout
	if stderr != "" {
		if output != "" {
			output += "\n"
		}
		output += "STDERR:\n" + stderr
	}

	if runErr != nil && cmdCtx.Err() != nil {
		// Keep whatever the command printed before it was killed.
		partial := util.TruncateTail(output, bashMaxOutput)
		if partial != "" {
			partial += "\n"
		}
		partial += fmt.Sprintf("Command timed out after %d seconds", timeout)
		return types.TimeoutResult(partial)
	}

	if runErr != nil {
		output += fmt.Sprintf("\nError: %v", runErr)
		exitCode = -1
	} else if exitCode != 0 {
		output += fmt.Sprintf("\nExit code: exit status %d", exitCode)
	}

	if output == "" {
		output = "(no output)"
	}

	output = util.TruncateTail(output, bashMaxOutput)

	if runErr != nil || exitCode != 0 {
		return &types.ToolResult{
			ForLLM:     output,
			ForUser:    output,
			IsError:    true,
			ExitStatus: exitCode,
		}
	}

	return types.UserResult(output)
}
