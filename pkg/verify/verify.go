// Package verify implements completion checking for task runs. A model
// claiming completion must survive two gates: a mechanically checked
// requirement checklist derived from the instruction, and an explicit
// re-confirmation on the next turn. Any tool activity in between
// reverts the claim.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/stride-agent/stride/pkg/llm"
	"github.com/stride-agent/stride/pkg/tools"
	"github.com/stride-agent/stride/pkg/types"
	"github.com/stride-agent/stride/pkg/util"
)

// State is the completion state of a run.
type State string

const (
	StateExecuting           State = "executing"
	StatePendingConfirmation State = "pending_confirmation"
	StateDone                State = "done"
)

// Requirement is one checkable item derived from the task instruction.
// Command, when present, is a shell command expected to exit 0 if the
// requirement is satisfied.
type Requirement struct {
	Text     string
	Command  string
	Verified bool
	Evidence string
}

// Checklist is the set of requirements for one completion claim. It is
// rebuilt on every claim and discarded after the decision.
type Checklist struct {
	Requirements []Requirement
}

// Outcome reports the verifier's decision on a completion signal.
// Feedback, when non-empty, is text to send back to the model.
type Outcome struct {
	State    State
	Feedback string
}

// Config tunes the verifier.
type Config struct {
	// MaxVerificationCalls bounds shell commands run per claim.
	MaxVerificationCalls int
	// MaxParseRetries bounds checklist re-asks on malformed JSON.
	MaxParseRetries int
	// RequireConfirmation enables the second confirmation gate.
	RequireConfirmation bool
}

// Verifier tracks completion state across loop iterations.
type Verifier struct {
	provider   llm.Provider
	dispatcher *tools.Dispatcher
	cfg        Config
	log        *slog.Logger
	state      State
}

// New creates a verifier in the executing state.
func New(provider llm.Provider, dispatcher *tools.Dispatcher, cfg Config, log *slog.Logger) *Verifier {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxVerificationCalls <= 0 {
		cfg.MaxVerificationCalls = 5
	}
	if cfg.MaxParseRetries <= 0 {
		cfg.MaxParseRetries = 3
	}
	return &Verifier{
		provider:   provider,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        log,
		state:      StateExecuting,
	}
}

// State returns the current completion state.
func (v *Verifier) State() State {
	return v.state
}

// OnActivity reverts a pending completion claim. Called whenever the
// model performs tool calls.
func (v *Verifier) OnActivity() {
	if v.state == StatePendingConfirmation {
		v.log.Info("completion claim withdrawn by new activity")
		v.state = StateExecuting
	}
}

// OnCompletionSignal handles an assistant response with no tool calls.
// In the executing state it builds and checks a requirement checklist;
// in the pending state it finalizes the run.
func (v *Verifier) OnCompletionSignal(ctx context.Context, instruction, finalText string) (Outcome, error) {
	if v.state == StatePendingConfirmation {
		v.state = StateDone
		return Outcome{State: StateDone}, nil
	}

	checklist, err := v.buildChecklist(ctx, instruction)
	if err != nil {
		// A model that cannot emit parseable JSON after retries, or a
		// fatal provider error, aborts the run. Anything else just means
		// the checklist is unavailable right now; the claim falls through
		// to the confirmation gate instead of failing the whole run.
		var pe *llm.ParseError
		if errors.As(err, &pe) || llm.IsFatal(err) {
			return Outcome{State: v.state}, err
		}
		v.log.Warn("checklist unavailable, skipping mechanical checks", "error", err)
		checklist = nil
	}

	if checklist != nil {
		v.check(ctx, checklist)

		var failed []Requirement
		for _, r := range checklist.Requirements {
			if r.Command != "" && !r.Verified {
				failed = append(failed, r)
			}
		}
		if len(failed) > 0 {
			v.state = StateExecuting
			var b strings.Builder
			b.WriteString("The task is not complete. These requirements failed verification:\n")
			for _, r := range failed {
				fmt.Fprintf(&b, "- %s\n", r.Text)
				if r.Evidence != "" {
					fmt.Fprintf(&b, "  evidence: %s\n", util.TruncateOutput(r.Evidence, 300))
				}
			}
			b.WriteString("Continue working on the task.")
			return Outcome{State: StateExecuting, Feedback: b.String()}, nil
		}
	}

	if !v.cfg.RequireConfirmation {
		v.state = StateDone
		return Outcome{State: StateDone}, nil
	}

	v.state = StatePendingConfirmation
	feedback := "All verifiable requirements passed. If the task is fully complete, " +
		"confirm by responding without using any tools. If anything remains, continue working."
	return Outcome{State: StatePendingConfirmation, Feedback: feedback}, nil
}

const checklistPrompt = `Restate the task below as a JSON checklist of concrete requirements. For each requirement, include a shell command that exits 0 if and only if the requirement is satisfied, when such a command exists; otherwise omit the command.

Respond with only a JSON object of this shape:
{"requirements":[{"text":"...","command":"..."}]}

Task:
%s`

// buildChecklist asks the model to restate the instruction as checkable
// requirements, re-asking on malformed output up to the retry bound.
func (v *Verifier) buildChecklist(ctx context.Context, instruction string) (*Checklist, error) {
	prompt := fmt.Sprintf(checklistPrompt, instruction)
	correction := ""

	for attempt := 0; attempt < v.cfg.MaxParseRetries; attempt++ {
		turns := []types.Turn{
			types.NewTextTurn(types.RoleSystem, "You decompose tasks into verifiable requirements. Respond with JSON only."),
			types.NewTextTurn(types.RoleUser, prompt+correction),
		}
		resp, err := v.provider.Complete(ctx, llm.Request{Turns: turns, MaxTokens: 1024})
		if err != nil {
			return nil, err
		}

		checklist, perr := parseChecklist(resp.Content)
		if perr == nil {
			return checklist, nil
		}
		v.log.Warn("checklist parse failed", "attempt", attempt+1, "error", perr)
		correction = "\n\nYour previous response was not valid: " + perr.Error() +
			". Respond with only the JSON object, no surrounding text."
	}
	return nil, &llm.ParseError{Detail: "checklist response unparseable after retries"}
}

// parseChecklist extracts requirements from a model response, tolerant
// of code fences and stray text around the JSON.
func parseChecklist(raw string) (*Checklist, error) {
	cleaned := util.StripCodeFence(raw)
	reqs := gjson.Get(cleaned, "requirements")
	if !reqs.Exists() || !reqs.IsArray() {
		return nil, fmt.Errorf("missing requirements array")
	}
	var checklist Checklist
	reqs.ForEach(func(_, item gjson.Result) bool {
		text := item.Get("text").String()
		if text == "" {
			return true
		}
		checklist.Requirements = append(checklist.Requirements, Requirement{
			Text:    text,
			Command: item.Get("command").String(),
		})
		return true
	})
	if len(checklist.Requirements) == 0 {
		return nil, fmt.Errorf("no usable requirements")
	}
	return &checklist, nil
}

// check runs each requirement's command through the dispatcher, bounded
// by MaxVerificationCalls. Requirements without commands, or beyond the
// bound, are not counted against the claim.
func (v *Verifier) check(ctx context.Context, checklist *Checklist) {
	calls := 0
	for i := range checklist.Requirements {
		r := &checklist.Requirements[i]
		if r.Command == "" {
			continue
		}
		if calls >= v.cfg.MaxVerificationCalls {
			v.log.Warn("verification call budget exhausted", "skipped", r.Text)
			r.Verified = true
			r.Evidence = "skipped: verification call budget exhausted"
			continue
		}
		calls++

		args, err := json.Marshal(map[string]interface{}{
			"command": r.Command,
			"timeout": 30,
		})
		if err != nil {
			continue
		}
		outcome := v.dispatcher.Invoke(ctx, types.ToolCall{
			ID:        "verify_" + uuid.NewString(),
			Name:      "bash",
			Arguments: string(args),
		})
		r.Verified = outcome.Status == types.ToolStatusOK && outcome.ExitStatus == 0
		r.Evidence = outcome.Result
		v.log.Info("requirement checked",
			"text", r.Text,
			"verified", r.Verified,
			"status", outcome.Status)
	}
}
