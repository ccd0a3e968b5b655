// Package compact reduces a session's token footprint when it
// approaches the context budget. Stages escalate: prune old tool
// outputs, summarize the oldest span via the model, drop middle turns,
// and as a last resort hard-truncate oversized turns. The system prompt
// and task instruction are never touched.
package compact

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/stride-agent/stride/pkg/llm"
	"github.com/stride-agent/stride/pkg/session"
	"github.com/stride-agent/stride/pkg/types"
	"github.com/stride-agent/stride/pkg/util"
)

const (
	// PruneMarker replaces cleared tool result bodies.
	PruneMarker = "[Old tool result content cleared]"

	// TruncationMarker replaces hard-truncated turn content.
	TruncationMarker = "[content truncated]"

	checkpointPrompt = `You are performing a context checkpoint. Create a handoff summary for another LLM that will resume the task.

Include:
- Current progress and key decisions made
- Important context, constraints, or user preferences
- What remains to be done (clear next steps)
- Any critical data, examples, or references needed to continue
- Which files were modified and how
- Any errors encountered and how they were resolved

Be concise, structured, and focused on helping the next LLM seamlessly continue the work. Use bullet points and clear sections.`

	summaryPrefix = `Another language model started to solve this problem and produced a summary of its thinking process. You also have access to the state of the tools that were used. Use this to build on the work that has already been done and avoid duplicating work.

Here is the summary from the previous context:

`
)

// Config holds compaction thresholds. All token values are estimates in
// the session's own accounting units.
type Config struct {
	// MaxTokens is the hard context budget.
	MaxTokens int
	// Threshold triggers compaction at this fraction of MaxTokens.
	Threshold float64
	// PruneTarget is the fraction of MaxTokens compaction aims for.
	PruneTarget float64
	// PruneProtectTokens of recent tool output are never pruned.
	PruneProtectTokens int
	// PruneMinTokens is the minimum recoverable amount worth pruning.
	PruneMinTokens int
	// MinKeepTurns of recent history survive summarization intact.
	MinKeepTurns int
	// SummaryMaxTokens bounds the summarization response.
	SummaryMaxTokens int
}

// Engine runs the compaction pipeline over a session.
type Engine struct {
	provider llm.Provider
	cfg      Config
	log      *slog.Logger
}

// NewEngine creates a compaction engine.
func NewEngine(provider llm.Provider, cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MinKeepTurns < 2 {
		cfg.MinKeepTurns = 2
	}
	return &Engine{provider: provider, cfg: cfg, log: log}
}

// NeedsCompaction reports whether the session has crossed the
// compaction threshold.
func (e *Engine) NeedsCompaction(s *session.Session) bool {
	return float64(s.TotalTokens()) >= e.cfg.Threshold*float64(e.cfg.MaxTokens)
}

// Compact runs the staged pipeline until the session fits the budget.
// Running it on a session already under the prune target is a no-op, as
// is running it again when only the keep window and a previous summary
// remain: the keep window alone may exceed the prune target, and
// re-summarizing a summary would compound lossiness for no recovery.
func (e *Engine) Compact(ctx context.Context, s *session.Session) error {
	target := int(e.cfg.PruneTarget * float64(e.cfg.MaxTokens))
	before := s.TotalTokens()
	if before <= target {
		return nil
	}
	e.log.Info("compacting session",
		"session", s.ID(),
		"tokens", before,
		"target", target)

	e.pruneToolOutputs(s, target)
	if s.TotalTokens() <= target {
		e.log.Info("pruning sufficient", "tokens", s.TotalTokens())
		return nil
	}

	if start, end, ok := summarySpan(s.Turns(), e.cfg.MinKeepTurns); ok {
		if err := e.summarize(ctx, s, start, end); err != nil {
			e.log.Warn("summarization failed, falling back to truncation", "error", err)
		}
	}
	if s.TotalTokens() <= e.cfg.MaxTokens {
		return nil
	}

	e.truncateMiddle(s)
	if s.TotalTokens() <= e.cfg.MaxTokens {
		return nil
	}

	e.hardTruncate(s)
	if s.TotalTokens() > e.cfg.MaxTokens {
		return fmt.Errorf("session still at %d tokens after compaction (budget %d)", s.TotalTokens(), e.cfg.MaxTokens)
	}
	return nil
}

// pruneToolOutputs walks backward over tool turns, protecting the two
// most recent tool results and a configured window of recent output,
// and clears older bodies oldest-first until the target is met.
func (e *Engine) pruneToolOutputs(s *session.Session, target int) {
	turns := s.Turns()
	var marked []int // newest-first
	seen := 0
	prunable := 0
	toolTurns := 0

	for i := len(turns) - 1; i >= 2; i-- {
		t := turns[i]
		if t.Role != types.RoleTool {
			continue
		}
		toolTurns++
		if toolTurns <= 2 {
			continue
		}
		if isPruned(t) {
			// Everything older was cleared by a previous pass.
			break
		}
		seen += t.TokenEstimate
		if seen > e.cfg.PruneProtectTokens {
			prunable += t.TokenEstimate
			marked = append(marked, i)
		}
	}

	if prunable <= e.cfg.PruneMinTokens {
		e.log.Debug("prune skipped", "recoverable", prunable, "min", e.cfg.PruneMinTokens)
		return
	}

	cleared := 0
	for j := len(marked) - 1; j >= 0; j-- {
		cleared += s.ClearToolResults(marked[j], PruneMarker)
		if s.TotalTokens() <= target {
			break
		}
	}
	e.log.Info("pruned old tool outputs", "recovered", cleared)
}

func isPruned(t types.Turn) bool {
	for _, b := range t.Blocks {
		if b.ToolResult != nil && b.Text != PruneMarker {
			return false
		}
	}
	return len(t.Blocks) > 0
}

// summarySpan computes the oldest non-pinned span [start, end) eligible
// for summarization. A span must leave the keep window intact, never cut
// between an assistant tool call and its results, and contain at least
// one turn that is not itself a previous summary. Without the last rule
// a second compaction with nothing new appended would summarize its own
// summary turn.
func summarySpan(turns []types.Turn, minKeep int) (int, int, bool) {
	start := 2
	end := len(turns) - minKeep
	for end > start && end < len(turns) && turns[end].Role == types.RoleTool {
		end++
	}
	if end <= start || end >= len(turns) {
		return 0, 0, false
	}
	for _, t := range turns[start:end] {
		if !isSummary(t) {
			return start, end, true
		}
	}
	return 0, 0, false
}

func isSummary(t types.Turn) bool {
	return t.Role == types.RoleUser && strings.HasPrefix(t.Text(), summaryPrefix)
}

// summarize replaces the span [start, end) with a model-written
// checkpoint summary carried in a non-cacheable user turn.
func (e *Engine) summarize(ctx context.Context, s *session.Session, start, end int) error {
	turns := s.Turns()
	discarded := turns[start:end]

	fileOps := extractFileOps(discarded)
	transcript := condense(discarded)

	prompt := checkpointPrompt + "\n\n" + transcript
	if fileOps != "" {
		prompt += "\n\nFile operations performed:\n" + fileOps
	}

	req := llm.Request{
		Turns: []types.Turn{
			types.NewTextTurn(types.RoleSystem, "You are a conversation summarizer. Produce brief, factual summaries."),
			types.NewTextTurn(types.RoleUser, prompt),
		},
		MaxTokens: e.cfg.SummaryMaxTokens,
	}
	resp, err := e.provider.Complete(ctx, req)
	if err != nil {
		return fmt.Errorf("summarization failed: %w", err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return fmt.Errorf("summarization returned empty content")
	}

	text := summaryPrefix + resp.Content
	if fileOps != "" {
		text += "\n\n" + fileOps
	}
	summaryTurn := types.Turn{
		Role:      types.RoleUser,
		Blocks:    []types.ContentBlock{types.TextBlock(text)},
		Cacheable: false,
	}
	if err := s.ReplaceRange(start, end, summaryTurn); err != nil {
		return err
	}
	e.log.Info("summarized history", "turns", len(discarded), "tokens", s.TotalTokens())
	return nil
}

// condense renders discarded turns as a compact transcript for the
// summarization prompt.
func condense(discarded []types.Turn) string {
	var content strings.Builder
	for _, turn := range discarded {
		switch turn.Role {
		case types.RoleUser:
			fmt.Fprintf(&content, "User: %s\n", util.TruncateOutput(turn.Text(), 500))
		case types.RoleAssistant:
			if text := turn.Text(); text != "" {
				fmt.Fprintf(&content, "Assistant: %s\n", util.TruncateOutput(text, 500))
			}
			for _, tc := range turn.ToolCalls {
				fmt.Fprintf(&content, "Tool call: %s(%s)\n", tc.Name, util.TruncateOutput(tc.Arguments, 200))
			}
		case types.RoleTool:
			fmt.Fprintf(&content, "Tool result: %s\n", util.TruncateOutput(turn.Text(), 300))
		}
	}
	return content.String()
}

// extractFileOps scans turns for file read/write/edit calls and returns
// a compact summary of which files were accessed.
func extractFileOps(turns []types.Turn) string {
	reads := make(map[string]bool)
	writes := make(map[string]bool)

	for _, turn := range turns {
		for _, tc := range turn.ToolCalls {
			path := gjson.Get(tc.Arguments, "path").String()
			if path == "" {
				continue
			}
			switch tc.Name {
			case "read":
				reads[path] = true
			case "write", "edit":
				writes[path] = true
			}
		}
	}

	if len(reads) == 0 && len(writes) == 0 {
		return ""
	}

	var parts []string
	if len(reads) > 0 {
		parts = append(parts, fmt.Sprintf("Files read: %s", strings.Join(util.MapKeys(reads), ", ")))
	}
	if len(writes) > 0 {
		parts = append(parts, fmt.Sprintf("Files modified: %s", strings.Join(util.MapKeys(writes), ", ")))
	}
	return strings.Join(parts, "\n")
}

// truncateMiddle drops the oldest non-pinned turns until the session
// fits the budget, keeping the most recent MinKeepTurns and never
// orphaning tool results. A removal whose tool-result extension would
// reach into the keep window is abandoned rather than taken.
func (e *Engine) truncateMiddle(s *session.Session) {
	removed := 0
	for s.TotalTokens() > e.cfg.MaxTokens {
		turns := s.Turns()
		keep := len(turns) - e.cfg.MinKeepTurns
		end := 3
		for end < len(turns) && turns[end].Role == types.RoleTool {
			end++
		}
		if end > keep || end >= len(turns) {
			break
		}
		if err := s.RemoveRange(2, end); err != nil {
			break
		}
		removed += end - 2
	}
	if removed > 0 {
		e.log.Info("truncated middle turns", "removed", removed, "tokens", s.TotalTokens())
	}
}

// hardTruncate replaces the largest remaining non-pinned turns with a
// marker. Only reached when a single turn alone exceeds the budget.
func (e *Engine) hardTruncate(s *session.Session) {
	for s.TotalTokens() > e.cfg.MaxTokens {
		turns := s.Turns()
		largest, largestTokens := -1, 0
		for i := 2; i < len(turns); i++ {
			if turns[i].TokenEstimate > largestTokens {
				largest, largestTokens = i, turns[i].TokenEstimate
			}
		}
		if largest < 0 {
			return
		}
		if recovered := s.HardTruncateTurn(largest, TruncationMarker); recovered <= 0 {
			return
		}
		e.log.Warn("hard truncated oversized turn", "index", largest, "tokens", largestTokens)
	}
}
