// Package session maintains the ordered conversation history for a
// single task run. The session owns the turn list and the running token
// total; all mutation goes through it so the total stays consistent and
// compaction rewrites are observable through the epoch counter.
package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/stride-agent/stride/pkg/tokens"
	"github.com/stride-agent/stride/pkg/types"
)

// Session holds the conversation history for one task run.
//
// Turn 0 is the system prompt and turn 1 the task instruction; both are
// pinned and never rewritten or removed by compaction operations.
type Session struct {
	mu    sync.RWMutex
	id    string
	turns []types.Turn
	total int
	epoch int
}

// New creates a session seeded with the system prompt and the task
// instruction.
func New(system, instruction string) *Session {
	s := &Session{id: newSessionID()}
	s.Append(types.NewTextTurn(types.RoleSystem, system))
	s.Append(types.NewTextTurn(types.RoleUser, instruction))
	return s
}

func newSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Append adds a turn to the end of the history, stamping its token
// estimate and updating the running total in O(1).
func (s *Session) Append(t types.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.TokenEstimate = tokens.EstimateTurn(t)
	s.turns = append(s.turns, t)
	s.total += t.TokenEstimate
}

// Turns returns a copy of the turn list.
func (s *Session) Turns() []types.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Turn returns the turn at index i.
func (s *Session) Turn(i int) (types.Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.turns) {
		return types.Turn{}, false
	}
	return s.turns[i], true
}

// Len returns the number of turns.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// TotalTokens returns the running token estimate for the whole history.
func (s *Session) TotalTokens() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// Epoch returns the compaction epoch. It increments every time a
// compaction operation rewrites history, so downstream consumers such
// as the cache segmenter can detect that turn indices have shifted.
func (s *Session) Epoch() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// ClearToolResults replaces the bodies of all tool-result blocks in the
// turn at idx with marker, keeping the structured metadata intact.
// Returns the number of tokens recovered. Pinned turns are untouched.
func (s *Session) ClearToolResults(idx int, marker string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < 2 || idx >= len(s.turns) {
		return 0
	}
	t := s.turns[idx]
	changed := false
	blocks := make([]types.ContentBlock, len(t.Blocks))
	copy(blocks, t.Blocks)
	for i, b := range blocks {
		if b.ToolResult != nil && b.Text != marker {
			blocks[i].Text = marker
			changed = true
		}
	}
	if !changed {
		return 0
	}
	t.Blocks = blocks
	return s.rewrite(idx, t)
}

// HardTruncateTurn replaces the turn's content with the given text,
// preserving role and tool-call structure. Used as the last resort when
// a single turn alone exceeds the context budget.
func (s *Session) HardTruncateTurn(idx int, text string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < 2 || idx >= len(s.turns) {
		return 0
	}
	t := s.turns[idx]
	blocks := []types.ContentBlock{types.TextBlock(text)}
	if len(t.Blocks) > 0 && t.Blocks[0].ToolResult != nil {
		blocks = []types.ContentBlock{types.ToolResultBlock(text, *t.Blocks[0].ToolResult)}
	}
	t.Blocks = blocks
	return s.rewrite(idx, t)
}

// rewrite installs the updated turn at idx, adjusts the total, and
// bumps the epoch. Returns tokens recovered (may be negative if the
// replacement is larger). Caller holds the lock.
func (s *Session) rewrite(idx int, t types.Turn) int {
	old := s.turns[idx].TokenEstimate
	t.TokenEstimate = tokens.EstimateTurn(t)
	s.turns[idx] = t
	s.total += t.TokenEstimate - old
	s.epoch++
	return old - t.TokenEstimate
}

// ReplaceRange substitutes turns [start, end) with a single replacement
// turn. The range must be interior: the system prompt and instruction
// are pinned, and the range must not be empty.
func (s *Session) ReplaceRange(start, end int, replacement types.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkRange(start, end); err != nil {
		return err
	}
	replacement.TokenEstimate = tokens.EstimateTurn(replacement)
	removed := 0
	for _, t := range s.turns[start:end] {
		removed += t.TokenEstimate
	}
	rest := make([]types.Turn, 0, len(s.turns)-(end-start)+1)
	rest = append(rest, s.turns[:start]...)
	rest = append(rest, replacement)
	rest = append(rest, s.turns[end:]...)
	s.turns = rest
	s.total += replacement.TokenEstimate - removed
	s.epoch++
	return nil
}

// RemoveRange deletes turns [start, end). Same pinning rules as
// ReplaceRange.
func (s *Session) RemoveRange(start, end int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkRange(start, end); err != nil {
		return err
	}
	for _, t := range s.turns[start:end] {
		s.total -= t.TokenEstimate
	}
	s.turns = append(s.turns[:start], s.turns[end:]...)
	s.epoch++
	return nil
}

func (s *Session) checkRange(start, end int) error {
	if start < 2 {
		return fmt.Errorf("range start %d overlaps pinned turns", start)
	}
	if end <= start || end > len(s.turns) {
		return fmt.Errorf("invalid range [%d, %d) for %d turns", start, end, len(s.turns))
	}
	return nil
}
