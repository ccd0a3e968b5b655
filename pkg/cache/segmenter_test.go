package cache

import (
	"testing"

	"github.com/stride-agent/stride/pkg/types"
)

func history(n int) []types.Turn {
	turns := []types.Turn{types.NewTextTurn(types.RoleSystem, "system prompt")}
	for i := 1; i < n; i++ {
		role := types.RoleUser
		if i%2 == 0 {
			role = types.RoleAssistant
		}
		turns = append(turns, types.NewTextTurn(role, "turn"))
	}
	return turns
}

func TestDisabledSegmenterEmptyPlan(t *testing.T) {
	s := NewSegmenter(false, false)
	plan := s.PlanFor(history(6), 0)
	if len(plan.Positions) != 0 {
		t.Errorf("disabled segmenter produced positions %v", plan.Positions)
	}
}

func TestPlanSystemPlusTwoRecent(t *testing.T) {
	s := NewSegmenter(true, false)
	plan := s.PlanFor(history(6), 0)
	want := []int{0, 4, 5}
	if len(plan.Positions) != len(want) {
		t.Fatalf("positions = %v, want %v", plan.Positions, want)
	}
	for i, p := range want {
		if plan.Positions[i] != p {
			t.Errorf("positions = %v, want %v", plan.Positions, want)
			break
		}
	}
	if plan.ExtendedTTL {
		t.Error("ExtendedTTL set without opt-in")
	}
}

func TestPlanExtendedTTL(t *testing.T) {
	s := NewSegmenter(true, true)
	if plan := s.PlanFor(history(4), 0); !plan.ExtendedTTL {
		t.Error("ExtendedTTL not propagated")
	}
}

func TestPlanSkipsNonCacheableTurns(t *testing.T) {
	turns := history(6)
	turns[5].Cacheable = false
	s := NewSegmenter(true, false)
	plan := s.PlanFor(turns, 0)
	for _, p := range plan.Positions {
		if p == 5 {
			t.Errorf("breakpoint placed on non-cacheable turn: %v", plan.Positions)
		}
	}
	if !plan.Contains(4) || !plan.Contains(3) {
		t.Errorf("positions = %v, want markers at 3 and 4", plan.Positions)
	}
}

func TestPlanMonotonicWithinEpoch(t *testing.T) {
	s := NewSegmenter(true, false)
	s.PlanFor(history(8), 0) // high water now 7

	// History has not grown; same call again must not move backwards.
	plan := s.PlanFor(history(8), 0)
	max := 0
	for _, p := range plan.Positions {
		if p > max {
			max = p
		}
	}
	if max != 7 {
		t.Errorf("newest breakpoint at %d, want 7", max)
	}

	// Growing history moves markers forward.
	plan = s.PlanFor(history(10), 0)
	if !plan.Contains(9) {
		t.Errorf("positions = %v, want marker at 9", plan.Positions)
	}
}

func TestPlanResetsOnEpochChange(t *testing.T) {
	s := NewSegmenter(true, false)
	s.PlanFor(history(20), 0)

	// Compaction shrank the history and bumped the epoch; early indices
	// are valid again.
	plan := s.PlanFor(history(5), 1)
	if !plan.Contains(3) || !plan.Contains(4) {
		t.Errorf("positions after epoch reset = %v, want markers at 3 and 4", plan.Positions)
	}
}

func TestPlanShortHistory(t *testing.T) {
	s := NewSegmenter(true, false)
	plan := s.PlanFor(history(1), 0)
	if len(plan.Positions) != 1 || plan.Positions[0] != 0 {
		t.Errorf("positions = %v, want [0]", plan.Positions)
	}
	plan = s.PlanFor(history(2), 0)
	if !plan.Contains(0) || !plan.Contains(1) {
		t.Errorf("positions = %v, want [0 1]", plan.Positions)
	}
}
