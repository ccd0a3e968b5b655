// Package cache plans prompt-cache breakpoint placement over a
// conversation history. Breakpoints mark stable prefixes so the
// provider can reuse cached prefix computation across calls; the plan
// is advisory and providers without prompt caching ignore it.
package cache

import "github.com/stride-agent/stride/pkg/types"

// Plan is the breakpoint layout for one model call. Positions are turn
// indices whose final content block should carry a cache marker.
type Plan struct {
	Positions   []int
	ExtendedTTL bool
}

// Segmenter decides where cache breakpoints go. Within one compaction
// epoch placements only move forward, so a previously cached prefix is
// never invalidated by a breakpoint sliding backwards. A compaction
// rewrite shifts turn indices, so the epoch change resets the
// high-water mark.
type Segmenter struct {
	enabled     bool
	extendedTTL bool

	epoch     int
	highWater int
}

// NewSegmenter creates a segmenter. When enabled is false every plan is
// empty.
func NewSegmenter(enabled, extendedTTL bool) *Segmenter {
	return &Segmenter{enabled: enabled, extendedTTL: extendedTTL}
}

// PlanFor computes breakpoint positions for the given history. The
// system turn always gets a breakpoint; the remaining markers go on the
// two most recent cacheable non-system turns, subject to the monotonic
// high-water constraint.
func (s *Segmenter) PlanFor(turns []types.Turn, epoch int) Plan {
	if !s.enabled || len(turns) == 0 {
		return Plan{}
	}
	if epoch != s.epoch {
		s.epoch = epoch
		s.highWater = 0
	}

	positions := []int{0}
	recent := make([]int, 0, 2)
	for i := len(turns) - 1; i >= 1 && len(recent) < 2; i-- {
		if !turns[i].Cacheable {
			continue
		}
		if turns[i].Role == types.RoleSystem {
			continue
		}
		recent = append(recent, i)
	}
	// recent is newest-first; emit in ascending index order.
	for i := len(recent) - 1; i >= 0; i-- {
		idx := recent[i]
		if idx < s.highWater && idx != recent[0] {
			// Behind the high-water mark and not the newest marker:
			// placing it would move a breakpoint backwards.
			continue
		}
		positions = append(positions, idx)
	}
	if n := len(positions); n > 1 && positions[n-1] > s.highWater {
		s.highWater = positions[n-1]
	}
	return Plan{Positions: positions, ExtendedTTL: s.extendedTTL}
}

// Contains reports whether the plan places a breakpoint at idx.
func (p Plan) Contains(idx int) bool {
	for _, pos := range p.Positions {
		if pos == idx {
			return true
		}
	}
	return false
}
