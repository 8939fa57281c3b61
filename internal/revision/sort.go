package revision

import (
	"cmp"
	"slices"
	"time"

	"github.com/conorfennell/murajaah/internal/domain"
)

// SortKey selects how a list of units is ordered.
type SortKey string

const (
	ByIdentifier  SortKey = "number"
	ByLastRevised SortKey = "lastRevised"
	ByStrength    SortKey = "strength"
)

// ParseSortKey falls back to ByIdentifier for unknown values.
func ParseSortKey(v string) SortKey {
	switch k := SortKey(v); k {
	case ByLastRevised, ByStrength:
		return k
	}
	return ByIdentifier
}

var strengthRank = map[domain.Strength]int{
	domain.Weak:   0,
	domain.Medium: 1,
	domain.Strong: 2,
}

// Sort returns a stably sorted copy of units.
//
// ByLastRevised puts never revised units first, then units that are due,
// then the rest; within each group the unit revised longest ago comes first.
// ByStrength puts Weak before Medium before Strong.
func (s *Schedule) Sort(units []domain.Unit, key SortKey, now time.Time) []domain.Unit {
	out := slices.Clone(units)
	switch key {
	case ByLastRevised:
		slices.SortStableFunc(out, func(a, b domain.Unit) int {
			return s.compareLastRevised(a.Progress, b.Progress, now)
		})
	case ByStrength:
		slices.SortStableFunc(out, func(a, b domain.Unit) int {
			return cmp.Compare(strengthRank[a.Progress.Strength], strengthRank[b.Progress.Strength])
		})
	default:
		slices.SortStableFunc(out, func(a, b domain.Unit) int {
			return cmp.Compare(a.Number, b.Number)
		})
	}
	return out
}

func (s *Schedule) compareLastRevised(a, b domain.Progress, now time.Time) int {
	daysA, revisedA := s.DaysSince(a, now)
	daysB, revisedB := s.DaysSince(b, now)
	switch {
	case !revisedA && !revisedB:
		return 0
	case !revisedA:
		return -1
	case !revisedB:
		return 1
	}

	dueA := daysA >= s.CycleDays()
	dueB := daysB >= s.CycleDays()
	if dueA != dueB {
		if dueA {
			return -1
		}
		return 1
	}
	return cmp.Compare(daysB, daysA)
}
