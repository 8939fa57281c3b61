package revision

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/conorfennell/murajaah/internal/domain"
)

// ErrInvalidCycle is returned when a revision cycle is not a positive number of days.
var ErrInvalidCycle = errors.New("revision cycle must be a positive number of days")

// Schedule holds the revision cycle of a profile and the location whose
// calendar days are counted. Build one with NewSchedule; the zero value
// behaves like DefaultSchedule.
type Schedule struct {
	cycleDays int
	loc       *time.Location
}

// DefaultSchedule returns a seven day cycle counted in local time.
func DefaultSchedule() *Schedule {
	return &Schedule{
		cycleDays: domain.DefaultRevisionCycleDays,
		loc:       time.Local,
	}
}

// NewSchedule validates cycleDays and returns a Schedule. A nil location
// means local time.
func NewSchedule(cycleDays int, loc *time.Location) (*Schedule, error) {
	if cycleDays <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCycle, cycleDays)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Schedule{cycleDays: cycleDays, loc: loc}, nil
}

// CycleDays is the length of the cycle, always positive.
func (s *Schedule) CycleDays() int {
	if s == nil || s.cycleDays <= 0 {
		return domain.DefaultRevisionCycleDays
	}
	return s.cycleDays
}

// Location is where calendar days are counted.
func (s *Schedule) Location() *time.Location {
	if s == nil || s.loc == nil {
		return time.Local
	}
	return s.loc
}

// DaysSince returns the number of calendar days between lastRevised and
// today, both taken as dates in loc. The second result is false when the
// unit was never revised.
func DaysSince(lastRevised *time.Time, today time.Time, loc *time.Location) (int, bool) {
	if lastRevised == nil {
		return 0, false
	}
	last := calendarDate(*lastRevised, loc)
	now := calendarDate(today, loc)
	if last.Equal(now) {
		return 0, true
	}
	diff := now.Sub(last)
	if diff < 0 {
		diff = -diff
	}
	return int(math.Ceil(diff.Hours() / 24)), true
}

// calendarDate truncates t to its date in loc and re-anchors it in UTC so
// that subtracting two dates always yields whole days, whatever DST did in
// between.
func calendarDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysSince is DaysSince for a progress record under this schedule.
func (s *Schedule) DaysSince(p domain.Progress, now time.Time) (int, bool) {
	return DaysSince(p.LastRevised, now, s.Location())
}

// NeedsRevision reports whether the unit is due. Units never revised are
// always due.
func (s *Schedule) NeedsRevision(p domain.Progress, now time.Time) bool {
	days, ok := s.DaysSince(p, now)
	if !ok {
		return true
	}
	return days >= s.CycleDays()
}

// FreshnessPercent decays linearly from 100 on the day of revision to 0 at
// the end of the cycle and stays at 0 afterwards.
func (s *Schedule) FreshnessPercent(p domain.Progress, now time.Time) int {
	days, ok := s.DaysSince(p, now)
	if !ok {
		return 0
	}
	pct := math.Round(100 - float64(days)/float64(s.CycleDays())*100)
	return int(math.Min(100, math.Max(0, pct)))
}

// Tier is a display bucket derived from a freshness percentage.
type Tier string

const (
	TierCritical Tier = "critical"
	TierLow      Tier = "low"
	TierMedium   Tier = "medium"
	TierHigh     Tier = "high"
)

// TierOf maps a freshness percentage to its tier.
func TierOf(percent int) Tier {
	switch {
	case percent <= 25:
		return TierCritical
	case percent <= 50:
		return TierLow
	case percent <= 75:
		return TierMedium
	default:
		return TierHigh
	}
}

// Status is the short label shown next to a unit.
type Status string

const (
	StatusNotStarted Status = "Not Started"
	StatusDue        Status = "Revise Now"
	StatusRelaxed    Status = "Relax"
)

// StatusOf labels a unit by whether it has been started and is due.
func (s *Schedule) StatusOf(p domain.Progress, now time.Time) Status {
	if p.LastRevised == nil {
		return StatusNotStarted
	}
	if s.NeedsRevision(p, now) {
		return StatusDue
	}
	return StatusRelaxed
}

// RotateStrength returns the next strength in the Weak, Medium, Strong cycle.
func RotateStrength(current domain.Strength) domain.Strength {
	switch current {
	case domain.Weak:
		return domain.Medium
	case domain.Medium:
		return domain.Strong
	case domain.Strong:
		return domain.Weak
	}
	return domain.Medium
}

// JuzRevision is the result of rolling Surah revisions up to their Juz.
type JuzRevision struct {
	AllRevisedWithinCycle bool
	MostRecentRevision    *time.Time
}

// AggregateJuzFromSurahs decides whether every Surah of a Juz has been
// revised within the cycle, measured back from now. Only then is
// MostRecentRevision set; otherwise the caller keeps the Juz timestamp it
// already has. An empty Surah list never qualifies.
func (s *Schedule) AggregateJuzFromSurahs(surahs []domain.Progress, now time.Time) JuzRevision {
	if len(surahs) == 0 {
		return JuzRevision{}
	}
	cycleStart := now.AddDate(0, 0, -s.CycleDays())
	var latest *time.Time
	for _, p := range surahs {
		if p.LastRevised == nil || p.LastRevised.Before(cycleStart) {
			return JuzRevision{}
		}
		if latest == nil || p.LastRevised.After(*latest) {
			t := *p.LastRevised
			latest = &t
		}
	}
	return JuzRevision{AllRevisedWithinCycle: true, MostRecentRevision: latest}
}

// AggregateJuzStrengthFromSurahs reports whether every Surah of a Juz
// already carries proposed, in which case the Juz takes it too.
func AggregateJuzStrengthFromSurahs(surahs []domain.Progress, proposed domain.Strength) bool {
	if len(surahs) == 0 {
		return false
	}
	for _, p := range surahs {
		if p.Strength != proposed {
			return false
		}
	}
	return true
}

// Summary counts units by whether they are due.
type Summary struct {
	Due     int
	Relaxed int
}

// Summarize counts due and relaxed units.
func (s *Schedule) Summarize(units []domain.Progress, now time.Time) Summary {
	var sum Summary
	for _, p := range units {
		if s.NeedsRevision(p, now) {
			sum.Due++
		} else {
			sum.Relaxed++
		}
	}
	return sum
}
