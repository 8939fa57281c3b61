package tracker

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/conorfennell/murajaah/internal/catalog"
	"github.com/conorfennell/murajaah/internal/domain"
	"github.com/conorfennell/murajaah/internal/revision"
	"github.com/conorfennell/murajaah/internal/validate"
)

var (
	// ErrUnknownUnit is returned for a Juz or Surah number outside the catalog.
	ErrUnknownUnit = errors.New("unknown juz or surah")
	// ErrNotMemorized is returned when acting on a unit outside the memorized set.
	ErrNotMemorized = errors.New("not part of the memorized juz")
)

// Rules applies user actions to profiles. Every Apply method is a pure
// reducer: it returns a new profile and never modifies its input.
type Rules struct {
	Catalog  *catalog.Catalog
	Location *time.Location
}

// Schedule returns the revision schedule of p. Profiles without a valid
// cycle fall back to the default one.
func (r Rules) Schedule(p domain.Profile) *revision.Schedule {
	s, err := revision.NewSchedule(p.RevisionCycleDays, r.Location)
	if err != nil {
		s, _ = revision.NewSchedule(domain.DefaultRevisionCycleDays, r.Location)
	}
	return s
}

// ProfileInput is the memorized set and cycle chosen during setup or on
// the profile page.
type ProfileInput struct {
	MemorizedJuz      []int `form:"juz" validate:"dive,min=1,max=30"`
	RevisionCycleDays int   `form:"cycle" validate:"min=1,max=365"`
}

// SetupInput is the first-run form. At least one Juz must be chosen.
type SetupInput struct {
	MemorizedJuz      []int `form:"juz" validate:"min=1,dive,min=1,max=30"`
	RevisionCycleDays int   `form:"cycle" validate:"min=1,max=365"`
}

// NewProfile creates the profile written when setup completes.
func (r Rules) NewProfile(userID, displayName string, in SetupInput) (domain.Profile, error) {
	if err := validate.Struct(in); err != nil {
		return domain.Profile{}, err
	}
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = "User"
	}
	p := domain.Profile{
		UserID:            userID,
		DisplayName:       name,
		JuzProgress:       map[int]domain.Progress{},
		SurahProgress:     map[int]domain.Progress{},
		RevisionCycleDays: in.RevisionCycleDays,
		SetupCompleted:    true,
		Settings:          domain.DefaultSettings(),
	}
	return r.ApplyMemorizedJuz(p, ProfileInput(in))
}

// ApplyMemorizedJuz replaces the memorized set and cycle. Newly added Juz
// start with fresh progress; progress of removed Juz is dropped. Surah
// progress is kept so re-adding a Juz restores its Surahs.
func (r Rules) ApplyMemorizedJuz(in domain.Profile, form ProfileInput) (domain.Profile, error) {
	if err := validate.Struct(form); err != nil {
		return domain.Profile{}, err
	}
	p := prepare(in)

	memorized := slices.Clone(form.MemorizedJuz)
	slices.Sort(memorized)
	memorized = slices.Compact(memorized)
	if memorized == nil {
		memorized = []int{}
	}
	p.MemorizedJuz = memorized
	p.RevisionCycleDays = form.RevisionCycleDays

	for _, j := range memorized {
		if _, ok := p.JuzProgress[j]; !ok {
			p.JuzProgress[j] = domain.NewProgress()
		}
	}
	for j := range p.JuzProgress {
		if !slices.Contains(memorized, j) {
			delete(p.JuzProgress, j)
		}
	}
	return p, nil
}

// ApplySettings replaces the display preferences.
func (r Rules) ApplySettings(in domain.Profile, s domain.Settings) (domain.Profile, error) {
	if err := validate.Struct(s); err != nil {
		return domain.Profile{}, err
	}
	p := prepare(in)
	p.Settings = s
	return p, nil
}

// ApplyDisplayName renames the profile.
func (r Rules) ApplyDisplayName(in domain.Profile, name string) domain.Profile {
	p := prepare(in)
	p.DisplayName = strings.TrimSpace(name)
	return p
}

// ApplyJuzRevision marks a Juz and all of its Surahs as revised at now,
// then rolls the Surah dates up into every other memorized Juz sharing
// those Surahs.
func (r Rules) ApplyJuzRevision(in domain.Profile, juz int, now time.Time) (domain.Profile, error) {
	if err := r.checkJuz(in, juz); err != nil {
		return domain.Profile{}, err
	}
	p := prepare(in)
	at := now

	jp := p.Juz(juz)
	jp.LastRevised = &at
	p.JuzProgress[juz] = jp

	var touched []int
	for _, s := range r.Catalog.InJuz(juz) {
		sp := p.Surah(s.Number)
		sp.LastRevised = &at
		p.SurahProgress[s.Number] = sp
		touched = append(touched, s.Number)
	}

	r.rollUpRevisions(&p, touched, juz, now)
	return p, nil
}

// ApplySurahRevision marks one Surah as revised at now and rolls the
// result up into each memorized Juz containing it.
func (r Rules) ApplySurahRevision(in domain.Profile, surah int, now time.Time) (domain.Profile, error) {
	if err := r.checkSurah(in, surah); err != nil {
		return domain.Profile{}, err
	}
	p := prepare(in)
	at := now

	sp := p.Surah(surah)
	sp.LastRevised = &at
	p.SurahProgress[surah] = sp

	r.rollUpRevisions(&p, []int{surah}, 0, now)
	return p, nil
}

// ApplyJuzStrength sets the strength of a Juz and all of its Surahs. An
// empty strength rotates the current one.
func (r Rules) ApplyJuzStrength(in domain.Profile, juz int, strength domain.Strength) (domain.Profile, error) {
	if err := r.checkJuz(in, juz); err != nil {
		return domain.Profile{}, err
	}
	if strength == "" {
		strength = revision.RotateStrength(in.Juz(juz).Strength)
	}
	if !strength.Valid() {
		return domain.Profile{}, fmt.Errorf("unknown strength %q", strength)
	}
	p := prepare(in)

	jp := p.Juz(juz)
	jp.Strength = strength
	p.JuzProgress[juz] = jp

	var touched []int
	for _, s := range r.Catalog.InJuz(juz) {
		sp := p.Surah(s.Number)
		sp.Strength = strength
		p.SurahProgress[s.Number] = sp
		touched = append(touched, s.Number)
	}

	r.rollUpStrength(&p, touched, juz, strength)
	return p, nil
}

// ApplySurahStrength sets the strength of one Surah. An empty strength
// rotates the current one. A memorized Juz whose Surahs now all share the
// strength takes it as well.
func (r Rules) ApplySurahStrength(in domain.Profile, surah int, strength domain.Strength) (domain.Profile, error) {
	if err := r.checkSurah(in, surah); err != nil {
		return domain.Profile{}, err
	}
	if strength == "" {
		strength = revision.RotateStrength(in.Surah(surah).Strength)
	}
	if !strength.Valid() {
		return domain.Profile{}, fmt.Errorf("unknown strength %q", strength)
	}
	p := prepare(in)

	sp := p.Surah(surah)
	sp.Strength = strength
	p.SurahProgress[surah] = sp

	r.rollUpStrength(&p, []int{surah}, 0, strength)
	return p, nil
}

// rollUpRevisions re-evaluates every memorized Juz, other than skip, that
// contains one of surahs. A Juz whose Surahs were all revised within the
// cycle takes the most recent Surah date; otherwise it is left alone.
func (r Rules) rollUpRevisions(p *domain.Profile, surahs []int, skip int, now time.Time) {
	sched := r.Schedule(*p)
	for _, j := range r.affectedJuz(*p, surahs, skip) {
		agg := sched.AggregateJuzFromSurahs(r.surahProgress(*p, j), now)
		if !agg.AllRevisedWithinCycle {
			continue
		}
		jp := p.Juz(j)
		jp.LastRevised = agg.MostRecentRevision
		p.JuzProgress[j] = jp
	}
}

func (r Rules) rollUpStrength(p *domain.Profile, surahs []int, skip int, strength domain.Strength) {
	for _, j := range r.affectedJuz(*p, surahs, skip) {
		if !revision.AggregateJuzStrengthFromSurahs(r.surahProgress(*p, j), strength) {
			continue
		}
		jp := p.Juz(j)
		jp.Strength = strength
		p.JuzProgress[j] = jp
	}
}

// affectedJuz lists, in ascending order, the memorized Juz other than skip
// that contain any of surahs.
func (r Rules) affectedJuz(p domain.Profile, surahs []int, skip int) []int {
	var out []int
	for _, n := range surahs {
		s, ok := r.Catalog.Surah(n)
		if !ok {
			continue
		}
		for _, j := range s.Juz {
			if j == skip || !p.IsMemorized(j) || slices.Contains(out, j) {
				continue
			}
			out = append(out, j)
		}
	}
	slices.Sort(out)
	return out
}

func (r Rules) surahProgress(p domain.Profile, juz int) []domain.Progress {
	surahs := r.Catalog.InJuz(juz)
	out := make([]domain.Progress, 0, len(surahs))
	for _, s := range surahs {
		out = append(out, p.Surah(s.Number))
	}
	return out
}

func (r Rules) checkJuz(p domain.Profile, juz int) error {
	if juz < 1 || juz > domain.JuzCount {
		return fmt.Errorf("%w: juz %d", ErrUnknownUnit, juz)
	}
	if !p.IsMemorized(juz) {
		return fmt.Errorf("%w: juz %d", ErrNotMemorized, juz)
	}
	return nil
}

func (r Rules) checkSurah(p domain.Profile, surah int) error {
	s, ok := r.Catalog.Surah(surah)
	if !ok {
		return fmt.Errorf("%w: surah %d", ErrUnknownUnit, surah)
	}
	if !slices.ContainsFunc(s.Juz, p.IsMemorized) {
		return fmt.Errorf("%w: surah %d", ErrNotMemorized, surah)
	}
	return nil
}

// prepare returns a deep copy of in with its progress maps allocated.
func prepare(in domain.Profile) domain.Profile {
	p := in.Clone()
	if p.JuzProgress == nil {
		p.JuzProgress = map[int]domain.Progress{}
	}
	if p.SurahProgress == nil {
		p.SurahProgress = map[int]domain.Progress{}
	}
	return p
}
