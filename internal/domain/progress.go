package domain

import (
	"fmt"
	"slices"
	"time"
)

const (
	// JuzCount is the number of Juz the Quran is divided into.
	JuzCount = 30
	// SurahCount is the number of Surahs.
	SurahCount = 114
	// DefaultRevisionCycleDays is used when a profile has no cycle recorded.
	DefaultRevisionCycleDays = 7
)

// Strength is a user-assigned memorization confidence tier.
type Strength string

const (
	Weak   Strength = "Weak"
	Medium Strength = "Medium"
	Strong Strength = "Strong"
)

// Valid reports whether s is one of the three known strengths.
func (s Strength) Valid() bool {
	switch s {
	case Weak, Medium, Strong:
		return true
	}
	return false
}

// ParseStrength converts a form or JSON value into a Strength.
func ParseStrength(v string) (Strength, error) {
	s := Strength(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown strength %q", v)
	}
	return s, nil
}

// Progress records the revision state of a single Juz or Surah.
// A nil LastRevised means the unit has never been revised.
type Progress struct {
	LastRevised *time.Time `json:"lastRevised"`
	Strength    Strength   `json:"strength"`
}

// NewProgress returns the progress record a unit starts with.
func NewProgress() Progress {
	return Progress{Strength: Medium}
}

// Unit pairs a Juz or Surah number with its progress.
type Unit struct {
	Number   int
	Progress Progress
}

// Profile is the per-user document holding everything the tracker stores.
type Profile struct {
	UserID            string           `json:"userId"`
	DisplayName       string           `json:"displayName"`
	MemorizedJuz      []int            `json:"memorizedJuz"`
	JuzProgress       map[int]Progress `json:"juzProgress"`
	SurahProgress     map[int]Progress `json:"surahProgress"`
	RevisionCycleDays int              `json:"revisionCycle"`
	SetupCompleted    bool             `json:"setupCompleted"`
	Settings          Settings         `json:"settings"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

// IsMemorized reports whether juz is part of the memorized set.
func (p Profile) IsMemorized(juz int) bool {
	return slices.Contains(p.MemorizedJuz, juz)
}

// Juz returns the progress of a Juz, or a fresh record if none exists.
func (p Profile) Juz(n int) Progress {
	if pr, ok := p.JuzProgress[n]; ok {
		return pr
	}
	return NewProgress()
}

// Surah returns the progress of a Surah, or a fresh record if none exists.
func (p Profile) Surah(n int) Progress {
	if pr, ok := p.SurahProgress[n]; ok {
		return pr
	}
	return NewProgress()
}

// Clone returns a deep copy so reducers never share maps or slices with
// their input.
func (p Profile) Clone() Profile {
	c := p
	c.MemorizedJuz = slices.Clone(p.MemorizedJuz)
	c.JuzProgress = cloneProgress(p.JuzProgress)
	c.SurahProgress = cloneProgress(p.SurahProgress)
	return c
}

func cloneProgress(m map[int]Progress) map[int]Progress {
	if m == nil {
		return nil
	}
	out := make(map[int]Progress, len(m))
	for k, v := range m {
		if v.LastRevised != nil {
			t := *v.LastRevised
			v.LastRevised = &t
		}
		out[k] = v
	}
	return out
}
