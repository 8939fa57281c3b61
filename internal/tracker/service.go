package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/conorfennell/murajaah/internal/catalog"
	"github.com/conorfennell/murajaah/internal/domain"
	"github.com/conorfennell/murajaah/internal/reconcile"
	"github.com/conorfennell/murajaah/internal/storage"
)

// ErrWriteFailed is returned when a change could not be stored. The
// caller keeps showing the state it had before the action.
var ErrWriteFailed = errors.New("failed to save changes")

// Store is the profile persistence the service needs.
type Store interface {
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	PutProfile(ctx context.Context, p *domain.Profile) error
	UpdateProfile(ctx context.Context, userID string, u storage.ProfileUpdate) error
}

// Service runs user actions as read-modify-write round trips against the
// store. A returned profile is always the committed one.
type Service struct {
	store Store
	rules Rules
	now   func() time.Time
}

// NewService creates a tracker over store. A nil location counts days in
// local time.
func NewService(store Store, cat *catalog.Catalog, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		store: store,
		rules: Rules{Catalog: cat, Location: loc},
		now:   time.Now,
	}
}

// Rules exposes the reducers and view builders the service applies.
func (s *Service) Rules() Rules {
	return s.rules
}

// Now returns the service clock.
func (s *Service) Now() time.Time {
	return s.now()
}

// Profile loads the profile of userID, repairing and saving it first if it
// drifted from its invariants. It returns storage.ErrNotFound before setup.
func (s *Service) Profile(ctx context.Context, userID string) (domain.Profile, error) {
	stored, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return domain.Profile{}, err
	}
	fixed, changed := reconcile.Profile(*stored)
	if !changed {
		return fixed, nil
	}
	if err := s.store.PutProfile(ctx, &fixed); err != nil {
		slog.WarnContext(ctx, "Failed to save repaired profile", "user_id", userID, "error", err)
	}
	return fixed, nil
}

// Setup writes the first profile of a user.
func (s *Service) Setup(ctx context.Context, userID, displayName string, in SetupInput) (domain.Profile, error) {
	p, err := s.rules.NewProfile(userID, displayName, in)
	if err != nil {
		return domain.Profile{}, err
	}
	if err := s.store.PutProfile(ctx, &p); err != nil {
		slog.ErrorContext(ctx, "Failed to save new profile", "user_id", userID, "error", err)
		return domain.Profile{}, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	slog.InfoContext(ctx, "Profile set up", "user_id", userID, "memorized", len(p.MemorizedJuz), "cycle", p.RevisionCycleDays)
	return p, nil
}

// MarkJuzRevised records a revision of a whole Juz.
func (s *Service) MarkJuzRevised(ctx context.Context, userID string, juz int) (domain.Profile, error) {
	now := s.now()
	return s.mutate(ctx, userID, "mark juz revised", func(p domain.Profile) (domain.Profile, error) {
		return s.rules.ApplyJuzRevision(p, juz, now)
	})
}

// MarkSurahRevised records a revision of one Surah.
func (s *Service) MarkSurahRevised(ctx context.Context, userID string, surah int) (domain.Profile, error) {
	now := s.now()
	return s.mutate(ctx, userID, "mark surah revised", func(p domain.Profile) (domain.Profile, error) {
		return s.rules.ApplySurahRevision(p, surah, now)
	})
}

// SetJuzStrength sets, or with an empty strength rotates, the strength of a Juz.
func (s *Service) SetJuzStrength(ctx context.Context, userID string, juz int, strength domain.Strength) (domain.Profile, error) {
	return s.mutate(ctx, userID, "change juz strength", func(p domain.Profile) (domain.Profile, error) {
		return s.rules.ApplyJuzStrength(p, juz, strength)
	})
}

// SetSurahStrength sets, or with an empty strength rotates, the strength of a Surah.
func (s *Service) SetSurahStrength(ctx context.Context, userID string, surah int, strength domain.Strength) (domain.Profile, error) {
	return s.mutate(ctx, userID, "change surah strength", func(p domain.Profile) (domain.Profile, error) {
		return s.rules.ApplySurahStrength(p, surah, strength)
	})
}

// UpdateMemorized edits the memorized set and cycle.
func (s *Service) UpdateMemorized(ctx context.Context, userID string, in ProfileInput) (domain.Profile, error) {
	return s.mutate(ctx, userID, "update profile", func(p domain.Profile) (domain.Profile, error) {
		return s.rules.ApplyMemorizedJuz(p, in)
	})
}

// UpdateSettings stores new display preferences.
func (s *Service) UpdateSettings(ctx context.Context, userID string, settings domain.Settings) (domain.Profile, error) {
	return s.mutate(ctx, userID, "update settings", func(p domain.Profile) (domain.Profile, error) {
		return s.rules.ApplySettings(p, settings)
	})
}

// Rename keeps the profile display name in step with the account.
func (s *Service) Rename(ctx context.Context, userID, name string) (domain.Profile, error) {
	return s.mutate(ctx, userID, "rename", func(p domain.Profile) (domain.Profile, error) {
		return s.rules.ApplyDisplayName(p, name), nil
	})
}

func (s *Service) mutate(ctx context.Context, userID, action string, reduce func(domain.Profile) (domain.Profile, error)) (domain.Profile, error) {
	current, err := s.Profile(ctx, userID)
	if err != nil {
		return domain.Profile{}, err
	}
	next, err := reduce(current)
	if err != nil {
		return current, err
	}

	update := Diff(current, next)
	if update.Empty() {
		return current, nil
	}
	if err := s.store.UpdateProfile(ctx, userID, update); err != nil {
		slog.ErrorContext(ctx, "Failed to save change", "action", action, "user_id", userID, "error", err)
		return current, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	next.UpdatedAt = s.now().UTC()
	return next, nil
}

// Diff lists the fields of next that differ from prev.
func Diff(prev, next domain.Profile) storage.ProfileUpdate {
	var u storage.ProfileUpdate
	if prev.DisplayName != next.DisplayName {
		name := next.DisplayName
		u.DisplayName = &name
	}
	if !slices.Equal(prev.MemorizedJuz, next.MemorizedJuz) {
		u.MemorizedJuz = nonNil(next.MemorizedJuz)
	}
	if !progressEqual(prev.JuzProgress, next.JuzProgress) {
		u.JuzProgress = next.JuzProgress
	}
	if !progressEqual(prev.SurahProgress, next.SurahProgress) {
		u.SurahProgress = next.SurahProgress
	}
	if prev.RevisionCycleDays != next.RevisionCycleDays {
		cycle := next.RevisionCycleDays
		u.RevisionCycleDays = &cycle
	}
	if prev.SetupCompleted != next.SetupCompleted {
		done := next.SetupCompleted
		u.SetupCompleted = &done
	}
	if prev.Settings != next.Settings {
		settings := next.Settings
		u.Settings = &settings
	}
	return u
}

func progressEqual(a, b map[int]domain.Progress) bool {
	return maps.EqualFunc(a, b, func(x, y domain.Progress) bool {
		if x.Strength != y.Strength {
			return false
		}
		if x.LastRevised == nil || y.LastRevised == nil {
			return x.LastRevised == y.LastRevised
		}
		return x.LastRevised.Equal(*y.LastRevised)
	})
}

func nonNil(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}
