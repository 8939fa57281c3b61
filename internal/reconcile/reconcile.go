package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/conorfennell/murajaah/internal/domain"
)

// Store is the subset of storage the reconciler needs.
type Store interface {
	ListProfileIDs(ctx context.Context) ([]string, error)
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	PutProfile(ctx context.Context, p *domain.Profile) error
}

// Profile brings a stored profile back in line with the memorized set:
// every memorized Juz gets a progress record, records of Juz that are no
// longer memorized are dropped, and missing defaults are filled in.
// It reports whether anything changed. The input is not modified.
func Profile(in domain.Profile) (domain.Profile, bool) {
	p := in.Clone()
	changed := false

	if p.RevisionCycleDays <= 0 {
		p.RevisionCycleDays = domain.DefaultRevisionCycleDays
		changed = true
	}
	if p.JuzProgress == nil {
		p.JuzProgress = map[int]domain.Progress{}
		changed = true
	}
	if p.SurahProgress == nil {
		p.SurahProgress = map[int]domain.Progress{}
		changed = true
	}

	defaults := domain.DefaultSettings()
	if p.Settings.Language == "" {
		p.Settings.Language = defaults.Language
		changed = true
	}
	if p.Settings.DateFormat == "" {
		p.Settings.DateFormat = defaults.DateFormat
		changed = true
	}
	if p.Settings.Theme == "" {
		p.Settings.Theme = defaults.Theme
		changed = true
	}

	memorized := make([]int, 0, len(p.MemorizedJuz))
	for _, j := range p.MemorizedJuz {
		if j < 1 || j > domain.JuzCount || slices.Contains(memorized, j) {
			continue
		}
		memorized = append(memorized, j)
	}
	slices.Sort(memorized)
	if !slices.Equal(memorized, p.MemorizedJuz) {
		changed = true
	}
	p.MemorizedJuz = memorized

	for _, j := range memorized {
		if _, ok := p.JuzProgress[j]; !ok {
			p.JuzProgress[j] = domain.NewProgress()
			changed = true
		}
	}
	for j := range p.JuzProgress {
		if !slices.Contains(memorized, j) {
			delete(p.JuzProgress, j)
			changed = true
		}
	}

	if fixStrengths(p.JuzProgress) {
		changed = true
	}
	for s := range p.SurahProgress {
		if s < 1 || s > domain.SurahCount {
			delete(p.SurahProgress, s)
			changed = true
		}
	}
	if fixStrengths(p.SurahProgress) {
		changed = true
	}

	return p, changed
}

func fixStrengths(m map[int]domain.Progress) bool {
	changed := false
	for k, pr := range m {
		if !pr.Strength.Valid() {
			pr.Strength = domain.Medium
			m[k] = pr
			changed = true
		}
	}
	return changed
}

// Result summarises a reconciliation run.
type Result struct {
	Checked int
	Updated int
	Errors  []error
}

// Run reconciles every stored profile and writes back the ones that changed.
// Failures on individual profiles are collected and do not stop the run.
func Run(ctx context.Context, store Store) (Result, error) {
	slog.Info("Starting reconciliation for all profiles...")

	ids, err := store.ListProfileIDs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list profiles: %w", err)
	}

	var res Result
	if len(ids) == 0 {
		slog.Info("No profiles stored, nothing to reconcile")
		return res, nil
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Checked++

		stored, err := store.GetProfile(ctx, id)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("get profile %s: %w", id, err))
			continue
		}

		fixed, changed := Profile(*stored)
		if !changed {
			continue
		}

		slog.Info("Profile out of date, rewriting", "user_id", id)
		if err := store.PutProfile(ctx, &fixed); err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("put profile %s: %w", id, err))
			continue
		}
		res.Updated++
	}

	slog.Info("reconciliation complete",
		"checked", res.Checked,
		"updated", res.Updated,
		"errors", len(res.Errors),
	)
	return res, errors.Join(res.Errors...)
}
