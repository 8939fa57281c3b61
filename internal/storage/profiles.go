package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conorfennell/murajaah/internal/domain"
)

// profileRow is the column layout of the profiles table.
type profileRow struct {
	UserID         string    `db:"user_id"`
	DisplayName    string    `db:"display_name"`
	MemorizedJuz   string    `db:"memorized_juz"`
	JuzProgress    string    `db:"juz_progress"`
	SurahProgress  string    `db:"surah_progress"`
	RevisionCycle  int       `db:"revision_cycle"`
	SetupCompleted bool      `db:"setup_completed"`
	Settings       string    `db:"settings"`
	UpdatedAt      time.Time `db:"updated_at"`
}

const profileColumns = `user_id, display_name, memorized_juz, juz_progress, surah_progress,
	revision_cycle, setup_completed, settings, updated_at`

func (r profileRow) toDomain() (*domain.Profile, error) {
	p := &domain.Profile{
		UserID:            r.UserID,
		DisplayName:       r.DisplayName,
		RevisionCycleDays: r.RevisionCycle,
		SetupCompleted:    r.SetupCompleted,
		UpdatedAt:         r.UpdatedAt,
	}
	if err := decode(r.MemorizedJuz, &p.MemorizedJuz); err != nil {
		return nil, fmt.Errorf("memorized_juz: %w", err)
	}
	if err := decode(r.JuzProgress, &p.JuzProgress); err != nil {
		return nil, fmt.Errorf("juz_progress: %w", err)
	}
	if err := decode(r.SurahProgress, &p.SurahProgress); err != nil {
		return nil, fmt.Errorf("surah_progress: %w", err)
	}
	if err := decode(r.Settings, &p.Settings); err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	return p, nil
}

func decode(raw string, v any) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), v)
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// GetProfile retrieves the profile document of a user.
func (db *DB) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	var row profileRow
	err := db.conn.GetContext(ctx, &row, db.conn.Rebind(`
		SELECT `+profileColumns+` FROM profiles WHERE user_id = ?
	`), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get profile %s: %w", userID, err)
	}
	p, err := row.toDomain()
	if err != nil {
		return nil, fmt.Errorf("failed to decode profile %s: %w", userID, err)
	}
	return p, nil
}

// PutProfile writes the whole profile document, creating it if absent.
func (db *DB) PutProfile(ctx context.Context, p *domain.Profile) error {
	memorized, err := encode(nonNilSlice(p.MemorizedJuz))
	if err != nil {
		return fmt.Errorf("failed to encode memorized juz: %w", err)
	}
	juz, err := encode(nonNilMap(p.JuzProgress))
	if err != nil {
		return fmt.Errorf("failed to encode juz progress: %w", err)
	}
	surah, err := encode(nonNilMap(p.SurahProgress))
	if err != nil {
		return fmt.Errorf("failed to encode surah progress: %w", err)
	}
	settings, err := encode(p.Settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	p.UpdatedAt = db.now().UTC()
	_, err = db.conn.ExecContext(ctx, db.conn.Rebind(`
		INSERT INTO profiles (`+profileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = excluded.display_name,
			memorized_juz = excluded.memorized_juz,
			juz_progress = excluded.juz_progress,
			surah_progress = excluded.surah_progress,
			revision_cycle = excluded.revision_cycle,
			setup_completed = excluded.setup_completed,
			settings = excluded.settings,
			updated_at = excluded.updated_at
	`), p.UserID, p.DisplayName, memorized, juz, surah, p.RevisionCycleDays, p.SetupCompleted, settings, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to put profile %s: %w", p.UserID, err)
	}
	return nil
}

// ProfileUpdate lists the profile fields to overwrite. Nil fields keep their
// stored value; a non-nil empty slice or map clears the field.
type ProfileUpdate struct {
	DisplayName       *string
	MemorizedJuz      []int
	JuzProgress       map[int]domain.Progress
	SurahProgress     map[int]domain.Progress
	RevisionCycleDays *int
	SetupCompleted    *bool
	Settings          *domain.Settings
}

// Empty reports whether the update changes nothing.
func (u ProfileUpdate) Empty() bool {
	return u.DisplayName == nil && u.MemorizedJuz == nil && u.JuzProgress == nil &&
		u.SurahProgress == nil && u.RevisionCycleDays == nil && u.SetupCompleted == nil &&
		u.Settings == nil
}

// UpdateProfile merges the non-nil fields of u into the stored profile.
// It returns ErrNotFound if the user has no profile.
func (db *DB) UpdateProfile(ctx context.Context, userID string, u ProfileUpdate) error {
	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	setJSON := func(column string, value any) error {
		raw, err := encode(value)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", column, err)
		}
		set(column, raw)
		return nil
	}

	if u.DisplayName != nil {
		set("display_name", *u.DisplayName)
	}
	if u.MemorizedJuz != nil {
		if err := setJSON("memorized_juz", u.MemorizedJuz); err != nil {
			return err
		}
	}
	if u.JuzProgress != nil {
		if err := setJSON("juz_progress", u.JuzProgress); err != nil {
			return err
		}
	}
	if u.SurahProgress != nil {
		if err := setJSON("surah_progress", u.SurahProgress); err != nil {
			return err
		}
	}
	if u.RevisionCycleDays != nil {
		set("revision_cycle", *u.RevisionCycleDays)
	}
	if u.SetupCompleted != nil {
		set("setup_completed", *u.SetupCompleted)
	}
	if u.Settings != nil {
		if err := setJSON("settings", *u.Settings); err != nil {
			return err
		}
	}
	set("updated_at", db.now().UTC())
	args = append(args, userID)

	query := "UPDATE profiles SET " + strings.Join(sets, ", ") + " WHERE user_id = ?"
	if err := db.execOne(ctx, query, args...); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update profile %s: %w", userID, err)
	}
	return nil
}

// ListProfileIDs returns the user ids of every stored profile.
func (db *DB) ListProfileIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := db.conn.SelectContext(ctx, &ids, `SELECT user_id FROM profiles ORDER BY user_id`); err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return ids, nil
}

func nonNilSlice(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}

func nonNilMap(m map[int]domain.Progress) map[int]domain.Progress {
	if m == nil {
		return map[int]domain.Progress{}
	}
	return m
}
