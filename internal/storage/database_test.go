package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/murajaah/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func createUser(t *testing.T, db *DB, id, email string) {
	t.Helper()
	require.NoError(t, db.CreateUser(context.Background(), &domain.User{
		ID:           id,
		Email:        email,
		DisplayName:  "Test " + id,
		PasswordHash: "hash",
	}))
}

func TestOpen(t *testing.T) {
	t.Run("unsupported driver", func(t *testing.T) {
		_, err := Open(context.Background(), "mysql", "whatever")
		assert.Error(t, err)
	})

	t.Run("schema is idempotent", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.db")
		db, err := Open(context.Background(), DriverSQLite, path)
		require.NoError(t, err)
		require.NoError(t, db.Close())

		db, err = Open(context.Background(), DriverSQLite, path)
		require.NoError(t, err)
		defer db.Close()
		assert.NoError(t, db.Ping(context.Background()))
	})
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	createUser(t, db, "u1", "  Aisha@Example.com ")

	t.Run("email is normalized", func(t *testing.T) {
		u, err := db.GetUserByEmail(ctx, "aisha@example.com")
		require.NoError(t, err)
		assert.Equal(t, "u1", u.ID)
		assert.Equal(t, "aisha@example.com", u.Email)
		assert.False(t, u.CreatedAt.IsZero())

		u, err = db.GetUserByEmail(ctx, "AISHA@example.com")
		require.NoError(t, err)
		assert.Equal(t, "u1", u.ID)
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		err := db.CreateUser(ctx, &domain.User{ID: "u2", Email: "aisha@example.com", DisplayName: "x", PasswordHash: "h"})
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := db.GetUserByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = db.GetUserByID(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("update name and password", func(t *testing.T) {
		require.NoError(t, db.UpdateUserDisplayName(ctx, "u1", "Aisha B"))
		require.NoError(t, db.UpdateUserPassword(ctx, "u1", "new-hash"))

		u, err := db.GetUserByID(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "Aisha B", u.DisplayName)
		assert.Equal(t, "new-hash", u.PasswordHash)

		assert.ErrorIs(t, db.UpdateUserDisplayName(ctx, "nope", "x"), ErrNotFound)
	})

	t.Run("update email", func(t *testing.T) {
		createUser(t, db, "u3", "other@example.com")

		err := db.UpdateUserEmail(ctx, "u3", "AISHA@example.com")
		assert.ErrorIs(t, err, ErrConflict)

		require.NoError(t, db.UpdateUserEmail(ctx, "u3", " New@Example.com "))
		u, err := db.GetUserByEmail(ctx, "new@example.com")
		require.NoError(t, err)
		assert.Equal(t, "u3", u.ID)

		assert.ErrorIs(t, db.UpdateUserEmail(ctx, "nope", "x@example.com"), ErrNotFound)
	})
}

func TestProfiles(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	createUser(t, db, "u1", "u1@example.com")
	createUser(t, db, "u2", "u2@example.com")

	revised := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	profile := &domain.Profile{
		UserID:       "u1",
		DisplayName:  "Aisha",
		MemorizedJuz: []int{29, 30},
		JuzProgress: map[int]domain.Progress{
			29: domain.NewProgress(),
			30: {LastRevised: &revised, Strength: domain.Strong},
		},
		SurahProgress: map[int]domain.Progress{
			114: {LastRevised: &revised, Strength: domain.Weak},
		},
		RevisionCycleDays: 7,
		SetupCompleted:    true,
		Settings:          domain.DefaultSettings(),
	}

	t.Run("missing profile", func(t *testing.T) {
		_, err := db.GetProfile(ctx, "u1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("put and get", func(t *testing.T) {
		require.NoError(t, db.PutProfile(ctx, profile))

		got, err := db.GetProfile(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "Aisha", got.DisplayName)
		assert.Equal(t, []int{29, 30}, got.MemorizedJuz)
		assert.Equal(t, 7, got.RevisionCycleDays)
		assert.True(t, got.SetupCompleted)
		assert.Equal(t, domain.DefaultSettings(), got.Settings)
		require.Len(t, got.JuzProgress, 2)
		assert.Nil(t, got.JuzProgress[29].LastRevised)
		assert.Equal(t, domain.Strong, got.JuzProgress[30].Strength)
		require.NotNil(t, got.JuzProgress[30].LastRevised)
		assert.True(t, revised.Equal(*got.JuzProgress[30].LastRevised))
		assert.Equal(t, domain.Weak, got.SurahProgress[114].Strength)
	})

	t.Run("put overwrites", func(t *testing.T) {
		p := profile.Clone()
		p.DisplayName = "Aisha B"
		p.MemorizedJuz = []int{30}
		delete(p.JuzProgress, 29)
		require.NoError(t, db.PutProfile(ctx, &p))

		got, err := db.GetProfile(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "Aisha B", got.DisplayName)
		assert.Equal(t, []int{30}, got.MemorizedJuz)
		assert.Len(t, got.JuzProgress, 1)
	})

	t.Run("partial update leaves other fields", func(t *testing.T) {
		cycle := 14
		err := db.UpdateProfile(ctx, "u1", ProfileUpdate{
			RevisionCycleDays: &cycle,
			SurahProgress:     map[int]domain.Progress{1: {Strength: domain.Strong}},
		})
		require.NoError(t, err)

		got, err := db.GetProfile(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 14, got.RevisionCycleDays)
		assert.Equal(t, "Aisha B", got.DisplayName)
		assert.Equal(t, []int{30}, got.MemorizedJuz)
		assert.Equal(t, map[int]domain.Progress{1: {Strength: domain.Strong}}, got.SurahProgress)
	})

	t.Run("empty slice clears", func(t *testing.T) {
		require.NoError(t, db.UpdateProfile(ctx, "u1", ProfileUpdate{MemorizedJuz: []int{}}))
		got, err := db.GetProfile(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, got.MemorizedJuz)
	})

	t.Run("update missing profile", func(t *testing.T) {
		name := "x"
		err := db.UpdateProfile(ctx, "u2", ProfileUpdate{DisplayName: &name})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list ids", func(t *testing.T) {
		require.NoError(t, db.PutProfile(ctx, &domain.Profile{UserID: "u2", RevisionCycleDays: 7}))
		ids, err := db.ListProfileIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"u1", "u2"}, ids)
	})

	t.Run("nil maps are stored as empty", func(t *testing.T) {
		got, err := db.GetProfile(ctx, "u2")
		require.NoError(t, err)
		assert.Empty(t, got.JuzProgress)
		assert.Empty(t, got.MemorizedJuz)
	})
}

func TestProfileUpdateEmpty(t *testing.T) {
	assert.True(t, ProfileUpdate{}.Empty())
	assert.False(t, ProfileUpdate{MemorizedJuz: []int{}}.Empty())
}
