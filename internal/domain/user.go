package domain

import "time"

// User is an account known to the identity provider.
type User struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	DisplayName  string    `db:"display_name"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

// Settings are per-user display preferences.
type Settings struct {
	Language     string `json:"language" form:"language" validate:"oneof=en ar"`
	DateFormat   string `json:"dateFormat" form:"date_format" validate:"oneof=gregorian hijri"`
	SoundEnabled bool   `json:"soundEnabled" form:"sound"`
	Theme        string `json:"theme" form:"theme" validate:"oneof=light dark system"`
}

// DefaultSettings returns the preferences a new profile starts with.
func DefaultSettings() Settings {
	return Settings{
		Language:     "en",
		DateFormat:   "gregorian",
		SoundEnabled: true,
		Theme:        "system",
	}
}

// Surah is a chapter of the Quran and the Juz it spans.
type Surah struct {
	Number int
	Name   string
	Juz    []int
}

// InJuz reports whether the Surah has verses in the given Juz.
func (s Surah) InJuz(juz int) bool {
	for _, j := range s.Juz {
		if j == juz {
			return true
		}
	}
	return false
}
