package digest

import (
	"crypto/sha256"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/conorfennell/murajaah/internal/domain"
)

// Normalize renders the stored fields of a profile as one line per fact in
// a fixed order, so equal profiles always produce the same text regardless
// of map iteration order or time zones.
func Normalize(p domain.Profile) string {
	var lines []string
	lines = append(lines,
		"user:"+p.UserID,
		"name:"+strings.TrimSpace(p.DisplayName),
		"cycle:"+strconv.Itoa(p.RevisionCycleDays),
		"setup:"+strconv.FormatBool(p.SetupCompleted),
		fmt.Sprintf("settings:%s|%s|%t|%s", p.Settings.Language, p.Settings.DateFormat, p.Settings.SoundEnabled, p.Settings.Theme),
	)

	juz := slices.Clone(p.MemorizedJuz)
	slices.Sort(juz)
	for _, j := range juz {
		lines = append(lines, "memorized:"+strconv.Itoa(j))
	}

	lines = append(lines, progressLines("juz", p.JuzProgress)...)
	lines = append(lines, progressLines("surah", p.SurahProgress)...)

	return strings.Join(lines, "\n")
}

func progressLines(kind string, m map[int]domain.Progress) []string {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		pr := m[k]
		last := "-"
		if pr.LastRevised != nil {
			last = pr.LastRevised.UTC().Format(time.RFC3339Nano)
		}
		lines = append(lines, fmt.Sprintf("%s:%d:%s:%s", kind, k, pr.Strength, last))
	}
	return lines
}

// Hash takes a profile, normalizes it, and returns its SHA-256 hash as a hex string.
func Hash(p domain.Profile) string {
	normalized := Normalize(p)
	hashBytes := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", hashBytes)
}

// ETag quotes the profile hash for use in an HTTP ETag header.
func ETag(p domain.Profile) string {
	return `"` + Hash(p) + `"`
}
