package digest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/conorfennell/murajaah/internal/domain"
)

func sampleProfile() domain.Profile {
	revised := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return domain.Profile{
		UserID:            "u1",
		DisplayName:       " Aisha ",
		MemorizedJuz:      []int{30, 29},
		JuzProgress:       map[int]domain.Progress{29: domain.NewProgress(), 30: {LastRevised: &revised, Strength: domain.Strong}},
		SurahProgress:     map[int]domain.Progress{114: {LastRevised: &revised, Strength: domain.Weak}},
		RevisionCycleDays: 7,
		SetupCompleted:    true,
		Settings:          domain.DefaultSettings(),
	}
}

func TestNormalize(t *testing.T) {
	expected := "user:u1\n" +
		"name:Aisha\n" +
		"cycle:7\n" +
		"setup:true\n" +
		"settings:en|gregorian|true|system\n" +
		"memorized:29\n" +
		"memorized:30\n" +
		"juz:29:Medium:-\n" +
		"juz:30:Strong:2024-03-01T09:00:00Z\n" +
		"surah:114:Weak:2024-03-01T09:00:00Z"

	assert.Equal(t, expected, Normalize(sampleProfile()))
}

func TestHash(t *testing.T) {
	t.Run("hash is deterministic", func(t *testing.T) {
		assert.Equal(t, Hash(sampleProfile()), Hash(sampleProfile()))
	})

	t.Run("time zone does not change the hash", func(t *testing.T) {
		p1 := sampleProfile()
		p2 := sampleProfile()
		local := p2.JuzProgress[30].LastRevised.In(time.FixedZone("UTC+3", 3*60*60))
		p2.JuzProgress[30] = domain.Progress{LastRevised: &local, Strength: domain.Strong}
		assert.Equal(t, Hash(p1), Hash(p2))
	})

	t.Run("memorized order does not change the hash", func(t *testing.T) {
		p := sampleProfile()
		p.MemorizedJuz = []int{29, 30}
		assert.Equal(t, Hash(sampleProfile()), Hash(p))
	})

	t.Run("different progress gives a different hash", func(t *testing.T) {
		p := sampleProfile()
		p.SurahProgress[114] = domain.Progress{Strength: domain.Strong}
		assert.NotEqual(t, Hash(sampleProfile()), Hash(p))
	})

	t.Run("etag is quoted", func(t *testing.T) {
		tag := ETag(sampleProfile())
		assert.Equal(t, `"`+Hash(sampleProfile())+`"`, tag)
	})
}
