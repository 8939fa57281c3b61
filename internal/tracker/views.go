package tracker

import (
	"fmt"
	"time"

	"github.com/conorfennell/murajaah/internal/calendar"
	"github.com/conorfennell/murajaah/internal/domain"
	"github.com/conorfennell/murajaah/internal/revision"
	"github.com/conorfennell/murajaah/internal/validate"
)

// ViewMode selects whether the dashboard lists Juz or Surahs.
type ViewMode string

const (
	ViewJuz   ViewMode = "juz"
	ViewSurah ViewMode = "surah"
)

// ParseViewMode falls back to ViewJuz for unknown values.
func ParseViewMode(v string) ViewMode {
	if ViewMode(v) == ViewSurah {
		return ViewSurah
	}
	return ViewJuz
}

// CycleOptions are the revision cycles offered as presets.
var CycleOptions = []int{3, 5, 7, 10, 14, 30}

var quotes = []string{
	"The Prophet ﷺ said: \"Be diligent in maintaining your connection with this Qur'an, for by the One in Whose hand is the soul of Muhammad, it escapes more easily than a camel from its tether.\"",
	"\"And We have certainly made the Qur'an easy for remembrance, so is there any who will remember?\" (Al-Qamar 54:17)",
	"The Prophet ﷺ said: \"The best of you are those who learn the Qur'an and teach it.\"",
	"The Prophet ﷺ said: \"Read the Qur'an, for it will come as an intercessor for its companions on the Day of Resurrection.\"",
}

// QuoteFor picks the motivational quote shown on a given day.
func QuoteFor(now time.Time) string {
	return quotes[now.YearDay()%len(quotes)]
}

// Item is one Juz or Surah card.
type Item struct {
	Kind         ViewMode
	Number       int
	Title        string
	Progress     domain.Progress
	Revised      bool
	DaysSince    int
	LastRevised  string
	Percent      int
	Tier         revision.Tier
	Status       revision.Status
	Due          bool
	NextStrength domain.Strength
}

// Ago renders the days since the last revision as a short phrase.
func (it Item) Ago() string {
	switch {
	case !it.Revised:
		return "Not started"
	case it.DaysSince == 0:
		return "Revised today"
	case it.DaysSince == 1:
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", it.DaysSince)
}

// Dashboard is the view model of the dashboard page.
type Dashboard struct {
	DisplayName    string
	View           ViewMode
	Sort           revision.SortKey
	Items          []Item
	Stats          revision.Summary
	MemorizedCount int
	TotalJuz       int
	CycleDays      int
	Quote          string
	Settings       domain.Settings
	Error          string
}

// JuzDetail is the view model of a single Juz and its Surahs.
type JuzDetail struct {
	Juz       Item
	Sort      revision.SortKey
	Surahs    []Item
	Stats     revision.Summary
	CycleDays int
	Settings  domain.Settings
	Error     string
}

// JuzOption is one toggle on the setup and profile pages.
type JuzOption struct {
	Number   int
	Selected bool
}

// ProfileForm is the view model of the setup and profile pages.
type ProfileForm struct {
	DisplayName  string
	Juz          []JuzOption
	Count        int
	Total        int
	CycleDays    int
	CycleOptions []int
	Errors       validate.FieldErrors
	Error        string
	Success      string
}

// SettingsForm is the view model of the settings page.
type SettingsForm struct {
	Email       string
	DisplayName string
	Settings    domain.Settings
	Languages   []string
	DateFormats []string
	Themes      []string
	Errors      validate.FieldErrors
	Error       string
	Success     string
}

func (r Rules) item(sched *revision.Schedule, p domain.Profile, kind ViewMode, number int, title string, pr domain.Progress, now time.Time) Item {
	days, revised := sched.DaysSince(pr, now)
	it := Item{
		Kind:         kind,
		Number:       number,
		Title:        title,
		Progress:     pr,
		Revised:      revised,
		DaysSince:    days,
		Percent:      sched.FreshnessPercent(pr, now),
		Status:       sched.StatusOf(pr, now),
		Due:          sched.NeedsRevision(pr, now),
		NextStrength: revision.RotateStrength(pr.Strength),
	}
	it.Tier = revision.TierOf(it.Percent)
	if pr.LastRevised != nil {
		it.LastRevised = calendar.Format(*pr.LastRevised, p.Settings.DateFormat, sched.Location())
	}
	return it
}

// sortedItems orders units with the engine and turns them into cards.
func (r Rules) sortedItems(sched *revision.Schedule, p domain.Profile, kind ViewMode, units []domain.Unit, key revision.SortKey, now time.Time) []Item {
	sorted := sched.Sort(units, key, now)
	items := make([]Item, 0, len(sorted))
	for _, u := range sorted {
		items = append(items, r.item(sched, p, kind, u.Number, r.title(kind, u.Number), u.Progress, now))
	}
	return items
}

func (r Rules) title(kind ViewMode, number int) string {
	if kind == ViewJuz {
		return fmt.Sprintf("Juz %d", number)
	}
	if s, ok := r.Catalog.Surah(number); ok {
		return s.Name
	}
	return fmt.Sprintf("Surah %d", number)
}

// BuildDashboard derives the dashboard from a profile.
func (r Rules) BuildDashboard(p domain.Profile, view ViewMode, key revision.SortKey, now time.Time) Dashboard {
	sched := r.Schedule(p)

	var units []domain.Unit
	if view == ViewSurah {
		for _, s := range r.Catalog.InAnyJuz(p.MemorizedJuz) {
			units = append(units, domain.Unit{Number: s.Number, Progress: p.Surah(s.Number)})
		}
	} else {
		for _, j := range p.MemorizedJuz {
			units = append(units, domain.Unit{Number: j, Progress: p.Juz(j)})
		}
	}

	progress := make([]domain.Progress, 0, len(units))
	for _, u := range units {
		progress = append(progress, u.Progress)
	}

	return Dashboard{
		DisplayName:    p.DisplayName,
		View:           view,
		Sort:           key,
		Items:          r.sortedItems(sched, p, view, units, key, now),
		Stats:          sched.Summarize(progress, now),
		MemorizedCount: len(p.MemorizedJuz),
		TotalJuz:       domain.JuzCount,
		CycleDays:      sched.CycleDays(),
		Quote:          QuoteFor(now),
		Settings:       p.Settings,
	}
}

// BuildJuzDetail derives the page of one memorized Juz.
func (r Rules) BuildJuzDetail(p domain.Profile, juz int, key revision.SortKey, now time.Time) (JuzDetail, error) {
	if err := r.checkJuz(p, juz); err != nil {
		return JuzDetail{}, err
	}
	sched := r.Schedule(p)

	var units []domain.Unit
	var progress []domain.Progress
	for _, s := range r.Catalog.InJuz(juz) {
		pr := p.Surah(s.Number)
		units = append(units, domain.Unit{Number: s.Number, Progress: pr})
		progress = append(progress, pr)
	}

	return JuzDetail{
		Juz:       r.item(sched, p, ViewJuz, juz, r.title(ViewJuz, juz), p.Juz(juz), now),
		Sort:      key,
		Surahs:    r.sortedItems(sched, p, ViewSurah, units, key, now),
		Stats:     sched.Summarize(progress, now),
		CycleDays: sched.CycleDays(),
		Settings:  p.Settings,
	}, nil
}

// BuildProfileForm derives the setup or profile page. Selected lists the
// Juz to show as toggled on.
func BuildProfileForm(displayName string, selected []int, cycleDays int) ProfileForm {
	f := ProfileForm{
		DisplayName:  displayName,
		Total:        domain.JuzCount,
		CycleDays:    cycleDays,
		CycleOptions: CycleOptions,
	}
	for j := 1; j <= domain.JuzCount; j++ {
		on := false
		for _, s := range selected {
			if s == j {
				on = true
				break
			}
		}
		if on {
			f.Count++
		}
		f.Juz = append(f.Juz, JuzOption{Number: j, Selected: on})
	}
	return f
}

// BuildSettingsForm derives the settings page.
func BuildSettingsForm(u domain.User, s domain.Settings) SettingsForm {
	return SettingsForm{
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Settings:    s,
		Languages:   []string{"en", "ar"},
		DateFormats: []string{calendar.Gregorian, calendar.Hijri},
		Themes:      []string{"light", "dark", "system"},
	}
}

// Prefs returns the display preferences the page is rendered with.
func (d Dashboard) Prefs() domain.Settings { return d.Settings }

// Prefs returns the display preferences the page is rendered with.
func (d JuzDetail) Prefs() domain.Settings { return d.Settings }

// Prefs returns the display preferences the page is rendered with.
func (f SettingsForm) Prefs() domain.Settings { return f.Settings }
