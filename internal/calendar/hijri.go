package calendar

import (
	"fmt"
	"time"

	"github.com/hablullah/go-hijri"
)

// Date formats a profile can choose between.
const (
	Gregorian = "gregorian"
	Hijri     = "hijri"
)

var hijriMonths = [12]string{
	"Muharram", "Safar", "Rabi al-Awwal", "Rabi al-Thani",
	"Jumada al-Awwal", "Jumada al-Thani", "Rajab", "Shaban",
	"Ramadan", "Shawwal", "Dhu al-Qadah", "Dhu al-Hijjah",
}

// HijriDate is a date in the Islamic calendar.
type HijriDate struct {
	Year  int
	Month int // 1..12
	Day   int
}

func (h HijriDate) String() string {
	return fmt.Sprintf("%d %s %d AH", h.Day, h.MonthName(), h.Year)
}

// MonthName returns the transliterated month name.
func (h HijriDate) MonthName() string {
	if h.Month < 1 || h.Month > 12 {
		return ""
	}
	return hijriMonths[h.Month-1]
}

// ToHijri converts the calendar date of t, in t's location. Dates the
// Umm al-Qura tables cover (1356 to 1500 AH) use them; anything else
// falls back to the arithmetical calendar.
func ToHijri(t time.Time) (HijriDate, error) {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	if uq, err := hijri.CreateUmmAlQuraDate(day); err == nil {
		return HijriDate{Year: int(uq.Year), Month: int(uq.Month), Day: int(uq.Day)}, nil
	}
	return ToTabularHijri(t)
}

// ToTabularHijri converts the calendar date of t to the arithmetical
// Islamic calendar. It can differ by a day from calendars based on moon
// sighting.
func ToTabularHijri(t time.Time) (HijriDate, error) {
	y, m, d := t.Date()
	h, err := hijri.CreateHijriDate(time.Date(y, m, d, 0, 0, 0, 0, time.UTC), hijri.Default)
	if err != nil {
		return HijriDate{}, fmt.Errorf("convert %s to hijri: %w", t.Format(time.DateOnly), err)
	}
	return HijriDate{Year: int(h.Year), Month: int(h.Month), Day: int(h.Day)}, nil
}

// Format renders the date of t in loc using the named date format.
// Unknown formats, and dates with no Hijri equivalent, fall back to
// Gregorian.
func Format(t time.Time, format string, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	if format == Hijri {
		if h, err := ToHijri(t); err == nil {
			return h.String()
		}
	}
	return t.Format("2 Jan 2006")
}
