package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/conorfennell/murajaah/internal/domain"
	"github.com/conorfennell/murajaah/internal/tracker"
	"github.com/conorfennell/murajaah/internal/validate"
)

// formBool reads a checkbox. Browsers send "on" for a ticked box and
// nothing otherwise.
func formBool(r *http.Request, key string) bool {
	switch strings.ToLower(r.PostFormValue(key)) {
	case "", "0", "false", "off":
		return false
	}
	return true
}

// urlInt reads a numeric route parameter.
func urlInt(r *http.Request, key string) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

// profileInput decodes the Juz toggles and cycle of the setup and profile
// forms. Values that are not numbers are reported as field errors.
func profileInput(r *http.Request) (tracker.ProfileInput, validate.FieldErrors) {
	if err := r.ParseForm(); err != nil {
		return tracker.ProfileInput{}, validate.FieldErrors{"juz": "the form could not be read"}
	}

	var in tracker.ProfileInput
	fe := validate.FieldErrors{}
	for _, v := range r.PostForm["juz"] {
		n, err := strconv.Atoi(v)
		if err != nil {
			fe["juz"] = fmt.Sprintf("%q is not a Juz number", v)
			continue
		}
		in.MemorizedJuz = append(in.MemorizedJuz, n)
	}

	cycle := strings.TrimSpace(r.PostFormValue("cycle"))
	n, err := strconv.Atoi(cycle)
	if err != nil {
		fe["cycle"] = "cycle must be a whole number of days"
	}
	in.RevisionCycleDays = n

	if len(fe) > 0 {
		return in, fe
	}
	return in, nil
}

// settingsInput decodes the display preferences form.
func settingsInput(r *http.Request) domain.Settings {
	return domain.Settings{
		Language:     r.PostFormValue("language"),
		DateFormat:   r.PostFormValue("date_format"),
		SoundEnabled: formBool(r, "sound"),
		Theme:        r.PostFormValue("theme"),
	}
}
