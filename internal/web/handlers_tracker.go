package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/conorfennell/murajaah/internal/auth"
	"github.com/conorfennell/murajaah/internal/domain"
	"github.com/conorfennell/murajaah/internal/revision"
	"github.com/conorfennell/murajaah/internal/storage"
	"github.com/conorfennell/murajaah/internal/tracker"
	"github.com/conorfennell/murajaah/internal/validate"
)

const saveFailed = "Your change could not be saved. Please try again."

// user returns the signed-in user. Routes behind auth.RequireUser always
// have one.
func user(r *http.Request) *domain.User {
	u, _ := auth.UserFrom(r.Context())
	return u
}

// loadProfile fetches the profile of u. Users who have not finished setup
// are sent to /setup and false is returned.
func (s *Server) loadProfile(w http.ResponseWriter, r *http.Request, u *domain.User) (domain.Profile, bool) {
	p, err := s.tracker.Profile(r.Context(), u.ID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && !p.SetupCompleted) {
		redirect(w, r, "/setup")
		return domain.Profile{}, false
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Error loading profile", "user_id", u.ID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return domain.Profile{}, false
	}
	return p, true
}

// handleGetSetup renders the first-run page.
func (s *Server) handleGetSetup(w http.ResponseWriter, r *http.Request) {
	u := user(r)
	p, err := s.tracker.Profile(r.Context(), u.ID)
	switch {
	case err == nil && p.SetupCompleted:
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		slog.ErrorContext(r.Context(), "Error loading profile", "user_id", u.ID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	form := tracker.BuildProfileForm(u.DisplayName, nil, domain.DefaultRevisionCycleDays)
	s.render(w, r, http.StatusOK, "setup", "Set up", form)
}

// handlePostSetup writes the first profile.
func (s *Server) handlePostSetup(w http.ResponseWriter, r *http.Request) {
	u := user(r)
	if p, err := s.tracker.Profile(r.Context(), u.ID); err == nil && p.SetupCompleted {
		redirect(w, r, "/dashboard")
		return
	}

	in, fe := profileInput(r)
	if fe == nil {
		_, err := s.tracker.Setup(r.Context(), u.ID, u.DisplayName, tracker.SetupInput(in))
		if err == nil {
			redirect(w, r, "/dashboard")
			return
		}
		var ok bool
		if fe, ok = validate.Fields(err); !ok {
			form := tracker.BuildProfileForm(u.DisplayName, in.MemorizedJuz, in.RevisionCycleDays)
			form.Error = saveFailed
			s.render(w, r, inlineStatus(r, http.StatusInternalServerError), "setup", "Set up", form)
			return
		}
	}

	form := tracker.BuildProfileForm(u.DisplayName, in.MemorizedJuz, in.RevisionCycleDays)
	form.Errors = fe
	s.render(w, r, inlineStatus(r, http.StatusBadRequest), "setup", "Set up", form)
}

// handleDashboard renders the Juz or Surah list.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadProfile(w, r, user(r))
	if !ok {
		return
	}
	q := r.URL.Query()
	d := s.tracker.Rules().BuildDashboard(p, tracker.ParseViewMode(q.Get("view")), revision.ParseSortKey(q.Get("sort")), s.tracker.Now())
	s.render(w, r, http.StatusOK, "dashboard", "Dashboard", d)
}

// handleJuzDetail renders one memorized Juz with its Surahs.
func (s *Server) handleJuzDetail(w http.ResponseWriter, r *http.Request) {
	juz, err := urlInt(r, "n")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	p, ok := s.loadProfile(w, r, user(r))
	if !ok {
		return
	}
	d, err := s.tracker.Rules().BuildJuzDetail(p, juz, revision.ParseSortKey(r.URL.Query().Get("sort")), s.tracker.Now())
	if err != nil {
		http.NotFound(w, r)
		return
	}
	s.render(w, r, http.StatusOK, "juz", "Juz "+strconv.Itoa(juz), d)
}

type action func(ctx context.Context, userID string, n int) (domain.Profile, error)

func (s *Server) handleReviseJuz(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, s.tracker.MarkJuzRevised)
}

func (s *Server) handleReviseSurah(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, s.tracker.MarkSurahRevised)
}

func (s *Server) handleJuzStrength(w http.ResponseWriter, r *http.Request) {
	strength, ok := strengthInput(w, r)
	if !ok {
		return
	}
	s.runAction(w, r, func(ctx context.Context, userID string, n int) (domain.Profile, error) {
		return s.tracker.SetJuzStrength(ctx, userID, n, strength)
	})
}

func (s *Server) handleSurahStrength(w http.ResponseWriter, r *http.Request) {
	strength, ok := strengthInput(w, r)
	if !ok {
		return
	}
	s.runAction(w, r, func(ctx context.Context, userID string, n int) (domain.Profile, error) {
		return s.tracker.SetSurahStrength(ctx, userID, n, strength)
	})
}

// strengthInput reads the optional strength field. An empty value asks for
// the next strength in the rotation.
func strengthInput(w http.ResponseWriter, r *http.Request) (domain.Strength, bool) {
	v := r.PostFormValue("strength")
	if v == "" {
		return "", true
	}
	strength, err := domain.ParseStrength(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return strength, true
}

// runAction applies a revision or strength action to the unit in the URL
// and shows the page the action was sent from. After a failed write the
// page shows the state from before the action.
func (s *Server) runAction(w http.ResponseWriter, r *http.Request, act action) {
	n, err := urlInt(r, "n")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	u := user(r)

	p, err := act(r.Context(), u.ID, n)
	switch {
	case err == nil:
		if !isHTMX(r) {
			http.Redirect(w, r, returnPath(r), http.StatusSeeOther)
			return
		}
		s.renderAfterAction(w, r, p, http.StatusOK, "")
	case errors.Is(err, tracker.ErrWriteFailed):
		s.renderAfterAction(w, r, p, inlineStatus(r, http.StatusInternalServerError), saveFailed)
	case errors.Is(err, storage.ErrNotFound):
		redirect(w, r, "/setup")
	case errors.Is(err, tracker.ErrUnknownUnit), errors.Is(err, tracker.ErrNotMemorized):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		slog.ErrorContext(r.Context(), "Error applying action", "path", r.URL.Path, "user_id", u.ID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// renderAfterAction re-renders the dashboard, or the Juz page when the
// form carried in_juz.
func (s *Server) renderAfterAction(w http.ResponseWriter, r *http.Request, p domain.Profile, status int, errMsg string) {
	rules := s.tracker.Rules()
	now := s.tracker.Now()
	key := revision.ParseSortKey(r.PostFormValue("sort"))

	if juz, err := strconv.Atoi(r.PostFormValue("in_juz")); err == nil && juz > 0 {
		if d, err := rules.BuildJuzDetail(p, juz, key, now); err == nil {
			d.Error = errMsg
			s.render(w, r, status, "juz", "Juz "+strconv.Itoa(juz), d)
			return
		}
	}

	d := rules.BuildDashboard(p, tracker.ParseViewMode(r.PostFormValue("view")), key, now)
	d.Error = errMsg
	s.render(w, r, status, "dashboard", "Dashboard", d)
}

// returnPath is where a plain form post goes back to.
func returnPath(r *http.Request) string {
	q := url.Values{}
	if v := r.PostFormValue("sort"); v != "" {
		q.Set("sort", string(revision.ParseSortKey(v)))
	}
	path := "/dashboard"
	if juz, err := strconv.Atoi(r.PostFormValue("in_juz")); err == nil && juz > 0 {
		path = "/juz/" + strconv.Itoa(juz)
	} else if v := r.PostFormValue("view"); v != "" {
		q.Set("view", string(tracker.ParseViewMode(v)))
	}
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

// handleGetProfile renders the memorized Juz and cycle editor.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadProfile(w, r, user(r))
	if !ok {
		return
	}
	form := tracker.BuildProfileForm(p.DisplayName, p.MemorizedJuz, p.RevisionCycleDays)
	s.render(w, r, http.StatusOK, "profile", "Profile", form)
}

// handlePostProfile saves the memorized Juz and cycle.
func (s *Server) handlePostProfile(w http.ResponseWriter, r *http.Request) {
	u := user(r)
	in, fe := profileInput(r)
	if fe != nil {
		form := tracker.BuildProfileForm(u.DisplayName, in.MemorizedJuz, in.RevisionCycleDays)
		form.Errors = fe
		s.render(w, r, inlineStatus(r, http.StatusBadRequest), "profile", "Profile", form)
		return
	}

	p, err := s.tracker.UpdateMemorized(r.Context(), u.ID, in)
	if err == nil {
		form := tracker.BuildProfileForm(p.DisplayName, p.MemorizedJuz, p.RevisionCycleDays)
		form.Success = "Profile saved."
		s.render(w, r, http.StatusOK, "profile", "Profile", form)
		return
	}

	if fe, ok := validate.Fields(err); ok {
		form := tracker.BuildProfileForm(p.DisplayName, in.MemorizedJuz, in.RevisionCycleDays)
		form.Errors = fe
		s.render(w, r, inlineStatus(r, http.StatusBadRequest), "profile", "Profile", form)
		return
	}
	if errors.Is(err, storage.ErrNotFound) {
		redirect(w, r, "/setup")
		return
	}
	if !errors.Is(err, tracker.ErrWriteFailed) {
		slog.ErrorContext(r.Context(), "Error updating profile", "user_id", u.ID, "error", err)
	}
	form := tracker.BuildProfileForm(p.DisplayName, p.MemorizedJuz, p.RevisionCycleDays)
	form.Error = saveFailed
	s.render(w, r, inlineStatus(r, http.StatusInternalServerError), "profile", "Profile", form)
}

// handleGetSettings renders the preferences and account page.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	u := user(r)
	p, ok := s.loadProfile(w, r, u)
	if !ok {
		return
	}
	s.render(w, r, http.StatusOK, "settings", "Settings", tracker.BuildSettingsForm(*u, p.Settings))
}

// handlePostSettings saves the display preferences.
func (s *Server) handlePostSettings(w http.ResponseWriter, r *http.Request) {
	u := user(r)
	in := settingsInput(r)
	p, err := s.tracker.UpdateSettings(r.Context(), u.ID, in)
	settings := p.Settings
	if _, ok := validate.Fields(err); ok {
		settings = in
	}
	s.renderSettings(w, r, *u, settings, err, "Settings saved.")
}

// handlePostAccount renames the account and keeps the profile name in step.
func (s *Server) handlePostAccount(w http.ResponseWriter, r *http.Request) {
	u := *user(r)
	name := strings.TrimSpace(r.PostFormValue("name"))

	p, ok := s.loadProfile(w, r, &u)
	if !ok {
		return
	}
	if err := s.auth.ChangeDisplayName(r.Context(), u.ID, name); err != nil {
		s.renderSettings(w, r, u, p.Settings, err, "")
		return
	}
	u.DisplayName = name
	p, err := s.tracker.Rename(r.Context(), u.ID, name)
	s.renderSettings(w, r, u, p.Settings, err, "Name updated.")
}

// handlePostPassword changes the password.
func (s *Server) handlePostPassword(w http.ResponseWriter, r *http.Request) {
	u := user(r)
	p, ok := s.loadProfile(w, r, u)
	if !ok {
		return
	}
	err := s.auth.ChangePassword(r.Context(), u.ID, auth.PasswordChange{
		Current: r.PostFormValue("current_password"),
		New:     r.PostFormValue("new_password"),
	})
	if errors.Is(err, auth.ErrInvalidCredentials) {
		err = validate.FieldErrors{"current_password": "Current password is incorrect."}
	}
	s.renderSettings(w, r, *u, p.Settings, err, "Password changed.")
}

// handlePostEmail moves the account to a new sign-in email.
func (s *Server) handlePostEmail(w http.ResponseWriter, r *http.Request) {
	u := *user(r)
	p, ok := s.loadProfile(w, r, &u)
	if !ok {
		return
	}
	req := auth.EmailChange{
		Email:   r.PostFormValue("email"),
		Current: r.PostFormValue("email_password"),
	}
	err := s.auth.ChangeEmail(r.Context(), u.ID, req)
	switch {
	case err == nil:
		u.Email = strings.ToLower(strings.TrimSpace(req.Email))
	case errors.Is(err, auth.ErrInvalidCredentials):
		err = validate.FieldErrors{"email_password": "Current password is incorrect."}
	case errors.Is(err, auth.ErrEmailTaken):
		err = validate.FieldErrors{"email": err.Error()}
	}
	s.renderSettings(w, r, u, p.Settings, err, "Email updated.")
}

// renderSettings shows the settings page after a save, with the outcome.
func (s *Server) renderSettings(w http.ResponseWriter, r *http.Request, u domain.User, settings domain.Settings, err error, success string) {
	if errors.Is(err, storage.ErrNotFound) {
		redirect(w, r, "/setup")
		return
	}
	if settings == (domain.Settings{}) {
		settings = domain.DefaultSettings()
	}
	form := tracker.BuildSettingsForm(u, settings)

	status := http.StatusOK
	switch fe, ok := validate.Fields(err); {
	case err == nil:
		form.Success = success
	case ok:
		form.Errors = fe
		status = http.StatusBadRequest
	default:
		if !errors.Is(err, tracker.ErrWriteFailed) {
			slog.ErrorContext(r.Context(), "Error saving settings", "user_id", u.ID, "error", err)
		}
		form.Error = saveFailed
		status = http.StatusInternalServerError
	}
	s.render(w, r, inlineStatus(r, status), "settings", "Settings", form)
}
