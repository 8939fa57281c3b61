package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/conorfennell/murajaah/internal/auth"
	"github.com/conorfennell/murajaah/internal/digest"
	"github.com/conorfennell/murajaah/internal/domain"
	"github.com/conorfennell/murajaah/internal/revision"
	"github.com/conorfennell/murajaah/internal/storage"
	"github.com/conorfennell/murajaah/internal/tracker"
)

type apiError struct {
	Error string `json:"error"`
}

type apiItem struct {
	Kind          string          `json:"kind"`
	Number        int             `json:"number"`
	Title         string          `json:"title"`
	LastRevised   *time.Time      `json:"lastRevised"`
	Strength      domain.Strength `json:"strength"`
	DaysSince     *int            `json:"daysSince"`
	Freshness     int             `json:"freshness"`
	Tier          revision.Tier   `json:"tier"`
	Status        revision.Status `json:"status"`
	NeedsRevision bool            `json:"needsRevision"`
}

type apiDashboard struct {
	View      tracker.ViewMode `json:"view"`
	Sort      revision.SortKey `json:"sort"`
	CycleDays int              `json:"revisionCycle"`
	Memorized int              `json:"memorizedCount"`
	TotalJuz  int              `json:"totalJuz"`
	Due       int              `json:"due"`
	Relaxed   int              `json:"relaxed"`
	Items     []apiItem        `json:"items"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(r.Context(), "Error marshaling JSON response", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"internal server error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// requireAPIUser answers anonymous API calls with 401 instead of a redirect.
func requireAPIUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.UserFrom(r.Context()); !ok {
			respondJSON(w, r, http.StatusUnauthorized, apiError{Error: "not signed in"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// apiProfile loads the profile for an API call, answering the error itself.
func (s *Server) apiProfile(w http.ResponseWriter, r *http.Request) (domain.Profile, bool) {
	u := user(r)
	p, err := s.tracker.Profile(r.Context(), u.ID)
	if errors.Is(err, storage.ErrNotFound) {
		respondJSON(w, r, http.StatusNotFound, apiError{Error: "profile not set up"})
		return domain.Profile{}, false
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Error loading profile", "user_id", u.ID, "error", err)
		respondJSON(w, r, http.StatusInternalServerError, apiError{Error: "internal server error"})
		return domain.Profile{}, false
	}
	return p, true
}

// handleAPIProfile returns the profile document. The ETag is the profile
// fingerprint, so a client holding the current version gets 304.
func (s *Server) handleAPIProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := s.apiProfile(w, r)
	if !ok {
		return
	}
	etag := digest.ETag(p)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, no-cache")
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	respondJSON(w, r, http.StatusOK, p)
}

// etagMatches reports whether an If-None-Match header names etag. The
// comparison is weak, as RFC 9110 asks for GET requests.
func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == strings.TrimPrefix(etag, "W/") {
			return true
		}
	}
	return false
}

// handleAPIDashboard returns the computed dashboard.
func (s *Server) handleAPIDashboard(w http.ResponseWriter, r *http.Request) {
	p, ok := s.apiProfile(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	d := s.tracker.Rules().BuildDashboard(p, tracker.ParseViewMode(q.Get("view")), revision.ParseSortKey(q.Get("sort")), s.tracker.Now())

	out := apiDashboard{
		View:      d.View,
		Sort:      d.Sort,
		CycleDays: d.CycleDays,
		Memorized: d.MemorizedCount,
		TotalJuz:  d.TotalJuz,
		Due:       d.Stats.Due,
		Relaxed:   d.Stats.Relaxed,
		Items:     make([]apiItem, 0, len(d.Items)),
	}
	for _, it := range d.Items {
		item := apiItem{
			Kind:          string(it.Kind),
			Number:        it.Number,
			Title:         it.Title,
			LastRevised:   it.Progress.LastRevised,
			Strength:      it.Progress.Strength,
			Freshness:     it.Percent,
			Tier:          it.Tier,
			Status:        it.Status,
			NeedsRevision: it.Due,
		}
		if it.Revised {
			days := it.DaysSince
			item.DaysSince = &days
		}
		out.Items = append(out.Items, item)
	}
	respondJSON(w, r, http.StatusOK, out)
}
