package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/conorfennell/murajaah/internal/auth"
	"github.com/conorfennell/murajaah/internal/catalog"
	"github.com/conorfennell/murajaah/internal/domain"
	"github.com/conorfennell/murajaah/internal/storage"
	"github.com/conorfennell/murajaah/internal/tracker"
)

type testApp struct {
	t      *testing.T
	srv    *httptest.Server
	client *http.Client
	db     *storage.DB
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	ctx := context.Background()

	db, err := storage.Open(ctx, storage.DriverSQLite, filepath.Join(t.TempDir(), "web.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	authSvc, err := auth.NewService(db, auth.Config{
		Secret:     "test-secret-0123456789",
		SessionTTL: time.Hour,
		BcryptCost: bcrypt.MinCost,
	})
	require.NoError(t, err)
	trackerSvc := tracker.NewService(db, catalog.Default(), time.UTC)

	s, err := NewServer(authSvc, trackerSvc, db, Options{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		AllowedOrigins: []string{"https://app.example"},
	})
	require.NoError(t, err)

	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &testApp{t: t, srv: srv, client: client, db: db}
}

func (a *testApp) do(method, path string, form url.Values, header http.Header) (*http.Response, string) {
	a.t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequest(method, a.srv.URL+path, body)
	require.NoError(a.t, err)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := a.client.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	return resp, string(b)
}

func (a *testApp) get(path string) (*http.Response, string) {
	return a.do(http.MethodGet, path, nil, nil)
}

func (a *testApp) post(path string, form url.Values) (*http.Response, string) {
	return a.do(http.MethodPost, path, form, nil)
}

func (a *testApp) htmxPost(path string, form url.Values) (*http.Response, string) {
	return a.do(http.MethodPost, path, form, http.Header{"Hx-Request": {"true"}})
}

// signUp creates an account and leaves the client signed in.
func (a *testApp) signUp(email string) {
	a.t.Helper()
	resp, _ := a.post("/auth/signup", url.Values{
		"name":     {"Aisha"},
		"email":    {email},
		"password": {"secret123"},
		"terms":    {"on"},
		"privacy":  {"on"},
	})
	require.Equal(a.t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(a.t, "/setup", resp.Header.Get("Location"))
}

// setUp signs up and completes setup with the given Juz.
func (a *testApp) setUp(juz ...string) {
	a.t.Helper()
	a.signUp("aisha@example.com")
	resp, _ := a.post("/setup", url.Values{"juz": juz, "cycle": {"7"}})
	require.Equal(a.t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(a.t, "/dashboard", resp.Header.Get("Location"))
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)
	resp, body := app.get("/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", body)
}

func TestStatic(t *testing.T) {
	app := newTestApp(t)
	resp, body := app.get("/static/style.css")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, ".juz-grid")

	resp, body = app.get("/static/app.js")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "data-juz-select")
}

func TestLegalPages(t *testing.T) {
	app := newTestApp(t)

	resp, body := app.get("/terms")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Terms of Service")

	resp, body = app.get("/privacy")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Privacy Policy")

	_, body = app.get("/auth/signup")
	assert.Contains(t, body, `href="/terms"`)
	assert.Contains(t, body, `href="/privacy"`)
}

func TestAuthFlow(t *testing.T) {
	app := newTestApp(t)

	t.Run("anonymous visitors are sent to sign in", func(t *testing.T) {
		for _, path := range []string{"/", "/dashboard", "/settings", "/auth"} {
			resp, _ := app.get(path)
			assert.Equal(t, http.StatusSeeOther, resp.StatusCode, path)
			assert.Equal(t, auth.SignInPath, resp.Header.Get("Location"), path)
		}
	})

	t.Run("htmx requests get HX-Redirect", func(t *testing.T) {
		resp, _ := app.do(http.MethodGet, "/dashboard", nil, http.Header{"Hx-Request": {"true"}})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, auth.SignInPath, resp.Header.Get("HX-Redirect"))
	})

	t.Run("sign in page renders", func(t *testing.T) {
		resp, body := app.get("/auth/signin")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "<title>Sign in")
		assert.Contains(t, body, `action="/auth/signin"`)
	})

	t.Run("sign up validation", func(t *testing.T) {
		resp, body := app.post("/auth/signup", url.Values{"name": {"Aisha"}, "email": {"not-an-email"}, "password": {"123"}})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body, `class="field-error"`)
		assert.Contains(t, body, `value="not-an-email"`)
		assert.NotContains(t, body, `value="123"`)
	})

	app.signUp("aisha@example.com")

	t.Run("duplicate email", func(t *testing.T) {
		resp, body := app.post("/auth/signup", url.Values{
			"name": {"Other"}, "email": {"AISHA@example.com"}, "password": {"secret123"},
			"terms": {"on"}, "privacy": {"on"},
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Contains(t, body, "already exists")
	})

	t.Run("setup is required before the dashboard", func(t *testing.T) {
		resp, _ := app.get("/dashboard")
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/setup", resp.Header.Get("Location"))

		resp, body := app.get("/setup")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "Assalamu alaikum, Aisha")
		assert.Contains(t, body, `data-juz-select="all"`)
		assert.Contains(t, body, `data-juz-select="none"`)
	})

	t.Run("setup needs at least one juz", func(t *testing.T) {
		resp, body := app.post("/setup", url.Values{"cycle": {"7"}})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body, `class="field-error"`)

		resp, _ = app.post("/setup", url.Values{"juz": {"30"}, "cycle": {"soon"}})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("setup completes", func(t *testing.T) {
		resp, _ := app.post("/setup", url.Values{"juz": {"30", "29"}, "cycle": {"10"}})
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/dashboard", resp.Header.Get("Location"))

		resp, body := app.get("/dashboard")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "Juz 29")
		assert.Contains(t, body, "Juz 30")
		assert.Contains(t, body, "2/30")
		assert.Contains(t, body, "Not started")

		resp, _ = app.get("/setup")
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/dashboard", resp.Header.Get("Location"))
	})

	t.Run("sign out", func(t *testing.T) {
		resp, _ := app.post("/auth/signout", nil)
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		resp, _ = app.get("/dashboard")
		assert.Equal(t, auth.SignInPath, resp.Header.Get("Location"))
	})

	t.Run("sign in", func(t *testing.T) {
		resp, body := app.post("/auth/signin", url.Values{"email": {"aisha@example.com"}, "password": {"wrong-password"}})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Contains(t, body, "Incorrect email or password.")

		resp, _ = app.post("/auth/signin", url.Values{"email": {"aisha@example.com"}, "password": {"secret123"}})
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		resp, _ = app.get("/")
		assert.Equal(t, "/dashboard", resp.Header.Get("Location"))
	})
}

func TestDashboardActions(t *testing.T) {
	app := newTestApp(t)
	app.setUp("29", "30")

	t.Run("surah view", func(t *testing.T) {
		resp, body := app.get("/dashboard?view=surah&sort=number")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "Al-Mulk")
		assert.Contains(t, body, "An-Nas")
	})

	t.Run("htmx fragment", func(t *testing.T) {
		resp, body := app.do(http.MethodGet, "/dashboard", nil, http.Header{"Hx-Request": {"true"}})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, strings.HasPrefix(strings.TrimSpace(body), `<section id="dashboard">`))
		assert.NotContains(t, body, "<html")
	})

	t.Run("mark juz revised", func(t *testing.T) {
		resp, body := app.htmxPost("/juz/30/revise", url.Values{"view": {"juz"}})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "Revised today")
		assert.Contains(t, body, `<section id="dashboard">`)
	})

	t.Run("plain form post redirects back", func(t *testing.T) {
		resp, _ := app.post("/surah/67/revise", url.Values{"view": {"surah"}, "sort": {"strength"}})
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/dashboard?sort=strength&view=surah", resp.Header.Get("Location"))

		resp, _ = app.post("/surah/67/revise", url.Values{"in_juz": {"29"}})
		assert.Equal(t, "/juz/29", resp.Header.Get("Location"))
	})

	t.Run("strength", func(t *testing.T) {
		resp, body := app.htmxPost("/juz/29/strength", url.Values{"in_juz": {"29"}})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, `<section id="juz">`)
		assert.Contains(t, body, "strength-strong")

		resp, _ = app.htmxPost("/surah/78/strength", url.Values{"strength": {"Weak"}})
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		resp, _ = app.htmxPost("/surah/78/strength", url.Values{"strength": {"Superb"}})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("units outside the memorized set", func(t *testing.T) {
		resp, _ := app.htmxPost("/juz/1/revise", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp, _ = app.htmxPost("/surah/200/revise", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp, _ = app.htmxPost("/juz/abc/revise", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp, _ = app.get("/juz/1")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("juz page", func(t *testing.T) {
		resp, body := app.get("/juz/29?sort=lastRevised")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "Al-Mulk")
		assert.Contains(t, body, "Al-Mursalat")
	})
}

func TestProfileAndSettings(t *testing.T) {
	app := newTestApp(t)
	app.setUp("30")

	t.Run("profile", func(t *testing.T) {
		resp, body := app.get("/profile")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "1/30")

		resp, body = app.post("/profile", url.Values{"juz": {"1", "30"}, "cycle": {"14"}})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "Profile saved.")
		assert.Contains(t, body, "2/30")

		resp, _ = app.post("/profile", url.Values{"juz": {"31"}, "cycle": {"14"}})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp, _ = app.post("/profile", url.Values{"juz": {"1"}, "cycle": {"0"}})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("preferences", func(t *testing.T) {
		resp, body := app.post("/settings", url.Values{"language": {"fr"}, "date_format": {"hijri"}, "theme": {"dark"}})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body, `class="field-error"`)
		// the rejected choices are shown back, not the stored ones
		assert.Contains(t, body, `<option value="hijri" selected>`)
		assert.Contains(t, body, `<option value="dark" selected>`)

		resp, body = app.post("/settings", url.Values{"language": {"en"}, "date_format": {"hijri"}, "theme": {"dark"}})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "Settings saved.")
		assert.Contains(t, body, `data-theme="dark"`)
		assert.Contains(t, body, `data-sound="false"`)
	})

	t.Run("account name", func(t *testing.T) {
		resp, body := app.post("/settings/account", url.Values{"name": {"   "}})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body, "cannot be blank")

		resp, body = app.post("/settings/account", url.Values{"name": {"Aisha B"}})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "Name updated.")

		_, body = app.get("/dashboard")
		assert.Contains(t, body, "Assalamu alaikum, Aisha B")
	})

	t.Run("email", func(t *testing.T) {
		require.NoError(t, app.db.CreateUser(context.Background(), &domain.User{
			ID: "other", Email: "fatima@example.com", DisplayName: "Fatima", PasswordHash: "x",
		}))

		resp, body := app.post("/settings/email", url.Values{"email": {"aisha.b@example.com"}, "email_password": {"nope"}})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body, "Current password is incorrect.")

		resp, body = app.post("/settings/email", url.Values{"email": {"fatima@example.com"}, "email_password": {"secret123"}})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body, "already exists")

		resp, body = app.post("/settings/email", url.Values{"email": {"not-an-email"}, "email_password": {"secret123"}})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body, `class="field-error"`)

		resp, body = app.post("/settings/email", url.Values{"email": {"Aisha.B@Example.com"}, "email_password": {"secret123"}})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "Email updated.")
		assert.Contains(t, body, `value="aisha.b@example.com"`)

		u, err := app.db.GetUserByEmail(context.Background(), "aisha.b@example.com")
		require.NoError(t, err)
		assert.Equal(t, "Aisha B", u.DisplayName)
	})

	t.Run("password", func(t *testing.T) {
		resp, body := app.post("/settings/password", url.Values{"current_password": {"nope"}, "new_password": {"newsecret"}})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body, "Current password is incorrect.")

		resp, body = app.post("/settings/password", url.Values{"current_password": {"secret123"}, "new_password": {"newsecret"}})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "Password changed.")
	})
}

func TestAPI(t *testing.T) {
	app := newTestApp(t)

	resp, body := app.get("/api/profile")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"error":"not signed in"}`, body)

	app.signUp("aisha@example.com")
	resp, _ = app.get("/api/profile")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = app.post("/setup", url.Values{"juz": {"30"}, "cycle": {"7"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	t.Run("profile with etag", func(t *testing.T) {
		resp, body := app.get("/api/profile")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		etag := resp.Header.Get("ETag")
		require.NotEmpty(t, etag)

		var doc struct {
			MemorizedJuz  []int `json:"memorizedJuz"`
			RevisionCycle int   `json:"revisionCycle"`
		}
		require.NoError(t, json.Unmarshal([]byte(body), &doc))
		assert.Equal(t, []int{30}, doc.MemorizedJuz)
		assert.Equal(t, 7, doc.RevisionCycle)

		resp, _ = app.do(http.MethodGet, "/api/profile", nil, http.Header{"If-None-Match": {etag}})
		assert.Equal(t, http.StatusNotModified, resp.StatusCode)

		resp, _ = app.do(http.MethodGet, "/api/profile", nil, http.Header{"If-None-Match": {`"stale", W/` + etag}})
		assert.Equal(t, http.StatusNotModified, resp.StatusCode)

		resp, _ = app.post("/juz/30/revise", nil)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)

		resp, _ = app.do(http.MethodGet, "/api/profile", nil, http.Header{"If-None-Match": {etag}})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEqual(t, etag, resp.Header.Get("ETag"))
	})

	t.Run("dashboard", func(t *testing.T) {
		resp, body := app.get("/api/dashboard?view=surah")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var d apiDashboard
		require.NoError(t, json.Unmarshal([]byte(body), &d))
		assert.Equal(t, "surah", string(d.View))
		assert.Len(t, d.Items, 37)
		assert.Equal(t, 0, d.Due)
		require.NotNil(t, d.Items[0].DaysSince)
		assert.Equal(t, 0, *d.Items[0].DaysSince)
	})

	t.Run("cors", func(t *testing.T) {
		resp, _ := app.do(http.MethodGet, "/api/dashboard", nil, http.Header{"Origin": {"https://app.example"}})
		assert.Equal(t, "https://app.example", resp.Header.Get("Access-Control-Allow-Origin"))

		resp, _ = app.do(http.MethodGet, "/api/dashboard", nil, http.Header{"Origin": {"https://evil.example"}})
		assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	})
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("database is down") }

func TestHealthDown(t *testing.T) {
	authSvc, err := auth.NewService(nil, auth.Config{Secret: "test-secret-0123456789"})
	require.NoError(t, err)
	s, err := NewServer(authSvc, nil, downStore{}, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
