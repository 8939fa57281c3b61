package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/conorfennell/murajaah/internal/auth"
	"github.com/conorfennell/murajaah/internal/domain"
	"github.com/conorfennell/murajaah/internal/tracker"
)

//go:embed all:static
var staticFiles embed.FS

//go:embed all:templates
var templateFiles embed.FS

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tune the router.
type Options struct {
	Logger         *slog.Logger
	RequestTimeout time.Duration
	AllowedOrigins []string
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	auth      *auth.Service
	tracker   *tracker.Service
	health    Pinger
	router    chi.Router
	templates *template.Template
	opts      Options
}

// NewServer creates and configures a new server.
func NewServer(authSvc *auth.Service, trackerSvc *tracker.Service, health Pinger, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	tpl, err := template.New("").Funcs(funcs).ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	s := &Server{
		auth:      authSvc,
		tracker:   trackerSvc,
		health:    health,
		router:    chi.NewRouter(),
		templates: tpl,
		opts:      opts,
	}
	if err := s.routes(); err != nil {
		return nil, err
	}
	return s, nil
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() error {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return fmt.Errorf("failed to create sub-filesystem for static assets: %w", err)
	}
	fileServer := http.FileServer(http.FS(staticFS))

	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(NewStructuredLogger(s.opts.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(s.opts.RequestTimeout))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/static/*", http.StripPrefix("/static/", fileServer))

	r.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Get("/", s.handleIndex)
		r.Get("/terms", s.handleStatic("terms", "Terms of Service"))
		r.Get("/privacy", s.handleStatic("privacy", "Privacy Policy"))

		r.Route("/auth", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, auth.SignInPath, http.StatusSeeOther)
			})
			r.Get("/signin", s.handleGetSignIn)
			r.Post("/signin", s.handlePostSignIn)
			r.Get("/signup", s.handleGetSignUp)
			r.Post("/signup", s.handlePostSignUp)
			r.Post("/signout", s.handleSignOut)
		})

		// HTMX-based pages
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireUser)

			r.Get("/setup", s.handleGetSetup)
			r.Post("/setup", s.handlePostSetup)
			r.Get("/dashboard", s.handleDashboard)
			r.Get("/juz/{n}", s.handleJuzDetail)
			r.Post("/juz/{n}/revise", s.handleReviseJuz)
			r.Post("/juz/{n}/strength", s.handleJuzStrength)
			r.Post("/surah/{n}/revise", s.handleReviseSurah)
			r.Post("/surah/{n}/strength", s.handleSurahStrength)
			r.Get("/profile", s.handleGetProfile)
			r.Post("/profile", s.handlePostProfile)
			r.Get("/settings", s.handleGetSettings)
			r.Post("/settings", s.handlePostSettings)
			r.Post("/settings/account", s.handlePostAccount)
			r.Post("/settings/password", s.handlePostPassword)
			r.Post("/settings/email", s.handlePostEmail)
		})

		r.Route("/api", func(r chi.Router) {
			r.Use(cors.New(cors.Options{
				AllowedOrigins:   s.opts.AllowedOrigins,
				AllowedMethods:   []string{http.MethodGet},
				AllowedHeaders:   []string{"If-None-Match"},
				ExposedHeaders:   []string{"ETag"},
				AllowCredentials: true,
			}).Handler)
			r.Use(requireAPIUser)

			r.Get("/profile", s.handleAPIProfile)
			r.Get("/dashboard", s.handleAPIDashboard)
		})
	})
	return nil
}

// handleIndex sends visitors to where they can continue.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.UserFrom(r.Context())
	if !ok {
		http.Redirect(w, r, auth.SignInPath, http.StatusSeeOther)
		return
	}
	if _, ok := s.loadProfile(w, r, u); !ok {
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// handleStatic serves a page that has no data of its own.
func (s *Server) handleStatic(name, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, r, http.StatusOK, name, title, nil)
	}
}

// handleHealth checks the store.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.health.Ping(r.Context()); err != nil {
		slog.ErrorContext(r.Context(), "Health check failed", "error", err)
		http.Error(w, "Health check failed", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("OK"))
}

// page wraps a view model with what the layout needs.
type page struct {
	Title string
	User  *domain.User
	Theme string
	Lang  string
	Sound bool
	Data  any
}

// render writes the named template. HTMX requests get only the fragment;
// other requests get it inside the layout.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)

	if isHTMX(r) {
		if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
			slog.ErrorContext(r.Context(), "Error rendering template", "template", name, "error", err)
		}
		return
	}

	p := page{Title: title, Data: data, Theme: "system", Lang: "en", Sound: true}
	if u, ok := auth.UserFrom(r.Context()); ok {
		p.User = u
	}
	if v, ok := data.(interface{ Prefs() domain.Settings }); ok {
		p.Theme = v.Prefs().Theme
		p.Lang = v.Prefs().Language
		p.Sound = v.Prefs().SoundEnabled
	}
	if err := s.templates.ExecuteTemplate(w, name+"_page", p); err != nil {
		slog.ErrorContext(r.Context(), "Error rendering template", "template", name+"_page", "error", err)
	}
}

// redirect sends the client elsewhere after a successful form post.
func redirect(w http.ResponseWriter, r *http.Request, to string) {
	if isHTMX(r) {
		w.Header().Set("HX-Redirect", to)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// inlineStatus is the status for a page re-rendered with an inline error.
// HTMX only swaps successful responses, so fragments are sent with 200.
func inlineStatus(r *http.Request, status int) int {
	if isHTMX(r) {
		return http.StatusOK
	}
	return status
}
