package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/conorfennell/murajaah/internal/domain"
	"github.com/conorfennell/murajaah/internal/storage"
)

// SignInPath is where anonymous requests to protected pages are sent.
const SignInPath = "/auth/signin"

type userCtxKey struct{}

// WithUser returns a copy of ctx carrying u as the signed-in user.
func WithUser(ctx context.Context, u *domain.User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFrom returns the signed-in user, if any.
func UserFrom(ctx context.Context) (*domain.User, bool) {
	u, ok := ctx.Value(userCtxKey{}).(*domain.User)
	return u, ok && u != nil
}

// SetSessionCookie starts a session for u on the response.
func (s *Service) SetSessionCookie(w http.ResponseWriter, u *domain.User) error {
	token, expires, err := s.IssueSession(u)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// SignOut ends the session by expiring the cookie.
func (s *Service) SignOut(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Middleware observes the session cookie and places the signed-in user in
// the request context. Requests without a valid session pass through
// anonymously; a stale cookie is cleared.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(s.cfg.CookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		userID, err := s.ParseSession(cookie.Value)
		if err != nil {
			slog.DebugContext(r.Context(), "Dropping invalid session", "error", err)
			s.SignOut(w)
			next.ServeHTTP(w, r)
			return
		}

		u, err := s.users.GetUserByID(r.Context(), userID)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				slog.ErrorContext(r.Context(), "Failed to load session user", "user_id", userID, "error", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			s.SignOut(w)
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

// RequireUser redirects anonymous requests to the sign in page. HTMX
// requests are told to redirect with the HX-Redirect header.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFrom(r.Context()); !ok {
			if r.Header.Get("HX-Request") == "true" {
				w.Header().Set("HX-Redirect", SignInPath)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, SignInPath, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}
