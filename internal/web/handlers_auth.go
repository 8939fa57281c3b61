package web

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/conorfennell/murajaah/internal/auth"
	"github.com/conorfennell/murajaah/internal/validate"
)

// authForm is the view model of the sign in and sign up pages. The
// password is never echoed back.
type authForm struct {
	Name    string
	Email   string
	Terms   bool
	Privacy bool
	Errors  validate.FieldErrors
	Error   string
}

const genericError = "Something went wrong. Please try again."

func (s *Server) handleGetSignIn(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.UserFrom(r.Context()); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "signin", "Sign in", authForm{})
}

func (s *Server) handlePostSignIn(w http.ResponseWriter, r *http.Request) {
	form := authForm{Email: r.PostFormValue("email")}

	u, err := s.auth.SignIn(r.Context(), form.Email, r.PostFormValue("password"))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			form.Error = "Incorrect email or password."
			s.render(w, r, inlineStatus(r, http.StatusUnauthorized), "signin", "Sign in", form)
			return
		}
		slog.ErrorContext(r.Context(), "Sign in failed", "error", err)
		form.Error = genericError
		s.render(w, r, inlineStatus(r, http.StatusInternalServerError), "signin", "Sign in", form)
		return
	}

	if err := s.auth.SetSessionCookie(w, u); err != nil {
		slog.ErrorContext(r.Context(), "Failed to start session", "user_id", u.ID, "error", err)
		form.Error = genericError
		s.render(w, r, inlineStatus(r, http.StatusInternalServerError), "signin", "Sign in", form)
		return
	}
	redirect(w, r, "/")
}

func (s *Server) handleGetSignUp(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.UserFrom(r.Context()); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "signup", "Create account", authForm{})
}

func (s *Server) handlePostSignUp(w http.ResponseWriter, r *http.Request) {
	req := auth.SignUpRequest{
		DisplayName:   r.PostFormValue("name"),
		Email:         r.PostFormValue("email"),
		Password:      r.PostFormValue("password"),
		AcceptTerms:   formBool(r, "terms"),
		AcceptPrivacy: formBool(r, "privacy"),
	}
	form := authForm{Name: req.DisplayName, Email: req.Email, Terms: req.AcceptTerms, Privacy: req.AcceptPrivacy}

	u, err := s.auth.SignUp(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if fe, ok := validate.Fields(err); ok {
			form.Errors = fe
			status = http.StatusBadRequest
		} else if errors.Is(err, auth.ErrEmailTaken) {
			form.Errors = validate.FieldErrors{"email": err.Error()}
			status = http.StatusConflict
		} else {
			slog.ErrorContext(r.Context(), "Sign up failed", "error", err)
			form.Error = genericError
		}
		s.render(w, r, inlineStatus(r, status), "signup", "Create account", form)
		return
	}

	if err := s.auth.SetSessionCookie(w, u); err != nil {
		slog.ErrorContext(r.Context(), "Failed to start session", "user_id", u.ID, "error", err)
		redirect(w, r, auth.SignInPath)
		return
	}
	redirect(w, r, "/setup")
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	s.auth.SignOut(w)
	redirect(w, r, auth.SignInPath)
}
