package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/medleyhq/medley/lib/auth"
	"github.com/medleyhq/medley/lib/validation"
)

// Accounts serves the login, signup and logout pages of one site. Shop
// and movies share the user table but keep their own pages.
type Accounts struct {
	Users    *auth.Users
	Sessions *auth.Sessions
	// Site selects the layout; Home is where visitors land afterwards.
	Site string
	Home string
	// Prefix is the path the account pages are mounted under.
	Prefix string
}

type signupForm struct {
	Username  string `form:"username" validate:"required,max=150"`
	Email     string `form:"email" validate:"omitempty,email,max=254"`
	Password1 string `form:"password1" validate:"required,min=8,max=72"`
	Password2 string `form:"password2" validate:"required"`
}

const (
	msgUsernameTaken   = "A user with that username already exists."
	msgPasswordTooLong = "Ensure this password has at most 72 bytes."
	msgBadCredentials  = "Invalid username or password."
)

// registerErrorField maps a registration failure the visitor can fix to
// the form field and message to show.
func registerErrorField(err error) (field, message string, ok bool) {
	switch {
	case errors.Is(err, auth.ErrUsernameTaken):
		return "username", msgUsernameTaken, true
	case errors.Is(err, auth.ErrPasswordTooLong):
		return "password1", msgPasswordTooLong, true
	}
	return "", "", false
}

type accountData struct {
	Prefix   string
	Next     string
	Username string
	Email    string
	Errors   map[string]string
}

func (a *Accounts) next(r *http.Request) string {
	next := r.FormValue("next")
	return safeNext(next, a.Home)
}

func (a *Accounts) HandleSignup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.FromContext(r.Context()); ok {
			redirectWithFlash(w, r, a.Home, flashInfo, "You are already logged in.")
			return
		}
		data := accountData{Prefix: a.Prefix, Next: r.FormValue("next")}
		if r.Method != http.MethodPost {
			render(w, r, "account_signup.html", page{Title: "Sign up", Site: a.Site, Data: data})
			return
		}

		in := signupForm{
			Username:  strings.TrimSpace(r.PostFormValue("username")),
			Email:     strings.TrimSpace(r.PostFormValue("email")),
			Password1: r.PostFormValue("password1"),
			Password2: r.PostFormValue("password2"),
		}
		data.Username, data.Email = in.Username, in.Email
		data.Errors = map[string]string{}
		if err := validation.Struct(in); err != nil {
			data.Errors = validation.FieldErrors(err)
		}
		if _, bad := data.Errors["password2"]; !bad && in.Password1 != in.Password2 {
			data.Errors["password2"] = "The two password fields didn't match."
		}
		if len(data.Errors) > 0 {
			render(w, r, "account_signup.html", page{Title: "Sign up", Site: a.Site, Data: data})
			return
		}

		user, err := a.Users.Register(r.Context(), in.Username, in.Email, in.Password1)
		if err != nil {
			if field, msg, ok := registerErrorField(err); ok {
				data.Errors[field] = msg
				render(w, r, "account_signup.html", page{Title: "Sign up", Site: a.Site, Data: data})
				return
			}
			slog.Error("Failed to register user", slog.Any("error", err))
			renderError(w, "We couldn't create your account.", http.StatusInternalServerError)
			return
		}
		if err := a.Sessions.Login(w, user); err != nil {
			slog.Error("Failed to start session", slog.Any("error", err))
			renderError(w, "We couldn't sign you in.", http.StatusInternalServerError)
			return
		}
		redirectWithFlash(w, r, a.next(r), flashSuccess, "Account created successfully!")
	}
}

func (a *Accounts) HandleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.FromContext(r.Context()); ok {
			redirectWithFlash(w, r, a.Home, flashInfo, "You are already logged in.")
			return
		}
		data := accountData{Prefix: a.Prefix, Next: r.FormValue("next")}
		if r.Method != http.MethodPost {
			render(w, r, "account_login.html", page{Title: "Log in", Site: a.Site, Data: data})
			return
		}

		username := strings.TrimSpace(r.PostFormValue("username"))
		data.Username = username
		user, err := a.Users.Authenticate(r.Context(), username, r.PostFormValue("password"))
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidCredentials) {
				slog.Error("Failed to authenticate", slog.Any("error", err))
			}
			p := page{Title: "Log in", Site: a.Site, Data: data, Flashes: []Flash{{Level: flashError, Message: msgBadCredentials}}}
			render(w, r, "account_login.html", p)
			return
		}
		if err := a.Sessions.Login(w, user); err != nil {
			slog.Error("Failed to start session", slog.Any("error", err))
			renderError(w, "We couldn't sign you in.", http.StatusInternalServerError)
			return
		}
		redirectWithFlash(w, r, a.next(r), flashInfo, "You are now logged in as "+user.Username+".")
	}
}

func (a *Accounts) HandleLogout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.Sessions.Logout(w)
		redirectWithFlash(w, r, a.Home, flashInfo, "You have successfully logged out.")
	}
}
