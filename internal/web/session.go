package web

import (
	"errors"
	"net/http"

	"github.com/mcules/predict-server/internal/auth"
)

const sessionCookie = "session"

// requireSession redirects to the login page when no valid session exists.
func (h *Handler) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookie)
		if err != nil {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		u, ok, err := h.Auth.SessionUser(r.Context(), cookie.Value)
		if err != nil || !ok {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), u)))
	}
}

// withSession attaches the session user when present but always proceeds.
// The prediction pipeline makes its own authorization decision from the
// attached user, so an anonymous upload gets the pipeline's authorization
// error instead of a redirect.
func (h *Handler) withSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(sessionCookie); err == nil {
			if u, ok, err := h.Auth.SessionUser(r.Context(), cookie.Value); err == nil && ok {
				r = r.WithContext(auth.WithUser(r.Context(), u))
			}
		}
		next.ServeHTTP(w, r)
	}
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		h.render(w, "signup.html", h.newViewModel(r, "Sign Up"))
		return
	}

	username := r.FormValue("username")
	email := r.FormValue("email")
	password := r.FormValue("password")

	if username == "" || email == "" || password == "" {
		vm := h.newViewModel(r, "Sign Up")
		vm.Error = "Username, email and password are required"
		h.render(w, "signup.html", vm)
		return
	}

	if err := h.Auth.SignUp(r.Context(), username, email, password); err != nil {
		vm := h.newViewModel(r, "Sign Up")
		vm.Error = "Signup failed: " + err.Error()
		h.render(w, "signup.html", vm)
		return
	}

	http.Redirect(w, r, "/login", http.StatusFound)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		h.render(w, "login.html", h.newViewModel(r, "Log In"))
		return
	}

	email := r.FormValue("email")
	password := r.FormValue("password")

	u, err := h.Auth.Login(r.Context(), email, password)
	if err != nil {
		vm := h.newViewModel(r, "Log In")
		if errors.Is(err, auth.ErrInvalidCredentials) {
			vm.Error = "Invalid email or password"
		} else {
			vm.Error = "Login failed: " + err.Error()
		}
		h.render(w, "login.html", vm)
		return
	}

	token, err := h.Auth.StartSession(r.Context(), u.Username)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		MaxAge:   86400,
	})

	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		_ = h.Auth.EndSession(r.Context(), cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}
