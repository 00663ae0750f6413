package http

import (
	"errors"
	"net/http"

	applog "encargos/internal/log"
	"encargos/internal/services"
)

type loginPage struct {
	page
	Email  string
	Error  string
	Signup bool
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		if _, err := s.svc.Auth.Authenticate(r.Context(), c.Value); err == nil {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
	}
	s.render(w, r, http.StatusOK, "login.html", loginPage{page: page{Title: "Iniciar sesión"}})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.authenticate(w, r, false)
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	s.authenticate(w, r, true)
}

// authenticate signs the user in or up, sets the session cookie and sends
// them to the orders page. Failures re-render the login page.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request, signup bool) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Solicitud no válida").Write(w)
		return
	}
	email := p.Get("email")
	// Passwords are taken verbatim; sanitizing would change them.
	password := p.formData.Get("password")
	if p.jsonData != nil {
		password, _ = p.jsonData["password"].(string)
	}

	var (
		sess services.Session
		err  error
		op   = "sign_in"
	)
	if signup {
		op = "sign_up"
		sess, err = s.svc.Auth.SignUp(r.Context(), email, password)
	} else {
		sess, err = s.svc.Auth.SignIn(r.Context(), email, password)
	}

	if err != nil {
		view := loginPage{page: page{Title: "Iniciar sesión"}, Email: email, Signup: signup}
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, services.ErrInvalidCredentials):
			view.Error, status = "Correo o contraseña incorrectos", http.StatusUnauthorized
		case errors.Is(err, services.ErrEmailTaken):
			view.Error, status = "Ese correo ya está registrado", http.StatusUnprocessableEntity
		case services.IsValidation(err):
			view.Error, status = err.Error(), http.StatusUnprocessableEntity
		default:
			s.events.LogError(r.Context(), "Authentication failed", err, applog.ComponentAuth, op, nil)
			view.Error = "No se pudo iniciar sesión, intenta de nuevo"
		}
		s.render(w, r, status, "login.html", view)
		return
	}

	applog.FromContext(r.Context()).WithComponent(applog.ComponentAuth).InfoContext(r.Context(), "Session started",
		applog.FieldOwner, string(sess.User.ID), applog.FieldOperation, op)
	s.setSession(w, r, sess)
	if isHTMX(r) {
		NewHTMXResponse().Header("HX-Redirect", "/").Write(w)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.clearSession(w, r)
	if isHTMX(r) {
		NewHTMXResponse().Header("HX-Redirect", "/login").Write(w)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
