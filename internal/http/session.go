package http

import (
	"context"
	"errors"
	"net/http"

	"encargos/internal/auth"
	"encargos/internal/core"
	applog "encargos/internal/log"
	"encargos/internal/services"
)

// SessionCookie carries the signed session token.
const SessionCookie = "encargos_session"

type userKey struct{}

func withUser(ctx context.Context, u core.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// userFrom returns the authenticated user. Handlers behind requireSession
// always have one.
func userFrom(ctx context.Context) core.User {
	u, _ := ctx.Value(userKey{}).(core.User)
	return u
}

func (s *Server) setSession(w http.ResponseWriter, r *http.Request, sess services.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   s.secure || r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSession(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure || r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

// requireSession resolves the session cookie to a user, or sends the
// client to the login page.
func (s *Server) requireSession(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(SessionCookie)
		if err != nil || c.Value == "" {
			s.toLogin(w, r)
			return
		}

		user, err := s.svc.Auth.Authenticate(r.Context(), c.Value)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) && !errors.Is(err, auth.ErrExpiredToken) {
				s.events.LogError(r.Context(), "Session lookup failed", err, applog.ComponentAuth, applog.OpRead, nil)
			}
			s.clearSession(w, r)
			s.toLogin(w, r)
			return
		}

		ctx := withUser(r.Context(), user)
		ctx = applog.WithLogger(ctx, applog.FromContext(ctx).With(applog.FieldOwner, string(user.ID)))
		next(w, r.WithContext(ctx))
	})
}

func (s *Server) toLogin(w http.ResponseWriter, r *http.Request) {
	if isHTMX(r) {
		NewHTMXResponse().Status(http.StatusUnauthorized).Header("HX-Redirect", "/login").Write(w)
		return
	}
	if r.Method != http.MethodGet {
		ErrorResponse(http.StatusUnauthorized, "Sign in required").Write(w)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
