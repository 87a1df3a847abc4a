package httpapi

import (
	"errors"
	"net/http"
	"time"

	"inventario/internal/domain"
	"inventario/internal/service"
)

const sessionCookieName = "session"

func sessionCookie(token string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func clearedSessionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := a.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	user, session, err := a.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}

	http.SetCookie(w, sessionCookie(session.Token, session.ExpiresAt))
	writeJSON(w, http.StatusOK, user)
}

// handleLogout is idempotent: missing or stale cookies still clear and 200.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		if err := a.auth.Logout(r.Context(), cookie.Value); err != nil {
			writeError(w, statusForError(err), err)
			return
		}
	}

	http.SetCookie(w, clearedSessionCookie())
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	resp := domain.SessionResponse{}
	if actor, ok := service.ActorFromContext(r.Context()); ok {
		resp.Authenticated = true
		resp.User = &actor
	}
	writeJSON(w, http.StatusOK, resp)
}
