// Package httpapi exposes the inventory backend over HTTP. Every request
// passes the same middleware chain: security headers, session resolution
// from the session cookie, the authorization gate, then request logging.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"inventario/internal/auth"
	"inventario/internal/authz"
	"inventario/internal/domain"
	"inventario/internal/service"
	"inventario/internal/store"
)

type API struct {
	service      *service.Service
	auth         *auth.Service
	loginLimiter *attemptLimiter
	validate     *validator.Validate
}

func New(svc *service.Service, authSvc *auth.Service) *API {
	return &API{
		service:      svc,
		auth:         authSvc,
		loginLimiter: newAttemptLimiter(5, time.Minute),
		validate:     validator.New(),
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/auth/login", a.handleLogin)
	mux.HandleFunc("/api/auth/logout", a.handleLogout)
	mux.HandleFunc("/api/auth/session", a.handleSession)

	mux.HandleFunc("/api/products", a.handleProducts)
	mux.HandleFunc("/api/entries", a.handleEntries)
	mux.HandleFunc("/api/sales", a.handleSales)
	mux.HandleFunc("/api/prices/adjust", a.handlePriceAdjust)
	mux.HandleFunc("/api/summary", a.handleSummary)

	mux.HandleFunc("/", a.handlePage)

	return a.withMiddleware(mux)
}

// withMiddleware resolves the session, runs the authorization gate and
// logs the request. The gate sees every path, including unknown ones.
func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		ctx := r.Context()
		user := a.resolveSession(r)

		decision := authz.Evaluate(user, r.URL.Path)
		switch decision.Action {
		case authz.Redirect:
			http.Redirect(w, r, decision.Location, http.StatusFound)
			return
		case authz.DenyUnauthenticated:
			writeError(w, http.StatusUnauthorized, errors.New("not authenticated"))
			return
		case authz.DenyForbidden:
			writeError(w, http.StatusForbidden, errors.New("not authorized"))
			return
		}

		if user != nil {
			ctx = service.WithActor(ctx, *user)
		}

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// resolveSession turns the session cookie into a user, or nil. Lookup
// failures degrade to an anonymous request; the gate handles the rest.
func (a *API) resolveSession(r *http.Request) *domain.SessionUser {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	user, err := a.auth.CurrentUser(r.Context(), cookie.Value)
	if err != nil {
		log.Warn().Err(err).Msg("session lookup failed")
		return nil
	}
	return user
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func (a *API) decodeValid(r *http.Request, dest any) error {
	if err := decodeJSON(r, dest); err != nil {
		return err
	}
	return a.validate.Struct(dest)
}

func statusForError(err error) int {
	var verr validator.ValidationErrors
	switch {
	case errors.As(err, &verr), errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, store.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// For 5xx responses, return a generic message to avoid leaking internal
	// implementation details (SQL errors, file paths, etc.). 4xx responses
	// are user-facing so we return the original error message.
	msg := err.Error()
	if status >= 500 {
		log.Error().Err(err).Int("status", status).Msg("internal error")
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
