// Package authz decides whether a request may proceed. It is a pure function
// over the resolved user and the requested path, re-evaluated on every
// request; session validity can change at any moment, so nothing is cached.
package authz

import (
	"strings"

	"inventario/internal/domain"
)

type Action int

const (
	// Allow lets the request through to its handler.
	Allow Action = iota
	// Redirect sends page requests elsewhere (login, or the role's home).
	Redirect
	// DenyUnauthenticated maps to 401 for API requests without a session.
	DenyUnauthenticated
	// DenyForbidden maps to 403 for authenticated users outside their surface.
	DenyForbidden
)

type Decision struct {
	Action   Action
	Location string
}

var publicPaths = []string{
	"/login",
	"/api/auth/login",
	"/api/auth/logout",
	"/api/auth/session",
}

var staticPrefixes = []string{
	"/assets",
	"/favicon",
	"/public",
	"/healthz",
}

// Sellers operate on the sales entry page and the APIs that back it.
var sellerAppPaths = []string{"/salidas"}

var sellerAPIPrefixes = []string{
	"/api/sales",
	"/api/products",
	"/api/auth/logout",
	"/api/auth/session",
}

func LandingPath(role string) string {
	if role == domain.RoleAdmin {
		return "/resumen"
	}
	return "/salidas"
}

func Evaluate(user *domain.SessionUser, path string) Decision {
	if isStatic(path) || isPublic(path) {
		if user != nil && path == "/login" {
			return Decision{Action: Redirect, Location: LandingPath(user.Role)}
		}
		return Decision{Action: Allow}
	}

	isAPI := strings.HasPrefix(path, "/api")

	if user == nil {
		if isAPI {
			return Decision{Action: DenyUnauthenticated}
		}
		target := "/login"
		if path != "/" {
			target += "?from=" + path
		}
		return Decision{Action: Redirect, Location: target}
	}

	if path == "/" {
		return Decision{Action: Redirect, Location: LandingPath(user.Role)}
	}

	if user.Role == domain.RoleSeller {
		if matchesAny(path, sellerAppPaths) {
			return Decision{Action: Allow}
		}
		if isAPI {
			for _, prefix := range sellerAPIPrefixes {
				if strings.HasPrefix(path, prefix) {
					return Decision{Action: Allow}
				}
			}
			return Decision{Action: DenyForbidden}
		}
		return Decision{Action: Redirect, Location: "/salidas?denied=1"}
	}

	return Decision{Action: Allow}
}

func isPublic(path string) bool {
	return matchesAny(path, publicPaths)
}

func isStatic(path string) bool {
	for _, prefix := range staticPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// matchesAny reports whether path equals one of the bases or sits beneath it.
func matchesAny(path string, bases []string) bool {
	for _, base := range bases {
		if path == base || strings.HasPrefix(path, base+"/") {
			return true
		}
	}
	return false
}
