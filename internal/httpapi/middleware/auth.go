package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/hamed0406/uptimeticks/internal/config"
)

// Role is the access level an API key grants. Higher roles include the
// lower ones.
type Role int

const (
	RoleNone Role = iota
	RoleReader
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleReader:
		return "reader"
	case RoleAdmin:
		return "admin"
	default:
		return "none"
	}
}

type keyEntry struct {
	key  []byte
	role Role
}

// Keys is the set of accepted API keys and the role each one grants.
// A key listed as both reader and admin is admin.
type Keys struct {
	entries []keyEntry
}

func NewKeys(readers, admins []string) Keys {
	var k Keys
	add := func(list []string, role Role) {
		for _, s := range list {
			if s = strings.TrimSpace(s); s != "" {
				k.entries = append(k.entries, keyEntry{key: []byte(s), role: role})
			}
		}
	}
	add(admins, RoleAdmin)
	add(readers, RoleReader)
	return k
}

// KeysFromConfig builds the key set from PUBLIC_API_KEYS and ADMIN_API_KEYS.
func KeysFromConfig(cfg config.Config) Keys {
	return NewKeys(cfg.PublicAPIKeys, cfg.AdminAPIKeys)
}

// Enabled is false when no keys are configured; every caller is then admin.
func (k Keys) Enabled() bool { return len(k.entries) > 0 }

// RoleOf compares against every entry so the time taken does not depend
// on which key matched.
func (k Keys) RoleOf(given string) Role {
	if given == "" {
		return RoleNone
	}
	best := RoleNone
	for _, e := range k.entries {
		if subtle.ConstantTimeCompare(e.key, []byte(given)) == 1 && e.role > best {
			best = e.role
		}
	}
	return best
}

type roleKey struct{}

// Authenticate resolves the caller's role once and stores it on the
// request context. It never rejects; Require does.
func Authenticate(keys Keys) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleAdmin // local dev
			if keys.Enabled() {
				role = keys.RoleOf(readAuth(r))
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), roleKey{}, role)))
		})
	}
}

// RoleFrom returns the role Authenticate stored, or RoleNone.
func RoleFrom(ctx context.Context) Role {
	role, _ := ctx.Value(roleKey{}).(Role)
	return role
}

// Require rejects callers below min. Unknown or missing keys get 401,
// known keys without enough access get 403.
func Require(min Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch role := RoleFrom(r.Context()); {
			case role >= min:
				next.ServeHTTP(w, r)
			case role == RoleNone:
				WriteError(w, http.StatusUnauthorized, "unauthorized")
			default:
				WriteError(w, http.StatusForbidden, "forbidden")
			}
		})
	}
}

// WriteError writes the {"error": msg} body shared by every API response.
func WriteError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// readAuth accepts "Authorization: Bearer <key>" or "X-API-Key: <key>".
func readAuth(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}
