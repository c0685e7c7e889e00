package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// BasicAuth protects the dashboard with one user whose password is stored
// as a bcrypt hash.
type BasicAuth struct {
	user   string
	hash   []byte
	realm  string
	logger zerolog.Logger
}

// NewBasicAuth creates the middleware. An empty hash disables it.
func NewBasicAuth(user, passwordHash string, logger zerolog.Logger) *BasicAuth {
	return &BasicAuth{
		user:   user,
		hash:   []byte(passwordHash),
		realm:  "chatdigest",
		logger: logger,
	}
}

// Enabled reports whether credentials are required.
func (a *BasicAuth) Enabled() bool {
	return len(a.hash) > 0
}

// RequireAuth rejects requests without valid credentials.
func (a *BasicAuth) RequireAuth(next http.Handler) http.Handler {
	if !a.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || !a.valid(user, pass) {
			if ok {
				a.logger.Warn().
					Str("type", "security").
					Str("event", "auth_failed").
					Str("ip", RealIP(r)).
					Str("user", user).
					Msg("dashboard authentication failed")
			}
			w.Header().Set("WWW-Authenticate", `Basic realm="`+a.realm+`", charset="UTF-8"`)
			jsonError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *BasicAuth) valid(user, pass string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(a.user)) == 1
	// Always run bcrypt so a wrong user name costs as much as a wrong password.
	passOK := bcrypt.CompareHashAndPassword(a.hash, []byte(pass)) == nil
	return userOK && passOK
}
