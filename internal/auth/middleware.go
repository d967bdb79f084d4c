package auth

import (
	"net/http"
	"strings"

	"github.com/blagoySimandov/autoflow/internal/logging"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
	unauthorizedMessage = "Unauthorized"
	invalidTokenMessage = "Invalid token"
)

type Middleware struct {
	verifier Verifier
}

// NewMiddleware returns a middleware that requires a valid bearer token. With
// a nil verifier every request is let through unauthenticated.
func NewMiddleware(verifier Verifier) *Middleware {
	return &Middleware{
		verifier: verifier,
	}
}

func (m *Middleware) Enabled() bool {
	return m.verifier != nil
}

func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.verifier == nil {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get(authorizationHeader)
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", unauthorizedMessage)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, bearerPrefix)

		user, err := m.verifier.VerifyToken(tokenString)
		if err != nil {
			logging.EnrichError(r.Context(), err, "auth")
			writeJSONError(w, http.StatusUnauthorized, "invalid_token", invalidTokenMessage)
			return
		}

		logging.EnrichUser(r.Context(), user.ID, user.Email)
		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
	})
}
