package middleware

import (
	"net/http"

	"github.com/MrEthical07/goIdentity/apperr"
)

// ErrForbidden is reported by RequireRole.
var ErrForbidden = apperr.New(apperr.KindForbidden, "FORBIDDEN", "Access denied.")

// RequireRole rejects principals that do not carry role. It must run after
// Authenticate; anonymous requests are reported as ErrMissingToken.
func RequireRole(role string, onError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				onError(w, r, ErrMissingToken)
				return
			}
			if !p.HasRole(role) {
				onError(w, r, ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
