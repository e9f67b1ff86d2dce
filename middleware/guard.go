package middleware

import (
	"context"
	"net/http"
	"strings"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/apperr"
)

// ErrMissingToken is reported by RequireAuth when no bearer token was sent.
var ErrMissingToken = apperr.Unauthorized("MISSING_TOKEN", "Access denied. Authentication required.")

// TokenValidator is satisfied by *goIdentity.Engine.
type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, raw string) (*goIdentity.Principal, error)
}

// ErrorWriter renders a rejection.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

type principalContextKey struct{}

type authErrorContextKey struct{}

// PrincipalFromContext returns the principal attached by Authenticate.
func PrincipalFromContext(ctx context.Context) (*goIdentity.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*goIdentity.Principal)
	return p, ok && p != nil
}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p *goIdentity.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// Authenticate validates a bearer token when one is present. Requests
// without an Authorization header pass through anonymous.
func Authenticate(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || v == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			token, ok := bearerToken(header)
			if !ok {
				ctx = context.WithValue(ctx, authErrorContextKey{}, error(goIdentity.ErrAccessTokenInvalid))
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			p, err := v.ValidateAccessToken(ctx, token)
			if err != nil {
				ctx = context.WithValue(ctx, authErrorContextKey{}, err)
			} else {
				ctx = WithPrincipal(ctx, p)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests without a valid principal. The validation
// error recorded by Authenticate, if any, is what gets reported.
func RequireAuth(onError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := PrincipalFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}
			err, _ := r.Context().Value(authErrorContextKey{}).(error)
			if err == nil {
				err = ErrMissingToken
			}
			onError(w, r, err)
		})
	}
}

// Guard authenticates and requires a principal in one step.
func Guard(v TokenValidator, onError ErrorWriter) func(http.Handler) http.Handler {
	authenticate := Authenticate(v)
	require := RequireAuth(onError)
	return func(next http.Handler) http.Handler {
		return authenticate(require(next))
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
