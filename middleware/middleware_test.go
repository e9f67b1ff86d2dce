package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/apperr"
	"github.com/MrEthical07/goIdentity/cache"
	"github.com/MrEthical07/goIdentity/internal/rate"
)

type stubValidator struct {
	principal *goIdentity.Principal
}

func (s stubValidator) ValidateAccessToken(_ context.Context, raw string) (*goIdentity.Principal, error) {
	if raw != "good" {
		return nil, goIdentity.ErrAccessTokenInvalid
	}
	return s.principal, nil
}

func recordError(w http.ResponseWriter, _ *http.Request, err error) {
	t := apperr.Translate(err, time.Now())
	w.Header().Set("X-Error-Code", t.Envelope.ErrorCode)
	w.WriteHeader(t.Status)
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	if p, ok := PrincipalFromContext(r.Context()); ok {
		w.Header().Set("X-Subject", p.UserID.String())
	}
	w.WriteHeader(http.StatusNoContent)
}

func TestGuard(t *testing.T) {
	uid := uuid.New()
	v := stubValidator{principal: &goIdentity.Principal{UserID: uid, Roles: []string{"User"}}}
	h := Guard(v, recordError)(http.HandlerFunc(okHandler))

	tests := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"missing", "", http.StatusUnauthorized, "MISSING_TOKEN"},
		{"not bearer", "Basic abc", http.StatusUnauthorized, "INVALID_ACCESS_TOKEN"},
		{"invalid", "Bearer bad", http.StatusUnauthorized, "INVALID_ACCESS_TOKEN"},
		{"valid", "Bearer good", http.StatusNoContent, ""},
		{"lower-case scheme", "bearer good", http.StatusNoContent, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, rec.Header().Get("X-Error-Code"))
			if tc.status == http.StatusNoContent {
				assert.Equal(t, uid.String(), rec.Header().Get("X-Subject"))
			}
		})
	}
}

func TestAuthenticateLetsAnonymousThrough(t *testing.T) {
	h := Authenticate(stubValidator{})(http.HandlerFunc(okHandler))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mfa/verify", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Subject"))
}

func TestRequireRole(t *testing.T) {
	v := stubValidator{principal: &goIdentity.Principal{UserID: uuid.New(), Roles: []string{"User"}}}
	admin := Guard(v, recordError)(RequireRole("Admin", recordError)(http.HandlerFunc(okHandler)))
	user := Guard(v, recordError)(RequireRole("User", recordError)(http.HandlerFunc(okHandler)))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")

	rec := httptest.NewRecorder()
	admin.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	user.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRateLimitPerIdentity(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	l := rate.New(cache.NewRedis(rdb, "test"), rate.Config{Prefix: "rl", Limit: 2, Window: time.Minute})

	v := stubValidator{principal: &goIdentity.Principal{UserID: uuid.New()}}
	h := Authenticate(v)(RateLimit(l, recordError)(http.HandlerFunc(okHandler)))

	send := func(remote, auth string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusNoContent, send("198.51.100.1:1234", "").Code)
	}
	rec := send("198.51.100.1:1234", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", rec.Header().Get("X-Error-Code"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// another address and an authenticated subject have their own budgets
	assert.Equal(t, http.StatusNoContent, send("198.51.100.2:1234", "").Code)
	assert.Equal(t, http.StatusNoContent, send("198.51.100.1:1234", "Bearer good").Code)
}

func TestRateLimitFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	l := rate.New(cache.NewRedis(rdb, ""), rate.Config{Prefix: "rl", Limit: 1, Window: time.Minute})
	mr.Close()

	h := RateLimit(l, func(w http.ResponseWriter, _ *http.Request, err error) {
		t.Errorf("unexpected rejection: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
	})(http.HandlerFunc(okHandler))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
