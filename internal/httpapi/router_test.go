package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/cache"
	"github.com/MrEthical07/goIdentity/store/memory"
	"github.com/MrEthical07/goIdentity/tokens"
)

const password = "Correct-horse-1"

type response struct {
	Success   bool                `json:"success"`
	Data      json.RawMessage     `json:"data"`
	Message   string              `json:"message"`
	ErrorCode string              `json:"errorCode"`
	Errors    map[string][]string `json:"errors"`
	Details   map[string]any      `json:"details"`
}

type apiServer struct {
	t   *testing.T
	srv *httptest.Server
}

func newAPI(t *testing.T, mutate func(*Config)) *apiServer {
	t.Helper()
	cfg := goIdentity.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.TOTP.SealKey = []byte("abcdefghijklmnopqrstuvwxyz012345")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.Enabled = false

	c := cache.NewMemory("api")
	engine, err := goIdentity.New().
		WithConfig(cfg).
		WithStore(memory.New()).
		WithCache(c).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	httpCfg := DefaultConfig()
	if mutate != nil {
		mutate(&httpCfg)
	}
	h, err := NewRouter(httpCfg, Deps{Engine: engine, Cache: c, Registry: prometheus.NewRegistry()})
	require.NoError(t, err)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &apiServer{t: t, srv: srv}
}

func (a *apiServer) do(method, path, token string, body any) (*http.Response, response) {
	a.t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(a.t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rdr)
	require.NoError(a.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.srv.Client().Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	var out response
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func (a *apiServer) register(email string) goIdentity.RegisterResult {
	a.t.Helper()
	resp, body := a.do(http.MethodPost, "/auth/register", "", map[string]string{
		"email":           email,
		"password":        password,
		"confirmPassword": password,
		"firstName":       "Alice",
		"lastName":        "Liddell",
	})
	require.Equal(a.t, http.StatusCreated, resp.StatusCode, body.Message)
	var res goIdentity.RegisterResult
	require.NoError(a.t, json.Unmarshal(body.Data, &res))
	return res
}

func TestRegisterAndLogin(t *testing.T) {
	api := newAPI(t, nil)
	reg := api.register("alice@example.com")
	require.NotNil(t, reg.Tokens)

	resp, body := api.do(http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": password,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	var login goIdentity.LoginResult
	require.NoError(t, json.Unmarshal(body.Data, &login))
	require.NotNil(t, login.Tokens)
	assert.False(t, login.MfaRequired)

	resp, body = api.do(http.MethodGet, "/mfa/status", login.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status goIdentity.MfaStatus
	require.NoError(t, json.Unmarshal(body.Data, &status))
	assert.False(t, status.Enabled)
}

func TestErrorEnvelopes(t *testing.T) {
	api := newAPI(t, nil)
	api.register("alice@example.com")

	t.Run("bad credentials", func(t *testing.T) {
		resp, body := api.do(http.MethodPost, "/auth/login", "", map[string]string{
			"email":    "alice@example.com",
			"password": "Wrong-horse-1",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.False(t, body.Success)
		assert.Equal(t, "INVALID_CREDENTIALS", body.ErrorCode)
		assert.Equal(t, "Invalid email or password.", body.Message)
	})

	t.Run("validation", func(t *testing.T) {
		resp, body := api.do(http.MethodPost, "/auth/register", "", map[string]string{
			"email":           "nope",
			"password":        "short",
			"confirmPassword": "other",
			"firstName":       "Bob",
			"lastName":        "Builder",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "One or more validation errors occurred.", body.Message)
		assert.Contains(t, body.Errors, "email")
		assert.Contains(t, body.Errors, "password")
	})

	t.Run("duplicate email", func(t *testing.T) {
		resp, body := api.do(http.MethodPost, "/auth/register", "", map[string]string{
			"email":           "alice@example.com",
			"password":        password,
			"confirmPassword": password,
			"firstName":       "Alice",
			"lastName":        "Liddell",
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "User with email 'alice@example.com' already exists.", body.Message)
	})

	t.Run("malformed json", func(t *testing.T) {
		resp, body := api.do(http.MethodPost, "/auth/login", "", `{"email":`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_BODY", body.ErrorCode)
	})

	t.Run("unknown field", func(t *testing.T) {
		resp, _ := api.do(http.MethodPost, "/auth/login", "", `{"email":"a@b.c","password":"x","admin":true}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing token", func(t *testing.T) {
		resp, body := api.do(http.MethodPost, "/mfa/setup", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "MISSING_TOKEN", body.ErrorCode)
	})

	t.Run("bad token", func(t *testing.T) {
		resp, body := api.do(http.MethodGet, "/mfa/status", "garbage", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "INVALID_ACCESS_TOKEN", body.ErrorCode)
	})

	t.Run("unknown route", func(t *testing.T) {
		resp, body := api.do(http.MethodGet, "/nope", "", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.False(t, body.Success)
	})
}

func TestRefreshAndLogout(t *testing.T) {
	api := newAPI(t, nil)
	reg := api.register("alice@example.com")

	resp, body := api.do(http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": reg.Tokens.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pair goIdentity.TokenPair
	require.NoError(t, json.Unmarshal(body.Data, &pair))

	resp, _ = api.do(http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": reg.Tokens.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// reuse revoked the whole chain, so log in again
	resp, body = api.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "alice@example.com", "password": password})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login goIdentity.LoginResult
	require.NoError(t, json.Unmarshal(body.Data, &login))

	resp, _ = api.do(http.MethodPost, "/auth/logout", login.Tokens.AccessToken, map[string]string{"refreshToken": login.Tokens.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = api.do(http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": login.Tokens.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRateLimitReturns429(t *testing.T) {
	api := newAPI(t, func(c *Config) {
		c.RateLimit.Limit = 3
		c.RateLimit.Window = time.Minute
	})

	for i := 0; i < 3; i++ {
		resp, _ := api.do(http.MethodPost, "/auth/forgot-password", "", map[string]string{"email": "x@example.com"})
		require.NotEqual(t, http.StatusTooManyRequests, resp.StatusCode)
	}
	resp, body := api.do(http.MethodPost, "/auth/forgot-password", "", map[string]string{"email": "x@example.com"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "RATE_LIMITED", body.ErrorCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	health, _ := api.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, health.StatusCode, "health checks are outside the budget")
}

func TestMetricsEndpoint(t *testing.T) {
	api := newAPI(t, nil)
	api.do(http.MethodGet, "/healthz", "", nil)

	scrape := func() string {
		resp, err := api.srv.Client().Get(api.srv.URL + "/metrics")
		if err != nil {
			return ""
		}
		defer resp.Body.Close()
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(resp.Body); err != nil {
			return ""
		}
		return buf.String()
	}

	// the counter is bumped after the response is flushed
	assert.Eventually(t, func() bool {
		return strings.Contains(scrape(), `identity_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
	}, time.Second, 10*time.Millisecond)
}

func TestSessionsAndCurrentUser(t *testing.T) {
	api := newAPI(t, nil)
	reg := api.register("alice@example.com")
	first, _ := tokens.TokenID(reg.Tokens.RefreshToken)

	resp, body := api.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "alice@example.com", "password": password})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login goIdentity.LoginResult
	require.NoError(t, json.Unmarshal(body.Data, &login))
	second, _ := tokens.TokenID(login.Tokens.RefreshToken)
	access := login.Tokens.AccessToken

	resp, body = api.do(http.MethodGet, "/auth/me", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me goIdentity.CurrentUser
	require.NoError(t, json.Unmarshal(body.Data, &me))
	assert.Equal(t, "alice@example.com", me.Email)
	assert.Equal(t, reg.User.ID, me.ID)
	assert.True(t, me.IsActive)

	resp, body = api.do(http.MethodGet, "/auth/sessions", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sessions goIdentity.SessionsResult
	require.NoError(t, json.Unmarshal(body.Data, &sessions))
	require.Len(t, sessions.Sessions, 2)
	require.NotNil(t, sessions.CurrentSessionID)
	assert.Equal(t, second, *sessions.CurrentSessionID)
	for _, s := range sessions.Sessions {
		assert.Equal(t, s.ID == second, s.IsCurrent)
	}

	bob := api.register("bob@example.com")
	resp, body = api.do(http.MethodDelete, "/auth/sessions/"+first.String(), bob.Tokens.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "SESSION_NOT_FOUND", body.ErrorCode)

	resp, _ = api.do(http.MethodDelete, "/auth/sessions/not-a-uuid", access, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = api.do(http.MethodDelete, "/auth/sessions/"+first.String(), access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = api.do(http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": reg.Tokens.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = api.do(http.MethodGet, "/auth/sessions", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body.Data, &sessions))
	require.Len(t, sessions.Sessions, 1)
	assert.Equal(t, second, sessions.Sessions[0].ID)

	resp, _ = api.do(http.MethodGet, "/auth/sessions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
