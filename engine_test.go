package goIdentity

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrEthical07/goIdentity/apperr"
	"github.com/MrEthical07/goIdentity/cache"
	"github.com/MrEthical07/goIdentity/mail"
	"github.com/MrEthical07/goIdentity/store"
	"github.com/MrEthical07/goIdentity/store/memory"
	"github.com/MrEthical07/goIdentity/tokens"
)

const testPassword = "Correct-horse-1"

var (
	confirmCodePattern = regexp.MustCompile(`code is (\d+)`)
	resetTokenPattern  = regexp.MustCompile(`password: (\S+)`)
)

type mailbox struct {
	mu   sync.Mutex
	sent []mail.Message
	fail error
}

func (m *mailbox) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mailbox) extract(t *testing.T, re *regexp.Regexp) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatalf("no mail sent")
	}
	match := re.FindStringSubmatch(m.sent[len(m.sent)-1].Text)
	if match == nil {
		t.Fatalf("mail %q does not match %s", m.sent[len(m.sent)-1].Text, re)
	}
	return match[1]
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.TOTP.SealKey = []byte("abcdefghijklmnopqrstuvwxyz012345")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.Enabled = false
	return cfg
}

type testEngine struct {
	*Engine
	store  *memory.Store
	mailer *mailbox
}

func newTestEngine(t testing.TB, mutate func(*Config)) *testEngine {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	st := memory.New()
	mb := &mailbox{}
	engine, err := New().
		WithConfig(cfg).
		WithStore(st).
		WithCache(cache.NewMemory("test")).
		WithMailer(mb).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return &testEngine{Engine: engine, store: st, mailer: mb}
}

func (e *testEngine) register(t *testing.T, email string) RegisterResult {
	t.Helper()
	res, err := e.Register(context.Background(), RegisterCommand{
		Email:           email,
		Password:        testPassword,
		ConfirmPassword: testPassword,
		FirstName:       "Alice",
		LastName:        "Liddell",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	return res
}

func TestBuildRequiresStoreAndCache(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("expected error without store")
	}
	if _, err := New().WithConfig(testConfig()).WithStore(memory.New()).Build(); err == nil {
		t.Fatal("expected error without cache")
	}
	b := New().WithConfig(testConfig()).WithStore(memory.New()).WithCache(cache.NewMemory(""))
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected error on second Build")
	}
}

func TestNilEngineNotReady(t *testing.T) {
	var e *Engine
	if _, err := e.Login(context.Background(), LoginCommand{}); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if err := e.Ping(context.Background()); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	e.Close()
}

// register, login, enable MFA, login again through a backup code, then reset
// the password and watch every refresh token die.
func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)

	reg := e.register(t, "alice@example.com")
	if reg.Tokens == nil {
		t.Fatal("expected tokens on register")
	}
	uid := reg.User.ID

	login, err := e.Login(ctx, LoginCommand{Email: "alice@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if login.MfaRequired || login.Tokens == nil {
		t.Fatalf("expected tokens without MFA, got %+v", login)
	}
	principal, err := e.ValidateAccessToken(ctx, login.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if principal.UserID != uid || !principal.HasRole(store.RoleUser) {
		t.Fatalf("unexpected principal %+v", principal)
	}

	setup, err := e.SetupMfa(ctx, SetupMfaCommand{UserID: uid})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	code, err := totp.GenerateCode(setup.Secret, time.Now())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	enabled, err := e.EnableMfa(ctx, EnableMfaCommand{UserID: uid, Code: code})
	if err != nil {
		t.Fatalf("enable failed: %v", err)
	}
	if len(enabled.BackupCodes) != 10 {
		t.Fatalf("expected 10 backup codes, got %d", len(enabled.BackupCodes))
	}

	challenged, err := e.Login(ctx, LoginCommand{Email: "alice@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if !challenged.MfaRequired || challenged.Tokens != nil || challenged.ChallengeID == "" {
		t.Fatalf("expected MFA challenge, got %+v", challenged)
	}

	backup := enabled.BackupCodes[0]
	verified, err := e.VerifyMfa(ctx, VerifyMfaCommand{ChallengeID: challenged.ChallengeID, Code: backup, Type: MethodBackup})
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if verified.Tokens == nil {
		t.Fatal("expected tokens after MFA")
	}

	again, err := e.Login(ctx, LoginCommand{Email: "alice@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	_, err = e.VerifyMfa(ctx, VerifyMfaCommand{ChallengeID: again.ChallengeID, Code: backup, Type: MethodBackup})
	if !errors.Is(err, ErrMfaCodeInvalid) {
		t.Fatalf("expected reused backup code to fail, got %v", err)
	}

	if _, err := e.ForgotPassword(ctx, ForgotPasswordCommand{Email: "alice@example.com"}); err != nil {
		t.Fatalf("forgot failed: %v", err)
	}
	token := e.mailer.extract(t, resetTokenPattern)
	const newPassword = "Brand-new-pass-2"
	if _, err := e.ResetPassword(ctx, ResetPasswordCommand{
		Email:           "alice@example.com",
		Token:           token,
		NewPassword:     newPassword,
		ConfirmPassword: newPassword,
	}); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	for _, raw := range []string{reg.Tokens.RefreshToken, login.Tokens.RefreshToken, verified.Tokens.RefreshToken} {
		if _, err := e.RefreshToken(ctx, RefreshTokenCommand{RefreshToken: raw}); !errors.Is(err, ErrRefreshTokenInvalid) {
			t.Fatalf("expected refresh token to be revoked, got %v", err)
		}
	}

	if _, err := e.Login(ctx, LoginCommand{Email: "alice@example.com", Password: testPassword}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password to fail, got %v", err)
	}
}

func TestValidationRejectsBeforeHandler(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)

	_, err := e.Register(ctx, RegisterCommand{
		Email:           "not-an-email",
		Password:        testPassword,
		ConfirmPassword: testPassword,
		FirstName:       "Alice",
		LastName:        "Liddell",
	})
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, ok := ve.ByField()["email"]; !ok {
		t.Fatalf("expected email field error, got %v", ve.ByField())
	}
	if got := e.MetricsSnapshot().Counters[MetricRegisterSuccess]; got != 0 {
		t.Fatalf("handler ran: register success counter = %d", got)
	}
}

func TestFailedCommandRollsBack(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, func(cfg *Config) {
		cfg.Registration.RequireEmailConfirmation = true
	})
	e.mailer.fail = errors.New("smtp down")

	_, err := e.Register(ctx, RegisterCommand{
		Email:           "bob@example.com",
		Password:        testPassword,
		ConfirmPassword: testPassword,
		FirstName:       "Bob",
		LastName:        "Builder",
	})
	if err == nil {
		t.Fatal("expected register to fail when mail cannot be sent")
	}
	if _, err := e.store.Users().ByEmail(ctx, "bob@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected user insert to be rolled back, got %v", err)
	}

	e.mailer.fail = nil
	res := e.register(t, "bob@example.com")
	if !res.RequiresEmailConfirmation || res.Tokens != nil {
		t.Fatalf("expected confirmation step, got %+v", res)
	}
	code := e.mailer.extract(t, confirmCodePattern)
	if _, err := e.Login(ctx, LoginCommand{Email: "bob@example.com", Password: testPassword}); err == nil {
		t.Fatal("expected login to fail before confirmation")
	}
	if _, err := e.ConfirmEmail(ctx, ConfirmEmailCommand{Email: "bob@example.com", Code: code}); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if _, err := e.Login(ctx, LoginCommand{Email: "bob@example.com", Password: testPassword}); err != nil {
		t.Fatalf("login after confirmation failed: %v", err)
	}
}

func TestClientContextReachesRefreshTokens(t *testing.T) {
	ctx := WithUserAgent(WithClientIP(context.Background(), "203.0.113.7"), "curl/8")
	if ClientIP(ctx) != "203.0.113.7" {
		t.Fatalf("client ip lost: %q", ClientIP(ctx))
	}
	e := newTestEngine(t, nil)
	res, err := e.Register(ctx, RegisterCommand{
		Email:           "carol@example.com",
		Password:        testPassword,
		ConfirmPassword: testPassword,
		FirstName:       "Carol",
		LastName:        "Danvers",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	id, ok := tokens.TokenID(res.Tokens.RefreshToken)
	if !ok {
		t.Fatal("refresh token does not decode")
	}
	row, err := e.store.RefreshTokens().ByID(ctx, id)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if row.IP != "203.0.113.7" || row.UserAgent != "curl/8" {
		t.Fatalf("unexpected refresh row %+v", row)
	}
}

func TestAccessTokenNamesItsSession(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	res, err := e.Register(ctx, RegisterCommand{
		Email:           "dana@example.com",
		Password:        testPassword,
		ConfirmPassword: testPassword,
		FirstName:       "Dana",
		LastName:        "Scully",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	p, err := e.ValidateAccessToken(ctx, res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	id, _ := tokens.TokenID(res.Tokens.RefreshToken)
	if p.SessionID != id {
		t.Fatalf("expected session %s, got %s", id, p.SessionID)
	}

	sessions, err := e.GetSessions(ctx, GetSessionsQuery{UserID: p.UserID, CurrentSessionID: p.SessionID})
	if err != nil {
		t.Fatalf("sessions failed: %v", err)
	}
	if len(sessions.Sessions) != 1 || !sessions.Sessions[0].IsCurrent {
		t.Fatalf("unexpected sessions %+v", sessions)
	}
	if _, err := e.DeleteSession(ctx, DeleteSessionCommand{UserID: p.UserID, SessionID: id}); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	me, err := e.GetCurrentUser(ctx, GetCurrentUserQuery{UserID: p.UserID})
	if err != nil || me.Email != "dana@example.com" {
		t.Fatalf("current user: %+v, %v", me, err)
	}
}

func TestEnginesShareRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	for i := 0; i < 2; i++ {
		engine, err := New().
			WithConfig(testConfig()).
			WithStore(memory.New()).
			WithCache(cache.NewMemory("test")).
			WithRegistry(reg).
			Build()
		if err != nil {
			t.Fatalf("build %d failed: %v", i, err)
		}
		t.Cleanup(engine.Close)
	}
}

func TestValidateAccessTokenRejectsGarbage(t *testing.T) {
	e := newTestEngine(t, nil)
	if _, err := e.ValidateAccessToken(context.Background(), "not.a.jwt"); !errors.Is(err, ErrAccessTokenInvalid) {
		t.Fatalf("expected ErrAccessTokenInvalid, got %v", err)
	}
}

func TestPing(t *testing.T) {
	e := newTestEngine(t, nil)
	if err := e.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}
