package flows

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/cache"
	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/limiters"
	"github.com/MrEthical07/goIdentity/internal/metrics"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/mail"
	"github.com/MrEthical07/goIdentity/mfa"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/store"
	"github.com/MrEthical07/goIdentity/store/memory"
	"github.com/MrEthical07/goIdentity/tokens"
	"github.com/google/uuid"
)

const testPassword = "Correct-horse-1"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type captureMailer struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (m *captureMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

var (
	codePattern  = regexp.MustCompile(`code is (\d+)`)
	tokenPattern = regexp.MustCompile(`password: (\S+)`)
)

func (m *captureMailer) last(t *testing.T, re *regexp.Regexp) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatalf("no mail sent")
	}
	match := re.FindStringSubmatch(m.sent[len(m.sent)-1].Text)
	if match == nil {
		t.Fatalf("mail body %q does not match %s", m.sent[len(m.sent)-1].Text, re)
	}
	return match[1]
}

type fixture struct {
	svc     *Service
	store   *memory.Store
	cache   *cache.Memory
	tokens  *tokens.Service
	totp    *mfa.TOTP
	mailer  *captureMailer
	metrics *metrics.Metrics
	clock   *clock
}

type option func(*Deps)

func withPolicy(fn func(*Policy)) option {
	return func(d *Deps) { fn(&d.Policy) }
}

func withoutVerifyLimiter() option {
	return func(d *Deps) { d.MFAVerify = nil }
}

func newFixture(t *testing.T, opts ...option) *fixture {
	t.Helper()
	f := &fixture{
		store:   memory.New(),
		cache:   cache.NewMemory("test"),
		mailer:  &captureMailer{},
		metrics: metrics.New(metrics.Config{Enabled: true}),
		clock:   &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	access, err := jwt.NewManager(jwt.Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "identity-test",
	})
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}
	f.tokens, err = tokens.NewService(access, f.store, f.cache, tokens.Config{RefreshTTL: 24 * time.Hour}, tokens.Hooks{})
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	hasher, err := password.NewArgon2(password.Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	f.totp, err = mfa.NewTOTP(mfa.TOTPConfig{Issuer: "Identity", Skew: 1})
	if err != nil {
		t.Fatalf("totp: %v", err)
	}
	sealer, err := mfa.NewSealer([]byte("abcdefghijklmnopqrstuvwxyz012345"))
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}

	deps := Deps{
		Store:         f.store,
		Tokens:        f.tokens,
		Hasher:        hasher,
		TOTP:          f.totp,
		Sealer:        sealer,
		Cache:         f.cache,
		Mailer:        f.mailer,
		Audit:         audit.NewRecorder(audit.Config{}, audit.NewStoreSink(f.store.Audit())),
		Metrics:       f.metrics,
		MFAVerify:     limiters.NewMFAVerifyLimiter(f.cache, limiters.MFAVerifyConfig{}),
		EmailOTP:      limiters.NewEmailOTPLimiter(f.cache, limiters.EmailOTPConfig{}),
		PasswordReset: limiters.NewPasswordResetLimiter(f.cache, limiters.PasswordResetConfig{}),
		Registration:  limiters.NewRegistrationLimiter(f.cache, limiters.RegistrationConfig{EnableIdentifierThrottle: true}),
		Policy:        Policy{LockoutThreshold: 3, LockoutDuration: 10 * time.Minute},
		Now:           f.clock.Now,
	}
	for _, o := range opts {
		o(&deps)
	}
	f.svc, err = New(deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func (f *fixture) register(t *testing.T, email string) RegisterResult {
	t.Helper()
	res, err := f.svc.Register(context.Background(), RegisterCommand{
		Email:           email,
		Password:        testPassword,
		ConfirmPassword: testPassword,
		FirstName:       "Alice",
		LastName:        "Liddell",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return res
}

func (f *fixture) login(t *testing.T, email, pw string) LoginResult {
	t.Helper()
	res, err := f.svc.Login(context.Background(), LoginCommand{Email: email, Password: pw})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return res
}

// enableMfa walks setup and enable and returns the secret and backup codes.
func (f *fixture) enableMfa(t *testing.T, userID uuid.UUID) (string, []string) {
	t.Helper()
	ctx := context.Background()
	setup, err := f.svc.SetupMfa(ctx, SetupMfaCommand{UserID: userID})
	if err != nil {
		t.Fatalf("SetupMfa: %v", err)
	}
	code, err := f.totp.Code(setup.Secret, f.clock.Now())
	if err != nil {
		t.Fatalf("totp code: %v", err)
	}
	res, err := f.svc.EnableMfa(ctx, EnableMfaCommand{UserID: userID, Code: code})
	if err != nil {
		t.Fatalf("EnableMfa: %v", err)
	}
	// Move past the step consumed by enabling.
	f.clock.Advance(30 * time.Second)
	return setup.Secret, res.BackupCodes
}

func (f *fixture) auditActions(userID uuid.UUID) map[string]int {
	out := map[string]int{}
	for _, e := range f.store.AuditEntries() {
		if e.UserID == userID {
			key := e.Action
			if !e.Success {
				key += ":fail"
			}
			out[key]++
		}
	}
	return out
}

func TestLoginIssuesTokens(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, "Alice@Example.com")
	if reg.Tokens == nil {
		t.Fatalf("expected tokens when confirmation is not required")
	}

	res := f.login(t, "alice@example.com", testPassword)
	if res.MfaRequired || res.Tokens == nil || res.Tokens.AccessToken == "" {
		t.Fatalf("expected a token pair, got %+v", res)
	}
	if res.User.Email != "alice@example.com" || len(res.User.Roles) != 1 || res.User.Roles[0] != store.RoleUser {
		t.Fatalf("unexpected user info %+v", res.User)
	}
	u, _ := f.store.Users().ByID(context.Background(), reg.User.ID)
	if u.LastLoginAt == nil {
		t.Fatalf("last login not recorded")
	}
	if f.metrics.Value(metrics.LoginSuccess) != 1 {
		t.Fatalf("expected login success metric")
	}
}

func TestLoginUnknownEmailIsGeneric(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@example.com")

	_, errUnknown := f.svc.Login(context.Background(), LoginCommand{Email: "bob@example.com", Password: testPassword})
	_, errWrong := f.svc.Login(context.Background(), LoginCommand{Email: "alice@example.com", Password: "Wrong-pass-1"})
	if !errors.Is(errUnknown, ErrInvalidCredentials) || !errors.Is(errWrong, ErrInvalidCredentials) {
		t.Fatalf("expected generic invalid credentials, got %v / %v", errUnknown, errWrong)
	}
	if errUnknown.Error() != errWrong.Error() {
		t.Fatalf("unknown and wrong password must read the same: %q vs %q", errUnknown, errWrong)
	}
}

func TestLoginInactiveAccountRevealsNothingWithoutPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.register(t, "alice@example.com")
	alice, err := f.store.Users().ByID(ctx, reg.User.ID)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	gone := f.clock.Now()
	bob := &store.User{
		Email:          "bob@example.com",
		PasswordHash:   alice.PasswordHash,
		EmailConfirmed: true,
		DeactivatedAt:  &gone,
	}
	if err := f.store.Users().Create(ctx, bob); err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, errUnknown := f.svc.Login(ctx, LoginCommand{Email: "carol@example.com", Password: "Wrong-pass-1"})
	_, errInactive := f.svc.Login(ctx, LoginCommand{Email: "bob@example.com", Password: "Wrong-pass-1"})
	if !errors.Is(errUnknown, ErrInvalidCredentials) || !errors.Is(errInactive, ErrInvalidCredentials) {
		t.Fatalf("expected generic invalid credentials, got %v / %v", errUnknown, errInactive)
	}
	if errUnknown.Error() != errInactive.Error() {
		t.Fatalf("unknown and inactive must read the same: %q vs %q", errUnknown, errInactive)
	}

	// The right password proves ownership, so the real reason is returned.
	if _, err := f.svc.Login(ctx, LoginCommand{Email: "bob@example.com", Password: testPassword}); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}

	// An account without a usable hash never gets past the generic error.
	nohash := &store.User{Email: "dave@example.com", DeactivatedAt: &gone}
	if err := f.store.Users().Create(ctx, nohash); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.svc.Login(ctx, LoginCommand{Email: "dave@example.com", Password: testPassword}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginLockoutThreshold(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@example.com")
	ctx := context.Background()
	bad := LoginCommand{Email: "alice@example.com", Password: "Wrong-pass-1"}

	for i := 0; i < 2; i++ {
		if _, err := f.svc.Login(ctx, bad); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i+1, err)
		}
	}
	if _, err := f.svc.Login(ctx, bad); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("threshold attempt: expected lockout, got %v", err)
	}
	if _, err := f.svc.Login(ctx, LoginCommand{Email: "alice@example.com", Password: testPassword}); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("correct password during lockout: expected lockout, got %v", err)
	}

	f.clock.Advance(11 * time.Minute)
	if res := f.login(t, "alice@example.com", testPassword); res.Tokens == nil {
		t.Fatalf("expected login after lockout expiry")
	}
	if f.metrics.Value(metrics.AccountLocked) != 1 {
		t.Fatalf("expected one lock event")
	}
}

func TestLoginFailureSurvivesRollback(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, "alice@example.com")

	ctx, tx, err := f.store.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := f.svc.Login(ctx, LoginCommand{Email: "alice@example.com", Password: "Wrong-pass-1"}); err == nil {
		t.Fatalf("expected login failure")
	}
	if err := tx.Rollback(context.Background()); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	u, _ := f.store.Users().ByID(context.Background(), reg.User.ID)
	if u.FailedAccessCount != 1 {
		t.Fatalf("expected failed count 1 after rollback, got %d", u.FailedAccessCount)
	}
	if f.auditActions(reg.User.ID)[ActionLogin+":fail"] != 1 {
		t.Fatalf("expected failed login audit to survive rollback")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@example.com")

	_, err := f.svc.Register(context.Background(), RegisterCommand{
		Email: "ALICE@example.com", Password: testPassword, ConfirmPassword: testPassword,
		FirstName: "A", LastName: "B",
	})
	if !errors.Is(err, ErrEmailAlreadyExists) {
		t.Fatalf("expected ErrEmailAlreadyExists, got %v", err)
	}
	if err.Error() != "User with email 'alice@example.com' already exists." {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestRegisterWithEmailConfirmation(t *testing.T) {
	f := newFixture(t, withPolicy(func(p *Policy) { p.RequireEmailConfirmation = true }))
	ctx := context.Background()

	reg := f.register(t, "alice@example.com")
	if reg.Tokens != nil || !reg.RequiresEmailConfirmation {
		t.Fatalf("expected confirmation to be required, got %+v", reg)
	}
	if _, err := f.svc.Login(ctx, LoginCommand{Email: "alice@example.com", Password: testPassword}); !errors.Is(err, ErrEmailNotConfirmed) {
		t.Fatalf("expected ErrEmailNotConfirmed, got %v", err)
	}
	if _, err := f.svc.Login(ctx, LoginCommand{Email: "alice@example.com", Password: "Wrong-pass-1"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password on unconfirmed account must stay generic, got %v", err)
	}

	if _, err := f.svc.ConfirmEmail(ctx, ConfirmEmailCommand{Email: "alice@example.com", Code: "000000"}); !errors.Is(err, ErrConfirmationCodeInvalid) {
		t.Fatalf("expected invalid code, got %v", err)
	}
	code := f.mailer.last(t, codePattern)
	if _, err := f.svc.ConfirmEmail(ctx, ConfirmEmailCommand{Email: "alice@example.com", Code: code}); err != nil {
		t.Fatalf("ConfirmEmail: %v", err)
	}
	if _, err := f.svc.ConfirmEmail(ctx, ConfirmEmailCommand{Email: "alice@example.com", Code: code}); !errors.Is(err, ErrEmailAlreadyConfirmed) {
		t.Fatalf("expected already confirmed, got %v", err)
	}
	if res := f.login(t, "alice@example.com", testPassword); res.Tokens == nil {
		t.Fatalf("expected tokens after confirmation")
	}
}

func TestRegistrationRateLimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cmd := RegisterCommand{Email: "alice@example.com", Password: testPassword, ConfirmPassword: testPassword, FirstName: "A", LastName: "B"}
	for i := 0; i < 5; i++ {
		_, _ = f.svc.Register(ctx, cmd)
	}
	if _, err := f.svc.Register(ctx, cmd); !errors.Is(err, ErrRegistrationLimited) {
		t.Fatalf("expected registration limit, got %v", err)
	}
}

func TestRefreshLogoutAndRevoke(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, "alice@example.com")
	ctx := context.Background()

	pair, err := f.svc.RefreshToken(ctx, RefreshTokenCommand{RefreshToken: reg.Tokens.RefreshToken})
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	if _, err := f.svc.RefreshToken(ctx, RefreshTokenCommand{RefreshToken: reg.Tokens.RefreshToken}); !errors.Is(err, tokens.ErrTokenReuseDetected) {
		t.Fatalf("expected reuse detection, got %v", err)
	}
	// Reuse revoked the successor too.
	if _, err := f.svc.RefreshToken(ctx, RefreshTokenCommand{RefreshToken: pair.RefreshToken}); err == nil {
		t.Fatalf("successor must be revoked after reuse")
	}

	second := f.login(t, "alice@example.com", testPassword).Tokens
	third := f.login(t, "alice@example.com", testPassword).Tokens
	if _, err := f.svc.Logout(ctx, LogoutCommand{UserID: reg.User.ID, RefreshToken: second.RefreshToken}); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := f.svc.Logout(ctx, LogoutCommand{UserID: reg.User.ID, RefreshToken: second.RefreshToken}); err != nil {
		t.Fatalf("second Logout must succeed: %v", err)
	}
	if _, err := f.svc.RefreshToken(ctx, RefreshTokenCommand{RefreshToken: second.RefreshToken}); !errors.Is(err, tokens.ErrTokenInvalid) {
		t.Fatalf("expected logged out token to be invalid, got %v", err)
	}

	res, err := f.svc.RevokeToken(ctx, RevokeTokenCommand{UserID: reg.User.ID, All: true})
	if err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if res.Revoked != 1 {
		t.Fatalf("expected one live token revoked, got %d", res.Revoked)
	}
	if _, err := f.svc.RefreshToken(ctx, RefreshTokenCommand{RefreshToken: third.RefreshToken}); !errors.Is(err, tokens.ErrTokenInvalid) {
		t.Fatalf("expected revoked token to be invalid, got %v", err)
	}
}

func TestForgotAndResetPassword(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, "alice@example.com")
	ctx := context.Background()
	oldRefresh := reg.Tokens.RefreshToken

	unknown, err := f.svc.ForgotPassword(ctx, ForgotPasswordCommand{Email: "nobody@example.com"})
	if err != nil {
		t.Fatalf("ForgotPassword unknown: %v", err)
	}
	if f.mailer.count() != 0 {
		t.Fatalf("no mail must be sent for unknown addresses")
	}
	known, err := f.svc.ForgotPassword(ctx, ForgotPasswordCommand{Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	if unknown.Message != known.Message {
		t.Fatalf("responses must not reveal account existence")
	}
	token := f.mailer.last(t, tokenPattern)

	newPassword := "Brand-new-pass-2"
	if _, err := f.svc.ResetPassword(ctx, ResetPasswordCommand{Email: "alice@example.com", Token: "bogus", NewPassword: newPassword, ConfirmPassword: newPassword}); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected invalid reset token, got %v", err)
	}
	if _, err := f.svc.ResetPassword(ctx, ResetPasswordCommand{Email: "alice@example.com", Token: token, NewPassword: newPassword, ConfirmPassword: newPassword}); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if _, err := f.svc.ResetPassword(ctx, ResetPasswordCommand{Email: "alice@example.com", Token: token, NewPassword: newPassword, ConfirmPassword: newPassword}); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("reset token must be single use, got %v", err)
	}
	if _, err := f.svc.RefreshToken(ctx, RefreshTokenCommand{RefreshToken: oldRefresh}); !errors.Is(err, tokens.ErrTokenInvalid) {
		t.Fatalf("expected refresh tokens revoked by reset, got %v", err)
	}
	if _, err := f.svc.Login(ctx, LoginCommand{Email: "alice@example.com", Password: testPassword}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	f.login(t, "alice@example.com", newPassword)
}

func TestForgotPasswordRateLimited(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@example.com")
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := f.svc.ForgotPassword(ctx, ForgotPasswordCommand{Email: "alice@example.com"}); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	if _, err := f.svc.ForgotPassword(ctx, ForgotPasswordCommand{Email: "alice@example.com"}); !errors.Is(err, ErrPasswordResetLimited) {
		t.Fatalf("expected reset limit, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, "alice@example.com")
	other := f.login(t, "alice@example.com", testPassword).Tokens
	ctx := context.Background()
	newPassword := "Another-pass-3"

	if _, err := f.svc.ChangePassword(ctx, ChangePasswordCommand{UserID: reg.User.ID, CurrentPassword: "Wrong-pass-1", NewPassword: newPassword, ConfirmPassword: newPassword}); !errors.Is(err, ErrCurrentPasswordInvalid) {
		t.Fatalf("expected invalid current password, got %v", err)
	}
	if _, err := f.svc.ChangePassword(ctx, ChangePasswordCommand{UserID: reg.User.ID, CurrentPassword: testPassword, NewPassword: testPassword, ConfirmPassword: testPassword}); !errors.Is(err, ErrPasswordReused) {
		t.Fatalf("expected password reuse rejection, got %v", err)
	}

	res, err := f.svc.ChangePassword(ctx, ChangePasswordCommand{
		UserID: reg.User.ID, CurrentPassword: testPassword, NewPassword: newPassword, ConfirmPassword: newPassword,
		RevokeOtherSessions: true, RefreshToken: reg.Tokens.RefreshToken,
	})
	if err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if res.RevokedSessions != 1 {
		t.Fatalf("expected one other session revoked, got %d", res.RevokedSessions)
	}
	if _, err := f.svc.RefreshToken(ctx, RefreshTokenCommand{RefreshToken: other.RefreshToken}); !errors.Is(err, tokens.ErrTokenInvalid) {
		t.Fatalf("other session must be revoked, got %v", err)
	}
	if _, err := f.svc.RefreshToken(ctx, RefreshTokenCommand{RefreshToken: reg.Tokens.RefreshToken}); err != nil {
		t.Fatalf("current session must survive: %v", err)
	}
}

func TestChangePasswordUnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ChangePassword(context.Background(), ChangePasswordCommand{UserID: uuid.New(), CurrentPassword: "x", NewPassword: "y", ConfirmPassword: "y"})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
