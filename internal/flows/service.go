package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goIdentity/cache"
	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/limiters"
	"github.com/MrEthical07/goIdentity/internal/metrics"
	"github.com/MrEthical07/goIdentity/mail"
	"github.com/MrEthical07/goIdentity/mfa"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/store"
	"github.com/MrEthical07/goIdentity/tokens"
)

// Hasher is the password hasher the flows need, including the timing
// equalizer used for unknown accounts.
type Hasher interface {
	password.Hasher
	VerifyDummy(plain string)
}

// Auditor receives audit events. Implementations must not join the
// caller's transaction.
type Auditor interface {
	Record(ctx context.Context, e audit.Event)
}

// Policy holds the behavioral knobs of the flows. Zero values are replaced
// by the defaults documented on each field.
type Policy struct {
	// LockoutThreshold failed logins lock the account for LockoutDuration.
	// A threshold of 0 disables lockout.
	LockoutThreshold int
	LockoutDuration  time.Duration // 15m
	RehashOnLogin    bool

	DefaultRole              string // User
	RequireEmailConfirmation bool
	ConfirmationCodeTTL      time.Duration // 24h

	ResetTokenTTL   time.Duration // 15m
	ResetTokenBytes int           // 32
	// ResetURL, when set, is sent as a link with email and token query
	// parameters appended.
	ResetURL string

	MFAChallengeTTL time.Duration // 5m
	EmailOTPTTL     time.Duration // 10m
	EmailOTPDigits  int           // 6
	BackupCodeCount int           // 10
}

func (p Policy) withDefaults() Policy {
	if p.LockoutDuration <= 0 {
		p.LockoutDuration = 15 * time.Minute
	}
	if p.DefaultRole == "" {
		p.DefaultRole = store.RoleUser
	}
	if p.ConfirmationCodeTTL <= 0 {
		p.ConfirmationCodeTTL = 24 * time.Hour
	}
	if p.ResetTokenTTL <= 0 {
		p.ResetTokenTTL = 15 * time.Minute
	}
	if p.ResetTokenBytes <= 0 {
		p.ResetTokenBytes = 32
	}
	if p.MFAChallengeTTL <= 0 {
		p.MFAChallengeTTL = 5 * time.Minute
	}
	if p.EmailOTPTTL <= 0 {
		p.EmailOTPTTL = 10 * time.Minute
	}
	if p.EmailOTPDigits <= 0 {
		p.EmailOTPDigits = 6
	}
	if p.BackupCodeCount <= 0 {
		p.BackupCodeCount = 10
	}
	return p
}

// Deps wires a Service. Limiters, Audit and Metrics are optional.
type Deps struct {
	Store  store.Store
	Tokens *tokens.Service
	Hasher Hasher
	TOTP   *mfa.TOTP
	Sealer *mfa.Sealer
	Cache  cache.Cache
	Mailer mail.Sender

	Audit   Auditor
	Metrics *metrics.Metrics

	MFAVerify     *limiters.MFAVerifyLimiter
	EmailOTP      *limiters.EmailOTPLimiter
	PasswordReset *limiters.PasswordResetLimiter
	Registration  *limiters.RegistrationLimiter

	Policy Policy
	Now    func() time.Time
}

// Service runs the identity flows. It is immutable after New and safe for
// concurrent use.
type Service struct {
	store   store.Store
	tokens  *tokens.Service
	hasher  Hasher
	totp    *mfa.TOTP
	sealer  *mfa.Sealer
	cache   cache.Cache
	mailer  mail.Sender
	audit   Auditor
	metrics *metrics.Metrics

	mfaVerify     *limiters.MFAVerifyLimiter
	emailOTP      *limiters.EmailOTPLimiter
	passwordReset *limiters.PasswordResetLimiter
	registration  *limiters.RegistrationLimiter

	policy Policy
	now    func() time.Time
}

func New(d Deps) (*Service, error) {
	switch {
	case d.Store == nil:
		return nil, errors.New("flows: store is required")
	case d.Tokens == nil:
		return nil, errors.New("flows: token service is required")
	case d.Hasher == nil:
		return nil, errors.New("flows: password hasher is required")
	case d.TOTP == nil || d.Sealer == nil:
		return nil, errors.New("flows: totp engine and secret sealer are required")
	case d.Cache == nil:
		return nil, errors.New("flows: cache is required")
	case d.Mailer == nil:
		return nil, errors.New("flows: mailer is required")
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{
		store:         d.Store,
		tokens:        d.Tokens,
		hasher:        d.Hasher,
		totp:          d.TOTP,
		sealer:        d.Sealer,
		cache:         d.Cache,
		mailer:        d.Mailer,
		audit:         d.Audit,
		metrics:       d.Metrics,
		mfaVerify:     d.MFAVerify,
		emailOTP:      d.EmailOTP,
		passwordReset: d.PasswordReset,
		registration:  d.Registration,
		policy:        d.Policy.withDefaults(),
		now:           d.Now,
	}, nil
}

func (s *Service) clock() time.Time { return s.now().UTC() }

func (s *Service) record(ctx context.Context, e audit.Event) {
	if s.audit == nil {
		return
	}
	client := ClientFrom(ctx)
	if e.IP == "" {
		e.IP = client.IP
	}
	if e.UserAgent == "" {
		e.UserAgent = client.UserAgent
	}
	s.audit.Record(ctx, e)
}

func (s *Service) user(ctx context.Context, id uuid.UUID) (*store.User, error) {
	u, err := s.store.Users().ByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, userNotFound(id)
	}
	return u, err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// maskEmail keeps the first character of the local part: j***@example.com.
func maskEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
