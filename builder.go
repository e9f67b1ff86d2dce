package goIdentity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/MrEthical07/goIdentity/cache"
	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/flows"
	"github.com/MrEthical07/goIdentity/internal/limiters"
	"github.com/MrEthical07/goIdentity/internal/metrics"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/mail"
	"github.com/MrEthical07/goIdentity/mfa"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/pipeline"
	"github.com/MrEthical07/goIdentity/store"
	"github.com/MrEthical07/goIdentity/tokens"
)

// Builder assembles an Engine. A Builder is single use.
type Builder struct {
	config    Config
	store     store.Store
	cache     cache.Cache
	mailer    mail.Sender
	auditSink AuditSink
	logger    *zap.Logger
	registry  prometheus.Registerer

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the credential store. Required.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithCache sets the cache backing rate limits, MFA challenges and the
// refresh denylist. Required.
func (b *Builder) WithCache(c cache.Cache) *Builder {
	b.cache = c
	return b
}

// WithMailer sets the outbound mail transport. Without one, messages are
// only logged.
func (b *Builder) WithMailer(m mail.Sender) *Builder {
	b.mailer = m
	return b
}

// WithAuditSink adds a sink next to the audit_log table.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the base logger. Request-scoped loggers derive from it.
func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithRegistry registers the pipeline instruments on reg.
func (b *Builder) WithRegistry(reg prometheus.Registerer) *Builder {
	b.registry = reg
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("store required")
	}
	if b.cache == nil {
		return nil, errors.New("cache required")
	}

	log := b.logger
	if log == nil {
		log = zap.NewNop()
	}
	mailer := b.mailer
	if mailer == nil {
		mailer = mail.LogSender{}
	}

	// -------- AUDIT + METRICS --------
	var sink audit.Sink = audit.NewStoreSink(b.store.Audit())
	if b.auditSink != nil {
		sink = audit.MultiSink{sink, b.auditSink}
	}
	recorder := audit.NewRecorder(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink)
	m := metrics.New(metrics.Config{
		Enabled:                 cfg.Metrics.Enabled,
		EnableLatencyHistograms: cfg.Metrics.EnableLatencyHistograms,
	})

	// -------- TOKENS --------
	access, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
	})
	if err != nil {
		return nil, err
	}
	tokenService, err := tokens.NewService(access, b.store, b.cache, tokens.Config{RefreshTTL: cfg.Refresh.TTL}, tokens.Hooks{
		OnReuse: func(ctx context.Context, userID uuid.UUID, revoked int) {
			m.Inc(metrics.RefreshReuseDetected)
			recorder.Record(ctx, audit.Event{
				Action: flows.ActionRefreshReuse,
				UserID: userID,
				IP:     flows.ClientFrom(ctx).IP,
				Detail: fmt.Sprintf("revoked_sessions=%d", revoked),
			})
		},
	})
	if err != nil {
		return nil, err
	}

	// -------- CREDENTIALS + MFA --------
	hasher, err := password.NewArgon2(password.Params{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	totp, err := mfa.NewTOTP(mfa.TOTPConfig{
		Issuer:    cfg.TOTP.Issuer,
		Period:    uint(cfg.TOTP.Period),
		Digits:    cfg.TOTP.Digits,
		Skew:      uint(cfg.TOTP.Skew),
		Algorithm: strings.ToUpper(cfg.TOTP.Algorithm),
	})
	if err != nil {
		return nil, err
	}
	sealer, err := mfa.NewSealer(cloneBytes(cfg.TOTP.SealKey))
	if err != nil {
		return nil, err
	}

	// -------- FLOWS --------
	service, err := flows.New(flows.Deps{
		Store:   b.store,
		Tokens:  tokenService,
		Hasher:  hasher,
		TOTP:    totp,
		Sealer:  sealer,
		Cache:   b.cache,
		Mailer:  mailer,
		Audit:   recorder,
		Metrics: m,
		MFAVerify: limiters.NewMFAVerifyLimiter(b.cache, limiters.MFAVerifyConfig{
			MaxAttempts: cfg.MFAVerify.MaxAttempts,
			Window:      cfg.MFAVerify.Window,
		}),
		EmailOTP: limiters.NewEmailOTPLimiter(b.cache, limiters.EmailOTPConfig{
			MaxSends: cfg.EmailOTP.MaxSends,
			Window:   cfg.EmailOTP.Window,
		}),
		PasswordReset: limiters.NewPasswordResetLimiter(b.cache, limiters.PasswordResetConfig{
			EnableIPThrottle: cfg.PasswordReset.EnableIPThrottle,
			MaxRequests:      cfg.PasswordReset.MaxRequests,
			Window:           cfg.PasswordReset.Window,
		}),
		Registration: limiters.NewRegistrationLimiter(b.cache, limiters.RegistrationConfig{
			EnableIdentifierThrottle: cfg.Registration.EnableIdentifierThrottle,
			EnableIPThrottle:         cfg.Registration.EnableIPThrottle,
			MaxAttempts:              cfg.Registration.MaxAttempts,
			Cooldown:                 cfg.Registration.Cooldown,
		}),
		Policy: flows.Policy{
			LockoutThreshold:         cfg.Lockout.Threshold,
			LockoutDuration:          cfg.Lockout.Duration,
			RehashOnLogin:            cfg.Password.UpgradeOnLogin,
			DefaultRole:              cfg.Registration.DefaultRole,
			RequireEmailConfirmation: cfg.Registration.RequireEmailConfirmation,
			ConfirmationCodeTTL:      cfg.Registration.ConfirmationTTL,
			ResetTokenTTL:            cfg.PasswordReset.TokenTTL,
			ResetTokenBytes:          cfg.PasswordReset.TokenBytes,
			ResetURL:                 cfg.PasswordReset.ResetURL,
			MFAChallengeTTL:          cfg.TOTP.ChallengeTTL,
			EmailOTPTTL:              cfg.EmailOTP.TTL,
			EmailOTPDigits:           cfg.EmailOTP.Digits,
			BackupCodeCount:          cfg.BackupCodes.Count,
		},
	})
	if err != nil {
		recorder.Close()
		return nil, err
	}

	// -------- PIPELINE --------
	pipeMetrics, err := pipeline.NewMetrics(b.registry)
	if err != nil {
		recorder.Close()
		return nil, err
	}
	mediator := pipeline.New(
		pipeline.Validation(pipeline.NewValidator()),
		pipeline.Transaction(b.store),
		pipeline.Performance(cfg.Pipeline.SlowThreshold, pipeMetrics),
		pipeline.Logging(),
	)
	registerHandlers(mediator, service)

	b.built = true
	return &Engine{
		config:   cloneConfig(cfg),
		mediator: mediator,
		tokens:   tokenService,
		store:    b.store,
		cache:    b.cache,
		audit:    recorder,
		metrics:  m,
		logger:   log,
	}, nil
}

func registerHandlers(m *pipeline.Mediator, s *flows.Service) {
	pipeline.Register(m, s.Login)
	pipeline.Register(m, s.Register)
	pipeline.Register(m, s.ConfirmEmail)
	pipeline.Register(m, s.RefreshToken)
	pipeline.Register(m, s.Logout)
	pipeline.Register(m, s.RevokeToken)
	pipeline.Register(m, s.GetSessions)
	pipeline.Register(m, s.DeleteSession)
	pipeline.Register(m, s.GetCurrentUser)
	pipeline.Register(m, s.ForgotPassword)
	pipeline.Register(m, s.ResetPassword)
	pipeline.Register(m, s.ChangePassword)
	pipeline.Register(m, s.SetupMfa)
	pipeline.Register(m, s.EnableMfa)
	pipeline.Register(m, s.VerifyMfa)
	pipeline.Register(m, s.SendMfaEmailOtp)
	pipeline.Register(m, s.DisableMfa)
	pipeline.Register(m, s.RegenerateBackupCodes)
	pipeline.Register(m, s.GetMfaStatus)
}
