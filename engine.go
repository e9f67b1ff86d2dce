package goIdentity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrEthical07/goIdentity/cache"
	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/logger"
	"github.com/MrEthical07/goIdentity/internal/metrics"
	"github.com/MrEthical07/goIdentity/pipeline"
	"github.com/MrEthical07/goIdentity/store"
	"github.com/MrEthical07/goIdentity/tokens"
)

// Engine is the identity service. Every command and query goes through the
// pipeline: validation, a transaction for writes, timing and logging. Engine
// methods are safe for concurrent use after Build.
type Engine struct {
	config   Config
	mediator *pipeline.Mediator
	tokens   *tokens.Service
	store    store.Store
	cache    cache.Cache
	audit    *audit.Recorder
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// Principal is the identity proven by a valid access token.
type Principal struct {
	UserID         uuid.UUID
	Email          string
	Roles          []string
	EmailConfirmed bool
	TokenID        string
	// SessionID is the refresh token the access token was issued with, or
	// uuid.Nil for tokens minted without one.
	SessionID      uuid.UUID
	ExpiresAt      time.Time
}

// HasRole reports whether p carries role.
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Close drains pending audit events. It does not close the store or cache.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped returns how many audit events were dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the effective configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Ping checks the store and the cache.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := e.cache.Ping(ctx); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return nil
}

// ValidateAccessToken verifies signature and claims of an access token. It
// never touches the store or the cache.
func (e *Engine) ValidateAccessToken(ctx context.Context, raw string) (*Principal, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
		defer func() { e.metrics.Observe(metrics.ValidateLatency, time.Since(start)) }()
	}

	claims, err := e.tokens.ValidateAccessToken(raw)
	if err != nil {
		return nil, err
	}
	uid, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrAccessTokenInvalid.Wrap(err)
	}
	p := &Principal{
		UserID:         uid,
		Email:          claims.Email,
		Roles:          claims.Roles,
		EmailConfirmed: claims.EmailConfirmed,
		TokenID:        claims.ID,
	}
	if sid, err := uuid.Parse(claims.SessionID); err == nil {
		p.SessionID = sid
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

/*
====================================
AUTH
====================================
*/

// Login authenticates by email and password. When MFA is enabled the result
// carries a challenge instead of tokens; complete it with VerifyMfa.
func (e *Engine) Login(ctx context.Context, cmd LoginCommand) (LoginResult, error) {
	return send[LoginResult](ctx, e, cmd)
}

// Register creates an account. Depending on configuration it returns tokens
// or mails a confirmation code.
func (e *Engine) Register(ctx context.Context, cmd RegisterCommand) (RegisterResult, error) {
	return send[RegisterResult](ctx, e, cmd)
}

func (e *Engine) ConfirmEmail(ctx context.Context, cmd ConfirmEmailCommand) (Ack, error) {
	return send[Ack](ctx, e, cmd)
}

// RefreshToken rotates a refresh token. Presenting an already rotated token
// revokes every session of its owner.
func (e *Engine) RefreshToken(ctx context.Context, cmd RefreshTokenCommand) (TokenPair, error) {
	return send[TokenPair](ctx, e, cmd)
}

func (e *Engine) Logout(ctx context.Context, cmd LogoutCommand) (Ack, error) {
	return send[Ack](ctx, e, cmd)
}

func (e *Engine) RevokeToken(ctx context.Context, cmd RevokeTokenCommand) (RevokeResult, error) {
	return send[RevokeResult](ctx, e, cmd)
}

// GetSessions lists the live sessions of a user. Set CurrentSessionID from
// Principal.SessionID to flag the caller's own session.
func (e *Engine) GetSessions(ctx context.Context, q GetSessionsQuery) (SessionsResult, error) {
	return send[SessionsResult](ctx, e, q)
}

func (e *Engine) DeleteSession(ctx context.Context, cmd DeleteSessionCommand) (Ack, error) {
	return send[Ack](ctx, e, cmd)
}

func (e *Engine) GetCurrentUser(ctx context.Context, q GetCurrentUserQuery) (CurrentUser, error) {
	return send[CurrentUser](ctx, e, q)
}

// ForgotPassword mails a reset token. The response is identical whether or
// not the address belongs to an account.
func (e *Engine) ForgotPassword(ctx context.Context, cmd ForgotPasswordCommand) (Ack, error) {
	return send[Ack](ctx, e, cmd)
}

// ResetPassword redeems a reset token and revokes every refresh token.
func (e *Engine) ResetPassword(ctx context.Context, cmd ResetPasswordCommand) (Ack, error) {
	return send[Ack](ctx, e, cmd)
}

func (e *Engine) ChangePassword(ctx context.Context, cmd ChangePasswordCommand) (ChangePasswordResult, error) {
	return send[ChangePasswordResult](ctx, e, cmd)
}

/*
====================================
MFA
====================================
*/

func (e *Engine) SetupMfa(ctx context.Context, cmd SetupMfaCommand) (MfaSetupResult, error) {
	return send[MfaSetupResult](ctx, e, cmd)
}

func (e *Engine) EnableMfa(ctx context.Context, cmd EnableMfaCommand) (MfaEnabledResult, error) {
	return send[MfaEnabledResult](ctx, e, cmd)
}

// VerifyMfa checks a second factor. With a ChallengeID it completes a login.
func (e *Engine) VerifyMfa(ctx context.Context, cmd VerifyMfaCommand) (VerifyMfaResult, error) {
	return send[VerifyMfaResult](ctx, e, cmd)
}

func (e *Engine) SendMfaEmailOtp(ctx context.Context, cmd SendMfaEmailOtpCommand) (EmailOtpSentResult, error) {
	return send[EmailOtpSentResult](ctx, e, cmd)
}

func (e *Engine) DisableMfa(ctx context.Context, cmd DisableMfaCommand) (Ack, error) {
	return send[Ack](ctx, e, cmd)
}

func (e *Engine) RegenerateBackupCodes(ctx context.Context, cmd RegenerateBackupCodesCommand) (BackupCodesResult, error) {
	return send[BackupCodesResult](ctx, e, cmd)
}

func (e *Engine) GetMfaStatus(ctx context.Context, q GetMfaStatusQuery) (MfaStatus, error) {
	return send[MfaStatus](ctx, e, q)
}

func send[Res any](ctx context.Context, e *Engine, req pipeline.Request) (Res, error) {
	if e == nil || e.mediator == nil {
		var zero Res
		return zero, ErrEngineNotReady
	}
	if logger.From(ctx) == zap.L() {
		ctx = logger.ToContext(ctx, e.logger)
	}
	return pipeline.Send[Res](ctx, e.mediator, req)
}
