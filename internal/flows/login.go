package flows

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrEthical07/goIdentity/cache"
	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/logger"
	"github.com/MrEthical07/goIdentity/internal/metrics"
	"github.com/MrEthical07/goIdentity/store"
)

const challengePrefix = "mfac:"

// Login authenticates by email and password. Unknown accounts burn the same
// hashing cost as known ones. A wrong password is counted outside the
// request transaction so the count survives the failed request.
func (s *Service) Login(ctx context.Context, cmd LoginCommand) (LoginResult, error) {
	client := ClientFrom(ctx)
	users := s.store.Users()

	u, err := users.ByEmail(ctx, normalizeEmail(cmd.Email))
	if errors.Is(err, store.ErrNotFound) {
		s.hasher.VerifyDummy(cmd.Password)
		s.metrics.Inc(metrics.LoginFailure)
		s.record(ctx, audit.Event{Action: ActionLogin, Method: MethodPassword, Detail: "unknown_account"})
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, err
	}

	now := s.clock()
	if u.IsLockedOut(now) {
		s.metrics.Inc(metrics.LoginLockedOut)
		s.record(ctx, audit.Event{Action: ActionLogin, Method: MethodPassword, UserID: u.ID, Detail: "locked_out"})
		return LoginResult{}, ErrAccountLocked
	}
	if !u.IsActive || u.DeactivatedAt != nil {
		return LoginResult{}, s.inactiveLogin(ctx, u, cmd.Password)
	}

	ok, err := s.hasher.Verify(cmd.Password, u.PasswordHash)
	if err != nil {
		return LoginResult{}, err
	}
	if !ok {
		return LoginResult{}, s.loginFailed(ctx, u, now)
	}

	if err := users.RecordLoginSuccess(ctx, u.ID, now, client.IP); err != nil {
		return LoginResult{}, err
	}
	if s.policy.RehashOnLogin && s.hasher.NeedsRehash(u.PasswordHash) {
		s.rehash(ctx, u, cmd.Password, now)
	}

	if u.TwoFactorEnabled {
		return s.startChallenge(ctx, u, now)
	}

	pair, err := s.tokens.IssueTokenPair(ctx, u, client)
	if err != nil {
		return LoginResult{}, err
	}
	s.metrics.Inc(metrics.LoginSuccess)
	s.record(ctx, audit.Event{Action: ActionLogin, Method: MethodPassword, UserID: u.ID, Success: true})
	return LoginResult{Tokens: &pair, User: userInfo(u)}, nil
}

// inactiveLogin answers a login on an account that cannot sign in. Until the
// password proves ownership the caller gets the same error as for an unknown
// account.
func (s *Service) inactiveLogin(ctx context.Context, u *store.User, plain string) error {
	s.metrics.Inc(metrics.LoginFailure)
	if u.PasswordHash == "" {
		s.hasher.VerifyDummy(plain)
		s.record(ctx, audit.Event{Action: ActionLogin, Method: MethodPassword, UserID: u.ID, Detail: "inactive"})
		return ErrInvalidCredentials
	}
	ok, err := s.hasher.Verify(plain, u.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		s.record(ctx, audit.Event{Action: ActionLogin, Method: MethodPassword, UserID: u.ID, Detail: "inactive_bad_password"})
		return ErrInvalidCredentials
	}
	if u.DeactivatedAt == nil && !u.EmailConfirmed && s.policy.RequireEmailConfirmation {
		s.record(ctx, audit.Event{Action: ActionLogin, Method: MethodPassword, UserID: u.ID, Detail: "email_not_confirmed"})
		return ErrEmailNotConfirmed
	}
	s.record(ctx, audit.Event{Action: ActionLogin, Method: MethodPassword, UserID: u.ID, Detail: "inactive"})
	return ErrAccountInactive
}

func (s *Service) loginFailed(ctx context.Context, u *store.User, now time.Time) error {
	s.metrics.Inc(metrics.LoginFailure)
	s.record(ctx, audit.Event{Action: ActionLogin, Method: MethodPassword, UserID: u.ID, Detail: "bad_password"})
	if s.policy.LockoutThreshold <= 0 {
		return ErrInvalidCredentials
	}

	count, locked, err := s.store.Users().RecordLoginFailure(store.Detach(ctx), u.ID,
		s.policy.LockoutThreshold, now.Add(s.policy.LockoutDuration))
	if err != nil {
		logger.From(ctx).Error("recording login failure failed", logger.UserID(u.ID.String()), logger.Err(err))
		return ErrInvalidCredentials
	}
	if locked {
		s.metrics.Inc(metrics.AccountLocked)
		s.record(ctx, audit.Event{Action: ActionAccountLocked, UserID: u.ID, Success: true,
			Detail: "until " + now.Add(s.policy.LockoutDuration).Format(time.RFC3339)})
		logger.From(ctx).Warn("account locked", logger.UserID(u.ID.String()),
			zap.Duration("duration", s.policy.LockoutDuration))
		return ErrAccountLocked
	}
	logger.From(ctx).Debug("login failure recorded", logger.UserID(u.ID.String()), zap.Int("failed_count", count))
	return ErrInvalidCredentials
}

// rehash upgrades a hash produced with weaker parameters. Failure is logged
// and never fails the login.
func (s *Service) rehash(ctx context.Context, u *store.User, plain string, now time.Time) {
	hash, err := s.hasher.Hash(plain)
	if err == nil {
		err = s.store.Users().UpdatePassword(ctx, u.ID, hash, now)
	}
	if err != nil {
		logger.From(ctx).Warn("password rehash failed", logger.UserID(u.ID.String()), logger.Err(err))
		return
	}
	u.PasswordHash = hash
	s.metrics.Inc(metrics.PasswordRehashed)
}

// startChallenge parks a single-use MFA challenge in the cache. No tokens are
// issued until VerifyMfa completes it.
func (s *Service) startChallenge(ctx context.Context, u *store.User, now time.Time) (LoginResult, error) {
	id := uuid.NewString()
	if err := s.cache.Set(ctx, challengePrefix+id, u.ID.String(), s.policy.MFAChallengeTTL); err != nil {
		return LoginResult{}, err
	}
	expires := now.Add(s.policy.MFAChallengeTTL)
	s.metrics.Inc(metrics.MFAChallengeIssued)
	s.record(ctx, audit.Event{Action: ActionLogin, Method: MethodPassword, UserID: u.ID, Success: true, Detail: "mfa_required"})
	return LoginResult{
		MfaRequired:        true,
		ChallengeID:        id,
		ChallengeExpiresAt: &expires,
		Methods:            []string{MethodTOTP, MethodBackup, MethodEmail},
	}, nil
}

// challengeUser resolves a live challenge without consuming it.
func (s *Service) challengeUser(ctx context.Context, id string) (uuid.UUID, error) {
	raw, err := s.cache.Get(ctx, challengePrefix+id)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return uuid.Nil, ErrMfaChallengeInvalid
		}
		return uuid.Nil, err
	}
	uid, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ErrMfaChallengeInvalid
	}
	return uid, nil
}

// consumeChallenge deletes the challenge; only one caller can succeed.
func (s *Service) consumeChallenge(ctx context.Context, id string) error {
	if _, err := s.cache.Take(ctx, challengePrefix+id); err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return ErrMfaChallengeInvalid
		}
		return err
	}
	return nil
}
