package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/limiters"
	"github.com/MrEthical07/goIdentity/internal/metrics"
	"github.com/MrEthical07/goIdentity/mail"
	"github.com/MrEthical07/goIdentity/mfa"
	"github.com/MrEthical07/goIdentity/store"
)

// VerifyMfa checks a TOTP, backup or email code. The attempt cap is charged
// before anything else. With a ChallengeID a successful check consumes the
// challenge and completes the login with a token pair.
func (s *Service) VerifyMfa(ctx context.Context, cmd VerifyMfaCommand) (VerifyMfaResult, error) {
	userID, err := s.resolveUser(ctx, cmd.UserID, cmd.ChallengeID)
	if err != nil {
		return VerifyMfaResult{}, err
	}
	if err := s.attempt(ctx, userID, cmd.Type); err != nil {
		return VerifyMfaResult{}, err
	}

	current, err := s.settings(ctx, userID)
	if err != nil {
		return VerifyMfaResult{}, err
	}
	if current.State != store.MfaEnabled {
		return VerifyMfaResult{}, ErrMfaNotEnabled
	}
	if err := s.verifyCode(ctx, current, cmd.Type, cmd.Code); err != nil {
		return VerifyMfaResult{}, err
	}

	out := VerifyMfaResult{Verified: true, Method: cmd.Type}
	if cmd.Type == MethodBackup {
		remaining, err := s.store.BackupCodes().Remaining(ctx, userID)
		if err != nil {
			return VerifyMfaResult{}, err
		}
		out.BackupCodesRemaining = &remaining
	}

	if cmd.ChallengeID != "" {
		if err := s.consumeChallenge(ctx, cmd.ChallengeID); err != nil {
			return VerifyMfaResult{}, err
		}
		u, err := s.user(ctx, userID)
		if err != nil {
			return VerifyMfaResult{}, err
		}
		if !u.IsActive || u.DeactivatedAt != nil {
			return VerifyMfaResult{}, ErrAccountInactive
		}
		pair, err := s.tokens.IssueTokenPair(ctx, u, ClientFrom(ctx))
		if err != nil {
			return VerifyMfaResult{}, err
		}
		out.Tokens = &pair
		s.metrics.Inc(metrics.LoginSuccess)
	}

	s.record(ctx, audit.Event{Action: ActionMfaVerify, Method: cmd.Type, UserID: userID, Success: true})
	return out, nil
}

// SendMfaEmailOtp mails a login code, replacing any live one. Sends are
// capped per user separately from verification attempts.
func (s *Service) SendMfaEmailOtp(ctx context.Context, cmd SendMfaEmailOtpCommand) (EmailOtpSentResult, error) {
	userID, err := s.resolveUser(ctx, cmd.UserID, cmd.ChallengeID)
	if err != nil {
		return EmailOtpSentResult{}, err
	}
	current, err := s.settings(ctx, userID)
	if err != nil {
		return EmailOtpSentResult{}, err
	}
	if current.State != store.MfaEnabled {
		return EmailOtpSentResult{}, ErrMfaNotEnabled
	}
	if err := s.emailOTP.Allow(ctx, userID.String(), string(store.OtpLogin)); err != nil {
		if errors.Is(err, limiters.ErrEmailOTPLimited) {
			s.metrics.Inc(metrics.EmailOTPRateLimited)
			return EmailOtpSentResult{}, ErrEmailOtpLimited
		}
		return EmailOtpSentResult{}, err
	}

	u, err := s.user(ctx, userID)
	if err != nil {
		return EmailOtpSentResult{}, err
	}
	code, expires, err := s.issueCode(ctx, u, store.OtpLogin, s.policy.EmailOTPTTL)
	if err != nil {
		return EmailOtpSentResult{}, err
	}
	msg := mail.Message{
		To:      u.Email,
		Subject: "Your sign-in code",
		Text:    fmt.Sprintf("Your verification code is %s. It expires in %s.\n", code, s.policy.EmailOTPTTL),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return EmailOtpSentResult{}, fmt.Errorf("flows: send email otp: %w", err)
	}

	s.metrics.Inc(metrics.EmailOTPSent)
	s.record(ctx, audit.Event{Action: ActionEmailOtpSent, Method: MethodEmail, UserID: u.ID, Success: true})
	return EmailOtpSentResult{SentTo: maskEmail(u.Email), ExpiresAt: expires}, nil
}

// resolveUser maps a challenge to its user. When both are given they must
// agree.
func (s *Service) resolveUser(ctx context.Context, userID uuid.UUID, challengeID string) (uuid.UUID, error) {
	if challengeID == "" {
		return userID, nil
	}
	owner, err := s.challengeUser(ctx, challengeID)
	if err != nil {
		return uuid.Nil, err
	}
	if userID != uuid.Nil && userID != owner {
		return uuid.Nil, ErrMfaChallengeInvalid
	}
	return owner, nil
}

// attempt charges one verification attempt against the user's budget.
func (s *Service) attempt(ctx context.Context, userID uuid.UUID, method string) error {
	err := s.mfaVerify.Attempt(ctx, userID.String())
	if err == nil {
		return nil
	}
	if errors.Is(err, limiters.ErrMFAVerifyLimited) {
		s.metrics.Inc(metrics.MFAAttemptsExceeded)
		s.record(ctx, audit.Event{Action: ActionMfaVerify, Method: method, UserID: userID, Detail: "attempts_exceeded"})
		return ErrMfaAttemptsExceeded
	}
	return err
}

// checkCode is attempt followed by verifyCode.
func (s *Service) checkCode(ctx context.Context, st *store.MfaSettings, method, code string) error {
	if err := s.attempt(ctx, st.UserID, method); err != nil {
		return err
	}
	return s.verifyCode(ctx, st, method, code)
}

// verifyCode matches code and audits the outcome. A success resets the
// attempt budget.
func (s *Service) verifyCode(ctx context.Context, st *store.MfaSettings, method, code string) error {
	ok, err := s.matchCode(ctx, st, method, code)
	if err != nil {
		return err
	}
	if !ok {
		s.metrics.Inc(metrics.MFAVerifyFailure)
		action := ActionMfaVerify
		if method == MethodTOTP {
			action = ActionTotpFailed
		}
		s.record(ctx, audit.Event{Action: action, Method: method, UserID: st.UserID})
		return ErrMfaCodeInvalid
	}
	_ = s.mfaVerify.Reset(ctx, st.UserID.String())
	s.metrics.Inc(metrics.MFAVerifySuccess)
	if method == MethodBackup {
		s.metrics.Inc(metrics.BackupCodeUsed)
	}
	return nil
}

func (s *Service) matchCode(ctx context.Context, st *store.MfaSettings, method, code string) (bool, error) {
	now := s.clock()
	switch method {
	case MethodTOTP:
		secret, err := s.openSecret(st)
		if err != nil {
			return false, err
		}
		ok, step, err := s.totp.Verify(secret, code, now)
		if err != nil || !ok {
			return false, err
		}
		fresh, err := s.store.MFA().AdvanceStep(ctx, st.UserID, step, now)
		if err != nil {
			return false, err
		}
		if !fresh {
			s.metrics.Inc(metrics.TOTPReplay)
		}
		return fresh, nil
	case MethodBackup:
		canonical := mfa.CanonicalizeBackupCode(code)
		if len(canonical) != mfa.BackupCodeLength {
			return false, nil
		}
		hash := mfa.BackupCodeHash(st.UserID.String(), canonical)
		return s.store.BackupCodes().Consume(ctx, st.UserID, hash[:], now)
	case MethodEmail:
		hash := mfa.HashOTP(st.UserID.String(), string(store.OtpLogin), code)
		return s.store.EmailOtps().Consume(ctx, st.UserID, store.OtpLogin, hash[:], now)
	default:
		return false, fmt.Errorf("flows: unknown mfa method %q", method)
	}
}
