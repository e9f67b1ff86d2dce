package flows

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/google/uuid"

	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/limiters"
	"github.com/MrEthical07/goIdentity/internal/logger"
	"github.com/MrEthical07/goIdentity/internal/metrics"
	"github.com/MrEthical07/goIdentity/mail"
	"github.com/MrEthical07/goIdentity/mfa"
	"github.com/MrEthical07/goIdentity/store"
	"github.com/MrEthical07/goIdentity/tokens"
)

const forgotPasswordAck = "If the address belongs to an active account, a reset link has been sent."

// ForgotPassword answers the same way for every address. A known active
// account gets a single-use reset token by mail.
func (s *Service) ForgotPassword(ctx context.Context, cmd ForgotPasswordCommand) (Ack, error) {
	email := normalizeEmail(cmd.Email)
	if err := s.passwordReset.Allow(ctx, email, ClientFrom(ctx).IP); err != nil {
		if errors.Is(err, limiters.ErrResetRateLimited) {
			s.metrics.Inc(metrics.PasswordResetRateLimited)
			return Ack{}, ErrPasswordResetLimited
		}
		return Ack{}, err
	}
	s.metrics.Inc(metrics.PasswordResetRequest)

	u, err := s.store.Users().ByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return Ack{Message: forgotPasswordAck}, nil
	}
	if err != nil {
		return Ack{}, err
	}
	if !u.IsActive || u.DeactivatedAt != nil {
		return Ack{Message: forgotPasswordAck}, nil
	}

	token, err := mfa.NewOpaqueToken(s.policy.ResetTokenBytes)
	if err != nil {
		return Ack{}, err
	}
	now := s.clock()
	hash := mfa.HashOTP(u.ID.String(), string(store.OtpForgotPassword), token)
	err = s.store.EmailOtps().Issue(ctx, &store.EmailOtp{
		ID:        uuid.New(),
		UserID:    u.ID,
		Purpose:   store.OtpForgotPassword,
		CodeHash:  hash[:],
		ExpiresAt: now.Add(s.policy.ResetTokenTTL),
		CreatedAt: now,
	})
	if err != nil {
		return Ack{}, err
	}

	if err := s.mailer.Send(ctx, s.resetMessage(u, token)); err != nil {
		logger.From(ctx).Error("sending password reset failed", logger.UserID(u.ID.String()), logger.Err(err))
	}
	s.record(ctx, audit.Event{Action: ActionPasswordResetSent, Method: MethodEmail, UserID: u.ID, Success: true})
	return Ack{Message: forgotPasswordAck}, nil
}

func (s *Service) resetMessage(u *store.User, token string) mail.Message {
	body := fmt.Sprintf("Hello %s,\n\nuse this token to reset your password: %s\nIt expires in %s.\n",
		u.FirstName, token, s.policy.ResetTokenTTL)
	if s.policy.ResetURL != "" {
		q := url.Values{"email": {u.Email}, "token": {token}}
		body += "\nOr open " + s.policy.ResetURL + "?" + q.Encode() + "\n"
	}
	return mail.Message{To: u.Email, Subject: "Reset your password", Text: body}
}

// ResetPassword redeems a reset token, sets the new password, clears any
// lockout and revokes every refresh token of the account.
func (s *Service) ResetPassword(ctx context.Context, cmd ResetPasswordCommand) (Ack, error) {
	u, err := s.store.Users().ByEmail(ctx, normalizeEmail(cmd.Email))
	if errors.Is(err, store.ErrNotFound) {
		s.metrics.Inc(metrics.PasswordResetFailure)
		return Ack{}, ErrResetTokenInvalid
	}
	if err != nil {
		return Ack{}, err
	}

	now := s.clock()
	hash := mfa.HashOTP(u.ID.String(), string(store.OtpForgotPassword), cmd.Token)
	ok, err := s.store.EmailOtps().Consume(ctx, u.ID, store.OtpForgotPassword, hash[:], now)
	if err != nil {
		return Ack{}, err
	}
	if !ok {
		s.metrics.Inc(metrics.PasswordResetFailure)
		s.record(ctx, audit.Event{Action: ActionPasswordReset, Method: MethodEmail, UserID: u.ID})
		return Ack{}, ErrResetTokenInvalid
	}

	newHash, err := s.hasher.Hash(cmd.NewPassword)
	if err != nil {
		return Ack{}, err
	}
	if err := s.store.Users().UpdatePassword(ctx, u.ID, newHash, now); err != nil {
		return Ack{}, err
	}
	revoked, err := s.tokens.RevokeAll(ctx, u.ID, store.RevokePasswordReset)
	if err != nil {
		return Ack{}, err
	}

	s.metrics.Inc(metrics.PasswordResetSuccess)
	s.record(ctx, audit.Event{Action: ActionPasswordReset, Method: MethodEmail, UserID: u.ID, Success: true,
		Detail: fmt.Sprintf("revoked_sessions=%d", revoked)})
	return Ack{Message: "Password has been reset."}, nil
}

// ChangePassword requires proof of the current password. With
// RevokeOtherSessions every refresh token except the caller's own is revoked.
func (s *Service) ChangePassword(ctx context.Context, cmd ChangePasswordCommand) (ChangePasswordResult, error) {
	u, err := s.user(ctx, cmd.UserID)
	if err != nil {
		return ChangePasswordResult{}, err
	}

	ok, err := s.hasher.Verify(cmd.CurrentPassword, u.PasswordHash)
	if err != nil {
		return ChangePasswordResult{}, err
	}
	if !ok {
		s.metrics.Inc(metrics.PasswordChangeInvalidCurrent)
		s.record(ctx, audit.Event{Action: ActionPasswordChanged, Method: MethodPassword, UserID: u.ID, Detail: "bad_current_password"})
		return ChangePasswordResult{}, ErrCurrentPasswordInvalid
	}
	same, err := s.hasher.Verify(cmd.NewPassword, u.PasswordHash)
	if err != nil {
		return ChangePasswordResult{}, err
	}
	if same {
		s.metrics.Inc(metrics.PasswordChangeReuseRejected)
		return ChangePasswordResult{}, ErrPasswordReused
	}

	newHash, err := s.hasher.Hash(cmd.NewPassword)
	if err != nil {
		return ChangePasswordResult{}, err
	}
	if err := s.store.Users().UpdatePassword(ctx, u.ID, newHash, s.clock()); err != nil {
		return ChangePasswordResult{}, err
	}

	var out ChangePasswordResult
	if cmd.RevokeOtherSessions {
		var keep []uuid.UUID
		if id, ok := tokens.TokenID(cmd.RefreshToken); ok {
			keep = append(keep, id)
		}
		if out.RevokedSessions, err = s.tokens.RevokeAll(ctx, u.ID, store.RevokePasswordChange, keep...); err != nil {
			return ChangePasswordResult{}, err
		}
	}

	s.metrics.Inc(metrics.PasswordChangeSuccess)
	s.record(ctx, audit.Event{Action: ActionPasswordChanged, Method: MethodPassword, UserID: u.ID, Success: true,
		Detail: fmt.Sprintf("revoked_sessions=%d", out.RevokedSessions)})
	return out, nil
}
