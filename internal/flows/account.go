package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/limiters"
	"github.com/MrEthical07/goIdentity/internal/metrics"
	"github.com/MrEthical07/goIdentity/mail"
	"github.com/MrEthical07/goIdentity/mfa"
	"github.com/MrEthical07/goIdentity/store"
)

// Register creates an account with the default role. With email
// confirmation required the account starts inactive and a code is mailed;
// otherwise a token pair is returned right away.
func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (RegisterResult, error) {
	email := normalizeEmail(cmd.Email)
	client := ClientFrom(ctx)

	if err := s.registration.Allow(ctx, email, client.IP); err != nil {
		if errors.Is(err, limiters.ErrRegistrationLimited) {
			s.metrics.Inc(metrics.RegisterRateLimited)
			return RegisterResult{}, ErrRegistrationLimited
		}
		return RegisterResult{}, err
	}

	users := s.store.Users()
	if _, err := users.ByEmail(ctx, email); err == nil {
		s.metrics.Inc(metrics.RegisterDuplicate)
		return RegisterResult{}, emailExists(email)
	} else if !errors.Is(err, store.ErrNotFound) {
		return RegisterResult{}, err
	}

	hash, err := s.hasher.Hash(cmd.Password)
	if err != nil {
		return RegisterResult{}, err
	}
	now := s.clock()
	confirm := s.policy.RequireEmailConfirmation
	u := &store.User{
		ID:             uuid.New(),
		Email:          email,
		PasswordHash:   hash,
		FirstName:      strings.TrimSpace(cmd.FirstName),
		LastName:       strings.TrimSpace(cmd.LastName),
		Phone:          strings.TrimSpace(cmd.Phone),
		EmailConfirmed: !confirm,
		IsActive:       !confirm,
		CreatedAt:      now,
		UpdatedAt:      now,
		Roles:          []string{s.policy.DefaultRole},
	}
	if err := users.Create(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			s.metrics.Inc(metrics.RegisterDuplicate)
			return RegisterResult{}, emailExists(email)
		}
		return RegisterResult{}, err
	}
	s.metrics.Inc(metrics.RegisterSuccess)
	s.record(ctx, audit.Event{Action: ActionRegister, UserID: u.ID, Success: true})

	out := RegisterResult{User: userInfo(u), RequiresEmailConfirmation: confirm}
	if confirm {
		code, _, err := s.issueCode(ctx, u, store.OtpRegister, s.policy.ConfirmationCodeTTL)
		if err != nil {
			return RegisterResult{}, err
		}
		msg := mail.Message{
			To:      u.Email,
			Subject: "Confirm your email address",
			Text: fmt.Sprintf("Hello %s,\n\nyour confirmation code is %s. It expires in %s.\n",
				u.FirstName, code, s.policy.ConfirmationCodeTTL),
		}
		if err := s.mailer.Send(ctx, msg); err != nil {
			return RegisterResult{}, fmt.Errorf("flows: send confirmation: %w", err)
		}
		return out, nil
	}

	pair, err := s.tokens.IssueTokenPair(ctx, u, client)
	if err != nil {
		return RegisterResult{}, err
	}
	out.Tokens = &pair
	return out, nil
}

// ConfirmEmail consumes the registration code and activates the account.
// Unknown emails and wrong codes fail identically.
func (s *Service) ConfirmEmail(ctx context.Context, cmd ConfirmEmailCommand) (Ack, error) {
	u, err := s.store.Users().ByEmail(ctx, normalizeEmail(cmd.Email))
	if errors.Is(err, store.ErrNotFound) {
		return Ack{}, ErrConfirmationCodeInvalid
	}
	if err != nil {
		return Ack{}, err
	}
	if u.EmailConfirmed {
		return Ack{}, ErrEmailAlreadyConfirmed
	}
	if err := s.mfaVerify.Attempt(ctx, "confirm:"+u.ID.String()); err != nil {
		if errors.Is(err, limiters.ErrMFAVerifyLimited) {
			return Ack{}, ErrMfaAttemptsExceeded
		}
		return Ack{}, err
	}

	now := s.clock()
	hash := mfa.HashOTP(u.ID.String(), string(store.OtpRegister), cmd.Code)
	ok, err := s.store.EmailOtps().Consume(ctx, u.ID, store.OtpRegister, hash[:], now)
	if err != nil {
		return Ack{}, err
	}
	if !ok {
		s.record(ctx, audit.Event{Action: ActionEmailConfirmed, Method: MethodEmail, UserID: u.ID})
		return Ack{}, ErrConfirmationCodeInvalid
	}
	if err := s.store.Users().Confirm(ctx, u.ID, now); err != nil {
		return Ack{}, err
	}
	_ = s.mfaVerify.Reset(ctx, "confirm:"+u.ID.String())
	s.metrics.Inc(metrics.EmailConfirmed)
	s.record(ctx, audit.Event{Action: ActionEmailConfirmed, Method: MethodEmail, UserID: u.ID, Success: true})
	return Ack{Message: "Email address confirmed."}, nil
}

// issueCode stores a fresh numeric code for purpose, replacing live ones,
// and returns the cleartext for delivery with its expiry.
func (s *Service) issueCode(ctx context.Context, u *store.User, purpose store.OtpPurpose, ttl time.Duration) (string, time.Time, error) {
	code, err := mfa.NewNumericCode(s.policy.EmailOTPDigits)
	if err != nil {
		return "", time.Time{}, err
	}
	now := s.clock()
	expires := now.Add(ttl)
	hash := mfa.HashOTP(u.ID.String(), string(purpose), code)
	err = s.store.EmailOtps().Issue(ctx, &store.EmailOtp{
		ID:        uuid.New(),
		UserID:    u.ID,
		Purpose:   purpose,
		CodeHash:  hash[:],
		ExpiresAt: expires,
		CreatedAt: now,
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return code, expires, nil
}
