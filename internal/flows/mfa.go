package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/metrics"
	"github.com/MrEthical07/goIdentity/mfa"
	"github.com/MrEthical07/goIdentity/store"
)

// settings returns the user's MFA row, or a disabled placeholder when none
// exists yet.
func (s *Service) settings(ctx context.Context, userID uuid.UUID) (*store.MfaSettings, error) {
	st, err := s.store.MFA().Settings(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return &store.MfaSettings{UserID: userID, State: store.MfaDisabled}, nil
	}
	return st, err
}

// SetupMfa creates a fresh pending secret, replacing any earlier pending one.
func (s *Service) SetupMfa(ctx context.Context, cmd SetupMfaCommand) (MfaSetupResult, error) {
	u, err := s.user(ctx, cmd.UserID)
	if err != nil {
		return MfaSetupResult{}, err
	}
	current, err := s.settings(ctx, u.ID)
	if err != nil {
		return MfaSetupResult{}, err
	}
	if current.State == store.MfaEnabled {
		return MfaSetupResult{}, ErrMfaAlreadyEnabled
	}

	enr, err := s.totp.Enroll(u.Email)
	if err != nil {
		return MfaSetupResult{}, err
	}
	sealed, err := s.sealer.Seal([]byte(enr.Secret), u.ID[:])
	if err != nil {
		return MfaSetupResult{}, fmt.Errorf("flows: seal totp secret: %w", err)
	}
	qr, err := mfa.QRCodePNG(enr.URI, mfa.DefaultQRSize)
	if err != nil {
		return MfaSetupResult{}, err
	}

	cfg := s.totp.Config()
	now := s.clock()
	next := &store.MfaSettings{
		UserID:           u.ID,
		SecretCiphertext: sealed,
		State:            store.MfaPending,
		Algorithm:        cfg.Algorithm,
		Digits:           cfg.Digits,
		Period:           int(cfg.Period),
		EnrolledAt:       &now,
		DisabledAt:       current.DisabledAt,
		UpdatedAt:        now,
	}
	if err := s.store.MFA().SaveSettings(ctx, next); err != nil {
		return MfaSetupResult{}, err
	}

	s.metrics.Inc(metrics.MFASetup)
	s.record(ctx, audit.Event{Action: ActionMfaSetup, Method: MethodTOTP, UserID: u.ID, Success: true})
	return MfaSetupResult{
		Secret:          enr.Secret,
		FormattedSecret: enr.FormattedSecret,
		ProvisioningURI: enr.URI,
		QRCodePNG:       qr,
		Issuer:          cfg.Issuer,
		Account:         u.Email,
		Digits:          cfg.Digits,
		Period:          int(cfg.Period),
		Algorithm:       cfg.Algorithm,
	}, nil
}

// EnableMfa confirms the pending secret with a first code and returns the
// initial backup codes. A wrong code leaves the setup pending.
func (s *Service) EnableMfa(ctx context.Context, cmd EnableMfaCommand) (MfaEnabledResult, error) {
	current, err := s.settings(ctx, cmd.UserID)
	if err != nil {
		return MfaEnabledResult{}, err
	}
	switch current.State {
	case store.MfaEnabled:
		return MfaEnabledResult{}, ErrMfaAlreadyEnabled
	case store.MfaPending:
	default:
		return MfaEnabledResult{}, ErrMfaNotPending
	}

	secret, err := s.openSecret(current)
	if err != nil {
		return MfaEnabledResult{}, err
	}
	now := s.clock()
	ok, step, err := s.totp.Verify(secret, cmd.Code, now)
	if err != nil {
		return MfaEnabledResult{}, err
	}
	if !ok {
		s.metrics.Inc(metrics.MFAVerifyFailure)
		s.record(ctx, audit.Event{Action: ActionTotpFailed, Method: MethodTOTP, UserID: cmd.UserID, Detail: "enable"})
		return MfaEnabledResult{}, ErrMfaCodeInvalid
	}

	current.State = store.MfaEnabled
	current.EnabledAt = &now
	current.DisabledAt = nil
	current.LastUsedAt = &now
	current.LastUsedStep = step
	current.UpdatedAt = now
	if err := s.store.MFA().SaveSettings(ctx, current); err != nil {
		return MfaEnabledResult{}, err
	}
	if err := s.store.Users().SetTwoFactor(ctx, cmd.UserID, true, now); err != nil {
		return MfaEnabledResult{}, err
	}
	codes, err := s.replaceBackupCodes(ctx, cmd.UserID)
	if err != nil {
		return MfaEnabledResult{}, err
	}

	s.metrics.Inc(metrics.MFAEnabled)
	s.record(ctx, audit.Event{Action: ActionMfaEnabled, Method: MethodTOTP, UserID: cmd.UserID, Success: true})
	return MfaEnabledResult{BackupCodes: codes, EnabledAt: now}, nil
}

// DisableMfa needs the current password and a valid TOTP or backup code. It
// wipes the secret and invalidates every remaining backup code.
func (s *Service) DisableMfa(ctx context.Context, cmd DisableMfaCommand) (Ack, error) {
	u, err := s.user(ctx, cmd.UserID)
	if err != nil {
		return Ack{}, err
	}
	ok, err := s.hasher.Verify(cmd.CurrentPassword, u.PasswordHash)
	if err != nil {
		return Ack{}, err
	}
	if !ok {
		s.record(ctx, audit.Event{Action: ActionMfaDisabled, Method: MethodPassword, UserID: u.ID, Detail: "bad_password"})
		return Ack{}, ErrCurrentPasswordInvalid
	}

	current, err := s.settings(ctx, u.ID)
	if err != nil {
		return Ack{}, err
	}
	if current.State != store.MfaEnabled {
		return Ack{}, ErrMfaNotEnabled
	}
	method := cmd.Type
	if method == "" {
		method = MethodTOTP
	}
	if err := s.checkCode(ctx, current, method, cmd.Code); err != nil {
		return Ack{}, err
	}

	now := s.clock()
	current.State = store.MfaDisabled
	current.SecretCiphertext = ""
	current.EnabledAt = nil
	current.DisabledAt = &now
	current.LastUsedStep = 0
	current.UpdatedAt = now
	if err := s.store.MFA().SaveSettings(ctx, current); err != nil {
		return Ack{}, err
	}
	if _, err := s.store.BackupCodes().InvalidateAll(ctx, u.ID, now); err != nil {
		return Ack{}, err
	}
	if err := s.store.Users().SetTwoFactor(ctx, u.ID, false, now); err != nil {
		return Ack{}, err
	}

	s.metrics.Inc(metrics.MFADisabled)
	s.record(ctx, audit.Event{Action: ActionMfaDisabled, Method: method, UserID: u.ID, Success: true})
	return Ack{Message: "Two-factor authentication disabled."}, nil
}

// RegenerateBackupCodes proves possession with a TOTP code, then replaces
// the whole batch in the request transaction.
func (s *Service) RegenerateBackupCodes(ctx context.Context, cmd RegenerateBackupCodesCommand) (BackupCodesResult, error) {
	current, err := s.settings(ctx, cmd.UserID)
	if err != nil {
		return BackupCodesResult{}, err
	}
	if current.State != store.MfaEnabled {
		return BackupCodesResult{}, ErrMfaNotEnabled
	}
	if err := s.checkCode(ctx, current, MethodTOTP, cmd.Code); err != nil {
		return BackupCodesResult{}, err
	}

	codes, err := s.replaceBackupCodes(ctx, cmd.UserID)
	if err != nil {
		return BackupCodesResult{}, err
	}
	s.metrics.Inc(metrics.BackupCodesRegenerated)
	s.record(ctx, audit.Event{Action: ActionBackupRegenerated, Method: MethodTOTP, UserID: cmd.UserID, Success: true})
	return BackupCodesResult{BackupCodes: codes}, nil
}

func (s *Service) replaceBackupCodes(ctx context.Context, userID uuid.UUID) ([]string, error) {
	now := s.clock()
	if _, err := s.store.BackupCodes().InvalidateAll(ctx, userID, now); err != nil {
		return nil, err
	}
	generated, err := mfa.GenerateBackupCodes(userID.String(), s.policy.BackupCodeCount)
	if err != nil {
		return nil, err
	}
	batch := uuid.New()
	rows := make([]store.BackupCode, len(generated))
	display := make([]string, len(generated))
	for i, g := range generated {
		hash := g.Hash
		rows[i] = store.BackupCode{
			ID:        uuid.New(),
			UserID:    userID,
			CodeHash:  hash[:],
			BatchID:   batch,
			CreatedAt: now,
		}
		display[i] = g.Display
	}
	if err := s.store.BackupCodes().InsertBatch(ctx, rows); err != nil {
		return nil, err
	}
	return display, nil
}

// GetMfaStatus reports the user's MFA state without exposing secrets.
func (s *Service) GetMfaStatus(ctx context.Context, q GetMfaStatusQuery) (MfaStatus, error) {
	if _, err := s.user(ctx, q.UserID); err != nil {
		return MfaStatus{}, err
	}
	current, err := s.settings(ctx, q.UserID)
	if err != nil {
		return MfaStatus{}, err
	}
	out := MfaStatus{
		Enabled:    current.State == store.MfaEnabled,
		State:      string(current.State),
		Methods:    []string{},
		EnabledAt:  current.EnabledAt,
		LastUsedAt: current.LastUsedAt,
	}
	if !out.Enabled {
		return out, nil
	}
	remaining, err := s.store.BackupCodes().Remaining(ctx, q.UserID)
	if err != nil {
		return MfaStatus{}, err
	}
	out.BackupCodesRemaining = remaining
	out.Methods = append(out.Methods, MethodTOTP, MethodEmail)
	if remaining > 0 {
		out.Methods = append(out.Methods, MethodBackup)
	}
	return out, nil
}

func (s *Service) openSecret(st *store.MfaSettings) (string, error) {
	if st.SecretCiphertext == "" {
		return "", ErrMfaNotPending
	}
	plain, err := s.sealer.Open(st.SecretCiphertext, st.UserID[:])
	if err != nil {
		return "", fmt.Errorf("flows: open totp secret: %w", err)
	}
	return string(plain), nil
}
