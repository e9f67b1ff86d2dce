package flows

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/metrics"
	"github.com/MrEthical07/goIdentity/store"
	"github.com/MrEthical07/goIdentity/tokens"
)

func (s *Service) RefreshToken(ctx context.Context, cmd RefreshTokenCommand) (tokens.TokenPair, error) {
	pair, err := s.tokens.RefreshTokens(ctx, cmd.RefreshToken, ClientFrom(ctx))
	if err != nil {
		if !errors.Is(err, tokens.ErrTokenReuseDetected) {
			s.metrics.Inc(metrics.RefreshFailure)
		}
		return tokens.TokenPair{}, err
	}
	s.metrics.Inc(metrics.RefreshSuccess)
	return pair, nil
}

// Logout revokes the presented refresh token. Logging out twice succeeds.
func (s *Service) Logout(ctx context.Context, cmd LogoutCommand) (Ack, error) {
	if _, err := s.tokens.RevokeToken(ctx, cmd.UserID, cmd.RefreshToken, store.RevokeLogout); err != nil {
		return Ack{}, err
	}
	s.metrics.Inc(metrics.Logout)
	s.record(ctx, audit.Event{Action: ActionLogout, UserID: cmd.UserID, Success: true})
	return Ack{Message: "Logged out."}, nil
}

// RevokeToken revokes one refresh token or all of them. Revoked counts only
// tokens that were live before the call.
func (s *Service) RevokeToken(ctx context.Context, cmd RevokeTokenCommand) (RevokeResult, error) {
	var n int
	detail := "single"
	if cmd.All {
		detail = "all"
		var err error
		if n, err = s.tokens.RevokeAll(ctx, cmd.UserID, store.RevokeRevoked); err != nil {
			return RevokeResult{}, err
		}
	} else {
		ok, err := s.tokens.RevokeToken(ctx, cmd.UserID, cmd.RefreshToken, store.RevokeRevoked)
		if err != nil {
			return RevokeResult{}, err
		}
		if ok {
			n = 1
		} else {
			detail = "already_revoked"
		}
	}
	if n > 0 {
		s.metrics.Inc(metrics.TokenRevoked)
	}
	s.record(ctx, audit.Event{Action: ActionTokenRevoked, UserID: cmd.UserID, Success: n > 0 || cmd.All, Detail: detail})
	return RevokeResult{Revoked: n}, nil
}

// GetSessions lists the user's live sessions, newest first.
func (s *Service) GetSessions(ctx context.Context, q GetSessionsQuery) (SessionsResult, error) {
	rows, err := s.tokens.Sessions(ctx, q.UserID)
	if err != nil {
		return SessionsResult{}, err
	}
	out := SessionsResult{Sessions: make([]SessionInfo, 0, len(rows))}
	for _, r := range rows {
		current := q.CurrentSessionID != uuid.Nil && r.ID == q.CurrentSessionID
		if current {
			id := r.ID
			out.CurrentSessionID = &id
		}
		out.Sessions = append(out.Sessions, SessionInfo{
			ID:        r.ID,
			IP:        r.IP,
			UserAgent: r.UserAgent,
			IssuedAt:  r.IssuedAt,
			ExpiresAt: r.ExpiresAt,
			IsCurrent: current,
		})
	}
	return out, nil
}

// DeleteSession revokes one of the user's sessions. Sessions of other users
// are reported as not found. Deleting a revoked session succeeds.
func (s *Service) DeleteSession(ctx context.Context, cmd DeleteSessionCommand) (Ack, error) {
	revoked, err := s.tokens.RevokeSession(ctx, cmd.UserID, cmd.SessionID, store.RevokeRevoked)
	if err != nil {
		if errors.Is(err, tokens.ErrSessionNotFound) {
			s.record(ctx, audit.Event{Action: ActionSessionRevoked, UserID: cmd.UserID, Detail: "not_found"})
		}
		return Ack{}, err
	}
	if revoked {
		s.metrics.Inc(metrics.TokenRevoked)
	}
	s.record(ctx, audit.Event{Action: ActionSessionRevoked, UserID: cmd.UserID, Success: true, Detail: cmd.SessionID.String()})
	return Ack{Message: "Session revoked."}, nil
}

func (s *Service) GetCurrentUser(ctx context.Context, q GetCurrentUserQuery) (CurrentUser, error) {
	u, err := s.user(ctx, q.UserID)
	if err != nil {
		return CurrentUser{}, err
	}
	return CurrentUser{
		UserInfo:    *userInfo(u),
		Phone:       u.Phone,
		IsActive:    u.IsActive && u.DeactivatedAt == nil,
		IsLockedOut: u.IsLockedOut(s.clock()),
		LastLoginAt: u.LastLoginAt,
		LastLoginIP: u.LastLoginIP,
		CreatedAt:   u.CreatedAt,
	}, nil
}
