package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrEthical07/goIdentity/cache"
	"github.com/MrEthical07/goIdentity/internal/logger"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/refresh"
	"github.com/MrEthical07/goIdentity/store"
)

const denylistPrefix = "rtd:"

// Meta describes the client a token pair is issued to.
type Meta struct {
	IP        string
	UserAgent string
}

type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	TokenType        string    `json:"tokenType"`
	ExpiresAt        time.Time `json:"expiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

type Config struct {
	RefreshTTL time.Duration
}

// Hooks lets the caller observe security events without coupling the
// service to audit or metrics.
type Hooks struct {
	OnReuse  func(ctx context.Context, userID uuid.UUID, revoked int)
	OnRotate func(ctx context.Context, userID uuid.UUID)
}

type Service struct {
	access *jwt.Manager
	store  store.Store
	cache  cache.Cache
	cfg    Config
	hooks  Hooks
	now    func() time.Time
}

func NewService(access *jwt.Manager, st store.Store, c cache.Cache, cfg Config, hooks Hooks) (*Service, error) {
	if access == nil || st == nil || c == nil {
		return nil, errors.New("tokens: access manager, store and cache are required")
	}
	if cfg.RefreshTTL <= 0 {
		return nil, errors.New("tokens: refresh TTL must be positive")
	}
	return &Service{access: access, store: st, cache: c, cfg: cfg, hooks: hooks, now: time.Now}, nil
}

// AccessTTL returns the access-token lifetime.
func (s *Service) AccessTTL() time.Duration { return s.access.TTL() }

// IssueTokenPair starts a new refresh chain for u.
func (s *Service) IssueTokenPair(ctx context.Context, u *store.User, meta Meta) (TokenPair, error) {
	return s.issue(ctx, u, meta, uuid.Nil)
}

func (s *Service) issue(ctx context.Context, u *store.User, meta Meta, family uuid.UUID) (TokenPair, error) {
	tok, err := refresh.New()
	if err != nil {
		return TokenPair{}, err
	}
	return s.issueWith(ctx, u, meta, tok, family)
}

func (s *Service) issueWith(ctx context.Context, u *store.User, meta Meta, tok refresh.Token, family uuid.UUID) (TokenPair, error) {
	now := s.now().UTC()
	if family == uuid.Nil {
		family = tok.ID
	}
	hash := tok.Hash()
	row := &store.RefreshToken{
		ID:        tok.ID,
		UserID:    u.ID,
		TokenHash: hash[:],
		FamilyID:  family,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.RefreshTTL),
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
	}
	if err := s.store.RefreshTokens().Create(ctx, row); err != nil {
		return TokenPair{}, fmt.Errorf("tokens: store refresh token: %w", err)
	}

	access, claims, err := s.access.Issue(jwt.Subject{
		UserID:         u.ID.String(),
		Email:          u.Email,
		Roles:          u.Roles,
		EmailConfirmed: u.EmailConfirmed,
		SessionID:      tok.ID.String(),
	})
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     tok.String(),
		TokenType:        "Bearer",
		ExpiresAt:        claims.ExpiresAt.Time,
		RefreshExpiresAt: row.ExpiresAt,
	}, nil
}

// RefreshTokens redeems raw for a new pair in the same chain.
func (s *Service) RefreshTokens(ctx context.Context, raw string, meta Meta) (TokenPair, error) {
	tok, err := refresh.Parse(raw)
	if err != nil {
		return TokenPair{}, ErrTokenInvalid
	}
	denied, err := s.cache.Exists(ctx, denylistPrefix+tok.ID.String())
	if err != nil {
		return TokenPair{}, fmt.Errorf("tokens: denylist lookup: %w", err)
	}
	if denied {
		return TokenPair{}, ErrTokenInvalid
	}

	row, err := s.store.RefreshTokens().ByID(ctx, tok.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return TokenPair{}, ErrTokenInvalid
		}
		return TokenPair{}, err
	}
	if !tok.Matches(row.TokenHash) {
		return TokenPair{}, ErrTokenInvalid
	}
	if row.Rotated() {
		return TokenPair{}, s.reuse(ctx, row)
	}
	now := s.now().UTC()
	if !row.Live(now) {
		return TokenPair{}, ErrTokenInvalid
	}

	u, err := s.store.Users().ByID(ctx, row.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return TokenPair{}, ErrTokenInvalid
		}
		return TokenPair{}, err
	}
	if !u.IsActive || u.DeactivatedAt != nil {
		return TokenPair{}, ErrTokenInvalid
	}

	next, err := refresh.New()
	if err != nil {
		return TokenPair{}, err
	}
	won, err := s.store.RefreshTokens().MarkRotated(ctx, row.ID, next.ID, now)
	if err != nil {
		return TokenPair{}, err
	}
	if !won {
		return TokenPair{}, s.reuse(ctx, row)
	}

	pair, err := s.issueWith(ctx, u, meta, next, row.FamilyID)
	if err != nil {
		return TokenPair{}, err
	}
	if s.hooks.OnRotate != nil {
		s.hooks.OnRotate(ctx, u.ID)
	}
	return pair, nil
}

// reuse revokes every live token of the chain owner on a detached context so
// the revocation survives the caller's rollback.
func (s *Service) reuse(ctx context.Context, row *store.RefreshToken) error {
	detached := store.Detach(ctx)
	revoked, err := s.store.RefreshTokens().RevokeAllForUser(detached, row.UserID, store.RevokeReuse, s.now().UTC())
	if err != nil {
		logger.From(ctx).Error("refresh reuse: revoking chain failed",
			logger.UserID(row.UserID.String()), logger.Err(err))
		return ErrTokenReuseDetected
	}
	s.denylist(detached, revoked)
	logger.From(ctx).Warn("refresh token reuse detected",
		logger.UserID(row.UserID.String()),
		zap.String("family_id", row.FamilyID.String()),
		zap.Int("revoked", len(revoked)))
	if s.hooks.OnReuse != nil {
		s.hooks.OnReuse(detached, row.UserID, len(revoked))
	}
	return ErrTokenReuseDetected
}

// RevokeToken revokes raw if it belongs to userID. revoked is false when the
// token was already revoked.
func (s *Service) RevokeToken(ctx context.Context, userID uuid.UUID, raw string, reason store.RevokeReason) (revoked bool, err error) {
	tok, err := refresh.Parse(raw)
	if err != nil {
		return false, ErrTokenInvalid
	}
	row, err := s.store.RefreshTokens().ByID(ctx, tok.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, ErrTokenInvalid
		}
		return false, err
	}
	if row.UserID != userID || !tok.Matches(row.TokenHash) {
		return false, ErrTokenInvalid
	}
	return s.revokeRow(ctx, row, reason)
}

// RevokeSession revokes the token with id if it belongs to userID. Tokens of
// other users are reported as ErrSessionNotFound.
func (s *Service) RevokeSession(ctx context.Context, userID, id uuid.UUID, reason store.RevokeReason) (revoked bool, err error) {
	row, err := s.store.RefreshTokens().ByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, ErrSessionNotFound
		}
		return false, err
	}
	if row.UserID != userID {
		return false, ErrSessionNotFound
	}
	return s.revokeRow(ctx, row, reason)
}

func (s *Service) revokeRow(ctx context.Context, row *store.RefreshToken, reason store.RevokeReason) (bool, error) {
	ok, err := s.store.RefreshTokens().Revoke(ctx, row.ID, reason, s.now().UTC())
	if err != nil {
		return false, err
	}
	if ok {
		row.RevokedReason = reason
		s.denylist(ctx, []store.RefreshToken{*row})
	}
	return ok, nil
}

// Sessions lists the live tokens of userID, newest first.
func (s *Service) Sessions(ctx context.Context, userID uuid.UUID) ([]store.RefreshToken, error) {
	return s.store.RefreshTokens().ListActiveForUser(ctx, userID, s.now().UTC())
}

// RevokeAll revokes every live token of userID except those in keep and
// returns how many were revoked.
func (s *Service) RevokeAll(ctx context.Context, userID uuid.UUID, reason store.RevokeReason, keep ...uuid.UUID) (int, error) {
	revoked, err := s.store.RefreshTokens().RevokeAllForUser(ctx, userID, reason, s.now().UTC(), keep...)
	if err != nil {
		return 0, err
	}
	s.denylist(ctx, revoked)
	return len(revoked), nil
}

// TokenID extracts the id of a well-formed refresh token without checking it.
func TokenID(raw string) (uuid.UUID, bool) {
	tok, err := refresh.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return tok.ID, true
}

// denylist marks tokens revoked in the shared cache until they would have
// expired anyway. Failures are logged; the store remains authoritative.
func (s *Service) denylist(ctx context.Context, rows []store.RefreshToken) {
	now := s.now()
	for _, r := range rows {
		ttl := r.ExpiresAt.Sub(now)
		if ttl <= 0 {
			continue
		}
		if err := s.cache.Set(ctx, denylistPrefix+r.ID.String(), string(r.RevokedReason), ttl); err != nil {
			logger.From(ctx).Warn("refresh denylist write failed",
				zap.String("token_id", r.ID.String()), logger.Err(err))
		}
	}
}

// ValidateAccessToken checks signature and registered claims only.
func (s *Service) ValidateAccessToken(raw string) (*jwt.AccessClaims, error) {
	claims, err := s.access.Parse(raw)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrAccessTokenExpired
		}
		return nil, ErrAccessTokenInvalid.Wrap(err)
	}
	return claims, nil
}
