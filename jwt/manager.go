package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the JWS algorithm used for access tokens.
type SigningMethod string

const (
	// MethodHS256 signs with a shared HMAC-SHA256 secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 private key (EdDSA).
	MethodEd25519 SigningMethod = "ed25519"
)

const minHMACKeySize = 32

var (
	// ErrTokenMalformed is returned when the token cannot be decoded or verified.
	ErrTokenMalformed = errors.New("access token malformed")
	// ErrTokenExpired is returned when exp (plus leeway) is in the past.
	ErrTokenExpired = errors.New("access token expired")
	// ErrTokenClaims is returned when issuer, audience or iat checks fail.
	ErrTokenClaims = errors.New("access token claims rejected")
)

// Config controls signing and validation of access tokens.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	KeyID         string
	// VerifyKeys holds additional verification keys by kid for key rotation.
	VerifyKeys map[string][]byte
}

// Subject is the identity an access token is minted for.
type Subject struct {
	UserID         string
	Email          string
	Roles          []string
	EmailConfirmed bool
	// SessionID names the refresh token the access token was issued with.
	SessionID      string
}

// AccessClaims is the claim set carried by every access token.
type AccessClaims struct {
	Email          string   `json:"email,omitempty"`
	Roles          []string `json:"roles,omitempty"`
	EmailConfirmed bool     `json:"email_confirmed"`
	SessionID      string   `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// HasRole reports whether the claims carry role (case-insensitive).
func (c *AccessClaims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// Manager issues and validates access tokens. A Manager is immutable after
// NewManager and safe for concurrent use.
type Manager struct {
	cfg       Config
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	keyring   map[string]any
	parser    *jwt.Parser
	now       func() time.Time
}

// NewManager validates cfg and resolves key material once.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("jwt: access TTL must be positive")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 5*time.Minute {
		return nil, errors.New("jwt: leeway must be within [0, 5m]")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{cfg: cfg, now: time.Now, keyring: map[string]any{}}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < minHMACKeySize {
			return nil, fmt.Errorf("jwt: hs256 secret must be at least %d bytes", minHMACKeySize)
		}
		m.method = jwt.SigningMethodHS256
		m.signKey = cfg.PrivateKey
		m.verifyKey = cfg.PrivateKey
		for kid, key := range cfg.VerifyKeys {
			m.keyring[kid] = key
		}
	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			m.signKey = priv
			m.verifyKey = priv.Public()
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			m.verifyKey = pub
		}
		for kid, key := range cfg.VerifyKeys {
			pub, err := parseEdPublicKey(key)
			if err != nil {
				return nil, fmt.Errorf("jwt: verify key %q: %w", kid, err)
			}
			m.keyring[kid] = pub
		}
		if m.verifyKey == nil && len(m.keyring) == 0 {
			return nil, errors.New("jwt: ed25519 requires a public key or verify keys")
		}
	default:
		return nil, fmt.Errorf("jwt: unsupported signing method %q", cfg.SigningMethod)
	}

	if cfg.KeyID != "" && m.verifyKey != nil {
		if _, ok := m.keyring[cfg.KeyID]; !ok {
			m.keyring[cfg.KeyID] = m.verifyKey
		}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	m.parser = jwt.NewParser(opts...)

	return m, nil
}

// TTL returns the configured access-token lifetime.
func (m *Manager) TTL() time.Duration { return m.cfg.AccessTTL }

// Issue mints a signed access token for sub. The returned claims mirror the
// token payload, including the generated jti and expiry.
func (m *Manager) Issue(sub Subject) (string, *AccessClaims, error) {
	if m.signKey == nil {
		return "", nil, errors.New("jwt: manager has no signing key")
	}
	if sub.UserID == "" {
		return "", nil, errors.New("jwt: empty subject")
	}

	now := m.now()
	claims := &AccessClaims{
		Email:          sub.Email,
		Roles:          append([]string(nil), sub.Roles...),
		EmailConfirmed: sub.EmailConfirmed,
		SessionID:      sub.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   sub.UserID,
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.AccessTTL)),
		},
	}
	if m.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.cfg.Audience}
	}

	token := jwt.NewWithClaims(m.method, claims)
	if m.cfg.KeyID != "" {
		token.Header["kid"] = m.cfg.KeyID
	}
	signed, err := token.SignedString(m.signKey)
	if err != nil {
		return "", nil, fmt.Errorf("jwt: sign: %w", err)
	}
	return signed, claims, nil
}

// Parse verifies signature, exp, nbf, iss and aud. It never consults any
// revocation state.
func (m *Manager) Parse(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := m.parser.ParseWithClaims(raw, claims, m.keyFunc)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenInvalidIssuer),
			errors.Is(err, jwt.ErrTokenInvalidAudience),
			errors.Is(err, jwt.ErrTokenUsedBeforeIssued),
			errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, fmt.Errorf("%w: %v", ErrTokenClaims, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrTokenMalformed
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(m.now().Add(m.cfg.MaxFutureIAT)) {
		return nil, fmt.Errorf("%w: iat too far in the future", ErrTokenClaims)
	}
	return claims, nil
}

func (m *Manager) keyFunc(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if kid != "" {
		if key, ok := m.keyring[kid]; ok {
			return key, nil
		}
		return nil, fmt.Errorf("unknown kid %q", kid)
	}
	if m.cfg.KeyID != "" {
		return nil, errors.New("missing kid")
	}
	if m.verifyKey == nil {
		return nil, errors.New("no verification key")
	}
	return m.verifyKey, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("jwt: invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("jwt: invalid ed25519 public key type")
	}
	return edKey, nil
}
