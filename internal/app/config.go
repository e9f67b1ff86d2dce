package app

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/cache"
	"github.com/MrEthical07/goIdentity/internal/httpapi"
	"github.com/MrEthical07/goIdentity/internal/logger"
	"github.com/MrEthical07/goIdentity/mail"
	"github.com/MrEthical07/goIdentity/store/pg"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	envPrefix = "IDENTITY"
	masked    = "****"
)

// Config is the service configuration. The engine tunables live under
// Identity; key material only ever comes from Secrets.
type Config struct {
	Env      string          `mapstructure:"env" yaml:"env"`
	HTTP     httpapi.Config  `mapstructure:"http" yaml:"http"`
	Database DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Cache    CacheConfig     `mapstructure:"cache" yaml:"cache"`
	SMTP     mail.SMTPConfig `mapstructure:"smtp" yaml:"smtp"`
	Log      logger.Config   `mapstructure:"log" yaml:"log"`
	Metrics  MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Identity IdentityConfig  `mapstructure:"identity" yaml:"identity"`
	Secrets  Secrets         `mapstructure:"secrets" yaml:"secrets"`
}

// DatabaseConfig selects the credential store. Driver is postgres or memory.
type DatabaseConfig struct {
	Driver    string `mapstructure:"driver" yaml:"driver"`
	pg.Config `mapstructure:",squash" yaml:",inline"`
}

// CacheConfig selects the cache. Driver is redis or memory.
type CacheConfig struct {
	Driver string             `mapstructure:"driver" yaml:"driver"`
	Prefix string             `mapstructure:"prefix" yaml:"prefix"`
	Redis  cache.RedisOptions `mapstructure:"redis" yaml:"redis"`
}

type MetricsConfig struct {
	// OTLPEndpoint enables the OTLP gRPC push of engine counters when set.
	OTLPEndpoint string        `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	OTLPInsecure bool          `mapstructure:"otlp_insecure" yaml:"otlp_insecure"`
	PushInterval time.Duration `mapstructure:"push_interval" yaml:"push_interval"`
}

// IdentityConfig is the subset of goIdentity.Config exposed to operators.
type IdentityConfig struct {
	SigningMethod            string        `mapstructure:"signing_method" yaml:"signing_method"`
	Issuer                   string        `mapstructure:"issuer" yaml:"issuer"`
	Audience                 string        `mapstructure:"audience" yaml:"audience"`
	AccessTTL                time.Duration `mapstructure:"access_ttl" yaml:"access_ttl"`
	RefreshTTL               time.Duration `mapstructure:"refresh_ttl" yaml:"refresh_ttl"`
	RequireEmailConfirmation bool          `mapstructure:"require_email_confirmation" yaml:"require_email_confirmation"`
	DefaultRole              string        `mapstructure:"default_role" yaml:"default_role"`
	LockoutThreshold         int           `mapstructure:"lockout_threshold" yaml:"lockout_threshold"`
	LockoutDuration          time.Duration `mapstructure:"lockout_duration" yaml:"lockout_duration"`
	TOTPIssuer               string        `mapstructure:"totp_issuer" yaml:"totp_issuer"`
	ResetURL                 string        `mapstructure:"reset_url" yaml:"reset_url"`
	SlowThreshold            time.Duration `mapstructure:"slow_threshold" yaml:"slow_threshold"`
	AuditBufferSize          int           `mapstructure:"audit_buffer_size" yaml:"audit_buffer_size"`
	AuditDropIfFull          bool          `mapstructure:"audit_drop_if_full" yaml:"audit_drop_if_full"`
}

// Secrets are read from the environment only.
//
//	IDENTITY_JWT_KEY         hs256 secret, or Ed25519 private key PEM
//	IDENTITY_JWT_PUBLIC_KEY  Ed25519 public key PEM (optional)
//	IDENTITY_MFA_SEAL_KEY    base64 of 32 random bytes
type Secrets struct {
	JWTKey       string `mapstructure:"jwt_key" yaml:"jwt_key"`
	JWTPublicKey string `mapstructure:"jwt_public_key" yaml:"jwt_public_key"`
	MFASealKey   string `mapstructure:"mfa_seal_key" yaml:"mfa_seal_key"`
}

// DefaultConfig runs everything in process: memory store and cache, mail
// written to the log.
func DefaultConfig() Config {
	eng := goIdentity.DefaultConfig()
	return Config{
		Env:  EnvDevelopment,
		HTTP: httpapi.DefaultConfig(),
		Database: DatabaseConfig{
			Driver: "memory",
			Config: pg.Config{
				MaxConns:        10,
				MinConns:        1,
				MaxConnLifetime: time.Hour,
				MaxConnIdleTime: 10 * time.Minute,
			},
		},
		Cache: CacheConfig{
			Driver: "memory",
			Prefix: "idn",
			Redis: cache.RedisOptions{
				Addr:     "localhost:6379",
				PoolSize: 20,
			},
		},
		SMTP: mail.SMTPConfig{Port: 587, TLSMode: "auto"},
		Log: logger.Config{
			Format:  "json",
			Level:   "info",
			Service: "identityd",
		},
		Metrics: MetricsConfig{
			OTLPInsecure: true,
			PushInterval: 30 * time.Second,
		},
		Identity: IdentityConfig{
			SigningMethod:            eng.JWT.SigningMethod,
			Issuer:                   eng.JWT.Issuer,
			AccessTTL:                eng.JWT.AccessTTL,
			RefreshTTL:               eng.Refresh.TTL,
			RequireEmailConfirmation: eng.Registration.RequireEmailConfirmation,
			DefaultRole:              eng.Registration.DefaultRole,
			LockoutThreshold:         eng.Lockout.Threshold,
			LockoutDuration:          eng.Lockout.Duration,
			TOTPIssuer:               eng.TOTP.Issuer,
			SlowThreshold:            eng.Pipeline.SlowThreshold,
			AuditBufferSize:          eng.Audit.BufferSize,
			AuditDropIfFull:          eng.Audit.DropIfFull,
		},
	}
}

// configKeys lists every key that can be overridden from the environment
// as IDENTITY_<KEY> with dots turned into underscores.
var configKeys = []string{
	"env",
	"http.addr", "http.read_header_timeout", "http.read_timeout", "http.write_timeout",
	"http.idle_timeout", "http.shutdown_timeout", "http.request_timeout", "http.trust_proxy",
	"http.rate_limit.enabled", "http.rate_limit.limit", "http.rate_limit.window",
	"database.driver", "database.max_conns", "database.min_conns",
	"database.max_conn_lifetime", "database.max_conn_idle_time",
	"cache.driver", "cache.prefix", "cache.redis.addr", "cache.redis.username",
	"cache.redis.password", "cache.redis.db", "cache.redis.pool_size",
	"smtp.host", "smtp.port", "smtp.from", "smtp.username", "smtp.password",
	"smtp.tls_mode", "smtp.insecure_skip_verify",
	"log.format", "log.level", "log.service",
	"metrics.otlp_endpoint", "metrics.otlp_insecure", "metrics.push_interval",
	"identity.signing_method", "identity.issuer", "identity.audience",
	"identity.access_ttl", "identity.refresh_ttl", "identity.require_email_confirmation",
	"identity.default_role", "identity.lockout_threshold", "identity.lockout_duration",
	"identity.totp_issuer", "identity.reset_url", "identity.slow_threshold",
	"identity.audit_buffer_size", "identity.audit_drop_if_full",
}

// Load reads an optional .env, then the YAML file at path (when not empty),
// then IDENTITY_* environment variables. Later sources win.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}
	binds := map[string][]string{
		"database.dsn":           {"IDENTITY_DATABASE_DSN", "DATABASE_URL"},
		"secrets.jwt_key":        {"IDENTITY_JWT_KEY"},
		"secrets.jwt_public_key": {"IDENTITY_JWT_PUBLIC_KEY"},
		"secrets.mfa_seal_key":   {"IDENTITY_MFA_SEAL_KEY"},
	}
	for key, envs := range binds {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the service-level choices. Engine settings are checked by
// EngineConfig.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("config: database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	switch c.Cache.Driver {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return errors.New("config: cache.redis.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("config: unknown cache driver %q", c.Cache.Driver)
	}
	if c.HTTP.RateLimit.Enabled && (c.HTTP.RateLimit.Limit <= 0 || c.HTTP.RateLimit.Window <= 0) {
		return errors.New("config: http.rate_limit needs a positive limit and window")
	}
	if c.Env == EnvProduction && c.Database.Driver == "memory" {
		return errors.New("config: the memory store is not allowed in production")
	}
	if c.Env == EnvProduction && c.Cache.Driver == "memory" {
		return errors.New("config: the memory cache is not allowed in production; use redis")
	}
	return nil
}

// EngineConfig maps the operator settings and secrets onto goIdentity.Config.
func (c *Config) EngineConfig() (goIdentity.Config, error) {
	cfg := goIdentity.DefaultConfig()
	if c.Env == EnvProduction {
		cfg = goIdentity.HighSecurityConfig()
	}
	id := c.Identity

	cfg.JWT.SigningMethod = strings.ToLower(id.SigningMethod)
	cfg.JWT.Issuer = id.Issuer
	cfg.JWT.Audience = id.Audience
	cfg.JWT.AccessTTL = id.AccessTTL
	cfg.Refresh.TTL = id.RefreshTTL
	cfg.Registration.RequireEmailConfirmation = id.RequireEmailConfirmation
	cfg.Registration.DefaultRole = id.DefaultRole
	cfg.Lockout.Threshold = id.LockoutThreshold
	cfg.Lockout.Duration = id.LockoutDuration
	cfg.TOTP.Issuer = id.TOTPIssuer
	cfg.PasswordReset.ResetURL = id.ResetURL
	cfg.Pipeline.SlowThreshold = id.SlowThreshold
	cfg.Audit.BufferSize = id.AuditBufferSize
	cfg.Audit.DropIfFull = id.AuditDropIfFull

	if c.Secrets.JWTKey == "" {
		return cfg, errors.New("config: IDENTITY_JWT_KEY is not set")
	}
	cfg.JWT.PrivateKey = pemOrRaw(c.Secrets.JWTKey)
	if c.Secrets.JWTPublicKey != "" {
		cfg.JWT.PublicKey = pemOrRaw(c.Secrets.JWTPublicKey)
	}

	if c.Secrets.MFASealKey == "" {
		return cfg, errors.New("config: IDENTITY_MFA_SEAL_KEY is not set")
	}
	seal, err := base64.StdEncoding.DecodeString(strings.TrimSpace(c.Secrets.MFASealKey))
	if err != nil {
		return cfg, fmt.Errorf("config: IDENTITY_MFA_SEAL_KEY is not base64: %w", err)
	}
	cfg.TOTP.SealKey = seal

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: identity: %w", err)
	}
	return cfg, nil
}

// pemOrRaw turns escaped newlines back into real ones so a PEM block fits a
// single environment variable.
func pemOrRaw(s string) []byte {
	if strings.Contains(s, "-----BEGIN") {
		s = strings.ReplaceAll(s, `\n`, "\n")
	}
	return []byte(s)
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	out := c
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return masked
	}
	out.Secrets = Secrets{
		JWTKey:       mask(c.Secrets.JWTKey),
		JWTPublicKey: c.Secrets.JWTPublicKey,
		MFASealKey:   mask(c.Secrets.MFASealKey),
	}
	return out
}

// Print writes the redacted configuration as YAML.
func (c Config) Print(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c.Redacted()); err != nil {
		return err
	}
	return enc.Close()
}
