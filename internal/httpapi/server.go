package httpapi

import (
	"net/http"
	"time"
)

// Config holds listener settings and the per-identity request budget.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	// TrustProxy honours X-Forwarded-For and X-Real-IP for the client address.
	TrustProxy bool            `mapstructure:"trust_proxy" yaml:"trust_proxy"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Limit   int           `mapstructure:"limit" yaml:"limit"`
	Window  time.Duration `mapstructure:"window" yaml:"window"`
}

// DefaultConfig allows 100 requests per minute per identity.
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		RequestTimeout:    10 * time.Second,
		RateLimit: RateLimitConfig{
			Enabled: true,
			Limit:   100,
			Window:  time.Minute,
		},
	}
}

// NewServer wraps h in an http.Server configured from cfg.
func NewServer(cfg Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}
