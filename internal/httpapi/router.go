package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/apperr"
	"github.com/MrEthical07/goIdentity/cache"
	"github.com/MrEthical07/goIdentity/internal/logger"
	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/MrEthical07/goIdentity/middleware"
)

var (
	errRouteNotFound    = apperr.New(apperr.KindNotFound, "ROUTE_NOT_FOUND", "The requested resource was not found.")
	errMethodNotAllowed = apperr.New(apperr.KindInvalidOperation, "METHOD_NOT_ALLOWED", "Method not allowed.")
)

// Deps are the collaborators of the router.
type Deps struct {
	Engine *goIdentity.Engine
	// Cache backs the per-identity request budget.
	Cache cache.Cache
	// Registry receives the HTTP instruments and is served on /metrics.
	Registry *prometheus.Registry
	Logger   *zap.Logger
}

// NewRouter mounts every endpoint. Middleware order: request id, real ip,
// request context, recover, metrics, authenticate, rate limit.
func NewRouter(cfg Config, d Deps) (http.Handler, error) {
	if d.Engine == nil {
		return nil, errors.New("httpapi: engine is required")
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
	}
	m, err := newHTTPMetrics(d.Registry)
	if err != nil {
		return nil, fmt.Errorf("httpapi: metrics: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit.Enabled {
		if d.Cache == nil {
			return nil, errors.New("httpapi: rate limit enabled without a cache")
		}
		limiter = rate.New(d.Cache, rate.Config{
			Prefix: "rl",
			Limit:  cfg.RateLimit.Limit,
			Window: cfg.RateLimit.Window,
		})
	}

	h := &handlers{engine: d.Engine}
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	if cfg.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(requestContext(d.Logger, cfg.RequestTimeout))
	r.Use(recoverer)
	r.Use(m.middleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) { writeError(w, r, errRouteNotFound) })
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) { writeError(w, r, errMethodNotAllowed) })

	r.Get("/healthz", h.health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(d.Engine))
		if limiter != nil {
			r.Use(middleware.RateLimit(limiter, writeError))
		}
		requireAuth := middleware.RequireAuth(writeError)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", command(d.Engine.Login))
			r.Post("/register", created(d.Engine.Register))
			r.Post("/confirm-email", command(d.Engine.ConfirmEmail))
			r.Post("/refresh", command(d.Engine.RefreshToken))
			r.Post("/forgot-password", command(d.Engine.ForgotPassword))
			r.Post("/reset-password", command(d.Engine.ResetPassword))

			r.With(requireAuth).Post("/logout", command(d.Engine.Logout, bindLogout))
			r.With(requireAuth).Post("/revoke", command(d.Engine.RevokeToken, bindRevoke))
			r.With(requireAuth).Post("/change-password", command(d.Engine.ChangePassword, bindChangePassword))
			r.With(requireAuth).Get("/me", h.currentUser)
			r.With(requireAuth).Get("/sessions", h.sessions)
			r.With(requireAuth).Delete("/sessions/{id}", h.deleteSession)
		})

		r.Route("/mfa", func(r chi.Router) {
			r.Post("/verify", command(d.Engine.VerifyMfa, bindVerify))
			r.Post("/email-otp", optionalBody(d.Engine.SendMfaEmailOtp, bindEmailOtp))

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/setup", h.setupMfa)
				r.Post("/enable", command(d.Engine.EnableMfa, bindEnable))
				r.Post("/disable", command(d.Engine.DisableMfa, bindDisable))
				r.Post("/backup-codes/regenerate", command(d.Engine.RegenerateBackupCodes, bindRegenerate))
				r.Get("/status", h.mfaStatus)
			})
		})
	})

	return r, nil
}

// requestContext scopes a logger to the request, carries the client address
// into the engine and bounds the request with timeout.
func requestContext(base *zap.Logger, timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := chimw.GetReqID(r.Context())
			ip := remoteIP(r.RemoteAddr)
			log := base.With(logger.RequestID(reqID), logger.ClientIP(ip))

			ctx := logger.ToContext(r.Context(), log)
			ctx = logger.WithRequestID(ctx, reqID)
			ctx = goIdentity.WithClientIP(ctx, ip)
			ctx = goIdentity.WithUserAgent(ctx, r.UserAgent())
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Header().Set("X-Request-Id", reqID)
			next.ServeHTTP(ww, r.WithContext(ctx))

			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				logger.DurationMs(time.Since(start)))
		})
	}
}

// recoverer turns a panic into the generic 500 envelope.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			writeError(w, r, fmt.Errorf("panic: %v", rec))
		}()
		next.ServeHTTP(w, r)
	})
}

func remoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
