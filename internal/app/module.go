package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/cache"
	"github.com/MrEthical07/goIdentity/internal/httpapi"
	"github.com/MrEthical07/goIdentity/internal/logger"
	"github.com/MrEthical07/goIdentity/mail"
	otelexport "github.com/MrEthical07/goIdentity/metrics/export/otel"
	promexport "github.com/MrEthical07/goIdentity/metrics/export/prometheus"
	"github.com/MrEthical07/goIdentity/store"
	"github.com/MrEthical07/goIdentity/store/memory"
	"github.com/MrEthical07/goIdentity/store/pg"
)

// Module wires the service around cfg. The HTTP listener opens on start and
// drains on stop; store and cache connections close after it.
func Module(cfg *Config) fx.Option {
	return fx.Options(
		fx.Supply(cfg),
		fx.Provide(
			newLogger,
			newStore,
			newCache,
			newMailer,
			newRegistry,
			newEngine,
			newMeterProvider,
			newHandler,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Invoke(registerExporters, registerServer),
	)
}

func newLogger(lc fx.Lifecycle, cfg *Config) (*zap.Logger, error) {
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	restore := zap.ReplaceGlobals(log)
	lc.Append(fx.StopHook(func() {
		_ = log.Sync()
		restore()
	}))
	return log, nil
}

func newStore(lc fx.Lifecycle, cfg *Config, log *zap.Logger) (store.Store, error) {
	if cfg.Database.Driver == "memory" {
		log.Warn("using the in-memory store; data is lost on restart")
		return memory.New(), nil
	}

	s, err := pg.New(context.Background(), cfg.Database.Config)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := s.Ping(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			return nil
		},
		OnStop: func(context.Context) error {
			log.Info("closing database pool")
			return s.Close()
		},
	})
	return s, nil
}

func newCache(lc fx.Lifecycle, cfg *Config, log *zap.Logger) (cache.Cache, error) {
	if cfg.Cache.Driver == "memory" {
		c := cache.NewMemory(cfg.Cache.Prefix)
		lc.Append(fx.StopHook(c.Close))
		return c, nil
	}

	client, err := cache.NewRedisClient(context.Background(), cfg.Cache.Redis)
	if err != nil {
		return nil, err
	}
	c := cache.NewRedis(client, cfg.Cache.Prefix)
	lc.Append(fx.StopHook(func() error {
		log.Info("closing redis client")
		return c.Close()
	}))
	return c, nil
}

func newMailer(cfg *Config) (mail.Sender, error) {
	if cfg.SMTP.Host == "" {
		return mail.LogSender{Verbose: cfg.Env == EnvDevelopment}, nil
	}
	return mail.NewSMTPSender(cfg.SMTP)
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

type engineParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *Config
	Store     store.Store
	Cache     cache.Cache
	Mailer    mail.Sender
	Registry  *prometheus.Registry
	Logger    *zap.Logger
}

func newEngine(p engineParams) (*goIdentity.Engine, error) {
	engCfg, err := p.Config.EngineConfig()
	if err != nil {
		return nil, err
	}
	for _, w := range engCfg.Lint() {
		p.Logger.Warn("identity config", zap.String("code", w.Code), zap.String("detail", w.Message))
	}

	engine, err := goIdentity.New().
		WithConfig(engCfg).
		WithStore(p.Store).
		WithCache(p.Cache).
		WithMailer(p.Mailer).
		WithLogger(p.Logger).
		WithRegistry(p.Registry).
		Build()
	if err != nil {
		return nil, err
	}
	p.Lifecycle.Append(fx.StopHook(engine.Close))
	return engine, nil
}

// newMeterProvider pushes to an OTLP collector when one is configured. Without
// an endpoint the provider has no reader and records nothing.
func newMeterProvider(lc fx.Lifecycle, cfg *Config, log *zap.Logger) (*sdkmetric.MeterProvider, error) {
	if cfg.Metrics.OTLPEndpoint == "" {
		mp := sdkmetric.NewMeterProvider()
		lc.Append(fx.StopHook(mp.Shutdown))
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Metrics.OTLPEndpoint)}
	if cfg.Metrics.OTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exp, err := otlpmetricgrpc.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(cfg.Metrics.PushInterval))),
	)
	log.Info("pushing metrics over otlp", zap.String("endpoint", cfg.Metrics.OTLPEndpoint))
	lc.Append(fx.StopHook(mp.Shutdown))
	return mp, nil
}

func registerExporters(lc fx.Lifecycle, engine *goIdentity.Engine, reg *prometheus.Registry, mp *sdkmetric.MeterProvider) error {
	if err := reg.Register(promexport.NewCollector(engine)); err != nil {
		return fmt.Errorf("register engine collector: %w", err)
	}
	exp, err := otelexport.NewExporter(mp.Meter("github.com/MrEthical07/goIdentity"), engine)
	if err != nil {
		return err
	}
	lc.Append(fx.StopHook(exp.Close))
	return nil
}

type handlerParams struct {
	fx.In

	Config   *Config
	Engine   *goIdentity.Engine
	Cache    cache.Cache
	Registry *prometheus.Registry
	Logger   *zap.Logger
}

func newHandler(p handlerParams) (http.Handler, error) {
	return httpapi.NewRouter(p.Config.HTTP, httpapi.Deps{
		Engine:   p.Engine,
		Cache:    p.Cache,
		Registry: p.Registry,
		Logger:   p.Logger,
	})
}

func registerServer(lc fx.Lifecycle, sd fx.Shutdowner, cfg *Config, h http.Handler, log *zap.Logger) {
	srv := httpapi.NewServer(cfg.HTTP, h)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("http server listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", logger.Err(err))
					_ = sd.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down http server")
			if cfg.HTTP.ShutdownTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
				defer cancel()
			}
			return srv.Shutdown(ctx)
		},
	})
}
