package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/MrEthical07/goIdentity/apperr"
	"github.com/MrEthical07/goIdentity/internal/logger"
	"github.com/MrEthical07/goIdentity/store"
)

// SelfValidator is implemented by requests with rules struct tags cannot
// express. Validate appends failures to ve.
type SelfValidator interface {
	Validate(ve *apperr.ValidationError)
}

// NewValidator returns a validator that reports json field names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Validation rejects requests failing struct tags or SelfValidator checks
// with an *apperr.ValidationError. The handler never runs for them.
func Validation(v *validator.Validate) Behavior {
	return func(ctx context.Context, req Request, next Handler) (any, error) {
		ve := &apperr.ValidationError{}

		var fieldErrs validator.ValidationErrors
		var invalid *validator.InvalidValidationError
		switch err := v.StructCtx(ctx, req); {
		case err == nil, errors.As(err, &invalid):
			// Non-struct requests carry no tags.
		case errors.As(err, &fieldErrs):
			for _, fe := range fieldErrs {
				ve.Add(fe.Field(), fieldMessage(fe))
			}
		default:
			return nil, err
		}
		if sv, ok := req.(SelfValidator); ok {
			sv.Validate(ve)
		}
		if !ve.Empty() {
			return nil, ve
		}
		return next(ctx, req)
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "eqfield":
		return fmt.Sprintf("must match %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "numeric":
		return "must contain only digits"
	case "uuid", "uuid4":
		return "must be a valid identifier"
	case "e164":
		return "must be a phone number in international format"
	default:
		return fmt.Sprintf("failed the %q rule", fe.Tag())
	}
}

var queryMarkers = []string{"Query", "Get", "List", "Search", "Find"}

// IsQuery reports whether name designates a read request.
func IsQuery(name string) bool {
	for _, m := range queryMarkers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}

// Transaction runs write requests inside one unit of work. The transaction
// commits only when the handler returns without error; errors, panics and
// cancellation roll it back. Rollback runs on a context detached from the
// request so a cancelled request cannot leave the transaction open.
func Transaction(uow store.UnitOfWork) Behavior {
	return func(ctx context.Context, req Request, next Handler) (out any, err error) {
		if IsQuery(req.RequestName()) {
			return next(ctx, req)
		}

		txCtx, tx, err := uow.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("pipeline: begin %s: %w", req.RequestName(), err)
		}

		committed := false
		defer func() {
			if committed {
				return
			}
			if rbErr := tx.Rollback(store.Detach(ctx)); rbErr != nil {
				logger.From(ctx).Warn("rollback failed",
					logger.Op(req.RequestName()), logger.Err(rbErr))
			}
		}()

		out, err = next(txCtx, req)
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("pipeline: commit %s: %w", req.RequestName(), err)
		}
		committed = true
		return out, nil
	}
}

// Metrics holds the pipeline's Prometheus instruments.
type Metrics struct {
	duration *prometheus.HistogramVec
	slow     *prometheus.CounterVec
}

// NewMetrics registers the pipeline instruments on reg. Engines sharing a
// registry share the instruments already registered there.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "identity",
			Subsystem: "pipeline",
			Name:      "request_duration_seconds",
			Help:      "Duration of commands and queries sent through the pipeline.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"request", "outcome"}),
		slow: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "identity",
			Subsystem: "pipeline",
			Name:      "slow_requests_total",
			Help:      "Requests that exceeded the slow threshold.",
		}, []string{"request"}),
	}
	if reg == nil {
		return m, nil
	}
	var err error
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	if m.slow, err = register(reg, m.slow); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, or returns the equivalent collector registered
// earlier.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, fmt.Errorf("pipeline metrics: %w", err)
}

// Performance times every request, warns when it exceeds threshold and feeds
// metrics (which may be nil). It never alters the outcome.
func Performance(threshold time.Duration, metrics *Metrics) Behavior {
	return func(ctx context.Context, req Request, next Handler) (any, error) {
		start := time.Now()
		out, err := next(ctx, req)
		elapsed := time.Since(start)

		name := req.RequestName()
		if metrics != nil {
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			metrics.duration.WithLabelValues(name, outcome).Observe(elapsed.Seconds())
		}
		if threshold > 0 && elapsed > threshold {
			if metrics != nil {
				metrics.slow.WithLabelValues(name).Inc()
			}
			logger.From(ctx).Warn("long running request",
				logger.Op(name), logger.DurationMs(elapsed),
				zap.Int64("threshold_ms", threshold.Milliseconds()))
		}
		return out, err
	}
}

// Logging records start, completion and failure of every request under a
// correlation id. Errors pass through unchanged.
func Logging() Behavior {
	return func(ctx context.Context, req Request, next Handler) (any, error) {
		id := logger.RequestIDFrom(ctx)
		if id == "" {
			id = uuid.NewString()
			ctx = logger.WithRequestID(ctx, id)
		}
		log := logger.From(ctx).With(logger.RequestID(id), logger.Op(req.RequestName()))
		ctx = logger.ToContext(ctx, log)

		log.Info("handling request")
		start := time.Now()
		out, err := next(ctx, req)
		if err != nil {
			log.Error("request failed", logger.DurationMs(time.Since(start)), logger.Err(err))
			return out, err
		}
		log.Info("handled request", logger.DurationMs(time.Since(start)))
		return out, nil
	}
}
