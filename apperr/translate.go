package apperr

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	msgValidation   = "One or more validation errors occurred."
	msgArgument     = "Invalid request parameters."
	msgUnauthorized = "Access denied. Authentication required."
	msgTimeout      = "The request timed out. Please try again."
	msgUnsupported  = "The requested operation is not supported."
	msgRateLimited  = "Too many requests. Please try again later."
	msgInternal     = "An unexpected error occurred. Please try again later."
)

// Envelope is the failure body shared by every endpoint.
type Envelope struct {
	Success   bool                `json:"success"`
	Message   string              `json:"message"`
	ErrorCode string              `json:"errorCode,omitempty"`
	Errors    map[string][]string `json:"errors,omitempty"`
	Details   map[string]any      `json:"details,omitempty"`
}

// Translation is the rendered outcome of an error.
type Translation struct {
	Status   int
	Envelope Envelope
	Level    zapcore.Level
}

var statusByKind = map[Kind]int{
	KindNotFound:         http.StatusNotFound,
	KindAlreadyExists:    http.StatusConflict,
	KindBusinessRule:     http.StatusBadRequest,
	KindDomainValidation: http.StatusBadRequest,
	KindInvalidOperation: http.StatusBadRequest,
	KindValidation:       http.StatusBadRequest,
	KindInvalidArgument:  http.StatusBadRequest,
	KindUnauthorized:     http.StatusUnauthorized,
	KindForbidden:        http.StatusForbidden,
	KindLocked:           http.StatusLocked,
	KindRateLimited:      http.StatusTooManyRequests,
	KindTimeout:          http.StatusRequestTimeout,
	KindUnsupported:      http.StatusNotImplemented,
}

// StatusOf maps a Kind to its HTTP status.
func StatusOf(k Kind) int {
	if s, ok := statusByKind[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Translate renders err. Unclassified errors become a generic 500 carrying a
// fresh errorId; their text never reaches the envelope.
func Translate(err error, now time.Time) Translation {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return Translation{
			Status: http.StatusBadRequest,
			Envelope: Envelope{
				Message:   msgValidation,
				ErrorCode: "VALIDATION_ERROR",
				Errors:    ve.ByField(),
			},
			Level: zapcore.WarnLevel,
		}
	}

	var ae *Error
	if errors.As(err, &ae) {
		t := Translation{
			Status: StatusOf(ae.Kind),
			Envelope: Envelope{
				Message:   ae.Message,
				ErrorCode: ae.Code,
				Details:   publicContext(ae.Context),
			},
			Level: zapcore.WarnLevel,
		}
		switch ae.Kind {
		case KindNotFound:
			t.Level = zapcore.InfoLevel
		case KindInvalidArgument:
			if t.Envelope.Message == "" {
				t.Envelope.Message = msgArgument
			}
		case KindUnauthorized:
			if t.Envelope.Message == "" {
				t.Envelope.Message = msgUnauthorized
			}
		case KindRateLimited:
			if t.Envelope.Message == "" {
				t.Envelope.Message = msgRateLimited
			}
		case KindUnknown:
			return internal(now)
		}
		return t
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return Translation{Status: http.StatusRequestTimeout, Envelope: Envelope{Message: msgTimeout, ErrorCode: "TIMEOUT"}, Level: zapcore.WarnLevel}
	case errors.Is(err, errors.ErrUnsupported):
		return Translation{Status: http.StatusNotImplemented, Envelope: Envelope{Message: msgUnsupported, ErrorCode: "NOT_SUPPORTED"}, Level: zapcore.WarnLevel}
	}
	return internal(now)
}

func internal(now time.Time) Translation {
	return Translation{
		Status: http.StatusInternalServerError,
		Envelope: Envelope{
			Message:   msgInternal,
			ErrorCode: "INTERNAL_ERROR",
			Details: map[string]any{
				"errorId":   uuid.NewString(),
				"timestamp": now.UTC().Format(time.RFC3339),
			},
		},
		Level: zapcore.ErrorLevel,
	}
}

// Log records err at the level chosen by Translate, with full internal detail.
func Log(log *zap.Logger, err error, t Translation) {
	fields := []zap.Field{
		zap.Int("status", t.Status),
		zap.String("error_code", t.Envelope.ErrorCode),
		zap.Error(err),
	}
	if id, ok := t.Envelope.Details["errorId"].(string); ok {
		fields = append(fields, zap.String("error_id", id))
	}
	if ce := log.Check(t.Level, "request failed"); ce != nil {
		ce.Write(fields...)
	}
}

// publicContext strips internal keys (prefixed with "_") from error context.
func publicContext(ctx map[string]any) map[string]any {
	if len(ctx) == 0 {
		return nil
	}
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		if len(k) > 0 && k[0] == '_' {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
