// Package apperr defines the closed error taxonomy of the identity service and
// translates any error into an HTTP status plus the public response envelope.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies an error for status mapping.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindNotFound
	KindAlreadyExists
	KindBusinessRule
	KindDomainValidation
	KindInvalidOperation
	KindValidation
	KindInvalidArgument
	KindUnauthorized
	KindForbidden
	KindLocked
	KindRateLimited
	KindTimeout
	KindUnsupported
)

var kindNames = [...]string{
	KindUnknown:          "unknown",
	KindNotFound:         "not_found",
	KindAlreadyExists:    "already_exists",
	KindBusinessRule:     "business_rule_violation",
	KindDomainValidation: "domain_validation",
	KindInvalidOperation: "invalid_operation",
	KindValidation:       "validation",
	KindInvalidArgument:  "invalid_argument",
	KindUnauthorized:     "unauthorized",
	KindForbidden:        "forbidden",
	KindLocked:           "locked",
	KindRateLimited:      "rate_limited",
	KindTimeout:          "timeout",
	KindUnsupported:      "unsupported",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Error is a classified domain error. Message is safe to show to callers.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Context map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors by kind and code, so a copy produced by With or
// Wrap still satisfies errors.Is against the original sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// With returns a copy carrying an additional context entry.
func (e *Error) With(key string, value any) *Error {
	cp := *e
	cp.Context = make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		cp.Context[k] = v
	}
	cp.Context[key] = value
	return &cp
}

// Wrap returns a copy of e recording cause for logs. The public message is unchanged.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// New builds a classified error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// NotFound reports a missing entity.
func NotFound(entity string, id any) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    "ENTITY_NOT_FOUND",
		Message: fmt.Sprintf("%s with ID '%v' was not found.", entity, id),
		Context: map[string]any{"entityName": entity, "entityId": id},
	}
}

// AlreadyExists reports a uniqueness violation.
func AlreadyExists(entity, property string, value any) *Error {
	return &Error{
		Kind:    KindAlreadyExists,
		Code:    "ENTITY_ALREADY_EXISTS",
		Message: fmt.Sprintf("%s with %s '%v' already exists.", entity, property, value),
		Context: map[string]any{"entityName": entity, "propertyName": property, "propertyValue": value},
	}
}

// BusinessRule reports a violated business rule.
func BusinessRule(code, message string) *Error {
	return &Error{Kind: KindBusinessRule, Code: code, Message: message}
}

// InvalidOperation reports an operation that is not allowed in the current state.
func InvalidOperation(code, message string) *Error {
	return &Error{Kind: KindInvalidOperation, Code: code, Message: message}
}

// Unauthorized reports a failed authentication.
func Unauthorized(code, message string) *Error {
	return &Error{Kind: KindUnauthorized, Code: code, Message: message}
}

// KindOf returns the Kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	return KindUnknown
}

// FieldError is one failed rule on one input field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError aggregates per-field failures raised before a handler runs.
type ValidationError struct {
	Fields []FieldError
}

func (v *ValidationError) Error() string {
	parts := make([]string, 0, len(v.Fields))
	for _, f := range v.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add appends a field failure.
func (v *ValidationError) Add(field, message string) {
	v.Fields = append(v.Fields, FieldError{Field: field, Message: message})
}

// Empty reports whether no failures were recorded.
func (v *ValidationError) Empty() bool { return v == nil || len(v.Fields) == 0 }

// ByField groups messages by field name, in a stable order.
func (v *ValidationError) ByField() map[string][]string {
	out := make(map[string][]string, len(v.Fields))
	for _, f := range v.Fields {
		out[f.Field] = append(out[f.Field], f.Message)
	}
	for k := range out {
		sort.Strings(out[k])
	}
	return out
}
