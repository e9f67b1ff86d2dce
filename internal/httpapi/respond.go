package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/apperr"
	"github.com/MrEthical07/goIdentity/internal/logger"
)

const maxBodyBytes = 1 << 20

var errBadBody = apperr.New(apperr.KindInvalidArgument, "INVALID_BODY", "Invalid request parameters.")

type dataEnvelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, dataEnvelope{Success: true, Data: data})
}

// writeError is the single renderer for failures. 500s never leak error text.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	t := apperr.Translate(err, time.Now())
	apperr.Log(logger.From(r.Context()), err, t)

	if t.Status == http.StatusTooManyRequests && w.Header().Get("Retry-After") == "" {
		retry := 60
		if v, ok := t.Envelope.Details["retryAfterSeconds"].(int); ok && v > 0 {
			retry = v
		}
		w.Header().Set("Retry-After", strconv.Itoa(retry))
	}
	writeJSON(w, t.Status, t.Envelope)
}

// decode reads a JSON body into dst. Unknown fields and trailing data are
// rejected.
func decode(r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return errBadBody.With("reason", "content type must be application/json")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errBadBody.With("reason", "request body is empty")
		}
		return errBadBody.Wrap(err)
	}
	if dec.More() {
		return errBadBody.With("reason", "unexpected data after JSON body")
	}
	return nil
}
