package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/middleware"
)

type handlers struct {
	engine *goIdentity.Engine
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.engine.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) setupMfa(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.SetupMfa(r.Context(), goIdentity.SetupMfaCommand{UserID: subject(r)})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (h *handlers) mfaStatus(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.GetMfaStatus(r.Context(), goIdentity.GetMfaStatusQuery{UserID: subject(r)})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (h *handlers) currentUser(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.GetCurrentUser(r.Context(), goIdentity.GetCurrentUserQuery{UserID: subject(r)})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (h *handlers) sessions(w http.ResponseWriter, r *http.Request) {
	q := goIdentity.GetSessionsQuery{UserID: subject(r)}
	if p, ok := middleware.PrincipalFromContext(r.Context()); ok {
		q.CurrentSessionID = p.SessionID
	}
	res, err := h.engine.GetSessions(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (h *handlers) deleteSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, goIdentity.ErrSessionNotFound)
		return
	}
	res, err := h.engine.DeleteSession(r.Context(), goIdentity.DeleteSessionCommand{UserID: subject(r), SessionID: id})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

// command decodes the body into Req, applies binds and sends it.
func command[Req, Res any](run func(context.Context, Req) (Res, error), binds ...func(*http.Request, *Req)) http.HandlerFunc {
	return serve(run, http.StatusOK, false, binds)
}

func created[Req, Res any](run func(context.Context, Req) (Res, error), binds ...func(*http.Request, *Req)) http.HandlerFunc {
	return serve(run, http.StatusCreated, false, binds)
}

// optionalBody is command for endpoints an authenticated caller may hit
// without a body.
func optionalBody[Req, Res any](run func(context.Context, Req) (Res, error), binds ...func(*http.Request, *Req)) http.HandlerFunc {
	return serve(run, http.StatusOK, true, binds)
}

func serve[Req, Res any](run func(context.Context, Req) (Res, error), status int, allowEmpty bool, binds []func(*http.Request, *Req)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Req
		if !allowEmpty || r.ContentLength != 0 {
			if err := decode(r, &req); err != nil {
				writeError(w, r, err)
				return
			}
		}
		for _, bind := range binds {
			bind(r, &req)
		}
		res, err := run(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, status, res)
	}
}

// subject is the authenticated user, or uuid.Nil for anonymous requests.
func subject(r *http.Request) uuid.UUID {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		return uuid.Nil
	}
	return p.UserID
}

func bindLogout(r *http.Request, c *goIdentity.LogoutCommand) { c.UserID = subject(r) }
func bindRevoke(r *http.Request, c *goIdentity.RevokeTokenCommand) { c.UserID = subject(r) }
func bindEnable(r *http.Request, c *goIdentity.EnableMfaCommand) { c.UserID = subject(r) }
func bindVerify(r *http.Request, c *goIdentity.VerifyMfaCommand) { c.UserID = subject(r) }
func bindDisable(r *http.Request, c *goIdentity.DisableMfaCommand) { c.UserID = subject(r) }

func bindChangePassword(r *http.Request, c *goIdentity.ChangePasswordCommand) {
	c.UserID = subject(r)
}

func bindEmailOtp(r *http.Request, c *goIdentity.SendMfaEmailOtpCommand) {
	c.UserID = subject(r)
}

func bindRegenerate(r *http.Request, c *goIdentity.RegenerateBackupCodesCommand) {
	c.UserID = subject(r)
}
