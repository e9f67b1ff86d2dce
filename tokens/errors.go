package tokens

import "github.com/MrEthical07/goIdentity/apperr"

const msgRefreshInvalid = "Invalid or expired refresh token."

var (
	ErrTokenInvalid       = apperr.Unauthorized("INVALID_REFRESH_TOKEN", msgRefreshInvalid)
	ErrTokenReuseDetected = apperr.Unauthorized("REFRESH_TOKEN_REUSED", msgRefreshInvalid)
	ErrAccessTokenInvalid = apperr.Unauthorized("INVALID_ACCESS_TOKEN", "Access denied. Authentication required.")
	ErrAccessTokenExpired = apperr.Unauthorized("ACCESS_TOKEN_EXPIRED", "Access token has expired.")
	ErrSessionNotFound    = apperr.New(apperr.KindNotFound, "SESSION_NOT_FOUND", "Session not found.")
)
