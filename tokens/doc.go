// Package tokens issues, rotates, revokes and validates the service's token
// pairs: a short-lived JWT access token and an opaque refresh token whose
// hash is persisted.
//
// Refresh tokens form chains. Each redemption revokes the presented token
// (reason rotated) and links it to its successor; the successor inherits the
// chain's family id. Presenting an already rotated token is treated as theft:
// every live token of the user is revoked outside the caller's transaction
// and ErrTokenReuseDetected is returned.
//
// Revocations also write a denylist marker into the shared cache so other
// instances reject the token before consulting the store.
//
// Access tokens are validated statelessly. A revoked session keeps a valid
// access token until it expires.
package tokens
